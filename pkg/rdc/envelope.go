package rdc

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Envelope is the unit exchanged by correlators.
//
// CBOR encoding:
//
//	{
//	  1: id,       // uint64, never 0
//	  2: reply,    // bool: true for replies
//	  3: payload,  // bytes
//	  4: error     // text: remote handler error, replies only
//	}
type Envelope struct {
	ID      uint64 `cbor:"1,keyasint"`
	Reply   bool   `cbor:"2,keyasint,omitempty"`
	Payload []byte `cbor:"3,keyasint,omitempty"`
	Error   string `cbor:"4,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create rdc CBOR encoder mode: %v", err))
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create rdc CBOR decoder mode: %v", err))
	}
}

// encodeEnvelope returns env as a complete frame.
func encodeEnvelope(env *Envelope) ([]byte, error) {
	data, err := encMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return appendFrame(make([]byte, 0, LengthPrefixSize+len(data)), data), nil
}

func decodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.ID == 0 {
		return nil, fmt.Errorf("decode envelope: id 0 is reserved")
	}
	return &env, nil
}
