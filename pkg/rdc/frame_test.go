package rdc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderSplitInput(t *testing.T) {
	wire := appendFrame(nil, []byte("hello"))
	wire = appendFrame(wire, []byte("world!"))

	d := newDecoder(0)
	var got []string
	for _, b := range wire {
		d.write([]byte{b})
		for {
			frame, err := d.next()
			require.NoError(t, err)
			if frame == nil {
				break
			}
			got = append(got, string(frame))
		}
	}

	assert.Equal(t, []string{"hello", "world!"}, got)
	assert.Equal(t, 0, d.pending())
}

func TestDecoderMultipleFramesInOneWrite(t *testing.T) {
	wire := appendFrame(nil, []byte("a"))
	wire = appendFrame(wire, []byte("bc"))
	wire = append(wire, 0, 0) // partial prefix

	d := newDecoder(0)
	d.write(wire)

	f, err := d.next()
	require.NoError(t, err)
	assert.Equal(t, "a", string(f))
	f, err = d.next()
	require.NoError(t, err)
	assert.Equal(t, "bc", string(f))
	f, err = d.next()
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, 2, d.pending())
}

func TestDecoderRejects(t *testing.T) {
	d := newDecoder(8)
	d.write([]byte{0, 0, 0, 9})
	_, err := d.next()
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	d = newDecoder(8)
	d.write([]byte{0, 0, 0, 0})
	_, err = d.next()
	assert.ErrorIs(t, err, ErrFrameEmpty)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	frame, err := encodeEnvelope(&Envelope{ID: 7, Reply: true, Payload: []byte{1, 2}, Error: "nope"})
	require.NoError(t, err)

	d := newDecoder(0)
	d.write(frame)
	data, err := d.next()
	require.NoError(t, err)

	env, err := decodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), env.ID)
	assert.True(t, env.Reply)
	assert.Equal(t, []byte{1, 2}, env.Payload)
	assert.Equal(t, "nope", env.Error)
}

func TestEnvelopeZeroIDRejected(t *testing.T) {
	data, err := encMode.Marshal(&Envelope{Payload: []byte("x")})
	require.NoError(t, err)
	_, err = decodeEnvelope(data)
	assert.Error(t, err)
}
