package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DirectionIn.String(), "IN"},
		{DirectionOut.String(), "OUT"},
		{Direction(9).String(), "UNKNOWN"},
		{LayerTransport.String(), "TRANSPORT"},
		{LayerSecure.String(), "SECURE"},
		{LayerSession.String(), "SESSION"},
		{LayerRegistry.String(), "REGISTRY"},
		{Layer(9).String(), "UNKNOWN"},
		{CategoryData.String(), "DATA"},
		{CategoryNotify.String(), "NOTIFY"},
		{CategoryState.String(), "STATE"},
		{CategoryError.String(), "ERROR"},
		{Category(9).String(), "UNKNOWN"},
		{RoleServer.String(), "SERVER"},
		{RoleClient.String(), "CLIENT"},
		{Role(9).String(), "UNKNOWN"},
		{StateEntitySession.String(), "SESSION"},
		{StateEntityRegistry.String(), "REGISTRY"},
		{StateEntityServer.String(), "SERVER"},
		{StateEntity(9).String(), "UNKNOWN"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestNewDataEvent(t *testing.T) {
	small := NewDataEvent([]byte("abc"))
	if small.Size != 3 || small.Truncated || !bytes.Equal(small.Data, []byte("abc")) {
		t.Errorf("small event = %+v", small)
	}

	big := bytes.Repeat([]byte{0xAA}, MaxLogDataSize+10)
	ev := NewDataEvent(big)
	if ev.Size != len(big) {
		t.Errorf("Size = %d, want %d", ev.Size, len(big))
	}
	if !ev.Truncated {
		t.Error("large event should be truncated")
	}
	if len(ev.Data) != MaxLogDataSize {
		t.Errorf("len(Data) = %d, want %d", len(ev.Data), MaxLogDataSize)
	}

	// The event must not alias the caller's buffer.
	src := []byte("xyz")
	ev = NewDataEvent(src)
	src[0] = 'q'
	if ev.Data[0] != 'x' {
		t.Error("DataEvent aliases the source buffer")
	}
}

func TestParseEnums(t *testing.T) {
	if l, err := ParseLayer("Secure"); err != nil || l != LayerSecure {
		t.Errorf("ParseLayer(Secure) = %v, %v", l, err)
	}
	if d, err := ParseDirection("out"); err != nil || d != DirectionOut {
		t.Errorf("ParseDirection(out) = %v, %v", d, err)
	}
	if c, err := ParseCategory("ERROR"); err != nil || c != CategoryError {
		t.Errorf("ParseCategory(ERROR) = %v, %v", c, err)
	}
	if r, err := ParseRole("client"); err != nil || r != RoleClient {
		t.Errorf("ParseRole(client) = %v, %v", r, err)
	}

	_, err := ParseLayer("wire")
	if err == nil || !strings.Contains(err.Error(), "transport, secure, session, registry") {
		t.Errorf("ParseLayer(wire) error = %v", err)
	}
}

func TestEventJSONUsesNames(t *testing.T) {
	data, err := json.Marshal(Event{
		SessionID:   "s",
		Layer:       LayerSecure,
		Category:    CategoryState,
		LocalRole:   RoleClient,
		StateChange: &StateChangeEvent{Entity: StateEntityRegistry, NewState: "JOINED"},
	})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, want := range []string{`"layer":"SECURE"`, `"category":"STATE"`, `"role":"CLIENT"`, `"entity":"REGISTRY"`, `"to":"JOINED"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("JSON missing %s: %s", want, data)
		}
	}
}
