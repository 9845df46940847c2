package log

import (
	"fmt"
	"strings"
	"time"
)

// Event is one entry of a session trace. CBOR uses integer keys; the JSON
// names are used by exports.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint" json:"timestamp"`

	// SessionID is the session trace ID (UUID).
	SessionID string `cbor:"2,keyasint" json:"session_id"`

	// Direction indicates data flow.
	Direction Direction `cbor:"3,keyasint" json:"direction"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint" json:"layer"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint" json:"category"`

	// LocalRole indicates whether the session was accepted or dialed.
	LocalRole Role `cbor:"6,keyasint,omitempty" json:"role"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty" json:"remote,omitempty"`

	// Key is the session's registry key.
	Key uint64 `cbor:"8,keyasint,omitempty" json:"key,omitempty"`

	// Type-specific payload (one of these will be set).
	Data        *DataEvent        `cbor:"10,keyasint,omitempty" json:"data,omitempty"`   // Bytes in/out
	Notify      *NotifyEvent      `cbor:"11,keyasint,omitempty" json:"notify,omitempty"` // User notifications
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty" json:"state,omitempty"`  // Lifecycle
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty" json:"error,omitempty"`  // Errors at any layer
}

// Direction is the flow of a data event.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

// Layer is where an event was captured.
type Layer uint8

const (
	// LayerTransport is the raw byte stream.
	LayerTransport Layer = iota
	// LayerSecure is the TLS stage.
	LayerSecure
	// LayerSession is the session lifecycle.
	LayerSession
	// LayerRegistry is the session registry.
	LayerRegistry
)

// Category selects which payload an event carries.
type Category uint8

const (
	CategoryData Category = iota
	CategoryNotify
	CategoryState
	CategoryError
)

// Role tells whether the session was accepted or dialed.
type Role uint8

const (
	RoleServer Role = iota
	RoleClient
)

var (
	directionNames = []string{"IN", "OUT"}
	layerNames     = []string{"TRANSPORT", "SECURE", "SESSION", "REGISTRY"}
	categoryNames  = []string{"DATA", "NOTIFY", "STATE", "ERROR"}
	roleNames      = []string{"SERVER", "CLIENT"}
	entityNames    = []string{"SESSION", "REGISTRY", "SERVER"}
)

func enumName[E ~uint8](names []string, v E) string {
	if int(v) < len(names) {
		return names[v]
	}
	return "UNKNOWN"
}

func parseEnum[E ~uint8](kind string, names []string, s string) (E, error) {
	for i, name := range names {
		if strings.EqualFold(name, s) {
			return E(i), nil
		}
	}
	return 0, fmt.Errorf("invalid %s: %s (must be one of %s)", kind, s, strings.ToLower(strings.Join(names, ", ")))
}

func (d Direction) String() string   { return enumName(directionNames, d) }
func (l Layer) String() string       { return enumName(layerNames, l) }
func (c Category) String() string    { return enumName(categoryNames, c) }
func (r Role) String() string        { return enumName(roleNames, r) }
func (s StateEntity) String() string { return enumName(entityNames, s) }

// MarshalText encodes the name, so JSON exports stay readable.
func (d Direction) MarshalText() ([]byte, error)   { return []byte(d.String()), nil }
func (l Layer) MarshalText() ([]byte, error)       { return []byte(l.String()), nil }
func (c Category) MarshalText() ([]byte, error)    { return []byte(c.String()), nil }
func (r Role) MarshalText() ([]byte, error)        { return []byte(r.String()), nil }
func (s StateEntity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseDirection parses a direction name, ignoring case.
func ParseDirection(s string) (Direction, error) {
	return parseEnum[Direction]("direction", directionNames, s)
}

// ParseLayer parses a layer name, ignoring case.
func ParseLayer(s string) (Layer, error) {
	return parseEnum[Layer]("layer", layerNames, s)
}

// ParseCategory parses a category name, ignoring case.
func ParseCategory(s string) (Category, error) {
	return parseEnum[Category]("category", categoryNames, s)
}

// ParseRole parses a role name, ignoring case.
func ParseRole(s string) (Role, error) {
	return parseEnum[Role]("role", roleNames, s)
}

// DataEvent captures bytes received or sent by a session.
type DataEvent struct {
	// Size is the number of bytes moved.
	Size int `cbor:"1,keyasint" json:"size"`

	// Data is the bytes (may be truncated for large transfers).
	Data []byte `cbor:"2,keyasint,omitempty" json:"data,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty" json:"truncated,omitempty"`
}

// NotifyEvent captures a notification delivered to the user.
type NotifyEvent struct {
	// Kind is the notification name (ACCEPT, CONNECT, HANDSHAKE, RECV, DISCONNECT).
	Kind string `cbor:"1,keyasint" json:"kind"`

	// Error is the error carried by the notification, if any.
	Error string `cbor:"2,keyasint,omitempty" json:"error,omitempty"`
}

// StateChangeEvent captures session lifecycle transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint" json:"entity"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty" json:"from,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint" json:"to"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty" json:"reason,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	StateEntitySession StateEntity = iota
	// StateEntityRegistry is registry membership.
	StateEntityRegistry
	StateEntityServer
)

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint" json:"layer"`

	// Message is the error message.
	Message string `cbor:"2,keyasint" json:"message"`

	// Kind is the error classification (TRANSPORT, TIMEOUT, ...), if known.
	Kind string `cbor:"3,keyasint,omitempty" json:"kind,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty" json:"context,omitempty"`
}

// MaxLogDataSize caps the payload copied into a DataEvent.
const MaxLogDataSize = 4096

// NewDataEvent builds a DataEvent for p, truncating large payloads.
func NewDataEvent(p []byte) *DataEvent {
	n := min(len(p), MaxLogDataSize)
	return &DataEvent{
		Size:      len(p),
		Data:      append([]byte(nil), p[:n]...),
		Truncated: n < len(p),
	}
}
