package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the socket (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Server is the configured server name.
	Server string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the hub WebSocket URL.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates a frame received from the hub.
	DirectionIn Direction = 0
	// DirectionOut indicates a frame sent to the hub.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the raw socket frame layer.
	LayerTransport Layer = 0
	// LayerWire is the decoded frame layer.
	LayerWire Layer = 1
	// LayerService is the connection/session layer.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a command, result or event frame.
	CategoryMessage Category = 0
	// CategoryControl indicates auth or ping/pong traffic.
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures a raw frame at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MaxFrameCapture is the number of frame bytes kept in a FrameEvent.
const MaxFrameCapture = 4096

// NewFrameEvent builds a FrameEvent, truncating large payloads.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data)}
	if len(data) > MaxFrameCapture {
		fe.Data = append([]byte(nil), data[:MaxFrameCapture]...)
		fe.Truncated = true
	} else {
		fe.Data = append([]byte(nil), data...)
	}
	return fe
}

// MessageEvent summarizes a decoded frame at the wire layer.
type MessageEvent struct {
	// Type distinguishes command/result/event.
	Type MessageType `cbor:"1,keyasint"`

	// MessageID correlates commands, results and subscription events.
	MessageID uint64 `cbor:"2,keyasint"`

	// CommandType is the command "type" field (commands only).
	CommandType string `cbor:"3,keyasint,omitempty"`

	// EventType is the hub event type (events only).
	EventType string `cbor:"4,keyasint,omitempty"`

	// Success is the result outcome (results only).
	Success *bool `cbor:"5,keyasint,omitempty"`

	// ErrorCode is the hub error code of a failed result.
	ErrorCode string `cbor:"6,keyasint,omitempty"`

	// RoundTrip is the time from command send to result receipt.
	RoundTrip *time.Duration `cbor:"7,keyasint,omitempty"`
}

// MessageType distinguishes command/result/event frames.
type MessageType uint8

const (
	// MessageTypeCommand indicates a command sent to the hub.
	MessageTypeCommand MessageType = 0
	// MessageTypeResult indicates a command result.
	MessageTypeResult MessageType = 1
	// MessageTypeEvent indicates a subscription event.
	MessageTypeEvent MessageType = 2
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeCommand:
		return "COMMAND"
	case MessageTypeResult:
		return "RESULT"
	case MessageTypeEvent:
		return "EVENT"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures connection lifecycle transitions.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ControlMsgEvent captures auth and keep-alive traffic.
type ControlMsgEvent struct {
	Type ControlMsgType `cbor:"1,keyasint"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	ControlMsgAuthRequired ControlMsgType = 0
	ControlMsgAuth         ControlMsgType = 1
	ControlMsgAuthOK       ControlMsgType = 2
	ControlMsgAuthInvalid  ControlMsgType = 3
	ControlMsgPing         ControlMsgType = 4
	ControlMsgPong         ControlMsgType = 5
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgAuthRequired:
		return "AUTH_REQUIRED"
	case ControlMsgAuth:
		return "AUTH"
	case ControlMsgAuthOK:
		return "AUTH_OK"
	case ControlMsgAuthInvalid:
		return "AUTH_INVALID"
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
