// Package protocol defines the messages exchanged between agents and the relay.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"markestedt/clipsync/register"
)

// Event names carried in Envelope.Event
const (
	EventRegister          = "register"
	EventSendMessage       = "sendMessage"
	EventHistory           = "history"
	EventHistoryError      = "historyError"
	EventRegistrationError = "registrationError"
)

// Kind is the content type of a message
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// ErrInvalidMessage is returned by Validate for messages that must be dropped
var ErrInvalidMessage = errors.New("invalid message")

// Message is the unit of content shared within a room
type Message struct {
	Kind          Kind      `json:"type"`
	Content       string    `json:"content"`
	OriginID      string    `json:"userId"`
	SentAt        time.Time `json:"timestamp"`
	RegisterIndex *int      `json:"clipReg,omitempty"`
}

// Registration is the payload of a register event
type Registration struct {
	Room   string `json:"room"`
	UserID string `json:"userId"`
}

// ErrorPayload is the payload of historyError and registrationError
type ErrorPayload struct {
	Message string `json:"message"`
}

// Envelope wraps every frame on the socket
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewText creates a plain text message
func NewText(origin, content string, at time.Time) Message {
	return Message{Kind: KindText, Content: content, OriginID: origin, SentAt: at.UTC()}
}

// NewRegisterSync creates a text message that updates register index on peers
func NewRegisterSync(origin, content string, index int, at time.Time) Message {
	m := NewText(origin, content, at)
	m.RegisterIndex = &index
	return m
}

// NewImage creates an image message from a data URL
func NewImage(origin, dataURL string, at time.Time) Message {
	return Message{Kind: KindImage, Content: dataURL, OriginID: origin, SentAt: at.UTC()}
}

// HasRegister reports whether the message carries a register index
func (m Message) HasRegister() bool {
	return m.RegisterIndex != nil
}

// Validate checks the invariants every message must hold
func (m Message) Validate() error {
	switch m.Kind {
	case KindText:
		if m.RegisterIndex != nil && !register.Valid(*m.RegisterIndex) {
			return fmt.Errorf("%w: register index %d out of range", ErrInvalidMessage, *m.RegisterIndex)
		}
	case KindImage:
		if m.RegisterIndex != nil {
			return fmt.Errorf("%w: register index on image message", ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Kind)
	}
	return nil
}

// Encode builds a wire frame for event with the given payload
func Encode(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode parses a wire frame
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Event == "" {
		return env, fmt.Errorf("envelope without event")
	}
	return env, nil
}

// Payload unmarshals the envelope data into v
func (e Envelope) Payload(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: empty payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s: unmarshal payload: %w", e.Event, err)
	}
	return nil
}

// EncodeDataURL formats data as a base64 data URL
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL extracts the mime type and bytes from a base64 data URL
func DecodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data URL without payload")
	}
	mime, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("data URL is not base64 encoded")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	return mime, data, nil
}
