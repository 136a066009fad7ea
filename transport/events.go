package transport

import "markestedt/clipsync/protocol"

// EventType identifies an inbound transport event
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	EventMessage
	EventHistory
	EventHistoryFailed
	EventRegistrationRejected
	EventConnectError
	EventReconnectAttempt
	EventReconnectFailed
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	case EventHistory:
		return "history"
	case EventHistoryFailed:
		return "history-failed"
	case EventRegistrationRejected:
		return "registration-rejected"
	case EventConnectError:
		return "connect-error"
	case EventReconnectAttempt:
		return "reconnect-attempt"
	case EventReconnectFailed:
		return "reconnect-failed"
	default:
		return "unknown"
	}
}

// Event is delivered on Client.Events
type Event struct {
	Type    EventType
	Message protocol.Message   // EventMessage
	History []protocol.Message // EventHistory
	Reason  string             // disconnect, error and rejection reasons
	Attempt int                // EventConnectError, EventReconnectAttempt, EventReconnectFailed
}
