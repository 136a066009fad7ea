package engine

import (
	"sync"

	"markestedt/clipsync/protocol"
)

// MessageLog is the visible, in-memory message history of the room
type MessageLog struct {
	mu       sync.RWMutex
	messages []protocol.Message
}

// NewMessageLog creates an empty log
func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

// Append adds a message at the end
func (l *MessageLog) Append(msg protocol.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// Replace swaps the whole log for msgs in one step
func (l *MessageLog) Replace(msgs []protocol.Message) {
	next := make([]protocol.Message, len(msgs))
	copy(next, msgs)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = next
}

// Clear empties the log
func (l *MessageLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
}

// Len returns the number of messages
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Snapshot returns a copy of the log in order
func (l *MessageLog) Snapshot() []protocol.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]protocol.Message, len(l.messages))
	copy(out, l.messages)
	return out
}
