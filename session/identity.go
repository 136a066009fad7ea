// Package session tracks the room identity and connection status of this device.
package session

import "sync"

// Status is the connection state of the transport
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Identity holds the room and user id this device registers with, plus the
// current connection status. The transport writes it; everything else reads.
type Identity struct {
	mu     sync.RWMutex
	room   string
	userID string
	status Status
}

// NewIdentity creates an empty, disconnected identity
func NewIdentity() *Identity {
	return &Identity{}
}

// Set stores the room and user id
func (id *Identity) Set(room, userID string) {
	id.mu.Lock()
	id.room = room
	id.userID = userID
	id.mu.Unlock()
}

// Clear forgets the room and user id
func (id *Identity) Clear() {
	id.Set("", "")
}

// Room returns the registered room
func (id *Identity) Room() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.room
}

// UserID returns the registered user id
func (id *Identity) UserID() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.userID
}

// Credentials returns room and user id, and whether both are set
func (id *Identity) Credentials() (room, userID string, ok bool) {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.room, id.userID, id.room != "" && id.userID != ""
}

// Status returns the connection status
func (id *Identity) Status() Status {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.status
}

// SetStatus updates the connection status
func (id *Identity) SetStatus(s Status) {
	id.mu.Lock()
	id.status = s
	id.mu.Unlock()
}
