// Package register holds the fixed set of clipboard registers.
package register

import (
	"errors"
	"fmt"
	"sync"
)

// Count is the number of registers. It never changes at runtime.
const Count = 5

// ErrIndexOutOfRange is returned for register indexes outside [0, Count).
var ErrIndexOutOfRange = errors.New("register index out of range")

// Valid reports whether i addresses an existing register
func Valid(i int) bool {
	return i >= 0 && i < Count
}

// Store is a last-write-wins store of Count text registers.
// An empty string means the register is unset.
type Store struct {
	mu    sync.RWMutex
	slots [Count]string
}

// NewStore creates a store with every register unset
func NewStore() *Store {
	return &Store{}
}

// Save overwrites register i with content
func (s *Store) Save(i int, content string) error {
	if !Valid(i) {
		return fmt.Errorf("save register %d: %w", i, ErrIndexOutOfRange)
	}

	s.mu.Lock()
	s.slots[i] = content
	s.mu.Unlock()
	return nil
}

// Read returns the content of register i, or "" when unset
func (s *Store) Read(i int) (string, error) {
	if !Valid(i) {
		return "", fmt.Errorf("read register %d: %w", i, ErrIndexOutOfRange)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[i], nil
}

// ClearAll resets every register to unset
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.slots = [Count]string{}
	s.mu.Unlock()
}

// Snapshot returns a copy of all registers
func (s *Store) Snapshot() [Count]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots
}
