// Package settings holds the runtime feature flags of the sync engine.
package settings

import "sync"

// Values is a plain copy of all flags
type Values struct {
	AutoCopyText     bool `json:"autoCopyText"`
	AutoCopyImage    bool `json:"autoCopyImage"`
	RegistersEnabled bool `json:"registersEnabled"`
	SyncEnabled      bool `json:"syncEnabled"`
	Monitor          int  `json:"monitor"`
}

// Defaults returns the flags a fresh install starts with
func Defaults() Values {
	return Values{
		AutoCopyText:     true,
		AutoCopyImage:    false,
		RegistersEnabled: true,
		SyncEnabled:      true,
	}
}

// Settings is a concurrency-safe holder of Values
type Settings struct {
	mu sync.RWMutex
	v  Values
}

// New creates settings from initial values
func New(v Values) *Settings {
	s := &Settings{}
	s.Update(v)
	return s
}

// Get returns a copy of the current values
func (s *Settings) Get() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Update replaces all values. Registers disabled forces sync off.
func (s *Settings) Update(v Values) {
	if !v.RegistersEnabled {
		v.SyncEnabled = false
	}
	if v.Monitor < 0 {
		v.Monitor = 0
	}
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
}

func (s *Settings) AutoCopyText() bool  { return s.Get().AutoCopyText }
func (s *Settings) AutoCopyImage() bool { return s.Get().AutoCopyImage }
func (s *Settings) Monitor() int        { return s.Get().Monitor }

// RegistersEnabled reports whether register hotkeys and ingestion are active
func (s *Settings) RegistersEnabled() bool { return s.Get().RegistersEnabled }

// SyncEnabled reports whether saves are broadcast to the room
func (s *Settings) SyncEnabled() bool {
	v := s.Get()
	return v.RegistersEnabled && v.SyncEnabled
}

// SetRegistersEnabled toggles the register feature; disabling it also disables sync
func (s *Settings) SetRegistersEnabled(on bool) {
	s.mu.Lock()
	s.v.RegistersEnabled = on
	if !on {
		s.v.SyncEnabled = false
	}
	s.mu.Unlock()
}

// SetSyncEnabled toggles register sync
func (s *Settings) SetSyncEnabled(on bool) {
	s.mu.Lock()
	s.v.SyncEnabled = on
	s.mu.Unlock()
}
