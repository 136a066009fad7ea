package platform

import (
	"strings"
)

// KeyCombo represents a keyboard key combination.
// Key is the lowercase key name ("j", "1", "f5").
type KeyCombo struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Win   bool
	Key   string
}

// String returns the canonical form, e.g. "Ctrl+Alt+J"
func (k KeyCombo) String() string {
	var parts []string
	if k.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if k.Alt {
		parts = append(parts, "Alt")
	}
	if k.Shift {
		parts = append(parts, "Shift")
	}
	if k.Win {
		parts = append(parts, "Win")
	}
	if k.Key != "" {
		key := k.Key
		if len(key) == 1 {
			key = strings.ToUpper(key)
		} else {
			key = strings.ToUpper(key[:1]) + key[1:]
		}
		parts = append(parts, key)
	}
	return strings.Join(parts, "+")
}

// Hotkeys provides system-wide hotkey registration
type Hotkeys interface {
	// IsComboFree reports whether no application holds combo
	IsComboFree(combo KeyCombo) bool
	Register(combo KeyCombo, callback func()) error
	Unregister(combo KeyCombo) error
}

// Clipboard provides clipboard access
type Clipboard interface {
	Get() (string, error)
	Set(text string) error
	SetImage(png []byte) error
}

// Injector simulates keyboard input into the focused window
type Injector interface {
	Paste() error
	Type(text string) error
}

// Capturer grabs screenshots
type Capturer interface {
	Monitors() int
	// Capture returns a PNG of the given monitor
	Capture(monitor int) ([]byte, error)
}
