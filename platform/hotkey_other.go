//go:build !windows

package platform

import (
	"fmt"
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"
)

// HookHotkeys implements the Hotkeys interface with a global keyboard hook.
// It reads the raw event stream and matches combos itself, so bindings can
// be added and removed freely while the hook runs.
type HookHotkeys struct {
	mu      sync.Mutex
	active  map[KeyCombo]func()
	pressed map[uint16]bool

	startOnce sync.Once
}

// NewHotkeys creates a new hook-based hotkey facility
func NewHotkeys() Hotkeys {
	return &HookHotkeys{
		active:  make(map[KeyCombo]func()),
		pressed: make(map[uint16]bool),
	}
}

// IsComboFree reports whether this process has not claimed combo.
// The hook observes keys without claiming them, so other applications
// cannot be detected here.
func (h *HookHotkeys) IsComboFree(combo KeyCombo) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, taken := h.active[combo]
	return !taken
}

// Register invokes callback on every key-down of combo
func (h *HookHotkeys) Register(combo KeyCombo, callback func()) error {
	if combo.Key == "" {
		return fmt.Errorf("hotkey %s has no key", combo)
	}
	for _, k := range hookKeys(combo) {
		if _, ok := hook.Keycode[k]; !ok {
			return fmt.Errorf("hotkey %s: key %q is not supported", combo, k)
		}
	}

	h.mu.Lock()
	if _, exists := h.active[combo]; exists {
		h.mu.Unlock()
		return fmt.Errorf("hotkey %s already registered", combo)
	}
	h.active[combo] = callback
	h.mu.Unlock()

	h.startOnce.Do(h.start)
	return nil
}

// Unregister stops delivering combo
func (h *HookHotkeys) Unregister(combo KeyCombo) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.active[combo]; !ok {
		return fmt.Errorf("hotkey %s not registered", combo)
	}
	delete(h.active, combo)
	return nil
}

func (h *HookHotkeys) start() {
	events := hook.Start()
	go func() {
		for ev := range events {
			h.handle(ev)
		}
		slog.Info("Keyboard hook stopped")
	}()
}

// handle tracks pressed keys and fires the combos completed by a fresh
// key press. Auto-repeat of a held key does not fire again.
func (h *HookHotkeys) handle(ev hook.Event) {
	h.mu.Lock()
	switch ev.Kind {
	case hook.KeyHold, hook.KeyDown:
		if h.pressed[ev.Keycode] {
			h.mu.Unlock()
			return
		}
		h.pressed[ev.Keycode] = true
	case hook.KeyUp:
		delete(h.pressed, ev.Keycode)
		h.mu.Unlock()
		return
	default:
		h.mu.Unlock()
		return
	}

	var fire []func()
	for combo, cb := range h.active {
		if hook.Keycode[combo.Key] == ev.Keycode && h.matches(combo) {
			fire = append(fire, cb)
		}
	}
	h.mu.Unlock()

	for _, cb := range fire {
		go cb()
	}
}

// matches reports whether combo's key is down together with exactly its
// modifiers. Callers hold mu.
func (h *HookHotkeys) matches(combo KeyCombo) bool {
	if !h.pressed[hook.Keycode[combo.Key]] {
		return false
	}
	mods := []struct {
		name string
		want bool
	}{
		{"ctrl", combo.Ctrl},
		{"alt", combo.Alt},
		{"shift", combo.Shift},
		{"cmd", combo.Win},
	}
	for _, m := range mods {
		if h.pressed[hook.Keycode[m.name]] != m.want {
			return false
		}
	}
	return true
}

// hookKeys lists the key names of combo as the hook library spells them:
// the key first, then modifiers
func hookKeys(combo KeyCombo) []string {
	keys := []string{combo.Key}
	if combo.Ctrl {
		keys = append(keys, "ctrl")
	}
	if combo.Alt {
		keys = append(keys, "alt")
	}
	if combo.Shift {
		keys = append(keys, "shift")
	}
	if combo.Win {
		keys = append(keys, "cmd")
	}
	return keys
}
