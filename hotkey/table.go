package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"markestedt/clipsync/platform"
)

// DefaultDebounce drops repeated fires of one combo within this window
const DefaultDebounce = 200 * time.Millisecond

// ErrAlreadyBound matches AlreadyBoundError with errors.Is
var ErrAlreadyBound = errors.New("hotkey already bound")

// AlreadyBoundError reports a combo claimed by another binding or application
type AlreadyBoundError struct {
	Combo string
}

func (e *AlreadyBoundError) Error() string {
	return fmt.Sprintf("hotkey %s is already in use", e.Combo)
}

func (e *AlreadyBoundError) Is(target error) bool {
	return target == ErrAlreadyBound
}

// Handler receives the action of a fired binding
type Handler func(Action)

// Binding is a snapshot of one active binding
type Binding struct {
	Combo  string `json:"combo"`
	Action Action `json:"action"`
}

type binding struct {
	combo     platform.KeyCombo
	action    Action
	handler   Handler
	lastFired time.Time
}

// Table owns the live set of hotkey bindings
type Table struct {
	mu       sync.Mutex
	facility platform.Hotkeys
	bindings map[platform.KeyCombo]*binding
	debounce time.Duration
	now      func() time.Time
}

// NewTable creates an empty table on top of the OS facility
func NewTable(facility platform.Hotkeys) *Table {
	return &Table{
		facility: facility,
		bindings: make(map[platform.KeyCombo]*binding),
		debounce: DefaultDebounce,
		now:      time.Now,
	}
}

// Bind registers combo for action. A combo held by this table or reported
// taken by the facility yields an *AlreadyBoundError.
func (t *Table) Bind(combo string, action Action, h Handler) error {
	kc, err := Parse(combo)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bindLocked(kc, action, h)
}

func (t *Table) bindLocked(kc platform.KeyCombo, action Action, h Handler) error {
	if _, ok := t.bindings[kc]; ok {
		return &AlreadyBoundError{Combo: kc.String()}
	}
	if !t.facility.IsComboFree(kc) {
		return &AlreadyBoundError{Combo: kc.String()}
	}

	if err := t.facility.Register(kc, func() { t.fire(kc) }); err != nil {
		return fmt.Errorf("failed to register hotkey %s: %w", kc, err)
	}

	t.bindings[kc] = &binding{combo: kc, action: action, handler: h}
	slog.Info("Hotkey bound", "combo", kc.String(), "action", action.String())
	return nil
}

// Rebind moves a binding from oldCombo to newCombo. newCombo is registered
// first; oldCombo is released only once that succeeded, so on error the old
// binding is still active. An empty oldCombo behaves like Bind.
func (t *Table) Rebind(oldCombo, newCombo string, action Action, h Handler) error {
	if oldCombo == "" {
		return t.Bind(newCombo, action, h)
	}

	oldKC, err := Parse(oldCombo)
	if err != nil {
		return err
	}
	newKC, err := Parse(newCombo)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if oldKC == newKC {
		if b, ok := t.bindings[oldKC]; ok {
			b.action = action
			b.handler = h
			return nil
		}
		return t.bindLocked(newKC, action, h)
	}

	if err := t.bindLocked(newKC, action, h); err != nil {
		return err
	}

	if _, ok := t.bindings[oldKC]; ok {
		delete(t.bindings, oldKC)
		if err := t.facility.Unregister(oldKC); err != nil {
			slog.Warn("Failed to unregister replaced hotkey", "combo", oldKC.String(), "error", err)
		}
	}
	return nil
}

// Unbind releases one combo
func (t *Table) Unbind(combo string) error {
	kc, err := Parse(combo)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.bindings[kc]; !ok {
		return fmt.Errorf("hotkey %s is not bound", kc)
	}
	delete(t.bindings, kc)
	return t.facility.Unregister(kc)
}

// UnbindAll releases every binding. Errors are logged, not returned.
func (t *Table) UnbindAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for kc := range t.bindings {
		if err := t.facility.Unregister(kc); err != nil {
			slog.Warn("Failed to unregister hotkey", "combo", kc.String(), "error", err)
		}
		delete(t.bindings, kc)
	}
}

// Lookup returns the action bound to combo
func (t *Table) Lookup(combo string) (Action, bool) {
	kc, err := Parse(combo)
	if err != nil {
		return Action{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.bindings[kc]
	if !ok {
		return Action{}, false
	}
	return b.action, true
}

// Bindings lists the active bindings sorted by combo
func (t *Table) Bindings() []Binding {
	t.mu.Lock()
	out := make([]Binding, 0, len(t.bindings))
	for kc, b := range t.bindings {
		out = append(out, Binding{Combo: kc.String(), Action: b.action})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Combo < out[j].Combo })
	return out
}

// fire dispatches a facility callback. Fires for combos no longer bound,
// and repeats inside the debounce window, are dropped.
func (t *Table) fire(kc platform.KeyCombo) {
	t.mu.Lock()
	b, ok := t.bindings[kc]
	if !ok {
		t.mu.Unlock()
		return
	}
	now := t.now()
	if !b.lastFired.IsZero() && now.Sub(b.lastFired) < t.debounce {
		t.mu.Unlock()
		return
	}
	b.lastFired = now
	action, h := b.action, b.handler
	t.mu.Unlock()

	if h != nil {
		h(action)
	}
}
