//go:build !windows

package platform

import (
	"testing"
	"time"

	hook "github.com/robotn/gohook"
)

func press(h *HookHotkeys, key string) {
	h.handle(hook.Event{Kind: hook.KeyHold, Keycode: hook.Keycode[key]})
}

func release(h *HookHotkeys, key string) {
	h.handle(hook.Event{Kind: hook.KeyUp, Keycode: hook.Keycode[key]})
}

func expectFires(t *testing.T, fired <-chan struct{}, want int) {
	t.Helper()
	for i := 0; i < want; i++ {
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d fires, want %d", i, want)
		}
	}
	select {
	case <-fired:
		t.Fatalf("unexpected extra fire, want %d", want)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHookHotkeysMatchesCombos(t *testing.T) {
	h := NewHotkeys().(*HookHotkeys)
	combo := KeyCombo{Ctrl: true, Alt: true, Key: "j"}
	fired := make(chan struct{}, 8)

	// Populate directly so the OS hook is never started
	h.active[combo] = func() { fired <- struct{}{} }

	press(h, "ctrl")
	press(h, "alt")
	press(h, "j")
	press(h, "j") // auto-repeat
	expectFires(t, fired, 1)

	release(h, "j")
	press(h, "j")
	expectFires(t, fired, 1)

	// Missing modifier
	release(h, "j")
	release(h, "alt")
	press(h, "j")
	expectFires(t, fired, 0)
}

func TestHookHotkeysRebindLeavesNoStaleCallback(t *testing.T) {
	h := NewHotkeys().(*HookHotkeys)
	oldCombo := KeyCombo{Ctrl: true, Key: "k"}
	newCombo := KeyCombo{Ctrl: true, Shift: true, Key: "k"}
	fired := make(chan struct{}, 8)
	cb := func() { fired <- struct{}{} }

	h.active[oldCombo] = cb
	if h.IsComboFree(oldCombo) {
		t.Fatal("bound combo reported free")
	}
	if err := h.Unregister(oldCombo); err != nil {
		t.Fatal(err)
	}
	if err := h.Unregister(oldCombo); err == nil {
		t.Error("second unregister should fail")
	}
	h.active[newCombo] = cb

	press(h, "ctrl")
	press(h, "k")
	expectFires(t, fired, 0)

	release(h, "k")
	press(h, "shift")
	press(h, "k")
	expectFires(t, fired, 1)

	// With both bound, Ctrl+Shift+K must not also fire Ctrl+K
	h.active[oldCombo] = func() { t.Error("narrower combo fired") }
	release(h, "k")
	press(h, "k")
	expectFires(t, fired, 1)
}
