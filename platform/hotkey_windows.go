//go:build windows

package platform

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
	"unsafe"
)

var (
	registerHotKey   = user32.NewProc("RegisterHotKey")
	unregisterHotKey = user32.NewProc("UnregisterHotKey")
	peekMessage      = user32.NewProc("PeekMessageW")
)

const (
	modAlt      = 0x0001
	modControl  = 0x0002
	modShift    = 0x0004
	modWin      = 0x0008
	modNoRepeat = 0x4000

	wmHotkey = 0x0312
	pmRemove = 0x0001

	probeID = 0xBFFF
)

type msg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
}

// WindowsHotkeys implements the Hotkeys interface with RegisterHotKey.
// All Win32 calls run on one locked OS thread, which also owns the message
// queue WM_HOTKEY is posted to.
type WindowsHotkeys struct {
	mu        sync.Mutex
	ids       map[KeyCombo]int
	callbacks map[int]func()
	nextID    int

	requests  chan func()
	startOnce sync.Once
}

// NewHotkeys creates a new Windows hotkey facility
func NewHotkeys() Hotkeys {
	return &WindowsHotkeys{
		ids:       make(map[KeyCombo]int),
		callbacks: make(map[int]func()),
		nextID:    1,
		requests:  make(chan func()),
	}
}

// IsComboFree probes the combo by registering and immediately releasing it
func (h *WindowsHotkeys) IsComboFree(combo KeyCombo) bool {
	h.mu.Lock()
	_, ours := h.ids[combo]
	h.mu.Unlock()
	if ours {
		return false
	}

	mods, vk, err := comboToWin32(combo)
	if err != nil {
		return false
	}

	free := false
	h.do(func() {
		r, _, _ := registerHotKey.Call(0, probeID, uintptr(mods), uintptr(vk))
		if r != 0 {
			unregisterHotKey.Call(0, probeID)
			free = true
		}
	})
	return free
}

// Register claims combo system-wide and invokes callback on every press
func (h *WindowsHotkeys) Register(combo KeyCombo, callback func()) error {
	mods, vk, err := comboToWin32(combo)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if _, exists := h.ids[combo]; exists {
		h.mu.Unlock()
		return fmt.Errorf("hotkey %s already registered", combo)
	}
	id := h.nextID
	h.nextID++
	h.mu.Unlock()

	var regErr error
	h.do(func() {
		r, _, err := registerHotKey.Call(0, uintptr(id), uintptr(mods|modNoRepeat), uintptr(vk))
		if r == 0 {
			regErr = fmt.Errorf("RegisterHotKey %s failed: %w", combo, err)
		}
	})
	if regErr != nil {
		return regErr
	}

	h.mu.Lock()
	h.ids[combo] = id
	h.callbacks[id] = callback
	h.mu.Unlock()
	return nil
}

// Unregister releases combo
func (h *WindowsHotkeys) Unregister(combo KeyCombo) error {
	h.mu.Lock()
	id, ok := h.ids[combo]
	if ok {
		delete(h.ids, combo)
		delete(h.callbacks, id)
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("hotkey %s not registered", combo)
	}

	var unregErr error
	h.do(func() {
		r, _, err := unregisterHotKey.Call(0, uintptr(id))
		if r == 0 {
			unregErr = fmt.Errorf("UnregisterHotKey %s failed: %w", combo, err)
		}
	})
	return unregErr
}

// do runs fn on the hotkey thread and waits for it
func (h *WindowsHotkeys) do(fn func()) {
	h.startOnce.Do(func() { go h.loop() })

	done := make(chan struct{})
	h.requests <- func() {
		fn()
		close(done)
	}
	<-done
}

func (h *WindowsHotkeys) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var m msg
	for {
		select {
		case req := <-h.requests:
			req()
			continue
		default:
		}

		// Drain the thread message queue
		for {
			r, _, _ := peekMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0, pmRemove)
			if r == 0 {
				break
			}
			if m.message != wmHotkey {
				continue
			}

			h.mu.Lock()
			cb := h.callbacks[int(m.wParam)]
			h.mu.Unlock()
			if cb != nil {
				go cb()
			} else {
				slog.Debug("Hotkey fired without callback", "id", m.wParam)
			}
		}

		time.Sleep(10 * time.Millisecond)
	}
}

func comboToWin32(combo KeyCombo) (uint32, int, error) {
	vk, err := VKCode(combo.Key)
	if err != nil {
		return 0, 0, err
	}
	if vk == 0 {
		return 0, 0, fmt.Errorf("hotkey %s has no key", combo)
	}

	var mods uint32
	if combo.Alt {
		mods |= modAlt
	}
	if combo.Ctrl {
		mods |= modControl
	}
	if combo.Shift {
		mods |= modShift
	}
	if combo.Win {
		mods |= modWin
	}
	return mods, vk, nil
}

// VKCode returns the Windows virtual key code for a key name
// Returns 0 for empty string (modifier-only hotkey)
func VKCode(key string) (int, error) {
	if key == "" {
		return 0, nil
	}

	codes := map[string]int{
		"a": 0x41, "b": 0x42, "c": 0x43, "d": 0x44, "e": 0x45,
		"f": 0x46, "g": 0x47, "h": 0x48, "i": 0x49, "j": 0x4A,
		"k": 0x4B, "l": 0x4C, "m": 0x4D, "n": 0x4E, "o": 0x4F,
		"p": 0x50, "q": 0x51, "r": 0x52, "s": 0x53, "t": 0x54,
		"u": 0x55, "v": 0x56, "w": 0x57, "x": 0x58, "y": 0x59, "z": 0x5A,
		"0": 0x30, "1": 0x31, "2": 0x32, "3": 0x33, "4": 0x34,
		"5": 0x35, "6": 0x36, "7": 0x37, "8": 0x38, "9": 0x39,
		"f1": 0x70, "f2": 0x71, "f3": 0x72, "f4": 0x73,
		"f5": 0x74, "f6": 0x75, "f7": 0x76, "f8": 0x77,
		"f9": 0x78, "f10": 0x79, "f11": 0x7A, "f12": 0x7B,
		"space": 0x20, "enter": 0x0D, "esc": 0x1B,
		"tab": 0x09, "backspace": 0x08, "insert": 0x2D, "delete": 0x2E,
		"home": 0x24, "end": 0x23, "pageup": 0x21, "pagedown": 0x22,
	}

	if code, ok := codes[key]; ok {
		return code, nil
	}

	return 0, fmt.Errorf("unknown key: %s", key)
}
