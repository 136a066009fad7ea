//go:build windows

package platform

import (
	"errors"
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                     = windows.NewLazySystemDLL("user32.dll")
	kernel32                   = windows.NewLazySystemDLL("kernel32.dll")
	openClipboard              = user32.NewProc("OpenClipboard")
	closeClipboard             = user32.NewProc("CloseClipboard")
	emptyClipboard             = user32.NewProc("EmptyClipboard")
	getClipboardData           = user32.NewProc("GetClipboardData")
	setClipboardData           = user32.NewProc("SetClipboardData")
	isClipboardFormatAvailable = user32.NewProc("IsClipboardFormatAvailable")
	globalAlloc                = kernel32.NewProc("GlobalAlloc")
	globalFree                 = kernel32.NewProc("GlobalFree")
	globalLock                 = kernel32.NewProc("GlobalLock")
	globalUnlock               = kernel32.NewProc("GlobalUnlock")
)

const (
	cfUnicodeText = 13
	gmemMoveable  = 0x0002

	openAttempts = 20
	openBackoff  = 10 * time.Millisecond
)

// ErrClipboardBusy means another application kept the clipboard open
var ErrClipboardBusy = errors.New("clipboard is held by another application")

// WindowsClipboard reads and writes Unicode text through the Win32
// clipboard. Images go through the shared image backend, which converts
// PNG to the DIB formats other applications paste.
type WindowsClipboard struct{}

// NewClipboard creates a new Windows clipboard instance
func NewClipboard() Clipboard {
	return &WindowsClipboard{}
}

// Get returns the clipboard text, or "" when it holds no text
func (c *WindowsClipboard) Get() (string, error) {
	var text string
	err := withClipboard(func() error {
		if r, _, _ := isClipboardFormatAvailable.Call(cfUnicodeText); r == 0 {
			return nil
		}

		h, _, err := getClipboardData.Call(cfUnicodeText)
		if h == 0 {
			return fmt.Errorf("GetClipboardData failed: %w", err)
		}

		p, _, err := globalLock.Call(h)
		if p == 0 {
			return fmt.Errorf("GlobalLock failed: %w", err)
		}
		defer globalUnlock.Call(h)

		text = windows.UTF16PtrToString((*uint16)(unsafe.Pointer(p)))
		return nil
	})
	return text, err
}

// Set replaces the clipboard content with text
func (c *WindowsClipboard) Set(text string) error {
	utf16, err := windows.UTF16FromString(text)
	if err != nil {
		return fmt.Errorf("text contains a NUL byte: %w", err)
	}

	return withClipboard(func() error {
		if r, _, err := emptyClipboard.Call(); r == 0 {
			return fmt.Errorf("EmptyClipboard failed: %w", err)
		}

		h, _, err := globalAlloc.Call(gmemMoveable, uintptr(len(utf16)*2))
		if h == 0 {
			return fmt.Errorf("GlobalAlloc failed: %w", err)
		}

		p, _, err := globalLock.Call(h)
		if p == 0 {
			globalFree.Call(h)
			return fmt.Errorf("GlobalLock failed: %w", err)
		}
		copy(unsafe.Slice((*uint16)(unsafe.Pointer(p)), len(utf16)), utf16)
		globalUnlock.Call(h)

		// On success the system owns h
		if r, _, err := setClipboardData.Call(cfUnicodeText, h); r == 0 {
			globalFree.Call(h)
			return fmt.Errorf("SetClipboardData failed: %w", err)
		}
		return nil
	})
}

// SetImage puts a PNG image on the clipboard
func (c *WindowsClipboard) SetImage(png []byte) error {
	return writeImage(png)
}

// withClipboard runs fn with the clipboard open on a locked OS thread.
// OpenClipboard fails while another application holds it, so opening is
// retried for a short while.
func withClipboard(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	opened := false
	for i := 0; i < openAttempts; i++ {
		if r, _, _ := openClipboard.Call(0); r != 0 {
			opened = true
			break
		}
		time.Sleep(openBackoff)
	}
	if !opened {
		return ErrClipboardBusy
	}
	defer closeClipboard.Call()

	return fn()
}
