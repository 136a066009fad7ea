//go:build windows

package platform

import (
	"fmt"
	"time"
	"unicode/utf16"
	"unsafe"
)

var (
	sendInput      = user32.NewProc("SendInput")
	mapVirtualKeyW = user32.NewProc("MapVirtualKeyW")
)

const (
	inputKeyboard    = 1
	keyeventfKeyup   = 0x0002
	keyeventfUnicode = 0x0004
	mapvkVkToVsc     = 0
	vkControl        = 0x11
	vkV              = 0x56
	focusDelay       = 300 * time.Millisecond
	typeChunk        = 64
)

type keyboardInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

type input struct {
	inputType uint32
	ki        keyboardInput
	padding   [8]byte // Padding to match C struct size
}

// WindowsInjector implements the Injector interface with SendInput
type WindowsInjector struct{}

// NewInjector creates a new Windows injector
func NewInjector() Injector {
	return &WindowsInjector{}
}

// Paste simulates Ctrl+V using scan codes for elevated targets
func (p *WindowsInjector) Paste() error {
	time.Sleep(focusDelay)

	ctrlScan, _, _ := mapVirtualKeyW.Call(vkControl, mapvkVkToVsc)
	vScan, _, _ := mapVirtualKeyW.Call(vkV, mapvkVkToVsc)

	key := func(vk, scan uintptr, flags uint32) input {
		return input{
			inputType: inputKeyboard,
			ki:        keyboardInput{wVk: uint16(vk), wScan: uint16(scan), dwFlags: flags},
		}
	}

	return send([]input{
		key(vkControl, ctrlScan, 0),
		key(vkV, vScan, 0),
		key(vkV, vScan, keyeventfKeyup),
		key(vkControl, ctrlScan, keyeventfKeyup),
	})
}

// Type sends text as unicode key events, independent of the keyboard layout
func (p *WindowsInjector) Type(text string) error {
	time.Sleep(focusDelay)

	units := utf16.Encode([]rune(text))
	inputs := make([]input, 0, len(units)*2)
	for _, u := range units {
		inputs = append(inputs,
			input{inputType: inputKeyboard, ki: keyboardInput{wScan: u, dwFlags: keyeventfUnicode}},
			input{inputType: inputKeyboard, ki: keyboardInput{wScan: u, dwFlags: keyeventfUnicode | keyeventfKeyup}},
		)
	}

	for len(inputs) > 0 {
		n := min(len(inputs), typeChunk)
		if err := send(inputs[:n]); err != nil {
			return err
		}
		inputs = inputs[n:]
	}
	return nil
}

func send(inputs []input) error {
	if len(inputs) == 0 {
		return nil
	}

	ret, _, err := sendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if ret == 0 {
		return fmt.Errorf("SendInput failed: %w", err)
	}

	// Small delay to ensure input is processed
	time.Sleep(20 * time.Millisecond)
	return nil
}
