//go:build !windows

package platform

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-vgo/robotgo"
)

const focusDelay = 300 * time.Millisecond

// RobotInjector implements the Injector interface with robotgo
type RobotInjector struct{}

// NewInjector creates a new injector
func NewInjector() Injector {
	return &RobotInjector{}
}

// Paste presses the platform paste chord (Cmd+V on macOS, Ctrl+V elsewhere)
func (p *RobotInjector) Paste() error {
	time.Sleep(focusDelay)

	modifier := "ctrl"
	if runtime.GOOS == "darwin" {
		modifier = "cmd"
	}
	if err := robotgo.KeyTap("v", modifier); err != nil {
		return fmt.Errorf("paste keystroke failed: %w", err)
	}
	return nil
}

// Type types text into the focused window
func (p *RobotInjector) Type(text string) error {
	time.Sleep(focusDelay)
	robotgo.TypeStr(text)
	return nil
}
