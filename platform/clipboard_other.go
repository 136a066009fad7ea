//go:build !windows

package platform

import (
	xclip "golang.design/x/clipboard"
)

// XClipboard implements the Clipboard interface on macOS and Linux
type XClipboard struct{}

// NewClipboard creates a new clipboard instance
func NewClipboard() Clipboard {
	return &XClipboard{}
}

// Get retrieves text from the clipboard
func (c *XClipboard) Get() (string, error) {
	if err := initXClip(); err != nil {
		return "", err
	}
	return string(xclip.Read(xclip.FmtText)), nil
}

// Set sets text to the clipboard
func (c *XClipboard) Set(text string) error {
	if err := initXClip(); err != nil {
		return err
	}
	xclip.Write(xclip.FmtText, []byte(text))
	return nil
}

// SetImage puts a PNG image on the clipboard
func (c *XClipboard) SetImage(png []byte) error {
	return writeImage(png)
}
