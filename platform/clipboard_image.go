package platform

import (
	"fmt"
	"sync"

	xclip "golang.design/x/clipboard"
)

var (
	xclipOnce sync.Once
	xclipErr  error
)

// initXClip initializes the cross-platform clipboard backend once
func initXClip() error {
	xclipOnce.Do(func() {
		xclipErr = xclip.Init()
	})
	if xclipErr != nil {
		return fmt.Errorf("clipboard init failed: %w", xclipErr)
	}
	return nil
}

// writeImage puts PNG bytes on the clipboard as an image
func writeImage(png []byte) error {
	if len(png) == 0 {
		return fmt.Errorf("empty image")
	}
	if err := initXClip(); err != nil {
		return err
	}
	xclip.Write(xclip.FmtImage, png)
	return nil
}
