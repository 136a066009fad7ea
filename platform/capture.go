package platform

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/go-vgo/robotgo"
)

// ScreenCapturer implements the Capturer interface with robotgo
type ScreenCapturer struct{}

// NewCapturer creates a new screen capturer
func NewCapturer() Capturer {
	return &ScreenCapturer{}
}

// Monitors returns the number of attached displays
func (c *ScreenCapturer) Monitors() int {
	return robotgo.DisplaysNum()
}

// Capture grabs the full area of the given monitor as PNG
func (c *ScreenCapturer) Capture(monitor int) ([]byte, error) {
	if n := c.Monitors(); monitor < 0 || monitor >= n {
		return nil, fmt.Errorf("monitor %d not found (%d attached)", monitor, n)
	}

	x, y, w, h := robotgo.GetDisplayBounds(monitor)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("monitor %d has no visible area", monitor)
	}

	bitmap := robotgo.CaptureScreen(x, y, w, h)
	if bitmap == nil {
		return nil, fmt.Errorf("capture of monitor %d failed", monitor)
	}
	defer robotgo.FreeBitmap(bitmap)

	img := robotgo.ToImage(bitmap)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}
