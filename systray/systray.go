package systray

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"markestedt/clipsync/session"
)

const statusRefresh = 2 * time.Second

// Controller is the part of the sync engine the tray menu drives
type Controller interface {
	Status() session.Status
	Identity() (room, userID string)
	Connect() error
	Disconnect()
	ClearRegisters(ctx context.Context) error
}

// SystrayManager manages the system tray icon and menu
type SystrayManager struct {
	ctrl     Controller
	webPort  int
	iconData []byte
	quit     chan struct{}
	quitOnce sync.Once

	mu    sync.Mutex
	ready bool
	last  string
}

// NewSystrayManager creates a new systray manager. A webPort of 0 hides the
// web UI entry.
func NewSystrayManager(ctrl Controller, webPort int, iconData []byte) *SystrayManager {
	return &SystrayManager{
		ctrl:     ctrl,
		webPort:  webPort,
		iconData: iconData,
		quit:     make(chan struct{}),
	}
}

// Run starts the system tray (blocking call)
func (m *SystrayManager) Run() {
	systray.Run(m.onReady, m.onExit)
}

// Stop stops the system tray
func (m *SystrayManager) Stop() {
	systray.Quit()
}

// WaitForQuit returns a channel that will be closed when user clicks Quit
func (m *SystrayManager) WaitForQuit() <-chan struct{} {
	return m.quit
}

// Notify shows the latest notice in the tooltip
func (m *SystrayManager) Notify(level slog.Level, text string) {
	m.mu.Lock()
	m.last = text
	ready := m.ready
	m.mu.Unlock()

	if ready {
		systray.SetTooltip(tooltip(text))
	}
}

// onReady is called when the systray is ready
func (m *SystrayManager) onReady() {
	// Set icon
	if len(m.iconData) > 0 {
		systray.SetIcon(m.iconData)
	}

	systray.SetTitle("ClipSync")

	m.mu.Lock()
	m.ready = true
	systray.SetTooltip(tooltip(m.last))
	m.mu.Unlock()

	// Add menu items
	mStatus := systray.AddMenuItem(statusLine(m.ctrl.Status(), roomOf(m.ctrl)), "Relay connection")
	mStatus.Disable()
	systray.AddSeparator()
	mConnect := systray.AddMenuItem("Connect", "Connect to the relay")
	mDisconnect := systray.AddMenuItem("Disconnect", "Leave the room")
	mClear := systray.AddMenuItem("Clear registers", "Empty all registers")

	var webClicked <-chan struct{}
	if m.webPort > 0 {
		mOpenWebUI := systray.AddMenuItem("Open control API", "Open the local control API")
		webClicked = mOpenWebUI.ClickedCh
	}

	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Exit ClipSync")

	// Handle menu clicks
	go func() {
		ticker := time.NewTicker(statusRefresh)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				mStatus.SetTitle(statusLine(m.ctrl.Status(), roomOf(m.ctrl)))
			case <-mConnect.ClickedCh:
				if err := m.ctrl.Connect(); err != nil {
					slog.Warn("Connect from tray failed", "error", err)
					m.Notify(slog.LevelWarn, err.Error())
				}
			case <-mDisconnect.ClickedCh:
				m.ctrl.Disconnect()
			case <-mClear.ClickedCh:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := m.ctrl.ClearRegisters(ctx); err != nil {
					slog.Warn("Failed to clear registers", "error", err)
				}
				cancel()
			case <-webClicked:
				m.openWebUI()
			case <-mQuit.ClickedCh:
				slog.Info("User requested quit from system tray")
				m.quitOnce.Do(func() { close(m.quit) })
				systray.Quit()
				return
			}
		}
	}()
}

// onExit is called when the systray is exiting
func (m *SystrayManager) onExit() {
	slog.Info("System tray exited")
}

func roomOf(c Controller) string {
	room, _ := c.Identity()
	return room
}

func statusLine(s session.Status, room string) string {
	if room == "" {
		return fmt.Sprintf("Status: %s", s)
	}
	return fmt.Sprintf("Status: %s (%s)", s, room)
}

// tooltip prefixes the app name and keeps the text within what the
// shell displays
func tooltip(text string) string {
	const maxLen = 120
	if text == "" {
		return "ClipSync - Clipboard registers"
	}
	r := []rune("ClipSync: " + text)
	if len(r) > maxLen {
		r = append(r[:maxLen-3], '.', '.', '.')
	}
	return string(r)
}

// openWebUI opens the web UI in the default browser
func (m *SystrayManager) openWebUI() {
	url := fmt.Sprintf("http://localhost:%d/api/status", m.webPort)
	slog.Info("Opening web UI", "url", url)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	default:
		slog.Error("Unsupported platform for opening browser", "platform", runtime.GOOS)
		return
	}

	if err := cmd.Start(); err != nil {
		slog.Error("Failed to open web UI", "error", err)
	}
}
