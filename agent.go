package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"markestedt/clipsync/config"
	"markestedt/clipsync/engine"
	"markestedt/clipsync/hotkey"
	"markestedt/clipsync/platform"
	"markestedt/clipsync/register"
	"markestedt/clipsync/session"
	"markestedt/clipsync/settings"
	"markestedt/clipsync/systray"
	"markestedt/clipsync/transport"
	"markestedt/clipsync/web"
)

// Agent wires the platform facilities, the relay transport and the sync
// engine together, plus the optional control API and tray icon
type Agent struct {
	cfg         *config.Config
	transport   *transport.Client
	coordinator *engine.Coordinator
	notifiers   *engine.Notifiers
	web         *web.Server
	tray        *systray.SystrayManager
}

// NewAgent creates a new agent instance
func NewAgent(cfg *config.Config) (*Agent, error) {
	identity := session.NewIdentity()
	client := transport.NewClient(identity, cfg.TransportOptions())

	notifiers := &engine.Notifiers{engine.LogNotifier{}}

	coordinator, err := engine.New(engine.Deps{
		Registers: register.NewStore(),
		Identity:  identity,
		Settings:  settings.New(cfg.Settings()),
		Transport: client,
		Hotkeys:   hotkey.NewTable(platform.NewHotkeys()),
		Clipboard: platform.NewClipboard(),
		Capturer:  platform.NewCapturer(),
		Injector:  platform.NewInjector(),
		Notifier:  notifiers,
		Endpoint:  cfg.Endpoint(),
		Room:      cfg.Identity.Room,
		UserID:    cfg.Identity.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sync engine: %w", err)
	}

	a := &Agent{
		cfg:         cfg,
		transport:   client,
		coordinator: coordinator,
		notifiers:   notifiers,
	}

	if cfg.Web.Enabled {
		a.web = web.NewServer(coordinator, cfg, cfg.Web.Port)
		*notifiers = append(*notifiers, a.web)
	}
	if cfg.Tray.Enabled {
		webPort := 0
		if cfg.Web.Enabled {
			webPort = cfg.Web.Port
		}
		a.tray = systray.NewSystrayManager(coordinator, webPort, nil)
		*notifiers = append(*notifiers, a.tray)
	}

	return a, nil
}

// Tray returns the tray manager, nil when disabled
func (a *Agent) Tray() *systray.SystrayManager {
	return a.tray
}

// Run starts the agent's main event loop
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- a.coordinator.Run(ctx)
	}()

	if err := a.coordinator.BindHotkeys(a.cfg.HotkeySpecs()); err != nil {
		// The failed bindings were reported; the rest are live
		slog.Warn("Some hotkeys are not active", "error", err)
	}

	if a.web != nil {
		go func() {
			if err := a.web.Start(); err != nil {
				slog.Error("Web server failed", "error", err)
			}
		}()
	}

	if room := a.cfg.Identity.Room; room != "" && a.cfg.Identity.AutoConnect {
		if err := a.coordinator.Join(room, a.cfg.Identity.UserID); err != nil {
			slog.Error("Failed to join room", "room", room, "error", err)
		}
	}

	slog.Info("ClipSync started",
		"endpoint", a.cfg.Endpoint(),
		"room", a.cfg.Identity.Room,
		"user_id", a.cfg.Identity.UserID,
		"hotkeys", len(a.coordinator.Bindings()))

	var err error
	select {
	case <-ctx.Done():
		err = <-loopErr
	case err = <-loopErr:
	}

	a.shutdown()
	return err
}

func (a *Agent) shutdown() {
	if a.web != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.web.Shutdown(ctx); err != nil {
			slog.Warn("Web server shutdown", "error", err)
		}
	}
	a.coordinator.Close()
	a.transport.Close()
}
