// Package engine runs the clipboard register synchronization loop: hotkey
// actions against the local registers and the relay session, and inbound
// relay messages back into the registers, the message log and the clipboard.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"markestedt/clipsync/hotkey"
	"markestedt/clipsync/platform"
	"markestedt/clipsync/protocol"
	"markestedt/clipsync/register"
	"markestedt/clipsync/session"
	"markestedt/clipsync/settings"
	"markestedt/clipsync/transport"
)

// ErrClosed is returned for work submitted after the coordinator stopped
var ErrClosed = errors.New("coordinator closed")

// Transport is the relay session the coordinator drives
type Transport interface {
	Connect(endpoint string) error
	Disconnect()
	Register(room, userID string) error
	Send(msg protocol.Message) error
	Events() <-chan transport.Event
	Status() session.Status
}

// Notifier presents short user-visible notices
type Notifier interface {
	Notify(level slog.Level, text string)
}

// LogNotifier writes notices to the default logger
type LogNotifier struct{}

func (LogNotifier) Notify(level slog.Level, text string) {
	slog.Log(context.Background(), level, text)
}

// Notifiers fans a notice out to several notifiers in order
type Notifiers []Notifier

func (ns Notifiers) Notify(level slog.Level, text string) {
	for _, n := range ns {
		if n != nil {
			n.Notify(level, text)
		}
	}
}

// Deps are the collaborators of a Coordinator. Transport, Hotkeys and
// Clipboard are required.
type Deps struct {
	Registers *register.Store
	Identity  *session.Identity
	Settings  *settings.Settings
	Transport Transport
	Hotkeys   *hotkey.Table
	Clipboard platform.Clipboard
	Capturer  platform.Capturer
	Injector  platform.Injector
	Notifier  Notifier
	Endpoint  string
	// Room and UserID are rejoined by Connect when no room is joined
	Room   string
	UserID string
	Now    func() time.Time
}

// Coordinator serializes hotkey actions and relay events on one goroutine
type Coordinator struct {
	registers *register.Store
	identity  *session.Identity
	settings  *settings.Settings
	transport Transport
	hotkeys   *hotkey.Table
	clipboard platform.Clipboard
	capturer  platform.Capturer
	injector  platform.Injector
	notifier  Notifier
	now       func() time.Time

	log   *MessageLog
	tasks chan func()
	done  chan struct{}
	alive atomic.Bool
	once  sync.Once

	mu       sync.Mutex
	endpoint string
	room     string
	userID   string
}

// New creates a coordinator. Nothing runs until Run is called.
func New(d Deps) (*Coordinator, error) {
	if d.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if d.Hotkeys == nil {
		return nil, fmt.Errorf("hotkey table is required")
	}
	if d.Clipboard == nil {
		return nil, fmt.Errorf("clipboard is required")
	}
	if d.Registers == nil {
		d.Registers = register.NewStore()
	}
	if d.Identity == nil {
		d.Identity = session.NewIdentity()
	}
	if d.Settings == nil {
		d.Settings = settings.New(settings.Defaults())
	}
	if d.Notifier == nil {
		d.Notifier = LogNotifier{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	c := &Coordinator{
		registers: d.Registers,
		identity:  d.Identity,
		settings:  d.Settings,
		transport: d.Transport,
		hotkeys:   d.Hotkeys,
		clipboard: d.Clipboard,
		capturer:  d.Capturer,
		injector:  d.Injector,
		notifier:  d.Notifier,
		now:       d.Now,
		log:       NewMessageLog(),
		tasks:     make(chan func(), 64),
		done:      make(chan struct{}),
		endpoint:  d.Endpoint,
		room:      strings.TrimSpace(d.Room),
		userID:    strings.TrimSpace(d.UserID),
	}
	c.alive.Store(true)
	return c, nil
}

// Run processes hotkey actions and transport events until ctx is done or
// Close is called. It closes the coordinator on return.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.Close()

	events := c.transport.Events()
	slog.Info("Coordinator started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case ev := <-events:
			c.handleEvent(ev)
		case task := <-c.tasks:
			task()
		}
	}
}

// Close stops the loop, releases every hotkey and ends the relay session.
// Results of in-flight captures and injections are discarded.
func (c *Coordinator) Close() {
	c.once.Do(func() {
		c.alive.Store(false)
		close(c.done)
		c.hotkeys.UnbindAll()
		c.transport.Disconnect()
		slog.Info("Coordinator stopped")
	})
}

// post queues fn on the loop. It reports false once the coordinator is closed.
func (c *Coordinator) post(fn func()) bool {
	if !c.alive.Load() {
		return false
	}
	select {
	case c.tasks <- fn:
		return true
	case <-c.done:
		return false
	}
}

// call runs fn on the loop and waits for it to finish
func (c *Coordinator) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !c.post(func() {
		fn()
		close(finished)
	}) {
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Coordinator) notify(level slog.Level, text string) {
	c.notifier.Notify(level, text)
}

// BindHotkeys binds every configured combo. Failures are reported and
// joined into the returned error; the remaining combos are still bound.
func (c *Coordinator) BindHotkeys(specs []hotkey.Spec) error {
	var errs []error
	for _, s := range specs {
		if s.Combo == "" {
			continue
		}
		if err := c.hotkeys.Bind(s.Combo, s.Action, c.onHotkey); err != nil {
			slog.Error("Failed to bind hotkey", "combo", s.Combo, "action", s.Action.String(), "error", err)
			c.notify(slog.LevelError, fmt.Sprintf("Hotkey %s could not be registered: %v", s.Combo, err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Rebind moves the action bound to oldCombo onto newCombo. On failure the
// old combo keeps working.
func (c *Coordinator) Rebind(oldCombo, newCombo string) error {
	action, ok := c.hotkeys.Lookup(oldCombo)
	if !ok {
		return fmt.Errorf("hotkey %s is not bound", oldCombo)
	}
	if err := c.hotkeys.Rebind(oldCombo, newCombo, action, c.onHotkey); err != nil {
		c.notify(slog.LevelError, fmt.Sprintf("Hotkey %s could not be registered: %v", newCombo, err))
		return err
	}
	slog.Info("Hotkey rebound", "from", oldCombo, "to", newCombo, "action", action.String())
	return nil
}

// Bindings lists the active hotkeys
func (c *Coordinator) Bindings() []hotkey.Binding {
	return c.hotkeys.Bindings()
}

// onHotkey runs on the facility's goroutine and hands the action to the loop
func (c *Coordinator) onHotkey(a hotkey.Action) {
	if !c.post(func() { c.execute(a) }) {
		slog.Debug("Dropping hotkey after shutdown", "action", a.String())
	}
}

func (c *Coordinator) execute(a hotkey.Action) {
	slog.Debug("Hotkey action", "action", a.String())

	switch a.Kind {
	case hotkey.SaveToRegister:
		c.saveToRegister(a.Register)
	case hotkey.PasteFromRegister:
		c.pasteFromRegister(a.Register)
	case hotkey.TypeFromRegister:
		c.typeFromRegister(a.Register)
	case hotkey.SendClipboardText:
		c.sendClipboardText()
	case hotkey.Screenshot:
		c.screenshot()
	default:
		slog.Warn("Unknown hotkey action", "action", a.String())
	}
}

func (c *Coordinator) saveToRegister(i int) {
	if !c.settings.RegistersEnabled() {
		c.notify(slog.LevelWarn, "Registers are disabled")
		return
	}

	text, err := c.clipboard.Get()
	if err != nil {
		c.notify(slog.LevelError, fmt.Sprintf("Failed to read clipboard: %v", err))
		return
	}
	if text == "" {
		c.notify(slog.LevelWarn, "Clipboard is empty")
		return
	}

	if err := c.registers.Save(i, text); err != nil {
		c.notify(slog.LevelError, fmt.Sprintf("Failed to save register: %v", err))
		return
	}

	if !c.settings.SyncEnabled() {
		c.notify(slog.LevelInfo, fmt.Sprintf("Saved to register %d", i+1))
		return
	}

	msg := protocol.NewRegisterSync(c.identity.UserID(), text, i, c.now())
	if err := c.transport.Send(msg); err != nil {
		slog.Warn("Register sync failed", "register", i+1, "error", err)
		c.notify(slog.LevelWarn, fmt.Sprintf("Saved to register %d, sync failed: %v", i+1, err))
		return
	}
	c.notify(slog.LevelInfo, fmt.Sprintf("Saved to register %d and synced", i+1))
}

// registerContent reads register i for paste and type, reporting why it
// cannot be used
func (c *Coordinator) registerContent(i int) (string, bool) {
	if !c.settings.RegistersEnabled() {
		c.notify(slog.LevelWarn, "Registers are disabled")
		return "", false
	}

	content, err := c.registers.Read(i)
	if err != nil {
		c.notify(slog.LevelError, fmt.Sprintf("Failed to read register: %v", err))
		return "", false
	}
	if content == "" {
		c.notify(slog.LevelWarn, fmt.Sprintf("Register %d is empty", i+1))
		return "", false
	}
	return content, true
}

func (c *Coordinator) pasteFromRegister(i int) {
	content, ok := c.registerContent(i)
	if !ok {
		return
	}
	if c.injector == nil {
		c.notify(slog.LevelError, "Paste is not available on this platform")
		return
	}
	if err := c.clipboard.Set(content); err != nil {
		c.notify(slog.LevelError, fmt.Sprintf("Failed to write clipboard: %v", err))
		return
	}
	c.inject(fmt.Sprintf("Failed to paste register %d", i+1), c.injector.Paste)
}

func (c *Coordinator) typeFromRegister(i int) {
	content, ok := c.registerContent(i)
	if !ok {
		return
	}
	if c.injector == nil {
		c.notify(slog.LevelError, "Typing is not available on this platform")
		return
	}
	c.inject(fmt.Sprintf("Failed to type register %d", i+1), func() error {
		return c.injector.Type(content)
	})
}

// inject runs a keyboard injection off the loop; it waits for focus to
// settle. Failures are reported back on the loop.
func (c *Coordinator) inject(failure string, fn func() error) {
	go func() {
		err := fn()
		if err == nil {
			return
		}
		slog.Error("Injection failed", "error", err)
		c.post(func() {
			c.notify(slog.LevelError, fmt.Sprintf("%s: %v", failure, err))
		})
	}()
}

func (c *Coordinator) sendClipboardText() {
	text, err := c.clipboard.Get()
	if err != nil {
		c.notify(slog.LevelError, fmt.Sprintf("Failed to read clipboard: %v", err))
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		c.notify(slog.LevelWarn, "Clipboard is empty")
		return
	}

	if err := c.transport.Send(protocol.NewText(c.identity.UserID(), text, c.now())); err != nil {
		c.notify(slog.LevelError, fmt.Sprintf("Failed to send text: %v", err))
		return
	}
	slog.Info("Sent clipboard text", "length", len(text))
}

func (c *Coordinator) screenshot() {
	if c.capturer == nil {
		c.notify(slog.LevelError, "Screen capture is not available on this platform")
		return
	}
	if c.transport.Status() != session.Connected {
		c.notify(slog.LevelError, fmt.Sprintf("Failed to send screenshot: %v", transport.ErrNotConnected))
		return
	}

	monitor := c.settings.Monitor()
	if n := c.capturer.Monitors(); n > 0 && monitor >= n {
		c.notify(slog.LevelError, fmt.Sprintf("Monitor %d is not available (%d connected)", monitor, n))
		return
	}

	go func() {
		png, err := c.capturer.Capture(monitor)
		c.post(func() { c.sendScreenshot(png, err) })
	}()
}

func (c *Coordinator) sendScreenshot(png []byte, err error) {
	if err != nil {
		slog.Error("Screen capture failed", "error", err)
		c.notify(slog.LevelError, fmt.Sprintf("Screenshot failed: %v", err))
		return
	}
	if len(png) == 0 {
		c.notify(slog.LevelError, "Screenshot failed: empty image")
		return
	}

	msg := protocol.NewImage(c.identity.UserID(), protocol.EncodeDataURL("image/png", png), c.now())
	if err := c.transport.Send(msg); err != nil {
		c.notify(slog.LevelError, fmt.Sprintf("Failed to send screenshot: %v", err))
		return
	}
	slog.Info("Sent screenshot", "bytes", len(png))
}

func (c *Coordinator) handleEvent(ev transport.Event) {
	switch ev.Type {
	case transport.EventConnected:
		c.notify(slog.LevelInfo, "Connected to server")

	case transport.EventDisconnected:
		c.log.Clear()
		c.notify(slog.LevelWarn, "Disconnected from server")

	case transport.EventMessage:
		c.ingest(ev.Message)

	case transport.EventHistory:
		c.replayHistory(ev.History)

	case transport.EventHistoryFailed:
		c.notify(slog.LevelError, "Failed to load history: "+ev.Reason)

	case transport.EventRegistrationRejected:
		c.notify(slog.LevelError, "Registration rejected: "+ev.Reason)

	case transport.EventConnectError:
		if ev.Attempt == 0 {
			c.notify(slog.LevelWarn, "Connection error: "+ev.Reason)
		}

	case transport.EventReconnectAttempt:
		c.notify(slog.LevelInfo, fmt.Sprintf("Reconnecting (attempt %d)", ev.Attempt))

	case transport.EventReconnectFailed:
		c.notify(slog.LevelError, "Could not reconnect to server")
	}
}

// ingest applies one relay message. Messages that break the protocol
// invariants are dropped before anything is touched.
func (c *Coordinator) ingest(msg protocol.Message) {
	if err := msg.Validate(); err != nil {
		slog.Warn("Dropping invalid message", "origin", msg.OriginID, "error", err)
		return
	}

	c.log.Append(msg)
	self := msg.OriginID == c.identity.UserID()

	if msg.HasRegister() && c.settings.RegistersEnabled() {
		i := *msg.RegisterIndex
		if err := c.registers.Save(i, msg.Content); err != nil {
			slog.Error("Failed to apply register sync", "register", i+1, "error", err)
		} else if !self {
			c.notify(slog.LevelInfo, fmt.Sprintf("Register %d updated", i+1))
		}
	}

	c.autoCopy(msg, self)
}

func (c *Coordinator) autoCopy(msg protocol.Message, self bool) {
	switch msg.Kind {
	case protocol.KindText:
		if !c.settings.AutoCopyText() || self {
			return
		}
		if err := c.clipboard.Set(msg.Content); err != nil {
			slog.Error("Auto-copy failed", "error", err)
		}

	case protocol.KindImage:
		if !c.settings.AutoCopyImage() {
			return
		}
		_, data, err := protocol.DecodeDataURL(msg.Content)
		if err != nil {
			slog.Warn("Cannot auto-copy image", "error", err)
			return
		}
		if err := c.clipboard.SetImage(data); err != nil {
			slog.Error("Auto-copy failed", "error", err)
		}
	}
}

// replayHistory replaces the log with the backlog, never merging
func (c *Coordinator) replayHistory(history []protocol.Message) {
	valid := make([]protocol.Message, 0, len(history))
	for _, m := range history {
		if err := m.Validate(); err != nil {
			slog.Warn("Dropping invalid history entry", "origin", m.OriginID, "error", err)
			continue
		}
		valid = append(valid, m)
	}
	c.log.Replace(valid)
	slog.Info("History received", "count", len(valid))
}

// Join sets the room identity and connects. The room is remembered for
// later Connect calls.
func (c *Coordinator) Join(room, userID string) error {
	room = strings.TrimSpace(room)
	userID = strings.TrimSpace(userID)
	if room == "" || userID == "" {
		return fmt.Errorf("room and user id are required")
	}
	if err := c.transport.Register(room, userID); err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}

	c.mu.Lock()
	c.room, c.userID = room, userID
	c.mu.Unlock()

	return c.connect()
}

// Connect opens the relay session. When no room is joined, as after
// Disconnect, the last joined or configured room is joined again.
func (c *Coordinator) Connect() error {
	if _, _, ok := c.identity.Credentials(); ok {
		return c.connect()
	}

	c.mu.Lock()
	room, userID := c.room, c.userID
	c.mu.Unlock()
	if room == "" || userID == "" {
		return fmt.Errorf("no room joined")
	}
	return c.Join(room, userID)
}

func (c *Coordinator) connect() error {
	if err := c.transport.Connect(c.Endpoint()); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// Disconnect ends the session and forgets the room identity
func (c *Coordinator) Disconnect() {
	c.transport.Disconnect()
	c.log.Clear()
}

// Endpoint returns the relay URL used by Connect
func (c *Coordinator) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// SetEndpoint changes the relay URL for the next Connect
func (c *Coordinator) SetEndpoint(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoint = endpoint
}

// ClearRegisters empties every register on the loop
func (c *Coordinator) ClearRegisters(ctx context.Context) error {
	return c.call(ctx, func() {
		c.registers.ClearAll()
		c.notify(slog.LevelInfo, "Registers cleared")
	})
}

// UpdateSettings replaces the runtime flags and returns the stored values
func (c *Coordinator) UpdateSettings(v settings.Values) settings.Values {
	c.settings.Update(v)
	return c.settings.Get()
}

// Settings returns the runtime flags
func (c *Coordinator) Settings() settings.Values {
	return c.settings.Get()
}

// Registers returns the register contents
func (c *Coordinator) Registers() [register.Count]string {
	return c.registers.Snapshot()
}

// Messages returns the visible message log
func (c *Coordinator) Messages() []protocol.Message {
	return c.log.Snapshot()
}

// Status returns the relay connection status
func (c *Coordinator) Status() session.Status {
	return c.transport.Status()
}

// Identity returns the joined room and user id
func (c *Coordinator) Identity() (room, userID string) {
	return c.identity.Room(), c.identity.UserID()
}
