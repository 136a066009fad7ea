package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"markestedt/clipsync/hotkey"
	"markestedt/clipsync/platform"
	"markestedt/clipsync/protocol"
	"markestedt/clipsync/session"
	"markestedt/clipsync/transport"
)

type fakeTransport struct {
	mu          sync.Mutex
	identity    *session.Identity
	events      chan transport.Event
	status      session.Status
	sent        []protocol.Message
	endpoints   []string
	disconnects int
}

func newFakeTransport(id *session.Identity) *fakeTransport {
	return &fakeTransport{identity: id, events: make(chan transport.Event, 16)}
}

func (f *fakeTransport) Connect(endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoints = append(f.endpoints, endpoint)
	f.status = session.Connected
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.status = session.Disconnected
	f.identity.Clear()
}

func (f *fakeTransport) Register(room, userID string) error {
	f.identity.Set(room, userID)
	return nil
}

func (f *fakeTransport) Send(msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != session.Connected {
		return transport.ErrNotConnected
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Events() <-chan transport.Event {
	return f.events
}

func (f *fakeTransport) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeTransport) setStatus(s session.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

func (f *fakeTransport) deliver(ev transport.Event) {
	f.events <- ev
}

func (f *fakeTransport) sentMessages() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Message(nil), f.sent...)
}

type fakeClipboard struct {
	mu     sync.Mutex
	text   string
	sets   []string
	images [][]byte
	err    error
}

func (f *fakeClipboard) Get() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, f.err
}

func (f *fakeClipboard) Set(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = text
	f.sets = append(f.sets, text)
	return nil
}

func (f *fakeClipboard) SetImage(png []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, png)
	return nil
}

func (f *fakeClipboard) put(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = text
}

func (f *fakeClipboard) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sets...)
}

func (f *fakeClipboard) imageWrites() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.images...)
}

type fakeInjector struct {
	mu     sync.Mutex
	pastes int
	typed  []string
	err    error
}

func (f *fakeInjector) Paste() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pastes++
	return f.err
}

func (f *fakeInjector) Type(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed = append(f.typed, text)
	return f.err
}

func (f *fakeInjector) counts() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pastes, append([]string(nil), f.typed...)
}

type fakeCapturer struct {
	monitors int
	png      []byte
	err      error
	gate     chan struct{}
	calls    atomic.Int32
	lastMon  atomic.Int32
}

func (f *fakeCapturer) Monitors() int {
	return f.monitors
}

func (f *fakeCapturer) Capture(monitor int) ([]byte, error) {
	f.calls.Add(1)
	f.lastMon.Store(int32(monitor))
	if f.gate != nil {
		<-f.gate
	}
	return f.png, f.err
}

// fakeKeys is an OS hotkey facility driven by the test
type fakeKeys struct {
	mu         sync.Mutex
	registered map[platform.KeyCombo]func()
	foreign    map[platform.KeyCombo]bool
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{
		registered: make(map[platform.KeyCombo]func()),
		foreign:    make(map[platform.KeyCombo]bool),
	}
}

func (f *fakeKeys) IsComboFree(kc platform.KeyCombo) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ours := f.registered[kc]
	return !ours && !f.foreign[kc]
}

func (f *fakeKeys) Register(kc platform.KeyCombo, cb func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[kc] = cb
	return nil
}

func (f *fakeKeys) Unregister(kc platform.KeyCombo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registered, kc)
	return nil
}

func (f *fakeKeys) claim(t *testing.T, combo string) {
	t.Helper()
	kc, err := hotkey.Parse(combo)
	if err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	f.foreign[kc] = true
	f.mu.Unlock()
}

func (f *fakeKeys) press(t *testing.T, combo string) {
	t.Helper()
	kc, err := hotkey.Parse(combo)
	if err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	cb := f.registered[kc]
	f.mu.Unlock()
	if cb == nil {
		t.Fatalf("combo %s is not registered", combo)
	}
	cb()
}

type notice struct {
	level slog.Level
	text  string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (r *recordingNotifier) Notify(level slog.Level, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice{level, text})
}

func (r *recordingNotifier) has(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notices {
		if strings.Contains(n.text, substr) {
			return true
		}
	}
	return false
}

func (r *recordingNotifier) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, n := range r.notices {
		fmt.Fprintf(&b, "[%s] %s\n", n.level, n.text)
	}
	return b.String()
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
