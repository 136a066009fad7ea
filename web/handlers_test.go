package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"markestedt/clipsync/config"
	"markestedt/clipsync/hotkey"
	"markestedt/clipsync/protocol"
	"markestedt/clipsync/register"
	"markestedt/clipsync/session"
	"markestedt/clipsync/settings"
)

type fakeEngine struct {
	mu         sync.Mutex
	status     session.Status
	room, user string
	endpoint   string
	registers  [register.Count]string
	messages   []protocol.Message
	settings   *settings.Settings
	bindings   map[string]hotkey.Action
	rebindErr  error
	connectErr error
	clearErr   error
	joins      int
	connects   int
	disconnect int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		endpoint: "ws://localhost:8989/ws",
		settings: settings.New(settings.Defaults()),
		bindings: map[string]hotkey.Action{
			"Ctrl+Alt+J": {Kind: hotkey.SendClipboardText},
			"Ctrl+Alt+1": {Kind: hotkey.SaveToRegister, Register: 0},
		},
	}
}

func (f *fakeEngine) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeEngine) Identity() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.room, f.user
}

func (f *fakeEngine) Endpoint() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.endpoint
}

func (f *fakeEngine) SetEndpoint(endpoint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoint = endpoint
}

func (f *fakeEngine) Registers() [register.Count]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registers
}

func (f *fakeEngine) ClearRegisters(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.registers = [register.Count]string{}
	return nil
}

func (f *fakeEngine) Messages() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Message(nil), f.messages...)
}

func (f *fakeEngine) Settings() settings.Values { return f.settings.Get() }

func (f *fakeEngine) UpdateSettings(v settings.Values) settings.Values {
	f.settings.Update(v)
	return f.settings.Get()
}

func (f *fakeEngine) Bindings() []hotkey.Binding {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []hotkey.Binding
	for combo, a := range f.bindings {
		out = append(out, hotkey.Binding{Combo: combo, Action: a})
	}
	return out
}

func (f *fakeEngine) Rebind(oldCombo, newCombo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rebindErr != nil {
		return f.rebindErr
	}
	a, ok := f.bindings[oldCombo]
	if !ok {
		return fmt.Errorf("hotkey %s is not bound", oldCombo)
	}
	delete(f.bindings, oldCombo)
	f.bindings[newCombo] = a
	return nil
}

func (f *fakeEngine) Join(room, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
	f.room, f.user = room, userID
	f.status = session.Connected
	return nil
}

func (f *fakeEngine) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.room == "" {
		return errors.New("no room joined")
	}
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connects++
	f.status = session.Connected
	return nil
}

func (f *fakeEngine) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnect++
	f.room, f.user = "", ""
	f.status = session.Disconnected
}

func newTestServer(t *testing.T) (*Server, *fakeEngine, *config.Config) {
	t.Helper()
	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatal(err)
	}
	eng := newFakeEngine()
	return NewServer(eng, cfg, 0), eng, cfg
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestStatus(t *testing.T) {
	srv, eng, _ := newTestServer(t)
	eng.room, eng.user, eng.status = "demo", "U1", session.Connected

	rec := do(t, srv.Handler(), http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var got StatusResponse
	decode(t, rec, &got)
	want := StatusResponse{Status: "connected", Connected: true, Room: "demo", UserID: "U1", Endpoint: "ws://localhost:8989/ws"}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if rec := do(t, srv.Handler(), http.MethodPost, "/api/status", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status code = %d", rec.Code)
	}
}

func TestRegisters(t *testing.T) {
	srv, eng, _ := newTestServer(t)
	eng.registers[1] = "hello"

	rec := do(t, srv.Handler(), http.MethodGet, "/api/registers", "")
	var got struct {
		Registers []string `json:"registers"`
	}
	decode(t, rec, &got)
	if len(got.Registers) != register.Count || got.Registers[1] != "hello" {
		t.Fatalf("registers = %q", got.Registers)
	}

	if rec := do(t, srv.Handler(), http.MethodDelete, "/api/registers", ""); rec.Code != http.StatusOK {
		t.Fatalf("DELETE status code = %d", rec.Code)
	}
	if eng.Registers()[1] != "" {
		t.Error("registers were not cleared")
	}

	eng.clearErr = errors.New("coordinator closed")
	if rec := do(t, srv.Handler(), http.MethodDelete, "/api/registers", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("DELETE after close status code = %d", rec.Code)
	}
}

func TestMessagesLimit(t *testing.T) {
	srv, eng, _ := newTestServer(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		eng.messages = append(eng.messages, protocol.NewText("U2", fmt.Sprintf("m%d", i), at))
	}

	var got struct {
		Messages []protocol.Message `json:"messages"`
		Total    int                `json:"total"`
	}
	decode(t, do(t, srv.Handler(), http.MethodGet, "/api/messages?limit=2", ""), &got)
	if got.Total != 4 || len(got.Messages) != 2 || got.Messages[0].Content != "m2" || got.Messages[1].Content != "m3" {
		t.Errorf("unexpected page %+v", got)
	}

	srv2, _, _ := newTestServer(t)
	rec := do(t, srv2.Handler(), http.MethodGet, "/api/messages", "")
	if !strings.Contains(rec.Body.String(), `"messages":[]`) {
		t.Errorf("empty log should encode as an empty list: %s", rec.Body.String())
	}
}

func TestPutConfig(t *testing.T) {
	srv, eng, cfg := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodPut, "/api/config", `{"autoCopyImage":true,"registersEnabled":false,"serverAddress":"10.0.0.9","serverPort":9000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d: %s", rec.Code, rec.Body.String())
	}

	var got ConfigResponse
	decode(t, rec, &got)
	if !got.AutoCopyImage || got.RegistersEnabled || got.SyncEnabled {
		t.Errorf("settings = %+v", got)
	}
	if eng.Endpoint() != "ws://10.0.0.9:9000/ws" {
		t.Errorf("endpoint = %q", eng.Endpoint())
	}

	reloaded, err := config.LoadFrom(cfg.Path())
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Server.Address != "10.0.0.9" || reloaded.Registers.Enabled || reloaded.Registers.Sync || !reloaded.Clipboard.AutoCopyImage {
		t.Errorf("config not persisted: %+v", reloaded)
	}
}

func TestPutConfigRejectsInvalid(t *testing.T) {
	srv, eng, cfg := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodPut, "/api/config", `{"serverScheme":"http","autoCopyText":false}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d", rec.Code)
	}
	if cfg.Server.Scheme != "ws" {
		t.Errorf("rejected scheme was kept: %q", cfg.Server.Scheme)
	}
	if !eng.Settings().AutoCopyText {
		t.Error("settings changed by a rejected request")
	}

	if rec := do(t, srv.Handler(), http.MethodPut, "/api/config", `{bad`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status code = %d", rec.Code)
	}
}

func TestRebindHotkey(t *testing.T) {
	srv, eng, cfg := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodPut, "/api/hotkeys", `{"old":"ctrl+alt+1","new":"alt+shift+1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := eng.bindings["Alt+Shift+1"]; !ok {
		t.Errorf("engine bindings = %v", eng.bindings)
	}

	reloaded, err := config.LoadFrom(cfg.Path())
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Hotkeys.Save[0] != "Alt+Shift+1" {
		t.Errorf("save[0] = %q", reloaded.Hotkeys.Save[0])
	}
}

func TestRebindHotkeyErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"bad combo", `{"old":"ctrl+alt+j","new":"ctrl+bogus+k"}`, nil, http.StatusBadRequest},
		{"not bound", `{"old":"ctrl+alt+9","new":"ctrl+alt+8"}`, nil, http.StatusNotFound},
		{"taken", `{"old":"ctrl+alt+j","new":"ctrl+alt+t"}`, &hotkey.AlreadyBoundError{Combo: "Ctrl+Alt+T"}, http.StatusConflict},
		{"facility failure", `{"old":"ctrl+alt+j","new":"ctrl+alt+t"}`, errors.New("RegisterHotKey failed"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, eng, _ := newTestServer(t)
			eng.rebindErr = tt.err
			rec := do(t, srv.Handler(), http.MethodPut, "/api/hotkeys", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status code = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if _, ok := eng.bindings["Ctrl+Alt+J"]; !ok {
				t.Error("old binding should survive a failed rebind")
			}
		})
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	srv, eng, cfg := newTestServer(t)

	if rec := do(t, srv.Handler(), http.MethodPost, "/api/connect", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("connect without room status code = %d", rec.Code)
	}

	rec := do(t, srv.Handler(), http.MethodPost, "/api/connect", `{"room":" demo "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("join status code = %d: %s", rec.Code, rec.Body.String())
	}
	room, user := eng.Identity()
	if room != "demo" || user != cfg.Identity.UserID {
		t.Errorf("joined as %q/%q", room, user)
	}
	if cfg.Identity.Room != "demo" {
		t.Errorf("room not persisted: %q", cfg.Identity.Room)
	}

	if rec := do(t, srv.Handler(), http.MethodPost, "/api/disconnect", ""); rec.Code != http.StatusOK {
		t.Fatalf("disconnect status code = %d", rec.Code)
	}
	if eng.Status() != session.Disconnected || eng.disconnect != 1 {
		t.Error("engine was not disconnected")
	}
}

func TestNoticeFeed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for srv.feed.len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(2 * time.Millisecond)
	}

	srv.Notify(slog.LevelInfo, "Saved to register 1")

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var n Notice
	if err := conn.ReadJSON(&n); err != nil {
		t.Fatal(err)
	}
	if n.Level != "INFO" || n.Text != "Saved to register 1" {
		t.Errorf("notice = %+v", n)
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("feed should close on shutdown")
	}
}
