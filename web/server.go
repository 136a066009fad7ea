// Package web serves the local control API of the agent: status, registers,
// message log, settings and hotkeys, plus a WebSocket feed of notices.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"markestedt/clipsync/config"
	"markestedt/clipsync/hotkey"
	"markestedt/clipsync/protocol"
	"markestedt/clipsync/register"
	"markestedt/clipsync/session"
	"markestedt/clipsync/settings"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Engine is the part of the sync engine the API controls
type Engine interface {
	Status() session.Status
	Identity() (room, userID string)
	Endpoint() string
	SetEndpoint(endpoint string)
	Registers() [register.Count]string
	ClearRegisters(ctx context.Context) error
	Messages() []protocol.Message
	Settings() settings.Values
	UpdateSettings(v settings.Values) settings.Values
	Bindings() []hotkey.Binding
	Rebind(oldCombo, newCombo string) error
	Join(room, userID string) error
	Connect() error
	Disconnect()
}

// Server represents the web server
type Server struct {
	engine Engine
	config *config.Config
	port   int
	feed   *feed
	mu     sync.Mutex

	httpServer *http.Server
}

// NewServer creates a new web server. Changes made through the API are
// written back to cfg.
func NewServer(engine Engine, cfg *config.Config, port int) *Server {
	return &Server{
		engine: engine,
		config: cfg,
		port:   port,
		feed:   newFeed(),
	}
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/registers", s.handleRegisters)
	mux.HandleFunc("/api/messages", s.handleMessages)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/hotkeys", s.handleHotkeys)
	mux.HandleFunc("/api/connect", s.handleConnect)
	mux.HandleFunc("/api/disconnect", s.handleDisconnect)
	mux.HandleFunc("/ws", s.handleWebSocket)

	return mux
}

// Start serves the API on localhost until Shutdown is called
func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	slog.Info("Starting web server", "port", s.port, "url", fmt.Sprintf("http://localhost:%d", s.port))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server and closes every feed subscriber
func (s *Server) Shutdown(ctx context.Context) error {
	s.feed.close()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Notify pushes a notice to every feed subscriber
func (s *Server) Notify(level slog.Level, text string) {
	s.feed.broadcast(Notice{
		Level: level.String(),
		Text:  text,
		At:    time.Now().UTC(),
	})
}

// handleWebSocket subscribes a connection to the notice feed
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}
	s.feed.serve(conn)
}

// saveConfig applies fn to the config and writes it to disk
func (s *Server) saveConfig(fn func(*config.Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.config); err != nil {
		return err
	}
	if err := s.config.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
