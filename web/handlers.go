package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"markestedt/clipsync/config"
	"markestedt/clipsync/hotkey"
	"markestedt/clipsync/protocol"
	"markestedt/clipsync/session"
)

var errInvalid = errors.New("invalid request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// StatusResponse describes the relay session
type StatusResponse struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Room      string `json:"room"`
	UserID    string `json:"userId"`
	Endpoint  string `json:"endpoint"`
}

// handleStatus returns the current agent status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.engine.Status()
	room, userID := s.engine.Identity()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:    status.String(),
		Connected: status == session.Connected,
		Room:      room,
		UserID:    userID,
		Endpoint:  s.engine.Endpoint(),
	})
}

// handleRegisters handles GET and DELETE requests for the registers
func (s *Server) handleRegisters(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		regs := s.engine.Registers()
		writeJSON(w, http.StatusOK, map[string]any{"registers": regs[:]})
	case http.MethodDelete:
		if err := s.engine.ClearRegisters(r.Context()); err != nil {
			slog.Error("Failed to clear registers", "error", err)
			writeError(w, http.StatusServiceUnavailable, "Failed to clear registers")
			return
		}
		writeSuccess(w)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleMessages returns the message log, optionally only the newest ?limit
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msgs := s.engine.Messages()
	total := len(msgs)
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l >= 0 && l < total {
			msgs = msgs[total-l:]
		}
	}
	if msgs == nil {
		msgs = []protocol.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"total":    total,
	})
}

// ConfigResponse is the editable configuration
type ConfigResponse struct {
	AutoCopyText     bool   `json:"autoCopyText"`
	AutoCopyImage    bool   `json:"autoCopyImage"`
	RegistersEnabled bool   `json:"registersEnabled"`
	SyncEnabled      bool   `json:"syncEnabled"`
	Monitor          int    `json:"monitor"`
	ServerAddress    string `json:"serverAddress"`
	ServerPort       int    `json:"serverPort"`
	ServerScheme     string `json:"serverScheme"`
}

// handleConfig handles GET and PUT requests for configuration
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetConfig(w, r)
	case http.MethodPut:
		s.handlePutConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) configResponse() ConfigResponse {
	v := s.engine.Settings()

	s.mu.Lock()
	server := s.config.Server
	s.mu.Unlock()

	return ConfigResponse{
		AutoCopyText:     v.AutoCopyText,
		AutoCopyImage:    v.AutoCopyImage,
		RegistersEnabled: v.RegistersEnabled,
		SyncEnabled:      v.SyncEnabled,
		Monitor:          v.Monitor,
		ServerAddress:    server.Address,
		ServerPort:       server.Port,
		ServerScheme:     server.Scheme,
	}
}

// handleGetConfig returns the current configuration
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configResponse())
}

// handlePutConfig updates the configuration
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AutoCopyText     *bool   `json:"autoCopyText"`
		AutoCopyImage    *bool   `json:"autoCopyImage"`
		RegistersEnabled *bool   `json:"registersEnabled"`
		SyncEnabled      *bool   `json:"syncEnabled"`
		Monitor          *int    `json:"monitor"`
		ServerAddress    *string `json:"serverAddress"`
		ServerPort       *int    `json:"serverPort"`
		ServerScheme     *string `json:"serverScheme"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	v := s.engine.Settings()

	// Update fields if provided
	if req.AutoCopyText != nil {
		v.AutoCopyText = *req.AutoCopyText
	}
	if req.AutoCopyImage != nil {
		v.AutoCopyImage = *req.AutoCopyImage
	}
	if req.RegistersEnabled != nil {
		v.RegistersEnabled = *req.RegistersEnabled
	}
	if req.SyncEnabled != nil {
		v.SyncEnabled = *req.SyncEnabled
	}
	if req.Monitor != nil {
		v.Monitor = *req.Monitor
	}

	var endpoint string
	err := s.saveConfig(func(cfg *config.Config) error {
		prev := cfg.Server
		if req.ServerAddress != nil {
			cfg.Server.Address = strings.TrimSpace(*req.ServerAddress)
		}
		if req.ServerPort != nil {
			cfg.Server.Port = *req.ServerPort
		}
		if req.ServerScheme != nil {
			cfg.Server.Scheme = *req.ServerScheme
		}
		if v.Monitor < 0 {
			cfg.Server = prev
			return fmt.Errorf("%w: monitor must not be negative", errInvalid)
		}
		if err := cfg.Validate(); err != nil {
			cfg.Server = prev
			return fmt.Errorf("%w: %v", errInvalid, err)
		}

		cfg.ApplySettings(s.engine.UpdateSettings(v))
		endpoint = cfg.Endpoint()
		return nil
	})
	if errors.Is(err, errInvalid) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("Failed to save config", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save configuration")
		return
	}

	s.engine.SetEndpoint(endpoint)
	writeJSON(w, http.StatusOK, s.configResponse())
}

// handleHotkeys lists bindings (GET) or moves one to a new combo (PUT)
func (s *Server) handleHotkeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"bindings": s.engine.Bindings()})
	case http.MethodPut:
		s.handleRebind(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRebind(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Old string `json:"old"`
		New string `json:"new"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	oldCombo, err := hotkey.Normalize(req.Old)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid hotkey %q: %v", req.Old, err))
		return
	}
	newCombo, err := hotkey.Normalize(req.New)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid hotkey %q: %v", req.New, err))
		return
	}

	var action hotkey.Action
	found := false
	for _, b := range s.engine.Bindings() {
		if b.Combo == oldCombo {
			action, found = b.Action, true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("hotkey %s is not bound", oldCombo))
		return
	}

	if err := s.engine.Rebind(oldCombo, newCombo); err != nil {
		if errors.Is(err, hotkey.ErrAlreadyBound) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		slog.Error("Failed to rebind hotkey", "from", oldCombo, "to", newCombo, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.saveConfig(func(cfg *config.Config) error {
		return cfg.SetHotkey(action, newCombo)
	}); err != nil {
		slog.Error("Failed to save config", "error", err)
		writeError(w, http.StatusInternalServerError, "Hotkey changed but configuration was not saved")
		return
	}

	writeJSON(w, http.StatusOK, hotkey.Binding{Combo: newCombo, Action: action})
}

// handleConnect joins a room when one is given, otherwise rejoins the last
// joined or configured room
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Room   string `json:"room"`
		UserID string `json:"userId"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	req.Room = strings.TrimSpace(req.Room)
	req.UserID = strings.TrimSpace(req.UserID)

	if req.Room == "" {
		if err := s.engine.Connect(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeSuccess(w)
		return
	}

	s.mu.Lock()
	if req.UserID == "" {
		req.UserID = s.config.Identity.UserID
	}
	s.mu.Unlock()

	if err := s.engine.Join(req.Room, req.UserID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.saveConfig(func(cfg *config.Config) error {
		cfg.Identity.Room = req.Room
		cfg.Identity.UserID = req.UserID
		return nil
	}); err != nil {
		slog.Warn("Failed to persist room", "error", err)
	}
	writeSuccess(w)
}

// handleDisconnect leaves the room
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.Disconnect()
	writeSuccess(w)
}
