package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"markestedt/clipsync/hotkey"
	"markestedt/clipsync/register"
	"markestedt/clipsync/settings"
	"markestedt/clipsync/transport"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Identity  IdentityConfig  `toml:"identity"`
	Hotkeys   HotkeyConfig    `toml:"hotkeys"`
	Registers RegistersConfig `toml:"registers"`
	Clipboard ClipboardConfig `toml:"clipboard"`
	Capture   CaptureConfig   `toml:"capture"`
	Transport TransportConfig `toml:"transport"`
	Web       WebConfig       `toml:"web"`
	Tray      TrayConfig      `toml:"tray"`
	Log       LogConfig       `toml:"log"`

	path string
}

type ServerConfig struct {
	Address string `toml:"address"`
	Port    int    `toml:"port"`
	Scheme  string `toml:"scheme"`
	Path    string `toml:"path"`
}

type IdentityConfig struct {
	Room        string `toml:"room"`
	UserID      string `toml:"user_id"`
	AutoConnect bool   `toml:"auto_connect"`
}

// HotkeyConfig lists combos per action. Save, Paste and Type are indexed by
// register; an empty combo leaves that action unbound.
type HotkeyConfig struct {
	SendText   string   `toml:"send_text"`
	Screenshot string   `toml:"screenshot"`
	Save       []string `toml:"save"`
	Paste      []string `toml:"paste"`
	Type       []string `toml:"type"`
}

type RegistersConfig struct {
	Enabled bool `toml:"enabled"`
	Sync    bool `toml:"sync"`
}

type ClipboardConfig struct {
	AutoCopyText  bool `toml:"auto_copy_text"`
	AutoCopyImage bool `toml:"auto_copy_image"`
}

type CaptureConfig struct {
	Monitor int `toml:"monitor"`
}

type TransportConfig struct {
	MaxAttempts       int `toml:"max_attempts"`
	RetryDelaySeconds int `toml:"retry_delay_seconds"`
}

type WebConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

type TrayConfig struct {
	Enabled bool `toml:"enabled"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

func registerCombos(format string) []string {
	combos := make([]string, register.Count)
	for i := range combos {
		combos[i] = fmt.Sprintf(format, i+1)
	}
	return combos
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost",
			Port:    8989,
			Scheme:  "ws",
			Path:    "/ws",
		},
		Identity: IdentityConfig{
			AutoConnect: true,
		},
		Hotkeys: HotkeyConfig{
			SendText:   "ctrl+alt+j",
			Screenshot: "ctrl+alt+k",
			Save:       registerCombos("ctrl+alt+%d"),
			Paste:      registerCombos("ctrl+shift+%d"),
			Type:       registerCombos("ctrl+alt+shift+%d"),
		},
		Registers: RegistersConfig{
			Enabled: true,
			Sync:    true,
		},
		Clipboard: ClipboardConfig{
			AutoCopyText:  true,
			AutoCopyImage: false,
		},
		Transport: TransportConfig{
			MaxAttempts:       transport.DefaultMaxAttempts,
			RetryDelaySeconds: int(transport.DefaultRetryDelay.Seconds()),
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8990,
		},
		Tray: TrayConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ConfigPath returns the path to the configuration file
func ConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}

	configDir := filepath.Join(base, "clipsync")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(configDir, "config.toml"), nil
}

// Load loads the configuration from the default location
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom loads the configuration from path.
// If the file doesn't exist, it creates it with default values. A missing
// user id is generated and written back.
func LoadFrom(path string) (*Config, error) {
	cfg := defaultConfig()
	cfg.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.Identity.UserID = uuid.NewString()
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if strings.TrimSpace(cfg.Identity.UserID) == "" {
		cfg.Identity.UserID = uuid.NewString()
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to persist generated user id: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Path returns the file the configuration was loaded from
func (c *Config) Path() string {
	return c.path
}

// Save writes the configuration back to its file
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("config has no file path")
	}
	return save(c.path, c)
}

// save writes the configuration to the TOML file
func save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Validate checks ranges and that every hotkey parses and is unique
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.Scheme != "ws" && c.Server.Scheme != "wss" {
		return fmt.Errorf("server scheme must be ws or wss, got %q", c.Server.Scheme)
	}
	if c.Capture.Monitor < 0 {
		return fmt.Errorf("capture monitor must not be negative")
	}
	if c.Web.Enabled && (c.Web.Port <= 0 || c.Web.Port > 65535) {
		return fmt.Errorf("web port %d out of range", c.Web.Port)
	}
	for name, combos := range map[string][]string{"save": c.Hotkeys.Save, "paste": c.Hotkeys.Paste, "type": c.Hotkeys.Type} {
		if len(combos) > register.Count {
			return fmt.Errorf("hotkeys.%s lists %d combos, at most %d registers exist", name, len(combos), register.Count)
		}
	}

	seen := make(map[string]string)
	for _, s := range c.HotkeySpecs() {
		normalized, err := hotkey.Normalize(s.Combo)
		if err != nil {
			return fmt.Errorf("hotkey for %s: %w", s.Action, err)
		}
		if prev, ok := seen[normalized]; ok {
			return fmt.Errorf("hotkey %s is used for both %s and %s", normalized, prev, s.Action)
		}
		seen[normalized] = s.Action.String()
	}
	return nil
}

// HotkeySpecs returns every configured binding
func (c *Config) HotkeySpecs() []hotkey.Spec {
	var specs []hotkey.Spec
	add := func(combo string, a hotkey.Action) {
		if strings.TrimSpace(combo) != "" {
			specs = append(specs, hotkey.Spec{Combo: combo, Action: a})
		}
	}

	add(c.Hotkeys.SendText, hotkey.Action{Kind: hotkey.SendClipboardText})
	add(c.Hotkeys.Screenshot, hotkey.Action{Kind: hotkey.Screenshot})
	for i, combo := range c.Hotkeys.Save {
		add(combo, hotkey.Action{Kind: hotkey.SaveToRegister, Register: i})
	}
	for i, combo := range c.Hotkeys.Paste {
		add(combo, hotkey.Action{Kind: hotkey.PasteFromRegister, Register: i})
	}
	for i, combo := range c.Hotkeys.Type {
		add(combo, hotkey.Action{Kind: hotkey.TypeFromRegister, Register: i})
	}
	return specs
}

// SetHotkey records combo as the binding of action
func (c *Config) SetHotkey(a hotkey.Action, combo string) error {
	switch a.Kind {
	case hotkey.SendClipboardText:
		c.Hotkeys.SendText = combo
	case hotkey.Screenshot:
		c.Hotkeys.Screenshot = combo
	case hotkey.SaveToRegister:
		return setIndexed(&c.Hotkeys.Save, a.Register, combo)
	case hotkey.PasteFromRegister:
		return setIndexed(&c.Hotkeys.Paste, a.Register, combo)
	case hotkey.TypeFromRegister:
		return setIndexed(&c.Hotkeys.Type, a.Register, combo)
	default:
		return fmt.Errorf("unknown action %s", a)
	}
	return nil
}

func setIndexed(list *[]string, i int, combo string) error {
	if !register.Valid(i) {
		return register.ErrIndexOutOfRange
	}
	for len(*list) <= i {
		*list = append(*list, "")
	}
	(*list)[i] = combo
	return nil
}

// Settings returns the runtime flags held in the file
func (c *Config) Settings() settings.Values {
	return settings.Values{
		AutoCopyText:     c.Clipboard.AutoCopyText,
		AutoCopyImage:    c.Clipboard.AutoCopyImage,
		RegistersEnabled: c.Registers.Enabled,
		SyncEnabled:      c.Registers.Sync,
		Monitor:          c.Capture.Monitor,
	}
}

// ApplySettings copies runtime flags into the file sections
func (c *Config) ApplySettings(v settings.Values) {
	c.Clipboard.AutoCopyText = v.AutoCopyText
	c.Clipboard.AutoCopyImage = v.AutoCopyImage
	c.Registers.Enabled = v.RegistersEnabled
	c.Registers.Sync = v.SyncEnabled
	c.Capture.Monitor = v.Monitor
}

// Endpoint returns the relay WebSocket URL
func (c *Config) Endpoint() string {
	return transport.Endpoint(c.Server.Scheme, c.Server.Address, c.Server.Port, c.Server.Path)
}

// TransportOptions returns the reconnection settings
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		MaxAttempts: c.Transport.MaxAttempts,
		RetryDelay:  secondsToDuration(c.Transport.RetryDelaySeconds),
	}
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}
