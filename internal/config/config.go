// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/muesli/termenv"

	"github.com/mergestack/chatbot-tui/internal/transport"
	"github.com/mergestack/chatbot-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete chatbot-tui configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Encryption EncryptionConfig `toml:"encryption"`
	Models     ModelsConfig     `toml:"models"`
	Audio      AudioConfig      `toml:"audio"`
	UI         UIConfig         `toml:"ui"`
}

// ServerConfig points at the chat backend.
type ServerConfig struct {
	// BaseURL is the backend origin, e.g. "https://chat.example.com".
	BaseURL string `toml:"base_url"`
	// TimeoutSecs bounds every request.
	TimeoutSecs int `toml:"timeout_secs"`
	// RateLimit is requests per second (0 disables pacing).
	RateLimit float64 `toml:"rate_limit"`
}

// EncryptionConfig carries the pre-shared payload encryption material.
// Either KeyHex is set directly, or Passphrase+SaltHex derive the key.
type EncryptionConfig struct {
	KeyHex     string `toml:"key_hex"`
	IVHex      string `toml:"iv_hex"`
	Passphrase string `toml:"passphrase"`
	SaltHex    string `toml:"salt_hex"`
}

// ModelsConfig is the completion routing table: which endpoint serves which
// model, plus the default for models not listed.
type ModelsConfig struct {
	// Available is the model picker order.
	Available []string `toml:"available"`
	// DefaultEndpoint serves any model without an explicit route.
	DefaultEndpoint string `toml:"default_endpoint"`
	// Routes maps model name to completion endpoint path.
	Routes map[string]string `toml:"routes"`
}

// AudioConfig configures microphone capture.
type AudioConfig struct {
	// CaptureCommand overrides the default recording command line.
	CaptureCommand []string `toml:"capture_command"`
}

// UIConfig holds the two persisted preference flags.
type UIConfig struct {
	// DarkMode is detected from the terminal background when absent.
	DarkMode *bool `toml:"dark_mode"`
	// LastModel is restored as the active model on startup.
	LastModel string `toml:"last_model"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:     "http://localhost:5000",
			TimeoutSecs: 60,
		},
		Models: ModelsConfig{
			Available: []string{
				"gemini-1.5-flash",
				"gpt-4",
				"mergestack-assistant",
			},
			DefaultEndpoint: "/api/chat-completion",
			Routes: map[string]string{
				"mergestack-assistant": "/api/chat-completion-assistant",
			},
		},
	}
}

// ConfigDir returns ~/.chatbot.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatbot"), nil
}

// ConfigPath returns the config file location.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the config file if present, applies environment overrides, and
// validates the result. A missing file is not an error; defaults apply.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath is Load against an explicit file location.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		// The file carries key material, keep it owner-only.
		ensureSecurePermissions(path)
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides layers CHATBOT_* environment variables over the file
// values, matching the service's env contract for the key material.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CHATBOT_SERVER_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("CHATBOT_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Server.TimeoutSecs = n
		}
	}
	if v := os.Getenv("CHATBOT_ENCRYPTION_KEY"); v != "" {
		c.Encryption.KeyHex = v
	}
	if v := os.Getenv("CHATBOT_ENCRYPTION_IV"); v != "" {
		c.Encryption.IVHex = v
	}
	if v := os.Getenv("CHATBOT_ENCRYPTION_PASSPHRASE"); v != "" {
		c.Encryption.Passphrase = v
	}
	if v := os.Getenv("CHATBOT_ENCRYPTION_SALT"); v != "" {
		c.Encryption.SaltHex = v
	}
}

// SetDefaults fills any zero values left after file and env layering.
func (c *Config) SetDefaults() {
	def := Default()
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = def.Server.BaseURL
	}
	if c.Server.TimeoutSecs <= 0 {
		c.Server.TimeoutSecs = def.Server.TimeoutSecs
	}
	if len(c.Models.Available) == 0 {
		c.Models.Available = def.Models.Available
	}
	if c.Models.DefaultEndpoint == "" {
		c.Models.DefaultEndpoint = def.Models.DefaultEndpoint
	}
	if c.Models.Routes == nil {
		c.Models.Routes = def.Models.Routes
	}
	if c.UI.LastModel == "" {
		c.UI.LastModel = c.Models.Available[0]
	}
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return fmt.Errorf("server.base_url must be an http(s) URL, got %q", c.Server.BaseURL)
	}
	if c.Encryption.KeyHex == "" && c.Encryption.Passphrase == "" {
		return fmt.Errorf("encryption requires key_hex or passphrase")
	}
	if c.Encryption.IVHex == "" {
		return fmt.Errorf("encryption.iv_hex is required")
	}
	if c.Encryption.Passphrase != "" && c.Encryption.KeyHex == "" && c.Encryption.SaltHex == "" {
		return fmt.Errorf("encryption.passphrase requires salt_hex")
	}
	for model, endpoint := range c.Models.Routes {
		if !strings.HasPrefix(endpoint, "/") {
			return fmt.Errorf("models.routes[%s] must be an absolute path, got %q", model, endpoint)
		}
	}
	if !strings.HasPrefix(c.Models.DefaultEndpoint, "/") {
		return fmt.Errorf("models.default_endpoint must be an absolute path, got %q", c.Models.DefaultEndpoint)
	}
	return nil
}

// Routes converts the [models] table into the transport routing table.
func (c *Config) Routes() transport.Routes {
	byModel := make(map[string]string, len(c.Models.Routes))
	for model, endpoint := range c.Models.Routes {
		byModel[model] = endpoint
	}
	return transport.Routes{
		Default: c.Models.DefaultEndpoint,
		ByModel: byModel,
	}
}

// DarkMode resolves the dark-mode preference, detecting the terminal
// background when the flag has never been set.
func (c *Config) DarkMode() bool {
	if c.UI.DarkMode != nil {
		return *c.UI.DarkMode
	}
	return termenv.HasDarkBackground()
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the full configuration atomically, owner-only.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath is Save against an explicit file location.
func SaveToPath(cfg *Config, path string) error {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SetDarkMode updates the dark-mode flag and persists it.
func (c *Config) SetDarkMode(enabled bool) error {
	c.UI.DarkMode = &enabled
	return Save(c)
}

// SetLastModel updates the remembered model and persists it.
func (c *Config) SetLastModel(model string) error {
	c.UI.LastModel = model
	return Save(c)
}

func ensureSecurePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0077 != 0 {
		os.Chmod(path, 0600)
	}
}
