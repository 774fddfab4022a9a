// Package config loads the staff terminal configuration: built-in defaults,
// then an optional YAML file, then KIWARI_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kiwari-pos/client/internal/cart"
	"github.com/kiwari-pos/client/internal/realtime"
	"gopkg.in/yaml.v3"
)

// Config is the terminal configuration.
type Config struct {
	ServerURL  string        `yaml:"server_url"`
	CSRFToken  string        `yaml:"csrf_token"`
	CSRFPage   string        `yaml:"csrf_page"`
	StorageDir string        `yaml:"storage_dir"`
	NoticeTTL  time.Duration `yaml:"notice_ttl"`

	Cart     cart.Config     `yaml:"cart"`
	Realtime realtime.Config `yaml:"realtime"`

	// ConfigPath is the file the configuration was read from, if any.
	ConfigPath string `yaml:"-"`
}

// searchPaths are tried in order when KIWARI_CONFIG is unset.
var searchPaths = []string{
	"terminal.yaml",
	"configs/terminal.yaml",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerURL:  "http://localhost:8081",
		CSRFPage:   "/admin/orders",
		StorageDir: ".kiwari",
		NoticeTTL:  5 * time.Second,
		Cart: cart.Config{
			StorageKey:  cart.DefaultStorageKey,
			MaxQuantity: cart.DefaultMaxQuantity,
			Currency:    "EGP",
		},
		Realtime: realtime.Config{
			BaseDelay:        time.Second,
			MaxAttempts:      5,
			PingInterval:     54 * time.Second,
			PongWait:         60 * time.Second,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Load builds the configuration. KIWARI_CONFIG names the YAML file and must
// exist when set; otherwise the search paths are tried and a missing file is
// not an error.
func Load() (*Config, error) {
	cfg := Default()

	if path := getEnv("KIWARI_CONFIG", ""); path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	} else {
		for _, path := range searchPaths {
			err := cfg.readFile(path)
			if err == nil {
				break
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	cfg.applyEnv()
	if cfg.Realtime.URL == "" {
		u, err := WebSocketURL(cfg.ServerURL)
		if err != nil {
			return nil, err
		}
		cfg.Realtime.URL = u
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.ConfigPath = path
	return nil
}

func (c *Config) applyEnv() {
	c.ServerURL = getEnv("KIWARI_SERVER_URL", c.ServerURL)
	c.Realtime.URL = getEnv("KIWARI_WS_URL", c.Realtime.URL)
	c.Realtime.Token = getEnv("KIWARI_TOKEN", c.Realtime.Token)
	c.CSRFToken = getEnv("KIWARI_CSRF_TOKEN", c.CSRFToken)
	c.StorageDir = getEnv("KIWARI_STORAGE_DIR", c.StorageDir)
}

// Save writes the configuration as YAML. The session token is never written.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// WebSocketURL derives the real-time endpoint from the server base URL:
// http becomes ws, https becomes wss, and the path is /ws.
func WebSocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("config: server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("config: server url %q: unsupported scheme %q", serverURL, u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
