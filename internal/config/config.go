package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the settings for a generation host.
type Config struct {
	Grid     GridConfig     `yaml:"grid"`
	Tiles    TilesConfig    `yaml:"tiles"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
}

// GridConfig holds the grid dimensions and seed.
type GridConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// CellSize is the placement size of one cell, passed through to
	// resolution events for the renderer.
	CellSize float64 `yaml:"cell_size"`

	// Seed for the solver's random source. 0 picks a fresh seed per run.
	Seed uint64 `yaml:"seed"`

	// MaxCells caps width*height. 0 means no cap beyond what fits in an int.
	MaxCells int `yaml:"max_cells"`
}

// TilesConfig selects the tile palette.
type TilesConfig struct {
	// Palette is the path to a palette YAML file. Empty uses the built-in palette.
	Palette string `yaml:"palette"`

	// DedupSymmetric keeps only one copy of rotations that produce the
	// same edges (e.g. a tile with four identical edges).
	DedupSymmetric bool `yaml:"dedup_symmetric"`
}

// ServerConfig holds watch server settings.
type ServerConfig struct {
	Address     string            `yaml:"address"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Connections ConnectionsConfig `yaml:"connections"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`

	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP.
	// Enable only behind a reverse proxy that overwrites those headers.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`

	// EventBuffer is the per-subscriber event channel size.
	EventBuffer int `yaml:"event_buffer"`
}

// ConnectionsConfig holds connection limit settings.
type ConnectionsConfig struct {
	// MaxPerIP is the maximum concurrent watchers allowed from a single IP address.
	// 0 means unlimited (not recommended).
	MaxPerIP int `yaml:"max_per_ip"`

	// MaxTotal is the maximum total concurrent watchers.
	// 0 means unlimited.
	MaxTotal int `yaml:"max_total"`
}

// RateLimitConfig throttles the control endpoints (start, cancel, reset).
type RateLimitConfig struct {
	// MaxRequests allowed per IP within WindowSeconds. 0 disables the limit.
	MaxRequests   int `yaml:"max_requests"`
	WindowSeconds int `yaml:"window_seconds"`

	// LockoutSeconds is the first lockout once MaxRequests is exceeded.
	// Repeat lockouts double, capped at MaxLockoutSeconds.
	LockoutSeconds    int `yaml:"lockout_seconds"`
	MaxLockoutSeconds int `yaml:"max_lockout_seconds"`
}

// WebSocketConfig holds WebSocket-specific settings.
type WebSocketConfig struct {
	// AllowedOrigins is a list of origins allowed to connect via WebSocket.
	// Empty list enforces same-origin policy.
	// Use "*" to allow all origins (not recommended for production).
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageSize is the maximum inbound WebSocket message size in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// DatabaseConfig selects where run history is stored.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres". Empty disables run history.
	Driver     string         `yaml:"driver"`
	SQLitePath string         `yaml:"sqlite_path"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Grid: GridConfig{
			Width:    20,
			Height:   12,
			CellSize: 14,
			Seed:     0,
			MaxCells: 1 << 20,
		},
		Tiles: TilesConfig{
			DedupSymmetric: true,
		},
		Server: ServerConfig{
			Address: ":4480",
			WebSocket: WebSocketConfig{
				AllowedOrigins: []string{}, // Same-origin only by default
				MaxMessageSize: 4096,
			},
			Connections: ConnectionsConfig{
				MaxPerIP: 3,
				MaxTotal: 100,
			},
			RateLimit: RateLimitConfig{
				MaxRequests:       20,
				WindowSeconds:     10,
				LockoutSeconds:    30,
				MaxLockoutSeconds: 300,
			},
			EventBuffer: 256,
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "data/runs.db",
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "disable",
			},
		},
	}
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, returns default config.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil // Use defaults if file doesn't exist
		}
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return DefaultConfig(), err
	}

	if err := config.Validate(); err != nil {
		return DefaultConfig(), err
	}

	return config, nil
}

// Validate checks the settings are usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Grid.Width <= 0 || c.Grid.Height <= 0 {
		errs = append(errs, fmt.Errorf("grid size must be positive, got %dx%d", c.Grid.Width, c.Grid.Height))
	} else if limit := c.maxCells(); c.Grid.Width > limit/c.Grid.Height {
		errs = append(errs, fmt.Errorf("grid %dx%d exceeds max_cells %d", c.Grid.Width, c.Grid.Height, limit))
	}
	if c.Grid.MaxCells < 0 {
		errs = append(errs, fmt.Errorf("grid.max_cells must not be negative, got %d", c.Grid.MaxCells))
	}
	if c.Grid.CellSize <= 0 {
		errs = append(errs, fmt.Errorf("cell_size must be positive, got %g", c.Grid.CellSize))
	}
	switch c.Database.Driver {
	case "", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Database.Driver == "sqlite" && c.Database.SQLitePath == "" {
		errs = append(errs, errors.New("database.sqlite_path is required for the sqlite driver"))
	}
	if c.Server.EventBuffer < 0 {
		errs = append(errs, fmt.Errorf("server.event_buffer must not be negative, got %d", c.Server.EventBuffer))
	}
	return errors.Join(errs...)
}

func (c *Config) maxCells() int {
	if c.Grid.MaxCells > 0 {
		return c.Grid.MaxCells
	}
	return math.MaxInt
}

// IsOriginAllowed checks if the given origin is allowed based on the config.
// Returns true if:
// - AllowedOrigins contains "*" (allow all)
// - AllowedOrigins contains the exact origin
// - AllowedOrigins is empty and origin matches the request host (same-origin)
func (c *WebSocketConfig) IsOriginAllowed(origin, requestHost string) bool {
	// If no origins configured, enforce same-origin policy
	if len(c.AllowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}

	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	return false
}

// isSameOrigin checks if the origin matches the request host (same-origin policy).
func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true // No origin header means same-origin (e.g., non-browser client)
	}

	// Extract host from origin URL (e.g., "http://localhost:3000" -> "localhost:3000")
	originHost := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		originHost = origin[idx+3:]
	}
	originHost = strings.TrimSuffix(originHost, "/")

	return originHost == requestHost
}
