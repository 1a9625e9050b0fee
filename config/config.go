// Package config loads process configuration from .env, an optional YAML
// file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	developmentSecret = "insecure-development-secret"
)

// Config represents the complete service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	Debug    bool   `yaml:"debug"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig holds credential and challenge settings
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`

	JWTExpiry          time.Duration `yaml:"-"`
	NonceTTL           time.Duration `yaml:"-"`
	NonceSweepInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	JWTExpiryRaw          string `yaml:"jwt_expiry"`
	NonceTTLRaw           string `yaml:"nonce_ttl"`
	NonceSweepIntervalRaw string `yaml:"nonce_sweep_interval"`
}

// LedgerConfig holds the chain endpoint configuration
type LedgerConfig struct {
	RPCURL     string        `yaml:"rpc_url"`
	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// DatabaseConfig selects the identity store
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables the shared nonce store and event stream when URL is set
type RedisConfig struct {
	URL string `yaml:"url"`
}

// WebSocketConfig holds connection gateway settings
type WebSocketConfig struct {
	PingInterval    time.Duration `yaml:"-"`
	PingIntervalRaw string        `yaml:"ping_interval"`
	AllowedOrigins  string        `yaml:"allowed_origins"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server:  ServerConfig{HTTPAddr: ":5000"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Auth: AuthConfig{
			JWTIssuer:             "nft-ticketing",
			JWTExpiryRaw:          "7d",
			NonceTTLRaw:           "5m",
			NonceSweepIntervalRaw: "1m",
		},
		Ledger:    LedgerConfig{RPCURL: "https://rpc.ankr.com/eth", TimeoutRaw: "10s"},
		Database:  DatabaseConfig{Driver: DriverSQLite, DSN: "data/nft-ticketing.db"},
		WebSocket: WebSocketConfig{PingIntervalRaw: "25s"},
	}
}

// Load reads .env, then the YAML file named by CONFIG_FILE if any, then
// environment overrides
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if cfg.Auth.JWTSecret == "" && cfg.Server.Debug {
		cfg.Auth.JWTSecret = developmentSecret
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or nothing if unset
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	str("HTTP_ADDR", &c.Server.HTTPAddr)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("JWT_ISSUER", &c.Auth.JWTIssuer)
	str("JWT_EXPIRY", &c.Auth.JWTExpiryRaw)
	str("NONCE_TTL", &c.Auth.NonceTTLRaw)
	str("NONCE_SWEEP_INTERVAL", &c.Auth.NonceSweepIntervalRaw)
	str("RPC_URL", &c.Ledger.RPCURL)
	str("LEDGER_TIMEOUT", &c.Ledger.TimeoutRaw)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_DSN", &c.Database.DSN)
	str("REDIS_URL", &c.Redis.URL)
	str("WS_PING_INTERVAL", &c.WebSocket.PingIntervalRaw)
	str("WS_ALLOWED_ORIGINS", &c.WebSocket.AllowedOrigins)

	if v := os.Getenv("DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing DEBUG %q: %w", v, err)
		}
		c.Server.Debug = debug
	}
	return nil
}

func (c *Config) parseDurations() error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"jwt_expiry", c.Auth.JWTExpiryRaw, &c.Auth.JWTExpiry},
		{"nonce_ttl", c.Auth.NonceTTLRaw, &c.Auth.NonceTTL},
		{"nonce_sweep_interval", c.Auth.NonceSweepIntervalRaw, &c.Auth.NonceSweepInterval},
		{"ledger timeout", c.Ledger.TimeoutRaw, &c.Ledger.Timeout},
		{"ping_interval", c.WebSocket.PingIntervalRaw, &c.WebSocket.PingInterval},
	}
	for _, f := range fields {
		d, err := ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// ParseDuration accepts everything time.ParseDuration does plus a day
// suffix, so "7d" is a week
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", days)
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	}
	return time.ParseDuration(s)
}

// Validate checks that the configuration can start a server.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Auth.JWTSecret == "" && !c.Server.Debug {
		return fmt.Errorf("auth.jwt_secret is required outside debug mode")
	}
	positive := map[string]time.Duration{
		"auth.jwt_expiry":           c.Auth.JWTExpiry,
		"auth.nonce_ttl":            c.Auth.NonceTTL,
		"auth.nonce_sweep_interval": c.Auth.NonceSweepInterval,
		"ledger.timeout":            c.Ledger.Timeout,
		"websocket.ping_interval":   c.WebSocket.PingInterval,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("ledger.rpc_url is required")
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}
