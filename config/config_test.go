package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CONFIG_FILE", "HTTP_ADDR", "DEBUG", "LOG_LEVEL", "LOG_FORMAT",
	"JWT_SECRET", "JWT_ISSUER", "JWT_EXPIRY", "NONCE_TTL", "NONCE_SWEEP_INTERVAL",
	"RPC_URL", "LEDGER_TIMEOUT", "DATABASE_DRIVER", "DATABASE_DSN", "REDIS_URL",
	"WS_PING_INTERVAL", "WS_ALLOWED_ORIGINS",
}

// clearEnv blanks every key Load reads; empty values count as unset
func clearEnv(t *testing.T) {
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.HTTPAddr)
	assert.False(t, cfg.Server.Debug)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "nft-ticketing", cfg.Auth.JWTIssuer)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.JWTExpiry)
	assert.Equal(t, 5*time.Minute, cfg.Auth.NonceTTL)
	assert.Equal(t, time.Minute, cfg.Auth.NonceSweepInterval)
	assert.Equal(t, "https://rpc.ankr.com/eth", cfg.Ledger.RPCURL)
	assert.Equal(t, 10*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 25*time.Second, cfg.WebSocket.PingInterval)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("JWT_EXPIRY", "12h")
	t.Setenv("NONCE_TTL", "90s")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_DSN", "postgres://localhost/tickets")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("WS_ALLOWED_ORIGINS", "app.example.com")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, 12*time.Hour, cfg.Auth.JWTExpiry)
	assert.Equal(t, 90*time.Second, cfg.Auth.NonceTTL)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/tickets", cfg.Database.DSN)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "app.example.com", cfg.WebSocket.AllowedOrigins)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_YAMLFileWithEnvExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_JWT_SECRET", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  http_addr: ":9000"
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
  jwt_expiry: "1d"
ledger:
  rpc_url: "http://localhost:8545"
  timeout: "3s"
websocket:
  ping_interval: "10s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	// Environment still wins over the file
	t.Setenv("HTTP_ADDR", ":9100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.HTTPAddr)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.Auth.JWTExpiry)
	assert.Equal(t, "http://localhost:8545", cfg.Ledger.RPCURL)
	assert.Equal(t, 3*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, 10*time.Second, cfg.WebSocket.PingInterval)
	// Unset file keys keep their defaults
	assert.Equal(t, 5*time.Minute, cfg.Auth.NonceTTL)
}

func TestLoad_MissingSecret(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoad_DebugAllowsMissingSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Server.Debug)
	assert.NotEmpty(t, cfg.Auth.JWTSecret)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad duration":    {"NONCE_TTL": "soon"},
		"zero duration":   {"LEDGER_TIMEOUT": "0s"},
		"unknown driver":  {"DATABASE_DRIVER": "mysql"},
		"bad debug flag":  {"DEBUG": "maybe"},
		"bad log format":  {"LOG_FORMAT": "xml"},
		"negative expiry": {"JWT_EXPIRY": "-1d"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("JWT_SECRET", "s3cret")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"7d":   7 * 24 * time.Hour,
		"0.5d": 12 * time.Hour,
		"90m":  90 * time.Minute,
		" 5s ": 5 * time.Second,
	}
	for raw, want := range tests {
		got, err := ParseDuration(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseDuration("xd")
	assert.Error(t, err)
}
