package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	EnvAPIURL, EnvHTTPTimeout, EnvPollInterval, EnvListenAddr, EnvAllowedOrigins,
	EnvWalletMode, EnvPiSandbox, EnvPostgresDSN, EnvClickhouseDSN, EnvLogLevel, EnvLogFormat,
}

// clearEnv blanks every config key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, WalletModeRelay, cfg.WalletMode)
	assert.True(t, cfg.PiSandbox)
	assert.True(t, cfg.UseMemory())
	assert.Empty(t, cfg.AllowedOrigins)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIURL, "https://api.mapcap.example/api/")
	t.Setenv(EnvHTTPTimeout, "3s")
	t.Setenv(EnvPollInterval, "1m")
	t.Setenv(EnvAllowedOrigins, "https://a.example, https://b.example,")
	t.Setenv(EnvWalletMode, "STUB")
	t.Setenv(EnvPiSandbox, "false")
	t.Setenv(EnvLogFormat, "console")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://api.mapcap.example/api", cfg.APIURL)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, WalletModeStub, cfg.WalletMode)
	assert.False(t, cfg.PiSandbox)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_ParseErrors(t *testing.T) {
	for _, key := range []string{EnvHTTPTimeout, EnvPollInterval, EnvPiSandbox} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, "soon")
			_, err := FromEnv()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			APIURL:       DefaultAPIURL,
			HTTPTimeout:  time.Second,
			PollInterval: time.Second,
			WalletMode:   WalletModeRelay,
			LogFormat:    "json",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative api url", func(c *Config) { c.APIURL = "/api" }},
		{"ftp api url", func(c *Config) { c.APIURL = "ftp://host/api" }},
		{"zero timeout", func(c *Config) { c.HTTPTimeout = 0 }},
		{"negative interval", func(c *Config) { c.PollInterval = -time.Second }},
		{"unknown wallet mode", func(c *Config) { c.WalletMode = "browser" }},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }},
		{"postgres only", func(c *Config) { c.PostgresDSN = "postgres://x" }},
		{"clickhouse only", func(c *Config) { c.ClickhouseDSN = "clickhouse://x" }},
	}
	require.NoError(t, base().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv does not override variables that are already set, even empty.
	os.Unsetenv(EnvListenAddr)
	os.Unsetenv(EnvPollInterval)
	t.Cleanup(func() {
		os.Unsetenv(EnvListenAddr)
		os.Unsetenv(EnvPollInterval)
	})
	t.Setenv(EnvWalletMode, "stub")

	path := filepath.Join(t.TempDir(), ".env")
	content := "# dashboard\nMAPCAP_LISTEN_ADDR=:9999\nMAPCAP_POLL_INTERVAL=45s\nMAPCAP_WALLET_MODE=relay\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 45*time.Second, cfg.PollInterval)
	assert.Equal(t, WalletModeStub, cfg.WalletMode, "environment wins over .env")
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
}
