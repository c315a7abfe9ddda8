// Package config loads dashboard configuration from the environment, with an
// optional .env file. Command-line flags override the loaded values.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Wallet modes.
const (
	WalletModeRelay = "relay" // Pi SDK in the browser page, over websocket
	WalletModeStub  = "stub"  // scripted wallet for demos
)

// Environment keys.
const (
	EnvAPIURL         = "MAPCAP_API_URL"
	EnvHTTPTimeout    = "MAPCAP_HTTP_TIMEOUT"
	EnvPollInterval   = "MAPCAP_POLL_INTERVAL"
	EnvListenAddr     = "MAPCAP_LISTEN_ADDR"
	EnvAllowedOrigins = "MAPCAP_ALLOWED_ORIGINS"
	EnvWalletMode     = "MAPCAP_WALLET_MODE"
	EnvPiSandbox      = "MAPCAP_PI_SANDBOX"
	EnvPostgresDSN    = "POSTGRES_DSN"
	EnvClickhouseDSN  = "CLICKHOUSE_DSN"
	EnvLogLevel       = "MAPCAP_LOG_LEVEL"
	EnvLogFormat      = "MAPCAP_LOG_FORMAT"
)

// Defaults.
const (
	DefaultAPIURL       = "http://localhost:3000/api"
	DefaultHTTPTimeout  = 10 * time.Second
	DefaultPollInterval = 30 * time.Second
	DefaultListenAddr   = ":8080"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all app configuration.
type Config struct {
	// Backend
	APIURL       string
	HTTPTimeout  time.Duration
	PollInterval time.Duration

	// Dashboard
	ListenAddr     string
	AllowedOrigins []string
	WalletMode     string
	PiSandbox      bool

	// Storage; empty DSNs select in-memory stores
	PostgresDSN   string
	ClickhouseDSN string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads the .env file at path (if present) and then the environment.
// Variables already set in the environment win over the file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables and defaults.
func FromEnv() (*Config, error) {
	timeout, err := getEnvAsDuration(EnvHTTPTimeout, DefaultHTTPTimeout)
	if err != nil {
		return nil, err
	}
	interval, err := getEnvAsDuration(EnvPollInterval, DefaultPollInterval)
	if err != nil {
		return nil, err
	}
	sandbox, err := getEnvAsBool(EnvPiSandbox, true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIURL:       strings.TrimRight(getEnv(EnvAPIURL, DefaultAPIURL), "/"),
		HTTPTimeout:  timeout,
		PollInterval: interval,

		ListenAddr:     getEnv(EnvListenAddr, DefaultListenAddr),
		AllowedOrigins: getEnvAsSlice(EnvAllowedOrigins, nil, ","),
		WalletMode:     strings.ToLower(getEnv(EnvWalletMode, WalletModeRelay)),
		PiSandbox:      sandbox,

		PostgresDSN:   getEnv(EnvPostgresDSN, ""),
		ClickhouseDSN: getEnv(EnvClickhouseDSN, ""),

		LogLevel:  strings.ToLower(getEnv(EnvLogLevel, DefaultLogLevel)),
		LogFormat: strings.ToLower(getEnv(EnvLogFormat, DefaultLogFormat)),
	}
	return cfg, nil
}

// UseMemory reports whether no database is configured.
func (c *Config) UseMemory() bool {
	return c.PostgresDSN == "" && c.ClickhouseDSN == ""
}

// Validate checks the configuration for values the dashboard cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s must be an absolute http(s) URL, got %q", ErrInvalidConfig, EnvAPIURL, c.APIURL)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, EnvHTTPTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, EnvPollInterval)
	}
	switch c.WalletMode {
	case WalletModeRelay, WalletModeStub:
	default:
		return fmt.Errorf("%w: %s must be %q or %q, got %q", ErrInvalidConfig, EnvWalletMode, WalletModeRelay, WalletModeStub, c.WalletMode)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("%w: %s must be json or console, got %q", ErrInvalidConfig, EnvLogFormat, c.LogFormat)
	}
	// Both stores or neither: the audit trail and history live in different databases.
	if (c.PostgresDSN == "") != (c.ClickhouseDSN == "") {
		return fmt.Errorf("%w: set both %s and %s, or neither for in-memory storage", ErrInvalidConfig, EnvPostgresDSN, EnvClickhouseDSN)
	}
	return nil
}

// Helper functions for parsing environment variables

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return d, nil
}

func getEnvAsBool(key string, defaultVal bool) (bool, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseBool(valStr)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return v, nil
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(valStr, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
