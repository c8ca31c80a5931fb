package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const envPrefix = "CHATWAVE_"

// Config holds the runtime configuration for the console.
type Config struct {
	// BillingAPIURL is the base URL of the billing backend.
	BillingAPIURL string

	// DataDir is where durable client state (the checkout checkpoint) lives.
	DataDir string

	// ListenAddr is the address the console HTTP server binds to.
	ListenAddr string

	// PollInterval is the fixed interval between order-status polls.
	PollInterval time.Duration

	// PollDeadline is the wall-clock budget for confirming a payment.
	PollDeadline time.Duration

	// NetworkRetries bounds local retries of transport failures.
	NetworkRetries int

	// RequestTimeout bounds individual billing API calls.
	RequestTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		BillingAPIURL:  "http://localhost:7655",
		DataDir:        "/var/lib/chatwave",
		ListenAddr:     ":7654",
		PollInterval:   3 * time.Second,
		PollDeadline:   2 * time.Minute,
		NetworkRetries: 3,
		RequestTimeout: 15 * time.Second,
		LogLevel:       "info",
		LogFormat:      "auto",
	}
}

// Load builds the configuration from defaults, an optional .env file, and
// CHATWAVE_-prefixed environment variables, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file, continuing with process environment")
	}

	cfg := Defaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if val := os.Getenv(envPrefix + "BILLING_API_URL"); val != "" {
		c.BillingAPIURL = val
	}
	if val := os.Getenv(envPrefix + "DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv(envPrefix + "LISTEN_ADDR"); val != "" {
		c.ListenAddr = val
	}
	if val := os.Getenv(envPrefix + "POLL_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			c.PollInterval = d
		} else {
			log.Warn().Str("value", val).Msg("Invalid POLL_INTERVAL, keeping default")
		}
	}
	if val := os.Getenv(envPrefix + "POLL_DEADLINE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			c.PollDeadline = d
		} else {
			log.Warn().Str("value", val).Msg("Invalid POLL_DEADLINE, keeping default")
		}
	}
	if val := os.Getenv(envPrefix + "NETWORK_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			c.NetworkRetries = n
		} else {
			log.Warn().Str("value", val).Msg("Invalid NETWORK_RETRIES, keeping default")
		}
	}
	if val := os.Getenv(envPrefix + "REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			c.RequestTimeout = d
		} else {
			log.Warn().Str("value", val).Msg("Invalid REQUEST_TIMEOUT, keeping default")
		}
	}
	if val := os.Getenv(envPrefix + "LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv(envPrefix + "LOG_FORMAT"); val != "" {
		c.LogFormat = val
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.BillingAPIURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid billing API URL %q", c.BillingAPIURL)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data directory is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.PollDeadline < c.PollInterval {
		return fmt.Errorf("poll deadline %s shorter than poll interval %s", c.PollDeadline, c.PollInterval)
	}
	return nil
}
