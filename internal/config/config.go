// Package config defines lcarun configuration structures and loading hooks.
//
// Conventions:
// - New() builds a Config with defaults; Load layers file and env on top.
// - Keys are flat snake_case and double as env suffixes (LCARUN_<KEY>).
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log records.
	LogFormat string `koanf:"log_format"`

	// Host and Port locate the application's IPC server.
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// TimeoutMS bounds a single RPC round trip.
	TimeoutMS int `koanf:"timeout_ms"`

	// PollIntervalMS is the delay between result state polls.
	PollIntervalMS int `koanf:"poll_interval_ms"`

	// WaitTimeoutMS bounds the wait for a result; zero waits indefinitely.
	WaitTimeoutMS int `koanf:"wait_timeout_ms"`

	// ProcessName is looked up exactly; ProcessKeywords drive the fallback scan.
	ProcessName     string   `koanf:"process_name"`
	ProcessKeywords []string `koanf:"process_keywords"`

	// MethodName is looked up exactly. MethodKeywords match case-insensitively,
	// MethodRawKeywords verbatim.
	MethodName        string   `koanf:"method_name"`
	MethodKeywords    []string `koanf:"method_keywords"`
	MethodRawKeywords []string `koanf:"method_raw_keywords"`

	// ClimateKeywords select the impact categories reported as GWP.
	ClimateKeywords []string `koanf:"climate_keywords"`

	// FallbackLimit caps the category listing when nothing is climate related.
	FallbackLimit int `koanf:"fallback_limit"`

	// Amount of the target process's reference flow.
	Amount float64 `koanf:"amount"`

	// Simulate also submits the setup as a simulation before calculating.
	Simulate bool `koanf:"simulate"`

	// MetricsFile, when set, receives the metrics registry in text format.
	MetricsFile string `koanf:"metrics_file"`
}

// New creates a Config with defaults matching a stock local installation.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Host:              "localhost",
		Port:              8080,
		TimeoutMS:         30_000,
		PollIntervalMS:    500,
		WaitTimeoutMS:     0,
		ProcessName:       "electric cables",
		ProcessKeywords:   []string{"electric"},
		MethodName:        "ILCD 1.0.8 2016 midpoint",
		MethodKeywords:    []string{"ilcd"},
		MethodRawKeywords: []string{"2016"},
		ClimateKeywords:   []string{"climate", "gwp", "global warming", "气候"},
		FallbackLimit:     5,
		Amount:            1.0,
		Simulate:          true,
	}
}

// BaseURL returns the IPC server URL.
func (c *Config) BaseURL() string {
	u := url.URL{Scheme: "http", Host: net.JoinHostPort(c.Host, strconv.Itoa(c.Port))}
	return u.String()
}

// Timeout returns the per-call timeout.
func (c *Config) Timeout() time.Duration { return time.Duration(c.TimeoutMS) * time.Millisecond }

// PollInterval returns the result polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// WaitTimeout returns the result wait bound; zero means none.
func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutMS) * time.Millisecond
}

// Validate checks the configuration for values the client cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("%w: host must not be empty", ErrInvalidConfig)
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%w: port must be in 1..65535, got %d", ErrInvalidConfig, c.Port)
	case c.TimeoutMS <= 0:
		return fmt.Errorf("%w: timeout_ms must be positive", ErrInvalidConfig)
	case c.PollIntervalMS <= 0:
		return fmt.Errorf("%w: poll_interval_ms must be positive", ErrInvalidConfig)
	case c.WaitTimeoutMS < 0:
		return fmt.Errorf("%w: wait_timeout_ms must not be negative", ErrInvalidConfig)
	case c.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidConfig)
	case c.ProcessName == "" && len(c.ProcessKeywords) == 0:
		return fmt.Errorf("%w: process_name or process_keywords required", ErrInvalidConfig)
	}
	return nil
}
