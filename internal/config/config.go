package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration JSON, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	// requestTimeout may be explicitly 0, so remember whether it was set
	var raw struct {
		Config
		RequestTimeoutPtr *int `json:"requestTimeout"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &raw.Config
	applyDefaults(cfg, raw.RequestTimeoutPtr)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads path, or returns the defaults when path does not exist
func LoadWithDefaults(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config, requestTimeout *int) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}
	if requestTimeout != nil {
		cfg.RequestTimeout = *requestTimeout
	} else {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.PrincipalCacheSize == 0 {
		cfg.PrincipalCacheSize = DefaultPrincipalCacheSize
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = DefaultRetryMaxAttempts
	}
	if cfg.CircuitBreaker != nil {
		if cfg.CircuitBreaker.FailureThreshold == 0 {
			cfg.CircuitBreaker.FailureThreshold = DefaultFailureThreshold
		}
		if cfg.CircuitBreaker.RecoveryTimeout == 0 {
			cfg.CircuitBreaker.RecoveryTimeout = DefaultRecoveryTimeout
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint must be an http(s) URL, got %q", cfg.Endpoint)
	}

	if cfg.BatchDelay < 0 {
		return fmt.Errorf("batchDelay must be positive")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}

	if cfg.PrincipalCacheSize < 0 {
		return fmt.Errorf("principalCacheSize must be positive")
	}

	if cfg.RetryMaxAttempts < 0 {
		return fmt.Errorf("retryMaxAttempts must be non-negative")
	}

	if cfg.CircuitBreaker != nil && cfg.CircuitBreaker.Enabled {
		if cfg.CircuitBreaker.FailureThreshold < 0 {
			return fmt.Errorf("circuitBreaker.failureThreshold must be positive")
		}
		if cfg.CircuitBreaker.RecoveryTimeout < 0 {
			return fmt.Errorf("circuitBreaker.recoveryTimeout must be positive")
		}
	}

	return nil
}
