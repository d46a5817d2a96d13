package config

import "time"

// Config represents the main configuration structure
type Config struct {
	LogLevel           string                `json:"logLevel"`
	Endpoint           string                `json:"endpoint"`
	BatchDelay         int                   `json:"batchDelay"`     // ms - debounce window per partition
	RequestTimeout     int                   `json:"requestTimeout"` // ms - 0 disables the timeout
	PrincipalCacheSize int                   `json:"principalCacheSize"`
	MetricsAddr        string                `json:"metricsAddr,omitempty"` // empty disables /metrics
	RetryEnabled       bool                  `json:"retryEnabled"`
	RetryMaxAttempts   int                   `json:"retryMaxAttempts"`
	CircuitBreaker     *CircuitBreakerConfig `json:"circuitBreaker,omitempty"`
}

// CircuitBreakerConfig represents sidecar circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool `json:"enabled"`
	FailureThreshold int  `json:"failureThreshold"`
	RecoveryTimeout  int  `json:"recoveryTimeout"` // ms
}

// Default values
const (
	DefaultLogLevel           = "info"
	DefaultEndpoint           = "https://api.stxer.xyz"
	DefaultBatchDelay         = 100   // ms
	DefaultRequestTimeout     = 30000 // ms
	DefaultPrincipalCacheSize = 1024
	DefaultRetryMaxAttempts   = 3
	DefaultFailureThreshold   = 5
	DefaultRecoveryTimeout    = 30000 // ms
)

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg, nil)
	return cfg
}

// GetBatchDelayDuration returns the batch delay as time.Duration
func (c *Config) GetBatchDelayDuration() time.Duration {
	return time.Duration(c.BatchDelay) * time.Millisecond
}

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// IsCircuitBreakerEnabled returns true if the circuit breaker is configured and enabled
func (c *Config) IsCircuitBreakerEnabled() bool {
	return c.CircuitBreaker != nil && c.CircuitBreaker.Enabled
}

// IsMetricsEnabled returns true if a metrics listen address is configured
func (c *Config) IsMetricsEnabled() bool {
	return c.MetricsAddr != ""
}

// GetRecoveryTimeoutDuration returns the breaker recovery timeout as time.Duration
func (c *CircuitBreakerConfig) GetRecoveryTimeoutDuration() time.Duration {
	return time.Duration(c.RecoveryTimeout) * time.Millisecond
}
