package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, 100*time.Millisecond, cfg.GetBatchDelayDuration())
	assert.Equal(t, 30*time.Second, cfg.GetRequestTimeoutDuration())
	assert.Equal(t, DefaultPrincipalCacheSize, cfg.PrincipalCacheSize)
	assert.False(t, cfg.IsCircuitBreakerEnabled())
	assert.False(t, cfg.IsMetricsEnabled())
	assert.False(t, cfg.RetryEnabled)
	assert.Equal(t, DefaultRetryMaxAttempts, cfg.RetryMaxAttempts)
}

func TestParse_ExplicitZeroTimeout(t *testing.T) {
	cfg, err := Parse([]byte(`{"requestTimeout": 0}`))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.GetRequestTimeoutDuration())
}

func TestParse_CircuitBreakerDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{"circuitBreaker": {"enabled": true}}`))
	require.NoError(t, err)

	require.True(t, cfg.IsCircuitBreakerEnabled())
	assert.Equal(t, DefaultFailureThreshold, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.CircuitBreaker.GetRecoveryTimeoutDuration())
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"log level":  `{"logLevel": "verbose"}`,
		"endpoint":   `{"endpoint": "ftp://example.com"}`,
		"delay":      `{"batchDelay": -1}`,
		"timeout":    `{"requestTimeout": -5}`,
		"cache size": `{"principalCacheSize": -1}`,
		"retries":    `{"retryMaxAttempts": -1}`,
		"breaker":    `{"circuitBreaker": {"enabled": true, "failureThreshold": -1}}`,
		"not json":   `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"endpoint": "http://localhost:3999", "batchDelay": 250}`), 0o600))

	cfg, err = LoadWithDefaults(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3999", cfg.Endpoint)
	assert.Equal(t, 250*time.Millisecond, cfg.GetBatchDelayDuration())
}
