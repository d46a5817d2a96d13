package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"stxbatch/internal/batcher"
	"stxbatch/internal/clarity"
)

// DefaultPrincipalCacheSize is used when Config.Principals is nil
const DefaultPrincipalCacheSize = 1024

// Config for creating a new Client
type Config struct {
	Endpoint       string
	RequestTimeout time.Duration // 0 means the HTTP client never times out
	CircuitBreaker CircuitBreakerConfig
	Retry          RetryConfig
	Principals     *clarity.PrincipalCache
	HTTPClient     *http.Client
	Clock          clock.Clock
	Logger         zerolog.Logger
}

// Client sends batch reads to a stxer sidecar. It implements batcher.Transport.
type Client struct {
	url        string
	httpClient *http.Client
	breaker    *CircuitBreaker
	retry      RetryConfig
	principals *clarity.PrincipalCache
	logger     zerolog.Logger

	requests atomic.Uint64
}

var _ batcher.Transport = (*Client)(nil)

// NewClient creates a new sidecar Client
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	principals := cfg.Principals
	if principals == nil {
		var err error
		principals, err = clarity.NewPrincipalCache(DefaultPrincipalCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create principal cache: %w", err)
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		}
		httpClient = &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		}
	}

	return &Client{
		url:        endpoint + BatchPath,
		httpClient: httpClient,
		breaker:    NewCircuitBreaker(cfg.CircuitBreaker, cfg.Clock),
		retry:      cfg.Retry,
		principals: principals,
		logger:     cfg.Logger.With().Str("component", "sidecar").Logger(),
	}, nil
}

// URL returns the batch endpoint URL
func (c *Client) URL() string {
	return c.url
}

// RequestCount returns the number of HTTP calls made
func (c *Client) RequestCount() uint64 {
	return c.requests.Load()
}

// Execute sends one envelope and returns the aligned result.
// Transient failures are retried up to the configured attempts.
func (c *Client) Execute(ctx context.Context, env *batcher.Envelope) (*batcher.BatchResult, error) {
	payload, err := c.BuildPayload(env)
	if err != nil {
		return nil, err
	}

	maxAttempts := c.retry.attempts()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !c.breaker.Allow() {
			if lastErr != nil {
				return nil, fmt.Errorf("%w (last error: %v)", ErrCircuitOpen, lastErr)
			}
			return nil, ErrCircuitOpen
		}

		result, err := c.post(ctx, payload)
		if err == nil {
			c.breaker.RecordSuccess()
			return result, nil
		}
		c.breaker.RecordFailure()
		lastErr = err

		if !isRetryable(ctx, err) {
			break
		}
		if attempt < maxAttempts {
			c.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("maxAttempts", maxAttempts).
				Msg("batch request failed, retrying")
		}
	}
	return nil, lastErr
}

// BuildPayload serializes an envelope into the wire payload
func (c *Client) BuildPayload(env *batcher.Envelope) (*Payload, error) {
	payload := &Payload{
		Tip:      env.Tip,
		Vars:     make([][]string, 0, len(env.Variables)),
		Maps:     make([][]string, 0, len(env.Maps)),
		Readonly: make([][]string, 0, len(env.Readonly)),
	}

	for i, v := range env.Variables {
		contract, err := c.principals.ContractHex(v.Contract)
		if err != nil {
			return nil, fmt.Errorf("vars[%d]: %w", i, err)
		}
		payload.Vars = append(payload.Vars, []string{contract, v.Variable})
	}

	for i, m := range env.Maps {
		contract, err := c.principals.ContractHex(m.Contract)
		if err != nil {
			return nil, fmt.Errorf("maps[%d]: %w", i, err)
		}
		key, err := clarity.SerializeHex(m.Key)
		if err != nil {
			return nil, fmt.Errorf("maps[%d] key: %w", i, err)
		}
		payload.Maps = append(payload.Maps, []string{contract, m.Map, key})
	}

	for i, r := range env.Readonly {
		contract, err := c.principals.ContractHex(r.Contract)
		if err != nil {
			return nil, fmt.Errorf("readonly[%d]: %w", i, err)
		}
		entry := make([]string, 0, 2+len(r.Args))
		entry = append(entry, contract, r.Function)
		for j, arg := range r.Args {
			encoded, err := clarity.SerializeHex(arg)
			if err != nil {
				return nil, fmt.Errorf("readonly[%d] arg %d: %w", i, j, err)
			}
			entry = append(entry, encoded)
		}
		payload.Readonly = append(payload.Readonly, entry)
	}

	return payload, nil
}

func (c *Client) post(ctx context.Context, payload *Payload) (*batcher.BatchResult, error) {
	reqBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("HTTP request failed: %w", err)}
	}
	defer resp.Body.Close()

	c.requests.Add(1)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	// A body without any outcome marker is an error page, not a batch result
	if !bytes.Contains(body, []byte("Ok")) && !bytes.Contains(body, []byte("Err")) {
		return nil, fmt.Errorf("requesting batch reads failed: %s, url: %s, payload: %s", string(body), c.url, string(reqBytes))
	}

	var rs Response
	if err := json.Unmarshal(body, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse batch response: %w", err)
	}

	result, err := rs.ToBatchResult()
	if err != nil {
		return nil, fmt.Errorf("failed to parse batch response: %w", err)
	}

	c.logger.Debug().
		Str("tip", rs.Tip).
		Int("vars", len(result.Variables)).
		Int("maps", len(result.Maps)).
		Int("readonly", len(result.Readonly)).
		Msg("batch response received")

	return result, nil
}

// Close releases idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
