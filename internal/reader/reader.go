// Package reader offers typed contract reads on top of a batch coalescer.
//
// Each call validates and encodes its arguments up front, so a malformed
// argument fails only its own call and never the batch it would have joined.
package reader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"stxbatch/internal/batcher"
	"stxbatch/internal/clarity"
	"stxbatch/internal/config"
	"stxbatch/internal/metrics"
	"stxbatch/internal/sidecar"
)

// ErrNotResponse is returned by UnwrapResponse for non-response values
var ErrNotResponse = errors.New("value is not a response")

// ResponseError carries the payload of an (err ...) response
type ResponseError struct {
	Value clarity.Value
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("contract returned %s", clarity.ResponseErr{Value: e.Value})
}

// Reader issues typed reads through one coalescer
type Reader struct {
	coalescer *batcher.Coalescer
	client    *sidecar.Client
}

// New wraps an existing coalescer
func New(c *batcher.Coalescer) *Reader {
	return &Reader{coalescer: c}
}

// NewFromConfig builds a sidecar client and a coalescer from cfg.
// reg may be nil to skip metrics.
func NewFromConfig(cfg *config.Config, reg prometheus.Registerer, logger zerolog.Logger) (*Reader, error) {
	principals, err := clarity.NewPrincipalCache(cfg.PrincipalCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create principal cache: %w", err)
	}

	sidecarCfg := sidecar.Config{
		Endpoint:       cfg.Endpoint,
		RequestTimeout: cfg.GetRequestTimeoutDuration(),
		Retry: sidecar.RetryConfig{
			Enabled:     cfg.RetryEnabled,
			MaxAttempts: cfg.RetryMaxAttempts,
		},
		Principals: principals,
		Logger:     logger,
	}
	if cfg.IsCircuitBreakerEnabled() {
		sidecarCfg.CircuitBreaker = sidecar.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			RecoveryTimeout:  cfg.CircuitBreaker.GetRecoveryTimeoutDuration(),
		}
	}

	client, err := sidecar.NewClient(sidecarCfg)
	if err != nil {
		return nil, err
	}

	batcherCfg := batcher.Config{
		Delay:           cfg.GetBatchDelayDuration(),
		DispatchTimeout: cfg.GetRequestTimeoutDuration(),
		Decoders:        Decoders(),
		Logger:          logger,
	}
	if reg != nil {
		collector, err := metrics.NewCollector(reg)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		batcherCfg.Metrics = collector
	}

	return &Reader{
		coalescer: batcher.New(client, batcherCfg),
		client:    client,
	}, nil
}

var (
	defaultOnce   sync.Once
	defaultReader *Reader
)

// Default returns a process-wide reader using the default configuration.
// Callers that need their own delay or endpoint should use New or NewFromConfig.
func Default() *Reader {
	defaultOnce.Do(func() {
		r, err := NewFromConfig(config.Default(), nil, zerolog.Nop())
		if err != nil {
			panic(fmt.Sprintf("reader: default configuration is invalid: %v", err))
		}
		defaultReader = r
	})
	return defaultReader
}

// Coalescer returns the underlying coalescer
func (r *Reader) Coalescer() *batcher.Coalescer {
	return r.coalescer
}

// Close flushes pending reads and releases the sidecar client if it owns one
func (r *Reader) Close(ctx context.Context) error {
	err := r.coalescer.Close(ctx)
	if r.client != nil {
		r.client.Close()
	}
	return err
}

// ReadVariable reads a data variable. tipRef pins an index block hash; "" reads latest.
func (r *Reader) ReadVariable(ctx context.Context, tipRef, contractID, variable string) (clarity.Value, error) {
	contract, err := clarity.ParseContractID(contractID)
	if err != nil {
		return nil, err
	}
	return r.coalescer.Read(ctx, tipRef, batcher.VariableRead{
		Contract: contract,
		Variable: variable,
	})
}

// ReadMap reads a map entry. A missing entry returns (nil, nil).
func (r *Reader) ReadMap(ctx context.Context, tipRef, contractID, mapName string, key clarity.Value) (clarity.Value, error) {
	contract, err := clarity.ParseContractID(contractID)
	if err != nil {
		return nil, err
	}
	if _, err := clarity.Serialize(key); err != nil {
		return nil, fmt.Errorf("invalid key for map %s: %w", mapName, err)
	}

	v, err := r.coalescer.Read(ctx, tipRef, batcher.MapRead{
		Contract: contract,
		Map:      mapName,
		Key:      key,
	})
	if err != nil {
		return nil, err
	}
	return unwrapMapEntry(v)
}

// CallReadonly evaluates a read-only function
func (r *Reader) CallReadonly(ctx context.Context, tipRef, contractID, function string, args ...clarity.Value) (clarity.Value, error) {
	contract, err := clarity.ParseContractID(contractID)
	if err != nil {
		return nil, err
	}
	for i, arg := range args {
		if _, err := clarity.Serialize(arg); err != nil {
			return nil, fmt.Errorf("invalid argument %d for %s: %w", i, function, err)
		}
	}

	return r.coalescer.Read(ctx, tipRef, batcher.ReadonlyCall{
		Contract: contract,
		Function: function,
		Args:     args,
	})
}

// UnwrapResponse returns the payload of (ok v), or a ResponseError for (err v)
func UnwrapResponse(v clarity.Value) (clarity.Value, error) {
	switch resp := v.(type) {
	case clarity.ResponseOk:
		return resp.Value, nil
	case clarity.ResponseErr:
		return nil, &ResponseError{Value: resp.Value}
	default:
		return nil, fmt.Errorf("%w: got %s", ErrNotResponse, typeName(v))
	}
}

func typeName(v clarity.Value) string {
	if v == nil {
		return "nil"
	}
	return v.Type().String()
}
