package batcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stxbatch/internal/clarity"
	"stxbatch/internal/tip"
)

// DefaultDelay is the debounce window used when Config.Delay is zero
const DefaultDelay = 100 * time.Millisecond

// Config for creating a new Coalescer
type Config struct {
	// Delay is measured from the first request of a generation.
	// Later requests never extend it.
	Delay time.Duration

	// DispatchTimeout bounds each transport call. Zero means no bound.
	DispatchTimeout time.Duration

	Clock    clock.Clock
	Decoders Decoders
	Metrics  Metrics
	Logger   zerolog.Logger
}

// Coalescer queues reads per partition and dispatches each partition as one batch
type Coalescer struct {
	transport       Transport
	delay           time.Duration
	dispatchTimeout time.Duration
	clock           clock.Clock
	decoders        Decoders
	metrics         Metrics
	logger          zerolog.Logger

	mu       sync.Mutex
	queues   map[string]*generation // partition key -> accumulating generation
	closed   bool
	inflight sync.WaitGroup
}

// New creates a Coalescer with its own queue store
func New(transport Transport, cfg Config) *Coalescer {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}

	return &Coalescer{
		transport:       transport,
		delay:           cfg.Delay,
		dispatchTimeout: cfg.DispatchTimeout,
		clock:           cfg.Clock,
		decoders:        cfg.Decoders,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger.With().Str("component", "batcher").Logger(),
		queues:          make(map[string]*generation),
	}
}

// Delay returns the debounce window
func (c *Coalescer) Delay() time.Duration {
	return c.delay
}

// Enqueue adds a request to the partition of tipRef and returns a channel
// that receives exactly one Result. An empty tipRef selects the default partition.
func (c *Coalescer) Enqueue(tipRef string, req Request) <-chan Result {
	s := newSlot()
	if req == nil {
		s.reject(ErrNilRequest)
		return s.ch
	}

	key := tip.Key(tipRef)
	item := &pending{req: req, slot: s}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		s.reject(ErrClosed)
		return s.ch
	}

	gen := c.queues[key]
	if gen == nil {
		gen = &generation{
			id:        uuid.NewString(),
			key:       key,
			createdAt: c.clock.Now(),
		}
		c.queues[key] = gen
	}
	gen.items = append(gen.items, item)

	// Start timer for first item
	if gen.timer == nil {
		gen.timer = c.clock.AfterFunc(c.delay, func() {
			c.flush(gen)
		})
	}
	c.mu.Unlock()

	c.metrics.Enqueued()
	return s.ch
}

// Read enqueues a request and waits for its result. Cancelling ctx stops the
// wait but does not withdraw the request from its batch.
func (c *Coalescer) Read(ctx context.Context, tipRef string, req Request) (clarity.Value, error) {
	ch := c.Enqueue(tipRef, req)
	select {
	case r := <-ch:
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the number of requests waiting for dispatch
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, gen := range c.queues {
		n += len(gen.items)
	}
	return n
}

// flush is the timer callback for one generation
func (c *Coalescer) flush(gen *generation) {
	if !c.detach(gen) {
		return
	}
	c.dispatch(gen)
}

// detach removes gen from the store and disarms its timer in one step.
// Returns false if gen was already detached.
func (c *Coalescer) detach(gen *generation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detachLocked(gen)
}

func (c *Coalescer) detachLocked(gen *generation) bool {
	if c.queues[gen.key] != gen {
		return false
	}
	delete(c.queues, gen.key)
	if gen.timer != nil {
		gen.timer.Stop()
		gen.timer = nil
	}
	c.inflight.Add(1)
	return true
}

// dispatch sends a detached generation and fulfils every slot in it
func (c *Coalescer) dispatch(gen *generation) {
	defer c.inflight.Done()

	items := gen.items
	if len(items) == 0 {
		return
	}

	logger := c.logger.With().
		Str("tip", gen.key).
		Str("generation", gen.id).
		Logger()

	env, grouped := c.buildEnvelope(gen.key, items)
	c.metrics.Dispatched(len(items))

	logger.Debug().
		Int("variables", len(env.Variables)).
		Int("maps", len(env.Maps)).
		Int("readonly", len(env.Readonly)).
		Dur("waited", c.clock.Since(gen.createdAt)).
		Msg("executing batch")

	if env.Len() == 0 {
		return
	}

	ctx := context.Background()
	if c.dispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = c.clock.WithTimeout(ctx, c.dispatchTimeout)
		defer cancel()
	}

	start := c.clock.Now()
	result, err := c.execute(ctx, env)
	elapsed := c.clock.Since(start)

	if err != nil {
		logger.Error().
			Err(err).
			Int("items", len(items)).
			Msg("batch request failed")

		c.rejectAll(items, &TransportError{Tip: gen.key, Generation: gen.id, Cause: err})
		c.metrics.Settled(OutcomeTransportFailure, elapsed)
		return
	}

	if err := checkShape(grouped, result); err != nil {
		logger.Error().
			Err(err).
			Int("items", len(items)).
			Msg("batch result shape mismatch")

		c.rejectAll(items, &TransportError{Tip: gen.key, Generation: gen.id, Cause: err})
		c.metrics.Settled(OutcomeShapeFailure, elapsed)
		return
	}

	if result.Tip != "" && !tip.IsDefault(gen.key) && tip.Normalize(result.Tip) != gen.key {
		logger.Warn().
			Str("echoedTip", result.Tip).
			Msg("batch result tip differs from requested tip")
	}

	failed := c.demux(grouped, result)
	c.metrics.Settled(OutcomeSuccess, elapsed)

	logger.Debug().
		Int("items", len(items)).
		Int("failed", failed).
		Dur("elapsed", elapsed).
		Msg("batch completed")
}

// execute calls the transport and turns a panic or a nil result into an error
func (c *Coalescer) execute(ctx context.Context, env *Envelope) (result *BatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("transport panicked: %v", r)
		}
	}()

	result, err = c.transport.Execute(ctx, env)
	if err == nil && result == nil {
		err = ErrNoResult
	}
	return result, err
}

// buildEnvelope splits items by category, keeping their relative order.
// Requests of an unknown concrete type are rejected here and left out.
func (c *Coalescer) buildEnvelope(key string, items []*pending) (*Envelope, *groups) {
	env := &Envelope{Tip: tip.WireTip(key)}
	grouped := &groups{}

	for _, item := range items {
		switch r := item.req.(type) {
		case VariableRead:
			env.Variables = append(env.Variables, r)
			grouped.variables = append(grouped.variables, item)
		case MapRead:
			env.Maps = append(env.Maps, r)
			grouped.maps = append(grouped.maps, item)
		case ReadonlyCall:
			env.Readonly = append(env.Readonly, r)
			grouped.readonly = append(grouped.readonly, item)
		default:
			item.slot.reject(fmt.Errorf("batcher: unsupported request type %T", item.req))
		}
	}

	return env, grouped
}

func (c *Coalescer) rejectAll(items []*pending, err error) {
	for _, item := range items {
		item.slot.reject(err)
	}
}

// FlushAll dispatches every accumulating generation now and waits for them
// to settle or for ctx to end.
func (c *Coalescer) FlushAll(ctx context.Context) error {
	c.mu.Lock()
	detached := make([]*generation, 0, len(c.queues))
	for _, gen := range c.queues {
		if c.detachLocked(gen) {
			detached = append(detached, gen)
		}
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, gen := range detached {
		wg.Add(1)
		go func(gen *generation) {
			defer wg.Done()
			c.dispatch(gen)
		}(gen)
	}

	return waitGroup(ctx, &wg)
}

// Close rejects further reads, flushes pending generations and waits for
// in-flight dispatches to settle or for ctx to end.
func (c *Coalescer) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if err := c.FlushAll(ctx); err != nil {
		return err
	}
	if err := waitGroup(ctx, &c.inflight); err != nil {
		return err
	}

	c.logger.Info().Msg("batch coalescer closed")
	return nil
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
