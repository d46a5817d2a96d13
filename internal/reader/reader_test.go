package reader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stxbatch/internal/batcher"
	"stxbatch/internal/clarity"
	"stxbatch/internal/config"
)

const (
	testContractID = "SP000000000000000000002Q6VF78.amm-pool"
	testDelay      = 100 * time.Millisecond

	hexSomeU5 = "0a0100000000000000000000000000000005"
	hexNone   = "09"
	hexTrue   = "03"
	hexOkU7   = "070100000000000000000000000000000007"
)

// fixedTransport answers every target from a name -> outcome table
func fixedTransport(calls *atomic.Int32, outcomes map[string]batcher.Outcome) batcher.Transport {
	lookup := func(name string) batcher.Outcome {
		if o, ok := outcomes[name]; ok {
			return o
		}
		return batcher.ErrOutcome("unknown " + name)
	}
	return batcher.TransportFunc(func(_ context.Context, env *batcher.Envelope) (*batcher.BatchResult, error) {
		calls.Add(1)
		res := &batcher.BatchResult{Tip: env.Tip}
		for _, v := range env.Variables {
			res.Variables = append(res.Variables, lookup(v.Variable))
		}
		for _, m := range env.Maps {
			res.Maps = append(res.Maps, lookup(m.Map))
		}
		for _, r := range env.Readonly {
			res.Readonly = append(res.Readonly, lookup(r.Function))
		}
		return res, nil
	})
}

func newTestReader(tr batcher.Transport) (*Reader, *clock.Mock) {
	mock := clock.NewMock()
	c := batcher.New(tr, batcher.Config{
		Delay:    testDelay,
		Clock:    mock,
		Decoders: Decoders(),
		Logger:   zerolog.Nop(),
	})
	return New(c), mock
}

type readResult struct {
	value clarity.Value
	err   error
}

// settle waits for n queued reads, then fires the debounce window
func settle(t *testing.T, r *Reader, mock *clock.Mock, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.Coalescer().Pending() == n
	}, 2*time.Second, time.Millisecond)
	mock.Add(testDelay)
}

func collect(t *testing.T, ch <-chan readResult) readResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("read did not settle")
		return readResult{}
	}
}

func TestReader_MixedReadsShareOneBatch(t *testing.T) {
	var calls atomic.Int32
	r, mock := newTestReader(fixedTransport(&calls, map[string]batcher.Outcome{
		"paused":      batcher.OkOutcome(hexTrue),
		"pools":       batcher.OkOutcome(hexSomeU5),
		"get-balance": batcher.OkOutcome(hexOkU7),
	}))
	ctx := context.Background()

	varCh := make(chan readResult, 1)
	mapCh := make(chan readResult, 1)
	callCh := make(chan readResult, 1)

	go func() {
		v, err := r.ReadVariable(ctx, "", testContractID, "paused")
		varCh <- readResult{v, err}
	}()
	go func() {
		v, err := r.ReadMap(ctx, "", testContractID, "pools", clarity.NewUInt(1))
		mapCh <- readResult{v, err}
	}()
	go func() {
		v, err := r.CallReadonly(ctx, "", testContractID, "get-balance", clarity.NewUInt(2))
		callCh <- readResult{v, err}
	}()

	settle(t, r, mock, 3)

	res := collect(t, varCh)
	require.NoError(t, res.err)
	assert.Equal(t, clarity.Bool(true), res.value)

	res = collect(t, mapCh)
	require.NoError(t, res.err)
	assert.Equal(t, clarity.NewUInt(5), res.value)

	res = collect(t, callCh)
	require.NoError(t, res.err)
	assert.Equal(t, clarity.ResponseOk{Value: clarity.NewUInt(7)}, res.value)

	assert.Equal(t, int32(1), calls.Load())
}

func TestReader_ReadMapMissingEntry(t *testing.T) {
	var calls atomic.Int32
	r, mock := newTestReader(fixedTransport(&calls, map[string]batcher.Outcome{
		"pools": batcher.OkOutcome(hexNone),
	}))

	ch := make(chan readResult, 1)
	go func() {
		v, err := r.ReadMap(context.Background(), "", testContractID, "pools", clarity.NewUInt(9))
		ch <- readResult{v, err}
	}()
	settle(t, r, mock, 1)

	res := collect(t, ch)
	require.NoError(t, res.err)
	assert.Nil(t, res.value)
}

func TestReader_ReadMapNonOptional(t *testing.T) {
	var calls atomic.Int32
	r, mock := newTestReader(fixedTransport(&calls, map[string]batcher.Outcome{
		"pools": batcher.OkOutcome(hexTrue),
	}))

	ch := make(chan readResult, 1)
	go func() {
		v, err := r.ReadMap(context.Background(), "", testContractID, "pools", clarity.NewUInt(1))
		ch <- readResult{v, err}
	}()
	settle(t, r, mock, 1)

	res := collect(t, ch)
	var derr *batcher.DecodeError
	require.ErrorAs(t, res.err, &derr)
	assert.Equal(t, batcher.CategoryMapEntry, derr.Category)
}

func TestReader_ReadMapNonOptionalDefaultDecoders(t *testing.T) {
	var calls atomic.Int32
	mock := clock.NewMock()
	c := batcher.New(fixedTransport(&calls, map[string]batcher.Outcome{
		"pools":    batcher.OkOutcome("0100000000000000000000000000000007"),
		"balances": batcher.OkOutcome(hexSomeU5),
	}), batcher.Config{
		Delay:  testDelay,
		Clock:  mock,
		Logger: zerolog.Nop(),
	})
	r := New(c)

	badCh := make(chan readResult, 1)
	okCh := make(chan readResult, 1)
	go func() {
		v, err := r.ReadMap(context.Background(), "", testContractID, "pools", clarity.NewUInt(1))
		badCh <- readResult{v, err}
	}()
	go func() {
		v, err := r.ReadMap(context.Background(), "", testContractID, "balances", clarity.NewUInt(1))
		okCh <- readResult{v, err}
	}()
	settle(t, r, mock, 2)

	res := collect(t, badCh)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "unexpected map value")
	assert.Nil(t, res.value)

	res = collect(t, okCh)
	require.NoError(t, res.err)
	assert.Equal(t, clarity.NewUInt(5), res.value)
}

func TestReader_ZeroValueArgumentsRejected(t *testing.T) {
	var calls atomic.Int32
	r, _ := newTestReader(fixedTransport(&calls, nil))
	ctx := context.Background()

	_, err := r.CallReadonly(ctx, "", testContractID, "f", clarity.UInt{})
	assert.Error(t, err)

	_, err = r.ReadMap(ctx, "", testContractID, "pools", clarity.Int{})
	assert.Error(t, err)

	assert.Equal(t, 0, r.Coalescer().Pending())
}

func TestReader_InvalidInputsNeverEnqueue(t *testing.T) {
	var calls atomic.Int32
	r, _ := newTestReader(fixedTransport(&calls, nil))
	ctx := context.Background()

	_, err := r.ReadVariable(ctx, "", "not-a-contract", "paused")
	assert.Error(t, err)

	_, err = r.ReadMap(ctx, "", testContractID, "pools", nil)
	assert.Error(t, err)

	_, err = r.CallReadonly(ctx, "", testContractID, "get-balance", clarity.NewUInt(1), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid argument 1")

	assert.Equal(t, 0, r.Coalescer().Pending())
	assert.Equal(t, int32(0), calls.Load())
}

func TestUnwrapResponse(t *testing.T) {
	v, err := UnwrapResponse(clarity.ResponseOk{Value: clarity.NewUInt(3)})
	require.NoError(t, err)
	assert.Equal(t, clarity.NewUInt(3), v)

	_, err = UnwrapResponse(clarity.ResponseErr{Value: clarity.NewUInt(401)})
	var rerr *ResponseError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, clarity.NewUInt(401), rerr.Value)
	assert.Equal(t, "contract returned (err u401)", rerr.Error())

	_, err = UnwrapResponse(clarity.Bool(true))
	assert.ErrorIs(t, err, ErrNotResponse)

	_, err = UnwrapResponse(nil)
	assert.ErrorIs(t, err, ErrNotResponse)
}

func TestDecodeMapEntry(t *testing.T) {
	v, err := DecodeMapEntry(hexNone)
	require.NoError(t, err)
	assert.Equal(t, clarity.None{}, v)

	v, err = DecodeMapEntry("0x" + hexSomeU5)
	require.NoError(t, err)
	assert.Equal(t, clarity.Some{Value: clarity.NewUInt(5)}, v)

	_, err = DecodeMapEntry(hexTrue)
	assert.Error(t, err)

	_, err = DecodeMapEntry("zz")
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tip":"","vars":[{"Ok":"03"}],"maps":[],"readonly":[]}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Endpoint = srv.URL
	cfg.BatchDelay = 5

	reg := prometheus.NewRegistry()
	r, err := NewFromConfig(cfg, reg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, r.Coalescer().Delay())

	v, err := r.ReadVariable(context.Background(), "", testContractID, "paused")
	require.NoError(t, err)
	assert.Equal(t, clarity.Bool(true), v)

	require.NoError(t, r.Close(context.Background()))

	count, err := testutil.GatherAndCount(reg, "stxbatch_batches_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = r.ReadVariable(context.Background(), "", testContractID, "paused")
	assert.ErrorIs(t, err, batcher.ErrClosed)
}

func TestDefault(t *testing.T) {
	a := Default()
	b := Default()
	assert.Same(t, a, b)
	assert.Equal(t, batcher.DefaultDelay, a.Coalescer().Delay())
}
