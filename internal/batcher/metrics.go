package batcher

import "time"

// BatchOutcome labels how a dispatched generation settled
type BatchOutcome string

const (
	OutcomeSuccess          BatchOutcome = "success"
	OutcomeTransportFailure BatchOutcome = "transport_failure"
	OutcomeShapeFailure     BatchOutcome = "shape_failure"
)

// FailureKind labels a per-request failure inside a successful batch
type FailureKind string

const (
	FailureItem   FailureKind = "item"
	FailureDecode FailureKind = "decode"
)

// Metrics receives coalescer events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	Enqueued()
	Dispatched(items int)
	Settled(outcome BatchOutcome, elapsed time.Duration)
	ItemFailed(kind FailureKind)
}

type nopMetrics struct{}

func (nopMetrics) Enqueued()                          {}
func (nopMetrics) Dispatched(int)                     {}
func (nopMetrics) Settled(BatchOutcome, time.Duration) {}
func (nopMetrics) ItemFailed(FailureKind)             {}
