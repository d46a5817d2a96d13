package batcher

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"stxbatch/internal/clarity"
)

// Category is the kind of read a request performs
type Category int

const (
	CategoryVariable Category = iota
	CategoryMapEntry
	CategoryReadonly
)

// String returns the category name
func (c Category) String() string {
	switch c {
	case CategoryVariable:
		return "variable"
	case CategoryMapEntry:
		return "mapEntry"
	case CategoryReadonly:
		return "readonly"
	default:
		return "unknown"
	}
}

// Request is one of VariableRead, MapRead or ReadonlyCall
type Request interface {
	Category() Category
	Target() clarity.ContractPrincipal
	isRequest()
}

// VariableRead reads a data variable
type VariableRead struct {
	Contract clarity.ContractPrincipal
	Variable string
}

// MapRead reads a single map entry
type MapRead struct {
	Contract clarity.ContractPrincipal
	Map      string
	Key      clarity.Value
}

// ReadonlyCall evaluates a read-only function
type ReadonlyCall struct {
	Contract clarity.ContractPrincipal
	Function string
	Args     []clarity.Value
}

func (VariableRead) Category() Category { return CategoryVariable }
func (MapRead) Category() Category      { return CategoryMapEntry }
func (ReadonlyCall) Category() Category { return CategoryReadonly }

func (r VariableRead) Target() clarity.ContractPrincipal { return r.Contract }
func (r MapRead) Target() clarity.ContractPrincipal      { return r.Contract }
func (r ReadonlyCall) Target() clarity.ContractPrincipal { return r.Contract }

func (VariableRead) isRequest() {}
func (MapRead) isRequest()      {}
func (ReadonlyCall) isRequest() {}

// Envelope is one outbound batch. Each sub-list keeps enqueue order.
type Envelope struct {
	Tip       string // empty for the default partition
	Variables []VariableRead
	Maps      []MapRead
	Readonly  []ReadonlyCall
}

// Len returns the total number of reads in the envelope
func (e *Envelope) Len() int {
	return len(e.Variables) + len(e.Maps) + len(e.Readonly)
}

// Outcome is a single positional result: a raw encoded value or a failure message
type Outcome struct {
	Value   string
	Message string
	Failed  bool
}

// OkOutcome wraps a raw encoded value
func OkOutcome(value string) Outcome {
	return Outcome{Value: value}
}

// ErrOutcome wraps a per-item failure message
func ErrOutcome(message string) Outcome {
	return Outcome{Message: message, Failed: true}
}

// BatchResult is the transport's answer to one Envelope
type BatchResult struct {
	Tip       string
	Variables []Outcome
	Maps      []Outcome
	Readonly  []Outcome
}

// Transport sends one envelope and returns one aligned result, or fails wholesale
type Transport interface {
	Execute(ctx context.Context, env *Envelope) (*BatchResult, error)
}

// TransportFunc adapts a function to Transport
type TransportFunc func(ctx context.Context, env *Envelope) (*BatchResult, error)

// Execute calls f
func (f TransportFunc) Execute(ctx context.Context, env *Envelope) (*BatchResult, error) {
	return f(ctx, env)
}

// Decoder converts a raw encoded value into a Clarity value
type Decoder func(raw string) (clarity.Value, error)

// Decoders holds one decoder per category. Nil entries use clarity.DeserializeHex.
type Decoders struct {
	Variable Decoder
	MapEntry Decoder
	Readonly Decoder
}

func (d Decoders) forCategory(cat Category) Decoder {
	var dec Decoder
	switch cat {
	case CategoryVariable:
		dec = d.Variable
	case CategoryMapEntry:
		dec = d.MapEntry
	case CategoryReadonly:
		dec = d.Readonly
	}
	if dec == nil {
		return clarity.DeserializeHex
	}
	return dec
}

// Result is what a caller receives for one request
type Result struct {
	Value clarity.Value
	Err   error
}

// slot is a single-assignment result holder. The channel is buffered so
// fulfilment never blocks on the reader.
type slot struct {
	once sync.Once
	ch   chan Result
}

func newSlot() *slot {
	return &slot{ch: make(chan Result, 1)}
}

// fulfill returns false if the slot was already fulfilled
func (s *slot) fulfill(r Result) bool {
	done := false
	s.once.Do(func() {
		s.ch <- r
		done = true
	})
	return done
}

func (s *slot) resolve(v clarity.Value) bool { return s.fulfill(Result{Value: v}) }
func (s *slot) reject(err error) bool        { return s.fulfill(Result{Err: err}) }

// pending is a queued request and its result slot
type pending struct {
	req  Request
	slot *slot
}

// generation is one queue lifetime for a partition key
type generation struct {
	id        string
	key       string
	items     []*pending
	timer     *clock.Timer
	createdAt time.Time
}

// groups holds a generation's requests split by category, in enqueue order
type groups struct {
	variables []*pending
	maps      []*pending
	readonly  []*pending
}

func (g *groups) forCategory(cat Category) []*pending {
	switch cat {
	case CategoryVariable:
		return g.variables
	case CategoryMapEntry:
		return g.maps
	default:
		return g.readonly
	}
}
