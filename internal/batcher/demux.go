package batcher

import (
	"fmt"

	"stxbatch/internal/clarity"
)

var categories = [...]Category{CategoryVariable, CategoryMapEntry, CategoryReadonly}

func outcomesFor(res *BatchResult, cat Category) []Outcome {
	switch cat {
	case CategoryVariable:
		return res.Variables
	case CategoryMapEntry:
		return res.Maps
	default:
		return res.Readonly
	}
}

// checkShape verifies every outcome list lines up with its request list.
// It runs before any slot is fulfilled so a mismatch fails the whole generation.
func checkShape(grouped *groups, res *BatchResult) error {
	for _, cat := range categories {
		want := len(grouped.forCategory(cat))
		got := len(outcomesFor(res, cat))
		if want != got {
			return &ShapeError{Category: cat, Want: want, Got: got}
		}
	}
	return nil
}

// demux fulfils each request from its positional outcome and returns the
// number of requests that were rejected.
func (c *Coalescer) demux(grouped *groups, res *BatchResult) int {
	failed := 0
	for _, cat := range categories {
		failed += c.route(cat, grouped.forCategory(cat), outcomesFor(res, cat))
	}
	return failed
}

func (c *Coalescer) route(cat Category, items []*pending, outcomes []Outcome) int {
	decode := c.decoders.forCategory(cat)
	failed := 0

	for i, item := range items {
		outcome := outcomes[i]
		if outcome.Failed {
			item.slot.reject(&ItemError{Category: cat, Index: i, Message: outcome.Message})
			c.metrics.ItemFailed(FailureItem)
			failed++
			continue
		}

		value, err := safeDecode(decode, outcome.Value)
		if err != nil {
			item.slot.reject(&DecodeError{Category: cat, Index: i, Cause: err})
			c.metrics.ItemFailed(FailureDecode)
			failed++
			continue
		}
		item.slot.resolve(value)
	}
	return failed
}

// safeDecode confines a panicking decoder to the one request it was decoding
func safeDecode(decode Decoder, raw string) (value clarity.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("decoder panicked: %v", r)
		}
	}()
	return decode(raw)
}
