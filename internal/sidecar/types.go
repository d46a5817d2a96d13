package sidecar

import (
	"errors"

	"stxbatch/internal/batcher"
)

// DefaultEndpoint is the public stxer API
const DefaultEndpoint = "https://api.stxer.xyz"

// BatchPath is appended to the endpoint for batch reads
const BatchPath = "/sidecar/v2/batch"

// ErrMalformedOutcome is returned for an outcome with neither Ok nor Err
var ErrMalformedOutcome = errors.New("outcome has neither Ok nor Err")

// Payload is the JSON body of a batch read.
// vars:     [contract, variable]
// maps:     [contract, map, key]
// readonly: [contract, function, args...]
// All Clarity values are hex encoded.
type Payload struct {
	Tip      string     `json:"tip,omitempty"`
	Vars     [][]string `json:"vars"`
	Maps     [][]string `json:"maps"`
	Readonly [][]string `json:"readonly"`
}

// Response is the JSON body returned for a batch read
type Response struct {
	Tip      string    `json:"tip"`
	Vars     []Outcome `json:"vars"`
	Maps     []Outcome `json:"maps"`
	Readonly []Outcome `json:"readonly"`
}

// Outcome is either {"Ok": "<hex>"} or {"Err": "<message>"}
type Outcome struct {
	Ok  *string `json:"Ok,omitempty"`
	Err *string `json:"Err,omitempty"`
}

// toBatcher converts a wire outcome into a batcher outcome
func (o Outcome) toBatcher() (batcher.Outcome, error) {
	switch {
	case o.Ok != nil:
		return batcher.OkOutcome(*o.Ok), nil
	case o.Err != nil:
		return batcher.ErrOutcome(*o.Err), nil
	default:
		return batcher.Outcome{}, ErrMalformedOutcome
	}
}

func convertOutcomes(list []Outcome) ([]batcher.Outcome, error) {
	out := make([]batcher.Outcome, len(list))
	for i, o := range list {
		converted, err := o.toBatcher()
		if err != nil {
			return nil, err
		}
		out[i] = converted
	}
	return out, nil
}

// ToBatchResult converts the wire response into a batcher result
func (r *Response) ToBatchResult() (*batcher.BatchResult, error) {
	vars, err := convertOutcomes(r.Vars)
	if err != nil {
		return nil, err
	}
	maps, err := convertOutcomes(r.Maps)
	if err != nil {
		return nil, err
	}
	readonly, err := convertOutcomes(r.Readonly)
	if err != nil {
		return nil, err
	}
	return &batcher.BatchResult{
		Tip:       r.Tip,
		Variables: vars,
		Maps:      maps,
		Readonly:  readonly,
	}, nil
}
