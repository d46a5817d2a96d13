package main

import (
	"context"
	"fmt"
	"strings"

	"stxbatch/internal/clarity"
	"stxbatch/internal/reader"
)

// listFlag collects a repeatable string flag
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type queryKind int

const (
	queryVar queryKind = iota
	queryMap
	queryCall
)

// query is one read requested on the command line
type query struct {
	kind     queryKind
	raw      string
	contract string
	name     string
	args     []clarity.Value
}

// parseQuery parses ADDR.contract:name[:hex...]
func parseQuery(kind queryKind, raw string) (query, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return query{}, fmt.Errorf("invalid query %q: expected CONTRACT:NAME", raw)
	}

	q := query{kind: kind, raw: raw, contract: parts[0], name: parts[1]}
	if _, err := clarity.ParseContractID(q.contract); err != nil {
		return query{}, fmt.Errorf("invalid query %q: %w", raw, err)
	}

	hexArgs := parts[2:]
	switch kind {
	case queryVar:
		if len(hexArgs) != 0 {
			return query{}, fmt.Errorf("invalid query %q: variables take no arguments", raw)
		}
	case queryMap:
		if len(hexArgs) != 1 {
			return query{}, fmt.Errorf("invalid query %q: expected CONTRACT:MAP:KEYHEX", raw)
		}
	}

	for i, h := range hexArgs {
		v, err := clarity.DeserializeHex(h)
		if err != nil {
			return query{}, fmt.Errorf("invalid query %q: argument %d: %w", raw, i, err)
		}
		q.args = append(q.args, v)
	}
	return q, nil
}

func (q query) label() string {
	switch q.kind {
	case queryVar:
		return "var " + q.raw
	case queryMap:
		return "map " + q.raw
	default:
		return "call " + q.raw
	}
}

// run performs the read against r
func (q query) run(ctx context.Context, r *reader.Reader, tipRef string) (clarity.Value, error) {
	switch q.kind {
	case queryVar:
		return r.ReadVariable(ctx, tipRef, q.contract, q.name)
	case queryMap:
		return r.ReadMap(ctx, tipRef, q.contract, q.name, q.args[0])
	default:
		return r.CallReadonly(ctx, tipRef, q.contract, q.name, q.args...)
	}
}

// format renders a read result for output; a missing map entry prints as none
func format(v clarity.Value) string {
	if v == nil {
		return clarity.None{}.String()
	}
	return v.String()
}
