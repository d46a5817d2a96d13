// Package batcher coalesces independent contract reads into batched calls.
//
// Every read is queued under a partition key derived from its optional tip
// (index block hash). The first read of a partition arms a fixed timer; when
// it fires the queued reads are detached, split into variable, map-entry and
// read-only sub-lists, sent through the Transport in one call, and each
// caller's result slot is fulfilled from its positional outcome.
//
// Example:
//
//	client, err := sidecar.NewClient(sidecar.Config{Logger: logger})
//	if err != nil {
//		return err
//	}
//	c := batcher.New(client, batcher.Config{
//		Delay:  100 * time.Millisecond,
//		Logger: logger,
//	})
//	defer c.Close(ctx)
//
//	v, err := c.Read(ctx, "", batcher.VariableRead{Contract: contract, Variable: "paused"})
package batcher
