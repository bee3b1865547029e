// Package multicall aggregates batches of contract queries into one ordered
// response.
//
// Calls are dispatched one after another in input order. Each result is
// written at its call's input index, so result i always answers call i.
// Failure handling is chosen per operation: Aggregate aborts on any failure,
// TryAggregate applies one batch-wide policy and TryAggregateOptional lets
// every call carry its own.
package multicall

import (
	"context"
	"log/slog"
)

// Aggregator runs query batches against a Querier.
// It holds no per-batch state and is safe for concurrent use when the
// querier is.
type Aggregator struct {
	querier Querier      // querier executes individual calls
	heights HeightSource // heights stamps block-scoped results
	log     *slog.Logger // log receives batch diagnostics
}

// NewAggregator creates an Aggregator.
// heights may be nil if block-scoped operations are never used.
func NewAggregator(log *slog.Logger, q Querier, heights HeightSource) *Aggregator {
	return &Aggregator{
		querier: q,
		heights: heights,
		log:     log,
	}
}

// Aggregate runs every call and fails the whole batch on the first failure.
func (a *Aggregator) Aggregate(ctx context.Context, calls []Call) (*AggregateResult, error) {
	return a.run(ctx, len(calls), func(i int) (string, []byte, bool) {
		return calls[i].Address, calls[i].Data, true
	}, false)
}

// TryAggregate runs every call under one batch-wide policy.
// With requireSuccess false, failures are recorded and the batch continues;
// includeCause puts the failure description into the failed entry.
func (a *Aggregator) TryAggregate(ctx context.Context, requireSuccess, includeCause bool, calls []Call) (*AggregateResult, error) {
	return a.run(ctx, len(calls), func(i int) (string, []byte, bool) {
		return calls[i].Address, calls[i].Data, requireSuccess
	}, includeCause)
}

// TryAggregateOptional runs every call, aborting only when a failing call
// has RequireSuccess set.
func (a *Aggregator) TryAggregateOptional(ctx context.Context, includeCause bool, calls []CallOptional) (*AggregateResult, error) {
	return a.run(ctx, len(calls), func(i int) (string, []byte, bool) {
		return calls[i].Address, calls[i].Data, calls[i].RequireSuccess
	}, includeCause)
}

// callAt yields the address, payload and require-success flag of call i.
type callAt func(i int) (address string, data []byte, requireSuccess bool)

// run is the shared engine. It walks calls in input order and writes each
// result into its own slot of a buffer sized to the batch.
// The buffer is returned whole or not at all.
func (a *Aggregator) run(ctx context.Context, n int, at callAt, includeCause bool) (*AggregateResult, error) {
	results := make([]CallResult, n)

	for i := range n {
		address, data, requireSuccess := at(i)

		resp, qerr, err := a.dispatch(ctx, address, data)
		if err != nil {
			return nil, malformed(i, err)
		}

		if qerr == nil {
			results[i] = CallResult{Success: true, Data: resp}
			continue
		}

		if requireSuccess {
			a.log.Debug("batch aborted", "index", i, "size", n, "error", qerr)
			return nil, &IndexError{Index: i, Err: qerr}
		}

		results[i] = failedResult(qerr, includeCause)
	}

	return &AggregateResult{ReturnData: results}, nil
}
