package multicall

import (
	"context"

	"multicall/internal/wire"
)

// Querier executes one encoded query envelope and returns a terminal outcome.
// Timeouts and retries, if any, belong to the implementation.
type Querier interface {
	RawQuery(ctx context.Context, request []byte) Outcome
}

// HeightSource reports the current execution height.
type HeightSource interface {
	Height() uint64
}

// Outcome is the three-way result of a query: success, system failure or
// contract failure. The zero value is a successful empty response.
type Outcome struct {
	Data []byte      // Data is the response payload on success
	Err  *QueryError // Err is set on failure
}

// Success returns a successful outcome.
func Success(data []byte) Outcome {
	return Outcome{Data: data}
}

// SystemFailure returns an outcome for a request the querier could not complete.
func SystemFailure(msg string) Outcome {
	return Outcome{Err: &QueryError{Kind: KindSystem, Msg: msg}}
}

// ContractFailure returns an outcome for a target that signalled an error.
func ContractFailure(msg string) Outcome {
	return Outcome{Err: &QueryError{Kind: KindContract, Msg: msg}}
}

// SmartQuerierFunc adapts a per-address handler to a Querier.
type SmartQuerierFunc func(ctx context.Context, address string, msg []byte) Outcome

// RawQuery decodes the envelope and calls f.
func (f SmartQuerierFunc) RawQuery(ctx context.Context, request []byte) Outcome {
	q, err := wire.DecodeQuery(request)
	if err != nil {
		return SystemFailure("parsing query request: " + err.Error())
	}

	return f(ctx, q.Address, q.Msg)
}
