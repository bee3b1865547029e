package multicall

import (
	"context"
	"fmt"

	"multicall/internal/wire"
)

// dispatch encodes one call and runs it through the querier.
// A nil *QueryError with a non-nil error means the call itself is malformed.
func (a *Aggregator) dispatch(ctx context.Context, address string, data []byte) ([]byte, *QueryError, error) {
	request, err := wire.EncodeQuery(address, data)
	if err != nil {
		return nil, nil, err
	}

	out := a.querier.RawQuery(ctx, request)
	if out.Err != nil {
		return nil, out.Err, nil
	}

	if out.Data == nil {
		return []byte{}, nil, nil
	}

	return out.Data, nil, nil
}

// malformed wraps an encoding failure with the call index.
func malformed(i int, err error) error {
	return fmt.Errorf("%w at index %d:\n%w", ErrMalformedCall, i, err)
}

// failedResult builds the recorded entry for a tolerated failure.
func failedResult(qerr *QueryError, includeCause bool) CallResult {
	if includeCause {
		return CallResult{Success: false, Data: qerr.cause()}
	}

	return CallResult{Success: false, Data: []byte{}}
}
