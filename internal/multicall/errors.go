package multicall

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedCall is returned when a call cannot be encoded for dispatch.
	// It always aborts the batch.
	ErrMalformedCall = errors.New("malformed call")

	// ErrExecuteNotSupported is returned by every mutation entry point.
	ErrExecuteNotSupported = errors.New("contract execution is not supported")
)

// Kind classifies a query failure.
type Kind int

const (
	// KindSystem means the querier could not complete the request.
	KindSystem Kind = iota + 1

	// KindContract means the target executed and returned an error.
	KindContract
)

// QueryError is a classified per-call failure.
type QueryError struct {
	Kind Kind   // Kind is the failure class
	Msg  string // Msg is the description from the querier or the target
}

func (e *QueryError) Error() string {
	switch e.Kind {
	case KindSystem:
		return "querier system error: " + e.Msg
	case KindContract:
		return "querier contract error: " + e.Msg
	default:
		return "querier error: " + e.Msg
	}
}

// cause encodes the failure description as a JSON string payload.
func (e *QueryError) cause() []byte {
	data, _ := json.Marshal(e.Error())
	return data
}

// IndexError aborts a batch because the call at Index failed.
type IndexError struct {
	Index int   // Index is the input position of the failing call
	Err   error // Err is the underlying failure
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("error at index %d: %v", e.Index, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}
