// Package wire encodes query envelopes exchanged between the aggregator and
// its queriers. Envelopes are FlatBuffers tables defined in internal/types.
package wire

import (
	"errors"
	"fmt"
	"unicode/utf8"

	flatbuffers "github.com/google/flatbuffers/go"

	"multicall/internal/types"
)

const (
	// MaxAddressSize is the maximum contract address length in bytes.
	MaxAddressSize = 256

	// MaxMsgSize is the maximum query payload size in bytes.
	MaxMsgSize = 1 << 20 // 1 MB

	// minTableSize is the smallest buffer that can hold a root offset and a vtable.
	minTableSize = 8
)

var (
	// ErrMalformedQuery is returned when a query cannot be put into an envelope.
	ErrMalformedQuery = errors.New("malformed query")

	// ErrInvalidEnvelope is returned when bytes do not decode as an envelope.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// Query is a decoded query request envelope.
type Query struct {
	Address string // Address is the target contract address
	Msg     []byte // Msg is the opaque query payload
}

// EncodeQuery builds the QueryRequest envelope for one call.
func EncodeQuery(address string, msg []byte) ([]byte, error) {
	if len(address) > MaxAddressSize {
		return nil, fmt.Errorf("%w: address too long: %d > %d", ErrMalformedQuery, len(address), MaxAddressSize)
	}

	if !utf8.ValidString(address) {
		return nil, fmt.Errorf("%w: address is not valid utf-8", ErrMalformedQuery)
	}

	if len(msg) > MaxMsgSize {
		return nil, fmt.Errorf("%w: msg too large: %d > %d", ErrMalformedQuery, len(msg), MaxMsgSize)
	}

	builder := flatbuffers.NewBuilder(64 + len(address) + len(msg))

	addrOffset := builder.CreateString(address)
	msgOffset := builder.CreateByteVector(msg)

	types.QueryRequestStart(builder)
	types.QueryRequestAddContractAddr(builder, addrOffset)
	types.QueryRequestAddMsg(builder, msgOffset)
	reqOffset := types.QueryRequestEnd(builder)

	types.FinishQueryRequestBuffer(builder, reqOffset)

	return builder.FinishedBytes(), nil
}

// DecodeQuery parses a QueryRequest envelope.
// The returned Msg is a copy and does not alias data.
func DecodeQuery(data []byte) (q *Query, err error) {
	if len(data) < minTableSize {
		return nil, fmt.Errorf("%w: too short: %d bytes", ErrInvalidEnvelope, len(data))
	}

	// Accessors index straight into data, so a corrupt offset panics.
	defer func() {
		if r := recover(); r != nil {
			q, err = nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, r)
		}
	}()

	req := types.GetRootAsQueryRequest(data, 0)

	q = &Query{
		Address: string(req.ContractAddr()),
		Msg:     append([]byte{}, req.MsgBytes()...),
	}

	return q, nil
}

// Response is a decoded query outcome envelope.
type Response struct {
	Kind  types.QueryResultKind // Kind classifies the outcome
	Error string                // Error is the failure description, empty on success
	Data  []byte                // Data is the response payload, empty on failure
}

// EncodeResponse builds the QueryResponse envelope for one outcome.
func EncodeResponse(resp *Response) []byte {
	builder := flatbuffers.NewBuilder(64 + len(resp.Error) + len(resp.Data))

	var errOffset, dataOffset flatbuffers.UOffsetT

	if resp.Error != "" {
		errOffset = builder.CreateString(resp.Error)
	}

	if len(resp.Data) > 0 {
		dataOffset = builder.CreateByteVector(resp.Data)
	}

	types.QueryResponseStart(builder)
	types.QueryResponseAddKind(builder, resp.Kind)

	if errOffset != 0 {
		types.QueryResponseAddError(builder, errOffset)
	}

	if dataOffset != 0 {
		types.QueryResponseAddData(builder, dataOffset)
	}

	respOffset := types.QueryResponseEnd(builder)
	types.FinishQueryResponseBuffer(builder, respOffset)

	return builder.FinishedBytes()
}

// DecodeResponse parses a QueryResponse envelope.
func DecodeResponse(data []byte) (resp *Response, err error) {
	if len(data) < minTableSize {
		return nil, fmt.Errorf("%w: too short: %d bytes", ErrInvalidEnvelope, len(data))
	}

	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, r)
		}
	}()

	fb := types.GetRootAsQueryResponse(data, 0)

	kind := fb.Kind()
	if _, ok := types.EnumNamesQueryResultKind[kind]; !ok {
		return nil, fmt.Errorf("%w: unknown result kind %d", ErrInvalidEnvelope, kind)
	}

	resp = &Response{
		Kind:  kind,
		Error: string(fb.Error()),
		Data:  append([]byte{}, fb.DataBytes()...),
	}

	return resp, nil
}
