package multicall

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/neilotoole/slogt"
)

// mockMsg is the query language understood by mockQuerier.
type mockMsg struct {
	One          bool    `json:"one,omitempty"`
	Str          *string `json:"str,omitempty"`
	FailSystem   bool    `json:"fail_system,omitempty"`
	FailContract bool    `json:"fail_contract,omitempty"`
	StructStr    *string `json:"struct_str,omitempty"`
}

type anotherStructResponse struct {
	Result        string `json:"result"`
	AnotherResult string `json:"another_result"`
}

func encodeMsg(m mockMsg) []byte {
	data, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return data
}

func msgOne() []byte               { return encodeMsg(mockMsg{One: true}) }
func msgStr(s string) []byte       { return encodeMsg(mockMsg{Str: &s}) }
func msgFailSystem() []byte        { return encodeMsg(mockMsg{FailSystem: true}) }
func msgFailContract() []byte      { return encodeMsg(mockMsg{FailContract: true}) }
func msgStructStr(s string) []byte { return encodeMsg(mockMsg{StructStr: &s}) }

// mockQuerier answers mockMsg queries and records the dispatch order.
type mockQuerier struct {
	seen []string // seen holds the address of every dispatched call
}

func (m *mockQuerier) RawQuery(ctx context.Context, request []byte) Outcome {
	return SmartQuerierFunc(m.handle).RawQuery(ctx, request)
}

func (m *mockQuerier) handle(_ context.Context, address string, msg []byte) Outcome {
	m.seen = append(m.seen, address)

	var q mockMsg
	if err := json.Unmarshal(msg, &q); err != nil {
		return SystemFailure("parsing mock query: " + err.Error())
	}

	switch {
	case q.One:
		return Success([]byte("1"))
	case q.Str != nil:
		return Success([]byte(*q.Str))
	case q.FailSystem:
		return SystemFailure("unknown")
	case q.FailContract:
		return ContractFailure("error")
	case q.StructStr != nil:
		data, _ := json.Marshal(anotherStructResponse{
			Result:        *q.StructStr,
			AnotherResult: strings.ToUpper(*q.StructStr),
		})
		return Success(data)
	}

	return SystemFailure("unsupported mock query")
}

// fixedHeight is a HeightSource that counts reads.
type fixedHeight struct {
	height uint64
	reads  int
}

func (h *fixedHeight) Height() uint64 {
	h.reads++
	return h.height
}

func newTestAggregator(t *testing.T) (*Aggregator, *mockQuerier, *fixedHeight) {
	t.Helper()

	q := &mockQuerier{}
	h := &fixedHeight{height: 12_345}

	return NewAggregator(slogt.New(t), q, h), q, h
}

// callsFor builds one call per message, addressed "addr<i>".
func callsFor(msgs ...[]byte) []Call {
	calls := make([]Call, len(msgs))
	for i, m := range msgs {
		calls[i] = Call{Address: fmt.Sprintf("addr%d", i), Data: m}
	}
	return calls
}
