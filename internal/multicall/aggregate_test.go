package multicall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var wordCases = []struct {
	name  string
	input string
}{
	{"empty", ""},
	{"number", "1"},
	{"numbers", "11231123"},
	{"very long numbers", "112311233910930150"},
	{"character", "x"},
	{"word", "hello"},
	{"words", "hello world"},
}

func TestAggregate(t *testing.T) {
	for _, tc := range wordCases {
		t.Run(tc.name, func(t *testing.T) {
			agg, _, _ := newTestAggregator(t)
			ctx := context.Background()

			res, err := agg.Aggregate(ctx, callsFor(msgStr(tc.input)))
			require.NoError(t, err)
			require.Len(t, res.ReturnData, 1)
			require.Equal(t, CallResult{Success: true, Data: []byte(tc.input)}, res.ReturnData[0])

			res, err = agg.Aggregate(ctx, callsFor(msgStr(tc.input), msgStr(tc.input)))
			require.NoError(t, err)
			require.Len(t, res.ReturnData, 2)
			require.Equal(t, tc.input, string(res.ReturnData[0].Data))
			require.Equal(t, tc.input, string(res.ReturnData[1].Data))
		})
	}
}

func TestAggregate_StructResponse(t *testing.T) {
	for _, tc := range wordCases {
		t.Run(tc.name, func(t *testing.T) {
			agg, _, _ := newTestAggregator(t)

			res, err := agg.Aggregate(context.Background(), callsFor(msgStructStr(tc.input), msgStructStr(tc.input)))
			require.NoError(t, err)
			require.Len(t, res.ReturnData, 2)

			for _, r := range res.ReturnData {
				var got anotherStructResponse
				require.NoError(t, json.Unmarshal(r.Data, &got))
				require.Equal(t, tc.input, got.Result)
				require.Equal(t, strings.ToUpper(tc.input), got.AnotherResult)
			}
		})
	}
}

func TestAggregate_Empty(t *testing.T) {
	agg, q, _ := newTestAggregator(t)

	res, err := agg.Aggregate(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, res.ReturnData)
	require.Empty(t, res.ReturnData)
	require.Empty(t, q.seen)
}

func TestAggregate_FailureAborts(t *testing.T) {
	agg, q, _ := newTestAggregator(t)

	res, err := agg.Aggregate(context.Background(), callsFor(msgOne(), msgFailSystem(), msgOne()))
	require.Nil(t, res)

	var ierr *IndexError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, 1, ierr.Index)
	require.Equal(t, "error at index 1: querier system error: unknown", err.Error())

	// Nothing after the failing call is dispatched.
	require.Equal(t, []string{"addr0", "addr1"}, q.seen)
}

func TestAggregate_ContractFailure(t *testing.T) {
	agg, _, _ := newTestAggregator(t)

	_, err := agg.Aggregate(context.Background(), callsFor(msgFailContract()))

	var qerr *QueryError
	require.ErrorAs(t, err, &qerr)
	require.Equal(t, KindContract, qerr.Kind)
	require.Equal(t, "error at index 0: querier contract error: error", err.Error())
}

func TestAggregate_NilDataIsEmpty(t *testing.T) {
	q := SmartQuerierFunc(func(context.Context, string, []byte) Outcome {
		return Success(nil)
	})
	agg := NewAggregator(discardLogger(), q, nil)

	res, err := agg.Aggregate(context.Background(), callsFor(msgOne()))
	require.NoError(t, err)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	require.JSONEq(t, `{"return_data":[{"success":true,"data":""}]}`, string(out))
}

func TestAggregate_MalformedCall(t *testing.T) {
	agg, q, _ := newTestAggregator(t)

	calls := callsFor(msgOne(), msgOne(), msgOne())
	calls[1].Address = strings.Repeat("a", 1024)

	for name, run := range map[string]func() error{
		"aggregate": func() error {
			_, err := agg.Aggregate(context.Background(), calls)
			return err
		},
		"try aggregate": func() error {
			_, err := agg.TryAggregate(context.Background(), false, true, calls)
			return err
		},
	} {
		t.Run(name, func(t *testing.T) {
			q.seen = nil

			err := run()
			require.ErrorIs(t, err, ErrMalformedCall)
			require.Contains(t, err.Error(), "at index 1")

			var ierr *IndexError
			require.False(t, errors.As(err, &ierr), "malformed calls are not policy governed")
			require.Equal(t, []string{"addr0"}, q.seen)
		})
	}
}

func TestTryAggregate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		total   int
		errorAt []int
	}{
		{"no error", 10, nil},
		{"error at start", 10, []int{0}},
		{"error at end", 10, []int{9}},
		{"multiple error", 10, []int{0, 3, 4, 5, 8}},
		{"all error", 5, []int{0, 1, 2, 3, 4}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			agg, _, _ := newTestAggregator(t)
			ctx := context.Background()

			msgs := make([][]byte, tc.total)
			for i := range msgs {
				msgs[i] = msgOne()
				if slices.Contains(tc.errorAt, i) {
					msgs[i] = msgFailSystem()
				}
			}
			calls := callsFor(msgs...)

			res, err := agg.TryAggregate(ctx, false, false, calls)
			require.NoError(t, err)
			require.Len(t, res.ReturnData, tc.total)

			for i, r := range res.ReturnData {
				if slices.Contains(tc.errorAt, i) {
					require.Equal(t, CallResult{Success: false, Data: []byte{}}, r, "index %d", i)
				} else {
					require.Equal(t, CallResult{Success: true, Data: []byte("1")}, r, "index %d", i)
				}
			}

			res, err = agg.TryAggregate(ctx, true, false, calls)
			if len(tc.errorAt) == 0 {
				require.NoError(t, err)
				require.Len(t, res.ReturnData, tc.total)
				return
			}

			require.Nil(t, res)

			var ierr *IndexError
			require.ErrorAs(t, err, &ierr)
			require.Equal(t, tc.errorAt[0], ierr.Index)
		})
	}
}

func TestTryAggregate_IncludeCause(t *testing.T) {
	agg, _, _ := newTestAggregator(t)
	calls := callsFor(msgOne(), msgFailSystem(), msgFailContract())

	res, err := agg.TryAggregate(context.Background(), false, true, calls)
	require.NoError(t, err)
	require.Len(t, res.ReturnData, 3)

	require.Equal(t, CallResult{Success: true, Data: []byte("1")}, res.ReturnData[0])

	var cause string
	require.False(t, res.ReturnData[1].Success)
	require.NoError(t, json.Unmarshal(res.ReturnData[1].Data, &cause))
	require.Equal(t, "querier system error: unknown", cause)

	require.False(t, res.ReturnData[2].Success)
	require.NoError(t, json.Unmarshal(res.ReturnData[2].Data, &cause))
	require.Equal(t, "querier contract error: error", cause)
}

func TestTryAggregate_Example(t *testing.T) {
	agg, _, _ := newTestAggregator(t)
	calls := []Call{
		{Address: "addr", Data: msgStr("1")},
		{Address: "addr", Data: msgFailSystem()},
	}

	res, err := agg.TryAggregate(context.Background(), false, false, calls)
	require.NoError(t, err)
	require.Equal(t, []CallResult{
		{Success: true, Data: []byte("1")},
		{Success: false, Data: []byte{}},
	}, res.ReturnData)

	_, err = agg.Aggregate(context.Background(), calls)

	var ierr *IndexError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, 1, ierr.Index)
}

// TestTryAggregate_RandomFailures checks index alignment for arbitrary
// failure layouts.
func TestTryAggregate_RandomFailures(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		agg, q, _ := newTestAggregator(t)

		n := 1 + rng.Intn(40)
		failing := make(map[int]bool)
		msgs := make([][]byte, n)

		for i := range msgs {
			msgs[i] = msgStr(fmt.Sprintf("value-%d", i))
			if rng.Intn(3) == 0 {
				failing[i] = true
				msgs[i] = msgFailContract()
			}
		}

		res, err := agg.TryAggregate(context.Background(), false, false, callsFor(msgs...))
		require.NoError(t, err)
		require.Len(t, res.ReturnData, n)

		for i, r := range res.ReturnData {
			require.Equal(t, !failing[i], r.Success, "round %d index %d", round, i)
			if !failing[i] {
				require.Equal(t, fmt.Sprintf("value-%d", i), string(r.Data))
			}
		}

		for i, addr := range q.seen {
			require.Equal(t, fmt.Sprintf("addr%d", i), addr)
		}
	}
}

func TestTryAggregateOptional(t *testing.T) {
	agg, _, _ := newTestAggregator(t)
	ctx := context.Background()

	res, err := agg.TryAggregateOptional(ctx, false, []CallOptional{
		{RequireSuccess: true, Data: msgOne()},
		{RequireSuccess: true, Data: msgStr("2")},
		{RequireSuccess: true, Data: msgStr("3")},
		{RequireSuccess: true, Data: msgStr("4")},
		{RequireSuccess: false, Data: msgFailSystem()},
	})
	require.NoError(t, err)
	require.Equal(t, []CallResult{
		{Success: true, Data: []byte("1")},
		{Success: true, Data: []byte("2")},
		{Success: true, Data: []byte("3")},
		{Success: true, Data: []byte("4")},
		{Success: false, Data: []byte{}},
	}, res.ReturnData)

	_, err = agg.TryAggregateOptional(ctx, false, []CallOptional{
		{RequireSuccess: false, Data: msgFailContract()},
		{RequireSuccess: true, Data: msgFailSystem()},
	})

	var ierr *IndexError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, 1, ierr.Index)
}

func TestTryAggregateOptional_PerCallPolicy(t *testing.T) {
	policy := []bool{false, false, true, false}

	build := func(failAt int) []CallOptional {
		calls := make([]CallOptional, len(policy))
		for i, req := range policy {
			calls[i] = CallOptional{RequireSuccess: req, Address: fmt.Sprintf("addr%d", i), Data: msgOne()}
			if i == failAt {
				calls[i].Data = msgFailSystem()
			}
		}
		return calls
	}

	t.Run("strict call fails", func(t *testing.T) {
		agg, _, _ := newTestAggregator(t)

		res, err := agg.TryAggregateOptional(context.Background(), false, build(2))
		require.Nil(t, res)

		var ierr *IndexError
		require.ErrorAs(t, err, &ierr)
		require.Equal(t, 2, ierr.Index)
	})

	t.Run("tolerant call fails", func(t *testing.T) {
		agg, _, _ := newTestAggregator(t)

		res, err := agg.TryAggregateOptional(context.Background(), false, build(0))
		require.NoError(t, err)
		require.Len(t, res.ReturnData, 4)
		require.False(t, res.ReturnData[0].Success)
		for _, r := range res.ReturnData[1:] {
			require.True(t, r.Success)
		}
	})
}

// TestTryAggregateOptional_FirstStrictFailureWins covers batches with
// several failing calls under different policies: the abort names the first
// strict failure in input order, not a later one.
func TestTryAggregateOptional_FirstStrictFailureWins(t *testing.T) {
	agg, q, _ := newTestAggregator(t)

	calls := []CallOptional{
		{RequireSuccess: true, Address: "addr0", Data: msgOne()},
		{RequireSuccess: false, Address: "addr1", Data: msgFailContract()},
		{RequireSuccess: true, Address: "addr2", Data: msgFailSystem()},
		{RequireSuccess: false, Address: "addr3", Data: msgFailSystem()},
		{RequireSuccess: true, Address: "addr4", Data: msgFailContract()},
	}

	_, err := agg.TryAggregateOptional(context.Background(), true, calls)

	var ierr *IndexError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, 2, ierr.Index)
	require.Equal(t, "error at index 2: querier system error: unknown", err.Error())
	require.Equal(t, []string{"addr0", "addr1", "addr2"}, q.seen)
}

func TestSmartQuerierFunc_InvalidEnvelope(t *testing.T) {
	called := false
	q := SmartQuerierFunc(func(context.Context, string, []byte) Outcome {
		called = true
		return Success(nil)
	})

	out := q.RawQuery(context.Background(), []byte{1})
	require.False(t, called)
	require.NotNil(t, out.Err)
	require.Equal(t, KindSystem, out.Err.Kind)
	require.Contains(t, out.Err.Error(), "parsing query request")
}
