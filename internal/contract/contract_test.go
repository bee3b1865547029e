package contract

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"multicall/internal/multicall"
)

// memVersions is an in-memory VersionStore.
type memVersions struct {
	data []byte
}

func (m *memVersions) ContractInfo() ([]byte, error)     { return m.data, nil }
func (m *memVersions) SetContractInfo(data []byte) error { m.data = data; return nil }

type staticHeight uint64

func (h staticHeight) Height() uint64 { return uint64(h) }

// echoQuerier echoes the payload, failing on "fail" and "boom".
func echoQuerier() multicall.Querier {
	return multicall.SmartQuerierFunc(func(_ context.Context, _ string, msg []byte) multicall.Outcome {
		switch string(msg) {
		case "fail":
			return multicall.SystemFailure("unknown")
		case "boom":
			return multicall.ContractFailure("boom")
		}
		return multicall.Success(msg)
	})
}

func newTestContract(t *testing.T) (*Contract, *memVersions) {
	t.Helper()

	log := slogt.New(t)
	versions := &memVersions{}
	agg := multicall.NewAggregator(log, echoQuerier(), staticHeight(77))

	return New(log, agg, versions), versions
}

func query(t *testing.T, c *Contract, msg QueryMsg) ([]byte, error) {
	t.Helper()

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	return c.Query(context.Background(), raw)
}

func TestQuery_Aggregate(t *testing.T) {
	c, _ := newTestContract(t)

	out, err := c.Query(context.Background(), []byte(`{"aggregate":{"queries":[{"address":"a","data":"MQ=="},{"address":"b","data":"Mg=="}]}}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"return_data":[{"success":true,"data":"MQ=="},{"success":true,"data":"Mg=="}]}`, string(out))
}

func TestQuery_TryAggregateDefaults(t *testing.T) {
	c, _ := newTestContract(t)

	// require_success and include_cause default to false.
	out, err := c.Query(context.Background(), []byte(`{"try_aggregate":{"queries":[{"address":"a","data":"MQ=="},{"address":"b","data":"ZmFpbA=="}]}}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"return_data":[{"success":true,"data":"MQ=="},{"success":false,"data":""}]}`, string(out))
}

func TestQuery_TryAggregateRequireSuccess(t *testing.T) {
	c, _ := newTestContract(t)

	_, err := query(t, c, QueryMsg{TryAggregate: &TryAggregateMsg{
		RequireSuccess: Bool(true),
		Queries:        []multicall.Call{{Data: []byte("1")}, {Data: []byte("fail")}},
	}})
	require.EqualError(t, err, "error at index 1: querier system error: unknown")
}

func TestQuery_TryAggregateOptional(t *testing.T) {
	c, _ := newTestContract(t)

	out, err := query(t, c, QueryMsg{TryAggregateOptional: &TryAggregateOptionalMsg{
		IncludeCause: Bool(true),
		Queries: []multicall.CallOptional{
			{RequireSuccess: true, Data: []byte("1")},
			{RequireSuccess: false, Data: []byte("boom")},
		},
	}})
	require.NoError(t, err)

	var res multicall.AggregateResult
	require.NoError(t, json.Unmarshal(out, &res))
	require.Len(t, res.ReturnData, 2)
	require.True(t, res.ReturnData[0].Success)
	require.False(t, res.ReturnData[1].Success)
	require.Equal(t, `"querier contract error: boom"`, string(res.ReturnData[1].Data))
}

func TestQuery_BlockVariants(t *testing.T) {
	c, _ := newTestContract(t)
	calls := []multicall.Call{{Data: []byte("1")}}

	for name, msg := range map[string]QueryMsg{
		"block_aggregate":     {BlockAggregate: &AggregateMsg{Queries: calls}},
		"block_try_aggregate": {BlockTryAggregate: &TryAggregateMsg{Queries: calls}},
		"block_try_aggregate_optional": {BlockTryAggregateOptional: &TryAggregateOptionalMsg{
			Queries: []multicall.CallOptional{{Data: []byte("1")}},
		}},
	} {
		t.Run(name, func(t *testing.T) {
			out, err := query(t, c, msg)
			require.NoError(t, err)
			require.JSONEq(t, `{"block":77,"return_data":[{"success":true,"data":"MQ=="}]}`, string(out))
		})
	}
}

func TestQuery_BlockErrorHasNoHeight(t *testing.T) {
	c, _ := newTestContract(t)

	_, err := query(t, c, QueryMsg{BlockAggregate: &AggregateMsg{
		Queries: []multicall.Call{{Data: []byte("fail")}},
	}})
	require.EqualError(t, err, "error at index 0: querier system error: unknown")
}

func TestQuery_InvalidMessages(t *testing.T) {
	c, _ := newTestContract(t)

	for name, raw := range map[string]string{
		"not json":      `{`,
		"no variant":    `{}`,
		"two variants":  `{"aggregate":{"queries":[]},"block_aggregate":{"queries":[]}}`,
		"unknown shape": `{"aggregate":{"queries":"nope"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Query(context.Background(), []byte(raw))
			require.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}

func TestContractVersion(t *testing.T) {
	c, versions := newTestContract(t)

	_, err := query(t, c, QueryMsg{ContractVersion: &struct{}{}})
	require.ErrorIs(t, err, ErrVersionNotFound)

	require.NoError(t, c.Instantiate())
	require.NotEmpty(t, versions.data)

	out, err := c.Query(context.Background(), []byte(`{"contract_version":{}}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"contract":"multicall","version":"`+Version+`"}`, string(out))

	require.NoError(t, c.Migrate())
	info, err := c.ContractVersion()
	require.NoError(t, err)
	require.Equal(t, &ContractInfo{Contract: Name, Version: Version}, info)
}

func TestExecute_NotSupported(t *testing.T) {
	c, _ := newTestContract(t)

	err := c.Execute(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, multicall.ErrExecuteNotSupported)
	require.EqualError(t, err, "contract execution is not supported")
}
