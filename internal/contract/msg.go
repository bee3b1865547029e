package contract

import (
	"multicall/internal/multicall"
)

// QueryMsg is the JSON query message. Exactly one variant must be set.
type QueryMsg struct {
	ContractVersion           *struct{}                `json:"contract_version,omitempty"`
	Aggregate                 *AggregateMsg            `json:"aggregate,omitempty"`
	TryAggregate              *TryAggregateMsg         `json:"try_aggregate,omitempty"`
	TryAggregateOptional      *TryAggregateOptionalMsg `json:"try_aggregate_optional,omitempty"`
	BlockAggregate            *AggregateMsg            `json:"block_aggregate,omitempty"`
	BlockTryAggregate         *TryAggregateMsg         `json:"block_try_aggregate,omitempty"`
	BlockTryAggregateOptional *TryAggregateOptionalMsg `json:"block_try_aggregate_optional,omitempty"`
}

// AggregateMsg is the body of aggregate and block_aggregate.
type AggregateMsg struct {
	Queries []multicall.Call `json:"queries"`
}

// TryAggregateMsg is the body of try_aggregate and block_try_aggregate.
type TryAggregateMsg struct {
	RequireSuccess *bool            `json:"require_success,omitempty"`
	IncludeCause   *bool            `json:"include_cause,omitempty"`
	Queries        []multicall.Call `json:"queries"`
}

// TryAggregateOptionalMsg is the body of try_aggregate_optional and
// block_try_aggregate_optional.
type TryAggregateOptionalMsg struct {
	IncludeCause *bool                    `json:"include_cause,omitempty"`
	Queries      []multicall.CallOptional `json:"queries"`
}

// variants counts the variants set on m.
func (m *QueryMsg) variants() int {
	n := 0
	for _, set := range []bool{
		m.ContractVersion != nil,
		m.Aggregate != nil,
		m.TryAggregate != nil,
		m.TryAggregateOptional != nil,
		m.BlockAggregate != nil,
		m.BlockTryAggregate != nil,
		m.BlockTryAggregateOptional != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// ContractInfo identifies the deployed contract and its version.
type ContractInfo struct {
	Contract string `json:"contract"`
	Version  string `json:"version"`
}

// Bool returns a pointer to b, for building optional message fields.
func Bool(b bool) *bool {
	return &b
}

// flag reads an optional boolean, defaulting to false.
func flag(b *bool) bool {
	return b != nil && *b
}
