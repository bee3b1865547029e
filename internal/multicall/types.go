package multicall

// Call is one sub-query of a batch.
type Call struct {
	Address string `json:"address"` // Address identifies the target contract
	Data    []byte `json:"data"`    // Data is the opaque query payload
}

// CallOptional is a Call that carries its own failure policy.
type CallOptional struct {
	RequireSuccess bool   `json:"require_success"` // RequireSuccess aborts the batch if this call fails
	Address        string `json:"address"`         // Address identifies the target contract
	Data           []byte `json:"data"`            // Data is the opaque query payload
}

// CallResult is the outcome of one call at its input position.
type CallResult struct {
	Success bool   `json:"success"` // Success is false when the call failed and was tolerated
	Data    []byte `json:"data"`    // Data is the response, the encoded cause, or empty
}

// AggregateResult holds one CallResult per input call, in input order.
type AggregateResult struct {
	ReturnData []CallResult `json:"return_data"`
}

// BlockAggregateResult is an AggregateResult stamped with the height read
// before dispatch started.
type BlockAggregateResult struct {
	Block      uint64       `json:"block"`
	ReturnData []CallResult `json:"return_data"`
}

// newBlockResult wraps an aggregate result with a height.
func newBlockResult(height uint64, result *AggregateResult) *BlockAggregateResult {
	return &BlockAggregateResult{
		Block:      height,
		ReturnData: result.ReturnData,
	}
}
