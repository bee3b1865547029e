package multicall

import "context"

// BlockAggregate is Aggregate stamped with the current height.
func (a *Aggregator) BlockAggregate(ctx context.Context, calls []Call) (*BlockAggregateResult, error) {
	height := a.heights.Height()

	result, err := a.Aggregate(ctx, calls)
	if err != nil {
		return nil, err
	}

	return newBlockResult(height, result), nil
}

// BlockTryAggregate is TryAggregate stamped with the current height.
func (a *Aggregator) BlockTryAggregate(ctx context.Context, requireSuccess, includeCause bool, calls []Call) (*BlockAggregateResult, error) {
	height := a.heights.Height()

	result, err := a.TryAggregate(ctx, requireSuccess, includeCause, calls)
	if err != nil {
		return nil, err
	}

	return newBlockResult(height, result), nil
}

// BlockTryAggregateOptional is TryAggregateOptional stamped with the current height.
func (a *Aggregator) BlockTryAggregateOptional(ctx context.Context, includeCause bool, calls []CallOptional) (*BlockAggregateResult, error) {
	height := a.heights.Height()

	result, err := a.TryAggregateOptional(ctx, includeCause, calls)
	if err != nil {
		return nil, err
	}

	return newBlockResult(height, result), nil
}
