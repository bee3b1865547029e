// Package contract exposes the aggregator through JSON entry points:
// queries are served, instantiate and migrate record the contract version,
// and execute is always rejected.
package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"multicall/internal/multicall"
)

const (
	// Name is the contract name recorded in ContractInfo.
	Name = "multicall"

	// Version is the contract version recorded in ContractInfo.
	Version = "0.3.0"
)

var (
	// ErrInvalidQuery is returned for messages that do not name exactly one variant.
	ErrInvalidQuery = errors.New("invalid query message")

	// ErrVersionNotFound is returned when no contract version has been recorded.
	ErrVersionNotFound = errors.New("contract version not found")
)

// VersionStore persists the ContractInfo.
type VersionStore interface {
	ContractInfo() ([]byte, error)
	SetContractInfo(data []byte) error
}

// Contract routes decoded messages to the aggregator.
type Contract struct {
	agg      *multicall.Aggregator
	versions VersionStore
	log      *slog.Logger
}

// New creates a Contract.
func New(log *slog.Logger, agg *multicall.Aggregator, versions VersionStore) *Contract {
	return &Contract{
		agg:      agg,
		versions: versions,
		log:      log,
	}
}

// Instantiate records the contract version.
func (c *Contract) Instantiate() error {
	return c.setVersion()
}

// Migrate records the contract version, replacing any previous one.
func (c *Contract) Migrate() error {
	return c.setVersion()
}

// Execute rejects every mutation.
func (c *Contract) Execute(_ context.Context, _ []byte) error {
	return multicall.ErrExecuteNotSupported
}

// Query decodes msg, runs it and returns the JSON response.
func (c *Contract) Query(ctx context.Context, msg []byte) ([]byte, error) {
	var q QueryMsg
	if err := json.Unmarshal(msg, &q); err != nil {
		return nil, fmt.Errorf("%w:\n%w", ErrInvalidQuery, err)
	}

	result, err := c.route(ctx, &q)
	if err != nil {
		return nil, err
	}

	return json.Marshal(result)
}

// route runs the single variant set on q.
func (c *Contract) route(ctx context.Context, q *QueryMsg) (any, error) {
	if n := q.variants(); n != 1 {
		return nil, fmt.Errorf("%w: %d variants set", ErrInvalidQuery, n)
	}

	switch {
	case q.ContractVersion != nil:
		return c.ContractVersion()

	case q.Aggregate != nil:
		return c.agg.Aggregate(ctx, q.Aggregate.Queries)

	case q.TryAggregate != nil:
		m := q.TryAggregate
		return c.agg.TryAggregate(ctx, flag(m.RequireSuccess), flag(m.IncludeCause), m.Queries)

	case q.TryAggregateOptional != nil:
		m := q.TryAggregateOptional
		return c.agg.TryAggregateOptional(ctx, flag(m.IncludeCause), m.Queries)

	case q.BlockAggregate != nil:
		return c.agg.BlockAggregate(ctx, q.BlockAggregate.Queries)

	case q.BlockTryAggregate != nil:
		m := q.BlockTryAggregate
		return c.agg.BlockTryAggregate(ctx, flag(m.RequireSuccess), flag(m.IncludeCause), m.Queries)

	default:
		m := q.BlockTryAggregateOptional
		return c.agg.BlockTryAggregateOptional(ctx, flag(m.IncludeCause), m.Queries)
	}
}

// ContractVersion returns the recorded ContractInfo.
func (c *Contract) ContractVersion() (*ContractInfo, error) {
	data, err := c.versions.ContractInfo()
	if err != nil {
		return nil, fmt.Errorf("load contract info:\n%w", err)
	}

	if data == nil {
		return nil, ErrVersionNotFound
	}

	var info ContractInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode contract info:\n%w", err)
	}

	return &info, nil
}

// setVersion writes the current name and version.
func (c *Contract) setVersion() error {
	data, err := json.Marshal(ContractInfo{Contract: Name, Version: Version})
	if err != nil {
		return err
	}

	if err := c.versions.SetContractInfo(data); err != nil {
		return fmt.Errorf("store contract info:\n%w", err)
	}

	c.log.Info("contract version set", "contract", Name, "version", Version)

	return nil
}
