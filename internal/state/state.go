// Package state holds the node's deployed pods and answers queries against
// them.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"

	"multicall/internal/multicall"
	"multicall/internal/podvm"
	"multicall/internal/storage"
	"multicall/internal/wire"
)

const (
	// DefaultGasLimit is the gas limit applied to each query.
	DefaultGasLimit = 10_000_000

	// DefaultQueryTimeout bounds the wall time of a single pod query, so a
	// pod that never charges gas cannot hold the pool.
	DefaultQueryTimeout = 5 * time.Second
)

// State manages pods and runs queries against them.
type State struct {
	db       *storage.Storage
	code     *codeStore
	pods     *podvm.Pool
	gasLimit uint64
	timeout  time.Duration // timeout bounds each pod query
	log      *slog.Logger
}

// New creates a State over the given storage and pod pool.
// A zero gasLimit selects DefaultGasLimit.
func New(log *slog.Logger, db *storage.Storage, pods *podvm.Pool, gasLimit uint64) (*State, error) {
	code, err := newCodeStore(db)
	if err != nil {
		return nil, err
	}

	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}

	return &State{
		db:       db,
		code:     code,
		pods:     pods,
		gasLimit: gasLimit,
		timeout:  DefaultQueryTimeout,
		log:      log,
	}, nil
}

// Deploy stores a pod and loads it. The returned address is the blake3 hash
// of the code, so deploying the same code twice is idempotent.
func (s *State) Deploy(ctx context.Context, wasmCode []byte) (Address, error) {
	addr := Address(blake3.Sum256(wasmCode))
	id := [32]byte(addr)

	if _, err := s.pods.Load(ctx, wasmCode, &id); err != nil {
		return Address{}, fmt.Errorf("load pod:\n%w", err)
	}

	if err := s.code.put(addr, wasmCode); err != nil {
		return Address{}, fmt.Errorf("store pod:\n%w", err)
	}

	s.log.Info("pod deployed", "address", addr.String(), "size", len(wasmCode))

	return addr, nil
}

// LoadAll compiles every stored pod into the pool.
// Returns the number of pods loaded.
func (s *State) LoadAll(ctx context.Context) (int, error) {
	n := 0

	err := s.code.each(func(addr Address, code []byte) error {
		id := [32]byte(addr)
		if _, err := s.pods.Load(ctx, code, &id); err != nil {
			return fmt.Errorf("load pod %s:\n%w", addr, err)
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}

	s.log.Info("pods loaded", "count", n)

	return n, nil
}

// Has reports whether a pod is deployed at address.
func (s *State) Has(address string) bool {
	addr, err := ParseAddress(address)
	if err != nil {
		return false
	}

	return s.pods.Has(addr)
}

// Pods returns the number of loaded pods.
func (s *State) Pods() int {
	return s.pods.Len()
}

// RawQuery implements multicall.Querier against the local pods.
func (s *State) RawQuery(ctx context.Context, request []byte) multicall.Outcome {
	q, err := wire.DecodeQuery(request)
	if err != nil {
		return multicall.SystemFailure("parsing query request: " + err.Error())
	}

	return s.Query(ctx, q.Address, q.Msg)
}

// Query runs msg against the pod at address.
// An unknown pod is a system failure; any failure raised by the pod is a
// contract failure. A query that outlives its deadline is a system failure.
func (s *State) Query(ctx context.Context, address string, msg []byte) multicall.Outcome {
	addr, err := ParseAddress(address)
	if err != nil {
		return multicall.SystemFailure("no such contract: " + address)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	output, gasUsed, err := s.pods.Query(ctx, addr, msg, s.gasLimit)
	if err != nil {
		var cerr *podvm.ContractError
		switch {
		case errors.Is(err, podvm.ErrModuleNotFound):
			return multicall.SystemFailure("no such contract: " + address)
		case errors.As(err, &cerr):
			return multicall.ContractFailure(cerr.Msg)
		default:
			return multicall.SystemFailure(err.Error())
		}
	}

	s.log.Debug("pod query", "address", address, "gas", gasUsed, "bytes", len(output))

	return multicall.Success(output)
}

// ContractInfo returns the stored contract info, or nil if none is recorded.
func (s *State) ContractInfo() ([]byte, error) {
	return s.db.Get(keyContractInfo)
}

// SetContractInfo records the contract info.
func (s *State) SetContractInfo(data []byte) error {
	return s.db.Set(keyContractInfo, data)
}

// Close releases resources held by the state. It does not close the
// storage or the pool.
func (s *State) Close() {
	s.code.close()
}
