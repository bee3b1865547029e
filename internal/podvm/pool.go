// Package podvm runs contract queries inside WASM pods.
//
// A pod is a WASM module exporting "query" and importing its I/O from the
// "env" host module. The pod reads its payload with input_len/read_input,
// answers with write_output, and reports a contract error with fail.
package podvm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"github.com/zeebo/blake3"
)

var (
	// ErrModuleNotFound is returned when a module ID is not in the pool.
	ErrModuleNotFound = errors.New("module not found")

	// ErrGasExhausted is returned when a query runs out of gas.
	ErrGasExhausted = errors.New("gas exhausted")
)

// ContractError is a failure raised by the pod itself: a trap, gas
// exhaustion, or an explicit fail call.
type ContractError struct {
	Msg string // Msg describes the failure
	Err error  // Err is the underlying runtime error, if any
}

func (e *ContractError) Error() string {
	return e.Msg
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

// Pool keeps compiled WASM modules hot for fast instantiation.
type Pool struct {
	runtime wazero.Runtime                     // runtime is the wazero runtime instance
	modules map[[32]byte]wazero.CompiledModule // modules maps module ID to compiled module
	mu      sync.RWMutex                       // mu protects modules map

	// execMu serializes queries: the "env" host module name is unique per runtime.
	execMu sync.Mutex
}

// New creates a Pool with an initialized wazero runtime.
// Running pods are aborted when their query context is done.
func New(ctx context.Context) *Pool {
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)

	return &Pool{
		runtime: wazero.NewRuntimeWithConfig(ctx, cfg),
		modules: make(map[[32]byte]wazero.CompiledModule),
	}
}

// Load compiles and stores a WASM module.
// If customID is nil the blake3 hash of wasmBytes is used as the module ID.
// Loading an ID that is already present is a no-op.
func (p *Pool) Load(ctx context.Context, wasmBytes []byte, customID *[32]byte) ([32]byte, error) {
	var id [32]byte
	if customID != nil {
		id = *customID
	} else {
		id = blake3.Sum256(wasmBytes)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.modules[id]; exists {
		return id, nil
	}

	compiled, err := p.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return [32]byte{}, fmt.Errorf("compile module:\n%w", err)
	}

	if compiled.ExportedFunctions()["query"] == nil {
		compiled.Close(ctx)
		return [32]byte{}, fmt.Errorf("module does not export query")
	}

	p.modules[id] = compiled

	return id, nil
}

// Has reports whether a module ID is loaded.
func (p *Pool) Has(id [32]byte) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.modules[id]
	return ok
}

// Len returns the number of loaded modules.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.modules)
}

// Query runs a module's query export with the given input and gas limit.
// Returns the output bytes and the gas consumed. Failures raised by the pod
// are returned as *ContractError. A query cut short by ctx returns an error
// wrapping ctx.Err().
func (p *Pool) Query(ctx context.Context, id [32]byte, input []byte, gasLimit uint64) ([]byte, uint64, error) {
	p.mu.RLock()
	compiled, exists := p.modules[id]
	p.mu.RUnlock()

	if !exists {
		return nil, 0, ErrModuleNotFound
	}

	p.execMu.Lock()
	defer p.execMu.Unlock()

	return p.queryModule(ctx, compiled, input, gasLimit)
}

// queryModule instantiates and runs a compiled module.
func (p *Pool) queryModule(ctx context.Context, compiled wazero.CompiledModule, input []byte, gasLimit uint64) ([]byte, uint64, error) {
	execCtx := &execContext{
		input:    input,
		gasLimit: gasLimit,
	}

	hostModule, err := p.buildHostModule(ctx, execCtx)
	if err != nil {
		return nil, 0, fmt.Errorf("build host module:\n%w", err)
	}
	defer hostModule.Close(ctx)

	// Anonymous instances so repeated queries never collide on module name.
	instance, err := p.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("query interrupted:\n%w", ctx.Err())
		}
		return nil, execCtx.gasUsed, &ContractError{Msg: "instantiate: " + err.Error(), Err: err}
	}
	defer instance.Close(ctx)

	execCtx.memory = instance.Memory()

	return p.callQuery(ctx, instance, execCtx)
}

// callQuery calls the query export on the instance.
func (p *Pool) callQuery(ctx context.Context, instance api.Module, execCtx *execContext) ([]byte, uint64, error) {
	queryFn := instance.ExportedFunction("query")
	if queryFn == nil {
		return nil, execCtx.gasUsed, &ContractError{Msg: "query function not exported"}
	}

	if _, err := queryFn.Call(ctx); err != nil {
		if execCtx.gasExhausted {
			return nil, execCtx.gasUsed, &ContractError{Msg: ErrGasExhausted.Error(), Err: ErrGasExhausted}
		}

		if isContextExit(err) && ctx.Err() != nil {
			return nil, execCtx.gasUsed, fmt.Errorf("query interrupted:\n%w", ctx.Err())
		}

		return nil, execCtx.gasUsed, &ContractError{Msg: "query: " + err.Error(), Err: err}
	}

	if execCtx.failed {
		msg := execCtx.failure
		if msg == "" {
			msg = "query failed"
		}

		return nil, execCtx.gasUsed, &ContractError{Msg: msg}
	}

	return execCtx.output, execCtx.gasUsed, nil
}

// isContextExit reports whether err is the exit wazero raises when it closes
// a module because its context is done.
func isContextExit(err error) bool {
	var exitErr *sys.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}

	code := exitErr.ExitCode()
	return code == sys.ExitCodeDeadlineExceeded || code == sys.ExitCodeContextCanceled
}

// Unload removes a module from the pool.
func (p *Pool) Unload(ctx context.Context, id [32]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if compiled, exists := p.modules[id]; exists {
		compiled.Close(ctx)
		delete(p.modules, id)
	}
}

// Close releases all resources held by the pool.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, compiled := range p.modules {
		compiled.Close(ctx)
		delete(p.modules, id)
	}

	return p.runtime.Close(ctx)
}
