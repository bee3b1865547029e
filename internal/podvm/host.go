package podvm

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// maxFailureSize caps the failure message a pod can report.
const maxFailureSize = 4096

// execContext holds the state of a single query invocation.
type execContext struct {
	input        []byte     // input is the raw query payload
	output       []byte     // output is the response written by the pod
	failure      string     // failure is the message passed to fail, if any
	failed       bool       // failed is true once the pod called fail
	memory       api.Memory // memory is the WASM linear memory
	gasLimit     uint64     // gasLimit is the maximum gas allowed
	gasUsed      uint64     // gasUsed tracks consumed gas
	gasExhausted bool       // gasExhausted is true if gas limit was exceeded
}

// buildHostModule instantiates the "env" module the pods import.
func (p *Pool) buildHostModule(ctx context.Context, execCtx *execContext) (api.Module, error) {
	return p.runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, cost uint32) {
			hostGas(execCtx, cost)
		}).
		Export("gas").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) uint32 {
			return hostInputLen(execCtx)
		}).
		Export("input_len").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, ptr uint32) {
			hostReadInput(execCtx, ptr)
		}).
		Export("read_input").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, ptr, len uint32) {
			hostWriteOutput(execCtx, ptr, len)
		}).
		Export("write_output").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, ptr, len uint32) {
			hostFail(execCtx, ptr, len)
		}).
		Export("fail").
		Instantiate(ctx)
}

// hostGas meters gas and panics to abort execution past the limit.
func hostGas(execCtx *execContext, cost uint32) {
	execCtx.gasUsed += uint64(cost)

	if execCtx.gasUsed > execCtx.gasLimit {
		execCtx.gasExhausted = true
		panic("gas exhausted")
	}
}

// hostInputLen returns the length of the input buffer.
func hostInputLen(execCtx *execContext) uint32 {
	return uint32(len(execCtx.input))
}

// hostReadInput copies the input buffer into WASM memory at ptr.
func hostReadInput(execCtx *execContext, ptr uint32) {
	if execCtx.memory == nil || len(execCtx.input) == 0 {
		return
	}

	execCtx.memory.Write(ptr, execCtx.input)
}

// hostWriteOutput copies the response out of WASM memory.
func hostWriteOutput(execCtx *execContext, ptr, length uint32) {
	if execCtx.memory == nil || length == 0 {
		return
	}

	data, ok := execCtx.memory.Read(ptr, length)
	if !ok {
		return
	}

	execCtx.output = make([]byte, length)
	copy(execCtx.output, data)
}

// hostFail records a contract-level error reported by the pod.
func hostFail(execCtx *execContext, ptr, length uint32) {
	execCtx.failed = true

	if execCtx.memory == nil || length == 0 {
		return
	}

	if length > maxFailureSize {
		length = maxFailureSize
	}

	data, ok := execCtx.memory.Read(ptr, length)
	if !ok {
		return
	}

	execCtx.failure = string(data)
}
