// Package podvmtest provides tiny hand-assembled WASM pods for tests.
package podvmtest

// header is the WASM magic number and version 1.
var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// memoryAndQueryExport declares one memory page and exports it as "memory"
// alongside "query" at function index fn.
func memoryAndQueryExport(fn byte) []byte {
	return []byte{
		// memory section: one memory, min 1 page
		0x05, 0x03, 0x01, 0x00, 0x01,
		// export section: "memory" (mem 0), "query" (func fn)
		0x07, 0x12, 0x02,
		0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
		0x05, 'q', 'u', 'e', 'r', 'y', 0x00, fn,
	}
}

func module(sections ...[]byte) []byte {
	out := append([]byte{}, header...)
	for _, s := range sections {
		out = append(out, s...)
	}
	return out
}

// Echo answers every query with its own payload.
func Echo() []byte {
	return module(
		[]byte{
			// types: ()->i32, (i32)->(), (i32,i32)->(), ()->()
			0x01, 0x11, 0x04,
			0x60, 0x00, 0x01, 0x7f,
			0x60, 0x01, 0x7f, 0x00,
			0x60, 0x02, 0x7f, 0x7f, 0x00,
			0x60, 0x00, 0x00,
			// imports: env.input_len, env.read_input, env.write_output
			0x02, 0x35, 0x03,
			0x03, 'e', 'n', 'v', 0x09, 'i', 'n', 'p', 'u', 't', '_', 'l', 'e', 'n', 0x00, 0x00,
			0x03, 'e', 'n', 'v', 0x0a, 'r', 'e', 'a', 'd', '_', 'i', 'n', 'p', 'u', 't', 0x00, 0x01,
			0x03, 'e', 'n', 'v', 0x0c, 'w', 'r', 'i', 't', 'e', '_', 'o', 'u', 't', 'p', 'u', 't', 0x00, 0x02,
			// functions: query has type 3
			0x03, 0x02, 0x01, 0x03,
		},
		memoryAndQueryExport(0x03),
		[]byte{
			// code: read_input(0); write_output(0, input_len())
			0x0a, 0x0e, 0x01, 0x0c,
			0x00,
			0x41, 0x00, 0x10, 0x01,
			0x41, 0x00, 0x10, 0x00, 0x10, 0x02,
			0x0b,
		},
	)
}

// Fail reports the contract error "error" on every query.
func Fail() []byte {
	return module(
		[]byte{
			// types: (i32,i32)->(), ()->()
			0x01, 0x09, 0x02,
			0x60, 0x02, 0x7f, 0x7f, 0x00,
			0x60, 0x00, 0x00,
			// imports: env.fail
			0x02, 0x0c, 0x01,
			0x03, 'e', 'n', 'v', 0x04, 'f', 'a', 'i', 'l', 0x00, 0x00,
			// functions: query has type 1
			0x03, 0x02, 0x01, 0x01,
		},
		memoryAndQueryExport(0x01),
		[]byte{
			// code: fail(0, 5)
			0x0a, 0x0a, 0x01, 0x08,
			0x00,
			0x41, 0x00, 0x41, 0x05, 0x10, 0x00,
			0x0b,
			// data: "error" at offset 0
			0x0b, 0x0b, 0x01,
			0x00, 0x41, 0x00, 0x0b, 0x05, 'e', 'r', 'r', 'o', 'r',
		},
	)
}

// Trap hits unreachable on every query.
func Trap() []byte {
	return module(
		[]byte{
			0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
			0x03, 0x02, 0x01, 0x00,
		},
		memoryAndQueryExport(0x00),
		[]byte{
			0x0a, 0x05, 0x01, 0x03, 0x00, 0x00, 0x0b,
		},
	)
}

// Loop spins forever without charging gas.
func Loop() []byte {
	return module(
		[]byte{
			0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
			0x03, 0x02, 0x01, 0x00,
		},
		memoryAndQueryExport(0x00),
		[]byte{
			// code: loop br 0 end
			0x0a, 0x09, 0x01, 0x07,
			0x00,
			0x03, 0x40, 0x0c, 0x00, 0x0b,
			0x0b,
		},
	)
}

// Greedy charges 1000 gas on every query.
func Greedy() []byte {
	return module(
		[]byte{
			// types: (i32)->(), ()->()
			0x01, 0x08, 0x02,
			0x60, 0x01, 0x7f, 0x00,
			0x60, 0x00, 0x00,
			// imports: env.gas
			0x02, 0x0b, 0x01,
			0x03, 'e', 'n', 'v', 0x03, 'g', 'a', 's', 0x00, 0x00,
			0x03, 0x02, 0x01, 0x01,
		},
		memoryAndQueryExport(0x01),
		[]byte{
			// code: gas(1000)
			0x0a, 0x09, 0x01, 0x07,
			0x00,
			0x41, 0xe8, 0x07, 0x10, 0x00,
			0x0b,
		},
	)
}

// Empty is a valid module with no exports.
func Empty() []byte {
	return module()
}
