package state

import (
	"encoding/hex"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"multicall/internal/storage"
)

// Key prefixes for storage.
var (
	prefixPod       = []byte("p:")               // p:<address> -> zstd(wasm code)
	keyContractInfo = []byte("m:contract_info") // m:contract_info -> ContractInfo JSON
)

// Address is a pod address: the blake3 hash of its code.
type Address [32]byte

// String returns the hex form used on the wire.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// ParseAddress decodes the hex form of an address.
func ParseAddress(s string) (Address, error) {
	var a Address

	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("decode address: %w", err)
	}

	if len(b) != len(a) {
		return a, fmt.Errorf("invalid address length: got %d, want %d", len(b), len(a))
	}

	copy(a[:], b)

	return a, nil
}

// codeStore keeps pod code compressed in persistent storage.
type codeStore struct {
	db      *storage.Storage
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// newCodeStore creates a code store backed by the given storage.
func newCodeStore(db *storage.Storage) (*codeStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}

	return &codeStore{
		db:      db,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// put stores the code of a pod.
func (s *codeStore) put(addr Address, code []byte) error {
	return s.db.Set(makePodKey(addr), s.encoder.EncodeAll(code, nil))
}

// each calls fn with every stored pod, decompressed.
func (s *codeStore) each(fn func(addr Address, code []byte) error) error {
	return s.db.IteratePrefix(prefixPod, func(key, value []byte) error {
		var addr Address
		if len(key) != len(prefixPod)+len(addr) {
			return fmt.Errorf("invalid pod key length: %d", len(key))
		}
		copy(addr[:], key[len(prefixPod):])

		code, err := s.decoder.DecodeAll(value, nil)
		if err != nil {
			return fmt.Errorf("decompress pod %s:\n%w", addr, err)
		}

		return fn(addr, code)
	})
}

// close releases the codec resources.
func (s *codeStore) close() {
	s.encoder.Close()
	s.decoder.Close()
}

// makePodKey returns p:<address>.
func makePodKey(addr Address) []byte {
	key := make([]byte, 0, len(prefixPod)+len(addr))
	key = append(key, prefixPod...)
	return append(key, addr[:]...)
}
