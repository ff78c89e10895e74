// Linear combination of equal length buffers over GF(2^8), backed by a Reed-Solomon parity row
package coding

import (
	"fmt"
	"sync"

	"github.com/klauspost/reedsolomon"
)

// Computes out = c0*src0 ^ c1*src1 ^ ... for a fixed coefficient row
type Operator struct {
	coefs []byte
	enc   reedsolomon.Encoder
	mu    sync.Mutex // shard slice reuse
	shard [][]byte
}

// Builds an operator for the given coefficient row (one coefficient per input)
func New(coefs []byte) (new *Operator, err error) {
	if len(coefs) == 0 {
		err = fmt.Errorf("at least one coefficient required")
		return
	}

	row := append([]byte(nil), coefs...)
	enc, err := reedsolomon.New(len(row), 1, reedsolomon.WithCustomMatrix([][]byte{row}))
	if err != nil {
		err = fmt.Errorf("failed creating encoder for coefficients %v: %w", row, err)
		return
	}

	new = &Operator{
		coefs: row,
		enc:   enc,
		shard: make([][]byte, len(row)+1),
	}
	return
}

// Pairwise XOR, the default pipeline operator. Order-insensitive.
func NewXOR() (new *Operator) {
	new, err := New([]byte{1, 1})
	if err != nil {
		panic(fmt.Sprintf("xor operator: %v", err))
	}
	return
}

// Number of inputs the operator expects
func (op *Operator) Inputs() (n int) {
	n = len(op.coefs)
	return
}

// Writes the combination of the first size bytes of srcs into dst.
// dst must not alias any source.
func (op *Operator) Combine(size int, dst []byte, srcs ...[]byte) (err error) {
	if len(srcs) != len(op.coefs) {
		err = fmt.Errorf("expected %d inputs, got %d", len(op.coefs), len(srcs))
		return
	}
	if size <= 0 {
		err = fmt.Errorf("combine size must be positive, got %d", size)
		return
	}
	if len(dst) < size {
		err = fmt.Errorf("destination holds %d bytes, need %d", len(dst), size)
		return
	}
	for i, src := range srcs {
		if len(src) < size {
			err = fmt.Errorf("input %d holds %d bytes, need %d", i, len(src), size)
			return
		}
	}

	op.mu.Lock()
	defer op.mu.Unlock()

	for i, src := range srcs {
		op.shard[i] = src[:size]
	}
	op.shard[len(srcs)] = dst[:size]

	err = op.enc.Encode(op.shard)
	for i := range op.shard {
		op.shard[i] = nil
	}
	if err != nil {
		err = fmt.Errorf("failed combining %d inputs: %w", len(srcs), err)
	}
	return
}
