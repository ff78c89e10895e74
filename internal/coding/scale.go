package coding

import (
	"fmt"
	"sync"
)

var (
	scalersMu sync.Mutex
	scalers   = make(map[byte]*Operator)
)

func scalerFor(coef byte) (op *Operator, err error) {
	scalersMu.Lock()
	defer scalersMu.Unlock()

	op, ok := scalers[coef]
	if ok {
		return
	}
	op, err = New([]byte{coef})
	if err != nil {
		return
	}
	scalers[coef] = op
	return
}

// Writes coef*src into dst. Coefficient 1 copies, 0 zeroes.
func Scale(coef byte, dst, src []byte) (err error) {
	if len(dst) < len(src) {
		err = fmt.Errorf("destination holds %d bytes, need %d", len(dst), len(src))
		return
	}

	switch coef {
	case 1:
		copy(dst, src)
		return
	case 0:
		clear(dst[:len(src)])
		return
	}

	op, err := scalerFor(coef)
	if err != nil {
		return
	}
	err = op.Combine(len(src), dst, src)
	return
}
