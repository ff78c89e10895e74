package hash

import (
	"crypto/sha512"
	"encoding/binary"
)

// Hashes inputs in order. Each input is length prefixed so boundaries cannot shift.
func Transcript(label string, inputs ...[]byte) (sum []byte) {
	hasher := sha512.New()

	var length [8]byte
	for _, input := range append([][]byte{[]byte(label)}, inputs...) {
		binary.LittleEndian.PutUint64(length[:], uint64(len(input)))
		hasher.Write(length[:])
		hasher.Write(input)
	}

	sum = hasher.Sum(nil)
	return
}
