// Stream sealing for one link direction
package aead

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"pivotrepair/internal/crypto"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// Seals or opens consecutive frames of one direction. Nonces are a frame counter,
// so frames must be opened in the order they were sealed.
type Stream struct {
	mu      sync.Mutex
	aead    cipher.AEAD
	counter uint64
	nonce   []byte
}

// Builds a stream from a direction key. The key is zeroed afterwards.
func NewStream(key []byte) (new *Stream, err error) {
	aead, err := chacha20poly1305.New(key)
	crypto.Memzero(key)
	if err != nil {
		err = fmt.Errorf("failed creation of AEAD: %w", err)
		return
	}

	new = &Stream{
		aead:  aead,
		nonce: make([]byte, chacha20poly1305.NonceSize),
	}
	return
}

func (stream *Stream) next() (nonce []byte, err error) {
	if stream.counter == ^uint64(0) {
		err = fmt.Errorf("link nonce space exhausted")
		return
	}
	binary.LittleEndian.PutUint64(stream.nonce, stream.counter)
	stream.counter++
	nonce = stream.nonce
	return
}

// Appends the sealed frame to dst
func (stream *Stream) Seal(dst, plaintext []byte) (ciphertext []byte, err error) {
	stream.mu.Lock()
	defer stream.mu.Unlock()

	nonce, err := stream.next()
	if err != nil {
		return
	}
	ciphertext = stream.aead.Seal(dst, nonce, plaintext, nil)
	return
}

// Appends the opened frame to dst
func (stream *Stream) Open(dst, ciphertext []byte) (plaintext []byte, err error) {
	stream.mu.Lock()
	defer stream.mu.Unlock()

	nonce, err := stream.next()
	if err != nil {
		return
	}
	plaintext, err = stream.aead.Open(dst, nonce, ciphertext, nil)
	if err != nil {
		err = fmt.Errorf("failed opening link frame: %w", err)
		return
	}
	return
}

func (stream *Stream) Overhead() (n int) {
	n = stream.aead.Overhead()
	return
}
