package ecdh

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// Fixed key length for x25519
const KeyLen int = curve25519.ScalarSize

// Creates a one-use key pair for a link handshake
func NewEphemeral() (private, public []byte, err error) {
	private = make([]byte, KeyLen)
	_, err = rand.Read(private)
	if err != nil {
		err = fmt.Errorf("failed to generate ephemeral private key: %w", err)
		return
	}

	public, err = curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		err = fmt.Errorf("failed to generate ephemeral public key: %w", err)
		return
	}
	return
}

// Combines our private key with the peer's public key
func SharedSecret(private, peerPublic []byte) (sharedSecret []byte, err error) {
	sharedSecret, err = curve25519.X25519(private, peerPublic)
	if err != nil {
		err = fmt.Errorf("failed to compute shared secret: %w", err)
		return
	}
	return
}
