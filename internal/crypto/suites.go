package crypto

import (
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

type SuiteInfo struct {
	Name           string
	KeySize        int
	NonceSize      int
	CipherOverhead int
	PublicKeySize  int
}

// Suite used by sealed node links
var LinkSuite = SuiteInfo{
	Name:           "x25519-psk-hkdf-chacha20poly1305",
	KeySize:        chacha20poly1305.KeySize,
	NonceSize:      chacha20poly1305.NonceSize,
	CipherOverhead: chacha20poly1305.Overhead,
	PublicKeySize:  curve25519.PointSize,
}
