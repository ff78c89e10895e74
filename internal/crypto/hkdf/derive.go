package hkdf

import (
	"crypto/sha512"
	"fmt"

	"golang.org/x/crypto/hkdf"
)

// Derives a keySize key from input key material and salt, namespaced by info.
// The caller keeps ownership of secret and salt.
func DeriveKey(secret, salt []byte, info string, keySize int) (secureKey []byte, err error) {
	deriver := hkdf.New(sha512.New, secret, salt, []byte(info))

	secureKey = make([]byte, keySize)
	_, err = deriver.Read(secureKey)
	if err != nil {
		err = fmt.Errorf("failed to populate key with secure bytes: %w", err)
		return
	}
	return
}
