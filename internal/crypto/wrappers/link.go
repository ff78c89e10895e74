// Key schedule for sealed node links
package wrappers

import (
	"fmt"
	"pivotrepair/internal/crypto"
	"pivotrepair/internal/crypto/aead"
	"pivotrepair/internal/crypto/ecdh"
	"pivotrepair/internal/crypto/hash"
	"pivotrepair/internal/crypto/hkdf"
)

// Parameters one side of a link knows after exchanging ephemeral public keys
type LinkParams struct {
	Secret      []byte // pre-shared link secret
	Private     []byte // our ephemeral private key, zeroed after derivation
	DialerPub   []byte
	AcceptorPub []byte
	DialerID    int64
	AcceptorID  int64
	IsDialer    bool
}

// Derives the outgoing and incoming streams for one side of a link.
// Both sides mix the pre-shared secret with the ephemeral x25519 result.
func DeriveLinkStreams(params LinkParams) (send, receive *aead.Stream, err error) {
	if len(params.Secret) == 0 {
		err = fmt.Errorf("link secret is empty")
		return
	}

	peerPub := params.AcceptorPub
	if !params.IsDialer {
		peerPub = params.DialerPub
	}
	shared, err := ecdh.SharedSecret(params.Private, peerPub)
	crypto.Memzero(params.Private)
	if err != nil {
		return
	}
	defer crypto.Memzero(shared)

	ikm := append(append([]byte(nil), shared...), params.Secret...)
	defer crypto.Memzero(ikm)

	salt := hash.Transcript(crypto.LinkSuite.Name, params.DialerPub, params.AcceptorPub)

	forward := fmt.Sprintf("%s %d->%d", crypto.LinkSuite.Name, params.DialerID, params.AcceptorID)
	backward := fmt.Sprintf("%s %d->%d", crypto.LinkSuite.Name, params.AcceptorID, params.DialerID)

	forwardKey, err := hkdf.DeriveKey(ikm, salt, forward, crypto.LinkSuite.KeySize)
	if err != nil {
		err = fmt.Errorf("failed deriving %s key: %w", forward, err)
		return
	}
	backwardKey, err := hkdf.DeriveKey(ikm, salt, backward, crypto.LinkSuite.KeySize)
	if err != nil {
		err = fmt.Errorf("failed deriving %s key: %w", backward, err)
		return
	}

	sendKey, receiveKey := forwardKey, backwardKey
	if !params.IsDialer {
		sendKey, receiveKey = backwardKey, forwardKey
	}

	send, err = aead.NewStream(sendKey)
	if err != nil {
		return
	}
	receive, err = aead.NewStream(receiveKey)
	return
}
