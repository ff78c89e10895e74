package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"pivotrepair/internal/crypto"
	"pivotrepair/internal/crypto/ecdh"
	"pivotrepair/internal/crypto/wrappers"
	"slices"
	"time"
)

const (
	lenHandshakeID int           = 8
	handshakeLimit time.Duration = 30 * time.Second
)

// Exchanges node ids (and ephemeral keys when sealing) over a fresh connection.
// The dialer speaks first. Returns the peer ready for traffic.
func handshake(conn net.Conn, self int64, dialer bool, secret []byte) (new *peer, err error) {
	err = conn.SetDeadline(time.Now().Add(handshakeLimit))
	if err != nil {
		return
	}
	defer conn.SetDeadline(time.Time{})

	var private, public []byte
	if len(secret) > 0 {
		private, public, err = ecdh.NewEphemeral()
		if err != nil {
			return
		}
	}

	hello := make([]byte, lenHandshakeID, lenHandshakeID+len(public))
	binary.LittleEndian.PutUint64(hello, uint64(self))
	hello = append(hello, public...)

	reply := make([]byte, len(hello))
	if dialer {
		_, err = conn.Write(hello)
		if err == nil {
			_, err = io.ReadFull(conn, reply)
		}
	} else {
		_, err = io.ReadFull(conn, reply)
		if err == nil {
			_, err = conn.Write(hello)
		}
	}
	if err != nil {
		crypto.Memzero(private)
		err = fmt.Errorf("handshake failed: %w", err)
		return
	}

	peerID := int64(binary.LittleEndian.Uint64(reply[:lenHandshakeID]))
	new = &peer{id: peerID, conn: conn}
	if len(secret) == 0 {
		return
	}

	params := wrappers.LinkParams{
		Secret:  slices.Clone(secret),
		Private: private,
	}
	peerPublic := reply[lenHandshakeID:]
	if dialer {
		params.IsDialer = true
		params.DialerID, params.AcceptorID = self, peerID
		params.DialerPub, params.AcceptorPub = public, peerPublic
	} else {
		params.DialerID, params.AcceptorID = peerID, self
		params.DialerPub, params.AcceptorPub = peerPublic, public
	}

	new.seal, new.open, err = wrappers.DeriveLinkStreams(params)
	crypto.Memzero(params.Secret)
	if err != nil {
		new = nil
		err = fmt.Errorf("failed deriving link keys with node %d: %w", peerID, err)
		return
	}
	return
}
