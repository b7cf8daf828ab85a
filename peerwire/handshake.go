package peerwire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrHandshakeFailed is wrapped by a short read or a protocol-string /
// info-hash mismatch during the handshake.
var ErrHandshakeFailed = errors.New("handshake failed")

const (
	protocolString  = "BitTorrent protocol"
	handshakeLength = 1 + len(protocolString) + 8 + 20 + 20 // 68
)

// Handshake is the fixed 68-byte frame exchanged as the first bytes on a
// new peer TCP connection.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// Serialize encodes the handshake as its exact 68-byte wire form: a
// length-prefixed protocol string, 8 reserved zero bytes, the info-hash,
// then the peer-id. No struct punning is used; every field is placed at
// an explicit byte offset.
func (h Handshake) Serialize() []byte {
	buf := make([]byte, 0, handshakeLength)
	buf = append(buf, byte(len(protocolString)))
	buf = append(buf, protocolString...)
	buf = append(buf, make([]byte, 8)...)
	buf = append(buf, h.InfoHash[:]...)
	buf = append(buf, h.PeerID[:]...)
	return buf
}

// ReadHandshake reads and validates a 68-byte handshake frame from r,
// failing with ErrHandshakeFailed on a short read, a wrong protocol
// string length, or a wrong protocol string.
func ReadHandshake(r io.Reader) (Handshake, error) {
	buf := make([]byte, handshakeLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Handshake{}, fmt.Errorf("%w: short read: %v", ErrHandshakeFailed, err)
	}
	if int(buf[0]) != len(protocolString) {
		return Handshake{}, fmt.Errorf("%w: unexpected protocol string length %d", ErrHandshakeFailed, buf[0])
	}
	if string(buf[1:1+len(protocolString)]) != protocolString {
		return Handshake{}, fmt.Errorf("%w: unexpected protocol string %q", ErrHandshakeFailed, buf[1:1+len(protocolString)])
	}
	var h Handshake
	offset := 1 + len(protocolString) + 8
	copy(h.InfoHash[:], buf[offset:offset+20])
	copy(h.PeerID[:], buf[offset+20:offset+40])
	return h, nil
}

// DoHandshake writes our handshake to rw and reads the peer's reply,
// verifying that the reply's info-hash matches what we sent. The peer-id
// returned by the peer is not verified against anything (the spec leaves
// this undecided and it is only ever used for display), only returned.
func DoHandshake(rw io.ReadWriter, infoHash, ourPeerID [20]byte) (peerID [20]byte, err error) {
	ours := Handshake{InfoHash: infoHash, PeerID: ourPeerID}
	if _, err := rw.Write(ours.Serialize()); err != nil {
		return peerID, fmt.Errorf("%w: sending handshake: %v", ErrHandshakeFailed, err)
	}

	theirs, err := ReadHandshake(rw)
	if err != nil {
		return peerID, err
	}
	if !bytes.Equal(theirs.InfoHash[:], infoHash[:]) {
		return peerID, fmt.Errorf("%w: info-hash mismatch: expected %x, got %x", ErrHandshakeFailed, infoHash, theirs.InfoHash)
	}
	return theirs.PeerID, nil
}
