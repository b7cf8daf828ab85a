// Package peerwire implements the BitTorrent peer wire protocol: the
// 68-byte handshake, length-prefixed message framing, and a synchronous,
// single-peer, sequential block-level piece downloader.
package peerwire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrProtocol is wrapped by framing and sequencing violations: short
// reads, unknown message ids, and index/offset mismatches on a Piece
// message.
var ErrProtocol = errors.New("peer protocol error")

// MessageID identifies the kind of a post-handshake peer message.
type MessageID uint8

const (
	Choke         MessageID = 0
	Unchoke       MessageID = 1
	Interested    MessageID = 2
	NotInterested MessageID = 3
	Have          MessageID = 4
	Bitfield      MessageID = 5
	Request       MessageID = 6
	Piece         MessageID = 7
	Cancel        MessageID = 8

	// MessageKeepAlive is never sent on the wire (a keep-alive is a
	// zero-length frame with no id byte at all); ReadMessage returns it
	// as a sentinel so callers can observe and ignore keep-alives
	// explicitly instead of silently looping past them.
	MessageKeepAlive MessageID = 0xFF
)

func (id MessageID) String() string {
	switch id {
	case Choke:
		return "choke"
	case Unchoke:
		return "unchoke"
	case Interested:
		return "interested"
	case NotInterested:
		return "not_interested"
	case Have:
		return "have"
	case Bitfield:
		return "bitfield"
	case Request:
		return "request"
	case Piece:
		return "piece"
	case Cancel:
		return "cancel"
	case MessageKeepAlive:
		return "keep_alive"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// BlockSize is the fixed request granularity, 2^14 bytes.
const BlockSize = 16384

// Message is a single post-handshake peer wire message.
type Message struct {
	ID      MessageID
	Payload []byte
}

// Serialize encodes m as the wire frame: 4-byte big-endian length, then
// (for non-keep-alive messages) the id byte and payload.
func (m Message) Serialize() []byte {
	if m.ID == MessageKeepAlive {
		return []byte{0, 0, 0, 0}
	}
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// ReadMessage reads one length-prefixed message from r. A zero-length
// frame is reported as MessageKeepAlive with a nil payload, rather than
// being silently skipped, so the caller's state machine can log it.
func ReadMessage(r io.Reader) (Message, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return Message{}, fmt.Errorf("%w: reading length prefix: %v", ErrProtocol, err)
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length == 0 {
		return Message{ID: MessageKeepAlive}, nil
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("%w: reading %d-byte message body: %v", ErrProtocol, length, err)
	}

	id := MessageID(body[0])
	switch id {
	case Choke, Unchoke, Interested, NotInterested, Have, Bitfield, Request, Piece, Cancel:
	default:
		return Message{}, fmt.Errorf("%w: unknown message id %d", ErrProtocol, id)
	}

	return Message{ID: id, Payload: body[1:]}, nil
}

// WriteMessage writes m to w as a single logical send.
func WriteMessage(w io.Writer, m Message) error {
	if _, err := w.Write(m.Serialize()); err != nil {
		return fmt.Errorf("%w: writing %s message: %v", ErrProtocol, m.ID, err)
	}
	return nil
}

// NewHaveMessage builds a Have(index) message.
func NewHaveMessage(index uint32) Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, index)
	return Message{ID: Have, Payload: payload}
}

// NewRequestMessage builds a Request(index, begin, length) message.
func NewRequestMessage(index, begin, length uint32) Message {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], index)
	binary.BigEndian.PutUint32(payload[4:8], begin)
	binary.BigEndian.PutUint32(payload[8:12], length)
	return Message{ID: Request, Payload: payload}
}

// NewCancelMessage builds a Cancel(index, begin, length) message.
func NewCancelMessage(index, begin, length uint32) Message {
	m := NewRequestMessage(index, begin, length)
	m.ID = Cancel
	return m
}

// ParsePieceMessage extracts (index, begin, block) from a Piece message's
// payload.
func ParsePieceMessage(m Message) (index, begin uint32, block []byte, err error) {
	if m.ID != Piece {
		return 0, 0, nil, fmt.Errorf("%w: expected piece message, got %s", ErrProtocol, m.ID)
	}
	if len(m.Payload) < 8 {
		return 0, 0, nil, fmt.Errorf("%w: piece payload too short: %d bytes", ErrProtocol, len(m.Payload))
	}
	index = binary.BigEndian.Uint32(m.Payload[0:4])
	begin = binary.BigEndian.Uint32(m.Payload[4:8])
	block = m.Payload[8:]
	return index, begin, block, nil
}

// ParseHaveMessage extracts the piece index from a Have message's
// payload.
func ParseHaveMessage(m Message) (uint32, error) {
	if m.ID != Have {
		return 0, fmt.Errorf("%w: expected have message, got %s", ErrProtocol, m.ID)
	}
	if len(m.Payload) != 4 {
		return 0, fmt.Errorf("%w: have payload must be 4 bytes, got %d", ErrProtocol, len(m.Payload))
	}
	return binary.BigEndian.Uint32(m.Payload), nil
}
