// Package metainfo decodes single-file BitTorrent .torrent metainfo and
// computes the info-hash and per-piece SHA-1 hashes that the tracker and
// peer wire protocols depend on.
package metainfo

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"

	"github.com/rosstad/gobittorrent/bencode"
)

// ErrMetainfoInvalid is wrapped by every field-level validation failure.
var ErrMetainfoInvalid = errors.New("invalid metainfo")

const hashSize = sha1.Size // 20

// Metainfo is the decoded, validated contents of a single-file .torrent
// file. It is immutable after Parse returns.
type Metainfo struct {
	Announce    string
	Name        string
	Length      int64
	PieceLength int64
	// pieces holds one hashSize-byte SHA-1 digest per file piece.
	pieces []byte
	// info is the raw decoded info dictionary, retained so InfoHash can
	// re-encode it canonically without reconstructing it from the typed
	// fields above.
	info *bencode.Dictionary
}

// Parse decodes r as a bencoded single-file .torrent metainfo file.
func Parse(r io.Reader) (*Metainfo, error) {
	v, err := bencode.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetainfoInvalid, err)
	}
	top, ok := v.(*bencode.Dictionary)
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is %v, not a dictionary", ErrMetainfoInvalid, v.Type())
	}

	announceStr, err := byteStringField(top, "announce")
	if err != nil {
		return nil, err
	}

	infoVal := top.Get("info")
	if infoVal == nil {
		return nil, fmt.Errorf("%w: missing \"info\" dictionary", ErrMetainfoInvalid)
	}
	info, ok := infoVal.(*bencode.Dictionary)
	if !ok {
		return nil, fmt.Errorf("%w: \"info\" is %v, not a dictionary", ErrMetainfoInvalid, infoVal.Type())
	}

	if info.Get("length") == nil && info.Get("files") != nil {
		return nil, fmt.Errorf("%w: multi-file torrents are not supported", ErrMetainfoInvalid)
	}

	name, err := byteStringField(info, "name")
	if err != nil {
		return nil, err
	}
	length, err := integerField(info, "length")
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		return nil, fmt.Errorf("%w: length must be positive, got %d", ErrMetainfoInvalid, length)
	}
	pieceLength, err := integerField(info, "piece length")
	if err != nil {
		return nil, err
	}
	if pieceLength <= 0 {
		return nil, fmt.Errorf("%w: piece length must be positive, got %d", ErrMetainfoInvalid, pieceLength)
	}
	piecesStr, err := byteStringField(info, "pieces")
	if err != nil {
		return nil, err
	}
	if len(piecesStr)%hashSize != 0 {
		return nil, fmt.Errorf("%w: pieces length %d is not a multiple of %d", ErrMetainfoInvalid, len(piecesStr), hashSize)
	}

	return &Metainfo{
		Announce:    announceStr,
		Name:        name,
		Length:      length,
		PieceLength: pieceLength,
		pieces:      []byte(piecesStr),
		info:        info,
	}, nil
}

func byteStringField(dict *bencode.Dictionary, key string) (string, error) {
	v := dict.Get(key)
	if v == nil {
		return "", fmt.Errorf("%w: missing %q field", ErrMetainfoInvalid, key)
	}
	bs, ok := v.(*bencode.ByteString)
	if !ok {
		return "", fmt.Errorf("%w: %q is %v, not a byte string", ErrMetainfoInvalid, key, v.Type())
	}
	return string(*bs), nil
}

func integerField(dict *bencode.Dictionary, key string) (int64, error) {
	v := dict.Get(key)
	if v == nil {
		return 0, fmt.Errorf("%w: missing %q field", ErrMetainfoInvalid, key)
	}
	i, ok := v.(*bencode.Integer)
	if !ok {
		return 0, fmt.Errorf("%w: %q is %v, not an integer", ErrMetainfoInvalid, key, v.Type())
	}
	return int64(*i), nil
}

// InfoHash computes the SHA-1 of the canonical bencode re-encoding of the
// info dictionary. This is never derived from the original file bytes,
// which are not guaranteed to be canonically ordered.
func (m *Metainfo) InfoHash() [20]byte {
	return sha1.Sum([]byte(m.info.Literal()))
}

// PieceCount returns the number of pieces described by the metainfo.
func (m *Metainfo) PieceCount() int {
	return len(m.pieces) / hashSize
}

// PieceHash returns the 20-byte SHA-1 digest of piece i, as listed in the
// metainfo's "pieces" field.
func (m *Metainfo) PieceHash(i int) ([20]byte, error) {
	var h [20]byte
	if i < 0 || i >= m.PieceCount() {
		return h, fmt.Errorf("metainfo: piece index %d out of range [0,%d)", i, m.PieceCount())
	}
	copy(h[:], m.pieces[i*hashSize:(i+1)*hashSize])
	return h, nil
}

// PieceSize returns the size in bytes of piece i. Every piece has size
// PieceLength except possibly the last, which is shorter when Length is
// not an exact multiple of PieceLength.
func (m *Metainfo) PieceSize(i int) (int64, error) {
	n := m.PieceCount()
	if i < 0 || i >= n {
		return 0, fmt.Errorf("metainfo: piece index %d out of range [0,%d)", i, n)
	}
	if i < n-1 {
		return m.PieceLength, nil
	}
	return m.Length - int64(n-1)*m.PieceLength, nil
}
