package metainfo_test

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosstad/gobittorrent/metainfo"
)

// buildTorrent assembles a minimal single-file bencoded metainfo file with
// the given length/piece length, filling "pieces" with n fake 20-byte
// digests so callers can control PieceCount precisely.
func buildTorrent(announce, name string, length, pieceLength int64, nPieces int) []byte {
	var pieces strings.Builder
	for i := 0; i < nPieces; i++ {
		digest := sha1.Sum([]byte(fmt.Sprintf("piece-%d", i)))
		pieces.Write(digest[:])
	}
	info := fmt.Sprintf("d6:lengthi%de4:name%d:%s12:piece lengthi%de6:pieces%d:%se",
		length, len(name), name, pieceLength, pieces.Len(), pieces.String())
	return []byte(fmt.Sprintf("d8:announce%d:%s4:info%se", len(announce), announce, info))
}

func TestParseSingleFile(t *testing.T) {
	raw := buildTorrent("http://tracker.example/announce", "debian.iso", 92063, 32768, 3)
	m, err := metainfo.Parse(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "http://tracker.example/announce", m.Announce)
	assert.Equal(t, "debian.iso", m.Name)
	assert.Equal(t, int64(92063), m.Length)
	assert.Equal(t, 3, m.PieceCount())

	size, err := m.PieceSize(2)
	require.NoError(t, err)
	assert.Equal(t, int64(26527), size)

	var total int64
	for i := 0; i < m.PieceCount(); i++ {
		s, err := m.PieceSize(i)
		require.NoError(t, err)
		total += s
	}
	assert.Equal(t, m.Length, total)
}

func TestInfoHashStableAcrossKeyOrder(t *testing.T) {
	announce := "http://tracker.example/announce"
	raw := buildTorrent(announce, "x.bin", 10, 10, 1)

	// The same dictionaries with their keys in a different byte order must
	// hash identically, since the hash is computed from the canonical
	// re-encoding, not the original byte range.
	digest := sha1.Sum([]byte("piece-0"))
	reordered := fmt.Sprintf("d4:infod6:pieces20:%s12:piece lengthi10e4:name5:x.bin6:lengthi10ee8:announce%d:%se",
		digest[:], len(announce), announce)

	m1, err := metainfo.Parse(bytes.NewReader(raw))
	require.NoError(t, err)
	m2, err := metainfo.Parse(strings.NewReader(reordered))
	require.NoError(t, err)
	assert.Equal(t, m1.InfoHash(), m2.InfoHash())
}

func TestInfoHashMatchesManualSHA1(t *testing.T) {
	infoDict := "d6:lengthi4e4:name1:x12:piece lengthi4e6:pieces0:e"
	raw := []byte(fmt.Sprintf("d8:announce3:foo4:info%se", infoDict))
	m, err := metainfo.Parse(bytes.NewReader(raw))
	require.NoError(t, err)
	want := sha1.Sum([]byte(infoDict))
	got := m.InfoHash()
	assert.Equal(t, hex.EncodeToString(want[:]), hex.EncodeToString(got[:]))
}

func TestParseRejectsBadPiecesLength(t *testing.T) {
	raw := []byte("d8:announce3:foo4:infod6:lengthi4e4:name1:x12:piece lengthi4e6:pieces3:abcee")
	_, err := metainfo.Parse(bytes.NewReader(raw))
	require.Error(t, err)
	assert.ErrorIs(t, err, metainfo.ErrMetainfoInvalid)
}

func TestParseRejectsMultiFile(t *testing.T) {
	raw := []byte("d8:announce3:foo4:infod4:name1:x5:filesle12:piece lengthi4e6:pieces0:ee")
	_, err := metainfo.Parse(bytes.NewReader(raw))
	require.Error(t, err)
	assert.ErrorIs(t, err, metainfo.ErrMetainfoInvalid)
}

func TestParseRejectsNonPositiveLength(t *testing.T) {
	raw := []byte("d8:announce3:foo4:infod6:lengthi0e4:name1:x12:piece lengthi4e6:pieces0:ee")
	_, err := metainfo.Parse(bytes.NewReader(raw))
	require.Error(t, err)
	assert.ErrorIs(t, err, metainfo.ErrMetainfoInvalid)
}
