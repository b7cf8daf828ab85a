package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosstad/gobittorrent/bencode"
	"github.com/rosstad/gobittorrent/metainfo"
	"github.com/rosstad/gobittorrent/peerwire"
	"github.com/rosstad/gobittorrent/tracker"
)

func TestParseOutputFlag(t *testing.T) {
	output, rest, err := parseOutputFlag([]string{"-o", "out.bin", "file.torrent", "2"})
	require.NoError(t, err)
	assert.Equal(t, "out.bin", output)
	assert.Equal(t, []string{"file.torrent", "2"}, rest)
}

func TestParseOutputFlagRequiresDashO(t *testing.T) {
	_, _, err := parseOutputFlag([]string{"file.torrent", "2"})
	require.Error(t, err)
}

func TestExitCodeForMapsEachSentinel(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{bencode.ErrMalformed, exitBencode},
		{metainfo.ErrMetainfoInvalid, exitMetainfo},
		{tracker.ErrTrackerError, exitTracker},
		{tracker.ErrTrackerFailure, exitTracker},
		{peerwire.ErrHandshakeFailed, exitHandshake},
		{peerwire.ErrProtocol, exitProtocol},
		{peerwire.ErrPieceHashMismatch, exitHashMismatch},
		{errors.New("disk full"), exitIO},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, exitCodeFor(tc.err))
	}
}

func TestDecodeCommandRequiresOneArg(t *testing.T) {
	err := decodeCommand(nil)
	require.Error(t, err)
}

func TestLoadMetainfoMissingFile(t *testing.T) {
	_, err := loadMetainfo("/nonexistent/path/to.torrent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
