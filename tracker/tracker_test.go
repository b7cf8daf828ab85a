package tracker_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosstad/gobittorrent/tracker"
)

func TestDecodeResponseCompactPeers(t *testing.T) {
	// 10.0.0.1:6881, 10.0.0.2:6882
	body := "d8:completei1e10:incompletei2e8:intervali1800e5:peers12:\x0a\x00\x00\x01\x1a\xe1\x0a\x00\x00\x02\x1a\xe2e"
	resp, err := tracker.DecodeResponse(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, resp.Peers, 2)
	assert.Equal(t, "10.0.0.1:6881", resp.Peers[0].String())
	assert.Equal(t, "10.0.0.2:6882", resp.Peers[1].String())
	assert.Equal(t, int64(1800), resp.Interval)
	assert.Equal(t, int64(1), resp.Complete)
	assert.Equal(t, int64(2), resp.Incomplete)
}

func TestDecodeResponseFailureReason(t *testing.T) {
	body := "d14:failure reason18:torrent not found!e"
	_, err := tracker.DecodeResponse(strings.NewReader(body))
	require.Error(t, err)
	assert.ErrorIs(t, err, tracker.ErrTrackerFailure)
	assert.Contains(t, err.Error(), "torrent not found!")
}

func TestAnnouncePercentEncodesInfoHashAsRawBytes(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte("d8:completei0e10:incompletei0e8:intervali900e5:peers0:e"))
	}))
	defer srv.Close()

	var infoHash [20]byte
	for i := range infoHash {
		infoHash[i] = byte(i)
	}
	var peerID [20]byte
	copy(peerID[:], "00112233445566778899")

	resp, err := tracker.Announce(context.Background(), srv.URL, tracker.RequestParams{
		InfoHash: infoHash,
		PeerID:   peerID,
		Port:     6881,
		Left:     12345,
		Compact:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(900), resp.Interval)

	assert.Equal(t, "1", gotQuery.Get("compact"))
	assert.Equal(t, "6881", gotQuery.Get("port"))
	assert.Equal(t, "12345", gotQuery.Get("left"))
	assert.Equal(t, string(infoHash[:]), gotQuery.Get("info_hash"))
	assert.Equal(t, string(peerID[:]), gotQuery.Get("peer_id"))
}

func TestAnnounceNon2xxIsTrackerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := tracker.Announce(context.Background(), srv.URL, tracker.RequestParams{Port: 6881})
	require.Error(t, err)
	assert.ErrorIs(t, err, tracker.ErrTrackerError)
}
