package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/rosstad/gobittorrent/bencode"
	"github.com/rosstad/gobittorrent/metainfo"
	"github.com/rosstad/gobittorrent/peerwire"
	"github.com/rosstad/gobittorrent/tracker"
)

// decodeCommand implements `decode <bencoded-value>`: decodes the literal
// argument and prints its JSON rendering. ByteStrings are rendered as
// UTF-8 text when valid, base64 otherwise (bencode.ToJSONValue); this is
// a display-only transform, never used on the info-hash path.
func decodeCommand(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: decode <bencoded value>")
	}
	v, err := bencode.DecodeString(args[0])
	if err != nil {
		return err
	}
	jsonVal, err := bencode.ToJSONValue(v)
	if err != nil {
		return err
	}
	out, err := json.Marshal(jsonVal)
	if err != nil {
		return fmt.Errorf("rendering JSON: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func loadMetainfo(path string) (*metainfo.Metainfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening torrent file: %w", err)
	}
	defer f.Close()
	return metainfo.Parse(f)
}

// infoCommand implements `info <torrent-file>`.
func infoCommand(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: info <torrent file>")
	}
	m, err := loadMetainfo(args[0])
	if err != nil {
		return err
	}
	hash := m.InfoHash()
	fmt.Printf("Tracker URL: %s\n", m.Announce)
	fmt.Printf("Length: %d\n", m.Length)
	fmt.Printf("Info Hash: %s\n", hex.EncodeToString(hash[:]))
	fmt.Printf("Piece Length: %d\n", m.PieceLength)
	fmt.Println("Piece Hashes:")
	for i := 0; i < m.PieceCount(); i++ {
		h, err := m.PieceHash(i)
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(h[:]))
	}
	return nil
}

// announce hits the torrent's tracker requesting a compact peer list for
// the whole file, as every other subcommand that needs peers does.
func (c *Client) announce(ctx context.Context, m *metainfo.Metainfo) (*tracker.Response, error) {
	infoHash := m.InfoHash()
	resp, err := tracker.Announce(ctx, m.Announce, tracker.RequestParams{
		InfoHash: infoHash,
		PeerID:   c.peerID,
		Port:     c.port,
		Left:     m.Length,
		Compact:  true,
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("tracker announce succeeded",
		slog.Int("peers", len(resp.Peers)),
		slog.Int64("interval", resp.Interval),
	)
	return resp, nil
}

// peersCommand implements `peers <torrent-file>`.
func (c *Client) peersCommand(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: peers <torrent file>")
	}
	m, err := loadMetainfo(args[0])
	if err != nil {
		return err
	}
	resp, err := c.announce(context.Background(), m)
	if err != nil {
		return err
	}
	for _, p := range resp.Peers {
		fmt.Println(p.String())
	}
	return nil
}

// handshakeCommand implements `handshake <torrent-file> <peer-addr>`.
func (c *Client) handshakeCommand(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: handshake <torrent file> <peer ip:port>")
	}
	m, err := loadMetainfo(args[0])
	if err != nil {
		return err
	}
	conn, err := peerwire.Dial(args[1], peerwire.HandshakeTimeout, c.logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	peerID, err := conn.Handshake(m.InfoHash(), c.peerID)
	if err != nil {
		return err
	}
	fmt.Printf("Peer ID: %s\n", hex.EncodeToString(peerID[:]))
	return nil
}

// connectToFirstPeer announces to the tracker and establishes a ready
// connection to the first peer returned, the only peer selection policy
// this client implements.
func (c *Client) connectToFirstPeer(m *metainfo.Metainfo) (*peerwire.Conn, error) {
	resp, err := c.announce(context.Background(), m)
	if err != nil {
		return nil, err
	}
	if len(resp.Peers) == 0 {
		return nil, fmt.Errorf("%w: tracker returned no peers", tracker.ErrTrackerError)
	}
	addr := resp.Peers[0].String()

	conn, err := peerwire.Dial(addr, peerwire.HandshakeTimeout, c.logger)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Handshake(m.InfoHash(), c.peerID); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.Establish(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// downloadPieceCommand implements `download_piece -o <output> <torrent-file> <piece-index>`.
func (c *Client) downloadPieceCommand(args []string) error {
	output, rest, err := parseOutputFlag(args)
	if err != nil {
		return err
	}
	if len(rest) != 2 {
		return fmt.Errorf("usage: download_piece -o <output> <torrent file> <piece index>")
	}
	m, err := loadMetainfo(rest[0])
	if err != nil {
		return err
	}
	var index int
	if _, err := fmt.Sscanf(rest[1], "%d", &index); err != nil {
		return fmt.Errorf("invalid piece index %q: %w", rest[1], err)
	}

	conn, err := c.connectToFirstPeer(m)
	if err != nil {
		return err
	}
	defer conn.Close()

	piece, err := conn.DownloadPiece(m, index)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, piece, 0644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	fmt.Printf("Piece %d downloaded to %s\n", index, output)
	return nil
}

// downloadCommand implements `download -o <output> <torrent-file>`.
func (c *Client) downloadCommand(args []string) error {
	output, rest, err := parseOutputFlag(args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: download -o <output> <torrent file>")
	}
	m, err := loadMetainfo(rest[0])
	if err != nil {
		return err
	}

	conn, err := c.connectToFirstPeer(m)
	if err != nil {
		return err
	}
	defer conn.Close()

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	if err := conn.DownloadAll(m, f); err != nil {
		return err
	}
	fmt.Printf("Downloaded %s to %s\n", rest[0], output)
	return nil
}

func parseOutputFlag(args []string) (output string, rest []string, err error) {
	if len(args) < 2 || args[0] != "-o" {
		return "", nil, fmt.Errorf("missing required -o <output> flag")
	}
	return args[1], args[2:], nil
}
