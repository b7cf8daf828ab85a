package main

import (
	"crypto/rand"
	"log/slog"
)

// Client holds the identity and configuration a CLI invocation announces
// to trackers and peers under. main builds exactly one Client per
// invocation, and the subcommands that talk to trackers or peers use it
// for the single operation they perform; there is no persistent session
// or background goroutine.
type Client struct {
	peerID [20]byte
	port   int64
	logger *slog.Logger
}

// Option configures a Client constructed by New.
type Option func(*Client)

// WithLogger overrides the Client's logger. The default writes structured
// text to stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithPort overrides the port advertised to the tracker. Real incoming
// connections are never accepted on it; this client only dials out.
func WithPort(port int64) Option {
	return func(c *Client) { c.port = port }
}

// WithPeerID overrides the randomly generated peer-id.
func WithPeerID(id [20]byte) Option {
	return func(c *Client) { c.peerID = id }
}

func defaults(c *Client) {
	c.port = 6881
	c.logger = slog.Default()
	copy(c.peerID[:], "-GB0001-")
	if _, err := rand.Read(c.peerID[8:]); err != nil {
		panic(err)
	}
}

// New builds a Client, applying opts over the package defaults.
func New(opts ...Option) *Client {
	c := &Client{}
	defaults(c)
	for _, o := range opts {
		o(c)
	}
	return c
}
