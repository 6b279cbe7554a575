package tcp

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/samber/oops"

	"github.com/openus/go-secproto/lib/algorithm"
	"github.com/openus/go-secproto/lib/keys"
	"github.com/openus/go-secproto/lib/metrics"
	"github.com/openus/go-secproto/lib/ticket"
	"github.com/openus/go-secproto/lib/transport"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address to listen on, e.g. "127.0.0.1:7443". Port 0 picks a free port.
	Address string

	Set algorithm.Set

	// PrivateKey must be nil exactly when Set.Asymmetric is none.
	PrivateKey *keys.PrivateKey

	// EnableTicketTime is how long an issued ticket stays redeemable. Zero
	// disables resumption.
	EnableTicketTime time.Duration

	// TicketCleanerInterval, when positive, runs a background sweep of
	// expired tickets at this period.
	TicketCleanerInterval time.Duration

	// Blacklist holds hosts or host:port endpoints refused before any bytes
	// are read.
	Blacklist []string

	// AcceptRate limits established connections per second; AcceptBurst is
	// the bucket size. Zero means unlimited.
	AcceptRate  float64
	AcceptBurst int

	// HandshakeTimeout bounds the time a connecting peer may take to deliver
	// its first packet. Zero waits forever.
	HandshakeTimeout time.Duration

	// Clock drives ticket expiry. Nil uses wall time.
	Clock clock.Clock

	// Metrics is optional.
	Metrics *metrics.Collector
}

const DefaultHandshakeTimeout = 10 * time.Second

// DefaultServerConfig returns a ServerConfig with default ticket lifetime and
// handshake timeout. The caller supplies the key.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:          "127.0.0.1:7443",
		Set:              algorithm.DefaultSet,
		EnableTicketTime: ticket.DefaultLifetime,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
}

// Validate rejects inconsistent configuration before anything listens.
func (c *ServerConfig) Validate() error {
	if err := c.Set.Validate(); err != nil {
		return err
	}
	if (c.PrivateKey == nil) != (c.Set.Asymmetric == algorithm.AsymmetricNone) {
		return oops.Wrapf(transport.ErrInvalidCombination, "private key present=%t for %s", c.PrivateKey != nil, c.Set)
	}
	if c.PrivateKey != nil && c.PrivateKey.Algorithm != c.Set.Asymmetric {
		return oops.Wrapf(transport.ErrInvalidCombination, "private key is %s, set wants %s", c.PrivateKey.Algorithm, c.Set.Asymmetric)
	}
	if c.EnableTicketTime < 0 {
		return oops.Errorf("negative ticket lifetime %s", c.EnableTicketTime)
	}
	if c.TicketCleanerInterval < 0 {
		return oops.Wrapf(transport.ErrInvalidInterval, "%s", c.TicketCleanerInterval)
	}
	if c.AcceptRate < 0 || c.AcceptBurst < 0 {
		return oops.Errorf("negative accept rate %v or burst %d", c.AcceptRate, c.AcceptBurst)
	}
	return nil
}

// ClientConfig gathers what a command line client needs to reach one server.
type ClientConfig struct {
	Address string
	Retry   int
	Set     algorithm.Set

	// PublicKey must be nil exactly when Set.Asymmetric is none.
	PublicKey *keys.PublicKey

	// RetryDelay zero keeps DefaultRetryDelay.
	RetryDelay time.Duration
}

// NewClient builds a Client from the configuration.
func (c *ClientConfig) NewClient() (*Client, error) {
	if c.Retry < 0 {
		return nil, oops.Errorf("negative retry count %d", c.Retry)
	}
	client, err := NewClient(c.PublicKey, c.Set)
	if err != nil {
		return nil, err
	}
	if c.RetryDelay > 0 {
		client.RetryDelay = c.RetryDelay
	}
	return client, nil
}
