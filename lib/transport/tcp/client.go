package tcp

import (
	"bufio"
	"context"
	"crypto/rsa"
	"net"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/openus/go-secproto/lib/algorithm"
	"github.com/openus/go-secproto/lib/crypto"
	"github.com/openus/go-secproto/lib/keys"
	"github.com/openus/go-secproto/lib/record"
	"github.com/openus/go-secproto/lib/ticket"
	"github.com/openus/go-secproto/lib/transport"
)

// DefaultRetryDelay is the pause between connect attempts.
const DefaultRetryDelay = 200 * time.Millisecond

// Client opens sessions to servers holding the private half of one public
// key. It is safe for concurrent use.
type Client struct {
	set    algorithm.Set
	asym   *crypto.Asymmetric
	dialer net.Dialer

	// RetryDelay is the pause between connect attempts.
	RetryDelay time.Duration
}

// NewClient builds a client for set. pub must be nil exactly when
// set.Asymmetric is none.
func NewClient(pub *keys.PublicKey, set algorithm.Set) (*Client, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	var key *rsa.PublicKey
	if pub != nil {
		if pub.Algorithm != set.Asymmetric {
			return nil, oops.Wrapf(transport.ErrInvalidCombination, "public key is %s, set wants %s", pub.Algorithm, set.Asymmetric)
		}
		key = pub.Key
	}
	asym, err := crypto.NewAsymmetric(set.Asymmetric, key, nil)
	if err != nil {
		return nil, err
	}
	return &Client{set: set, asym: asym, RetryDelay: DefaultRetryDelay}, nil
}

// NewInsecureClient speaks the unencrypted length-prefixed framing.
func NewInsecureClient() *Client {
	c, err := NewClient(nil, algorithm.NoneSet)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Client) Set() algorithm.Set { return c.set }

// Connect dials addr and performs a fresh handshake. retry is the number of
// extra connect attempts after the first fails.
func (c *Client) Connect(addr string, retry int) (*Conn, error) {
	return c.ConnectContext(context.Background(), addr, retry)
}

func (c *Client) ConnectContext(ctx context.Context, addr string, retry int) (*Conn, error) {
	ks, err := keys.GenerateKeySet(c.set)
	if err != nil {
		return nil, err
	}
	var first []byte
	if c.set.Secure() {
		ct, err := c.asym.Encrypt(ks.Concat())
		if err != nil {
			return nil, err
		}
		if first, err = padPacket(ct, c.set.MinimumConnectPacketSize()); err != nil {
			return nil, err
		}
	}

	raw, err := c.dial(ctx, addr, retry)
	if err != nil {
		return nil, err
	}
	return c.establish(raw, ks, first, ks.Confirmation())
}

// Resume reconnects with a ticket from an earlier session instead of a
// fresh handshake. A rejected ticket is an error; the caller decides whether
// to fall back to Connect.
func (c *Client) Resume(addr string, t *ticket.ClientTicket, retry int) (*Conn, error) {
	return c.ResumeContext(context.Background(), addr, t, retry)
}

func (c *Client) ResumeContext(ctx context.Context, addr string, t *ticket.ClientTicket, retry int) (*Conn, error) {
	if !c.set.Secure() {
		return nil, oops.Wrapf(transport.ErrInvalidTicket, "resumption needs a symmetric algorithm")
	}
	if t == nil || t.Keys == nil || t.Keys.Set() != c.set {
		return nil, oops.Wrapf(transport.ErrInvalidTicket, "ticket does not belong to set %s", c.set)
	}
	first, err := padPacket(t.Blob, c.set.MinimumConnectPacketSize())
	if err != nil {
		return nil, err
	}

	raw, err := c.dial(ctx, addr, retry)
	if err != nil {
		return nil, err
	}
	return c.establish(raw, t.Keys.Clone(), first, crypto.Hash(c.set.Hash, first))
}

func (c *Client) dial(ctx context.Context, addr string, retry int) (net.Conn, error) {
	attempts := max(retry, 0) + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		raw, err := c.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		log.WithFields(logger.Fields{
			"at":      "tcp.Client.dial",
			"address": addr,
			"attempt": i + 1,
			"of":      attempts,
		}).WithError(err).Debug("connect_attempt_failed")

		if i+1 == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, oops.Wrapf(transport.ErrConnect, "%s: %v", addr, ctx.Err())
		case <-time.After(c.RetryDelay):
		}
	}
	return nil, oops.Wrapf(transport.ErrConnect, "%s after %d attempts: %v", addr, attempts, lastErr)
}

// establish sends the first packet, checks the server's key confirmation
// and stores the ticket that follows it. Any failure closes raw.
func (c *Client) establish(raw net.Conn, ks *keys.KeySet, first, confirmation []byte) (*Conn, error) {
	layer, err := record.NewLayer(ks)
	if err != nil {
		raw.Close()
		return nil, err
	}
	conn := newConn(raw, bufio.NewReader(raw), layer, ks)
	if !c.set.Secure() {
		return conn, nil
	}

	fail := func(stage string, err error) (*Conn, error) {
		log.WithFields(logger.Fields{
			"at":     "tcp.Client.establish",
			"stage":  stage,
			"remote": raw.RemoteAddr().String(),
		}).WithError(err).Warn("handshake_failed")
		raw.Close()
		return nil, oops.Wrapf(transport.ErrHandshakeFailed, "%s: %v", stage, err)
	}

	if _, err := raw.Write(first); err != nil {
		return fail("send first packet", err)
	}
	proof, err := layer.Read(conn.r)
	if err != nil {
		return fail("read confirmation", err)
	}
	if !crypto.EqualMAC(proof, confirmation) {
		return fail("confirm keys", oops.Errorf("confirmation mismatch"))
	}
	blob, err := layer.Read(conn.r)
	if err != nil {
		return fail("read ticket", err)
	}
	conn.setTicket(&ticket.ClientTicket{Blob: blob, Keys: ks.Clone()})

	log.WithFields(logger.Fields{
		"at":     "tcp.Client.establish",
		"remote": raw.RemoteAddr().String(),
		"set":    c.set.String(),
	}).Debug("session_established")
	return conn, nil
}

// padPacket extends p with random bytes to exactly size.
func padPacket(p []byte, size int) ([]byte, error) {
	if len(p) > size {
		return nil, oops.Errorf("first packet of %d bytes exceeds %d", len(p), size)
	}
	pad, err := crypto.RandomBytes(size - len(p))
	if err != nil {
		return nil, err
	}
	return append(append(make([]byte, 0, size), p...), pad...), nil
}

