// Package udp carries records over datagrams. Each record is exactly one
// datagram, so loss shows up as a missing message and reordering or
// duplication is caught by the nonce check. There is no handshake: a Conn
// is keyed with the KeySet of an established stream session.
package udp

import (
	"net"
	"sync/atomic"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/openus/go-secproto/lib/keys"
	"github.com/openus/go-secproto/lib/record"
	"github.com/openus/go-secproto/lib/transport"
)

var log = logger.GetGoI2PLogger()

// MaxDatagramSize is the largest UDP payload over IPv4.
const MaxDatagramSize = 65507

// Conn is a datagram endpoint with a single pair of nonce counters, shared
// by every peer it talks to.
type Conn struct {
	pc     net.PacketConn
	layer  *record.Layer
	keys   *keys.KeySet
	remote net.Addr
	closed atomic.Bool
}

// ReadResult carries the outcome of ReadAsync.
type ReadResult struct {
	Payload []byte
	Addr    net.Addr
	Err     error
}

// NewConn wraps pc. remote may be nil, in which case only WriteTo can send.
func NewConn(pc net.PacketConn, ks *keys.KeySet, remote net.Addr) (*Conn, error) {
	layer, err := record.NewLayer(ks)
	if err != nil {
		return nil, err
	}
	return &Conn{pc: pc, layer: layer, keys: ks.Clone(), remote: remote}, nil
}

// Listen binds addr and keys the socket with ks.
func Listen(addr string, ks *keys.KeySet) (*Conn, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, oops.Errorf("failed to listen on %s: %w", addr, err)
	}
	c, err := NewConn(pc, ks, nil)
	if err != nil {
		pc.Close()
		return nil, err
	}
	log.WithFields(logger.Fields{
		"at":      "udp.Listen",
		"address": pc.LocalAddr().String(),
	}).Debug("datagram_listener_started")
	return c, nil
}

// Dial binds an ephemeral local port and fixes the default peer for Write.
func Dial(addr string, ks *keys.KeySet) (*Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, oops.Wrapf(transport.ErrConnect, "%s: %v", addr, err)
	}
	local := &net.UDPAddr{}
	if raddr.IP.IsLoopback() {
		local.IP = raddr.IP
	}
	pc, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, oops.Wrapf(transport.ErrConnect, "%s: %v", addr, err)
	}
	c, err := NewConn(pc, ks, raddr)
	if err != nil {
		pc.Close()
		return nil, err
	}
	return c, nil
}

// WriteTo sends p as one record to addr.
func (c *Conn) WriteTo(p []byte, addr net.Addr) error {
	if c.closed.Load() {
		return transport.ErrClosed
	}
	if size := c.layer.SealedSize(len(p)); size > MaxDatagramSize {
		return oops.Wrapf(transport.ErrRecordTooLarge, "record of %d bytes exceeds datagram limit", size)
	}
	rec, err := c.layer.Seal(p)
	if err != nil {
		return err
	}
	if _, err := c.pc.WriteTo(rec, addr); err != nil {
		return oops.Errorf("failed to send datagram: %w", err)
	}
	return nil
}

// Write sends p to the peer given to Dial.
func (c *Conn) Write(p []byte) error {
	if c.remote == nil {
		return oops.Errorf("no default peer; use WriteTo")
	}
	return c.WriteTo(p, c.remote)
}

// ReadFrom receives one datagram. Under ReturnEmpty a datagram that fails
// authentication yields a nil payload, the sender's address and a nil error.
func (c *Conn) ReadFrom(h transport.HandlingType) ([]byte, net.Addr, error) {
	if err := h.CheckRead(); err != nil {
		return nil, nil, err
	}
	if c.closed.Load() {
		return nil, nil, transport.ErrClosed
	}
	buf := make([]byte, MaxDatagramSize)
	n, addr, err := c.pc.ReadFrom(buf)
	if err != nil {
		if c.closed.Load() {
			return nil, nil, oops.Wrapf(transport.ErrClosed, "%v", err)
		}
		return nil, nil, oops.Errorf("failed to receive datagram: %w", err)
	}
	payload, err := c.layer.Open(buf[:n])
	if err != nil {
		if h.Outcome(err) == transport.Empty {
			log.WithFields(logger.Fields{
				"at":     "udp.Conn.ReadFrom",
				"remote": addr.String(),
			}).WithError(err).Debug("datagram_rejected_returning_empty")
			return nil, addr, nil
		}
		return nil, addr, err
	}
	return payload, addr, nil
}

func (c *Conn) Read(h transport.HandlingType) ([]byte, error) {
	p, _, err := c.ReadFrom(h)
	return p, err
}

func (c *Conn) ReadAsync(h transport.HandlingType) <-chan ReadResult {
	ch := make(chan ReadResult, 1)
	go func() {
		p, addr, err := c.ReadFrom(h)
		ch <- ReadResult{Payload: p, Addr: addr, Err: err}
	}()
	return ch
}

func (c *Conn) WriteAsync(p []byte, addr net.Addr) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- c.WriteTo(p, addr) }()
	return ch
}

func (c *Conn) CanUse(state transport.StreamState) bool {
	return !c.closed.Load()
}

func (c *Conn) KeySet() *keys.KeySet { return c.keys.Clone() }
func (c *Conn) SendNonce() uint32    { return c.layer.SendNonce() }
func (c *Conn) RecvNonce() uint32    { return c.layer.RecvNonce() }
func (c *Conn) LocalAddr() net.Addr  { return c.pc.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.pc.Close()
}
