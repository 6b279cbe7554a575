package tcp

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/openus/go-secproto/lib/algorithm"
	"github.com/openus/go-secproto/lib/keys"
	"github.com/openus/go-secproto/lib/record"
	"github.com/openus/go-secproto/lib/ticket"
	"github.com/openus/go-secproto/lib/transport"
)

// Conn is one established session. One goroutine may read while another
// writes.
type Conn struct {
	conn  net.Conn
	layer *record.Layer
	keys  *keys.KeySet

	r *bufio.Reader

	wmu sync.Mutex
	w   *bufio.Writer

	tmu    sync.Mutex
	ticket *ticket.ClientTicket

	readable  atomic.Bool
	writable  atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	onClose   func(*Conn)
}

func newConn(raw net.Conn, r *bufio.Reader, layer *record.Layer, ks *keys.KeySet) *Conn {
	if r == nil {
		r = bufio.NewReader(raw)
	}
	c := &Conn{
		conn:  raw,
		layer: layer,
		keys:  ks,
		r:     r,
		w:     bufio.NewWriter(raw),
	}
	c.readable.Store(true)
	c.writable.Store(true)
	return c
}

// ReadResult carries the outcome of ReadAsync.
type ReadResult struct {
	Payload []byte
	Err     error
}

// Read returns the payload of the next record. Under ReturnEmpty a record
// that fails authentication yields (nil, nil). IgnoreLoop is not a valid
// policy for reads.
func (c *Conn) Read(h transport.HandlingType) ([]byte, error) {
	if err := h.CheckRead(); err != nil {
		return nil, err
	}
	if c.closed.Load() {
		return nil, transport.ErrClosed
	}
	payload, err := c.layer.Read(c.r)
	if err == nil {
		return payload, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		c.readable.Store(false)
	}
	if h.Outcome(err) == transport.Empty {
		log.WithFields(logger.Fields{
			"at":     "tcp.Conn.Read",
			"remote": c.RemoteAddr().String(),
		}).WithError(err).Debug("record_rejected_returning_empty")
		return nil, nil
	}
	return nil, err
}

// Write seals p into the send buffer. Nothing reaches the peer until Flush.
func (c *Conn) Write(p []byte) error {
	if c.closed.Load() {
		return transport.ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.layer.Write(c.w, p); err != nil {
		c.writable.Store(false)
		return err
	}
	return nil
}

func (c *Conn) Flush() error {
	if c.closed.Load() {
		return transport.ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.w.Flush(); err != nil {
		c.writable.Store(false)
		return oops.Errorf("failed to flush: %w", err)
	}
	return nil
}

// Send writes p and flushes it.
func (c *Conn) Send(p []byte) error {
	if err := c.Write(p); err != nil {
		return err
	}
	return c.Flush()
}

func (c *Conn) ReadAsync(h transport.HandlingType) <-chan ReadResult {
	ch := make(chan ReadResult, 1)
	go func() {
		p, err := c.Read(h)
		ch <- ReadResult{Payload: p, Err: err}
	}()
	return ch
}

func (c *Conn) WriteAsync(p []byte) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- c.Write(p) }()
	return ch
}

func (c *Conn) FlushAsync() <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- c.Flush() }()
	return ch
}

// CanUse reports whether every capability in state is still available.
func (c *Conn) CanUse(state transport.StreamState) bool {
	if c.closed.Load() {
		return false
	}
	if state&transport.CanRead != 0 && !c.readable.Load() {
		return false
	}
	if state&transport.CanWrite != 0 && !c.writable.Load() {
		return false
	}
	return true
}

// KeySet returns a copy of the session keys, suitable for keying a
// datagram transport to the same peer.
func (c *Conn) KeySet() *keys.KeySet { return c.keys.Clone() }

func (c *Conn) AlgorithmSet() algorithm.Set { return c.keys.Set() }

// Ticket is the most recent resumption ticket received from the server.
// It is nil on server-side connections and on unsecured sessions.
func (c *Conn) Ticket() *ticket.ClientTicket {
	c.tmu.Lock()
	defer c.tmu.Unlock()
	return c.ticket
}

func (c *Conn) setTicket(t *ticket.ClientTicket) {
	c.tmu.Lock()
	c.ticket = t
	c.tmu.Unlock()
}

func (c *Conn) SendNonce() uint32 { return c.layer.SendNonce() }
func (c *Conn) RecvNonce() uint32 { return c.layer.RecvNonce() }

func (c *Conn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close tears down the socket. It is the only way to abort a blocked Read.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.readable.Store(false)
		c.writable.Store(false)
		err = c.conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
	return err
}
