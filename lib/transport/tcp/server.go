package tcp

import (
	"bufio"
	"context"
	"crypto/rsa"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"golang.org/x/time/rate"

	"github.com/openus/go-secproto/lib/crypto"
	"github.com/openus/go-secproto/lib/keys"
	"github.com/openus/go-secproto/lib/metrics"
	"github.com/openus/go-secproto/lib/record"
	"github.com/openus/go-secproto/lib/ticket"
	"github.com/openus/go-secproto/lib/transport"
)

// Handler serves one established connection. The server closes the
// connection when Handler returns.
type Handler func(*Conn)

// AcceptResult carries the outcome of AcceptAsync.
type AcceptResult struct {
	Conn *Conn
	Err  error
}

// Server accepts sessions. The ticket store and the live connection list are
// shared by the accept path, closing sessions and the ticket sweeper.
type Server struct {
	config    ServerConfig
	asym      *crypto.Asymmetric
	sealer    *ticket.Sealer
	tickets   *ticket.Store
	blacklist *transport.Blacklist
	limiter   *rate.Limiter
	metrics   *metrics.Collector

	mu       sync.Mutex
	listener net.Listener
	running  bool
	stopped  bool
	clients  map[*Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(config *ServerConfig) (*Server, error) {
	if config == nil {
		config = DefaultServerConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var priv *rsa.PrivateKey
	if config.PrivateKey != nil {
		priv = config.PrivateKey.Key
	}
	asym, err := crypto.NewAsymmetric(config.Set.Asymmetric, nil, priv)
	if err != nil {
		return nil, err
	}

	var sealer *ticket.Sealer
	if config.Set.Secure() {
		if sealer, err = ticket.NewSealer(config.Set); err != nil {
			return nil, err
		}
	}

	var limiter *rate.Limiter
	if config.AcceptRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.AcceptRate), max(config.AcceptBurst, 1))
	}

	log.WithFields(logger.Fields{
		"at":               "tcp.NewServer",
		"address":          config.Address,
		"set":              config.Set.String(),
		"enableTicketTime": config.EnableTicketTime.String(),
		"blacklist":        len(config.Blacklist),
	}).Info("creating_server")

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:    *config,
		asym:      asym,
		sealer:    sealer,
		tickets:   ticket.NewStore(config.EnableTicketTime, config.Clock),
		blacklist: transport.NewBlacklist(config.Blacklist...),
		limiter:   limiter,
		metrics:   config.Metrics,
		clients:   make(map[*Conn]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start binds the listener and, if configured, starts the ticket sweeper.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return transport.ErrAlreadyListening
	}
	if s.stopped {
		return oops.Wrapf(transport.ErrClosed, "server was stopped")
	}

	l, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return oops.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	if s.config.TicketCleanerInterval > 0 {
		if err := s.tickets.StartSweeper(s.config.TicketCleanerInterval); err != nil {
			l.Close()
			return err
		}
	}
	s.listener = l
	s.running = true

	log.WithFields(logger.Fields{
		"at":      "tcp.Server.Start",
		"address": l.Addr().String(),
	}).Info("server_started")
	return nil
}

// Stop closes the listener and every live connection, stops the sweeper and
// drops all tickets. A stopped server cannot be restarted.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.stopped = true
		s.mu.Unlock()
		s.cancel()
		s.tickets.Close()
		return nil
	}
	s.running = false
	s.stopped = true
	l := s.listener
	live := make([]*Conn, 0, len(s.clients))
	for c := range s.clients {
		live = append(live, c)
	}
	s.mu.Unlock()

	s.cancel()
	if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.WithError(err).Warn("error_closing_listener")
	}
	for _, c := range live {
		c.Close()
	}
	s.wg.Wait()
	s.tickets.Close()
	s.metrics.SetActiveTickets(0)

	log.WithField("at", "tcp.Server.Stop").Info("server_stopped")
	return nil
}

func (s *Server) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr is the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Clients returns a snapshot of the live connections.
func (s *Server) Clients() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conn, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *Server) TicketCount() int { return s.tickets.Len() }

func (s *Server) Blacklist() *transport.Blacklist { return s.blacklist }

// Accept waits for the next connection that passes the blacklist, the
// accept rate limit and the handshake. What happens to a candidate that
// fails depends on h. Listener errors are always returned.
func (s *Server) Accept(h transport.HandlingType) (*Conn, error) {
	if err := h.CheckAccept(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	l := s.listener
	running := s.running
	s.mu.Unlock()
	if !running {
		return nil, transport.ErrNotListening
	}

	for {
		raw, err := l.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil, oops.Wrapf(transport.ErrClosed, "listener: %v", err)
			}
			return nil, oops.Errorf("accept failed: %w", err)
		}

		conn, err := s.admit(raw)
		if err == nil {
			return conn, nil
		}
		switch h.Outcome(err) {
		case transport.Retry:
			continue
		case transport.Empty:
			return nil, nil
		default:
			return nil, err
		}
	}
}

func (s *Server) AcceptAsync(h transport.HandlingType) <-chan AcceptResult {
	ch := make(chan AcceptResult, 1)
	go func() {
		c, err := s.Accept(h)
		ch <- AcceptResult{Conn: c, Err: err}
	}()
	return ch
}

// Serve accepts connections until ctx is cancelled or the server is
// stopped. Blacklist and rate checks run on the accept loop; the handshake
// and handler run on a goroutine per connection, so a slow peer does not
// hold up the next one. Candidates that fail admission are dropped.
// Cancelling ctx stops the server.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.mu.Lock()
	l := s.listener
	running := s.running
	s.mu.Unlock()
	if !running {
		return nil
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.ctx.Done():
		}
	}()

	var backoff time.Duration
	for {
		raw, err := l.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			log.WithFields(logger.Fields{
				"at":      "tcp.Server.Serve",
				"backoff": backoff.String(),
			}).WithError(err).Error("failed_to_accept_connection")
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if err := s.screen(raw); err != nil {
			continue
		}

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			raw.Close()
			return nil
		}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.handleConnection(raw, handler)
	}
}

// handleConnection completes the handshake for raw and runs handler on the
// resulting session. Stopping the server aborts a handshake in progress.
func (s *Server) handleConnection(raw net.Conn, handler Handler) {
	defer s.wg.Done()
	abort := context.AfterFunc(s.ctx, func() { raw.Close() })
	c, err := s.establish(raw)
	if !abort() || err != nil {
		if c != nil {
			c.Close()
		}
		return
	}
	defer c.Close()
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logger.Fields{
				"at":     "tcp.Server.handleConnection",
				"remote": c.RemoteAddr().String(),
				"panic":  r,
			}).Error("panic_in_handler")
		}
	}()
	handler(c)
}

// admit applies the blacklist and rate limit, then runs the handshake.
// raw is closed on any failure.
func (s *Server) admit(raw net.Conn) (*Conn, error) {
	if err := s.screen(raw); err != nil {
		return nil, err
	}
	return s.establish(raw)
}

// screen applies the blacklist and the accept rate limit, closing raw when
// it is refused.
func (s *Server) screen(raw net.Conn) error {
	remote := raw.RemoteAddr()
	if s.blacklist.Contains(remote) {
		log.WithFields(logger.Fields{
			"at":     "tcp.Server.screen",
			"remote": remote.String(),
		}).Warn("blacklisted_connection_rejected")
		raw.Close()
		s.metrics.Rejected(metrics.ReasonBlacklist)
		return oops.Wrapf(transport.ErrBlacklisted, "%s", remote)
	}
	if s.limiter != nil && !s.limiter.Allow() {
		log.WithFields(logger.Fields{
			"at":     "tcp.Server.screen",
			"remote": remote.String(),
		}).Warn("accept_rate_exceeded")
		raw.Close()
		s.metrics.Rejected(metrics.ReasonRateLimit)
		return oops.Wrapf(transport.ErrRateLimited, "%s", remote)
	}
	return nil
}

// establish runs the handshake on raw and registers the session.
func (s *Server) establish(raw net.Conn) (*Conn, error) {
	remote := raw.RemoteAddr()
	c, err := s.handshake(raw)
	if err != nil {
		log.WithFields(logger.Fields{
			"at":     "tcp.Server.establish",
			"remote": remote.String(),
		}).WithError(err).Warn("handshake_rejected")
		raw.Close()
		if errors.Is(err, transport.ErrInvalidTicket) || errors.Is(err, transport.ErrTicketExpired) {
			s.metrics.Rejected(metrics.ReasonTicket)
		} else {
			s.metrics.Rejected(metrics.ReasonHandshake)
		}
		return nil, err
	}

	c.onClose = s.unregister
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		c.Close()
		return nil, oops.Wrapf(transport.ErrClosed, "server stopped during handshake")
	}
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.metrics.SetLiveConnections(n)

	log.WithFields(logger.Fields{
		"at":      "tcp.Server.establish",
		"remote":  remote.String(),
		"clients": n,
	}).Debug("client_accepted")
	return c, nil
}

func (s *Server) unregister(c *Conn) {
	s.mu.Lock()
	delete(s.clients, c)
	n := len(s.clients)
	s.mu.Unlock()
	s.metrics.SetLiveConnections(n)
}

// handshake reads the fixed-size first packet and establishes the session
// from it, either as fresh keys under the server's RSA key or as a ticket.
func (s *Server) handshake(raw net.Conn) (*Conn, error) {
	set := s.config.Set
	r := bufio.NewReader(raw)
	if !set.Secure() {
		ks, err := keys.NewKeySet(set, nil, nil)
		if err != nil {
			return nil, err
		}
		layer, err := record.NewLayer(ks)
		if err != nil {
			return nil, err
		}
		return newConn(raw, r, layer, ks), nil
	}

	start := time.Now()
	if s.config.HandshakeTimeout > 0 {
		raw.SetDeadline(start.Add(s.config.HandshakeTimeout))
		defer raw.SetDeadline(time.Time{})
	}

	first := make([]byte, set.MinimumConnectPacketSize())
	if _, err := io.ReadFull(r, first); err != nil {
		return nil, oops.Wrapf(transport.ErrHandshakeFailed, "reading first packet: %v", err)
	}

	ks, confirmation, resumed, err := s.recoverKeys(first)
	if err != nil {
		if !resumed {
			s.metrics.HandshakeFailed()
		}
		return nil, err
	}

	layer, err := record.NewLayer(ks)
	if err != nil {
		return nil, err
	}
	c := newConn(raw, r, layer, ks)
	if err := c.Write(confirmation); err != nil {
		return nil, oops.Wrapf(transport.ErrHandshakeFailed, "sending confirmation: %v", err)
	}
	if err := s.issueTicket(c); err != nil {
		return nil, err
	}
	if err := c.Flush(); err != nil {
		return nil, oops.Wrapf(transport.ErrHandshakeFailed, "flushing handshake: %v", err)
	}

	if resumed {
		s.metrics.Resumed(metrics.ResumeOK)
	} else {
		s.metrics.HandshakeSucceeded(time.Since(start))
	}
	return c, nil
}

// recoverKeys tries the asymmetric interpretation of first, then the ticket
// interpretation. resumed reports which path produced the result or, on
// error, whether a well-formed ticket was presented.
func (s *Server) recoverKeys(first []byte) (ks *keys.KeySet, confirmation []byte, resumed bool, err error) {
	set := s.config.Set
	if pt, decErr := s.asym.Decrypt(first[:set.Asymmetric.BlockSize()]); decErr == nil {
		if ks, err := keys.ParseKeySet(set, pt); err == nil {
			return ks, ks.Confirmation(), false, nil
		}
	}

	presented, err := s.sealer.Open(first)
	if err != nil {
		return nil, nil, false, oops.Wrapf(transport.ErrHandshakeFailed, "first packet is neither key transport nor ticket: %v", err)
	}
	stored, err := s.tickets.Redeem(presented)
	s.metrics.SetActiveTickets(s.tickets.Len())
	if err != nil {
		if errors.Is(err, transport.ErrTicketExpired) {
			s.metrics.Resumed(metrics.ResumeExpired)
		} else {
			s.metrics.Resumed(metrics.ResumeInvalid)
		}
		return nil, nil, true, err
	}
	ks, err = stored.KeySet(set)
	if err != nil {
		return nil, nil, true, err
	}
	log.WithFields(logger.Fields{
		"at":    "tcp.Server.recoverKeys",
		"nonce": stored.Nonce,
	}).Debug("ticket_redeemed")
	return ks, crypto.Hash(set.Hash, first), true, nil
}

// issueTicket queues a fresh ticket for c's keys behind the confirmation.
func (s *Server) issueTicket(c *Conn) error {
	t, err := s.tickets.Issue(c.keys)
	if err != nil {
		return err
	}
	blob, err := s.sealer.Seal(t)
	if err != nil {
		return err
	}
	s.metrics.SetActiveTickets(s.tickets.Len())
	if err := c.Write(blob); err != nil {
		return oops.Wrapf(transport.ErrHandshakeFailed, "sending ticket: %v", err)
	}
	return nil
}
