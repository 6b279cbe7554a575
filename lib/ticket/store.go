package ticket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-i2p/logger"

	"github.com/openus/go-secproto/lib/crypto"
	"github.com/openus/go-secproto/lib/keys"
)

var log = logger.GetGoI2PLogger()

// DefaultLifetime is how long an issued ticket stays redeemable.
const DefaultLifetime = 5 * time.Minute

// Store holds the tickets a server has issued and not yet seen redeemed.
// Issue, Redeem, Sweep and Clear may be called from any goroutine.
type Store struct {
	mu       sync.Mutex
	tickets  map[string]*Ticket
	lifetime time.Duration
	clock    clock.Clock
	seq      atomic.Uint32

	sweepOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewStore creates a store whose tickets expire after lifetime. A zero
// lifetime disables resumption: tickets are still issued but never stored.
// A nil clock uses wall time.
func NewStore(lifetime time.Duration, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		tickets:  make(map[string]*Ticket),
		lifetime: lifetime,
		clock:    clk,
		done:     make(chan struct{}),
	}
}

func (s *Store) Lifetime() time.Duration { return s.lifetime }

// Issue creates a ticket for ks with the next nonce and a fresh IV.
func (s *Store) Issue(ks *keys.KeySet) (*Ticket, error) {
	iv, err := crypto.RandomBytes(ks.Set().BlockSize())
	if err != nil {
		return nil, err
	}
	t := &Ticket{
		Nonce:        s.seq.Add(1),
		SymmetricKey: ks.SymmetricKey(),
		HmacKey:      ks.HMACKey(),
		IV:           iv,
		IssuedAt:     s.clock.Now(),
	}
	if s.lifetime <= 0 {
		return t, nil
	}

	s.mu.Lock()
	s.tickets[t.id()] = t
	n := len(s.tickets)
	s.mu.Unlock()

	log.WithFields(logger.Fields{
		"at":     "ticket.Store.Issue",
		"nonce":  t.Nonce,
		"active": n,
	}).Debug("ticket_issued")
	return t, nil
}

// Redeem consumes the stored ticket matching presented byte for byte. The
// ticket is removed before the expiry check, so an expired ticket is gone
// too.
func (s *Store) Redeem(presented *Ticket) (*Ticket, error) {
	id := presented.id()

	s.mu.Lock()
	t, ok := s.tickets[id]
	delete(s.tickets, id)
	s.mu.Unlock()

	if !ok {
		log.WithFields(logger.Fields{
			"at":    "ticket.Store.Redeem",
			"nonce": presented.Nonce,
		}).Debug("ticket_not_found")
		return nil, ErrInvalidTicket
	}
	if age := s.clock.Since(t.IssuedAt); age >= s.lifetime {
		log.WithFields(logger.Fields{
			"at":    "ticket.Store.Redeem",
			"nonce": t.Nonce,
			"age":   age.String(),
		}).Debug("ticket_expired")
		return nil, ErrTicketExpired
	}
	return t, nil
}

// Sweep drops every ticket older than the lifetime and returns how many
// were removed.
func (s *Store) Sweep() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, t := range s.tickets {
		if now.Sub(t.IssuedAt) >= s.lifetime {
			delete(s.tickets, id)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.tickets = make(map[string]*Ticket)
	s.mu.Unlock()
}

// StartSweeper runs Sweep every interval until Close. Only the first call
// starts a goroutine.
func (s *Store) StartSweeper(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	s.sweepOnce.Do(func() {
		ticker := s.clock.Ticker(interval)
		s.wg.Add(1)
		go s.sweepLoop(ticker)
		log.WithFields(logger.Fields{
			"at":       "ticket.Store.StartSweeper",
			"interval": interval.String(),
		}).Info("ticket_sweeper_started")
	})
	return nil
}

func (s *Store) sweepLoop(ticker *clock.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.WithFields(logger.Fields{
					"at":      "ticket.Store.sweepLoop",
					"removed": n,
				}).Debug("tickets_swept")
			}
		}
	}
}

// Close stops the sweeper, if running, and drops all tickets.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	s.Clear()
}
