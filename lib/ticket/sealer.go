package ticket

import (
	"bytes"

	"github.com/samber/oops"

	"github.com/openus/go-secproto/lib/algorithm"
	"github.com/openus/go-secproto/lib/crypto"
)

// Sealer encrypts tickets under a key generated once per server. The key is
// read-only after construction and safe for concurrent use.
type Sealer struct {
	set    algorithm.Set
	cipher crypto.Symmetric
}

func NewSealer(set algorithm.Set) (*Sealer, error) {
	if !set.Secure() {
		return nil, ErrInsecureSet
	}
	key, err := crypto.RandomBytes(set.SymmetricKeySize())
	if err != nil {
		return nil, err
	}
	c, err := crypto.NewSymmetric(set.Symmetric, key)
	if err != nil {
		return nil, err
	}
	return &Sealer{set: set, cipher: c}, nil
}

// BlobSize is the length of a sealed ticket: iv plus encrypted ticket.
func (s *Sealer) BlobSize() int {
	return s.set.BlockSize() + s.set.TicketPacketSize()
}

// Seal returns t.IV || CBC(ticketKey, t.IV, t.Marshal()).
func (s *Sealer) Seal(t *Ticket) ([]byte, error) {
	if len(t.IV) != s.set.BlockSize() {
		return nil, oops.Wrapf(ErrMalformedTicket, "iv length %d", len(t.IV))
	}
	ct, err := s.cipher.Encrypt(t.Marshal(), t.IV)
	if err != nil {
		return nil, err
	}
	return append(append([]byte(nil), t.IV...), ct...), nil
}

// Open decrypts the ticket at the start of packet. A packet that does not
// hold a ticket sealed by this server fails the embedded IV check and is
// ErrMalformedTicket; whether the ticket is still redeemable is the store's
// decision.
func (s *Sealer) Open(packet []byte) (*Ticket, error) {
	if len(packet) < s.BlobSize() {
		return nil, oops.Wrapf(ErrMalformedTicket, "packet of %d bytes, want %d", len(packet), s.BlobSize())
	}
	bs := s.set.BlockSize()
	iv := packet[:bs]
	pt, err := s.cipher.Decrypt(packet[bs:s.BlobSize()], iv)
	if err != nil {
		return nil, oops.Wrapf(ErrMalformedTicket, "%v", err)
	}
	t, err := Unmarshal(s.set, pt)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(t.IV, iv) {
		return nil, oops.Wrapf(ErrMalformedTicket, "embedded iv mismatch")
	}
	return t, nil
}
