package algorithm

import (
	"fmt"

	"github.com/samber/oops"
)

// ticketNonceSize is the serialized width of a ticket's issuance counter.
const ticketNonceSize = 4

// Set is the negotiated triple of algorithms. The zero value is NoneSet.
type Set struct {
	Asymmetric AsymmetricType
	Symmetric  SymmetricType
	Hash       HashType
}

// NoneSet disables all cryptography; records carry only a length prefix.
var NoneSet = Set{}

// DefaultSet is what the CLI and config layer fall back to.
var DefaultSet = Set{Asymmetric: RSA, Symmetric: AES, Hash: SHA256}

// New builds a Set and validates it.
func New(asym AsymmetricType, sym SymmetricType, hash HashType) (Set, error) {
	s := Set{Asymmetric: asym, Symmetric: sym, Hash: hash}
	if err := s.Validate(); err != nil {
		return Set{}, err
	}
	return s, nil
}

// Parse builds a Set from algorithm names.
func Parse(asym, sym, hash string) (Set, error) {
	a, err := ParseAsymmetric(asym)
	if err != nil {
		return Set{}, err
	}
	s, err := ParseSymmetric(sym)
	if err != nil {
		return Set{}, err
	}
	h, err := ParseHash(hash)
	if err != nil {
		return Set{}, err
	}
	return New(a, s, h)
}

// Validate rejects unknown enum values and the mixed case where exactly one
// of the asymmetric and symmetric algorithms is none.
func (s Set) Validate() error {
	if !s.Asymmetric.Valid() || !s.Symmetric.Valid() || !s.Hash.Valid() {
		return oops.Wrapf(ErrUnknownAlgorithm, "set %s", s)
	}
	if (s.Asymmetric == AsymmetricNone) != (s.Symmetric == SymmetricNone) {
		return oops.Wrapf(ErrInvalidCombination, "set %s", s)
	}
	return nil
}

// Secure reports whether records are encrypted.
func (s Set) Secure() bool {
	return s.Symmetric != SymmetricNone
}

// HasMAC reports whether records carry an HMAC trailer.
func (s Set) HasMAC() bool {
	return s.Secure() && s.Hash != HashNone
}

func (s Set) SymmetricKeySize() int { return s.Symmetric.KeySize() }
func (s Set) BlockSize() int        { return s.Symmetric.BlockSize() }
func (s Set) HMACKeySize() int      { return s.Hash.KeySize() }
func (s Set) MACSize() int          { return s.Hash.Size() }

// SessionKeySize is the length of symmetricKey || hmacKey, the plaintext
// of a fresh handshake's first packet.
func (s Set) SessionKeySize() int {
	return s.SymmetricKeySize() + s.HMACKeySize()
}

// TicketPlaintextSize is the serialized ticket: nonce, both keys and the IV.
func (s Set) TicketPlaintextSize() int {
	return ticketNonceSize + s.SymmetricKeySize() + s.HMACKeySize() + s.BlockSize()
}

// TicketPacketSize is the encrypted ticket rounded up to whole cipher blocks.
func (s Set) TicketPacketSize() int {
	bs := s.BlockSize()
	if bs == 0 {
		return 0
	}
	n := s.TicketPlaintextSize()
	return (n + bs - 1) / bs * bs
}

// MinimumConnectPacketSize is the fixed size of the first packet a client
// sends, so a resumption attempt is indistinguishable by length from a
// fresh handshake.
func (s Set) MinimumConnectPacketSize() int {
	if !s.Secure() {
		return 0
	}
	return max(s.BlockSize()+s.TicketPacketSize(), s.Asymmetric.BlockSize())
}

func (s Set) String() string {
	return fmt.Sprintf("%s/%s/%s", s.Asymmetric, s.Symmetric, s.Hash)
}
