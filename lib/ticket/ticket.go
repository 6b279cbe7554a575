package ticket

import (
	"time"

	"github.com/samber/oops"
	"golang.org/x/crypto/cryptobyte"

	"github.com/openus/go-secproto/lib/algorithm"
	"github.com/openus/go-secproto/lib/keys"
)

// Ticket is the server-side record of a resumable session. IssuedAt is kept
// by the store and is not part of the serialized form.
type Ticket struct {
	Nonce        uint32
	SymmetricKey []byte
	HmacKey      []byte
	IV           []byte
	IssuedAt     time.Time
}

// Marshal serializes nonce || symmetricKey || hmacKey || iv. The result is
// also the ticket's identity in the store.
func (t *Ticket) Marshal() []byte {
	var b cryptobyte.Builder
	b.AddUint32(t.Nonce)
	b.AddBytes(t.SymmetricKey)
	b.AddBytes(t.HmacKey)
	b.AddBytes(t.IV)
	return b.BytesOrPanic()
}

// Unmarshal reads a ticket laid out for set. Bytes past the IV are cipher
// padding and are ignored.
func Unmarshal(set algorithm.Set, data []byte) (*Ticket, error) {
	s := cryptobyte.String(data)
	t := &Ticket{}
	if !s.ReadUint32(&t.Nonce) ||
		!s.ReadBytes(&t.SymmetricKey, set.SymmetricKeySize()) ||
		!s.ReadBytes(&t.HmacKey, set.HMACKeySize()) ||
		!s.ReadBytes(&t.IV, set.BlockSize()) {
		return nil, oops.Wrapf(ErrMalformedTicket, "%d bytes for %s", len(data), set)
	}
	t.SymmetricKey = append([]byte(nil), t.SymmetricKey...)
	t.HmacKey = append([]byte(nil), t.HmacKey...)
	t.IV = append([]byte(nil), t.IV...)
	return t, nil
}

// KeySet rebuilds the session keys the ticket resumes.
func (t *Ticket) KeySet(set algorithm.Set) (*keys.KeySet, error) {
	return keys.NewKeySet(set, t.SymmetricKey, t.HmacKey)
}

func (t *Ticket) id() string {
	return string(t.Marshal())
}

// ClientTicket is what a client keeps between connections: the opaque blob
// to present and the keys of the session it resumes. It lives in memory only.
type ClientTicket struct {
	Blob []byte
	Keys *keys.KeySet
}
