package keys

import (
	"github.com/samber/oops"

	"github.com/openus/go-secproto/lib/algorithm"
	"github.com/openus/go-secproto/lib/crypto"
)

// KeySet is the symmetric and HMAC key material of one session. Accessors
// return copies; a KeySet is never shared between sessions.
type KeySet struct {
	set       algorithm.Set
	symmetric []byte
	hmac      []byte
}

// GenerateKeySet draws fresh random keys sized for set.
func GenerateKeySet(set algorithm.Set) (*KeySet, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	sym, err := crypto.RandomBytes(set.SymmetricKeySize())
	if err != nil {
		return nil, err
	}
	mac, err := crypto.RandomBytes(set.HMACKeySize())
	if err != nil {
		return nil, err
	}
	return &KeySet{set: set, symmetric: sym, hmac: mac}, nil
}

// NewKeySet copies existing key material after checking each length
// against set.
func NewKeySet(set algorithm.Set, symmetric, hmac []byte) (*KeySet, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	if len(symmetric) != set.SymmetricKeySize() {
		return nil, oops.Wrapf(ErrInvalidKeySize, "symmetric key %d bytes, want %d", len(symmetric), set.SymmetricKeySize())
	}
	if len(hmac) != set.HMACKeySize() {
		return nil, oops.Wrapf(ErrInvalidKeySize, "hmac key %d bytes, want %d", len(hmac), set.HMACKeySize())
	}
	return &KeySet{
		set:       set,
		symmetric: append([]byte(nil), symmetric...),
		hmac:      append([]byte(nil), hmac...),
	}, nil
}

// ParseKeySet splits symmetricKey || hmacKey, the handshake plaintext.
func ParseKeySet(set algorithm.Set, concat []byte) (*KeySet, error) {
	if len(concat) != set.SessionKeySize() {
		return nil, oops.Wrapf(ErrInvalidKeySize, "session keys %d bytes, want %d", len(concat), set.SessionKeySize())
	}
	n := set.SymmetricKeySize()
	return NewKeySet(set, concat[:n], concat[n:])
}

func (k *KeySet) Set() algorithm.Set { return k.set }

func (k *KeySet) SymmetricKey() []byte { return append([]byte(nil), k.symmetric...) }

func (k *KeySet) HMACKey() []byte { return append([]byte(nil), k.hmac...) }

// Concat returns symmetricKey || hmacKey.
func (k *KeySet) Concat() []byte {
	out := make([]byte, 0, len(k.symmetric)+len(k.hmac))
	out = append(out, k.symmetric...)
	return append(out, k.hmac...)
}

// Confirmation is hash(symmetricKey || hmacKey), the server's proof that it
// recovered the keys of a fresh handshake.
func (k *KeySet) Confirmation() []byte {
	return crypto.Hash(k.set.Hash, k.Concat())
}

func (k *KeySet) Clone() *KeySet {
	return &KeySet{set: k.set, symmetric: k.SymmetricKey(), hmac: k.HMACKey()}
}

// Equal compares key material in constant time.
func (k *KeySet) Equal(o *KeySet) bool {
	if k == nil || o == nil {
		return k == o
	}
	return k.set == o.set && crypto.EqualMAC(k.Concat(), o.Concat())
}
