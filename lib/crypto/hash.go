package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/sha3"

	"github.com/openus/go-secproto/lib/algorithm"
)

func hashFunc(alg algorithm.HashType) func() hash.Hash {
	switch alg {
	case algorithm.SHA1:
		return sha1.New
	case algorithm.SHA256:
		return sha256.New
	case algorithm.SHA384:
		return sha512.New384
	case algorithm.SHA512:
		return sha512.New
	case algorithm.SHA3_256:
		return sha3.New256
	case algorithm.SHA3_384:
		return sha3.New384
	case algorithm.SHA3_512:
		return sha3.New512
	default:
		return nil
	}
}

// Hash digests data. HashNone returns a copy of data unchanged.
func Hash(alg algorithm.HashType, data []byte) []byte {
	fn := hashFunc(alg)
	if fn == nil {
		return append([]byte(nil), data...)
	}
	h := fn()
	h.Write(data)
	return h.Sum(nil)
}

// HMAC authenticates the concatenation of parts. HashNone yields nil.
func HMAC(alg algorithm.HashType, key []byte, parts ...[]byte) []byte {
	fn := hashFunc(alg)
	if fn == nil {
		return nil
	}
	mac := hmac.New(fn, key)
	for _, p := range parts {
		mac.Write(p)
	}
	return mac.Sum(nil)
}

// EqualMAC compares in constant time.
func EqualMAC(a, b []byte) bool {
	return hmac.Equal(a, b)
}
