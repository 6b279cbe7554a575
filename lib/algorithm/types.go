package algorithm

import (
	"strings"

	"github.com/samber/oops"
)

// AsymmetricType selects the key-transport algorithm used by a fresh handshake.
type AsymmetricType uint8

const (
	AsymmetricNone AsymmetricType = iota
	RSA                           // 2048-bit modulus
	RSA3072
	RSA4096
)

// SymmetricType selects the block cipher of the record layer. All ciphers run
// in CBC mode with zero padding.
type SymmetricType uint8

const (
	SymmetricNone SymmetricType = iota
	DES
	TripleDES
	AES // AES-256
)

// HashType selects the key-confirmation hash and the record MAC.
type HashType uint8

const (
	HashNone HashType = iota
	SHA1
	SHA256
	SHA384
	SHA512
	SHA3_256
	SHA3_384
	SHA3_512
)

// BlockSize is the size in bytes of one RSA ciphertext, which is also the
// modulus size.
func (a AsymmetricType) BlockSize() int {
	switch a {
	case RSA:
		return 256
	case RSA3072:
		return 384
	case RSA4096:
		return 512
	default:
		return 0
	}
}

// Bits is the RSA modulus length.
func (a AsymmetricType) Bits() int {
	return a.BlockSize() * 8
}

func (a AsymmetricType) Valid() bool {
	return a <= RSA4096
}

func (a AsymmetricType) String() string {
	switch a {
	case AsymmetricNone:
		return "none"
	case RSA:
		return "rsa"
	case RSA3072:
		return "rsa3072"
	case RSA4096:
		return "rsa4096"
	default:
		return "unknown"
	}
}

func (s SymmetricType) KeySize() int {
	switch s {
	case DES:
		return 8
	case TripleDES:
		return 24
	case AES:
		return 32
	default:
		return 0
	}
}

func (s SymmetricType) BlockSize() int {
	switch s {
	case DES, TripleDES:
		return 8
	case AES:
		return 16
	default:
		return 0
	}
}

func (s SymmetricType) Valid() bool {
	return s <= AES
}

func (s SymmetricType) String() string {
	switch s {
	case SymmetricNone:
		return "none"
	case DES:
		return "des"
	case TripleDES:
		return "3des"
	case AES:
		return "aes"
	default:
		return "unknown"
	}
}

// Size is the digest length.
func (h HashType) Size() int {
	switch h {
	case SHA1:
		return 20
	case SHA256, SHA3_256:
		return 32
	case SHA384, SHA3_384:
		return 48
	case SHA512, SHA3_512:
		return 64
	default:
		return 0
	}
}

// KeySize is the HMAC key length, equal to the hash's internal block size.
func (h HashType) KeySize() int {
	switch h {
	case SHA1, SHA256:
		return 64
	case SHA384, SHA512:
		return 128
	case SHA3_256:
		return 136
	case SHA3_384:
		return 104
	case SHA3_512:
		return 72
	default:
		return 0
	}
}

func (h HashType) Valid() bool {
	return h <= SHA3_512
}

func (h HashType) String() string {
	switch h {
	case HashNone:
		return "none"
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha256"
	case SHA384:
		return "sha384"
	case SHA512:
		return "sha512"
	case SHA3_256:
		return "sha3-256"
	case SHA3_384:
		return "sha3-384"
	case SHA3_512:
		return "sha3-512"
	default:
		return "unknown"
	}
}

func normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "_", "-")
	return n
}

// ParseAsymmetric accepts the names printed by String, case-insensitively.
// "rsa2048" is an alias for "rsa".
func ParseAsymmetric(name string) (AsymmetricType, error) {
	switch normalize(name) {
	case "", "none":
		return AsymmetricNone, nil
	case "rsa", "rsa2048", "rsa-2048":
		return RSA, nil
	case "rsa3072", "rsa-3072":
		return RSA3072, nil
	case "rsa4096", "rsa-4096":
		return RSA4096, nil
	}
	return AsymmetricNone, oops.Wrapf(ErrUnknownAlgorithm, "asymmetric %q", name)
}

func ParseSymmetric(name string) (SymmetricType, error) {
	switch normalize(name) {
	case "", "none":
		return SymmetricNone, nil
	case "des":
		return DES, nil
	case "3des", "tripledes", "des-ede3":
		return TripleDES, nil
	case "aes", "aes256", "aes-256":
		return AES, nil
	}
	return SymmetricNone, oops.Wrapf(ErrUnknownAlgorithm, "symmetric %q", name)
}

func ParseHash(name string) (HashType, error) {
	switch strings.ReplaceAll(normalize(name), "-", "") {
	case "", "none":
		return HashNone, nil
	case "sha1":
		return SHA1, nil
	case "sha256":
		return SHA256, nil
	case "sha384":
		return SHA384, nil
	case "sha512":
		return SHA512, nil
	case "sha3256":
		return SHA3_256, nil
	case "sha3384":
		return SHA3_384, nil
	case "sha3512":
		return SHA3_512, nil
	}
	return HashNone, oops.Wrapf(ErrUnknownAlgorithm, "hash %q", name)
}
