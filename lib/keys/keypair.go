package keys

import (
	"crypto/rsa"

	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/openus/go-secproto/lib/algorithm"
	"github.com/openus/go-secproto/lib/crypto"
)

// PublicKey is the half of a server key pair handed to clients out of band.
type PublicKey struct {
	Algorithm algorithm.AsymmetricType
	Key       *rsa.PublicKey
}

// PrivateKey stays with the server.
type PrivateKey struct {
	Algorithm algorithm.AsymmetricType
	Key       *rsa.PrivateKey
}

type KeyPair struct {
	Public  *PublicKey
	Private *PrivateKey
}

// GenerateKeyPair creates a fresh RSA key pair sized for alg.
func GenerateKeyPair(alg algorithm.AsymmetricType) (*KeyPair, error) {
	if alg == algorithm.AsymmetricNone {
		return nil, ErrAlgorithmNone
	}
	if !alg.Valid() {
		return nil, oops.Wrapf(algorithm.ErrUnknownAlgorithm, "asymmetric %d", alg)
	}
	log.WithFields(logger.Fields{
		"at":   "keys.GenerateKeyPair",
		"bits": alg.Bits(),
	}).Debug("generating_key_pair")

	k, err := rsa.GenerateKey(rand.Reader, alg.Bits())
	if err != nil {
		return nil, oops.Errorf("failed to generate %s key: %w", alg, err)
	}
	priv := &PrivateKey{Algorithm: alg, Key: k}
	return &KeyPair{Public: priv.Public(), Private: priv}, nil
}

func (p *PrivateKey) Public() *PublicKey {
	return &PublicKey{Algorithm: p.Algorithm, Key: &p.Key.PublicKey}
}

// Asymmetric returns a decrypting adapter. A nil receiver yields the
// AsymmetricNone adapter.
func (p *PrivateKey) Asymmetric() (*crypto.Asymmetric, error) {
	if p == nil {
		return crypto.NewAsymmetric(algorithm.AsymmetricNone, nil, nil)
	}
	return crypto.NewAsymmetric(p.Algorithm, nil, p.Key)
}

// Asymmetric returns an encrypting adapter. A nil receiver yields the
// AsymmetricNone adapter.
func (p *PublicKey) Asymmetric() (*crypto.Asymmetric, error) {
	if p == nil {
		return crypto.NewAsymmetric(algorithm.AsymmetricNone, nil, nil)
	}
	return crypto.NewAsymmetric(p.Algorithm, p.Key, nil)
}

func checkModulus(alg algorithm.AsymmetricType, pub *rsa.PublicKey) error {
	if pub.Size() != alg.BlockSize() {
		return oops.Wrapf(ErrKeyMismatch, "%s expects %d bits, key has %d", alg, alg.Bits(), pub.Size()*8)
	}
	return nil
}
