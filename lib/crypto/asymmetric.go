package crypto

import (
	"crypto/rsa"

	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/openus/go-secproto/lib/algorithm"
)

// Asymmetric performs RSA PKCS#1 v1.5 key transport. A client holds only the
// public half; a server holds the private half and may encrypt as well.
type Asymmetric struct {
	alg  algorithm.AsymmetricType
	pub  *rsa.PublicKey
	priv *rsa.PrivateKey
}

// NewAsymmetric pairs an algorithm with key material. AsymmetricNone takes no
// keys; any other algorithm needs at least one key whose modulus matches
// alg.BlockSize().
func NewAsymmetric(alg algorithm.AsymmetricType, pub *rsa.PublicKey, priv *rsa.PrivateKey) (*Asymmetric, error) {
	if !alg.Valid() {
		return nil, oops.Wrapf(algorithm.ErrUnknownAlgorithm, "asymmetric %d", alg)
	}
	hasKey := pub != nil || priv != nil
	if (alg == algorithm.AsymmetricNone) == hasKey {
		return nil, oops.Wrapf(ErrInvalidCombination, "algorithm %s with key present=%t", alg, hasKey)
	}
	if priv != nil && pub == nil {
		pub = &priv.PublicKey
	}
	if pub != nil && pub.Size() != alg.BlockSize() {
		return nil, oops.Wrapf(ErrInvalidKey, "%s expects a %d-bit modulus, got %d", alg, alg.Bits(), pub.Size()*8)
	}
	return &Asymmetric{alg: alg, pub: pub, priv: priv}, nil
}

func (a *Asymmetric) Algorithm() algorithm.AsymmetricType { return a.alg }

// BlockSize is the exact ciphertext length produced by Encrypt.
func (a *Asymmetric) BlockSize() int { return a.alg.BlockSize() }

func (a *Asymmetric) CanDecrypt() bool { return a.priv != nil }

func (a *Asymmetric) Encrypt(plaintext []byte) ([]byte, error) {
	if a.pub == nil {
		return nil, oops.Wrapf(ErrEncrypt, "no public key for %s", a.alg)
	}
	ct, err := rsa.EncryptPKCS1v15(rand.Reader, a.pub, plaintext)
	if err != nil {
		return nil, oops.Wrapf(ErrEncrypt, "%s: %v", a.alg, err)
	}
	return ct, nil
}

// Decrypt reports failure through the error value only; a wrong key, a
// tampered block and a ticket packet all come back as ErrDecrypt.
func (a *Asymmetric) Decrypt(ciphertext []byte) ([]byte, error) {
	if a.priv == nil {
		return nil, oops.Wrapf(ErrDecrypt, "no private key for %s", a.alg)
	}
	if len(ciphertext) != a.BlockSize() {
		return nil, oops.Wrapf(ErrDecrypt, "ciphertext length %d, want %d", len(ciphertext), a.BlockSize())
	}
	pt, err := rsa.DecryptPKCS1v15(rand.Reader, a.priv, ciphertext)
	if err != nil {
		log.WithFields(logger.Fields{
			"at":        "crypto.Asymmetric.Decrypt",
			"algorithm": a.alg.String(),
		}).Debug("asymmetric_decrypt_failed")
		return nil, oops.Wrapf(ErrDecrypt, "%s", a.alg)
	}
	return pt, nil
}
