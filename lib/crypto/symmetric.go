package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/openus/go-secproto/lib/algorithm"
)

// Symmetric is a block cipher in CBC mode with implicit zero padding.
// Decrypt never strips padding; callers frame their own lengths.
type Symmetric interface {
	Algorithm() algorithm.SymmetricType
	KeySize() int
	BlockSize() int
	Encrypt(plaintext, iv []byte) ([]byte, error)
	Decrypt(ciphertext, iv []byte) ([]byte, error)
}

// NewSymmetric returns the cipher for alg keyed with key. SymmetricNone
// yields a pass-through cipher and requires an empty key.
func NewSymmetric(alg algorithm.SymmetricType, key []byte) (Symmetric, error) {
	if !alg.Valid() {
		return nil, oops.Wrapf(algorithm.ErrUnknownAlgorithm, "symmetric %d", alg)
	}
	if len(key) != alg.KeySize() {
		return nil, oops.Wrapf(ErrInvalidKeySize, "%s needs %d bytes, got %d", alg, alg.KeySize(), len(key))
	}

	var (
		block cipher.Block
		err   error
	)
	switch alg {
	case algorithm.SymmetricNone:
		return plain{}, nil
	case algorithm.DES:
		block, err = des.NewCipher(key)
	case algorithm.TripleDES:
		block, err = des.NewTripleDESCipher(key)
	case algorithm.AES:
		block, err = aes.NewCipher(key)
	}
	if err != nil {
		log.WithFields(logger.Fields{
			"at":        "crypto.NewSymmetric",
			"algorithm": alg.String(),
		}).WithError(err).Error("cipher_init_failed")
		return nil, oops.Wrapf(ErrInvalidKey, "%s: %v", alg, err)
	}
	return &cbc{alg: alg, block: block}, nil
}

type cbc struct {
	alg   algorithm.SymmetricType
	block cipher.Block
}

func (c *cbc) Algorithm() algorithm.SymmetricType { return c.alg }
func (c *cbc) KeySize() int                       { return c.alg.KeySize() }
func (c *cbc) BlockSize() int                     { return c.block.BlockSize() }

func (c *cbc) Encrypt(plaintext, iv []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	if len(iv) != bs {
		return nil, oops.Wrapf(ErrEncrypt, "iv length %d, want %d", len(iv), bs)
	}
	padded := make([]byte, (len(plaintext)+bs-1)/bs*bs)
	copy(padded, plaintext)
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(padded, padded)
	return padded, nil
}

func (c *cbc) Decrypt(ciphertext, iv []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	if len(iv) != bs {
		return nil, oops.Wrapf(ErrDecrypt, "iv length %d, want %d", len(iv), bs)
	}
	if len(ciphertext)%bs != 0 {
		return nil, oops.Wrapf(ErrDecrypt, "ciphertext length %d is not a multiple of %d", len(ciphertext), bs)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

// plain is the SymmetricNone cipher.
type plain struct{}

func (plain) Algorithm() algorithm.SymmetricType { return algorithm.SymmetricNone }
func (plain) KeySize() int                       { return 0 }
func (plain) BlockSize() int                     { return 0 }

func (plain) Encrypt(plaintext, _ []byte) ([]byte, error) {
	return append([]byte(nil), plaintext...), nil
}

func (plain) Decrypt(ciphertext, _ []byte) ([]byte, error) {
	return append([]byte(nil), ciphertext...), nil
}
