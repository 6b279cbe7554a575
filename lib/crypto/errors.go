package crypto

import "errors"

var (
	ErrInvalidKey         = errors.New("invalid key")
	ErrInvalidKeySize     = errors.New("invalid key size")
	ErrInvalidCombination = errors.New("key presence does not match algorithm")
	ErrEncrypt            = errors.New("encryption failed")
	ErrDecrypt            = errors.New("decryption failed")
)
