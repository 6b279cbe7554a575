package keys

import "errors"

var (
	ErrInvalidKeySize  = errors.New("session key has wrong length")
	ErrAlgorithmNone   = errors.New("no key material for algorithm none")
	ErrKeyMismatch     = errors.New("key does not match algorithm")
	ErrMalformedKey    = errors.New("malformed key file")
	ErrKeyFileNotFound = errors.New("key file not found")
)
