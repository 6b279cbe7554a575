package record

import "errors"

var (
	ErrInvalidNonce    = errors.New("record nonce is not greater than the last accepted nonce")
	ErrInvalidMAC      = errors.New("record MAC mismatch")
	ErrMalformedRecord = errors.New("malformed record")
	ErrRecordTooLarge  = errors.New("record payload too large")
	ErrNonceExhausted  = errors.New("send nonce space exhausted")
)
