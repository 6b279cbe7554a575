package transport

import (
	"errors"

	"github.com/openus/go-secproto/lib/algorithm"
	"github.com/openus/go-secproto/lib/crypto"
	"github.com/openus/go-secproto/lib/keys"
	"github.com/openus/go-secproto/lib/record"
	"github.com/openus/go-secproto/lib/ticket"
)

var (
	ErrHandshakeFailed     = errors.New("handshake failed")
	ErrConnect             = errors.New("could not connect")
	ErrClosed              = errors.New("connection closed")
	ErrBlacklisted         = errors.New("remote endpoint is blacklisted")
	ErrRateLimited         = errors.New("accept rate exceeded")
	ErrNotListening        = errors.New("server is not listening")
	ErrAlreadyListening    = errors.New("server is already listening")
	ErrInvalidHandlingType = errors.New("handling type not valid for this operation")
)

// Errors raised by lower layers, re-exported so callers can match on one
// package.
var (
	ErrInvalidCombination = algorithm.ErrInvalidCombination
	ErrUnknownAlgorithm   = algorithm.ErrUnknownAlgorithm
	ErrInvalidKey         = crypto.ErrInvalidKey
	ErrInvalidKeySize     = keys.ErrInvalidKeySize
	ErrEncrypt            = crypto.ErrEncrypt
	ErrDecrypt            = crypto.ErrDecrypt
	ErrInvalidNonce       = record.ErrInvalidNonce
	ErrInvalidMAC         = record.ErrInvalidMAC
	ErrMalformedRecord    = record.ErrMalformedRecord
	ErrRecordTooLarge     = record.ErrRecordTooLarge
	ErrNonceExhausted     = record.ErrNonceExhausted
	ErrInvalidTicket      = ticket.ErrInvalidTicket
	ErrTicketExpired      = ticket.ErrTicketExpired
	ErrMalformedTicket    = ticket.ErrMalformedTicket
	ErrInvalidInterval    = ticket.ErrInvalidInterval
)

var dataPathErrors = []error{
	ErrDecrypt,
	ErrInvalidNonce,
	ErrInvalidMAC,
	ErrMalformedRecord,
	ErrInvalidTicket,
	ErrTicketExpired,
	ErrMalformedTicket,
	ErrHandshakeFailed,
	ErrBlacklisted,
	ErrRateLimited,
}

// IsDataPathError reports whether err is a cryptographic, authentication or
// admission failure, the class of errors a HandlingType may suppress.
func IsDataPathError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range dataPathErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
