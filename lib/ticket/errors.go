package ticket

import "errors"

var (
	ErrInvalidTicket   = errors.New("ticket not found")
	ErrTicketExpired   = errors.New("ticket expired")
	ErrMalformedTicket = errors.New("malformed ticket")
	ErrInvalidInterval = errors.New("sweeper interval must be positive")
	ErrInsecureSet     = errors.New("tickets require a symmetric algorithm")
)
