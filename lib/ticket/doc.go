// Package ticket implements session resumption.
//
// A server issues a Ticket after every successful handshake. The ticket
// carries the session's keys, is encrypted under a server-private ticket key,
// and is handed to the client as an opaque blob. Presenting the blob as the
// first packet of a later connection resumes the session without an
// asymmetric handshake. Each ticket is redeemable once, and only within the
// store's lifetime.
package ticket
