// Package tcp runs secure sessions over TCP.
//
// A Client opens a session either with a fresh handshake, encrypting new
// session keys to the server's RSA public key, or by presenting a ticket
// from an earlier session. Both kinds of first packet have the same fixed
// size, so the Server tries both interpretations and proceeds with whichever
// decrypts. After key confirmation the server sends a new ticket, and every
// later message is a record.
package tcp

import "github.com/go-i2p/logger"

var log = logger.GetGoI2PLogger()
