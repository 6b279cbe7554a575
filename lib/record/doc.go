// Package record implements the framing used on every established session.
//
// With a cipher configured a record is
//
//	iv || CBC(key, iv, nonce(4 LE) || length(4 LE) || payload || zero pad) [|| HMAC(iv || ciphertext)]
//
// and without one it is just length(4 LE) || payload. The receiver learns the
// record size from the first ciphertext block, so a stream can be consumed
// one block at a time with no outer length prefix. The blocks after the first
// are decrypted using the first ciphertext block as their chaining IV.
package record
