// Package keys holds the two kinds of key material a session uses: the
// long-lived RSA key pair that authenticates a server, and the per-session
// KeySet of symmetric and HMAC keys.
//
// Key pairs are persisted as base64-encoded PKCS#1 DER. Session keys are
// never written to disk.
package keys
