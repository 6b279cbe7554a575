// Package algorithm describes the cryptographic algorithms a secure session
// can negotiate and the sizes that follow from them.
//
// A Set is an immutable value chosen once when a client or server is built.
// Every other package derives key lengths, block sizes and the fixed size of
// the first connect packet from it.
package algorithm
