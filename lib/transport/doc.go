// Package transport holds what the stream and datagram session transports
// share: the error taxonomy, the HandlingType policy applied to fallible
// reads and accepts, connection-state flags and the accept-time blacklist.
//
// The concrete transports live in the tcp and udp subpackages.
//
// # Error handling
//
// Configuration errors (ErrInvalidCombination, ErrInvalidHandlingType and
// friends) are always returned. Data-path errors, meaning cryptographic,
// authentication and framing failures, are reported according to the
// caller's HandlingType:
//
//   - Fail returns the error.
//   - ReturnEmpty returns a nil result and a nil error.
//   - IgnoreLoop, valid only for accept, drops the candidate connection and
//     waits for the next one.
//
// Socket errors such as io.EOF or a closed listener are never swallowed.
package transport
