package crypto

import (
	"github.com/go-i2p/crypto/rand"
	"github.com/samber/oops"
)

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if n == 0 {
		return b, nil
	}
	if _, err := rand.Read(b); err != nil {
		return nil, oops.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}
