package transport

import (
	"errors"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlingType_Outcome(t *testing.T) {
	tagged := oops.Wrapf(ErrInvalidMAC, "record 3")

	assert.Equal(t, Report, Fail.Outcome(tagged))
	assert.Equal(t, Empty, ReturnEmpty.Outcome(tagged))
	assert.Equal(t, Retry, IgnoreLoop.Outcome(tagged))

	for _, h := range []HandlingType{Fail, ReturnEmpty, IgnoreLoop} {
		assert.Equal(t, Report, h.Outcome(io.EOF), h.String())
		assert.Equal(t, Report, h.Outcome(net.ErrClosed), h.String())
		assert.Equal(t, Report, h.Outcome(ErrInvalidCombination), h.String())
	}
}

func TestHandlingType_Checks(t *testing.T) {
	assert.NoError(t, Fail.CheckRead())
	assert.NoError(t, ReturnEmpty.CheckRead())
	assert.ErrorIs(t, IgnoreLoop.CheckRead(), ErrInvalidHandlingType)
	assert.NoError(t, IgnoreLoop.CheckAccept())
	assert.ErrorIs(t, HandlingType(7).CheckAccept(), ErrInvalidHandlingType)
}

func TestParseHandlingType(t *testing.T) {
	for _, h := range []HandlingType{Fail, ReturnEmpty, IgnoreLoop} {
		got, err := ParseHandlingType(h.String())
		require.NoError(t, err)
		assert.Equal(t, h, got)
	}
	_, err := ParseHandlingType("retry-forever")
	assert.ErrorIs(t, err, ErrInvalidHandlingType)
}

func TestIsDataPathError(t *testing.T) {
	assert.True(t, IsDataPathError(oops.Wrapf(ErrTicketExpired, "x")))
	assert.True(t, IsDataPathError(ErrDecrypt))
	assert.False(t, IsDataPathError(nil))
	assert.False(t, IsDataPathError(ErrConnect))
	assert.False(t, IsDataPathError(io.ErrUnexpectedEOF))
}

func TestSentinels_MatchOnlyThemselves(t *testing.T) {
	all := []error{
		ErrHandshakeFailed, ErrConnect, ErrClosed, ErrBlacklisted, ErrRateLimited,
		ErrNotListening, ErrAlreadyListening, ErrInvalidHandlingType,
		ErrInvalidCombination, ErrUnknownAlgorithm, ErrInvalidKey, ErrInvalidKeySize,
		ErrEncrypt, ErrDecrypt, ErrInvalidNonce, ErrInvalidMAC, ErrMalformedRecord,
		ErrRecordTooLarge, ErrNonceExhausted, ErrInvalidTicket, ErrTicketExpired,
		ErrMalformedTicket, ErrInvalidInterval,
	}
	for i, a := range all {
		wrapped := oops.Wrapf(a, "context")
		for j, b := range all {
			assert.Equal(t, i == j, errors.Is(wrapped, b), "%v vs %v", a, b)
		}
	}
}

func TestHandlingType_OutcomeReportsNonDataPathErrors(t *testing.T) {
	socket := oops.Errorf("accept failed: %w", syscall.EMFILE)
	readErr := oops.Wrapf(io.ErrUnexpectedEOF, "reading 16 byte record segment")
	for _, h := range []HandlingType{ReturnEmpty, IgnoreLoop} {
		assert.Equal(t, Report, h.Outcome(oops.Wrapf(ErrInvalidCombination, "set")), h.String())
		assert.Equal(t, Report, h.Outcome(oops.Wrapf(ErrConnect, "127.0.0.1:1")), h.String())
		assert.Equal(t, Report, h.Outcome(socket), h.String())
		assert.Equal(t, Report, h.Outcome(readErr), h.String())
	}
	assert.False(t, errors.Is(socket, ErrClosed))
	assert.False(t, errors.Is(ErrInvalidTicket, ErrTicketExpired))
}

func TestBlacklist_HostAndEndpointEntries(t *testing.T) {
	b := NewBlacklist("10.0.0.5", "192.168.1.1:4000", "[::1]:9000", " ")
	assert.Equal(t, 3, b.Len())

	assert.True(t, b.Contains(&net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 1}))
	assert.True(t, b.Contains(&net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 65000}))
	assert.True(t, b.Contains(&net.TCPAddr{IP: net.ParseIP("192.168.1.1"), Port: 4000}))
	assert.False(t, b.Contains(&net.TCPAddr{IP: net.ParseIP("192.168.1.1"), Port: 4001}))
	assert.True(t, b.Contains(&net.UDPAddr{IP: net.ParseIP("::1"), Port: 9000}))
	assert.False(t, b.Contains(&net.UDPAddr{IP: net.ParseIP("::1"), Port: 9001}))

	b.Remove("10.0.0.5")
	assert.False(t, b.Contains(&net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 1}))
	assert.Equal(t, []string{"192.168.1.1:4000", "[::1]:9000"}, b.Entries())
}

func TestBlacklist_Replace(t *testing.T) {
	b := NewBlacklist("10.0.0.5")
	b.Replace("10.0.0.6", "", "10.0.0.7:80")
	assert.Equal(t, []string{"10.0.0.6", "10.0.0.7:80"}, b.Entries())
	assert.False(t, b.Contains(&net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 1}))
}

func TestBlacklist_NilContainsNothing(t *testing.T) {
	var b *Blacklist
	assert.False(t, b.Contains(&net.TCPAddr{IP: net.ParseIP("127.0.0.1")}))
}
