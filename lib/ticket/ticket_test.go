package ticket

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openus/go-secproto/lib/algorithm"
	"github.com/openus/go-secproto/lib/crypto"
	"github.com/openus/go-secproto/lib/keys"
)

var testSet = algorithm.Set{Asymmetric: algorithm.RSA, Symmetric: algorithm.AES, Hash: algorithm.SHA256}

func sessionKeys(t *testing.T) *keys.KeySet {
	t.Helper()
	ks, err := keys.GenerateKeySet(testSet)
	require.NoError(t, err)
	return ks
}

func TestTicket_MarshalLayout(t *testing.T) {
	tk := &Ticket{
		Nonce:        0x01020304,
		SymmetricKey: make([]byte, 32),
		HmacKey:      make([]byte, 64),
		IV:           make([]byte, 16),
	}
	b := tk.Marshal()
	assert.Len(t, b, testSet.TicketPlaintextSize())
	assert.Equal(t, []byte{1, 2, 3, 4}, b[:4])

	padded := append(b, make([]byte, testSet.TicketPacketSize()-len(b))...)
	got, err := Unmarshal(testSet, padded)
	require.NoError(t, err)
	assert.Equal(t, tk.Nonce, got.Nonce)
	assert.Equal(t, tk.Marshal(), got.Marshal())

	_, err = Unmarshal(testSet, b[:20])
	assert.ErrorIs(t, err, ErrMalformedTicket)
}

func TestSealer_SealOpen(t *testing.T) {
	sealer, err := NewSealer(testSet)
	require.NoError(t, err)
	store := NewStore(DefaultLifetime, nil)
	ks := sessionKeys(t)

	issued, err := store.Issue(ks)
	require.NoError(t, err)
	blob, err := sealer.Seal(issued)
	require.NoError(t, err)
	assert.Len(t, blob, sealer.BlobSize())
	assert.Equal(t, issued.IV, blob[:16])

	padded := append(append([]byte(nil), blob...), make([]byte, 64)...)
	opened, err := sealer.Open(padded)
	require.NoError(t, err)
	assert.Equal(t, issued.Marshal(), opened.Marshal())

	resumed, err := opened.KeySet(testSet)
	require.NoError(t, err)
	assert.True(t, ks.Equal(resumed))
}

func TestSealer_ForeignBlobIsMalformed(t *testing.T) {
	a, err := NewSealer(testSet)
	require.NoError(t, err)
	b, err := NewSealer(testSet)
	require.NoError(t, err)

	tk, err := NewStore(DefaultLifetime, nil).Issue(sessionKeys(t))
	require.NoError(t, err)
	blob, err := a.Seal(tk)
	require.NoError(t, err)

	_, err = b.Open(blob)
	assert.ErrorIs(t, err, ErrMalformedTicket)

	junk, err := crypto.RandomBytes(testSet.MinimumConnectPacketSize())
	require.NoError(t, err)
	_, err = a.Open(junk)
	assert.ErrorIs(t, err, ErrMalformedTicket)

	_, err = a.Open(blob[:10])
	assert.ErrorIs(t, err, ErrMalformedTicket)
}

func TestNewSealer_RejectsNoneSet(t *testing.T) {
	_, err := NewSealer(algorithm.NoneSet)
	assert.ErrorIs(t, err, ErrInsecureSet)
}

func TestStore_RedeemIsSingleUse(t *testing.T) {
	store := NewStore(DefaultLifetime, clock.NewMock())
	tk, err := store.Issue(sessionKeys(t))
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	got, err := store.Redeem(tk)
	require.NoError(t, err)
	assert.Equal(t, tk.Nonce, got.Nonce)
	assert.Zero(t, store.Len())

	_, err = store.Redeem(tk)
	assert.ErrorIs(t, err, ErrInvalidTicket)
}

func TestStore_RedeemRequiresExactMatch(t *testing.T) {
	store := NewStore(DefaultLifetime, clock.NewMock())
	tk, err := store.Issue(sessionKeys(t))
	require.NoError(t, err)

	forged := *tk
	forged.Nonce++
	_, err = store.Redeem(&forged)
	assert.ErrorIs(t, err, ErrInvalidTicket)
	assert.Equal(t, 1, store.Len())
}

func TestStore_ExpiredTicketFails(t *testing.T) {
	mock := clock.NewMock()
	store := NewStore(time.Minute, mock)
	tk, err := store.Issue(sessionKeys(t))
	require.NoError(t, err)

	mock.Add(time.Minute)
	_, err = store.Redeem(tk)
	assert.ErrorIs(t, err, ErrTicketExpired)
	assert.Zero(t, store.Len())
}

func TestStore_JustBeforeExpiryIsValid(t *testing.T) {
	mock := clock.NewMock()
	store := NewStore(time.Minute, mock)
	tk, err := store.Issue(sessionKeys(t))
	require.NoError(t, err)

	mock.Add(time.Minute - time.Millisecond)
	_, err = store.Redeem(tk)
	assert.NoError(t, err)
}

func TestStore_ZeroLifetimeNeverStores(t *testing.T) {
	store := NewStore(0, clock.NewMock())
	tk, err := store.Issue(sessionKeys(t))
	require.NoError(t, err)
	assert.Zero(t, store.Len())

	_, err = store.Redeem(tk)
	assert.ErrorIs(t, err, ErrInvalidTicket)
}

func TestStore_NoncesAreUniquePerStore(t *testing.T) {
	store := NewStore(DefaultLifetime, nil)
	ks := sessionKeys(t)

	var (
		mu   sync.Mutex
		seen = map[uint32]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk, err := store.Issue(ks)
			assert.NoError(t, err)
			mu.Lock()
			seen[tk.Nonce] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
	assert.Equal(t, 50, store.Len())

	other := NewStore(DefaultLifetime, nil)
	tk, err := other.Issue(ks)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), tk.Nonce)
}

func TestStore_Sweep(t *testing.T) {
	mock := clock.NewMock()
	store := NewStore(time.Minute, mock)
	ks := sessionKeys(t)

	_, err := store.Issue(ks)
	require.NoError(t, err)
	mock.Add(30 * time.Second)
	fresh, err := store.Issue(ks)
	require.NoError(t, err)
	mock.Add(30 * time.Second)

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
	_, err = store.Redeem(fresh)
	assert.NoError(t, err)
}

func TestStore_SweeperRemovesExpired(t *testing.T) {
	mock := clock.NewMock()
	store := NewStore(time.Minute, mock)
	defer store.Close()

	_, err := store.Issue(sessionKeys(t))
	require.NoError(t, err)
	require.NoError(t, store.StartSweeper(10*time.Second))
	require.NoError(t, store.StartSweeper(10*time.Second))

	assert.Eventually(t, func() bool {
		mock.Add(10 * time.Second)
		return store.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStore_StartSweeperRejectsBadInterval(t *testing.T) {
	store := NewStore(time.Minute, nil)
	assert.ErrorIs(t, store.StartSweeper(0), ErrInvalidInterval)
	assert.ErrorIs(t, store.StartSweeper(-time.Second), ErrInvalidInterval)
}

func TestStore_CloseClears(t *testing.T) {
	store := NewStore(time.Minute, nil)
	_, err := store.Issue(sessionKeys(t))
	require.NoError(t, err)
	store.Close()
	store.Close()
	assert.Zero(t, store.Len())
}
