package record

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openus/go-secproto/lib/algorithm"
	"github.com/openus/go-secproto/lib/keys"
)

var (
	aesSHA256 = algorithm.Set{Asymmetric: algorithm.RSA, Symmetric: algorithm.AES, Hash: algorithm.SHA256}
	desNoMAC  = algorithm.Set{Asymmetric: algorithm.RSA, Symmetric: algorithm.DES, Hash: algorithm.HashNone}
)

// pair returns two layers sharing one KeySet, one per endpoint.
func pair(t *testing.T, set algorithm.Set) (*Layer, *Layer) {
	t.Helper()
	ks, err := keys.GenerateKeySet(set)
	require.NoError(t, err)
	a, err := NewLayer(ks)
	require.NoError(t, err)
	b, err := NewLayer(ks.Clone())
	require.NoError(t, err)
	return a, b
}

func allSets() []algorithm.Set {
	sets := []algorithm.Set{algorithm.NoneSet}
	for _, sym := range []algorithm.SymmetricType{algorithm.DES, algorithm.TripleDES, algorithm.AES} {
		for h := algorithm.HashNone; h <= algorithm.SHA3_512; h++ {
			sets = append(sets, algorithm.Set{Asymmetric: algorithm.RSA, Symmetric: sym, Hash: h})
		}
	}
	return sets
}

func TestLayer_RoundTripAllSets(t *testing.T) {
	sizes := []int{0, 1, 7, 8, 9, 15, 16, 17, 100, 4096}
	for _, set := range allSets() {
		t.Run(set.String(), func(t *testing.T) {
			w, r := pair(t, set)
			var buf bytes.Buffer
			for _, n := range sizes {
				payload := bytes.Repeat([]byte{byte(n)}, n)
				require.NoError(t, w.Write(&buf, payload))
			}
			for _, n := range sizes {
				got, err := r.Read(&buf)
				require.NoError(t, err)
				assert.Equal(t, n, len(got))
				assert.Equal(t, bytes.Repeat([]byte{byte(n)}, n), got)
			}
			assert.Zero(t, buf.Len())
			_, err := r.Read(&buf)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestLayer_SealedSizeMatchesOutput(t *testing.T) {
	for _, set := range allSets() {
		l, _ := pair(t, set)
		for _, n := range []int{0, 5, 8, 31, 64} {
			rec, err := l.Seal(make([]byte, n))
			require.NoError(t, err)
			assert.Len(t, rec, l.SealedSize(n), set.String())
		}
	}
}

func TestLayer_NoneSetIsPlainLengthPrefix(t *testing.T) {
	l, _ := pair(t, algorithm.NoneSet)
	rec, err := l.Seal([]byte("Hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 0, 0, 0, 'H', 'e', 'l', 'l', 'o'}, rec)
	assert.Zero(t, l.SendNonce())
}

func TestLayer_LargePlainPayload(t *testing.T) {
	w, r := pair(t, algorithm.NoneSet)
	payload := bytes.Repeat([]byte("0123456789"), 1<<20)
	var buf bytes.Buffer
	require.NoError(t, w.Write(&buf, payload))
	got, err := r.Read(&buf)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))
}

func TestLayer_ReplayIsRejected(t *testing.T) {
	w, r := pair(t, aesSHA256)
	rec, err := w.Seal([]byte("once"))
	require.NoError(t, err)

	got, err := r.Open(rec)
	require.NoError(t, err)
	assert.Equal(t, []byte("once"), got)

	_, err = r.Open(rec)
	assert.ErrorIs(t, err, ErrInvalidNonce)
}

func TestLayer_ReplayWithoutMACIsRejected(t *testing.T) {
	w, r := pair(t, desNoMAC)
	rec, err := w.Seal([]byte("replayed"))
	require.NoError(t, err)
	_, err = r.Open(rec)
	require.NoError(t, err)
	_, err = r.Open(rec)
	assert.ErrorIs(t, err, ErrInvalidNonce)
}

func TestLayer_OutOfOrderIsRejected(t *testing.T) {
	w, r := pair(t, aesSHA256)
	first, err := w.Seal([]byte("1"))
	require.NoError(t, err)
	second, err := w.Seal([]byte("2"))
	require.NoError(t, err)

	_, err = r.Open(second)
	require.NoError(t, err)
	_, err = r.Open(first)
	assert.ErrorIs(t, err, ErrInvalidNonce)
}

func TestLayer_EveryBitFlipIsRejected(t *testing.T) {
	w, _ := pair(t, aesSHA256)
	rec, err := w.Seal([]byte("integrity protected payload"))
	require.NoError(t, err)

	for i := 0; i < len(rec)*8; i++ {
		_, r := pair(t, aesSHA256)
		r.cipher, r.hmacKey = w.cipher, w.hmacKey
		tampered := append([]byte(nil), rec...)
		tampered[i/8] ^= 1 << (i % 8)
		_, err := r.Open(tampered)
		require.Error(t, err, "bit %d", i)
		assert.Zero(t, r.RecvNonce(), "bit %d advanced the receive window", i)
	}
}

func TestLayer_TamperDoesNotAdvanceNonce(t *testing.T) {
	w, r := pair(t, aesSHA256)
	rec, err := w.Seal([]byte("x"))
	require.NoError(t, err)
	bad := append([]byte(nil), rec...)
	bad[len(bad)-1] ^= 0xFF

	_, err = r.Open(bad)
	assert.ErrorIs(t, err, ErrInvalidMAC)

	got, err := r.Open(rec)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}

func TestLayer_NoncesStrictlyIncrease(t *testing.T) {
	w, r := pair(t, aesSHA256)
	var buf bytes.Buffer
	last := uint32(0)
	for i := 0; i < 200; i++ {
		require.NoError(t, w.Write(&buf, []byte{byte(i)}))
		sent := w.SendNonce()
		assert.Greater(t, sent, last)
		assert.LessOrEqual(t, sent-last, uint32(maxNonceStep))

		_, err := r.Read(&buf)
		require.NoError(t, err)
		assert.Equal(t, sent, r.RecvNonce())
		last = sent
	}
}

func TestLayer_NonceExhaustion(t *testing.T) {
	w, _ := pair(t, aesSHA256)
	w.sendNonce = ^uint32(0) - 1
	var err error
	for i := 0; i < maxNonceStep && err == nil; i++ {
		_, err = w.Seal([]byte("x"))
	}
	assert.ErrorIs(t, err, ErrNonceExhausted)
}

func TestLayer_OpenRejectsTruncatedAndTrailing(t *testing.T) {
	w, r := pair(t, aesSHA256)
	rec, err := w.Seal(bytes.Repeat([]byte("a"), 40))
	require.NoError(t, err)

	_, err = r.Open(rec[:len(rec)-1])
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = r.Open(append(append([]byte(nil), rec...), 0))
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = r.Open(nil)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestLayer_ReadMidRecordEOF(t *testing.T) {
	w, r := pair(t, aesSHA256)
	rec, err := w.Seal(bytes.Repeat([]byte("b"), 64))
	require.NoError(t, err)
	_, err = r.Read(bytes.NewReader(rec[:40]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestLayer_OversizedLengthIsMalformed(t *testing.T) {
	_, r := pair(t, algorithm.NoneSet)
	_, err := r.Open([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	assert.ErrorIs(t, err, ErrMalformedRecord)

	w, _ := pair(t, algorithm.NoneSet)
	_, err = w.Seal(make([]byte, MaxPayloadSize+1))
	assert.ErrorIs(t, err, ErrRecordTooLarge)
}

func TestLayer_DifferentKeysFailAuthentication(t *testing.T) {
	w, _ := pair(t, aesSHA256)
	_, r := pair(t, aesSHA256)
	rec, err := w.Seal([]byte("secret"))
	require.NoError(t, err)
	_, err = r.Open(rec)
	assert.Error(t, err)
}
