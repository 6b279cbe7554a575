package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"

	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/openus/go-secproto/lib/algorithm"
	"github.com/openus/go-secproto/lib/crypto"
	"github.com/openus/go-secproto/lib/keys"
)

var log = logger.GetGoI2PLogger()

const (
	nonceSize  = 4
	lengthSize = 4
	headerSize = nonceSize + lengthSize

	// MaxPayloadSize bounds the length field accepted from a peer.
	MaxPayloadSize = 64 << 20

	// maxNonceStep is the upper bound of the random send nonce increment.
	maxNonceStep = 4
)

// Layer seals and opens records for one session. Reads and writes are
// serialized per direction, so one reader and one writer may run
// concurrently.
type Layer struct {
	set     algorithm.Set
	cipher  crypto.Symmetric
	hmacKey []byte

	wmu       sync.Mutex
	sendNonce uint32

	rmu       sync.Mutex
	recvNonce uint32
}

// NewLayer keys a record layer with a session's KeySet. Both counters start
// at zero.
func NewLayer(ks *keys.KeySet) (*Layer, error) {
	set := ks.Set()
	c, err := crypto.NewSymmetric(set.Symmetric, ks.SymmetricKey())
	if err != nil {
		return nil, err
	}
	return &Layer{set: set, cipher: c, hmacKey: ks.HMACKey()}, nil
}

func (l *Layer) Set() algorithm.Set { return l.set }

func (l *Layer) SendNonce() uint32 {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	return l.sendNonce
}

func (l *Layer) RecvNonce() uint32 {
	l.rmu.Lock()
	defer l.rmu.Unlock()
	return l.recvNonce
}

// SealedSize is the wire length of a record carrying n payload bytes.
func (l *Layer) SealedSize(n int) int {
	if !l.set.Secure() {
		return lengthSize + n
	}
	bs := l.set.BlockSize()
	size := bs + (headerSize+n+bs-1)/bs*bs
	if l.set.HasMAC() {
		size += l.set.MACSize()
	}
	return size
}

// Write seals payload and writes it to w in a single call.
func (l *Layer) Write(w io.Writer, payload []byte) error {
	rec, err := l.Seal(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(rec); err != nil {
		return oops.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Seal encodes payload as one record, advancing the send nonce by a random
// step in [1, 4].
func (l *Layer) Seal(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, oops.Wrapf(ErrRecordTooLarge, "%d bytes", len(payload))
	}
	if !l.set.Secure() {
		out := make([]byte, lengthSize, lengthSize+len(payload))
		binary.LittleEndian.PutUint32(out, uint32(len(payload)))
		return append(out, payload...), nil
	}

	l.wmu.Lock()
	defer l.wmu.Unlock()

	step := uint64(1 + rand.Intn(maxNonceStep))
	if uint64(l.sendNonce)+step > math.MaxUint32 {
		return nil, ErrNonceExhausted
	}
	nonce := l.sendNonce + uint32(step)

	frame := make([]byte, headerSize, headerSize+len(payload))
	binary.LittleEndian.PutUint32(frame[:nonceSize], nonce)
	binary.LittleEndian.PutUint32(frame[nonceSize:], uint32(len(payload)))
	frame = append(frame, payload...)

	iv, err := crypto.RandomBytes(l.set.BlockSize())
	if err != nil {
		return nil, err
	}
	ct, err := l.cipher.Encrypt(frame, iv)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, l.SealedSize(len(payload)))
	out = append(out, iv...)
	out = append(out, ct...)
	if l.set.HasMAC() {
		out = append(out, crypto.HMAC(l.set.Hash, l.hmacKey, iv, ct)...)
	}
	l.sendNonce = nonce
	return out, nil
}

// Read consumes exactly one record from r. io.EOF is returned unwrapped when
// r ends cleanly on a record boundary.
func (l *Layer) Read(r io.Reader) ([]byte, error) {
	l.rmu.Lock()
	defer l.rmu.Unlock()
	return l.read(r)
}

// Open decodes a record held entirely in memory, such as one datagram.
// Short or overlong input is ErrMalformedRecord.
func (l *Layer) Open(datagram []byte) ([]byte, error) {
	l.rmu.Lock()
	defer l.rmu.Unlock()

	r := bytes.NewReader(datagram)
	payload, err := l.read(r)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, oops.Wrapf(ErrMalformedRecord, "truncated datagram of %d bytes", len(datagram))
	}
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, oops.Wrapf(ErrMalformedRecord, "%d trailing bytes", r.Len())
	}
	return payload, nil
}

func (l *Layer) read(r io.Reader) ([]byte, error) {
	if !l.set.Secure() {
		return readPlain(r)
	}

	bs := l.set.BlockSize()
	head := make([]byte, 2*bs)
	if err := readFull(r, head); err != nil {
		return nil, err
	}
	iv, enc1 := head[:bs], head[bs:]

	first, err := l.cipher.Decrypt(enc1, iv)
	if err != nil {
		return nil, err
	}
	nonce := binary.LittleEndian.Uint32(first[:nonceSize])
	length := binary.LittleEndian.Uint32(first[nonceSize:headerSize])
	if length > MaxPayloadSize {
		return nil, oops.Wrapf(ErrMalformedRecord, "length field %d", length)
	}

	blocks := (headerSize + int(length) + bs - 1) / bs
	rest := make([]byte, (blocks-1)*bs+l.macSize())
	if err := readFull(r, rest); err != nil {
		return nil, unexpected(err)
	}
	enc2, mac := rest[:(blocks-1)*bs], rest[(blocks-1)*bs:]

	if l.set.HasMAC() {
		want := crypto.HMAC(l.set.Hash, l.hmacKey, iv, enc1, enc2)
		if !crypto.EqualMAC(want, mac) {
			log.WithFields(logger.Fields{
				"at":    "record.Layer.read",
				"nonce": nonce,
			}).Debug("record_mac_mismatch")
			return nil, ErrInvalidMAC
		}
	}
	if nonce <= l.recvNonce {
		log.WithFields(logger.Fields{
			"at":        "record.Layer.read",
			"nonce":     nonce,
			"recvNonce": l.recvNonce,
		}).Debug("record_nonce_rejected")
		return nil, oops.Wrapf(ErrInvalidNonce, "nonce %d after %d", nonce, l.recvNonce)
	}

	plain := first
	if len(enc2) > 0 {
		tail, err := l.cipher.Decrypt(enc2, enc1)
		if err != nil {
			return nil, err
		}
		plain = append(plain, tail...)
	}
	l.recvNonce = nonce
	return plain[headerSize : headerSize+int(length)], nil
}

func (l *Layer) macSize() int {
	if l.set.HasMAC() {
		return l.set.MACSize()
	}
	return 0
}

func readPlain(r io.Reader) ([]byte, error) {
	var hdr [lengthSize]byte
	if err := readFull(r, hdr[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(hdr[:])
	if length > MaxPayloadSize {
		return nil, oops.Wrapf(ErrMalformedRecord, "length field %d", length)
	}
	payload := make([]byte, length)
	if err := readFull(r, payload); err != nil {
		return nil, unexpected(err)
	}
	return payload, nil
}

// readFull passes a clean io.EOF through so callers can tell a closed peer
// from a broken record.
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err == nil || err == io.EOF {
		return err
	}
	return oops.Wrapf(err, "reading %d byte record segment", len(buf))
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
