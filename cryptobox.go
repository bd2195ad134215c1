package shs

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/secretbox"
)

// Mode selects a CryptoBox's wire framing. Peers on either end of a channel must agree on Mode;
// a mismatch surfaces as ErrCorruptData on the first record either side tries to decode.
type Mode int

const (
	// ModeCompact frames each record as a 2-byte little-endian length, a 16-byte AEAD tag, and
	// the ciphertext, for 18 bytes of overhead per record.
	ModeCompact Mode = iota
	// ModeBoxstream frames each record as the SSB boxstream header (a separately-sealed 18-byte
	// plaintext header carrying the body length and the body's detached MAC) followed by the
	// body's ciphertext, for 34 bytes of overhead per record.
	ModeBoxstream
)

const (
	compactOverhead          = 18
	boxstreamOverhead        = 34
	boxstreamHeaderPlainSize = 18 // 2-byte length + 16-byte body MAC
)

// ErrGoodbye is returned by Decrypt when the consumed record is a ModeBoxstream goodbye record
// rather than a message: a record whose header, once opened, is all zero. It carries no
// plaintext; DecryptionStream treats it as a clean end of stream rather than a failure.
var ErrGoodbye = errors.New("shs: goodbye record")

// CryptoBox encrypts and decrypts individual records using the keys and nonces of a Session.
//
// A CryptoBox is not safe for concurrent use. Each direction's nonce is owned by this CryptoBox
// alone: constructing it from a Session copies the Session's nonces rather than sharing them.
type CryptoBox struct {
	mode Mode

	encKey [32]byte
	decKey [32]byte

	encAEAD cipher.AEAD // ModeCompact only
	decAEAD cipher.AEAD // ModeCompact only

	encNonce Nonce
	decNonce Nonce
}

// NewCryptoBox builds a CryptoBox from session, framing records according to mode.
func NewCryptoBox(session Session, mode Mode) (*CryptoBox, error) {
	cb := &CryptoBox{
		mode:     mode,
		encKey:   session.EncryptionKey,
		decKey:   session.DecryptionKey,
		encNonce: session.EncryptionNonce,
		decNonce: session.DecryptionNonce,
	}
	if mode == ModeCompact {
		encAEAD, err := chacha20poly1305.NewX(cb.encKey[:])
		if err != nil {
			return nil, err
		}
		decAEAD, err := chacha20poly1305.NewX(cb.decKey[:])
		if err != nil {
			return nil, err
		}
		cb.encAEAD = encAEAD
		cb.decAEAD = decAEAD
	}
	return cb, nil
}

// EncryptedSize returns the on-wire length of a record carrying plaintextLen bytes of plaintext.
func (cb *CryptoBox) EncryptedSize(plaintextLen int) int {
	if cb.mode == ModeBoxstream {
		return plaintextLen + boxstreamOverhead
	}
	return plaintextLen + compactOverhead
}

// Encrypt seals plaintext as one record, writing it to dst and returning the number of bytes
// written. It advances the CryptoBox's encryption nonce only on success.
//
// dst and plaintext may alias the same underlying array; Encrypt stages ciphertext through
// freshly-allocated memory before copying it into dst, so it never reads dst after having
// written to it.
func (cb *CryptoBox) Encrypt(dst, plaintext []byte) (int, error) {
	need := cb.EncryptedSize(len(plaintext))
	if len(dst) < need {
		return 0, ErrOutTooSmall
	}
	if cb.mode == ModeBoxstream {
		return cb.encryptBoxstream(dst, plaintext)
	}
	return cb.encryptCompact(dst, plaintext)
}

func (cb *CryptoBox) encryptCompact(dst, plaintext []byte) (int, error) {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(plaintext)))

	nonce := cb.encNonce
	sealed := cb.encAEAD.Seal(nil, nonce[:], plaintext, lenBuf[:])
	ciphertext, tag := sealed[:len(plaintext)], sealed[len(plaintext):]

	copy(dst[0:2], lenBuf[:])
	copy(dst[2:18], tag)
	copy(dst[18:18+len(plaintext)], ciphertext)

	cb.encNonce = cb.encNonce.add(1)
	return 18 + len(plaintext), nil
}

func (cb *CryptoBox) encryptBoxstream(dst, plaintext []byte) (int, error) {
	headerNonce, bodyNonce := [24]byte(cb.encNonce), [24]byte(cb.encNonce.add(1))
	key := cb.encKey

	sealedBody := secretbox.Seal(nil, plaintext, &bodyNonce, &key)
	bodyMAC, bodyCiphertext := sealedBody[:16], sealedBody[16:]

	var headerPlain [boxstreamHeaderPlainSize]byte
	binary.BigEndian.PutUint16(headerPlain[0:2], uint16(len(plaintext)))
	copy(headerPlain[2:18], bodyMAC)
	sealedHeader := secretbox.Seal(nil, headerPlain[:], &headerNonce, &key)

	copy(dst[0:boxstreamOverhead], sealedHeader)
	copy(dst[boxstreamOverhead:boxstreamOverhead+len(plaintext)], bodyCiphertext)

	cb.encNonce = cb.encNonce.add(2)
	return boxstreamOverhead + len(plaintext), nil
}

// GoodbyeRecord seals and returns a ModeBoxstream terminator record: an all-zero header with no
// body. It advances the encryption nonce by one. It is an error to call it on a ModeCompact
// CryptoBox, which has no terminator record.
func (cb *CryptoBox) GoodbyeRecord() ([]byte, error) {
	if cb.mode != ModeBoxstream {
		return nil, errors.New("shs: goodbye records are only defined for ModeBoxstream")
	}
	nonce := [24]byte(cb.encNonce)
	key := cb.encKey
	var headerPlain [boxstreamHeaderPlainSize]byte
	sealed := secretbox.Seal(nil, headerPlain[:], &nonce, &key)
	cb.encNonce = cb.encNonce.add(1)
	return sealed, nil
}

// GetDecryptedSize inspects the leading bytes of a record and returns the length of the plaintext
// it carries, without consuming any input or advancing the decryption nonce. It returns
// ErrIncompleteInput if prefix is shorter than the bytes needed to determine the length
// (2 for ModeCompact, 34 for ModeBoxstream, since there the length is itself inside the
// authenticated header). A ModeBoxstream goodbye record reports a length of 0 with a nil error,
// indistinguishable at this stage from a genuine empty message; Decrypt disambiguates the two via
// ErrGoodbye.
func (cb *CryptoBox) GetDecryptedSize(prefix []byte) (int, error) {
	if cb.mode == ModeBoxstream {
		if len(prefix) < boxstreamOverhead {
			return 0, ErrIncompleteInput
		}
		headerPlain, err := cb.openHeader(prefix[:boxstreamOverhead])
		if err != nil {
			return 0, err
		}
		if isAllZero(headerPlain) {
			return 0, nil
		}
		return int(binary.BigEndian.Uint16(headerPlain[0:2])), nil
	}
	if len(prefix) < 2 {
		return 0, ErrIncompleteInput
	}
	return int(binary.LittleEndian.Uint16(prefix[0:2])), nil
}

// Decrypt opens exactly one record from the front of src, writing its plaintext to dst and
// returning the number of plaintext bytes written and the number of input bytes consumed. On any
// error other than ErrGoodbye, no bytes are consumed and dst is left unmodified; with ErrGoodbye,
// the goodbye record's bytes are reported as consumed and the decryption nonce advances by one.
//
// dst and src may alias the same underlying array, on the same terms as Encrypt.
func (cb *CryptoBox) Decrypt(dst, src []byte) (n, consumed int, err error) {
	if cb.mode == ModeBoxstream {
		return cb.decryptBoxstream(dst, src)
	}
	return cb.decryptCompact(dst, src)
}

func (cb *CryptoBox) decryptCompact(dst, src []byte) (int, int, error) {
	if len(src) < 2 {
		return 0, 0, ErrIncompleteInput
	}
	n := int(binary.LittleEndian.Uint16(src[0:2]))
	total := n + compactOverhead
	if len(src) < total {
		return 0, 0, ErrIncompleteInput
	}
	if len(dst) < n {
		return 0, 0, ErrOutTooSmall
	}

	lenBuf, tag, ciphertext := src[0:2], src[2:18], src[18:total]
	nonce := cb.decNonce
	ciphertextAndTag := append(append(make([]byte, 0, n+16), ciphertext...), tag...)
	plaintext, err := cb.decAEAD.Open(nil, nonce[:], ciphertextAndTag, lenBuf)
	if err != nil {
		return 0, 0, ErrCorruptData
	}

	copy(dst[:n], plaintext)
	cb.decNonce = cb.decNonce.add(1)
	return n, total, nil
}

func (cb *CryptoBox) decryptBoxstream(dst, src []byte) (int, int, error) {
	if len(src) < boxstreamOverhead {
		return 0, 0, ErrIncompleteInput
	}
	headerPlain, err := cb.openHeader(src[:boxstreamOverhead])
	if err != nil {
		return 0, 0, err
	}
	if isAllZero(headerPlain) {
		cb.decNonce = cb.decNonce.add(1)
		return 0, boxstreamOverhead, ErrGoodbye
	}

	n := int(binary.BigEndian.Uint16(headerPlain[0:2]))
	bodyMAC := headerPlain[2:18]
	total := boxstreamOverhead + n
	if len(src) < total {
		return 0, 0, ErrIncompleteInput
	}
	if len(dst) < n {
		return 0, 0, ErrOutTooSmall
	}

	bodyNonce := [24]byte(cb.decNonce.add(1))
	key := cb.decKey
	sealedBody := append(append(make([]byte, 0, 16+n), bodyMAC...), src[boxstreamOverhead:total]...)
	plaintext, ok := secretbox.Open(nil, sealedBody, &bodyNonce, &key)
	if !ok {
		return 0, 0, ErrCorruptData
	}

	copy(dst[:n], plaintext)
	cb.decNonce = cb.decNonce.add(2)
	return n, total, nil
}

// openHeader opens a ModeBoxstream record's 34-byte sealed header using the current decryption
// nonce, without mutating any CryptoBox state.
func (cb *CryptoBox) openHeader(sealedHeader []byte) ([]byte, error) {
	nonce := [24]byte(cb.decNonce)
	key := cb.decKey
	headerPlain, ok := secretbox.Open(nil, sealedHeader, &nonce, &key)
	if !ok {
		return nil, ErrCorruptData
	}
	return headerPlain, nil
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
