package shs

import "github.com/snej/go-secrethandshake/identity"

// NonceSize is the length, in bytes, of a Nonce.
const NonceSize = 24

// Nonce is a big-endian counter used by a CryptoBox to derive per-record AEAD nonces. Each
// direction of a Session owns an independent Nonce; it advances by exactly one per record sealed
// or opened in ModeCompact, and by two in ModeBoxstream (one for the record's header, one for its
// body), except that a ModeBoxstream goodbye record, which has no body, advances it by one.
type Nonce [NonceSize]byte

// add returns a copy of n advanced by delta, treating n as a big-endian unsigned integer.
func (n Nonce) add(delta uint64) Nonce {
	out := n
	carry := delta
	for i := len(out) - 1; i >= 0 && carry > 0; i-- {
		sum := uint64(out[i]) + carry
		out[i] = byte(sum)
		carry = sum >> 8
	}
	return out
}

// Session is the result of a successful Secret Handshake: the symmetric keys and initial nonces
// for each direction, plus the authenticated long-term public key of the peer.
//
// A Session is a plain value. Constructing a CryptoBox or stream from it copies the nonces into
// state the new object owns independently; mutating one CryptoBox's nonces never affects another
// built from the same Session.
type Session struct {
	EncryptionKey   [32]byte
	DecryptionKey   [32]byte
	EncryptionNonce Nonce
	DecryptionNonce Nonce
	PeerPublicKey   identity.PublicKey
}
