// Package edconv converts Ed25519 signing keys into their birationally-equivalent Curve25519
// (X25519) form, so that a single long-term signing keypair can also participate in the
// Diffie-Hellman lattice a Secret Handshake requires.
//
// This is the same conversion libsodium exposes as crypto_sign_ed25519_{sk,pk}_to_curve25519, and
// the one age uses to support ssh-ed25519 recipients.
package edconv

import (
	"crypto/sha512"
	"errors"

	"filippo.io/edwards25519"

	"github.com/snej/go-secrethandshake/identity"
)

// ErrInvalidPoint is returned when a public key does not decode to a valid Ed25519 point.
var ErrInvalidPoint = errors.New("edconv: invalid Ed25519 public key")

// SecretKeyToX25519 derives the X25519 private scalar corresponding to sk.
//
// Ed25519 itself derives its signing scalar by hashing the seed with SHA-512 and taking the
// first 32 bytes; that scalar is, by construction, also a valid X25519 private key, since
// golang.org/x/crypto/curve25519.X25519 clamps its scalar argument per RFC 7748 before use.
func SecretKeyToX25519(sk identity.SecretKey) [32]byte {
	seed := sk.Seed()
	h := sha512.Sum512(seed[:])
	var scalar [32]byte
	copy(scalar[:], h[:32])
	return scalar
}

// PublicKeyToX25519 derives the X25519 public key (Montgomery u-coordinate) corresponding to pk.
func PublicKeyToX25519(pk identity.PublicKey) ([32]byte, error) {
	p, err := new(edwards25519.Point).SetBytes(pk[:])
	if err != nil {
		return [32]byte{}, ErrInvalidPoint
	}
	var u [32]byte
	copy(u[:], p.BytesMontgomery())
	return u, nil
}
