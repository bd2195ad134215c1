// Package identity provides the long-term and application identifiers used by a Secret
// Handshake: Ed25519 signing keypairs and the 32-byte application tag that gates handshake
// compatibility between peers.
package identity

import (
	"crypto/ed25519"
	"crypto/subtle"
	"io"
)

// Size is the length, in bytes, of an AppID, a PublicKey, and a SecretKeySeed.
const Size = 32

// AppID is a fixed-size tag identifying the application and protocol a handshake is for. Peers
// with different AppIDs cannot complete a handshake with each other.
type AppID [Size]byte

// NewAppID derives an AppID from s by copying at most Size bytes of s into a zero-initialized
// buffer. It performs no hashing: strings longer than Size bytes are truncated, and shorter
// strings are zero-padded on the right.
func NewAppID(s string) AppID {
	var id AppID
	copy(id[:], s)
	return id
}

// SecretKeySeed is the 32-byte seed from which a SecretKey is deterministically regenerated.
type SecretKeySeed [Size]byte

// PublicKey is the 32-byte Ed25519 public key corresponding to a SecretKey.
type PublicKey [Size]byte

// SecretKey is a long-term Ed25519 signing private key.
type SecretKey struct {
	key ed25519.PrivateKey
}

// GenerateSecretKey draws 32 bytes of entropy from rand and derives a SecretKey from them. In
// production, rand should be crypto/rand.Reader; tests may supply a deterministic source.
func GenerateSecretKey(rand io.Reader) (SecretKey, error) {
	var seed SecretKeySeed
	if _, err := io.ReadFull(rand, seed[:]); err != nil {
		return SecretKey{}, err
	}
	return NewSecretKeyFromSeed(seed), nil
}

// NewSecretKeyFromSeed deterministically regenerates the SecretKey for the given seed.
func NewSecretKeyFromSeed(seed SecretKeySeed) SecretKey {
	return SecretKey{key: ed25519.NewKeyFromSeed(seed[:])}
}

// Seed returns the 32-byte seed from which k was derived.
func (k SecretKey) Seed() SecretKeySeed {
	var seed SecretKeySeed
	copy(seed[:], k.key.Seed())
	return seed
}

// PublicKey returns the public key corresponding to k.
func (k SecretKey) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], k.key.Public().(ed25519.PublicKey))
	return pk
}

// Ed25519 returns k in the form the stdlib crypto/ed25519 and golang.org/x/crypto APIs expect.
func (k SecretKey) Ed25519() ed25519.PrivateKey {
	return k.key
}

// Equal reports whether k and other were derived from the same seed, in constant time.
func (k SecretKey) Equal(other SecretKey) bool {
	kSeed, otherSeed := k.Seed(), other.Seed()
	return subtle.ConstantTimeCompare(kSeed[:], otherSeed[:]) == 1
}

// Sign returns the Ed25519 signature of message under k.
func (k SecretKey) Sign(message []byte) []byte {
	return ed25519.Sign(k.key, message)
}

// Verify reports whether sig is a valid Ed25519 signature of message under pk.
func Verify(pk PublicKey, message, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pk[:]), message, sig)
}
