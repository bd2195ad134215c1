// Package handshake implements the Secret Handshake mutual-authentication protocol: a
// four-message exchange between a client and a server, each holding a long-term Ed25519 signing
// keypair, that authenticates both parties to each other and derives a shs.Session.
//
// The client must know the server's long-term public key in advance. The server accepts any
// client whose signature verifies; callers that want an allowlist check the returned Session's
// PeerPublicKey themselves.
package handshake

import (
	"crypto/hmac"
	"crypto/sha512"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/snej/go-secrethandshake"
	"github.com/snej/go-secrethandshake/identity"
	"github.com/snej/go-secrethandshake/internal/edconv"
)

const (
	challengeSize  = 32 + 32 // HMAC tag ‖ ephemeral public key
	clientAuthSize = 96 + 16 // (signature ‖ long-term public key) boxed
	serverAckSize  = 64 + 16 // signature boxed
)

// ErrProtocolError is returned by Receive when the peer's message fails to authenticate: a
// challenge's HMAC tag is wrong, a box fails to open, or an embedded signature doesn't verify. It
// is fatal: the Handshake that returned it must be discarded.
var ErrProtocolError = errors.New("handshake: protocol error")

// ErrNotFinished is returned by Session when the handshake has not yet reached Finished.
var ErrNotFinished = errors.New("handshake: not finished")

// ErrSessionAlreadyDrawn is returned by a second call to Session on the same handshake. A Session
// carries key material meant to be taken exactly once.
var ErrSessionAlreadyDrawn = errors.New("handshake: session already drawn")

var zeroNonce [24]byte

// hash is the handshake's H(x): the first 32 bytes of SHA-512(x).
func hash(parts ...[]byte) [32]byte {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// hmacTag returns the first 32 bytes of HMAC-SHA-512(key, msg).
func hmacTag(key, msg []byte) [32]byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(msg)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

func generateEphemeral(rand io.Reader) (scalar, public [32]byte, err error) {
	if _, err = io.ReadFull(rand, scalar[:]); err != nil {
		return
	}
	p, err := curve25519.X25519(scalar[:], curve25519.Basepoint)
	if err != nil {
		return
	}
	copy(public[:], p)
	return
}

func x25519(scalar, point [32]byte) ([32]byte, error) {
	s, err := curve25519.X25519(scalar[:], point[:])
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], s)
	return out, nil
}

func deriveSession(appID identity.AppID, sharedSecret [32]byte, ownLongTerm, peerLongTerm identity.PublicKey, ownEph, peerEph [32]byte) shs.Session {
	encKey := hash(sharedSecret[:], peerLongTerm[:])
	decKey := hash(sharedSecret[:], ownLongTerm[:])
	encNonce := hmacTag(appID[:], peerEph[:])
	decNonce := hmacTag(appID[:], ownEph[:])

	var s shs.Session
	s.EncryptionKey = encKey
	s.DecryptionKey = decKey
	copy(s.EncryptionNonce[:], encNonce[:shs.NonceSize])
	copy(s.DecryptionNonce[:], decNonce[:shs.NonceSize])
	s.PeerPublicKey = peerLongTerm
	return s
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// step identifies a handshake's position in the four-message exchange.
type step int

const (
	stepClientSendChallenge step = iota
	stepClientRecvChallenge
	stepClientSendAuth
	stepClientRecvAck
	stepDone
)

// ClientHandshake runs the client side of a Secret Handshake: the party that knows the server's
// long-term public key in advance.
//
// A ClientHandshake is not safe for concurrent use. Its methods must be called in the sequence
// Send, SendCompleted, Receive, Send, SendCompleted, Receive, Session — BytesToRead reports how
// many bytes the next Receive needs, and is zero whenever it is the client's turn to send.
type ClientHandshake struct {
	appID        identity.AppID
	ownKey       identity.SecretKey
	serverPublic identity.PublicKey

	step   step
	failed bool
	drawn  bool

	ephScalar, ephPublic [32]byte
	peerEphPublic        [32]byte

	sharedAB, sharedAb, sharedSecret [32]byte

	pendingOut []byte
}

// NewClientHandshake starts a client handshake for appID, authenticating as ownKey and expecting
// the server to prove knowledge of serverPublic's secret key.
func NewClientHandshake(appID identity.AppID, ownKey identity.SecretKey, serverPublic identity.PublicKey, rand io.Reader) (*ClientHandshake, error) {
	ephScalar, ephPublic, err := generateEphemeral(rand)
	if err != nil {
		return nil, err
	}
	c := &ClientHandshake{
		appID:        appID,
		ownKey:       ownKey,
		serverPublic: serverPublic,
		ephScalar:    ephScalar,
		ephPublic:    ephPublic,
	}
	tag := hmacTag(appID[:], ephPublic[:])
	c.pendingOut = concat(tag[:], ephPublic[:])
	return c, nil
}

// Send returns the next message the client must transmit, or nil if it is not the client's turn
// to send. The caller must call SendCompleted once the bytes have actually been written out.
func (c *ClientHandshake) Send() []byte {
	if c.failed || (c.step != stepClientSendChallenge && c.step != stepClientSendAuth) {
		return nil
	}
	return c.pendingOut
}

// SendCompleted advances the handshake past the message most recently returned by Send.
func (c *ClientHandshake) SendCompleted() {
	switch c.step {
	case stepClientSendChallenge:
		c.pendingOut = nil
		c.step = stepClientRecvChallenge
	case stepClientSendAuth:
		c.pendingOut = nil
		c.step = stepClientRecvAck
	}
}

// BytesToRead returns the number of bytes Receive needs next, or 0 if it is the client's turn to
// send (see Send) or the handshake has finished or failed.
func (c *ClientHandshake) BytesToRead() int {
	switch {
	case c.failed:
		return 0
	case c.step == stepClientRecvChallenge:
		return challengeSize
	case c.step == stepClientRecvAck:
		return serverAckSize
	default:
		return 0
	}
}

// Receive processes a message from the server. b must be exactly BytesToRead bytes long.
func (c *ClientHandshake) Receive(b []byte) error {
	if c.failed {
		return ErrProtocolError
	}
	switch c.step {
	case stepClientRecvChallenge:
		return c.receiveChallenge(b)
	case stepClientRecvAck:
		return c.receiveAck(b)
	default:
		return ErrProtocolError
	}
}

func (c *ClientHandshake) receiveChallenge(b []byte) error {
	if len(b) != challengeSize {
		c.failed = true
		return ErrProtocolError
	}
	tag, serverEph := b[:32], b[32:64]
	want := hmacTag(c.appID[:], serverEph)
	if !hmac.Equal(tag, want[:]) {
		c.failed = true
		return ErrProtocolError
	}
	copy(c.peerEphPublic[:], serverEph)

	sharedAB, err := x25519(c.ephScalar, c.peerEphPublic)
	if err != nil {
		c.failed = true
		return ErrProtocolError
	}
	c.sharedAB = sharedAB
	hashAB := hash(c.sharedAB[:])

	serverLongTermX, err := edconv.PublicKeyToX25519(c.serverPublic)
	if err != nil {
		c.failed = true
		return ErrProtocolError
	}
	sharedAcapB, err := x25519(c.ephScalar, serverLongTermX)
	if err != nil {
		c.failed = true
		return ErrProtocolError
	}
	ownLongTermScalar := edconv.SecretKeyToX25519(c.ownKey)
	sharedAb, err := x25519(ownLongTermScalar, c.peerEphPublic)
	if err != nil {
		c.failed = true
		return ErrProtocolError
	}
	c.sharedAb = sharedAb

	ownLongTermPublic := c.ownKey.PublicKey()
	sig := c.ownKey.Sign(concat(c.appID[:], c.serverPublic[:], hashAB[:]))
	plain := concat(sig, ownLongTermPublic[:])

	boxKey := hash(c.appID[:], c.sharedAB[:], sharedAcapB[:])
	c.pendingOut = secretbox.Seal(nil, plain, &zeroNonce, &boxKey)
	c.step = stepClientSendAuth
	return nil
}

func (c *ClientHandshake) receiveAck(b []byte) error {
	if len(b) != serverAckSize {
		c.failed = true
		return ErrProtocolError
	}
	hashAB := hash(c.sharedAB[:])
	serverLongTermX, err := edconv.PublicKeyToX25519(c.serverPublic)
	if err != nil {
		c.failed = true
		return ErrProtocolError
	}
	sharedAcapB, err := x25519(c.ephScalar, serverLongTermX)
	if err != nil {
		c.failed = true
		return ErrProtocolError
	}
	boxKey := hash(c.appID[:], c.sharedAB[:], sharedAcapB[:], c.sharedAb[:])

	sig, ok := secretbox.Open(nil, b, &zeroNonce, &boxKey)
	if !ok {
		c.failed = true
		return ErrProtocolError
	}

	ownLongTermPublic := c.ownKey.PublicKey()
	clientAuthPlain := concat(
		c.ownKey.Sign(concat(c.appID[:], c.serverPublic[:], hashAB[:])),
		ownLongTermPublic[:],
	)
	msg := concat(c.appID[:], clientAuthPlain, hashAB[:])
	if !identity.Verify(c.serverPublic, msg, sig) {
		c.failed = true
		return ErrProtocolError
	}

	c.sharedSecret = hash(c.appID[:], c.sharedAB[:], sharedAcapB[:], c.sharedAb[:])
	c.step = stepDone
	return nil
}

// Failed reports whether the handshake has permanently failed: any further call other than
// Failed will return an error (ErrProtocolError from Receive, ErrNotFinished from Session) or have
// no effect.
func (c *ClientHandshake) Failed() bool { return c.failed }

// Finished reports whether the handshake completed successfully and a Session is available.
func (c *ClientHandshake) Finished() bool { return c.step == stepDone && !c.failed }

// Session returns the derived Session. It may be called only once, after Finished reports true;
// a second call returns an error, since the Session's secret keys should not be copied out twice.
func (c *ClientHandshake) Session() (shs.Session, error) {
	if !c.Finished() {
		return shs.Session{}, ErrNotFinished
	}
	if c.drawn {
		return shs.Session{}, ErrSessionAlreadyDrawn
	}
	c.drawn = true
	return deriveSession(c.appID, c.sharedSecret, c.ownKey.PublicKey(), c.serverPublic, c.ephPublic, c.peerEphPublic), nil
}
