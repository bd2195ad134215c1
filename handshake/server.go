package handshake

import (
	"crypto/hmac"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/snej/go-secrethandshake"
	"github.com/snej/go-secrethandshake/identity"
	"github.com/snej/go-secrethandshake/internal/edconv"
)

const (
	stepServerRecvChallenge step = iota
	stepServerSendChallenge
	stepServerRecvAuth
	stepServerSendAck
	stepServerDone
)

// ServerHandshake runs the server side of a Secret Handshake. Unlike ClientHandshake, it does not
// need to know the client's long-term public key in advance: the client reveals and proves it
// during the exchange, and Session.PeerPublicKey carries it to the caller.
//
// A ServerHandshake is not safe for concurrent use. Its methods must be called in the sequence
// Receive, Send, SendCompleted, Receive, Send, SendCompleted, Session.
type ServerHandshake struct {
	appID  identity.AppID
	ownKey identity.SecretKey

	step   step
	failed bool
	drawn  bool

	ephScalar, ephPublic [32]byte
	peerEphPublic        [32]byte
	peerLongTermPublic   identity.PublicKey

	sharedAB, sharedAcapB, sharedSecret [32]byte

	pendingOut []byte
}

// NewServerHandshake starts a server handshake for appID, authenticating as ownKey. It generates
// its ephemeral keypair immediately, but produces nothing to send until the client's challenge
// has been received.
func NewServerHandshake(appID identity.AppID, ownKey identity.SecretKey, rand io.Reader) (*ServerHandshake, error) {
	ephScalar, ephPublic, err := generateEphemeral(rand)
	if err != nil {
		return nil, err
	}
	return &ServerHandshake{
		appID:     appID,
		ownKey:    ownKey,
		ephScalar: ephScalar,
		ephPublic: ephPublic,
		step:      stepServerRecvChallenge,
	}, nil
}

// BytesToRead returns the number of bytes Receive needs next, or 0 if it is the server's turn to
// send (see Send) or the handshake has finished or failed.
func (s *ServerHandshake) BytesToRead() int {
	switch {
	case s.failed:
		return 0
	case s.step == stepServerRecvChallenge:
		return challengeSize
	case s.step == stepServerRecvAuth:
		return clientAuthSize
	default:
		return 0
	}
}

// Receive processes a message from the client. b must be exactly BytesToRead bytes long.
func (s *ServerHandshake) Receive(b []byte) error {
	if s.failed {
		return ErrProtocolError
	}
	switch s.step {
	case stepServerRecvChallenge:
		return s.receiveChallenge(b)
	case stepServerRecvAuth:
		return s.receiveAuth(b)
	default:
		return ErrProtocolError
	}
}

// Send returns the next message the server must transmit, or nil if it is not the server's turn
// to send. The caller must call SendCompleted once the bytes have actually been written out.
func (s *ServerHandshake) Send() []byte {
	if s.failed || (s.step != stepServerSendChallenge && s.step != stepServerSendAck) {
		return nil
	}
	return s.pendingOut
}

// SendCompleted advances the handshake past the message most recently returned by Send.
func (s *ServerHandshake) SendCompleted() {
	switch s.step {
	case stepServerSendChallenge:
		s.pendingOut = nil
		s.step = stepServerRecvAuth
	case stepServerSendAck:
		s.pendingOut = nil
		s.step = stepServerDone
	}
}

func (s *ServerHandshake) receiveChallenge(b []byte) error {
	if len(b) != challengeSize {
		s.failed = true
		return ErrProtocolError
	}
	tag, clientEph := b[:32], b[32:64]
	want := hmacTag(s.appID[:], clientEph)
	if !hmac.Equal(tag, want[:]) {
		s.failed = true
		return ErrProtocolError
	}
	copy(s.peerEphPublic[:], clientEph)

	sharedAB, err := x25519(s.ephScalar, s.peerEphPublic)
	if err != nil {
		s.failed = true
		return ErrProtocolError
	}
	s.sharedAB = sharedAB

	tagOut := hmacTag(s.appID[:], s.ephPublic[:])
	s.pendingOut = concat(tagOut[:], s.ephPublic[:])
	s.step = stepServerSendChallenge
	return nil
}

func (s *ServerHandshake) receiveAuth(b []byte) error {
	if len(b) != clientAuthSize {
		s.failed = true
		return ErrProtocolError
	}
	hashAB := hash(s.sharedAB[:])

	ownLongTermScalar := edconv.SecretKeyToX25519(s.ownKey)
	sharedAcapB, err := x25519(ownLongTermScalar, s.peerEphPublic)
	if err != nil {
		s.failed = true
		return ErrProtocolError
	}
	s.sharedAcapB = sharedAcapB
	boxKey := hash(s.appID[:], s.sharedAB[:], s.sharedAcapB[:])

	plain, ok := secretbox.Open(nil, b, &zeroNonce, &boxKey)
	if !ok {
		s.failed = true
		return ErrProtocolError
	}
	if len(plain) != clientAuthSize-16 {
		s.failed = true
		return ErrProtocolError
	}
	sig, clientLongTermPublicBytes := plain[:64], plain[64:96]
	var clientLongTermPublic identity.PublicKey
	copy(clientLongTermPublic[:], clientLongTermPublicBytes)

	ownLongTermPublic := s.ownKey.PublicKey()
	msg := concat(s.appID[:], ownLongTermPublic[:], hashAB[:])
	if !identity.Verify(clientLongTermPublic, msg, sig) {
		s.failed = true
		return ErrProtocolError
	}
	s.peerLongTermPublic = clientLongTermPublic

	clientLongTermX, err := edconv.PublicKeyToX25519(clientLongTermPublic)
	if err != nil {
		s.failed = true
		return ErrProtocolError
	}
	sharedAb, err := x25519(s.ephScalar, clientLongTermX)
	if err != nil {
		s.failed = true
		return ErrProtocolError
	}

	s.sharedSecret = hash(s.appID[:], s.sharedAB[:], s.sharedAcapB[:], sharedAb[:])

	ackKey := s.sharedSecret
	ackSig := s.ownKey.Sign(concat(s.appID[:], plain, hashAB[:]))
	s.pendingOut = secretbox.Seal(nil, ackSig, &zeroNonce, &ackKey)
	s.step = stepServerSendAck
	return nil
}

// Failed reports whether the handshake has permanently failed: any further call other than
// Failed will return an error (ErrProtocolError from Receive, ErrNotFinished from Session) or have
// no effect.
func (s *ServerHandshake) Failed() bool { return s.failed }

// Finished reports whether the handshake completed successfully and a Session is available.
func (s *ServerHandshake) Finished() bool { return s.step == stepServerDone && !s.failed }

// Session returns the derived Session. It may be called only once, after Finished reports true.
func (s *ServerHandshake) Session() (shs.Session, error) {
	if !s.Finished() {
		return shs.Session{}, ErrNotFinished
	}
	if s.drawn {
		return shs.Session{}, ErrSessionAlreadyDrawn
	}
	s.drawn = true
	return deriveSession(s.appID, s.sharedSecret, s.ownKey.PublicKey(), s.peerLongTermPublic, s.ephPublic, s.peerEphPublic), nil
}
