package identity_test

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/snej/go-secrethandshake/identity"
)

func TestNewAppID(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []byte
	}{
		{"empty", "", make([]byte, 32)},
		{"short", "ABCDEF", append([]byte("ABCDEF"), make([]byte, 26)...)},
		{"exact", strings.Repeat("x", 32), []byte(strings.Repeat("x", 32))},
		{"long", strings.Repeat("y", 44), []byte(strings.Repeat("y", 32))},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			id := identity.NewAppID(c.in)
			if got, want := id[:], c.want; !bytes.Equal(got, want) {
				t.Errorf("NewAppID(%q) = %x, want %x", c.in, got, want)
			}
		})
	}
}

func TestSecretKey_SeedRoundTrip(t *testing.T) {
	sk, err := identity.GenerateSecretKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	rebuilt := identity.NewSecretKeyFromSeed(sk.Seed())
	if got, want := rebuilt.PublicKey(), sk.PublicKey(); got != want {
		t.Errorf("PublicKey() after seed round-trip = %x, want %x", got, want)
	}
	if !rebuilt.Equal(sk) {
		t.Error("rebuilt secret key should equal the original")
	}

	msg := []byte("Beware the ides of March.")
	sig := rebuilt.Sign(msg)
	if !identity.Verify(sk.PublicKey(), msg, sig) {
		t.Error("signature from rebuilt key should verify against original public key")
	}
}

func TestSecretKey_Equal(t *testing.T) {
	sk1, err := identity.GenerateSecretKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	sk2, err := identity.GenerateSecretKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	if sk1.Equal(sk2) {
		t.Error("independently generated keys should not be equal")
	}
	if !sk1.Equal(sk1) {
		t.Error("a key should equal itself")
	}
}
