package shs_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	shs "github.com/snej/go-secrethandshake"
)

// pairedSessions returns two Sessions that a real handshake would have produced for the two
// peers of a single connection: a's encryption key is b's decryption key and vice versa, and
// likewise for the nonces.
func pairedSessions(t *testing.T) (a, b shs.Session) {
	t.Helper()
	var k1, k2 [32]byte
	if _, err := rand.Read(k1[:]); err != nil {
		t.Fatal(err)
	}
	if _, err := rand.Read(k2[:]); err != nil {
		t.Fatal(err)
	}
	var n1, n2 shs.Nonce
	if _, err := rand.Read(n1[:]); err != nil {
		t.Fatal(err)
	}
	if _, err := rand.Read(n2[:]); err != nil {
		t.Fatal(err)
	}

	a = shs.Session{EncryptionKey: k1, DecryptionKey: k2, EncryptionNonce: n1, DecryptionNonce: n2}
	b = shs.Session{EncryptionKey: k2, DecryptionKey: k1, EncryptionNonce: n2, DecryptionNonce: n1}
	return a, b
}

func TestCryptoBox_EncryptedSize(t *testing.T) {
	sessionA, _ := pairedSessions(t)
	cb, err := shs.NewCryptoBox(sessionA, shs.ModeCompact)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := cb.EncryptedSize(44), 62; got != want {
		t.Errorf("EncryptedSize(44) = %d, want %d", got, want)
	}
}

func TestCryptoBox_EncryptOutputSizing(t *testing.T) {
	plaintext := []byte("Beware the ides of March. We attack at dawn.")
	if len(plaintext) != 44 {
		t.Fatalf("fixture is %d bytes, want 44", len(plaintext))
	}

	sessionA, _ := pairedSessions(t)
	cb, err := shs.NewCryptoBox(sessionA, shs.ModeCompact)
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		dstSize int
		wantErr error
	}{
		{0, shs.ErrOutTooSmall},
		{44, shs.ErrOutTooSmall},
		{62, nil},
	} {
		dst := make([]byte, tc.dstSize)
		n, err := cb.Encrypt(dst, plaintext)
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("Encrypt(dst[%d]) error = %v, want %v", tc.dstSize, err, tc.wantErr)
		}
		if tc.wantErr == nil && n != 62 {
			t.Errorf("Encrypt(dst[%d]) = %d bytes, want 62", tc.dstSize, n)
		}
	}
}

func TestCryptoBox_GetDecryptedSize(t *testing.T) {
	plaintext := []byte("Beware the ides of March. We attack at dawn.")

	sessionA, _ := pairedSessions(t)
	cb, err := shs.NewCryptoBox(sessionA, shs.ModeCompact)
	if err != nil {
		t.Fatal(err)
	}
	record := make([]byte, cb.EncryptedSize(len(plaintext)))
	if _, err := cb.Encrypt(record, plaintext); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		prefixLen int
		wantErr   error
		wantSize  int
	}{
		{0, shs.ErrIncompleteInput, 0},
		{1, shs.ErrIncompleteInput, 0},
		{2, nil, 44},
	} {
		size, err := cb.GetDecryptedSize(record[:tc.prefixLen])
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("GetDecryptedSize(record[:%d]) error = %v, want %v", tc.prefixLen, err, tc.wantErr)
		}
		if size != tc.wantSize {
			t.Errorf("GetDecryptedSize(record[:%d]) = %d, want %d", tc.prefixLen, size, tc.wantSize)
		}
	}
}

func TestCryptoBox_DecryptInputSizing(t *testing.T) {
	plaintext := []byte("Beware the ides of March. We attack at dawn.")

	sessionA, sessionB := pairedSessions(t)
	encBox, err := shs.NewCryptoBox(sessionA, shs.ModeCompact)
	if err != nil {
		t.Fatal(err)
	}
	record := make([]byte, encBox.EncryptedSize(len(plaintext)))
	if _, err := encBox.Encrypt(record, plaintext); err != nil {
		t.Fatal(err)
	}

	for _, srcLen := range []int{0, 2, 61} {
		decBox, err := shs.NewCryptoBox(sessionB, shs.ModeCompact)
		if err != nil {
			t.Fatal(err)
		}
		dst := make([]byte, len(plaintext))
		if _, _, err := decBox.Decrypt(dst, record[:srcLen]); !errors.Is(err, shs.ErrIncompleteInput) {
			t.Errorf("Decrypt(src[:%d]) error = %v, want ErrIncompleteInput", srcLen, err)
		}
	}

	decBox, err := shs.NewCryptoBox(sessionB, shs.ModeCompact)
	if err != nil {
		t.Fatal(err)
	}
	dst := make([]byte, len(plaintext))
	n, consumed, err := decBox.Decrypt(dst, record)
	if err != nil {
		t.Fatalf("Decrypt(full record) = %v", err)
	}
	if consumed != 62 {
		t.Errorf("Decrypt consumed %d bytes, want 62", consumed)
	}
	if !bytes.Equal(dst[:n], plaintext) {
		t.Errorf("Decrypt(Encrypt(m)) = %q, want %q", dst[:n], plaintext)
	}
}

func TestCryptoBox_OverlappingBuffers(t *testing.T) {
	plaintext := []byte("Beware the ides of March. We attack at dawn.")

	sessionA, sessionB := pairedSessions(t)
	encBox, err := shs.NewCryptoBox(sessionA, shs.ModeCompact)
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 256)
	copy(buf, plaintext)
	n, err := encBox.Encrypt(buf, buf[:len(plaintext)])
	if err != nil {
		t.Fatalf("in-place Encrypt: %v", err)
	}

	decBox, err := shs.NewCryptoBox(sessionB, shs.ModeCompact)
	if err != nil {
		t.Fatal(err)
	}
	plain, consumed, err := decBox.Decrypt(buf, buf[:n])
	if err != nil {
		t.Fatalf("in-place Decrypt: %v", err)
	}
	if consumed != n {
		t.Errorf("Decrypt consumed %d bytes, want %d", consumed, n)
	}
	if !bytes.Equal(buf[:plain], plaintext) {
		t.Errorf("round trip through overlapping buffer = %q, want %q", buf[:plain], plaintext)
	}
}

func TestCryptoBox_Boxstream(t *testing.T) {
	plaintext := []byte("Beware the ides of March. We attack at dawn.")

	sessionA, sessionB := pairedSessions(t)
	encBox, err := shs.NewCryptoBox(sessionA, shs.ModeBoxstream)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := encBox.EncryptedSize(len(plaintext)), len(plaintext)+34; got != want {
		t.Errorf("EncryptedSize(%d) = %d, want %d", len(plaintext), got, want)
	}

	record := make([]byte, encBox.EncryptedSize(len(plaintext)))
	if _, err := encBox.Encrypt(record, plaintext); err != nil {
		t.Fatal(err)
	}

	decBox, err := shs.NewCryptoBox(sessionB, shs.ModeBoxstream)
	if err != nil {
		t.Fatal(err)
	}
	dst := make([]byte, len(plaintext))
	n, consumed, err := decBox.Decrypt(dst, record)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if consumed != len(record) {
		t.Errorf("Decrypt consumed %d bytes, want %d", consumed, len(record))
	}
	if !bytes.Equal(dst[:n], plaintext) {
		t.Errorf("Decrypt(Encrypt(m)) = %q, want %q", dst[:n], plaintext)
	}

	goodbye, err := encBox.GoodbyeRecord()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := decBox.Decrypt(dst, goodbye); !errors.Is(err, shs.ErrGoodbye) {
		t.Errorf("Decrypt(goodbye) error = %v, want ErrGoodbye", err)
	}
}

func TestCryptoBox_CorruptRecordFails(t *testing.T) {
	plaintext := []byte("Beware the ides of March. We attack at dawn.")

	sessionA, sessionB := pairedSessions(t)
	encBox, err := shs.NewCryptoBox(sessionA, shs.ModeCompact)
	if err != nil {
		t.Fatal(err)
	}
	record := make([]byte, encBox.EncryptedSize(len(plaintext)))
	if _, err := encBox.Encrypt(record, plaintext); err != nil {
		t.Fatal(err)
	}
	record[20] ^= 0xFF // flip every bit of one ciphertext byte

	decBox, err := shs.NewCryptoBox(sessionB, shs.ModeCompact)
	if err != nil {
		t.Fatal(err)
	}
	dst := make([]byte, len(plaintext))
	if _, _, err := decBox.Decrypt(dst, record); !errors.Is(err, shs.ErrCorruptData) {
		t.Errorf("Decrypt(corrupt record) error = %v, want ErrCorruptData", err)
	}
}
