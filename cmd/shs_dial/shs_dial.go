// Command shs_dial connects to a shs_serve instance, performs a Secret Handshake, then relays
// stdin to the connection and the connection to stdout, both encrypted.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net"
	"os"

	shs "github.com/snej/go-secrethandshake"
	"github.com/snej/go-secrethandshake/handshake"
	"github.com/snej/go-secrethandshake/identity"
)

func main() {
	var (
		connect   = flag.String("connect", "127.0.0.1:7070", "the address to connect to")
		appIDFlag = flag.String("app-id", "shs_dial", "the application identifier shared with the server")
		serverKey = flag.String("server-key", "", "the server's long-term public key, hex-encoded (required)")
	)
	flag.Parse()

	log := slog.New(slog.Default().Handler())

	if *serverKey == "" {
		log.Error("-server-key is required")
		os.Exit(1)
	}
	serverPub, err := decodePublicKey(*serverKey)
	if err != nil {
		log.Error("invalid -server-key", "err", err)
		os.Exit(1)
	}

	ownKey, err := identity.GenerateSecretKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	ownPub := ownKey.PublicKey()
	log.Info("starting", "pk", hex.EncodeToString(ownPub[:]))

	dialer := new(net.Dialer)
	conn, err := dialer.DialContext(context.Background(), "tcp", *connect)
	if err != nil {
		log.Error("error connecting", "err", err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	appID := identity.NewAppID(*appIDFlag)
	client, err := handshake.NewClientHandshake(appID, ownKey, serverPub, rand.Reader)
	if err != nil {
		panic(err)
	}
	session, err := runClient(conn, client)
	if err != nil {
		log.Error("handshake failed", "err", err)
		os.Exit(1)
	}
	log.Info("handshake established", "peer", hex.EncodeToString(session.PeerPublicKey[:]))

	encBox, err := shs.NewCryptoBox(session, shs.ModeBoxstream)
	if err != nil {
		panic(err)
	}
	decBox, err := shs.NewCryptoBox(session, shs.ModeBoxstream)
	if err != nil {
		panic(err)
	}

	enc := shs.NewEncryptionStream(encBox)
	dec := shs.NewDecryptionStream(decBox)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := pumpPlaintextToStream(os.Stdin, conn, enc); err != nil && !errors.Is(err, io.EOF) {
			log.Error("error reading stdin", "err", err)
		}
		if err := enc.Close(); err == nil {
			goodbye := make([]byte, enc.BytesAvailable())
			enc.Pull(goodbye)
			_, _ = conn.Write(goodbye)
		}
		cancel()
	}()
	go func() {
		if err := pumpStreamToPlaintext(conn, os.Stdout, dec); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Error("error reading connection", "err", err)
		}
		cancel()
	}()
	<-ctx.Done()
}

// runClient drives client through the four-message handshake over conn, returning the derived
// Session on success.
func runClient(conn net.Conn, client *handshake.ClientHandshake) (shs.Session, error) {
	for !client.Finished() {
		if out := client.Send(); len(out) > 0 {
			if _, err := conn.Write(out); err != nil {
				return shs.Session{}, err
			}
			client.SendCompleted()
			continue
		}
		if n := client.BytesToRead(); n > 0 {
			in := make([]byte, n)
			if _, err := io.ReadFull(conn, in); err != nil {
				return shs.Session{}, err
			}
			if err := client.Receive(in); err != nil {
				return shs.Session{}, err
			}
			continue
		}
		return shs.Session{}, errors.New("shs_dial: handshake stalled")
	}
	return client.Session()
}

// pumpPlaintextToStream reads from src in fixed-size chunks, seals each as a record via enc, and
// writes the sealed bytes to dst, until src returns an error.
func pumpPlaintextToStream(src io.Reader, dst io.Writer, enc *shs.EncryptionStream) error {
	buf := make([]byte, 4096)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if pushErr := enc.Push(buf[:n]); pushErr != nil {
				return pushErr
			}
			sealed := make([]byte, enc.BytesAvailable())
			enc.Pull(sealed)
			if _, writeErr := dst.Write(sealed); writeErr != nil {
				return writeErr
			}
		}
		if err != nil {
			return err
		}
	}
}

// pumpStreamToPlaintext reads raw bytes from src, pushes them into dec, and writes any newly
// decoded plaintext to dst, until src returns an error or dec rejects a forged record.
func pumpStreamToPlaintext(src io.Reader, dst io.Writer, dec *shs.DecryptionStream) error {
	buf := make([]byte, 4096)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if ok := dec.Push(buf[:n]); !ok {
				return errors.New("shs_dial: corrupt or forged record")
			}
			plain := make([]byte, dec.BytesAvailable())
			dec.Pull(plain)
			if len(plain) > 0 {
				if _, writeErr := dst.Write(plain); writeErr != nil {
					return writeErr
				}
			}
		}
		if err != nil {
			return err
		}
	}
}

func decodePublicKey(s string) (identity.PublicKey, error) {
	var pk identity.PublicKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return pk, err
	}
	if len(b) != len(pk) {
		return pk, errors.New("public key must be 32 bytes")
	}
	copy(pk[:], b)
	return pk, nil
}
