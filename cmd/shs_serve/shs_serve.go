// Command shs_serve listens for connections, performs a Secret Handshake with each, and echoes
// back whatever encrypted data it receives, authenticated and re-encrypted under the session.
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

	shs "github.com/snej/go-secrethandshake"
	"github.com/snej/go-secrethandshake/handshake"
	"github.com/snej/go-secrethandshake/identity"
)

func main() {
	var (
		addr      = flag.String("addr", "127.0.0.1:7070", "the address to listen on")
		appIDFlag = flag.String("app-id", "shs_dial", "the application identifier shared with clients")
	)
	flag.Parse()

	log := slog.New(slog.Default().Handler())

	ownKey, err := identity.GenerateSecretKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	ownPub := ownKey.PublicKey()
	log.Info("starting", "pk", hex.EncodeToString(ownPub[:]))

	appID := identity.NewAppID(*appIDFlag)

	listenConfig := new(net.ListenConfig)
	listener, err := listenConfig.Listen(context.Background(), "tcp", *addr)
	if err != nil {
		panic(err)
	}
	log.Info("listening", "addr", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Error("failed to accept connection", "err", err)
			continue
		}

		go func() {
			log.Info("accepted new connection", "addr", conn.RemoteAddr())
			defer func() {
				_ = conn.Close()
				log.Info("closed connection", "addr", conn.RemoteAddr())
			}()

			server, err := handshake.NewServerHandshake(appID, ownKey, rand.Reader)
			if err != nil {
				log.Error("error starting handshake", "err", err)
				return
			}
			session, err := runServer(conn, server)
			if err != nil {
				log.Error("handshake failed", "err", err)
				return
			}
			log.Info("handshake established", "peer", hex.EncodeToString(session.PeerPublicKey[:]))

			echo(conn, session, log)
		}()
	}
}

// runServer drives server through the four-message handshake over conn, returning the derived
// Session on success.
func runServer(conn net.Conn, server *handshake.ServerHandshake) (shs.Session, error) {
	for !server.Finished() {
		if n := server.BytesToRead(); n > 0 {
			in := make([]byte, n)
			if _, err := io.ReadFull(conn, in); err != nil {
				return shs.Session{}, err
			}
			if err := server.Receive(in); err != nil {
				return shs.Session{}, err
			}
			continue
		}
		if out := server.Send(); len(out) > 0 {
			if _, err := conn.Write(out); err != nil {
				return shs.Session{}, err
			}
			server.SendCompleted()
			continue
		}
		return shs.Session{}, errors.New("shs_serve: handshake stalled")
	}
	return server.Session()
}

// echo decrypts whatever conn sends, under session, and immediately re-seals and writes it back.
func echo(conn net.Conn, session shs.Session, log *slog.Logger) {
	decBox, err := shs.NewCryptoBox(session, shs.ModeBoxstream)
	if err != nil {
		log.Error("error building decryption box", "err", err)
		return
	}
	encBox, err := shs.NewCryptoBox(session, shs.ModeBoxstream)
	if err != nil {
		log.Error("error building encryption box", "err", err)
		return
	}
	dec := shs.NewDecryptionStream(decBox)
	enc := shs.NewEncryptionStream(encBox)

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if ok := dec.Push(buf[:n]); !ok {
				log.Error("corrupt or forged record")
				return
			}
			plain := make([]byte, dec.BytesAvailable())
			dec.Pull(plain)
			if len(plain) > 0 {
				if pushErr := enc.Push(plain); pushErr != nil {
					log.Error("error sealing echo", "err", pushErr)
					return
				}
				sealed := make([]byte, enc.BytesAvailable())
				enc.Pull(sealed)
				if _, writeErr := conn.Write(sealed); writeErr != nil {
					log.Error("error writing echo", "err", writeErr)
					return
				}
			}
			if dec.Closed() {
				_ = enc.Close()
				sealed := make([]byte, enc.BytesAvailable())
				enc.Pull(sealed)
				if len(sealed) > 0 {
					_, _ = conn.Write(sealed)
				}
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Error("error reading connection", "err", err)
			}
			return
		}
	}
}
