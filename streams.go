package shs

import "errors"

// EncryptionStream turns arbitrary plaintext writes into a stream of CryptoBox records.
//
// An EncryptionStream is not safe for concurrent use.
type EncryptionStream struct {
	box      *CryptoBox
	pending  []byte
	outbound []byte
	closed   bool
}

// NewEncryptionStream returns an EncryptionStream that seals records with box.
func NewEncryptionStream(box *CryptoBox) *EncryptionStream {
	return &EncryptionStream{box: box}
}

// PushPartial appends b to the pending plaintext buffer without producing ciphertext.
// BytesAvailable is unaffected until the next Flush.
func (s *EncryptionStream) PushPartial(b []byte) error {
	if s.closed {
		return ErrStreamClosed
	}
	s.pending = append(s.pending, b...)
	return nil
}

// Push is PushPartial followed by Flush.
func (s *EncryptionStream) Push(b []byte) error {
	if err := s.PushPartial(b); err != nil {
		return err
	}
	return s.Flush()
}

// Flush seals the pending plaintext buffer as a single record and appends it to the outbound
// buffer. It is a no-op if the pending buffer is empty.
func (s *EncryptionStream) Flush() error {
	if s.closed {
		return ErrStreamClosed
	}
	if len(s.pending) == 0 {
		return nil
	}

	record := make([]byte, s.box.EncryptedSize(len(s.pending)))
	n, err := s.box.Encrypt(record, s.pending)
	if err != nil {
		return err
	}

	s.outbound = append(s.outbound, record[:n]...)
	s.pending = s.pending[:0]
	return nil
}

// BytesAvailable returns the number of sealed bytes ready to transmit.
func (s *EncryptionStream) BytesAvailable() int {
	return len(s.outbound)
}

// Pull copies up to len(dst) bytes of sealed output into dst, consuming them from the outbound
// buffer, and returns the number of bytes copied.
func (s *EncryptionStream) Pull(dst []byte) int {
	n := copy(dst, s.outbound)
	s.outbound = s.outbound[n:]
	return n
}

// Close flushes any pending plaintext, appends a ModeBoxstream goodbye record, and refuses any
// further Push, PushPartial, or Flush calls. It is an error to call Close on a ModeCompact
// stream, which has no goodbye record.
func (s *EncryptionStream) Close() error {
	if s.closed {
		return nil
	}
	if err := s.Flush(); err != nil {
		return err
	}
	goodbye, err := s.box.GoodbyeRecord()
	if err != nil {
		return err
	}
	s.outbound = append(s.outbound, goodbye...)
	s.closed = true
	return nil
}

// DecryptionStream reassembles CryptoBox records from arbitrary chunk boundaries back into
// plaintext.
//
// A DecryptionStream is not safe for concurrent use.
type DecryptionStream struct {
	box     *CryptoBox
	inbound []byte
	decoded []byte
	closed  bool
}

// NewDecryptionStream returns a DecryptionStream that opens records with box.
func NewDecryptionStream(box *CryptoBox) *DecryptionStream {
	return &DecryptionStream{box: box}
}

// Push appends b to the inbound buffer, then opens as many complete records as are available,
// appending their plaintext to the decoded buffer. It returns false if a record fails to
// authenticate, which poisons the stream; true otherwise, including when b leaves a partial
// record buffered. Once a ModeBoxstream goodbye record has been consumed, Push ignores further
// input and returns true; see Closed.
func (s *DecryptionStream) Push(b []byte) bool {
	if s.closed {
		return true
	}

	s.inbound = append(s.inbound, b...)
	for {
		size, err := s.box.GetDecryptedSize(s.inbound)
		if err != nil {
			return errors.Is(err, ErrIncompleteInput)
		}

		buf := make([]byte, size)
		n, consumed, err := s.box.Decrypt(buf, s.inbound)
		if err != nil {
			if errors.Is(err, ErrGoodbye) {
				s.inbound = s.inbound[consumed:]
				s.closed = true
				return true
			}
			return errors.Is(err, ErrIncompleteInput)
		}

		s.decoded = append(s.decoded, buf[:n]...)
		s.inbound = s.inbound[consumed:]
	}
}

// BytesAvailable returns the number of decoded plaintext bytes ready to be pulled.
func (s *DecryptionStream) BytesAvailable() int {
	return len(s.decoded)
}

// Pull copies up to len(dst) bytes of decoded plaintext into dst, consuming them from the decoded
// buffer, and returns the number of bytes copied.
func (s *DecryptionStream) Pull(dst []byte) int {
	n := copy(dst, s.decoded)
	s.decoded = s.decoded[n:]
	return n
}

// Closed reports whether the stream has consumed a ModeBoxstream goodbye record.
func (s *DecryptionStream) Closed() bool {
	return s.closed
}
