package shs

import "errors"

// ErrIncompleteInput is returned when fewer bytes are available than are needed to decode a
// record. It is not fatal: the caller should supply more bytes and retry.
var ErrIncompleteInput = errors.New("shs: incomplete input")

// ErrOutTooSmall is returned when the caller's output buffer is smaller than EncryptedSize (for
// Encrypt) or the decoded plaintext length (for Decrypt). It is not fatal: the caller should
// resize its buffer and retry.
var ErrOutTooSmall = errors.New("shs: output buffer too small")

// ErrCorruptData is returned when a record's authentication tag fails to verify. It is fatal: the
// CryptoBox or stream that returned it must be discarded. The decryption nonce is not advanced
// and the record is not consumed, so retrying the same input fails the same way.
var ErrCorruptData = errors.New("shs: corrupt or forged record")

// ErrStreamClosed is returned by EncryptionStream.Push, EncryptionStream.Flush, and
// EncryptionStream.PushPartial once the stream's goodbye record has been emitted.
var ErrStreamClosed = errors.New("shs: stream closed")
