// Package shs implements the Secret Handshake mutual-authentication protocol and the
// boxstream-style authenticated record framing that follows a successful handshake.
//
// Two peers, each holding a long-term Ed25519 signing keypair (see the identity subpackage) and a
// shared application identifier, run the four-message exchange in the handshake subpackage to
// produce a Session: a pair of symmetric keys and initial nonces, one per direction, plus the
// authenticated identity of the remote party. A CryptoBox built from that Session seals and opens
// individual records; EncryptionStream and DecryptionStream layer byte-oriented buffering on top
// of a CryptoBox so that callers can push and pull arbitrary-sized chunks of plaintext without
// caring where record boundaries fall.
//
// The package is synchronous and holds no locks: a Handshake, CryptoBox, or stream is not safe
// for concurrent use, and all I/O is the caller's responsibility. Socket handling, event loops,
// and CLI plumbing live outside this module, in the cmd/shs_serve and cmd/shs_dial demo programs.
package shs
