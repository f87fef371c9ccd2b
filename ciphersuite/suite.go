// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

// Package ciphersuite is the connector's cipher-suite collaborator. Per
// spec.md's Non-goals ("specifying any individual cipher suite's
// key-schedule and AEAD" is out of scope), this package is deliberately
// thin: one interface the connector and handshaker program against, and
// two concrete suites enough to drive a real handshake end to end in
// tests. Correctness of the key schedule against RFC 5246/5288 is not a
// goal of this package; only that session establishment produces two
// matching AEADs.
package ciphersuite

import "crypto/cipher"

// ID is the two-byte wire identifier of a cipher suite [rfc5246:a.5].
type ID uint16

const (
	TLS_ECDHE_PSK_WITH_AES_128_GCM_SHA256       ID = 0xD001
	TLS_ECDHE_PSK_WITH_CHACHA20_POLY1305_SHA256 ID = 0xCCAC
)

// Keys holds the two directional AEADs derived for one session. Which one
// is "local write" vs "local read" depends on role: a server writes with
// ServerWrite and reads with ClientWrite, and vice versa for a client.
type Keys struct {
	ClientWrite cipher.AEAD
	ServerWrite cipher.AEAD
}

func (k Keys) WriteAEAD(roleServer bool) cipher.AEAD {
	if roleServer {
		return k.ServerWrite
	}
	return k.ClientWrite
}

func (k Keys) ReadAEAD(roleServer bool) cipher.AEAD {
	if roleServer {
		return k.ClientWrite
	}
	return k.ServerWrite
}

// Suite is the contract the handshaker and session use to turn a shared
// secret into directional AEADs, and to compute the PRF-derived values
// (Finished verify_data, key block) RFC 5246 §6.3/§5 require.
type Suite interface {
	ID() ID
	KeyLength() int
	NonceLength() int

	// PRF is the TLS 1.2 pseudorandom function (HMAC-based) this suite
	// uses for the master secret and key block derivations.
	PRF(secret, label, seed []byte, length int) []byte

	// DeriveKeys turns a master secret plus the two randoms into the pair
	// of directional AEADs for this session.
	DeriveKeys(masterSecret, clientRandom, serverRandom []byte) (Keys, error)
}

var registry = map[ID]Suite{}

func register(s Suite) { registry[s.ID()] = s }

// Get returns the suite for id, or nil if unknown.
func Get(id ID) Suite { return registry[id] }

// Supported returns the IDs this build can negotiate, in preference order.
func Supported() []ID {
	return []ID{TLS_ECDHE_PSK_WITH_AES_128_GCM_SHA256, TLS_ECDHE_PSK_WITH_CHACHA20_POLY1305_SHA256}
}
