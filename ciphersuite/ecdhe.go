// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package ciphersuite

import (
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/coredtls/dtls12/dtlsrand"
)

// ECDHEKeyPair is a client or server's ephemeral X25519 key pair, carried
// in ServerKeyExchange/ClientKeyExchange the way RFC 4492 §5.4 describes
// for ECDHE cipher suites, using curve25519 as the sole supported group.
type ECDHEKeyPair struct {
	Private [32]byte
	Public  [32]byte
}

// GenerateECDHEKeyPair draws a fresh X25519 key pair from rnd.
func GenerateECDHEKeyPair(rnd dtlsrand.Rand) (ECDHEKeyPair, error) {
	var kp ECDHEKeyPair
	rnd.ReadMust(kp.Private[:])
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return ECDHEKeyPair{}, fmt.Errorf("ciphersuite: derive X25519 public key: %w", err)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// ECDHESharedSecret computes the shared secret from a local private key and
// a peer's public key.
func ECDHESharedSecret(private, peerPublic [32]byte) ([]byte, error) {
	secret, err := curve25519.X25519(private[:], peerPublic[:])
	if err != nil {
		return nil, fmt.Errorf("ciphersuite: compute X25519 shared secret: %w", err)
	}
	return secret, nil
}
