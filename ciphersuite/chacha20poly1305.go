// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package ciphersuite

import (
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

func init() { register(chachaSuite{}) }

// chachaSuite implements TLS_ECDHE_PSK_WITH_CHACHA20_POLY1305_SHA256-shaped
// AEAD record protection [rfc7905]. Unlike the GCM suite, RFC 7905 uses the
// full 12-byte key-block IV as a base nonce and XORs the 8-byte sequence
// number into its low bytes rather than splitting salt/explicit parts.
type chachaSuite struct{}

func (chachaSuite) ID() ID           { return TLS_ECDHE_PSK_WITH_CHACHA20_POLY1305_SHA256 }
func (chachaSuite) KeyLength() int   { return chacha20poly1305.KeySize }
func (chachaSuite) NonceLength() int { return chacha20poly1305.NonceSize }

func (s chachaSuite) PRF(secret, label, seed []byte, length int) []byte {
	return prf(sha256.New, secret, label, seed, length)
}

func (s chachaSuite) DeriveKeys(masterSecret, clientRandom, serverRandom []byte) (Keys, error) {
	kb := deriveKeyBlock(s, masterSecret, clientRandom, serverRandom)

	clientAEAD, err := newChachaNonceAEAD(kb.clientWriteKey, kb.clientWriteIV)
	if err != nil {
		return Keys{}, fmt.Errorf("ciphersuite: client write AEAD: %w", err)
	}
	serverAEAD, err := newChachaNonceAEAD(kb.serverWriteKey, kb.serverWriteIV)
	if err != nil {
		return Keys{}, fmt.Errorf("ciphersuite: server write AEAD: %w", err)
	}
	return Keys{ClientWrite: clientAEAD, ServerWrite: serverAEAD}, nil
}

// chachaNonceAEAD XORs an 8-byte explicit nonce into the low bytes of the
// fixed 12-byte base IV per record, per RFC 7905 §2.
type chachaNonceAEAD struct {
	aead cipher.AEAD
	base [chacha20poly1305.NonceSize]byte
}

func newChachaNonceAEAD(key, baseIV []byte) (cipher.AEAD, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	n := &chachaNonceAEAD{aead: aead}
	copy(n.base[:], baseIV)
	return n, nil
}

func (c *chachaNonceAEAD) NonceSize() int { return 8 }
func (c *chachaNonceAEAD) Overhead() int  { return c.aead.Overhead() }

func (c *chachaNonceAEAD) nonceFor(explicitNonce []byte) []byte {
	nonce := c.base
	off := len(nonce) - len(explicitNonce)
	for i, b := range explicitNonce {
		nonce[off+i] ^= b
	}
	return nonce[:]
}

func (c *chachaNonceAEAD) Seal(dst, explicitNonce, plaintext, additionalData []byte) []byte {
	return c.aead.Seal(dst, c.nonceFor(explicitNonce), plaintext, additionalData)
}

func (c *chachaNonceAEAD) Open(dst, explicitNonce, ciphertext, additionalData []byte) ([]byte, error) {
	return c.aead.Open(dst, c.nonceFor(explicitNonce), ciphertext, additionalData)
}
