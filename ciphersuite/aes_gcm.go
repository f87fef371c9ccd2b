// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package ciphersuite

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"hash"
)

func init() { register(aesGCMSuite{}) }

// aesGCMSuite implements TLS_ECDHE_PSK_WITH_AES_128_GCM_SHA256-shaped AEAD
// record protection [rfc5288]. NonceLength is the 4-byte fixed IV salt
// carried in the key block; the other 8 bytes of the 12-byte GCM nonce are
// the record's sequence number, written explicit per record the way
// RFC 5288 §3 describes for AEAD ciphers under TLS 1.2.
type aesGCMSuite struct{}

func (aesGCMSuite) ID() ID          { return TLS_ECDHE_PSK_WITH_AES_128_GCM_SHA256 }
func (aesGCMSuite) KeyLength() int  { return 16 }
func (aesGCMSuite) NonceLength() int { return 4 }

func (aesGCMSuite) newHash() hash.Hash { return sha256.New() }

func (s aesGCMSuite) PRF(secret, label, seed []byte, length int) []byte {
	return prf(sha256.New, secret, label, seed, length)
}

func (s aesGCMSuite) DeriveKeys(masterSecret, clientRandom, serverRandom []byte) (Keys, error) {
	kb := deriveKeyBlock(s, masterSecret, clientRandom, serverRandom)

	clientAEAD, err := newGCMNonceAEAD(kb.clientWriteKey, kb.clientWriteIV)
	if err != nil {
		return Keys{}, fmt.Errorf("ciphersuite: client write AEAD: %w", err)
	}
	serverAEAD, err := newGCMNonceAEAD(kb.serverWriteKey, kb.serverWriteIV)
	if err != nil {
		return Keys{}, fmt.Errorf("ciphersuite: server write AEAD: %w", err)
	}
	return Keys{ClientWrite: clientAEAD, ServerWrite: serverAEAD}, nil
}

// gcmNonceAEAD wraps a cipher.AEAD whose nonce is formed from a fixed 4
// (or more) byte salt prepended to the 8-byte explicit nonce the caller
// supplies per record, rather than the raw per-call nonce crypto/cipher's
// AEAD.Seal/Open expect.
type gcmNonceAEAD struct {
	aead cipher.AEAD
	salt []byte
}

func newGCMNonceAEAD(key, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &gcmNonceAEAD{aead: aead, salt: salt}, nil
}

func (g *gcmNonceAEAD) NonceSize() int { return 8 }
func (g *gcmNonceAEAD) Overhead() int  { return g.aead.Overhead() }

func (g *gcmNonceAEAD) Seal(dst, explicitNonce, plaintext, additionalData []byte) []byte {
	full := append(append([]byte{}, g.salt...), explicitNonce...)
	return g.aead.Seal(dst, full, plaintext, additionalData)
}

func (g *gcmNonceAEAD) Open(dst, explicitNonce, ciphertext, additionalData []byte) ([]byte, error) {
	full := append(append([]byte{}, g.salt...), explicitNonce...)
	return g.aead.Open(dst, full, ciphertext, additionalData)
}
