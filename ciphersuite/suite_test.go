// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package ciphersuite

import (
	"bytes"
	"testing"

	"github.com/coredtls/dtls12/dtlsrand"
)

func TestSupportedSuitesRegistered(t *testing.T) {
	for _, id := range Supported() {
		if Get(id) == nil {
			t.Fatalf("suite %#04x listed as supported but not registered", id)
		}
	}
}

func TestECDHESharedSecretAgrees(t *testing.T) {
	rnd := dtlsrand.FixedRand()
	client, err := GenerateECDHEKeyPair(rnd)
	if err != nil {
		t.Fatalf("client keypair: %v", err)
	}
	server, err := GenerateECDHEKeyPair(rnd)
	if err != nil {
		t.Fatalf("server keypair: %v", err)
	}

	clientSecret, err := ECDHESharedSecret(client.Private, server.Public)
	if err != nil {
		t.Fatalf("client shared secret: %v", err)
	}
	serverSecret, err := ECDHESharedSecret(server.Private, client.Public)
	if err != nil {
		t.Fatalf("server shared secret: %v", err)
	}
	if !bytes.Equal(clientSecret, serverSecret) {
		t.Fatalf("ECDHE shared secrets diverge between client and server")
	}
}

func TestDeriveKeysRoundTripAllSuites(t *testing.T) {
	clientRandom := bytes.Repeat([]byte{0xAA}, 32)
	serverRandom := bytes.Repeat([]byte{0xBB}, 32)
	masterSecret := bytes.Repeat([]byte{0x42}, 48)

	for _, id := range Supported() {
		suite := Get(id)
		keys, err := suite.DeriveKeys(masterSecret, clientRandom, serverRandom)
		if err != nil {
			t.Fatalf("suite %#04x: DeriveKeys: %v", id, err)
		}

		plaintext := []byte("application data")
		nonce := bytes.Repeat([]byte{0x01}, 8)
		sealed := keys.ClientWrite.Seal(nil, nonce, plaintext, []byte("ad"))
		opened, err := keys.ClientWrite.Open(nil, nonce, sealed, []byte("ad"))
		if err != nil {
			t.Fatalf("suite %#04x: open with matching AEAD failed: %v", id, err)
		}
		if !bytes.Equal(opened, plaintext) {
			t.Fatalf("suite %#04x: round trip mismatch", id)
		}

		if _, err := keys.ServerWrite.Open(nil, nonce, sealed, []byte("ad")); err == nil {
			t.Fatalf("suite %#04x: server AEAD must not decrypt data sealed under client keys", id)
		}
	}
}

func TestMasterSecretDeterministic(t *testing.T) {
	suite := Get(TLS_ECDHE_PSK_WITH_AES_128_GCM_SHA256)
	premaster := PremasterSecret([]byte("ecdhe-shared"), []byte("psk"))
	cr := bytes.Repeat([]byte{1}, 32)
	sr := bytes.Repeat([]byte{2}, 32)

	a := MasterSecret(suite, premaster, cr, sr)
	b := MasterSecret(suite, premaster, cr, sr)
	if !bytes.Equal(a, b) {
		t.Fatalf("master secret derivation must be deterministic")
	}
	if len(a) != 48 {
		t.Fatalf("master secret must be 48 bytes, got %d", len(a))
	}
}
