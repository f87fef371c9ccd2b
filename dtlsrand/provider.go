// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

// Package dtlsrand abstracts randomness so cookie keys, client/server
// randoms and nonces can be driven deterministically in tests.
package dtlsrand

import "crypto/rand"

type Rand interface {
	ReadMust(data []byte)
}

type cryptoRand struct{}

func (cryptoRand) ReadMust(data []byte) {
	if _, err := rand.Read(data); err != nil {
		panic("dtls12: crypto/rand failed: " + err.Error())
	}
}

// CryptoRand returns the production randomness source.
func CryptoRand() Rand { return cryptoRand{} }

type fixedRand struct{}

func (fixedRand) ReadMust(data []byte) {
	for i := range data {
		data[i] = byte(i)
	}
}

// FixedRand returns a deterministic source for reproducible tests.
func FixedRand() Rand { return fixedRand{} }
