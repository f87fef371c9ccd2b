// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package ciphersuite

import "encoding/binary"

// PremasterSecret builds the ECDHE_PSK premaster secret [rfc5489:2]:
// a length-prefixed ECDHE shared secret followed by a length-prefixed PSK.
func PremasterSecret(ecdheShared, psk []byte) []byte {
	out := make([]byte, 0, 4+len(ecdheShared)+len(psk))
	out = appendUint16Prefixed(out, ecdheShared)
	out = appendUint16Prefixed(out, psk)
	return out
}

func appendUint16Prefixed(dst, data []byte) []byte {
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(data)))
	dst = append(dst, length[:]...)
	return append(dst, data...)
}

// MasterSecret derives the TLS 1.2 master secret from a premaster secret
// and the handshake randoms [rfc5246:8.1].
func MasterSecret(s Suite, premaster, clientRandom, serverRandom []byte) []byte {
	seed := make([]byte, 0, len(clientRandom)+len(serverRandom))
	seed = append(seed, clientRandom...)
	seed = append(seed, serverRandom...)
	return s.PRF(premaster, []byte("master secret"), seed, 48)
}

// VerifyData computes the Finished message's verify_data [rfc5246:7.4.9].
func VerifyData(s Suite, masterSecret []byte, label string, handshakeHash []byte) []byte {
	return s.PRF(masterSecret, []byte(label), handshakeHash, 12)
}
