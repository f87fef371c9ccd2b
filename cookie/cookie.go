// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

// Package cookie implements the stateless HelloVerifyRequest cookie
// [rfc6347:4.2.1]: an HMAC-SHA256 over the peer address and the
// ClientHello fields the server must remember without keeping any
// per-peer state before the cookie round-trip completes.
package cookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"net/netip"
	"sync"
	"time"

	"github.com/coredtls/dtls12/constants"
	"github.com/coredtls/dtls12/dtlsrand"
)

// Params is the subset of a ClientHello the cookie is bound to.
type Params struct {
	ClientVersionMajor byte
	ClientVersionMinor byte
	ClientRandom       [32]byte
	SessionID          []byte
	CipherSuites       []byte // raw wire-encoded list
	CompressionMethods []byte
}

// MacKey is the process-wide symmetric key HMACing cookies. It rotates
// itself the next time it is used if its age exceeds the rotation
// interval; the previous key is not retained, so a peer whose cookie was
// minted under a prior key simply repeats the verify round-trip (see
// SPEC_FULL.md §9 "Cookie key rotation").
type MacKey struct {
	mu        sync.Mutex
	secret    [32]byte
	createdAt time.Time
	rnd       dtlsrand.Rand
	hasher    hash.Hash
}

func NewMacKey(rnd dtlsrand.Rand) *MacKey {
	k := &MacKey{rnd: rnd}
	k.resetLocked(time.Now())
	return k
}

func (k *MacKey) resetLocked(now time.Time) {
	k.rnd.ReadMust(k.secret[:])
	k.createdAt = now
	k.hasher = hmac.New(sha256.New, k.secret[:])
}

// rotateIfStaleLocked rotates the key when its age exceeds
// constants.CookieRotationInterval. Age check and rotation happen
// atomically under k.mu, as required by §5 ("Cookie MAC key access is
// serialized under its own lock and includes the age check + rotation
// atomically").
func (k *MacKey) rotateIfStaleLocked(now time.Time) {
	if now.Sub(k.createdAt) > constants.CookieRotationInterval {
		k.resetLocked(now)
	}
}

// Generate returns the expected cookie for addr/params under the current
// key, rotating the key first if it has gone stale.
func (k *MacKey) Generate(addr netip.AddrPort, params Params) []byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.rotateIfStaleLocked(time.Now())
	return k.computeLocked(addr, params)
}

// Verify reports whether cookie matches the currently-expected cookie for
// addr/params, rotating the key first if stale.
func (k *MacKey) Verify(addr netip.AddrPort, params Params, cookie []byte) bool {
	expected := k.Generate(addr, params)
	return hmac.Equal(expected, cookie)
}

func (k *MacKey) computeLocked(addr netip.AddrPort, params Params) []byte {
	k.hasher.Reset()
	ip := addr.Addr().As16()
	k.hasher.Write(ip[:])
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], addr.Port())
	k.hasher.Write(portBuf[:])
	k.hasher.Write([]byte{params.ClientVersionMajor, params.ClientVersionMinor})
	k.hasher.Write(params.ClientRandom[:])
	k.hasher.Write(params.SessionID)
	k.hasher.Write(params.CipherSuites)
	k.hasher.Write(params.CompressionMethods)
	sum := k.hasher.Sum(nil)
	if len(sum) > constants.MaxCookieSize {
		sum = sum[:constants.MaxCookieSize]
	}
	return sum
}
