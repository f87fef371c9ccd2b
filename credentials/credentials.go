// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

// Package credentials is the connector's identity collaborator: where a
// server looks up a PSK by identity hint, and where it finds the
// certificate/roots it would present and validate against if the
// handshake goes the certificate route. Certificate-chain validation
// itself is out of scope (spec.md's Non-goals); this package only stores
// and retrieves material.
package credentials

import (
	"crypto/tls"
	"crypto/x509"
	"sync"
)

// Store is the interface the handshaker programs against.
type Store interface {
	// PSKForIdentity resolves a PSK identity hint, as carried in
	// ClientKeyExchange, to the shared secret for it.
	PSKForIdentity(identity []byte) ([]byte, bool)
	// ServerCertificate returns the certificate (and chain) a server
	// presents in its Certificate message, if configured for one.
	ServerCertificate() (tls.Certificate, bool)
	// TrustedRoots returns the pool a client validates a server
	// certificate chain against.
	TrustedRoots() *x509.CertPool
}

// InMemoryStore is the default Store, populated by NewInMemoryStore at
// construction time and otherwise read-only; its one piece of mutable
// state is the PSK table, guarded by mu so a long-lived server process can
// still provision identities after startup.
type InMemoryStore struct {
	mu   sync.RWMutex
	psks map[string][]byte

	cert    tls.Certificate
	hasCert bool
	roots   *x509.CertPool
}

// NewInMemoryStore builds a Store from a PSK table and, optionally, a
// server certificate and trusted root pool. Either of cert/roots may be
// the zero value when this connector only ever negotiates the PSK route.
func NewInMemoryStore(psks map[string][]byte, cert tls.Certificate, hasCert bool, roots *x509.CertPool) *InMemoryStore {
	table := make(map[string][]byte, len(psks))
	for k, v := range psks {
		table[k] = append([]byte(nil), v...)
	}
	return &InMemoryStore{psks: table, cert: cert, hasCert: hasCert, roots: roots}
}

func (s *InMemoryStore) PSKForIdentity(identity []byte) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	psk, ok := s.psks[string(identity)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), psk...), true
}

func (s *InMemoryStore) ServerCertificate() (tls.Certificate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cert, s.hasCert
}

func (s *InMemoryStore) TrustedRoots() *x509.CertPool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roots
}

// SetPSK provisions or updates the PSK for identity at runtime.
func (s *InMemoryStore) SetPSK(identity string, psk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.psks[identity] = append([]byte(nil), psk...)
}

// RemovePSK revokes a previously provisioned identity.
func (s *InMemoryStore) RemovePSK(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.psks, identity)
}
