// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

// Package connstore is the connector's connection table [spec.md §4.5
// "Connection store"]: at most one Connection per peer address, with a
// secondary index by session-id so a resuming ClientHello arriving from a
// new address can be matched to its prior session.
package connstore

import (
	"net/netip"
	"sync"

	"github.com/coredtls/dtls12/connection"
)

// Store is the connection table's contract. find is keyed by the raw
// session-id bytes the connector parsed out of a ClientHello; an
// implementation maintains this index atomically with Put so a concurrent
// reader never observes a Connection registered under its peer address but
// not yet under its session-id, or vice versa [spec.md §9 "Session store
// concurrency"].
type Store interface {
	Put(conn *connection.Connection)
	Get(peerAddr netip.AddrPort) (*connection.Connection, bool)
	Find(sessionID []byte) (*connection.Connection, bool)
	Remove(peerAddr netip.AddrPort)
	Clear()
	Len() int
}

// InMemoryStore keeps the address index and the session-id index behind
// separate RWMutexes, per the "concurrent map with per-entry locks ...
// find(session_id) requires a secondary index maintained atomically with
// put" guidance [spec.md §9]. A Connection's address and its established
// session's id are unrelated keyspaces (resumption can move a session to
// a new address), so the two indices cannot share one lock without
// serializing lookups that have nothing to do with each other.
type InMemoryStore struct {
	addrMu sync.RWMutex
	byAddr map[netip.AddrPort]*connection.Connection

	sessMu  sync.RWMutex
	bySess map[string]*connection.Connection
}

// New constructs an empty in-memory connection store.
func New() *InMemoryStore {
	return &InMemoryStore{
		byAddr: make(map[netip.AddrPort]*connection.Connection),
		bySess: make(map[string]*connection.Connection),
	}
}

// Put registers conn under its current peer address, replacing whatever
// Connection previously occupied that address, and (re)indexes it under
// its established session's id, if it has one. Both mutexes are held
// together while the two indices are written, so no reader observes one
// index updated without the other.
func (s *InMemoryStore) Put(conn *connection.Connection) {
	addr := conn.PeerAddr()

	conn.Lock()
	sess := conn.EstablishedSessionLocked()
	conn.Unlock()
	var id []byte
	if sess != nil {
		id = sess.ID()
	}

	s.addrMu.Lock()
	s.sessMu.Lock()
	s.byAddr[addr] = conn
	if len(id) != 0 {
		s.bySess[string(id)] = conn
	}
	s.sessMu.Unlock()
	s.addrMu.Unlock()
}

func (s *InMemoryStore) Get(peerAddr netip.AddrPort) (*connection.Connection, bool) {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	conn, ok := s.byAddr[peerAddr]
	return conn, ok
}

func (s *InMemoryStore) Find(sessionID []byte) (*connection.Connection, bool) {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()
	conn, ok := s.bySess[string(sessionID)]
	return conn, ok
}

// Remove deletes the Connection at peerAddr from both indices. A caller
// that moves a Connection to a new address removes it from its old address
// slot by calling Remove on the old address before Put-ing the Connection
// under its new one; Remove
// looks up the session index key from the Connection being evicted, not
// from peerAddr, since the two need not coincide.
func (s *InMemoryStore) Remove(peerAddr netip.AddrPort) {
	s.addrMu.Lock()
	conn, ok := s.byAddr[peerAddr]
	if ok {
		delete(s.byAddr, peerAddr)
	}
	s.addrMu.Unlock()
	if !ok {
		return
	}

	conn.Lock()
	sess := conn.EstablishedSessionLocked()
	conn.Unlock()
	if sess == nil {
		return
	}
	id := sess.ID()
	if len(id) == 0 {
		return
	}
	s.sessMu.Lock()
	if s.bySess[string(id)] == conn {
		delete(s.bySess, string(id))
	}
	s.sessMu.Unlock()
}

func (s *InMemoryStore) Clear() {
	s.addrMu.Lock()
	s.byAddr = make(map[netip.AddrPort]*connection.Connection)
	s.addrMu.Unlock()

	s.sessMu.Lock()
	s.bySess = make(map[string]*connection.Connection)
	s.sessMu.Unlock()
}

func (s *InMemoryStore) Len() int {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return len(s.byAddr)
}

var _ Store = (*InMemoryStore)(nil)
