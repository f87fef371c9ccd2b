// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package connstore

import (
	"net/netip"
	"testing"

	"github.com/coredtls/dtls12/connection"
	"github.com/coredtls/dtls12/session"
)

func addr(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("10.0.0.1"), port)
}

func TestPutGetRoundTrip(t *testing.T) {
	s := New()
	conn := connection.New(addr(1))
	s.Put(conn)

	got, ok := s.Get(addr(1))
	if !ok || got != conn {
		t.Fatalf("expected Get to return the Connection just Put")
	}
	if s.Len() != 1 {
		t.Fatalf("expected Len 1, got %d", s.Len())
	}
}

func TestPutReplacesConnectionAtSameAddress(t *testing.T) {
	s := New()
	first := connection.New(addr(1))
	second := connection.New(addr(1))
	s.Put(first)
	s.Put(second)

	got, ok := s.Get(addr(1))
	if !ok || got != second {
		t.Fatalf("expected the second Put to replace the first at the same address")
	}
	if s.Len() != 1 {
		t.Fatalf("expected a single connection per peer address, got Len %d", s.Len())
	}
}

func TestFindBySessionIDAfterEstablish(t *testing.T) {
	s := New()
	conn := connection.New(addr(1))
	sess := session.New([]byte("sess-id-1"), true)

	conn.Lock()
	conn.SetEstablishedSessionLocked(sess)
	conn.Unlock()

	s.Put(conn)

	got, ok := s.Find([]byte("sess-id-1"))
	if !ok || got != conn {
		t.Fatalf("expected Find to locate the Connection by its session id")
	}
}

func TestFindMissesWithoutEstablishedSession(t *testing.T) {
	s := New()
	conn := connection.New(addr(1))
	s.Put(conn)

	if _, ok := s.Find([]byte("nonexistent")); ok {
		t.Fatalf("a Connection without an established session must not be indexed by session id")
	}
}

func TestRemoveEvictsBothIndices(t *testing.T) {
	s := New()
	conn := connection.New(addr(1))
	sess := session.New([]byte("sess-id-2"), true)
	conn.Lock()
	conn.SetEstablishedSessionLocked(sess)
	conn.Unlock()
	s.Put(conn)

	s.Remove(addr(1))

	if _, ok := s.Get(addr(1)); ok {
		t.Fatalf("expected address index entry removed")
	}
	if _, ok := s.Find([]byte("sess-id-2")); ok {
		t.Fatalf("expected session index entry removed along with the address entry")
	}
	if s.Len() != 0 {
		t.Fatalf("expected Len 0 after removal, got %d", s.Len())
	}
}

func TestResumptionWithAddressChangeReindexesByNewAddress(t *testing.T) {
	s := New()
	conn := connection.New(addr(1))
	sess := session.New([]byte("sess-id-3"), true)
	conn.Lock()
	conn.SetEstablishedSessionLocked(sess)
	conn.Unlock()
	s.Put(conn)

	// peer resumes from a new source address: the caller removes the old
	// slot, rebinds, and re-registers.
	s.Remove(addr(1))
	conn.Rebind(addr(2))
	s.Put(conn)

	if _, ok := s.Get(addr(1)); ok {
		t.Fatalf("old address must no longer resolve")
	}
	got, ok := s.Get(addr(2))
	if !ok || got != conn {
		t.Fatalf("expected the connection reachable at its new address")
	}
	foundBySess, ok := s.Find([]byte("sess-id-3"))
	if !ok || foundBySess != conn {
		t.Fatalf("expected the session index to still resolve after the address change")
	}
}

func TestClearEmptiesBothIndices(t *testing.T) {
	s := New()
	conn := connection.New(addr(1))
	sess := session.New([]byte("sess-id-4"), true)
	conn.Lock()
	conn.SetEstablishedSessionLocked(sess)
	conn.Unlock()
	s.Put(conn)

	s.Clear()

	if s.Len() != 0 {
		t.Fatalf("expected Len 0 after Clear")
	}
	if _, ok := s.Find([]byte("sess-id-4")); ok {
		t.Fatalf("expected session index cleared")
	}
}
