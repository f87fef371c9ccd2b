// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package connection

import (
	"net/netip"
	"testing"

	"github.com/coredtls/dtls12/session"
)

func addr(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port)
}

func TestNewConnectionHasNoSessionOrHandshaker(t *testing.T) {
	c := New(addr(4433))
	c.Lock()
	defer c.Unlock()
	if c.EstablishedSessionLocked() != nil {
		t.Fatalf("a fresh connection must not have an established session")
	}
	if c.HandshakerLocked() != nil {
		t.Fatalf("a fresh connection must not have an ongoing handshaker")
	}
	if c.PendingFlightLocked() != nil {
		t.Fatalf("a fresh connection must not have a pending flight")
	}
}

func TestRebindChangesPeerAddress(t *testing.T) {
	c := New(addr(1))
	if !c.AddressChanged(addr(2)) {
		t.Fatalf("expected address change to be detected")
	}
	c.Rebind(addr(2))
	if c.AddressChanged(addr(2)) {
		t.Fatalf("expected no address change after rebinding to the same address")
	}
}

func TestClearHandshakerLeavesEstablishedSessionIntact(t *testing.T) {
	c := New(addr(1))
	sess := session.New([]byte{1, 2, 3}, true)

	c.Lock()
	c.SetEstablishedSessionLocked(sess)
	c.ClearHandshakerLocked()
	got := c.EstablishedSessionLocked()
	c.Unlock()

	if got != sess {
		t.Fatalf("clearing the handshaker must not disturb the established session")
	}
}

func TestResumptionRequiredFlagRoundTrips(t *testing.T) {
	c := New(addr(1))
	c.Lock()
	c.SetResumptionRequiredLocked(true)
	got := c.ResumptionRequiredLocked()
	c.Unlock()
	if !got {
		t.Fatalf("expected resumption-required flag to round trip")
	}
}
