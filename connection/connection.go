// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

// Package connection is the connector's per-peer aggregate [spec.md §3
// "Connection"]: peer address, an optional established session, an
// optional ongoing handshaker, an optional pending outbound flight, and a
// resumption-required flag. A diagnostic correlation id (uuid) is carried
// purely for logging/metrics, not protocol behavior.
package connection

import (
	"net/netip"
	"sync"

	"github.com/google/uuid"

	"github.com/coredtls/dtls12/circular"
	"github.com/coredtls/dtls12/flight"
	"github.com/coredtls/dtls12/fragment"
	"github.com/coredtls/dtls12/handshake"
	"github.com/coredtls/dtls12/session"
)

// Connection is mutated under its own mutex — "mutated under a
// per-connection discipline" [spec.md §3]. Invariants: at most one
// established session, at most one ongoing handshaker, at most one
// pending flight; when both an established session and an ongoing
// handshaker exist, the ongoing handshaker is a re-handshake and the
// established session remains usable until the new one replaces it.
type Connection struct {
	mu sync.Mutex

	id uuid.UUID

	peerAddr netip.AddrPort

	established *session.Session
	handshaker  handshake.Interface
	pending     *flight.Flight

	resumptionRequired bool

	// deferredAppData holds application payloads handed to Send before a
	// handshake reaches the established state; they are sent as
	// application-data records once the handshake establishes
	// [spec.md §4.3 "Outbound send"]. A circular.Buffer rather than a plain
	// slice since this is a FIFO queue with the classic append-at-tail,
	// drain-from-head shape.
	deferredAppData circular.Buffer[[]byte]

	// reassembler buffers fragments of the ongoing handshake only; it is
	// discarded along with the handshaker once the handshake concludes or
	// aborts. Scoped per-Connection rather than process-wide — see
	// package fragment's doc comment for why.
	reassembler fragment.Reassembler
}

// New constructs a Connection for peerAddr with no established session and
// no ongoing handshake.
func New(peerAddr netip.AddrPort) *Connection {
	return &Connection{id: uuid.New(), peerAddr: peerAddr}
}

func (c *Connection) ID() uuid.UUID { return c.id }

func (c *Connection) PeerAddr() netip.AddrPort {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerAddr
}

// Rebind moves the Connection to a new peer address, used by resumption
// with address change [spec.md §4.3 "Resumption"].
func (c *Connection) Rebind(addr netip.AddrPort) {
	c.mu.Lock()
	c.peerAddr = addr
	c.mu.Unlock()
}

func (c *Connection) Lock()   { c.mu.Lock() }
func (c *Connection) Unlock() { c.mu.Unlock() }

func (c *Connection) EstablishedSessionLocked() *session.Session { return c.established }

func (c *Connection) SetEstablishedSessionLocked(sess *session.Session) {
	c.established = sess
}

func (c *Connection) HandshakerLocked() handshake.Interface { return c.handshaker }

func (c *Connection) SetHandshakerLocked(h handshake.Interface) {
	c.handshaker = h
	c.reassembler = fragment.Reassembler{}
}

// ClearHandshakerLocked discards the ongoing handshaker and its fragment
// buffer while leaving any established session intact — the
// "terminate_ongoing_handshake" path [spec.md §7].
func (c *Connection) ClearHandshakerLocked() {
	c.handshaker = nil
	c.reassembler = fragment.Reassembler{}
}

func (c *Connection) ReassemblerLocked() *fragment.Reassembler { return &c.reassembler }

func (c *Connection) PendingFlightLocked() *flight.Flight { return c.pending }

func (c *Connection) SetPendingFlightLocked(f *flight.Flight) { c.pending = f }

func (c *Connection) SetResumptionRequiredLocked(v bool) { c.resumptionRequired = v }
func (c *Connection) ResumptionRequiredLocked() bool     { return c.resumptionRequired }

// QueueDeferredAppDataLocked appends data to the backlog flushed once this
// Connection's ongoing handshake establishes.
func (c *Connection) QueueDeferredAppDataLocked(data []byte) {
	c.deferredAppData.PushBack(append([]byte(nil), data...))
}

// TakeDeferredAppDataLocked returns and clears the backlog queued by
// QueueDeferredAppDataLocked.
func (c *Connection) TakeDeferredAppDataLocked() [][]byte {
	if c.deferredAppData.Len() == 0 {
		return nil
	}
	s1, s2 := c.deferredAppData.Slices()
	out := make([][]byte, 0, len(s1)+len(s2))
	out = append(out, s1...)
	out = append(out, s2...)
	c.deferredAppData.Clear()
	return out
}

// AddressChanged reports whether addr differs from the Connection's
// current peer address, used to decide whether a resumption requires the
// old connection to linger until the new session establishes
// [spec.md §4.3 "Resumption"].
func (c *Connection) AddressChanged(addr netip.AddrPort) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerAddr != addr
}
