// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package connector

import (
	"net/netip"

	"github.com/coredtls/dtls12/connection"
	"github.com/coredtls/dtls12/handshake"
	"github.com/coredtls/dtls12/session"
)

// goRunSender drains Send's outbound queue, adapted from the teacher's
// condition-variable sender loop (transport/sender.go) but driven off a
// buffered channel instead, since outbound here is already a bounded
// queue rather than a per-connection write buffer.
func (c *Connector) goRunSender() {
	for {
		select {
		case msg, ok := <-c.outbound:
			if !ok {
				return
			}
			c.handleOutbound(msg)
		case <-c.closeCh:
			return
		}
	}
}

// handleOutbound implements the four cases of Send's dispatch
// [spec.md §4.3 "Outbound send"]: no connection yet, a handshake already
// under way, resumption pending, or an established session ready to carry
// application data immediately.
func (c *Connector) handleOutbound(msg outboundMessage) {
	conn, ok := c.store.Get(msg.peerAddr)
	if !ok {
		c.startClientHandshake(msg.peerAddr, msg.data)
		return
	}

	conn.Lock()
	if conn.HandshakerLocked() != nil {
		conn.QueueDeferredAppDataLocked(msg.data)
		conn.Unlock()
		return
	}
	if conn.ResumptionRequiredLocked() {
		sess := conn.EstablishedSessionLocked()
		conn.QueueDeferredAppDataLocked(msg.data)
		conn.Unlock()
		if sess != nil {
			c.startResumingClientHandshake(conn, msg.peerAddr, sess)
		}
		return
	}
	sess := conn.EstablishedSessionLocked()
	if sess == nil {
		conn.QueueDeferredAppDataLocked(msg.data)
		conn.Unlock()
		return
	}
	conn.Unlock()
	c.sendApplicationData(msg.peerAddr, sess, msg.data)
}

// startClientHandshake creates a brand new Connection and a full
// client-role handshaker for peerAddr, queuing payload to be flushed once
// the handshake establishes.
func (c *Connector) startClientHandshake(peerAddr netip.AddrPort, payload []byte) {
	sess := session.New(nil, false)
	h := handshake.New(handshake.RoleClient, sess, c.cfg.Credentials, c.cfg.Rnd)
	h.SetPSKIdentity(c.cfg.PSKIdentity)

	conn := connection.New(peerAddr)
	conn.Lock()
	conn.SetHandshakerLocked(h)
	conn.QueueDeferredAppDataLocked(payload)
	conn.Unlock()

	c.armEstablishmentListener(conn, peerAddr, h)
	c.store.Put(conn)
	c.metrics.connectionsActive.Set(float64(c.store.Len()))
	c.metrics.handshakesStarted.Inc()

	fl := h.StartHandshakeMessage()
	conn.Lock()
	c.armFlightLocked(conn, peerAddr, fl)
	conn.Unlock()
}

// startResumingClientHandshake terminates oldConn without sending an alert
// and starts a resuming-client handshake on a brand new Connection, per
// spec.md §4.3 "Outbound send": "terminate the current connection without
// sending an alert, create a new one, and start a resuming client
// handshake" — mirroring original_source/DTLSConnector.java's
// `new Connection(peerAddress)` + `terminateConnection(connection, null,
// null)` + `connectionStore.put(newConnection)`, rather than mutating
// oldConn's handshaker in place. The payload that triggered resumption
// (already queued on oldConn by handleOutbound) carries over to the new
// Connection so it still flushes once the resumed session establishes.
func (c *Connector) startResumingClientHandshake(oldConn *connection.Connection, peerAddr netip.AddrPort, established *session.Session) {
	oldConn.Lock()
	backlog := oldConn.TakeDeferredAppDataLocked()
	oldConn.Unlock()
	c.terminate(oldConn, peerAddr)

	resumedSess := session.Resume(established, false)
	h := handshake.New(handshake.RoleResumingClient, resumedSess, c.cfg.Credentials, c.cfg.Rnd)
	h.SetPSKIdentity(c.cfg.PSKIdentity)

	newConn := connection.New(peerAddr)
	newConn.Lock()
	newConn.SetHandshakerLocked(h)
	for _, data := range backlog {
		newConn.QueueDeferredAppDataLocked(data)
	}
	newConn.Unlock()

	c.armEstablishmentListener(newConn, peerAddr, h)
	c.store.Put(newConn)
	c.metrics.connectionsActive.Set(float64(c.store.Len()))
	c.metrics.handshakesStarted.Inc()

	fl := h.StartHandshakeMessage()
	newConn.Lock()
	c.armFlightLocked(newConn, peerAddr, fl)
	newConn.Unlock()
}
