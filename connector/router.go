// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package connector

import (
	"bytes"
	"encoding/binary"
	"net/netip"

	"github.com/coredtls/dtls12/connection"
	"github.com/coredtls/dtls12/cookie"
	"github.com/coredtls/dtls12/dtlserrors"
	"github.com/coredtls/dtls12/flight"
	"github.com/coredtls/dtls12/fragment"
	"github.com/coredtls/dtls12/handshake"
	"github.com/coredtls/dtls12/record"
	"github.com/coredtls/dtls12/session"
)

// maxPreHelloReassemblers bounds the number of source addresses the
// connector will buffer a fragmented, not-yet-cookie-verified ClientHello
// for at once. A Connection's own fragment.Reassembler only exists once a
// Connection does, and cookie verification is deliberately the thing that
// creates one; this is the pre-Connection equivalent, and is bounded for
// the same anti-amplification reason the cookie itself exists.
const maxPreHelloReassemblers = 4096

// routeRecord dispatches one parsed record by content type
// [spec.md §4.3 "Receive loop"].
func (c *Connector) routeRecord(rec record.Record, peerAddr netip.AddrPort) {
	switch rec.ContentType {
	case record.ContentTypeApplicationData:
		c.routeApplicationData(rec, peerAddr)
	case record.ContentTypeAlert:
		c.routeAlert(rec, peerAddr)
	case record.ContentTypeChangeCipherSpec:
		c.routeChangeCipherSpec(rec, peerAddr)
	case record.ContentTypeHandshake:
		c.routeHandshake(rec, peerAddr)
	default:
		c.metrics.recordsDropped.WithLabelValues("unknown_content_type").Inc()
	}
}

func (c *Connector) routeApplicationData(rec record.Record, peerAddr netip.AddrPort) {
	conn, ok := c.store.Get(peerAddr)
	if !ok {
		c.metrics.recordsDropped.WithLabelValues("app_data_no_connection").Inc()
		return
	}
	conn.Lock()
	sess := conn.EstablishedSessionLocked()
	conn.Unlock()
	if sess == nil || rec.Epoch != sess.ReadEpoch() {
		c.metrics.recordsDropped.WithLabelValues("app_data_epoch_mismatch").Inc()
		return
	}
	commit, ok := sess.AcceptReplay(rec.SequenceNumber)
	if !ok {
		c.metrics.replayRejected.Inc()
		return
	}
	plaintext, ok := handshake.OpenRecord(sess, rec)
	if !ok {
		c.metrics.recordsDropped.WithLabelValues("app_data_decrypt").Inc()
		return
	}
	commit()
	c.notifyData(peerAddr, plaintext, sess.PeerIdentity())
}

func (c *Connector) routeAlert(rec record.Record, peerAddr netip.AddrPort) {
	conn, ok := c.store.Get(peerAddr)
	if !ok {
		return
	}
	conn.Lock()
	sess, found := alertSessionForEpochLocked(conn, rec.Epoch)
	conn.Unlock()

	var plaintext []byte
	switch {
	case rec.Epoch == 0:
		plaintext = rec.Payload
	case found:
		pt, ok := handshake.OpenRecord(sess, rec)
		if !ok {
			c.metrics.recordsDropped.WithLabelValues("alert_decrypt").Inc()
			return
		}
		plaintext = pt
	default:
		c.metrics.recordsDropped.WithLabelValues("alert_epoch_mismatch").Inc()
		return
	}

	alert, err := record.ParseAlert(plaintext)
	if err != nil {
		c.metrics.recordsDropped.WithLabelValues("alert_parse").Inc()
		return
	}
	c.notifyError(peerAddr, alert.Level, alert.Description)
	if alert.IsFatal() || alert.IsCloseNotify() {
		c.terminate(conn, peerAddr)
	}
}

func (c *Connector) routeChangeCipherSpec(rec record.Record, peerAddr netip.AddrPort) {
	conn, ok := c.store.Get(peerAddr)
	if !ok {
		return
	}
	conn.Lock()
	h := conn.HandshakerLocked()
	if h == nil {
		conn.Unlock()
		return
	}
	signal := handshake.Message{Header: handshake.Header{Type: handshake.TypeChangeCipherSpecSignal}}
	_, err := h.ProcessMessage(signal, rec.SequenceNumber)
	conn.Unlock()
	if err != nil {
		c.handleHandshakeError(conn, peerAddr, err)
	}
}

func (c *Connector) routeHandshake(rec record.Record, peerAddr netip.AddrPort) {
	conn, ok := c.store.Get(peerAddr)
	if !ok {
		c.routeHandshakeNoConnection(rec, peerAddr)
		return
	}
	c.deliverToHandshaker(conn, peerAddr, rec)
}

// routeHandshakeNoConnection handles an inbound HANDSHAKE-type record
// addressed to a peer the connector has no Connection for: only a
// ClientHello (possibly fragmented, possibly still missing its cookie) is
// meaningful here [spec.md §4.3 "no existing connection"].
func (c *Connector) routeHandshakeNoConnection(rec record.Record, peerAddr netip.AddrPort) {
	if rec.Epoch != 0 {
		c.metrics.recordsDropped.WithLabelValues("handshake_no_connection").Inc()
		return
	}
	msg, _, err := handshake.Parse(rec.Payload)
	if err != nil {
		c.metrics.recordsDropped.WithLabelValues("handshake_parse").Inc()
		return
	}
	if msg.Type != handshake.TypeClientHello {
		c.metrics.recordsDropped.WithLabelValues("handshake_unexpected").Inc()
		return
	}
	full, complete := c.reassemblePreHello(peerAddr, msg)
	if !complete {
		return
	}
	whole := handshake.Message{
		Header: handshake.Header{Type: handshake.TypeClientHello, Length: msg.Length, MessageSeq: msg.MessageSeq, FragmentOffset: 0, FragmentLength: msg.Length},
		Body:   full,
	}
	c.handleClientHelloTrigger(nil, peerAddr, rec, whole)
}

func (c *Connector) reassemblePreHello(peerAddr netip.AddrPort, msg handshake.Message) (body []byte, complete bool) {
	c.preHelloMu.Lock()
	defer c.preHelloMu.Unlock()
	if c.preHello == nil {
		c.preHello = make(map[netip.AddrPort]*fragment.Reassembler)
	}
	r, ok := c.preHello[peerAddr]
	if !ok {
		if len(c.preHello) >= maxPreHelloReassemblers {
			return nil, false
		}
		r = &fragment.Reassembler{}
		c.preHello[peerAddr] = r
	}
	full, done, err := r.AddFragment(msg.MessageSeq, byte(msg.Type), msg.Length, msg.FragmentOffset, msg.Body)
	if err != nil {
		delete(c.preHello, peerAddr)
		return nil, false
	}
	if done {
		delete(c.preHello, peerAddr)
	}
	return full, done
}

func (c *Connector) forgetPreHello(peerAddr netip.AddrPort) {
	c.preHelloMu.Lock()
	delete(c.preHello, peerAddr)
	c.preHelloMu.Unlock()
}

// deliverToHandshaker feeds rec to conn's ongoing handshaker (or, if it has
// none, routes it through the same ClientHello-trigger path a brand new
// connection would take) [spec.md §4.3 "existing connection"].
func (c *Connector) deliverToHandshaker(conn *connection.Connection, peerAddr netip.AddrPort, rec record.Record) {
	conn.Lock()
	h := conn.HandshakerLocked()
	if h == nil {
		conn.Unlock()
		c.routeHandshakeNoHandshaker(conn, peerAddr, rec)
		return
	}

	plaintext, ok := plaintextForHandshakeRecord(h.Session(), rec)
	if !ok {
		conn.Unlock()
		c.metrics.recordsDropped.WithLabelValues("handshake_decrypt").Inc()
		return
	}
	msg, _, err := handshake.Parse(plaintext)
	if err != nil {
		conn.Unlock()
		c.metrics.recordsDropped.WithLabelValues("handshake_parse").Inc()
		return
	}

	if msg.Type == handshake.TypeClientHello {
		if h.IsDuplicateStart(msg) {
			pending := conn.PendingFlightLocked()
			conn.Unlock()
			if pending != nil {
				c.restampAndResend(pending)
			}
			return
		}
		// a distinct ClientHello while a handshake is already under way:
		// abandon it and start over, subject to the same cookie round trip
		// a brand new connection would require [spec.md §4.3].
		if fl := conn.PendingFlightLocked(); fl != nil {
			c.clock.Cancel(fl)
			conn.SetPendingFlightLocked(nil)
		}
		conn.ClearHandshakerLocked()
		conn.Unlock()
		c.routeHandshakeNoHandshaker(conn, peerAddr, rec)
		return
	}

	reassembler := conn.ReassemblerLocked()
	full, complete, rerr := reassembler.AddFragment(msg.MessageSeq, byte(msg.Type), msg.Length, msg.FragmentOffset, msg.Body)
	if rerr != nil {
		conn.Unlock()
		c.metrics.recordsDropped.WithLabelValues("fragment").Inc()
		return
	}
	if !complete {
		conn.Unlock()
		return
	}
	fullMsg := handshake.Message{
		Header: handshake.Header{Type: msg.Type, Length: msg.Length, MessageSeq: msg.MessageSeq, FragmentOffset: 0, FragmentLength: msg.Length},
		Body:   full,
	}

	// Released before ProcessMessage: a handshake reaching stepEstablished
	// fires conn's establishment listener synchronously, which itself needs
	// conn's lock, and the receiver goroutine is the only caller of
	// ProcessMessage for a given Connection, so nothing else can race the
	// handshaker's own state in between [spec.md §4.3].
	conn.Unlock()
	fl, err := h.ProcessMessage(fullMsg, rec.SequenceNumber)
	if err != nil {
		if err == dtlserrors.FatalUnexpectedMessage {
			conn.Lock()
			pending := conn.PendingFlightLocked()
			conn.Unlock()
			if pending != nil {
				c.restampAndResend(pending)
				return
			}
		}
		c.handleHandshakeError(conn, peerAddr, err)
		return
	}
	if fl != nil {
		conn.Lock()
		c.armFlightLocked(conn, peerAddr, fl)
		conn.Unlock()
	}
}

// routeHandshakeNoHandshaker handles a HANDSHAKE record on an existing
// Connection that currently has no ongoing handshaker: the only thing this
// can be is a fresh ClientHello asking to (re)establish a session, which
// goes through the same cookie-gated trigger path used for brand new
// connections [spec.md §4.3].
func (c *Connector) routeHandshakeNoHandshaker(conn *connection.Connection, peerAddr netip.AddrPort, rec record.Record) {
	if rec.Epoch != 0 {
		c.metrics.recordsDropped.WithLabelValues("handshake_no_handshaker").Inc()
		return
	}
	msg, _, err := handshake.Parse(rec.Payload)
	if err != nil || msg.Type != handshake.TypeClientHello {
		c.metrics.recordsDropped.WithLabelValues("handshake_unexpected").Inc()
		return
	}
	c.handleClientHelloTrigger(conn, peerAddr, rec, msg)
}

// handleClientHelloTrigger implements the cookie round trip and the choice
// between full, resuming, or restarted handshake [spec.md §4.3 "Starting a
// new server handshake" / "Resumption"]. conn is nil when no Connection
// exists yet for peerAddr.
func (c *Connector) handleClientHelloTrigger(conn *connection.Connection, peerAddr netip.AddrPort, rec record.Record, msg handshake.Message) {
	ch, err := handshake.UnmarshalClientHello(msg.Body)
	if err != nil {
		c.metrics.recordsDropped.WithLabelValues("client_hello_parse").Inc()
		return
	}

	params := cookieParamsFromClientHello(ch)
	if len(ch.Cookie) == 0 || !c.cookieKey.Verify(peerAddr, params, ch.Cookie) {
		c.sendHelloVerifyRequest(peerAddr, params, msg.MessageSeq, rec.SequenceNumber)
		return
	}
	c.forgetPreHello(peerAddr)

	if conn == nil {
		if c.tryResume(ch, peerAddr, msg, rec) {
			return
		}
		c.startNewServerHandshake(nil, peerAddr, msg, rec)
		return
	}

	conn.Lock()
	established := conn.EstablishedSessionLocked()
	resumable := established != nil && len(ch.SessionID) > 0 && bytes.Equal(established.ID(), ch.SessionID)
	conn.Unlock()

	if resumable {
		c.startResumingHandshakeOnConnection(conn, peerAddr, msg, rec, established)
		return
	}
	c.startNewServerHandshake(conn, peerAddr, msg, rec)
}

func cookieParamsFromClientHello(ch handshake.ClientHello) cookie.Params {
	var suites []byte
	for _, id := range ch.CipherSuites {
		suites = binary.BigEndian.AppendUint16(suites, uint16(id))
	}
	return cookie.Params{
		ClientVersionMajor: ch.VersionMajor,
		ClientVersionMinor: ch.VersionMinor,
		ClientRandom:       ch.Random,
		SessionID:          ch.SessionID,
		CipherSuites:       suites,
		CompressionMethods: ch.CompressionMethods,
	}
}

// sendHelloVerifyRequest answers a ClientHello with a cookie, echoing the
// ClientHello's message_seq and its record's sequence number [rfc6347:4.2.1].
func (c *Connector) sendHelloVerifyRequest(peerAddr netip.AddrPort, params cookie.Params, messageSeq uint16, recordSeq uint64) {
	if !c.gate.Allow(peerAddr) {
		c.metrics.recordsDropped.WithLabelValues("cookie_gate").Inc()
		return
	}
	cookieBytes := c.cookieKey.Generate(peerAddr, params)
	hvr := handshake.HelloVerifyRequest{VersionMajor: 0xFE, VersionMinor: 0xFD, Cookie: cookieBytes}
	msg := handshake.WholeMessage(handshake.TypeHelloVerifyRequest, messageSeq, hvr.Marshal())
	rec := record.Record{
		Header:  record.Header{ContentType: record.ContentTypeHandshake, Epoch: 0, SequenceNumber: recordSeq},
		Payload: msg.Append(nil),
	}
	fl := flight.NewAlert([]record.Record{rec}, peerAddr, nil)
	c.sendFlightDatagrams(fl)
}

// tryResume looks for a prior established session matching ch's
// session-id and, if found, starts a resuming-server handshake on a new
// Connection bound to peerAddr while the old Connection (which may be at a
// different address) lingers until the resumed session establishes
// [spec.md §4.3 "Resumption"].
func (c *Connector) tryResume(ch handshake.ClientHello, peerAddr netip.AddrPort, msg handshake.Message, rec record.Record) bool {
	if len(ch.SessionID) == 0 {
		return false
	}
	oldConn, ok := c.store.Find(ch.SessionID)
	if !ok {
		return false
	}
	oldConn.Lock()
	oldSess := oldConn.EstablishedSessionLocked()
	oldConn.Unlock()
	oldAddr := oldConn.PeerAddr()
	if oldSess == nil {
		return false
	}

	resumedSess := session.Resume(oldSess, true)
	h := handshake.New(handshake.RoleResumingServer, resumedSess, c.cfg.Credentials, c.cfg.Rnd)
	newConn := connection.New(peerAddr)
	newConn.Lock()
	newConn.SetHandshakerLocked(h)
	newConn.Unlock()

	// the old connection is torn down only once the resumed session
	// actually establishes, not the moment resumption is attempted, so a
	// straggler from the old address during the handshake still lands
	// somewhere sane [spec.md §4.3 "Resumption"].
	h.AddListener(func() { c.terminate(oldConn, oldAddr) })
	c.armEstablishmentListener(newConn, peerAddr, h)

	c.store.Put(newConn)
	c.metrics.connectionsActive.Set(float64(c.store.Len()))
	c.metrics.handshakesStarted.Inc()
	c.deliverInitialHandshakeMessage(newConn, peerAddr, h, msg, rec)
	return true
}

func (c *Connector) startNewServerHandshake(conn *connection.Connection, peerAddr netip.AddrPort, msg handshake.Message, rec record.Record) {
	sess := session.New(nil, true)
	h := handshake.New(handshake.RoleServer, sess, c.cfg.Credentials, c.cfg.Rnd)

	if conn == nil {
		conn = connection.New(peerAddr)
		conn.Lock()
		conn.SetHandshakerLocked(h)
		conn.Unlock()
		c.armEstablishmentListener(conn, peerAddr, h)
		c.store.Put(conn)
		c.metrics.connectionsActive.Set(float64(c.store.Len()))
	} else {
		conn.Lock()
		conn.SetHandshakerLocked(h)
		conn.Unlock()
		c.armEstablishmentListener(conn, peerAddr, h)
	}
	c.metrics.handshakesStarted.Inc()
	c.deliverInitialHandshakeMessage(conn, peerAddr, h, msg, rec)
}

func (c *Connector) startResumingHandshakeOnConnection(conn *connection.Connection, peerAddr netip.AddrPort, msg handshake.Message, rec record.Record, establishedSess *session.Session) {
	resumedSess := session.Resume(establishedSess, true)
	h := handshake.New(handshake.RoleResumingServer, resumedSess, c.cfg.Credentials, c.cfg.Rnd)
	conn.Lock()
	conn.SetHandshakerLocked(h)
	conn.Unlock()
	c.armEstablishmentListener(conn, peerAddr, h)
	c.metrics.handshakesStarted.Inc()
	c.deliverInitialHandshakeMessage(conn, peerAddr, h, msg, rec)
}

// deliverInitialHandshakeMessage feeds the triggering ClientHello through a
// freshly constructed handshaker, first seeding its outbound sequence
// numbering from the ClientHello's own record sequence number
// [rfc6347:4.2.1].
func (c *Connector) deliverInitialHandshakeMessage(conn *connection.Connection, peerAddr netip.AddrPort, h handshake.Interface, msg handshake.Message, rec record.Record) {
	if sess := h.Session(); sess != nil {
		sess.SeedWriteSequence(0, rec.SequenceNumber)
	}
	fl, err := h.ProcessMessage(msg, rec.SequenceNumber)
	if err != nil {
		c.handleHandshakeError(conn, peerAddr, err)
		return
	}
	if fl != nil {
		conn.Lock()
		c.armFlightLocked(conn, peerAddr, fl)
		conn.Unlock()
	}
}

// armEstablishmentListener registers the finalization every handshaker
// needs once it reaches the established state: promote its session to
// conn's established session, drop the handshaker and its reassembly
// state, flush anything Send queued while the handshake was in flight, and
// update the session-id index [spec.md §4.3 "Outbound send", §7].
func (c *Connector) armEstablishmentListener(conn *connection.Connection, peerAddr netip.AddrPort, h handshake.Interface) {
	h.AddListener(func() {
		conn.Lock()
		sess := h.Session()
		conn.SetEstablishedSessionLocked(sess)
		conn.ClearHandshakerLocked()
		conn.SetResumptionRequiredLocked(false)
		if fl := conn.PendingFlightLocked(); fl != nil {
			c.clock.Cancel(fl)
			conn.SetPendingFlightLocked(nil)
		}
		deferred := conn.TakeDeferredAppDataLocked()
		conn.Unlock()

		c.store.Put(conn)
		c.gate.forget(peerAddr)
		c.metrics.handshakesCompleted.Inc()
		c.metrics.connectionsActive.Set(float64(c.store.Len()))

		for _, payload := range deferred {
			c.sendApplicationData(peerAddr, sess, payload)
		}
	})
}

// plaintextForHandshakeRecord returns rec's plaintext, decrypting against
// sess when the record is not at epoch 0, and committing the replay window
// update only once decryption succeeds.
func plaintextForHandshakeRecord(sess *session.Session, rec record.Record) ([]byte, bool) {
	if rec.Epoch == 0 {
		return rec.Payload, true
	}
	if sess == nil {
		return nil, false
	}
	commit, ok := sess.AcceptReplay(rec.SequenceNumber)
	if !ok {
		return nil, false
	}
	plaintext, ok := handshake.OpenRecord(sess, rec)
	if !ok {
		return nil, false
	}
	commit()
	return plaintext, true
}

// activeSessionLocked picks the session whose crypto state applies right
// now for encrypting an outbound alert: the ongoing handshaker's, if any,
// else the established one. conn.mu must already be held.
func activeSessionLocked(conn *connection.Connection) *session.Session {
	if h := conn.HandshakerLocked(); h != nil {
		return h.Session()
	}
	return conn.EstablishedSessionLocked()
}

// alertSessionForEpochLocked picks the session to decrypt an inbound alert
// record under, matching rec.Epoch against each candidate's read epoch in
// priority order: the established session first, then the ongoing
// handshake's, mirroring original_source/DTLSConnector.java's
// processAlertRecord. A re-handshake can leave an established session at
// read-epoch N receiving a fatal alert sent under the old epoch while a new
// handshaker sits at epoch 0 with no keys yet; checking the established
// session first ensures that alert still decrypts and tears the connection
// down instead of being handed to the wrong session and silently dropped.
// conn.mu must already be held.
func alertSessionForEpochLocked(conn *connection.Connection, epoch uint16) (*session.Session, bool) {
	if est := conn.EstablishedSessionLocked(); est != nil && est.ReadEpoch() == epoch {
		return est, true
	}
	if h := conn.HandshakerLocked(); h != nil {
		if hs := h.Session(); hs != nil && hs.ReadEpoch() == epoch {
			return hs, true
		}
	}
	return nil, false
}

func (c *Connector) handleHandshakeError(conn *connection.Connection, peerAddr netip.AddrPort, err error) {
	desc, ok := dtlserrors.AsAlert(err)
	if !ok {
		desc = record.AlertInternalError
	}
	conn.Lock()
	sess := activeSessionLocked(conn)
	conn.Unlock()
	c.sendAlert(peerAddr, sess, record.AlertLevelFatal, desc)
	c.notifyError(peerAddr, record.AlertLevelFatal, desc)
	c.terminate(conn, peerAddr)
}
