// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package connector

import (
	"net/netip"

	"github.com/coredtls/dtls12/connection"
	"github.com/coredtls/dtls12/flight"
	"github.com/coredtls/dtls12/handshake"
	"github.com/coredtls/dtls12/record"
	"github.com/coredtls/dtls12/session"
)

// sendAlert seals (when sess has keys) or sends in the clear (when it
// does not yet) a single alert record to peerAddr. Sending an alert
// bypasses retransmission entirely [spec.md §4.3 "Error / alert
// handling"].
func (c *Connector) sendAlert(peerAddr netip.AddrPort, sess *session.Session, level record.AlertLevel, desc record.AlertDescription) {
	plaintext := record.Alert{Level: level, Description: desc}.Append(nil)

	var rec record.Record
	if sess != nil {
		rec = handshake.SealRecord(sess, record.ContentTypeAlert, plaintext)
	} else {
		rec = record.Record{
			Header:  record.Header{ContentType: record.ContentTypeAlert, Epoch: 0, SequenceNumber: 0},
			Payload: plaintext,
		}
	}
	fl := flight.NewAlert([]record.Record{rec}, peerAddr, sess)
	c.sendFlightDatagrams(fl)
}

// sendCloseNotify sends a warning-level close_notify under whichever
// session is currently live for conn [spec.md §4.3 "Close"].
func (c *Connector) sendCloseNotify(conn *connection.Connection, peerAddr netip.AddrPort) {
	conn.Lock()
	sess := activeSessionLocked(conn)
	conn.Unlock()
	c.sendAlert(peerAddr, sess, record.AlertLevelWarning, record.AlertCloseNotify)
}

// sendApplicationData seals and sends payload as its own flight, bypassing
// retransmission, used both for Send on an already-established connection
// and to flush the backlog an establishment listener picks up
// [spec.md §4.3 "Outbound send"].
func (c *Connector) sendApplicationData(peerAddr netip.AddrPort, sess *session.Session, payload []byte) {
	if sess == nil {
		return
	}
	rec := handshake.SealRecord(sess, record.ContentTypeApplicationData, payload)
	fl := flight.NewAlert([]record.Record{rec}, peerAddr, sess)
	c.sendFlightDatagrams(fl)
}
