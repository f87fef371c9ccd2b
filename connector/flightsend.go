// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package connector

import (
	"errors"
	"net"
	"net/netip"
	"time"

	"github.com/coredtls/dtls12/constants"
	"github.com/coredtls/dtls12/flight"
	"github.com/coredtls/dtls12/handshake"
	"github.com/coredtls/dtls12/record"
)

// maxDatagramSizeFor picks the tighter of the discovered path MTU (less
// constants.InboundDatagramOverhead) and the flight's session's negotiated
// max_fragment_length (plus AEAD expansion)
// as the ceiling a single outbound datagram may not exceed
// [spec.md §4.3 "Flight send and fragmentation into datagrams"].
func (c *Connector) maxDatagramSizeFor(fl *flight.Flight) int {
	c.runMu.Lock()
	mtu := c.mtu
	c.runMu.Unlock()

	budget := mtu - constants.InboundDatagramOverhead
	if fl.Session != nil {
		if frag := fl.Session.MaxFragmentLength(); frag > 0 {
			if fragBudget := frag + constants.MaxCiphertextExpansion; fragBudget < budget {
				budget = fragBudget
			}
		}
	}
	if budget < constants.PlaintextRecordHeaderSize {
		budget = constants.PlaintextRecordHeaderSize
	}
	return budget
}

// packDatagrams greedily bin-packs records into datagrams no larger than
// maxSize, keeping each record's own record.Size() as the packing unit. A
// single record that alone exceeds maxSize is dropped with a log rather
// than sent oversized or split — DTLS records, unlike the handshake
// messages inside them, are not fragmentable [rfc6347:4.1]
// [spec.md §4.3 "Flight send and fragmentation into datagrams"]. The
// flight construction paths size their records well under maxSize, so
// this should not occur in practice, but the ceiling is still enforced
// here since it's one of the testable properties in §8.
func (c *Connector) packDatagrams(records []record.Record, maxSize int) [][]byte {
	var datagrams [][]byte
	var cur []byte
	for _, rec := range records {
		size := rec.Size()
		if size > maxSize {
			c.logger.Warnf("dtls12: dropping oversized record (type=%s, %d bytes > max %d)", rec.ContentType, size, maxSize)
			c.metrics.recordsDropped.WithLabelValues("oversized_record").Inc()
			continue
		}
		if len(cur) > 0 && len(cur)+size > maxSize {
			datagrams = append(datagrams, cur)
			cur = nil
		}
		cur = rec.Append(cur)
		if len(cur) >= maxSize {
			datagrams = append(datagrams, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		datagrams = append(datagrams, cur)
	}
	return datagrams
}

// sendFlightDatagrams packs fl's current Records into one or more
// datagrams and writes each to fl.PeerAddr.
func (c *Connector) sendFlightDatagrams(fl *flight.Flight) {
	if fl == nil || len(fl.Records) == 0 {
		return
	}
	maxSize := c.maxDatagramSizeFor(fl)
	for _, datagram := range c.packDatagrams(fl.Records, maxSize) {
		c.writeDatagram(fl.PeerAddr, datagram)
	}
}

func (c *Connector) writeDatagram(addr netip.AddrPort, datagram []byte) {
	c.runMu.Lock()
	socket := c.socket
	c.runMu.Unlock()
	if socket == nil {
		return
	}
	if _, err := socket.WriteToUDPAddrPort(datagram, addr); err != nil {
		if !errors.Is(err, net.ErrClosed) {
			c.logger.Warnf("dtls12: write to %s failed: %v", addr, err)
		}
	}
}

// restampAndResend re-seals every record in fl from its stored plaintext,
// allocating fresh per-epoch sequence numbers, then resends the result.
// Flights built without Plaintexts (HelloVerifyRequest, alerts) are never
// scheduled for retransmission in the first place, so this is only ever
// reached for flights that have them.
func (c *Connector) restampAndResend(fl *flight.Flight) {
	if fl.Plaintexts != nil && fl.Session != nil {
		records := make([]record.Record, len(fl.Plaintexts))
		for i, p := range fl.Plaintexts {
			records[i] = handshake.SealRecordAtEpoch(fl.Session, p.Epoch, p.ContentType, p.Body)
		}
		fl.Records = records
	}
	c.sendFlightDatagrams(fl)
}

// onFlightFire is the retransmission clock's fire callback
// [spec.md §4.3 "Retransmission"]: back off fl's timeout, abandon it
// silently past max_retransmissions, or re-seal and resend it and
// reschedule the next deadline.
func (c *Connector) onFlightFire(fl *flight.Flight) {
	if abandon := fl.Backoff(c.cfg.MaxRetransmissions); abandon {
		if conn, ok := c.store.Get(fl.PeerAddr); ok {
			conn.Lock()
			if conn.PendingFlightLocked() == fl {
				conn.SetPendingFlightLocked(nil)
			}
			conn.Unlock()
		}
		return
	}
	c.metrics.retransmissions.Inc()
	c.restampAndResend(fl)
	c.clock.Schedule(fl, time.Now().Add(time.Duration(fl.TimeoutMs)*time.Millisecond))
}
