// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package connector

import (
	"errors"
	"net"
	"net/netip"
	"time"

	"github.com/coredtls/dtls12/record"
)

// goRunReceiver is the connector's inbound loop, adapted from the
// teacher's goRunReceiverUDP (transport/receiver.go): read, process
// whatever arrived even alongside an error, and stop cleanly on socket
// close rather than busy-spinning on every transient read error.
func (c *Connector) goRunReceiver() {
	datagram := make([]byte, 65535)
	for {
		n, peerAddr, err := c.socket.ReadFromUDPAddrPort(datagram)
		if n != 0 {
			buf := make([]byte, n)
			copy(buf, datagram[:n])
			c.processDatagram(buf, peerAddr)
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-c.closeCh:
				return
			default:
			}
			c.logger.Warnf("dtls12: receive error: %v", err)
			time.Sleep(time.Millisecond)
		}
	}
}

// processDatagram splits datagram into its constituent records and routes
// each independently, so one malformed record's tail truncation does not
// discard records that parsed fine before it [rfc6347:4.1].
func (c *Connector) processDatagram(datagram []byte, peerAddr netip.AddrPort) {
	records, truncated := record.ParseDatagram(datagram)
	if truncated {
		c.metrics.recordsDropped.WithLabelValues("datagram_truncated").Inc()
	}
	for _, rec := range records {
		c.routeRecord(rec, peerAddr)
	}
}
