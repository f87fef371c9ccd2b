// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package connector

import "github.com/prometheus/client_golang/prometheus"

// metrics are incremented at the same points §7's error-handling design
// already names as observable transitions; this adds observability, not
// behavior.
type metrics struct {
	recordsDropped      *prometheus.CounterVec
	replayRejected      prometheus.Counter
	retransmissions     prometheus.Counter
	connectionsActive   prometheus.Gauge
	handshakesStarted   prometheus.Counter
	handshakesCompleted prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		recordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dtls_records_dropped_total",
			Help: "Records dropped by the connector, labeled by reason.",
		}, []string{"reason"}),
		replayRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtls_replay_rejected_total",
			Help: "Records rejected by the per-session anti-replay window.",
		}),
		retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtls_retransmissions_total",
			Help: "Flights resent after a retransmission timeout.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dtls_connections_active",
			Help: "Connections currently registered in the connection store.",
		}),
		handshakesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtls_handshakes_started_total",
			Help: "Handshakes started, client or server, full or resuming.",
		}),
		handshakesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dtls_handshakes_completed_total",
			Help: "Handshakes that reached the established state.",
		}),
	}
	if reg != nil {
		// Registration failures (duplicate metric from a prior connector in
		// the same process/registry) are not fatal to starting a connector.
		_ = reg.Register(m.recordsDropped)
		_ = reg.Register(m.replayRejected)
		_ = reg.Register(m.retransmissions)
		_ = reg.Register(m.connectionsActive)
		_ = reg.Register(m.handshakesStarted)
		_ = reg.Register(m.handshakesCompleted)
	}
	return m
}
