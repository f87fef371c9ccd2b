// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package connector

import (
	"time"

	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coredtls/dtls12/constants"
	"github.com/coredtls/dtls12/credentials"
	"github.com/coredtls/dtls12/dtlsrand"
)

// Config is the connector's External Interfaces surface: bind address,
// credential material, and the handful of recognized tuning knobs
// [spec.md §6 "Configuration"].
type Config struct {
	BindAddress string
	RoleServer  bool

	Credentials credentials.Store
	Rnd         dtlsrand.Rand

	// PSKIdentity is the identity this connector advertises in
	// ClientKeyExchange when it initiates a handshake. Servers never read
	// this field; a connector can still accept inbound connections
	// without one set.
	PSKIdentity []byte

	OutboundQueueCapacity int
	MaxRetransmissions    int
	InitialRetransmitTimeout time.Duration
	CookieValidDuration   time.Duration

	// MaxFragmentLengthCode is null (0) or one of the RFC 6066 codes
	// (1..4 for 512/1024/2048/4096). 0 means the default
	// constants.DefaultMaxFragmentLength applies.
	MaxFragmentLengthCode uint8

	// CookieGateRatePerSecond/Burst bound how many HELLO_VERIFY_REQUEST
	// datagrams one source address can provoke per second, the
	// anti-amplification machinery the overview names as in scope.
	CookieGateRatePerSecond float64
	CookieGateBurst         int

	Logger            logging.LeveledLogger
	MetricsRegisterer prometheus.Registerer
}

// DefaultConfig fills in every ambient knob the connector needs beyond
// the caller-supplied bind address, role, credentials, and randomness
// source, mirroring the teacher's DefaultTransportOptions constructor.
func DefaultConfig(bindAddress string, roleServer bool, creds credentials.Store, rnd dtlsrand.Rand) *Config {
	return &Config{
		BindAddress:              bindAddress,
		RoleServer:               roleServer,
		Credentials:              creds,
		Rnd:                      rnd,
		OutboundQueueCapacity:    constants.DefaultOutboundQueueCapacity,
		MaxRetransmissions:       constants.DefaultMaxRetransmissions,
		InitialRetransmitTimeout: constants.DefaultInitialRetransmitTimeout,
		CookieValidDuration:      constants.CookieRotationInterval,
		CookieGateRatePerSecond:  20,
		CookieGateBurst:          40,
	}
}

func (c *Config) maxFragmentLength() int {
	switch c.MaxFragmentLengthCode {
	case 1:
		return 512
	case 2:
		return 1024
	case 3:
		return 2048
	case 4:
		return 4096
	default:
		return constants.DefaultMaxFragmentLength
	}
}

func (c *Config) logger() logging.LeveledLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.NewDefaultLoggerFactory().NewLogger("dtls12")
}

func (c *Config) registerer() prometheus.Registerer {
	if c.MetricsRegisterer != nil {
		return c.MetricsRegisterer
	}
	return prometheus.DefaultRegisterer
}
