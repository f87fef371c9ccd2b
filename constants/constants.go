// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

// Package constants collects the small fixed numbers the connector,
// record codec and fragment reassembler all need to agree on.
package constants

import "time"

// PlaintextRecordHeaderSize is the fixed DTLS 1.2 record header: type(1) +
// legacy version(2) + epoch(2) + sequence number(6) + length(2) [rfc6347:4.1].
const PlaintextRecordHeaderSize = 13

// MaxPlaintextFragmentLength is the default upper bound on a record's
// plaintext payload, reduced by a negotiated max_fragment_length extension.
const MaxPlaintextFragmentLength = 16384

// MaxCiphertextExpansion is a conservative bound on AEAD overhead (explicit
// nonce + tag) added to a plaintext fragment when sealed.
const MaxCiphertextExpansion = 48

// InboundDatagramOverhead matches the "+25" budget the spec calls out for
// the inbound buffer: header slack plus a margin for padding.
const InboundDatagramOverhead = 25

// MinimumMTU is the RFC-mandated IPv6 minimum and the fallback used when the
// OS cannot report an interface MTU. Never the historical "200" bug.
const MinimumMTU = 1280

// MessageHandshakeHeaderSize is type(1) + length(3) + message_seq(2) +
// fragment_offset(3) + fragment_length(3) [rfc6347:4.2.2].
const MessageHandshakeHeaderSize = 12

// MaxOutgoingApplicationPayload is the send-boundary limit on application data.
const MaxOutgoingApplicationPayload = 16384

// CookieRotationInterval is how long a CookieMacKey is used before rotation.
const CookieRotationInterval = 5 * time.Minute

// MaxCookieSize bounds the HMAC-SHA256 cookie body carried on the wire.
const MaxCookieSize = 32

// DefaultOutboundQueueCapacity bounds the connector's outbound message queue.
const DefaultOutboundQueueCapacity = 256

// DefaultInitialRetransmitTimeout and DefaultMaxRetransmissions are the
// flight retransmission defaults absent explicit configuration.
const DefaultInitialRetransmitTimeout = 1 * time.Second
const DefaultMaxRetransmissions = 6

// ReplayWindowSize is the width of the sliding anti-replay bitmap per
// (session, read epoch).
const ReplayWindowSize = 64

// MaxAssemblerFragments bounds how many distinct fragments the reassembler
// tracks per message before refusing further ones (protects against a peer
// sending pathologically many tiny fragments).
const MaxAssemblerFragments = 32

// MaxSequenceNumber is the largest value a 48-bit record sequence number
// can hold [rfc6347:4.1].
const MaxSequenceNumber = (uint64(1) << 48) - 1

// DefaultMaxFragmentLength is the negotiated fragment size absent a
// max_fragment_length extension or PMTU-driven override.
const DefaultMaxFragmentLength = MaxPlaintextFragmentLength
