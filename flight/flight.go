// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

// Package flight is an ordered group of handshake (or alert) records sent
// together and retransmitted as a unit [rfc6347:4.2.4]. A Flight's
// HeapIndex field lets the connector's retransmission scheduler park it in
// an intrusive.IntrusiveHeap without a separate allocation per timer.
package flight

import (
	"net/netip"
	"time"

	"github.com/coredtls/dtls12/constants"
	"github.com/coredtls/dtls12/record"
	"github.com/coredtls/dtls12/session"
)

// PlaintextRecord is the pre-seal content of one of a Flight's Records,
// kept around so a retransmission can re-seal with a fresh sequence number
// rather than resend a ciphertext whose AEAD tag is bound to the sequence
// number it was first sent with [rfc6347:4.2.4] ("the total number of
// messages, content types, and order of messages ... must remain the same
// ... the sequence number ... MAY differ").
type PlaintextRecord struct {
	ContentType record.ContentType
	Epoch       uint16 // epoch the record was originally sealed at
	Body        []byte
}

// Flight is an ordered list of records to be sent together, plus the
// retransmission bookkeeping the connector's timer heap drives.
// Invariant: every record in Records shares PeerAddr.
type Flight struct {
	// HeapIndex is intrusive.IntrusiveHeap's externally-stored slot index;
	// 0 means "not currently scheduled".
	HeapIndex int

	Records  []record.Record
	PeerAddr netip.AddrPort

	Session *session.Session // nil for a pre-session flight such as HelloVerifyRequest

	// Plaintexts mirrors Records one-to-one when non-nil, letting a
	// retransmission re-seal each record instead of resending the original
	// ciphertext bytes. Left nil for flights that need no re-sealing
	// (HelloVerifyRequest, alerts).
	Plaintexts []PlaintextRecord

	Tries            int
	TimeoutMs        int
	RetransmitNeeded bool

	DeadlineAt time.Time // set by the scheduler; compared by the heap predicate
}

// New builds a flight ready for its first send, with retransmission armed
// and the configured initial timeout.
func New(records []record.Record, peerAddr netip.AddrPort, sess *session.Session, initialTimeout time.Duration) *Flight {
	return &Flight{
		Records:          records,
		PeerAddr:         peerAddr,
		Session:          sess,
		TimeoutMs:        int(initialTimeout / time.Millisecond),
		RetransmitNeeded: true,
	}
}

// NewAlert builds a flight for an alert send, which bypasses retransmission
// entirely per spec: "Sending an alert bypasses retransmission
// (retransmit_needed = false)".
func NewAlert(records []record.Record, peerAddr netip.AddrPort, sess *session.Session) *Flight {
	return &Flight{
		Records:          records,
		PeerAddr:         peerAddr,
		Session:          sess,
		RetransmitNeeded: false,
	}
}

// Less is the heap predicate: the flight with the earliest deadline sorts
// first, so the scheduler's front element is always the next thing due.
func Less(a, b *Flight) bool { return a.DeadlineAt.Before(b.DeadlineAt) }

// Backoff doubles TimeoutMs and increments Tries, reporting whether the
// flight has exceeded max_retransmissions and should be abandoned
// ("the flight is abandoned (no fatal alert; the handshake simply stalls)").
func (f *Flight) Backoff(maxRetransmissions int) (abandon bool) {
	f.Tries++
	if f.Tries > maxRetransmissions {
		return true
	}
	f.TimeoutMs *= 2
	return false
}

// DefaultInitialTimeout and DefaultMaxRetransmissions mirror the
// connector's configuration defaults so a flight built without an
// explicit config still behaves sanely in tests.
const (
	DefaultInitialTimeout  = constants.DefaultInitialRetransmitTimeout
	DefaultMaxRetransmissions = constants.DefaultMaxRetransmissions
)
