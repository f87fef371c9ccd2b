// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"bytes"
	"net/netip"
	"sync"

	"github.com/coredtls/dtls12/ciphersuite"
	"github.com/coredtls/dtls12/credentials"
	"github.com/coredtls/dtls12/dtlserrors"
	"github.com/coredtls/dtls12/dtlsrand"
	"github.com/coredtls/dtls12/flight"
	"github.com/coredtls/dtls12/record"
	"github.com/coredtls/dtls12/session"
)

// Role tags which of the four handshaker variants a Handshaker plays
// [rfc6347:4.2.8]. Modelled as a tagged variant over a shared behavior set
// rather than four separate types with a common interface, since the
// differences between them are a handful of steps, not the whole state
// machine.
type Role int

const (
	RoleClient Role = iota
	RoleServer
	RoleResumingClient
	RoleResumingServer
)

func (r Role) isServer() bool { return r == RoleServer || r == RoleResumingServer }
func (r Role) isResuming() bool {
	return r == RoleResumingClient || r == RoleResumingServer
}

// step orders a handshaker's progress through its flow; it exists purely
// for internal bookkeeping and assertions, not wire representation.
type step int

const (
	stepNotStarted step = iota
	stepHelloSent
	stepAwaitingClientKeyExchange // server, full handshake
	stepAwaitingFinished
	stepEstablished
)

// Handshaker is the connector's per-peer handshake state machine
// [rfc6347:4.2.2], the sole object ProcessMessage/StartHandshakeMessage/
// HasBeenStartedBy/AddListener are defined on for all four roles.
type Handshaker struct {
	mu sync.Mutex

	role Role
	step step

	// started/startMessageSeq record the message_seq of the ClientHello
	// that first moved this handshaker out of stepNotStarted, so a later
	// retransmitted ClientHello carrying the same message_seq can be
	// recognized as a duplicate of the one that already started this
	// handshake rather than a new one [rfc6347:4.2.8].
	started         bool
	startMessageSeq uint16

	sess  *session.Session
	creds credentials.Store
	rnd   dtlsrand.Rand

	nextSendSeq uint16

	listeners []func()

	clientRandom, serverRandom [32]byte
	sessionID                  []byte
	cookie                     []byte
	suite                      ciphersuite.Suite
	pskIdentity                []byte
	localECDHE                 ciphersuite.ECDHEKeyPair
	peerECDHEPublic            [32]byte
	masterSecret               []byte
	transcript                 bytes.Buffer
}

// New constructs a Handshaker bound to sess for the given role. sess
// already carries the right starting state: a fresh Session at epoch 0
// for Client/Server, or the output of session.Resume for the resuming
// roles.
func New(role Role, sess *session.Session, creds credentials.Store, rnd dtlsrand.Rand) *Handshaker {
	return &Handshaker{role: role, sess: sess, creds: creds, rnd: rnd}
}

func (h *Handshaker) Session() *session.Session { return h.sess }

func (h *Handshaker) AddListener(fn func()) {
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

func (h *Handshaker) fireListeners() {
	for _, fn := range h.listeners {
		fn()
	}
}

// HasBeenStartedBy reports whether msg is the message that would cause the
// connector to spin up a handshaker of this role in the first place — the
// classic CLIENT_HELLO for the two server roles. Client roles are always
// started explicitly via StartHandshakeMessage, never by an inbound
// message.
func (h *Handshaker) HasBeenStartedBy(msg Message) bool {
	return h.role.isServer() && msg.Type == TypeClientHello
}

// IsDuplicateStart reports whether msg is a retransmission of the very
// ClientHello that originally started this handshake (same message_seq),
// as opposed to a later, distinct ClientHello arriving while a handshake is
// already underway [rfc6347:4.2.8].
func (h *Handshaker) IsDuplicateStart(msg Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started && msg.Type == TypeClientHello && msg.MessageSeq == h.startMessageSeq
}

func (h *Handshaker) record(ct record.ContentType, plaintext []byte) (record.Record, flight.PlaintextRecord) {
	epoch := h.sess.WriteEpoch()
	rec := sealRecord(h.sess, ct, plaintext)
	return rec, flight.PlaintextRecord{ContentType: ct, Epoch: epoch, Body: plaintext}
}

func (h *Handshaker) handshakeRecord(msg Message) (record.Record, flight.PlaintextRecord) {
	body := msg.Append(nil)
	h.transcript.Write(body)
	return h.record(record.ContentTypeHandshake, body)
}

// StartHandshakeMessage builds the flight that kicks off a client-role
// handshake: a ClientHello with an empty cookie for a fresh handshake, or
// one already carrying the session-id being resumed.
func (h *Handshaker) StartHandshakeMessage() *flight.Flight {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.role.isServer() {
		return nil
	}

	h.rnd.ReadMust(h.clientRandom[:])
	if h.role == RoleResumingClient {
		h.sessionID = h.sess.ID()
		h.suite = h.sess.Suite()
	}

	ch := ClientHello{
		VersionMajor:       0xFE,
		VersionMinor:       0xFD,
		Random:             h.clientRandom,
		SessionID:          h.sessionID,
		Cookie:             h.cookie,
		CipherSuites:       ciphersuite.Supported(),
		CompressionMethods: []byte{0},
	}
	msg := WholeMessage(TypeClientHello, h.nextSendSeq, ch.Marshal())
	h.nextSendSeq++
	h.step = stepHelloSent

	rec, plain := h.handshakeRecord(msg)
	// PeerAddr is left zero; the connector fills it in from the owning
	// Connection when it schedules the flight, since the handshaker has no
	// notion of peer addressing of its own.
	fl := flight.New([]record.Record{rec}, netip.AddrPort{}, h.sess, flight.DefaultInitialTimeout)
	fl.Plaintexts = []flight.PlaintextRecord{plain}
	return fl
}

// ProcessMessage advances the state machine with one reassembled handshake
// message (or, for the pseudo-type TypeChangeCipherSpecSignal, a
// ChangeCipherSpec record, which the connector also routes to the
// handshaker per §4.3's "delivered to the ongoing handshaker").
// triggeringRecordSeq is the record-layer sequence number the message
// arrived on. None of the role flows reads it: the HelloVerifyRequest that
// echoes a ClientHello's record sequence number is built by the connector,
// not by a Handshaker.
func (h *Handshaker) ProcessMessage(msg Message, triggeringRecordSeq uint64) (*flight.Flight, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.Type == TypeChangeCipherSpecSignal {
		return h.processChangeCipherSpecLocked()
	}

	switch h.role {
	case RoleServer:
		return h.processServerLocked(msg, triggeringRecordSeq)
	case RoleClient:
		return h.processClientLocked(msg)
	case RoleResumingServer:
		return h.processResumingServerLocked(msg, triggeringRecordSeq)
	case RoleResumingClient:
		return h.processResumingClientLocked(msg)
	default:
		return nil, dtlserrors.FatalInternalError
	}
}

// TypeChangeCipherSpecSignal is not a real handshake message type; the
// connector synthesizes a Message carrying it to push an inbound
// ChangeCipherSpec record through the same ProcessMessage entry point.
const TypeChangeCipherSpecSignal Type = 255

func (h *Handshaker) processChangeCipherSpecLocked() (*flight.Flight, error) {
	h.sess.AdvanceReadEpoch()
	return nil, nil
}

// Interface is the shape the connector programs against — the shared
// behavior set all four roles expose [rfc6347:4.2.2].
type Interface interface {
	ProcessMessage(msg Message, triggeringRecordSeq uint64) (*flight.Flight, error)
	StartHandshakeMessage() *flight.Flight
	HasBeenStartedBy(msg Message) bool
	IsDuplicateStart(msg Message) bool
	AddListener(fn func())
	Session() *session.Session
}

var _ Interface = (*Handshaker)(nil)
