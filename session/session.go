// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

// Package session is the connector's per-connection security context
// [rfc6347:4.1]: session-id, read/write epoch, per-epoch write sequence
// counters, the replay window for the current read epoch, negotiated
// cipher suite and keys, negotiated max_fragment_length, and peer
// identity. A Session with write_epoch == 0 holds no keys and can only
// emit plaintext records.
package session

import (
	"crypto/cipher"
	"fmt"
	"sync"

	"github.com/coredtls/dtls12/ciphersuite"
	"github.com/coredtls/dtls12/constants"
	"github.com/coredtls/dtls12/replaywindow"
)

// Session is safe for concurrent use; every mutating method takes s.mu
// itself, matching the "mutual exclusion at session granularity"
// requirement for sequence allocation, replay updates, and epoch
// transitions.
type Session struct {
	mu sync.Mutex

	id []byte

	readEpoch  uint16
	writeEpoch uint16

	// nextWriteSeq is keyed by epoch so a flight re-stamping sequence
	// numbers across retransmissions at the same epoch keeps advancing
	// from where it left off rather than restarting.
	nextWriteSeq map[uint16]uint64

	replay *replaywindow.Window

	suite        ciphersuite.Suite
	keys         ciphersuite.Keys
	masterSecret []byte

	maxFragmentLength int
	peerIdentity      string

	roleServer bool
}

// New constructs a fresh Session at epoch 0 for id. roleServer controls
// which half of a ciphersuite.Keys pair is "ours" once keys are installed.
func New(id []byte, roleServer bool) *Session {
	return &Session{
		id:                append([]byte(nil), id...),
		nextWriteSeq:      map[uint16]uint64{0: 0},
		replay:            replaywindow.New(),
		maxFragmentLength: constants.DefaultMaxFragmentLength,
		roleServer:        roleServer,
	}
}

func (s *Session) ID() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.id...)
}

// NextWriteSequenceLocked allocates the next 48-bit sequence number for
// the session's current write epoch. Callers must already hold s.mu
// (retransmission re-serializes a flight at a stable epoch, so the
// sequence allocation happens alongside the rest of the send path under
// the same critical section).
func (s *Session) NextWriteSequenceLocked() (epoch uint16, seq uint64, err error) {
	epoch = s.writeEpoch
	seq = s.nextWriteSeq[epoch]
	if seq > constants.MaxSequenceNumber {
		return 0, 0, fmt.Errorf("session: write sequence number space exhausted at epoch %d", epoch)
	}
	s.nextWriteSeq[epoch] = seq + 1
	return epoch, seq, nil
}

// NextWriteSequenceAtEpoch allocates the next 48-bit sequence number for
// epoch specifically, rather than whichever epoch is currently "live". A
// retransmission re-seals a record that was originally built at an epoch
// that may no longer be the session's current one (a ChangeCipherSpec
// record in the same flight as a Finished sent one epoch later); sequence
// numbers must still advance per-epoch without reuse even then
// [spec.md §4.3 "Flight send and fragmentation into datagrams"].
func (s *Session) NextWriteSequenceAtEpoch(epoch uint16) (seq uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq = s.nextWriteSeq[epoch]
	if seq > constants.MaxSequenceNumber {
		return 0, fmt.Errorf("session: write sequence number space exhausted at epoch %d", epoch)
	}
	s.nextWriteSeq[epoch] = seq + 1
	return seq, nil
}

// SeedWriteSequence sets the next sequence number to be allocated at epoch,
// used once, right after a new server handshaker is created, to start the
// new handshaker's outbound numbering from the triggering ClientHello
// record's own sequence number [rfc6347:4.2.1].
func (s *Session) SeedWriteSequence(epoch uint16, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextWriteSeq[epoch] = seq
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

func (s *Session) ReadEpoch() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readEpoch
}

func (s *Session) WriteEpoch() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeEpoch
}

// AdvanceReadEpoch bumps the read epoch and installs a fresh replay
// window, since sequence numbers restart at 0 in the new epoch
// [rfc6347:4.1].
func (s *Session) AdvanceReadEpoch() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readEpoch++
	s.replay = replaywindow.New()
	return s.readEpoch
}

// AdvanceWriteEpoch bumps the write epoch and resets its sequence counter.
func (s *Session) AdvanceWriteEpoch() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeEpoch++
	s.nextWriteSeq[s.writeEpoch] = 0
	return s.writeEpoch
}

// HasKeys reports whether the session has completed a key exchange and
// can emit anything beyond plaintext records.
func (s *Session) HasKeys() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeEpoch > 0
}

// AcceptReplay checks seq against the replay window for the current read
// epoch without committing it; see replaywindow.Window.Accept.
func (s *Session) AcceptReplay(seq uint64) (commit func(), ok bool) {
	s.mu.Lock()
	w := s.replay
	s.mu.Unlock()
	return w.Accept(seq)
}

// InstallKeys records the negotiated cipher suite, keys, and master secret,
// advancing neither epoch itself; the caller advances read/write epoch on
// ChangeCipherSpec as RFC 6347 §4.2.2 directs. masterSecret is retained
// (not just its derived keys) so a later resumption can recompute Finished
// verify_data without redoing the key exchange.
func (s *Session) InstallKeys(suite ciphersuite.Suite, keys ciphersuite.Keys, masterSecret []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suite = suite
	s.keys = keys
	s.masterSecret = append([]byte(nil), masterSecret...)
}

func (s *Session) MasterSecret() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.masterSecret...)
}

func (s *Session) Suite() ciphersuite.Suite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suite
}

func (s *Session) WriteAEAD() (ciphersuite.Suite, cipher.AEAD) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suite, s.keys.WriteAEAD(s.roleServer)
}

func (s *Session) ReadAEAD() (ciphersuite.Suite, cipher.AEAD) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suite, s.keys.ReadAEAD(s.roleServer)
}

func (s *Session) SetMaxFragmentLength(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxFragmentLength = n
}

func (s *Session) MaxFragmentLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxFragmentLength
}

func (s *Session) SetPeerIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerIdentity = identity
}

func (s *Session) PeerIdentity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerIdentity
}

// Resume builds a new Session for a fresh connection at a (possibly new)
// peer address, carrying over the session-id, cipher suite, keys, and
// peer identity of a previously established session but resetting epochs
// and sequence counters back to 0, per the "resuming session derived from
// the prior one" step of resumption [rfc6347:4.2.8].
func Resume(prior *Session, roleServer bool) *Session {
	prior.mu.Lock()
	defer prior.mu.Unlock()

	resumed := New(prior.id, roleServer)
	resumed.suite = prior.suite
	resumed.keys = prior.keys
	resumed.masterSecret = append([]byte(nil), prior.masterSecret...)
	resumed.maxFragmentLength = prior.maxFragmentLength
	resumed.peerIdentity = prior.peerIdentity
	return resumed
}
