// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package session

import (
	"bytes"
	"testing"

	"github.com/coredtls/dtls12/ciphersuite"
)

func TestWriteSequenceMonotonicWithinEpoch(t *testing.T) {
	s := New([]byte{1, 2, 3}, false)

	s.Lock()
	_, seq0, err := s.NextWriteSequenceLocked()
	s.Unlock()
	if err != nil || seq0 != 0 {
		t.Fatalf("expected first sequence number 0, got %d err=%v", seq0, err)
	}

	s.Lock()
	_, seq1, err := s.NextWriteSequenceLocked()
	s.Unlock()
	if err != nil || seq1 != 1 {
		t.Fatalf("expected second sequence number 1, got %d err=%v", seq1, err)
	}
}

func TestAdvanceWriteEpochResetsSequence(t *testing.T) {
	s := New([]byte{1}, false)
	s.Lock()
	s.NextWriteSequenceLocked()
	s.NextWriteSequenceLocked()
	s.Unlock()

	s.AdvanceWriteEpoch()

	s.Lock()
	epoch, seq, err := s.NextWriteSequenceLocked()
	s.Unlock()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if epoch != 1 || seq != 0 {
		t.Fatalf("expected epoch 1 seq 0 after advancing, got epoch=%d seq=%d", epoch, seq)
	}
}

func TestHasKeysFalseUntilWriteEpochAdvances(t *testing.T) {
	s := New([]byte{1}, false)
	if s.HasKeys() {
		t.Fatalf("a fresh session at epoch 0 must report no keys")
	}
	s.AdvanceWriteEpoch()
	if !s.HasKeys() {
		t.Fatalf("a session at write_epoch > 0 must report it holds keys")
	}
}

func TestAdvanceReadEpochResetsReplayWindow(t *testing.T) {
	s := New([]byte{1}, false)
	commit, ok := s.AcceptReplay(5)
	if !ok {
		t.Fatalf("expected first sighting of seq 5 accepted")
	}
	commit()

	s.AdvanceReadEpoch()

	if _, ok := s.AcceptReplay(5); !ok {
		t.Fatalf("seq 5 under the new read epoch's fresh window must be accepted again")
	}
}

func TestResumeCarriesIdentityAndKeysNotEpoch(t *testing.T) {
	prior := New([]byte{9, 9}, false)
	prior.AdvanceWriteEpoch()
	prior.AdvanceReadEpoch()
	prior.SetPeerIdentity("device-42")

	suite := ciphersuite.Get(ciphersuite.TLS_ECDHE_PSK_WITH_AES_128_GCM_SHA256)
	keys, _ := suite.DeriveKeys(bytes.Repeat([]byte{7}, 48), bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32))
	prior.InstallKeys(suite, keys, bytes.Repeat([]byte{7}, 48))

	resumed := Resume(prior, false)
	if resumed.WriteEpoch() != 0 || resumed.ReadEpoch() != 0 {
		t.Fatalf("a resumed session must start at epoch 0")
	}
	if resumed.PeerIdentity() != "device-42" {
		t.Fatalf("resumed session must carry over the prior peer identity")
	}
	if !bytes.Equal(resumed.ID(), prior.ID()) {
		t.Fatalf("resumed session must carry over the session-id")
	}
	if resumed.Suite() == nil {
		t.Fatalf("resumed session must carry over the negotiated suite")
	}
}
