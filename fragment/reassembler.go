// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

// Package fragment reassembles DTLS handshake messages from one or more
// record-layer fragments [rfc6347:4.2.2, 4.2.3].
//
// Deviation from the original source (flagged, not silently fixed — see
// spec §9 "Fragment buffer scope"): the original keeps a single
// process-wide map keyed only by message_seq, which conflates unrelated
// peers whose message_seq numbers collide. A Reassembler here is owned by
// one Connection's ongoing handshake, so message_seq is only ever compared
// within that peer's own handshake.
package fragment

import (
	"sort"

	"github.com/coredtls/dtls12/constants"
	"github.com/coredtls/dtls12/dtlserrors"
)

type rawFragment struct {
	offset uint32
	data   []byte
}

type pendingMessage struct {
	handshakeType byte
	totalLength   uint32
	fragments     []rawFragment
}

// Reassembler buffers fragments for every message_seq of one ongoing
// handshake. Zero value is ready to use.
type Reassembler struct {
	pending map[uint16]*pendingMessage
}

// AddFragment adds one fragment of message messageSeq. When the fragments
// collected so far cover [0, totalLength) contiguously, it returns the
// reassembled message and evicts messageSeq. A fragment that conflicts with
// a previously declared handshakeType/totalLength for the same messageSeq
// discards everything buffered for that messageSeq (per §4.2 edge cases).
func (r *Reassembler) AddFragment(messageSeq uint16, handshakeType byte, totalLength uint32, fragmentOffset uint32, fragmentBytes []byte) (message []byte, complete bool, err error) {
	if r.pending == nil {
		r.pending = make(map[uint16]*pendingMessage)
	}
	pm, ok := r.pending[messageSeq]
	if ok && (pm.handshakeType != handshakeType || pm.totalLength != totalLength) {
		delete(r.pending, messageSeq)
		return nil, false, dtlserrors.WarnFragmentConflict
	}
	if !ok {
		pm = &pendingMessage{handshakeType: handshakeType, totalLength: totalLength}
		r.pending[messageSeq] = pm
	}

	if len(pm.fragments) >= constants.MaxAssemblerFragments && !containsExact(pm.fragments, fragmentOffset, fragmentBytes) {
		return nil, false, dtlserrors.WarnFragmentBufferFull
	}
	pm.insert(fragmentOffset, fragmentBytes)

	reassembled, done := pm.walk()
	if !done {
		return nil, false, nil
	}
	delete(r.pending, messageSeq)
	return reassembled, true, nil
}

// Discard evicts any buffered fragments for messageSeq without reassembling.
func (r *Reassembler) Discard(messageSeq uint16) {
	delete(r.pending, messageSeq)
}

func containsExact(fragments []rawFragment, offset uint32, data []byte) bool {
	for _, f := range fragments {
		if f.offset == offset && len(f.data) == len(data) {
			match := true
			for i := range data {
				if f.data[i] != data[i] {
					match = false
					break
				}
			}
			if match {
				return true
			}
		}
	}
	return false
}

func (pm *pendingMessage) insert(offset uint32, data []byte) {
	if containsExact(pm.fragments, offset, data) {
		return // duplicate fragment: idempotent, no progress [spec §4.2]
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	pm.fragments = append(pm.fragments, rawFragment{offset: offset, data: buf})
	sort.Slice(pm.fragments, func(i, j int) bool { return pm.fragments[i].offset < pm.fragments[j].offset })
}

// walk reproduces the spec's literal reassembly algorithm: walk fragments in
// offset order, appending bytes at the current reassembly length, and for a
// fragment whose offset lies within what's already been appended, appending
// only the suffix beyond the current tail.
func (pm *pendingMessage) walk() (message []byte, complete bool) {
	out := make([]byte, 0, pm.totalLength)
	var curLen uint32
	for _, f := range pm.fragments {
		fEnd := f.offset + uint32(len(f.data))
		switch {
		case f.offset > curLen:
			// gap: reassembly stalls until it is filled [spec §4.2]
			return nil, false
		case fEnd <= curLen:
			// fully contained in what we already have; skip
			continue
		default:
			suffixStart := curLen - f.offset
			out = append(out, f.data[suffixStart:]...)
			curLen = fEnd
		}
	}
	if curLen < pm.totalLength {
		return nil, false
	}
	if uint32(len(out)) > pm.totalLength {
		out = out[:pm.totalLength]
	}
	return out, true
}
