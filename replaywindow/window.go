// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

// Package replaywindow guards one (session, read_epoch) pair's sequence
// number space against replay [rfc6347:4.1.2.6]. It is a thin wrapper over
// pion/transport's replaydetector, the same anti-replay primitive the
// pion DTLS stack in the retrieval pack (nvswa-dtls, a pion/dtls/v2
// checkout) depends on for its SRTP/DTLS record replay protection.
package replaywindow

import (
	"sync"

	"github.com/pion/transport/v3/replaydetector"

	"github.com/coredtls/dtls12/constants"
)

// maxSequenceNumber is the largest value a 48-bit DTLS sequence number can
// hold [rfc6347:4.1].
const maxSequenceNumber = (uint64(1) << 48) - 1

// Window is a replay window for a single (session, read_epoch) pair. It is
// safe for concurrent use; callers still must not decrypt or deliver a
// record until Accept has returned ok==true, and must call commit only
// after a successful decrypt (per §4.3: "the window is updated only after
// successful decrypt").
type Window struct {
	mu       sync.Mutex
	detector replaydetector.ReplayDetector
}

func New() *Window {
	return &Window{detector: replaydetector.New(constants.ReplayWindowSize, maxSequenceNumber)}
}

// Accept checks seq against the window without committing it. It returns a
// commit function to call once (and only if) the record has successfully
// decrypted; calling commit marks seq as seen.
func (w *Window) Accept(seq uint64) (commit func(), ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	accept, ok := w.detector.Check(seq)
	if !ok {
		return nil, false
	}
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		accept()
	}, true
}
