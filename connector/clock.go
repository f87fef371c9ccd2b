// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package connector

import (
	"sync"
	"time"

	"github.com/coredtls/dtls12/flight"
	"github.com/coredtls/dtls12/intrusive"
)

// retransmitClock is a single task driving every pending flight's
// retransmission deadline off one intrusive min-heap, adapted from the
// teacher's Clock (transport/statemachine/clock.go) with Connection
// replaced by flight.Flight as the heap element — this connector schedules
// per-flight deadlines directly rather than per-connection watchdog
// timers.
type retransmitClock struct {
	cond     chan struct{}
	shutdown chan struct{}
	done     chan struct{}

	mu     sync.Mutex
	timers intrusive.IntrusiveHeap[flight.Flight]
}

func newRetransmitClock() *retransmitClock {
	return &retransmitClock{
		cond:     make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		timers:   *intrusive.NewIntrusiveHeap(flight.Less, 0),
	}
}

func (cl *retransmitClock) signal() {
	select {
	case cl.cond <- struct{}{}:
	default:
	}
}

// Close stops Run's loop; it is safe to call at most once.
func (cl *retransmitClock) Close() {
	close(cl.shutdown)
	cl.signal()
	<-cl.done
}

// Schedule arms f's retransmission deadline, replacing any deadline it
// already held.
func (cl *retransmitClock) Schedule(f *flight.Flight, deadline time.Time) {
	cl.mu.Lock()
	cl.timers.Erase(f, &f.HeapIndex)
	f.DeadlineAt = deadline
	cl.timers.Insert(f, &f.HeapIndex)
	front := cl.timers.Front() == f
	cl.mu.Unlock()
	if front {
		cl.signal()
	}
}

// Cancel removes f's retransmission deadline, if any. A flight's
// retransmit_task must be cancelled before scheduling a replacement and
// before connection termination [spec.md §4.3].
func (cl *retransmitClock) Cancel(f *flight.Flight) {
	cl.mu.Lock()
	cl.timers.Erase(f, &f.HeapIndex)
	cl.mu.Unlock()
}

// Run blocks, invoking onFire for every flight whose deadline has
// elapsed, until Close is called.
func (cl *retransmitClock) Run(onFire func(*flight.Flight)) {
	defer close(cl.done)
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	defer t.Stop()
	for {
		cl.mu.Lock()
		var fireDur time.Duration
		var f *flight.Flight
		if cl.timers.Len() != 0 {
			f = cl.timers.Front()
			fireDur = time.Until(f.DeadlineAt)
			if fireDur <= 0 {
				cl.timers.PopFront()
			}
		}
		cl.mu.Unlock()

		select {
		case <-cl.shutdown:
			return
		default:
		}

		if f == nil {
			select {
			case <-cl.cond:
				continue
			case <-cl.shutdown:
				return
			}
		}
		if fireDur <= 0 {
			onFire(f)
			continue
		}
		t.Reset(fireDur)
		select {
		case <-t.C:
		case <-cl.cond:
			if !t.Stop() {
				<-t.C
			}
		case <-cl.shutdown:
			t.Stop()
			return
		}
	}
}
