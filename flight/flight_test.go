// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package flight

import (
	"net/netip"
	"testing"
	"time"

	"github.com/coredtls/dtls12/intrusive"
	"github.com/coredtls/dtls12/record"
)

func sampleRecord() record.Record {
	return record.Record{Header: record.Header{ContentType: record.ContentTypeHandshake}, Payload: []byte("hello")}
}

func TestNewFlightArmsRetransmission(t *testing.T) {
	addr := netip.MustParseAddrPort("203.0.113.1:5000")
	f := New([]record.Record{sampleRecord()}, addr, nil, 200*time.Millisecond)
	if !f.RetransmitNeeded {
		t.Fatalf("a handshake flight must start with retransmission armed")
	}
	if f.TimeoutMs != 200 {
		t.Fatalf("expected initial timeout 200ms, got %d", f.TimeoutMs)
	}
}

func TestAlertFlightBypassesRetransmission(t *testing.T) {
	addr := netip.MustParseAddrPort("203.0.113.1:5000")
	f := NewAlert([]record.Record{sampleRecord()}, addr, nil)
	if f.RetransmitNeeded {
		t.Fatalf("an alert flight must not be retransmitted")
	}
}

func TestBackoffDoublesTimeoutAndAbandonsAfterMax(t *testing.T) {
	addr := netip.MustParseAddrPort("203.0.113.1:5000")
	f := New([]record.Record{sampleRecord()}, addr, nil, 200*time.Millisecond)

	if abandon := f.Backoff(3); abandon {
		t.Fatalf("first retry must not abandon")
	}
	if f.TimeoutMs != 400 {
		t.Fatalf("expected timeout to double to 400ms, got %d", f.TimeoutMs)
	}

	f.Backoff(3)
	f.Backoff(3)
	if abandon := f.Backoff(3); !abandon {
		t.Fatalf("a fourth retry beyond max_retransmissions=3 must abandon")
	}
}

func TestFlightParticipatesInIntrusiveHeap(t *testing.T) {
	addr := netip.MustParseAddrPort("203.0.113.1:5000")
	now := time.Now()

	a := New([]record.Record{sampleRecord()}, addr, nil, 200*time.Millisecond)
	a.DeadlineAt = now.Add(500 * time.Millisecond)
	b := New([]record.Record{sampleRecord()}, addr, nil, 200*time.Millisecond)
	b.DeadlineAt = now.Add(100 * time.Millisecond)

	h := intrusive.NewIntrusiveHeap(Less, 4)
	h.Insert(a, &a.HeapIndex)
	h.Insert(b, &b.HeapIndex)

	if h.Front() != b {
		t.Fatalf("expected the earlier-deadline flight at the front of the heap")
	}
}
