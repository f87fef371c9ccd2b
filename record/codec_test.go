// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package record

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	r := Record{
		Header: Header{ContentType: ContentTypeApplicationData, Epoch: 3, SequenceNumber: 0x0102030405},
		Payload: []byte("hello dtls"),
	}
	wire := r.Append(nil)
	if len(wire) != r.Size() {
		t.Fatalf("size mismatch: wire=%d size=%d", len(wire), r.Size())
	}
	records, truncated := ParseDatagram(wire)
	if truncated {
		t.Fatalf("unexpected truncation")
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.ContentType != r.ContentType || got.Epoch != r.Epoch || got.SequenceNumber != r.SequenceNumber {
		t.Fatalf("header mismatch: got %+v want %+v", got.Header, r.Header)
	}
	if !bytes.Equal(got.Payload, r.Payload) {
		t.Fatalf("payload mismatch: got %q want %q", got.Payload, r.Payload)
	}
}

func TestMultipleRecordsInOneDatagram(t *testing.T) {
	a := Record{Header: Header{ContentType: ContentTypeHandshake, Epoch: 0, SequenceNumber: 0}, Payload: []byte("first")}
	b := Record{Header: Header{ContentType: ContentTypeHandshake, Epoch: 0, SequenceNumber: 1}, Payload: []byte("second")}
	datagram := a.Append(nil)
	datagram = b.Append(datagram)

	records, truncated := ParseDatagram(datagram)
	if truncated || len(records) != 2 {
		t.Fatalf("expected 2 records untruncated, got %d truncated=%v", len(records), truncated)
	}
	if string(records[0].Payload) != "first" || string(records[1].Payload) != "second" {
		t.Fatalf("unexpected payload order: %+v", records)
	}
}

func TestTruncatedTailDiscardedButPriorRecordsValid(t *testing.T) {
	a := Record{Header: Header{ContentType: ContentTypeHandshake, Epoch: 0, SequenceNumber: 0}, Payload: []byte("ok")}
	datagram := a.Append(nil)
	datagram = append(datagram, 22, legacyVersionMajor, legacyVersionMinor, 0, 0, 0, 0, 0, 0, 0, 0, 0xFF) // declares huge length, no body

	records, truncated := ParseDatagram(datagram)
	if !truncated {
		t.Fatalf("expected truncation to be reported")
	}
	if len(records) != 1 || string(records[0].Payload) != "ok" {
		t.Fatalf("expected the first valid record to survive: %+v", records)
	}
}

func TestBadLegacyVersionRejected(t *testing.T) {
	datagram := []byte{22, 0x03, 0x03, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if _, _, _, err := ParseHeader(datagram); err != ErrBadLegacyVersion {
		t.Fatalf("expected ErrBadLegacyVersion, got %v", err)
	}
}
