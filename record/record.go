// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

// Package record implements the DTLS 1.2 record layer: header parsing and
// serialization, and splitting a datagram into its constituent records
// [rfc6347:4.1]. Binding a record to a session's crypto is deliberately left
// to callers (the connector), since the epoch alone does not tell the codec
// which of an established or an in-progress handshake session applies.
package record

import (
	"encoding/binary"
	"errors"

	"github.com/coredtls/dtls12/constants"
	"github.com/coredtls/dtls12/safecast"
)

// ContentType identifies what a record carries [rfc6347:6.2.1].
type ContentType byte

const (
	ContentTypeChangeCipherSpec ContentType = 20
	ContentTypeAlert            ContentType = 21
	ContentTypeHandshake        ContentType = 22
	ContentTypeApplicationData  ContentType = 23
)

func (t ContentType) String() string {
	switch t {
	case ContentTypeChangeCipherSpec:
		return "change_cipher_spec"
	case ContentTypeAlert:
		return "alert"
	case ContentTypeHandshake:
		return "handshake"
	case ContentTypeApplicationData:
		return "application_data"
	default:
		return "unknown"
	}
}

// legacyVersionMajor/Minor is {254,253} i.e. "DTLS 1.2" in the inverted
// legacy_record_version scheme [rfc6347:4.1].
const legacyVersionMajor = 0xFE
const legacyVersionMinor = 0xFD

var ErrHeaderTooShort = errors.New("dtls12: record header too short")
var ErrBodyTooShort = errors.New("dtls12: record body shorter than declared length")
var ErrBadLegacyVersion = errors.New("dtls12: record legacy version mismatch")

// Header is the 13-byte fixed DTLS 1.2 record header. Unlike DTLS 1.3, 1.2
// uses the same header shape whether the payload is plaintext or ciphertext;
// only the payload's interpretation differs with the epoch.
type Header struct {
	ContentType    ContentType
	Epoch          uint16
	SequenceNumber uint64 // stored as 48-bit on the wire
}

// Record is a single parsed (or to-be-serialized) record. Payload is
// ciphertext when Epoch > 0 and plaintext otherwise; decrypting it into
// application bytes is the caller's job once it has picked a session.
type Record struct {
	Header
	Payload []byte // aliases the original datagram on decode
}

// ParseHeader reads the 13-byte header at the front of datagram, returning
// the header, the declared-length payload slice, and the offset of the next
// record (== len of this record on the wire).
func ParseHeader(datagram []byte) (hdr Header, payload []byte, consumed int, err error) {
	if len(datagram) < constants.PlaintextRecordHeaderSize {
		return Header{}, nil, 0, ErrHeaderTooShort
	}
	if datagram[1] != legacyVersionMajor || datagram[2] != legacyVersionMinor {
		return Header{}, nil, 0, ErrBadLegacyVersion
	}
	hdr.ContentType = ContentType(datagram[0])
	hdr.Epoch = binary.BigEndian.Uint16(datagram[3:5])
	hdr.SequenceNumber = readUint48(datagram[5:11])
	length := int(binary.BigEndian.Uint16(datagram[11:13]))
	end := constants.PlaintextRecordHeaderSize + length
	if len(datagram) < end {
		return Header{}, nil, 0, ErrBodyTooShort
	}
	return hdr, datagram[constants.PlaintextRecordHeaderSize:end], end, nil
}

// ParseDatagram splits datagram into records, stopping (and discarding the
// remaining tail) at the first malformed header or truncated payload.
// Records already parsed before the failure remain valid, per §4.1.
func ParseDatagram(datagram []byte) (records []Record, truncated bool) {
	offset := 0
	for offset < len(datagram) {
		hdr, payload, consumed, err := ParseHeader(datagram[offset:])
		if err != nil {
			return records, true
		}
		records = append(records, Record{Header: hdr, Payload: payload})
		offset += consumed
	}
	return records, false
}

// Append serializes the record's header and payload onto dst.
func (r Record) Append(dst []byte) []byte {
	dst = append(dst, byte(r.ContentType), legacyVersionMajor, legacyVersionMinor)
	dst = binary.BigEndian.AppendUint16(dst, r.Epoch)
	dst = appendUint48(dst, r.SequenceNumber)
	dst = binary.BigEndian.AppendUint16(dst, safecast.Cast[uint16](len(r.Payload)))
	dst = append(dst, r.Payload...)
	return dst
}

// Size is the total wire size of the record: header plus payload.
func (r Record) Size() int {
	return constants.PlaintextRecordHeaderSize + len(r.Payload)
}

func readUint48(b []byte) uint64 {
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}

func appendUint48(dst []byte, v uint64) []byte {
	return append(dst,
		byte(v>>40), byte(v>>32), byte(v>>24),
		byte(v>>16), byte(v>>8), byte(v))
}
