// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

// Package handshake is the connector's Handshaker external collaborator
// [rfc6347:4.2.2]: the per-peer handshake state machine in its four
// variants (Client, Server, ResumingClient, ResumingServer), the classic
// DTLS 1.2 message set (ClientHello through Finished), and the 12-byte
// handshake message header used to fragment and reassemble them.
//
// Exact wire-layout fidelity to RFC 5246 is explicitly non-normative here
// (bit layout of every handshake message is out of scope); these types
// exist so a complete flight sequence can be driven end to end against
// the connector's fragment, flight, and session machinery.
package handshake

import (
	"encoding/binary"
	"errors"
)

// Type identifies a handshake message [rfc5246:7.4].
type Type byte

const (
	TypeHelloRequest       Type = 0
	TypeClientHello        Type = 1
	TypeServerHello        Type = 2
	TypeHelloVerifyRequest Type = 3
	TypeCertificate        Type = 11
	TypeServerKeyExchange  Type = 12
	TypeServerHelloDone    Type = 14
	TypeClientKeyExchange  Type = 16
	TypeFinished           Type = 20
)

func (t Type) String() string {
	switch t {
	case TypeHelloRequest:
		return "hello_request"
	case TypeClientHello:
		return "client_hello"
	case TypeServerHello:
		return "server_hello"
	case TypeHelloVerifyRequest:
		return "hello_verify_request"
	case TypeCertificate:
		return "certificate"
	case TypeServerKeyExchange:
		return "server_key_exchange"
	case TypeServerHelloDone:
		return "server_hello_done"
	case TypeClientKeyExchange:
		return "client_key_exchange"
	case TypeFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Header is the 12-byte handshake message header
// [rfc6347:4.2.2]: msg_type(1), length(3), message_seq(2),
// fragment_offset(3), fragment_length(3).
type Header struct {
	Type           Type
	Length         uint32
	MessageSeq     uint16
	FragmentOffset uint32
	FragmentLength uint32
}

const HeaderSize = 12

var ErrHeaderTooShort = errors.New("dtls12: handshake header too short")
var ErrBodyTooShort = errors.New("dtls12: handshake body shorter than declared fragment_length")

// Message is one (possibly fragmented) handshake message. Body holds the
// bytes of the fragment it was parsed from, or the full message when
// sending unfragmented.
type Message struct {
	Header
	Body []byte
}

func appendUint24(dst []byte, v uint32) []byte {
	return append(dst, byte(v>>16), byte(v>>8), byte(v))
}

func readUint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// Append serializes the header followed by Body onto dst.
func (m Message) Append(dst []byte) []byte {
	dst = append(dst, byte(m.Type))
	dst = appendUint24(dst, m.Length)
	dst = binary.BigEndian.AppendUint16(dst, m.MessageSeq)
	dst = appendUint24(dst, m.FragmentOffset)
	dst = appendUint24(dst, m.FragmentLength)
	return append(dst, m.Body...)
}

// Parse reads one handshake message (header plus its declared
// fragment_length of body bytes) from the front of b.
func Parse(b []byte) (Message, int, error) {
	if len(b) < HeaderSize {
		return Message{}, 0, ErrHeaderTooShort
	}
	hdr := Header{
		Type:           Type(b[0]),
		Length:         readUint24(b[1:4]),
		MessageSeq:     binary.BigEndian.Uint16(b[4:6]),
		FragmentOffset: readUint24(b[6:9]),
		FragmentLength: readUint24(b[9:12]),
	}
	end := HeaderSize + int(hdr.FragmentLength)
	if len(b) < end {
		return Message{}, 0, ErrBodyTooShort
	}
	return Message{Header: hdr, Body: b[HeaderSize:end]}, end, nil
}

// WholeMessage builds a Message describing a complete, unfragmented body.
func WholeMessage(t Type, messageSeq uint16, body []byte) Message {
	return Message{
		Header: Header{
			Type:           t,
			Length:         uint32(len(body)),
			MessageSeq:     messageSeq,
			FragmentOffset: 0,
			FragmentLength: uint32(len(body)),
		},
		Body: body,
	}
}

// Fragment splits a whole message's body into a sequence of Messages no
// larger than maxFragment bytes each, for the sender to emit as separate
// records when a message exceeds the negotiated max_fragment_length.
func Fragment(t Type, messageSeq uint16, body []byte, maxFragment int) []Message {
	if maxFragment <= 0 || len(body) <= maxFragment {
		return []Message{WholeMessage(t, messageSeq, body)}
	}
	total := uint32(len(body))
	var out []Message
	for offset := 0; offset < len(body); offset += maxFragment {
		end := offset + maxFragment
		if end > len(body) {
			end = len(body)
		}
		out = append(out, Message{
			Header: Header{
				Type:           t,
				Length:         total,
				MessageSeq:     messageSeq,
				FragmentOffset: uint32(offset),
				FragmentLength: uint32(end - offset),
			},
			Body: body[offset:end],
		})
	}
	return out
}
