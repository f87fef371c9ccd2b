// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"encoding/binary"
	"errors"

	"github.com/coredtls/dtls12/ciphersuite"
	"github.com/coredtls/dtls12/safecast"
)

var errTruncated = errors.New("dtls12: handshake message body truncated")

func appendUint8Prefixed(dst, data []byte) []byte {
	dst = append(dst, safecast.Cast[byte](len(data)))
	return append(dst, data...)
}

func readUint8Prefixed(b []byte) (data, rest []byte, err error) {
	if len(b) < 1 {
		return nil, nil, errTruncated
	}
	n := int(b[0])
	if len(b) < 1+n {
		return nil, nil, errTruncated
	}
	return b[1 : 1+n], b[1+n:], nil
}

func appendUint16Prefixed(dst, data []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, safecast.Cast[uint16](len(data)))
	return append(dst, data...)
}

func readUint16Prefixed(b []byte) (data, rest []byte, err error) {
	if len(b) < 2 {
		return nil, nil, errTruncated
	}
	n := int(binary.BigEndian.Uint16(b))
	if len(b) < 2+n {
		return nil, nil, errTruncated
	}
	return b[2 : 2+n], b[2+n:], nil
}

// ClientHello [rfc5246:7.4.1.2], extensions carried opaque. Nothing in this
// package parses Extensions, so no handshaker negotiates max_fragment_length
// from them.
type ClientHello struct {
	VersionMajor, VersionMinor byte
	Random                     [32]byte
	SessionID                  []byte
	Cookie                     []byte
	CipherSuites               []ciphersuite.ID
	CompressionMethods         []byte
	Extensions                 []byte
}

func (c ClientHello) Marshal() []byte {
	var out []byte
	out = append(out, c.VersionMajor, c.VersionMinor)
	out = append(out, c.Random[:]...)
	out = appendUint8Prefixed(out, c.SessionID)
	out = appendUint8Prefixed(out, c.Cookie)
	var suites []byte
	for _, id := range c.CipherSuites {
		suites = binary.BigEndian.AppendUint16(suites, uint16(id))
	}
	out = appendUint16Prefixed(out, suites)
	out = appendUint8Prefixed(out, c.CompressionMethods)
	out = appendUint16Prefixed(out, c.Extensions)
	return out
}

func UnmarshalClientHello(b []byte) (ClientHello, error) {
	var c ClientHello
	if len(b) < 34 {
		return c, errTruncated
	}
	c.VersionMajor, c.VersionMinor = b[0], b[1]
	copy(c.Random[:], b[2:34])
	rest := b[34:]

	var err error
	c.SessionID, rest, err = readUint8Prefixed(rest)
	if err != nil {
		return c, err
	}
	c.Cookie, rest, err = readUint8Prefixed(rest)
	if err != nil {
		return c, err
	}
	var suites []byte
	suites, rest, err = readUint16Prefixed(rest)
	if err != nil {
		return c, err
	}
	for i := 0; i+1 < len(suites); i += 2 {
		c.CipherSuites = append(c.CipherSuites, ciphersuite.ID(binary.BigEndian.Uint16(suites[i:i+2])))
	}
	c.CompressionMethods, rest, err = readUint8Prefixed(rest)
	if err != nil {
		return c, err
	}
	c.Extensions, _, err = readUint16Prefixed(rest)
	if err != nil {
		return c, err
	}
	return c, nil
}

// HelloVerifyRequest [rfc6347:4.2.1].
type HelloVerifyRequest struct {
	VersionMajor, VersionMinor byte
	Cookie                     []byte
}

func (h HelloVerifyRequest) Marshal() []byte {
	out := []byte{h.VersionMajor, h.VersionMinor}
	return appendUint8Prefixed(out, h.Cookie)
}

func UnmarshalHelloVerifyRequest(b []byte) (HelloVerifyRequest, error) {
	var h HelloVerifyRequest
	if len(b) < 2 {
		return h, errTruncated
	}
	h.VersionMajor, h.VersionMinor = b[0], b[1]
	cookie, _, err := readUint8Prefixed(b[2:])
	if err != nil {
		return h, err
	}
	h.Cookie = cookie
	return h, nil
}

// ServerHello [rfc5246:7.4.1.3].
type ServerHello struct {
	VersionMajor, VersionMinor byte
	Random                     [32]byte
	SessionID                  []byte
	CipherSuite                ciphersuite.ID
	CompressionMethod          byte
}

func (s ServerHello) Marshal() []byte {
	out := []byte{s.VersionMajor, s.VersionMinor}
	out = append(out, s.Random[:]...)
	out = appendUint8Prefixed(out, s.SessionID)
	out = binary.BigEndian.AppendUint16(out, uint16(s.CipherSuite))
	out = append(out, s.CompressionMethod)
	return out
}

func UnmarshalServerHello(b []byte) (ServerHello, error) {
	var s ServerHello
	if len(b) < 34 {
		return s, errTruncated
	}
	s.VersionMajor, s.VersionMinor = b[0], b[1]
	copy(s.Random[:], b[2:34])
	rest := b[34:]
	sessionID, rest, err := readUint8Prefixed(rest)
	if err != nil {
		return s, err
	}
	s.SessionID = sessionID
	if len(rest) < 3 {
		return s, errTruncated
	}
	s.CipherSuite = ciphersuite.ID(binary.BigEndian.Uint16(rest[:2]))
	s.CompressionMethod = rest[2]
	return s, nil
}

// Certificate carries a single DER certificate (a chain of one), enough to
// drive session establishment without the chain-validation machinery the
// Non-goals exclude [rfc5246:7.4.2].
type Certificate struct {
	DER []byte
}

func (c Certificate) Marshal() []byte {
	var list []byte
	list = appendUint24Len(list, c.DER)
	return appendUint24Len(nil, list)
}

func appendUint24Len(dst, data []byte) []byte {
	dst = appendUint24(dst, uint32(len(data)))
	return append(dst, data...)
}

func UnmarshalCertificate(b []byte) (Certificate, error) {
	if len(b) < 3 {
		return Certificate{}, errTruncated
	}
	listLen := readUint24(b[:3])
	if len(b) < 3+int(listLen) {
		return Certificate{}, errTruncated
	}
	list := b[3 : 3+listLen]
	if len(list) < 3 {
		return Certificate{}, errTruncated
	}
	certLen := readUint24(list[:3])
	if len(list) < 3+int(certLen) {
		return Certificate{}, errTruncated
	}
	return Certificate{DER: list[3 : 3+certLen]}, nil
}

// ServerKeyExchange carries the server's ECDHE public key and, for the
// ECDHE_PSK suites this package implements, the PSK identity hint
// [rfc5489:3].
type ServerKeyExchange struct {
	PSKIdentityHint []byte
	ECDHEPublic     [32]byte
}

func (s ServerKeyExchange) Marshal() []byte {
	out := appendUint16Prefixed(nil, s.PSKIdentityHint)
	return appendUint8Prefixed(out, s.ECDHEPublic[:])
}

func UnmarshalServerKeyExchange(b []byte) (ServerKeyExchange, error) {
	var s ServerKeyExchange
	hint, rest, err := readUint16Prefixed(b)
	if err != nil {
		return s, err
	}
	s.PSKIdentityHint = hint
	pub, _, err := readUint8Prefixed(rest)
	if err != nil {
		return s, err
	}
	if len(pub) != 32 {
		return s, errTruncated
	}
	copy(s.ECDHEPublic[:], pub)
	return s, nil
}

// ClientKeyExchange carries the client's PSK identity and ECDHE public key
// [rfc5489:3].
type ClientKeyExchange struct {
	PSKIdentity []byte
	ECDHEPublic [32]byte
}

func (c ClientKeyExchange) Marshal() []byte {
	out := appendUint16Prefixed(nil, c.PSKIdentity)
	return appendUint8Prefixed(out, c.ECDHEPublic[:])
}

func UnmarshalClientKeyExchange(b []byte) (ClientKeyExchange, error) {
	var c ClientKeyExchange
	identity, rest, err := readUint16Prefixed(b)
	if err != nil {
		return c, err
	}
	c.PSKIdentity = identity
	pub, _, err := readUint8Prefixed(rest)
	if err != nil {
		return c, err
	}
	if len(pub) != 32 {
		return c, errTruncated
	}
	copy(c.ECDHEPublic[:], pub)
	return c, nil
}

// Finished carries the 12-byte verify_data [rfc5246:7.4.9].
type Finished struct {
	VerifyData [12]byte
}

func (f Finished) Marshal() []byte { return append([]byte(nil), f.VerifyData[:]...) }

func UnmarshalFinished(b []byte) (Finished, error) {
	var f Finished
	if len(b) != 12 {
		return f, errTruncated
	}
	copy(f.VerifyData[:], b)
	return f, nil
}
