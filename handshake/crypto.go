// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"encoding/binary"

	"github.com/coredtls/dtls12/record"
	"github.com/coredtls/dtls12/safecast"
	"github.com/coredtls/dtls12/session"
)

// SealRecord allocates the next write sequence number at the session's
// current write epoch and produces a record.Record for contentType/
// plaintext, AEAD-sealing it when the epoch has keys installed
// [rfc5246:6.2.3.3]. The associated data mirrors the plaintext record
// header (epoch, sequence number, content type, length) the way TLS 1.2
// binds ciphertext to its record metadata. Exported so the connector can
// seal APPLICATION_DATA and ALERT records against the same session-bound
// crypto the handshaker uses for its own records.
func SealRecord(sess *session.Session, contentType record.ContentType, plaintext []byte) record.Record {
	return sealRecord(sess, contentType, plaintext)
}

func sealRecord(sess *session.Session, contentType record.ContentType, plaintext []byte) record.Record {
	sess.Lock()
	epoch, seq, err := sess.NextWriteSequenceLocked()
	sess.Unlock()
	if err != nil {
		// sequence space exhaustion at this epoch; the zero record is
		// returned and the error itself is not reported to the caller.
		return record.Record{}
	}

	if epoch == 0 {
		return record.Record{
			Header:  record.Header{ContentType: contentType, Epoch: epoch, SequenceNumber: seq},
			Payload: plaintext,
		}
	}

	_, aead := sess.WriteAEAD()
	if aead == nil {
		return record.Record{Header: record.Header{ContentType: contentType, Epoch: epoch, SequenceNumber: seq}, Payload: plaintext}
	}

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], seq)

	ad := associatedData(epoch, seq, contentType, len(plaintext))
	ciphertext := aead.Seal(nil, nonce[:], plaintext, ad)

	return record.Record{
		Header:  record.Header{ContentType: contentType, Epoch: epoch, SequenceNumber: seq},
		Payload: ciphertext,
	}
}

// SealRecordAtEpoch re-seals contentType/plaintext at epoch specifically,
// allocating a fresh sequence number from that epoch's own counter rather
// than the session's currently-live write epoch. A retransmitted flight can
// span an epoch transition (a ChangeCipherSpec record built at the old
// epoch alongside a Finished built at the new one); re-stamping each record
// at its own original epoch keeps both halves correct even though the
// session has since moved on to the new epoch as "current"
// [spec.md §4.3 "Flight send and fragmentation into datagrams"].
func SealRecordAtEpoch(sess *session.Session, epoch uint16, contentType record.ContentType, plaintext []byte) record.Record {
	seq, err := sess.NextWriteSequenceAtEpoch(epoch)
	if err != nil {
		return record.Record{}
	}

	if epoch == 0 {
		return record.Record{
			Header:  record.Header{ContentType: contentType, Epoch: epoch, SequenceNumber: seq},
			Payload: plaintext,
		}
	}

	_, aead := sess.WriteAEAD()
	if aead == nil {
		return record.Record{Header: record.Header{ContentType: contentType, Epoch: epoch, SequenceNumber: seq}, Payload: plaintext}
	}

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], seq)

	ad := associatedData(epoch, seq, contentType, len(plaintext))
	ciphertext := aead.Seal(nil, nonce[:], plaintext, ad)

	return record.Record{
		Header:  record.Header{ContentType: contentType, Epoch: epoch, SequenceNumber: seq},
		Payload: ciphertext,
	}
}

// OpenRecord reverses SealRecord for an inbound record at the session's
// current read epoch. Exported for the same reason as SealRecord.
func OpenRecord(sess *session.Session, rec record.Record) ([]byte, bool) {
	return openRecord(sess, rec)
}

func openRecord(sess *session.Session, rec record.Record) ([]byte, bool) {
	if rec.Epoch == 0 {
		return rec.Payload, true
	}
	_, aead := sess.ReadAEAD()
	if aead == nil {
		return nil, false
	}
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], rec.SequenceNumber)
	ad := associatedData(rec.Epoch, rec.SequenceNumber, rec.ContentType, len(rec.Payload)-aead.Overhead())
	plaintext, err := aead.Open(nil, nonce[:], rec.Payload, ad)
	if err != nil {
		return nil, false
	}
	return plaintext, true
}

func associatedData(epoch uint16, seq uint64, contentType record.ContentType, plaintextLen int) []byte {
	ad := make([]byte, 0, 13)
	ad = binary.BigEndian.AppendUint16(ad, epoch)
	var seqBuf [6]byte
	seqBuf[0] = byte(seq >> 40)
	seqBuf[1] = byte(seq >> 32)
	seqBuf[2] = byte(seq >> 24)
	seqBuf[3] = byte(seq >> 16)
	seqBuf[4] = byte(seq >> 8)
	seqBuf[5] = byte(seq)
	ad = append(ad, seqBuf[:]...)
	ad = append(ad, byte(contentType))
	ad = binary.BigEndian.AppendUint16(ad, safecast.Cast[uint16](plaintextLen))
	return ad
}
