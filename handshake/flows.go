// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/netip"

	"github.com/coredtls/dtls12/ciphersuite"
	"github.com/coredtls/dtls12/dtlserrors"
	"github.com/coredtls/dtls12/dtlsrand"
	"github.com/coredtls/dtls12/flight"
	"github.com/coredtls/dtls12/record"
)

const (
	stepAwaitingServerHelloDone step = iota + 100
)

// SetPSKIdentity configures the identity hint a client-role handshaker
// presents in ClientKeyExchange, and the lookup key both sides use against
// credentials.Store.
func (h *Handshaker) SetPSKIdentity(identity []byte) {
	h.mu.Lock()
	h.pskIdentity = append([]byte(nil), identity...)
	h.mu.Unlock()
}

func (h *Handshaker) verifyDataLocked(label string) []byte {
	sum := sha256.Sum256(h.transcript.Bytes())
	return ciphersuite.VerifyData(h.suite, h.masterSecret, label, sum[:])
}

func pickSuite(offered []ciphersuite.ID) ciphersuite.Suite {
	for _, id := range offered {
		if s := ciphersuite.Get(id); s != nil {
			return s
		}
	}
	return nil
}

func freshSessionID(rnd dtlsrand.Rand) []byte {
	id := make([]byte, 32)
	rnd.ReadMust(id)
	return id
}

// --- Server, full handshake ---

func (h *Handshaker) processServerLocked(msg Message, triggeringRecordSeq uint64) (*flight.Flight, error) {
	switch h.step {
	case stepNotStarted:
		return h.serverReceiveClientHelloLocked(msg)
	case stepAwaitingClientKeyExchange:
		return h.serverReceiveClientKeyExchangeLocked(msg)
	case stepAwaitingFinished:
		return h.serverReceiveFinishedLocked(msg, "client finished", "server finished")
	default:
		return nil, dtlserrors.FatalUnexpectedMessage
	}
}

func (h *Handshaker) serverReceiveClientHelloLocked(msg Message) (*flight.Flight, error) {
	if msg.Type != TypeClientHello {
		return nil, dtlserrors.FatalUnexpectedMessage
	}
	ch, err := UnmarshalClientHello(msg.Body)
	if err != nil {
		return nil, dtlserrors.FatalDecodeError
	}
	h.transcript.Write(msg.Append(nil))
	h.started = true
	h.startMessageSeq = msg.MessageSeq

	h.clientRandom = ch.Random
	h.sessionID = ch.SessionID
	if len(h.sessionID) == 0 {
		h.sessionID = freshSessionID(h.rnd)
	}
	h.suite = pickSuite(ch.CipherSuites)
	if h.suite == nil {
		return nil, dtlserrors.FatalHandshakeFailure
	}
	h.rnd.ReadMust(h.serverRandom[:])
	kp, err := ciphersuite.GenerateECDHEKeyPair(h.rnd)
	if err != nil {
		return nil, dtlserrors.FatalInternalError
	}
	h.localECDHE = kp

	sh := ServerHello{
		VersionMajor: 0xFE, VersionMinor: 0xFD,
		Random: h.serverRandom, SessionID: h.sessionID,
		CipherSuite: h.suite.ID(), CompressionMethod: 0,
	}
	certDER := []byte{}
	if cert, ok := h.creds.ServerCertificate(); ok && len(cert.Certificate) > 0 {
		certDER = cert.Certificate[0]
	}
	certMsg := Certificate{DER: certDER}
	ske := ServerKeyExchange{PSKIdentityHint: []byte("dtls12"), ECDHEPublic: kp.Public}

	var recs []record.Record
	var plains []flight.PlaintextRecord
	for _, wm := range []struct {
		t    Type
		body []byte
	}{
		{TypeServerHello, sh.Marshal()},
		{TypeCertificate, certMsg.Marshal()},
		{TypeServerKeyExchange, ske.Marshal()},
		{TypeServerHelloDone, nil},
	} {
		out := WholeMessage(wm.t, h.nextSendSeq, wm.body)
		h.nextSendSeq++
		rec, plain := h.handshakeRecord(out)
		recs = append(recs, rec)
		plains = append(plains, plain)
	}

	h.step = stepAwaitingClientKeyExchange
	fl := flight.New(recs, netip.AddrPort{}, h.sess, flight.DefaultInitialTimeout)
	fl.Plaintexts = plains
	return fl, nil
}

func (h *Handshaker) serverReceiveClientKeyExchangeLocked(msg Message) (*flight.Flight, error) {
	if msg.Type != TypeClientKeyExchange {
		return nil, dtlserrors.FatalUnexpectedMessage
	}
	cke, err := UnmarshalClientKeyExchange(msg.Body)
	if err != nil {
		return nil, dtlserrors.FatalDecodeError
	}
	h.transcript.Write(msg.Append(nil))

	psk, ok := h.creds.PSKForIdentity(cke.PSKIdentity)
	if !ok {
		return nil, dtlserrors.FatalHandshakeFailure
	}
	h.pskIdentity = cke.PSKIdentity
	h.peerECDHEPublic = cke.ECDHEPublic

	if err := h.deriveMasterSecretLocked(psk); err != nil {
		return nil, dtlserrors.FatalInternalError
	}
	h.sess.SetPeerIdentity(string(h.pskIdentity))
	h.step = stepAwaitingFinished
	return nil, nil
}

func (h *Handshaker) deriveMasterSecretLocked(psk []byte) error {
	shared, err := ciphersuite.ECDHESharedSecret(h.localECDHE.Private, h.peerECDHEPublic)
	if err != nil {
		return err
	}
	premaster := ciphersuite.PremasterSecret(shared, psk)
	h.masterSecret = ciphersuite.MasterSecret(h.suite, premaster, h.clientRandom[:], h.serverRandom[:])
	keys, err := h.suite.DeriveKeys(h.masterSecret, h.clientRandom[:], h.serverRandom[:])
	if err != nil {
		return err
	}
	h.sess.InstallKeys(h.suite, keys, h.masterSecret)
	return nil
}

// serverReceiveFinishedLocked is shared by the full and resuming server
// flows: verify the peer's Finished under remoteLabel, then answer with
// our own ChangeCipherSpec+Finished under localLabel.
func (h *Handshaker) serverReceiveFinishedLocked(msg Message, remoteLabel, localLabel string) (*flight.Flight, error) {
	if msg.Type != TypeFinished {
		return nil, dtlserrors.FatalUnexpectedMessage
	}
	fin, err := UnmarshalFinished(msg.Body)
	if err != nil {
		return nil, dtlserrors.FatalDecodeError
	}
	expected := h.verifyDataLocked(remoteLabel)
	if subtle.ConstantTimeCompare(fin.VerifyData[:], expected) != 1 {
		return nil, dtlserrors.FatalHandshakeFailure
	}
	h.transcript.Write(msg.Append(nil))

	ccs, ccsPlain := h.record(record.ContentTypeChangeCipherSpec, []byte{1})
	h.sess.AdvanceWriteEpoch()

	var serverFin Finished
	copy(serverFin.VerifyData[:], h.verifyDataLocked(localLabel))
	finMsg := WholeMessage(TypeFinished, h.nextSendSeq, serverFin.Marshal())
	h.nextSendSeq++
	finRec, finPlain := h.handshakeRecord(finMsg)

	h.step = stepEstablished
	fl := flight.New([]record.Record{ccs, finRec}, netip.AddrPort{}, h.sess, flight.DefaultInitialTimeout)
	fl.Plaintexts = []flight.PlaintextRecord{ccsPlain, finPlain}
	h.fireListeners()
	return fl, nil
}

// --- Client, full handshake ---

func (h *Handshaker) processClientLocked(msg Message) (*flight.Flight, error) {
	switch h.step {
	case stepHelloSent:
		return h.clientReceiveAfterHelloLocked(msg)
	case stepAwaitingServerHelloDone:
		return h.clientReceiveServerFlightLocked(msg)
	case stepAwaitingFinished:
		return h.clientReceiveFinishedLocked(msg, "server finished")
	default:
		return nil, dtlserrors.FatalUnexpectedMessage
	}
}

func (h *Handshaker) clientReceiveAfterHelloLocked(msg Message) (*flight.Flight, error) {
	switch msg.Type {
	case TypeHelloVerifyRequest:
		hvr, err := UnmarshalHelloVerifyRequest(msg.Body)
		if err != nil {
			return nil, dtlserrors.FatalDecodeError
		}
		h.cookie = hvr.Cookie
		// The cookie-less ClientHello and the HelloVerifyRequest are not part
		// of the Finished transcript [rfc6347:4.2.1]; start it afresh.
		h.transcript.Reset()
		ch := ClientHello{
			VersionMajor: 0xFE, VersionMinor: 0xFD,
			Random: h.clientRandom, SessionID: h.sessionID, Cookie: h.cookie,
			CipherSuites: ciphersuite.Supported(), CompressionMethods: []byte{0},
		}
		out := WholeMessage(TypeClientHello, h.nextSendSeq, ch.Marshal())
		h.nextSendSeq++
		rec, plain := h.handshakeRecord(out)
		fl := flight.New([]record.Record{rec}, netip.AddrPort{}, h.sess, flight.DefaultInitialTimeout)
		fl.Plaintexts = []flight.PlaintextRecord{plain}
		return fl, nil

	case TypeServerHello:
		sh, err := UnmarshalServerHello(msg.Body)
		if err != nil {
			return nil, dtlserrors.FatalDecodeError
		}
		h.transcript.Write(msg.Append(nil))
		h.serverRandom = sh.Random
		h.sessionID = sh.SessionID
		h.suite = ciphersuite.Get(sh.CipherSuite)
		if h.suite == nil {
			return nil, dtlserrors.FatalHandshakeFailure
		}
		h.step = stepAwaitingServerHelloDone
		return nil, nil

	default:
		return nil, dtlserrors.FatalUnexpectedMessage
	}
}

func (h *Handshaker) clientReceiveServerFlightLocked(msg Message) (*flight.Flight, error) {
	switch msg.Type {
	case TypeCertificate:
		if _, err := UnmarshalCertificate(msg.Body); err != nil {
			return nil, dtlserrors.FatalDecodeError
		}
		h.transcript.Write(msg.Append(nil))
		return nil, nil

	case TypeServerKeyExchange:
		ske, err := UnmarshalServerKeyExchange(msg.Body)
		if err != nil {
			return nil, dtlserrors.FatalDecodeError
		}
		h.transcript.Write(msg.Append(nil))
		h.peerECDHEPublic = ske.ECDHEPublic
		return nil, nil

	case TypeServerHelloDone:
		h.transcript.Write(msg.Append(nil))
		kp, err := ciphersuite.GenerateECDHEKeyPair(h.rnd)
		if err != nil {
			return nil, dtlserrors.FatalInternalError
		}
		h.localECDHE = kp

		psk, ok := h.creds.PSKForIdentity(h.pskIdentity)
		if !ok {
			return nil, dtlserrors.FatalHandshakeFailure
		}
		if err := h.deriveMasterSecretLocked(psk); err != nil {
			return nil, dtlserrors.FatalInternalError
		}

		cke := ClientKeyExchange{PSKIdentity: h.pskIdentity, ECDHEPublic: kp.Public}
		ckeMsg := WholeMessage(TypeClientKeyExchange, h.nextSendSeq, cke.Marshal())
		h.nextSendSeq++
		ckeRec, ckePlain := h.handshakeRecord(ckeMsg)

		ccs, ccsPlain := h.record(record.ContentTypeChangeCipherSpec, []byte{1})
		h.sess.AdvanceWriteEpoch()

		var clientFin Finished
		copy(clientFin.VerifyData[:], h.verifyDataLocked("client finished"))
		finMsg := WholeMessage(TypeFinished, h.nextSendSeq, clientFin.Marshal())
		h.nextSendSeq++
		finRec, finPlain := h.handshakeRecord(finMsg)

		h.step = stepAwaitingFinished
		fl := flight.New([]record.Record{ckeRec, ccs, finRec}, netip.AddrPort{}, h.sess, flight.DefaultInitialTimeout)
		fl.Plaintexts = []flight.PlaintextRecord{ckePlain, ccsPlain, finPlain}
		return fl, nil

	default:
		return nil, dtlserrors.FatalUnexpectedMessage
	}
}

func (h *Handshaker) clientReceiveFinishedLocked(msg Message, remoteLabel string) (*flight.Flight, error) {
	if msg.Type != TypeFinished {
		return nil, dtlserrors.FatalUnexpectedMessage
	}
	fin, err := UnmarshalFinished(msg.Body)
	if err != nil {
		return nil, dtlserrors.FatalDecodeError
	}
	expected := h.verifyDataLocked(remoteLabel)
	if subtle.ConstantTimeCompare(fin.VerifyData[:], expected) != 1 {
		return nil, dtlserrors.FatalHandshakeFailure
	}
	h.step = stepEstablished
	h.fireListeners()
	return nil, nil
}

// --- Resuming server: ServerHello + ChangeCipherSpec + Finished only ---

func (h *Handshaker) processResumingServerLocked(msg Message, triggeringRecordSeq uint64) (*flight.Flight, error) {
	switch h.step {
	case stepNotStarted:
		if msg.Type != TypeClientHello {
			return nil, dtlserrors.FatalUnexpectedMessage
		}
		ch, err := UnmarshalClientHello(msg.Body)
		if err != nil {
			return nil, dtlserrors.FatalDecodeError
		}
		h.transcript.Write(msg.Append(nil))
		h.started = true
		h.startMessageSeq = msg.MessageSeq
		h.clientRandom = ch.Random
		h.rnd.ReadMust(h.serverRandom[:])
		h.suite = h.sess.Suite()
		h.sessionID = h.sess.ID()
		h.masterSecret = h.sess.MasterSecret()

		sh := ServerHello{
			VersionMajor: 0xFE, VersionMinor: 0xFD,
			Random: h.serverRandom, SessionID: h.sessionID,
			CipherSuite: h.suite.ID(), CompressionMethod: 0,
		}
		out := WholeMessage(TypeServerHello, h.nextSendSeq, sh.Marshal())
		h.nextSendSeq++
		rec, shPlain := h.handshakeRecord(out)

		ccs, ccsPlain := h.record(record.ContentTypeChangeCipherSpec, []byte{1})
		h.sess.AdvanceWriteEpoch()

		var serverFin Finished
		copy(serverFin.VerifyData[:], h.verifyDataLocked("server finished"))
		finMsg := WholeMessage(TypeFinished, h.nextSendSeq, serverFin.Marshal())
		h.nextSendSeq++
		finRec, finPlain := h.handshakeRecord(finMsg)

		h.step = stepAwaitingFinished
		fl := flight.New([]record.Record{rec, ccs, finRec}, netip.AddrPort{}, h.sess, flight.DefaultInitialTimeout)
		fl.Plaintexts = []flight.PlaintextRecord{shPlain, ccsPlain, finPlain}
		return fl, nil

	case stepAwaitingFinished:
		if msg.Type != TypeFinished {
			return nil, dtlserrors.FatalUnexpectedMessage
		}
		fin, err := UnmarshalFinished(msg.Body)
		if err != nil {
			return nil, dtlserrors.FatalDecodeError
		}
		expected := h.verifyDataLocked("client finished")
		if subtle.ConstantTimeCompare(fin.VerifyData[:], expected) != 1 {
			return nil, dtlserrors.FatalHandshakeFailure
		}
		h.step = stepEstablished
		h.fireListeners()
		return nil, nil

	default:
		return nil, dtlserrors.FatalUnexpectedMessage
	}
}

// --- Resuming client ---

func (h *Handshaker) processResumingClientLocked(msg Message) (*flight.Flight, error) {
	switch h.step {
	case stepHelloSent:
		if msg.Type != TypeServerHello {
			return nil, dtlserrors.FatalUnexpectedMessage
		}
		sh, err := UnmarshalServerHello(msg.Body)
		if err != nil {
			return nil, dtlserrors.FatalDecodeError
		}
		h.transcript.Write(msg.Append(nil))
		h.serverRandom = sh.Random
		h.masterSecret = h.sess.MasterSecret()

		ccs, ccsPlain := h.record(record.ContentTypeChangeCipherSpec, []byte{1})
		h.sess.AdvanceWriteEpoch()

		var clientFin Finished
		copy(clientFin.VerifyData[:], h.verifyDataLocked("client finished"))
		finMsg := WholeMessage(TypeFinished, h.nextSendSeq, clientFin.Marshal())
		h.nextSendSeq++
		finRec, finPlain := h.handshakeRecord(finMsg)

		h.step = stepAwaitingFinished
		fl := flight.New([]record.Record{ccs, finRec}, netip.AddrPort{}, h.sess, flight.DefaultInitialTimeout)
		fl.Plaintexts = []flight.PlaintextRecord{ccsPlain, finPlain}
		return fl, nil

	case stepAwaitingFinished:
		return h.clientReceiveFinishedLocked(msg, "server finished")

	default:
		return nil, dtlserrors.FatalUnexpectedMessage
	}
}
