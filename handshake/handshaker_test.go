// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package handshake

import (
	"crypto/tls"
	"testing"

	"github.com/coredtls/dtls12/credentials"
	"github.com/coredtls/dtls12/dtlsrand"
	"github.com/coredtls/dtls12/flight"
	"github.com/coredtls/dtls12/record"
	"github.com/coredtls/dtls12/session"
)

func newStore() *credentials.InMemoryStore {
	return credentials.NewInMemoryStore(map[string][]byte{"device-1": []byte("shared-secret")}, tls.Certificate{}, false, nil)
}

// deliver feeds recs into h one at a time, decoding each against
// readerSess's state as of just before that record (so a key-installing
// record earlier in the same flight applies to a later one, exactly as the
// connector's sender would deliver them in order). It returns the last
// non-nil flight h produced.
func deliver(t *testing.T, readerSess *session.Session, h *Handshaker, recs []record.Record) *flight.Flight {
	var last *flight.Flight
	for _, r := range recs {
		var msg Message
		if r.ContentType == record.ContentTypeChangeCipherSpec {
			msg = Message{Header: Header{Type: TypeChangeCipherSpecSignal}}
		} else {
			plaintext, ok := openRecord(readerSess, r)
			if !ok {
				t.Fatalf("failed to open handshake record at epoch %d seq %d", r.Epoch, r.SequenceNumber)
			}
			parsed, _, err := Parse(plaintext)
			if err != nil {
				t.Fatalf("parse handshake message: %v", err)
			}
			msg = parsed
		}
		fl, err := h.ProcessMessage(msg, r.SequenceNumber)
		if err != nil {
			t.Fatalf("ProcessMessage(%s): %v", msg.Type, err)
		}
		if fl != nil {
			last = fl
		}
	}
	return last
}

func TestFullHandshakeClientServerEstablish(t *testing.T) {
	store := newStore()
	clientSess := session.New(nil, false)
	serverSess := session.New(nil, true)

	client := New(RoleClient, clientSess, store, dtlsrand.FixedRand())
	client.SetPSKIdentity([]byte("device-1"))
	server := New(RoleServer, serverSess, store, dtlsrand.FixedRand())

	var clientEstablished, serverEstablished bool
	client.AddListener(func() { clientEstablished = true })
	server.AddListener(func() { serverEstablished = true })

	clientFlight := client.StartHandshakeMessage()
	if clientFlight == nil {
		t.Fatalf("expected client to produce an initial ClientHello flight")
	}

	// Server processes ClientHello, responds with ServerHello..ServerHelloDone.
	serverFlight := deliver(t, serverSess, server, clientFlight.Records)
	if serverFlight == nil {
		t.Fatalf("expected server to respond with its hello flight")
	}

	// Client processes ServerHello..ServerHelloDone, responds with
	// ClientKeyExchange+ChangeCipherSpec+Finished.
	clientFinishFlight := deliver(t, clientSess, client, serverFlight.Records)
	if clientFinishFlight == nil {
		t.Fatalf("expected client to respond with ClientKeyExchange/CCS/Finished")
	}

	// Server processes CKE, CCS, Finished; responds with its own CCS+Finished.
	serverFinishFlight := deliver(t, serverSess, server, clientFinishFlight.Records)
	if serverFinishFlight == nil {
		t.Fatalf("expected server to respond with its own CCS/Finished")
	}
	if !serverEstablished {
		t.Fatalf("server listener should have fired on reaching established")
	}

	// Client processes server's CCS+Finished, reaching established.
	deliver(t, clientSess, client, serverFinishFlight.Records)
	if !clientEstablished {
		t.Fatalf("client listener should have fired on reaching established")
	}

	if clientSess.PeerIdentity() == "" && serverSess.PeerIdentity() == "" {
		t.Fatalf("expected at least the server session to record the negotiated peer identity")
	}
}

func TestHasBeenStartedByOnlyMatchesServerRolesOnClientHello(t *testing.T) {
	store := newStore()
	server := New(RoleServer, session.New(nil, true), store, dtlsrand.FixedRand())
	client := New(RoleClient, session.New(nil, false), store, dtlsrand.FixedRand())

	ch := WholeMessage(TypeClientHello, 0, ClientHello{}.Marshal())
	if !server.HasBeenStartedBy(ch) {
		t.Fatalf("a server-role handshaker must recognize ClientHello as its start trigger")
	}
	if client.HasBeenStartedBy(ch) {
		t.Fatalf("a client-role handshaker is never started by an inbound message")
	}
}
