// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package connector

import (
	"crypto/tls"
	"net/netip"
	"testing"
	"time"

	"github.com/coredtls/dtls12/credentials"
	"github.com/coredtls/dtls12/dtlsrand"
	"github.com/coredtls/dtls12/record"
)

func newTestStore(psks map[string][]byte) credentials.Store {
	return credentials.NewInMemoryStore(psks, tls.Certificate{}, false, nil)
}

// received is one delivery recorded by a test DataHandler/ErrorHandler.
type received struct {
	peerAddr netip.AddrPort
	data     []byte
	identity string
	level    record.AlertLevel
	desc     record.AlertDescription
}

func startTestConnector(t *testing.T, roleServer bool, identity string) *Connector {
	t.Helper()
	cfg := DefaultConfig("127.0.0.1:0", roleServer, newTestStore(map[string][]byte{"device-1": []byte("shared-secret")}), dtlsrand.FixedRand())
	if identity != "" {
		cfg.PSKIdentity = []byte(identity)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = c.Stop() })
	return c
}

func waitFor[T any](t *testing.T, ch chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for delivery")
		var zero T
		return zero
	}
}

// TestSendReceiveRoundTrip exercises the full path from an unauthenticated
// ClientHello through an established session carrying application data in
// both directions.
func TestSendReceiveRoundTrip(t *testing.T) {
	server := startTestConnector(t, true, "")
	client := startTestConnector(t, false, "device-1")

	serverData := make(chan received, 1)
	server.SetDataReceiver(func(peerAddr netip.AddrPort, data []byte, identity string) {
		serverData <- received{peerAddr: peerAddr, data: data, identity: identity}
	})
	clientData := make(chan received, 1)
	client.SetDataReceiver(func(peerAddr netip.AddrPort, data []byte, identity string) {
		clientData <- received{peerAddr: peerAddr, data: data, identity: identity}
	})

	if err := client.Send(server.GetAddress(), []byte("hello from client")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := waitFor(t, serverData, 5*time.Second)
	if string(got.data) != "hello from client" {
		t.Fatalf("server got %q", got.data)
	}
	if got.identity != "device-1" {
		t.Fatalf("server resolved identity %q, want device-1", got.identity)
	}

	if err := server.Send(got.peerAddr, []byte("hello from server")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	gotBack := waitFor(t, clientData, 5*time.Second)
	if string(gotBack.data) != "hello from server" {
		t.Fatalf("client got %q", gotBack.data)
	}
}

// TestCloseSendsCloseNotify checks that Close tears down the local
// connection immediately and still gets a close_notify onto the wire for
// the peer to observe.
func TestCloseSendsCloseNotify(t *testing.T) {
	server := startTestConnector(t, true, "")
	client := startTestConnector(t, false, "device-1")

	serverData := make(chan received, 1)
	server.SetDataReceiver(func(peerAddr netip.AddrPort, data []byte, identity string) {
		serverData <- received{peerAddr: peerAddr, data: data}
	})
	serverAlerts := make(chan received, 1)
	server.SetErrorHandler(func(peerAddr netip.AddrPort, level record.AlertLevel, desc record.AlertDescription) {
		serverAlerts <- received{peerAddr: peerAddr, level: level, desc: desc}
	})

	if err := client.Send(server.GetAddress(), []byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := waitFor(t, serverData, 5*time.Second)

	client.Close(server.GetAddress())

	alert := waitFor(t, serverAlerts, 5*time.Second)
	if alert.peerAddr != got.peerAddr {
		t.Fatalf("close_notify from unexpected address %s, want %s", alert.peerAddr, got.peerAddr)
	}
	if alert.level != record.AlertLevelWarning || alert.desc != record.AlertCloseNotify {
		t.Fatalf("expected warning close_notify, got level=%d desc=%d", alert.level, alert.desc)
	}
}

// TestForceResumeStartsNewHandshake checks that ForceResume causes the next
// Send to drive a fresh (abbreviated) handshake rather than reusing the
// established session directly, while the payload still gets delivered
// once that handshake completes.
func TestForceResumeStartsNewHandshake(t *testing.T) {
	server := startTestConnector(t, true, "")
	client := startTestConnector(t, false, "device-1")

	serverData := make(chan received, 2)
	server.SetDataReceiver(func(peerAddr netip.AddrPort, data []byte, identity string) {
		serverData <- received{peerAddr: peerAddr, data: data, identity: identity}
	})

	if err := client.Send(server.GetAddress(), []byte("first")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	first := waitFor(t, serverData, 5*time.Second)
	if string(first.data) != "first" {
		t.Fatalf("server got %q", first.data)
	}

	client.ForceResume(server.GetAddress())

	if err := client.Send(server.GetAddress(), []byte("second")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	second := waitFor(t, serverData, 5*time.Second)
	if string(second.data) != "second" {
		t.Fatalf("server got %q after resumption, want \"second\"", second.data)
	}
	if second.identity != "device-1" {
		t.Fatalf("resumed session lost peer identity: got %q", second.identity)
	}
}
