// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

// Package connector is the DTLS 1.2 connector: the process-facing object
// that owns one UDP socket, routes inbound datagrams to the right
// Connection, drives outbound sends and retransmissions, and exposes the
// lifecycle/data API described in spec.md §4.3. It is the top of the
// dependency graph built by every other package in this module.
package connector

import (
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/coredtls/dtls12/connection"
	"github.com/coredtls/dtls12/connstore"
	"github.com/coredtls/dtls12/constants"
	"github.com/coredtls/dtls12/cookie"
	"github.com/coredtls/dtls12/dtlserrors"
	"github.com/coredtls/dtls12/flight"
	"github.com/coredtls/dtls12/fragment"
	"github.com/coredtls/dtls12/record"
)

// DataHandler receives application data delivered over an established
// connection. peerIdentity is the PSK identity (or certificate subject,
// once that route is wired) negotiated for the session.
type DataHandler func(peerAddr netip.AddrPort, data []byte, peerIdentity string)

// ErrorHandler receives alerts a peer sent, and the connector's own fatal
// terminations, labeled with the level/description that would have gone
// on the wire [spec.md §4.3 "Error / alert handling"].
type ErrorHandler func(peerAddr netip.AddrPort, level record.AlertLevel, desc record.AlertDescription)

var ErrNotRunning = errors.New("dtls12: connector is not running")
var ErrAlreadyRunning = errors.New("dtls12: connector is already running")

// outboundMessage is one item of Connector.Send's queue.
type outboundMessage struct {
	peerAddr netip.AddrPort
	data     []byte
}

// Connector is safe for concurrent use once Start has returned.
type Connector struct {
	cfg *Config

	store     connstore.Store
	cookieKey *cookie.MacKey
	gate      *cookieGate
	clock     *retransmitClock
	metrics   *metrics
	logger    logging.LeveledLogger

	runMu   sync.Mutex
	running bool
	socket  *net.UDPConn
	mtu     int
	wg      sync.WaitGroup
	closeCh chan struct{}

	outbound chan outboundMessage

	// preHello buffers fragments of a ClientHello that has not yet passed
	// cookie verification, keyed by source address, since no Connection
	// exists yet to hold a fragment.Reassembler of its own
	// [spec.md §4.3 "no existing connection"].
	preHelloMu sync.Mutex
	preHello   map[netip.AddrPort]*fragment.Reassembler

	handlerMu    sync.RWMutex
	dataHandler  DataHandler
	errorHandler ErrorHandler
}

// New validates cfg and constructs a Connector. The connector owns no
// socket until Start is called.
func New(cfg *Config) (*Connector, error) {
	if cfg == nil {
		return nil, errors.New("dtls12: nil connector config")
	}
	if cfg.Credentials == nil {
		return nil, errors.New("dtls12: connector config requires Credentials")
	}
	c := &Connector{
		cfg:       cfg,
		store:     connstore.New(),
		cookieKey: cookie.NewMacKey(cfg.Rnd),
		gate:      newCookieGate(cfg.CookieGateRatePerSecond, cfg.CookieGateBurst),
		clock:     newRetransmitClock(),
		metrics:   newMetrics(cfg.registerer()),
		logger:    cfg.logger(),
		mtu:       constants.MinimumMTU,
	}
	return c, nil
}

// Start binds the configured UDP socket, discovers the path MTU, and
// spawns the receiver, sender and retransmission-clock goroutines
// [spec.md §4.3 "Start"]. Idempotent: calling Start on an already-running
// Connector returns ErrAlreadyRunning.
func (c *Connector) Start() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}

	udpAddr, err := net.ResolveUDPAddr("udp", c.cfg.BindAddress)
	if err != nil {
		return err
	}
	socket, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	c.socket = socket
	c.mtu = discoverMTU(socket.LocalAddr().(*net.UDPAddr))
	c.outbound = make(chan outboundMessage, c.cfg.OutboundQueueCapacity)
	c.closeCh = make(chan struct{})
	c.clock = newRetransmitClock()
	c.running = true

	c.logger.Infof("dtls12: connector listening on %s, mtu %d", socket.LocalAddr(), c.mtu)

	c.wg.Add(3)
	go func() { defer c.wg.Done(); c.goRunReceiver() }()
	go func() { defer c.wg.Done(); c.goRunSender() }()
	go func() { defer c.wg.Done(); c.clock.Run(c.onFlightFire) }()
	return nil
}

// Stop closes the socket and tears down the background goroutines but
// keeps the connection store intact, so a subsequent Start (via Restart)
// resumes with every established session still cached
// [spec.md §4.3 "Stop / destroy"].
func (c *Connector) Stop() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if !c.running {
		return ErrNotRunning
	}
	c.running = false
	close(c.closeCh)
	c.clock.Close()
	_ = c.socket.Close()
	c.wg.Wait()
	c.socket = nil
	return nil
}

// Destroy stops the connector and discards every cached connection and
// session, so a subsequent Start begins with a clean slate
// [spec.md §4.3 "Stop / destroy"].
func (c *Connector) Destroy() error {
	if err := c.Stop(); err != nil {
		return err
	}
	c.store.Clear()
	return nil
}

// Restart stops and restarts the connector at the same bind address,
// preserving the connection store.
func (c *Connector) Restart() error {
	if err := c.Stop(); err != nil {
		return err
	}
	return c.Start()
}

// Send enqueues data for delivery to peerAddr, creating a connection and
// starting a client handshake if none exists yet
// [spec.md §4.3 "Outbound send"]. Non-blocking: a full outbound queue
// fails fast with ErrOutboundQueueFull rather than applying backpressure
// to the caller.
func (c *Connector) Send(peerAddr netip.AddrPort, data []byte) error {
	if len(data) > constants.MaxOutgoingApplicationPayload {
		return dtlserrors.ErrPayloadTooLarge
	}
	c.runMu.Lock()
	running := c.running
	ob := c.outbound
	c.runMu.Unlock()
	if !running {
		return ErrNotRunning
	}
	select {
	case ob <- outboundMessage{peerAddr: peerAddr, data: data}:
		return nil
	default:
		return dtlserrors.ErrOutboundQueueFull
	}
}

// Close sends a close_notify alert to peerAddr, bypassing retransmission,
// and removes the connection from the store without waiting for the
// peer's own close_notify [spec.md §4.3 "Close"].
func (c *Connector) Close(peerAddr netip.AddrPort) {
	conn, ok := c.store.Get(peerAddr)
	if !ok {
		return
	}
	c.sendCloseNotify(conn, peerAddr)
	c.store.Remove(peerAddr)
	c.gate.forget(peerAddr)
}

// ForceResume marks the connection at peerAddr, if any, as requiring a
// fresh resuming handshake before its next outbound send
// [spec.md §4.3 "ForceResume"].
func (c *Connector) ForceResume(peerAddr netip.AddrPort) {
	conn, ok := c.store.Get(peerAddr)
	if !ok {
		return
	}
	conn.Lock()
	conn.SetResumptionRequiredLocked(true)
	conn.Unlock()
}

// GetAddress returns the local address the connector is bound to, or the
// zero value if it is not running.
func (c *Connector) GetAddress() netip.AddrPort {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.socket == nil {
		return netip.AddrPort{}
	}
	addr, _ := netip.ParseAddrPort(c.socket.LocalAddr().String())
	return addr
}

// GetMTU returns the MTU discovered at Start.
func (c *Connector) GetMTU() int {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.mtu
}

// GetMaxFragmentLength returns the max_fragment_length in effect for
// peerAddr's session, or the connector-wide default if there is none yet.
func (c *Connector) GetMaxFragmentLength(peerAddr netip.AddrPort) int {
	if conn, ok := c.store.Get(peerAddr); ok {
		conn.Lock()
		sess := conn.EstablishedSessionLocked()
		conn.Unlock()
		if sess != nil {
			return sess.MaxFragmentLength()
		}
	}
	return c.cfg.maxFragmentLength()
}

// SetDataReceiver installs the callback invoked for every successfully
// decrypted application-data record.
func (c *Connector) SetDataReceiver(h DataHandler) {
	c.handlerMu.Lock()
	c.dataHandler = h
	c.handlerMu.Unlock()
}

// SetErrorHandler installs the callback invoked for inbound alerts and
// fatal terminations.
func (c *Connector) SetErrorHandler(h ErrorHandler) {
	c.handlerMu.Lock()
	c.errorHandler = h
	c.handlerMu.Unlock()
}

func (c *Connector) notifyData(peerAddr netip.AddrPort, data []byte, identity string) {
	c.handlerMu.RLock()
	h := c.dataHandler
	c.handlerMu.RUnlock()
	if h != nil {
		h(peerAddr, data, identity)
	}
}

func (c *Connector) notifyError(peerAddr netip.AddrPort, level record.AlertLevel, desc record.AlertDescription) {
	c.handlerMu.RLock()
	h := c.errorHandler
	c.handlerMu.RUnlock()
	if h != nil {
		h(peerAddr, level, desc)
	}
}

// terminate removes conn from the store and cancels its pending flight's
// retransmission timer, the shared tail of every abort path
// [spec.md §7 "terminate_connection"].
func (c *Connector) terminate(conn *connection.Connection, peerAddr netip.AddrPort) {
	conn.Lock()
	if fl := conn.PendingFlightLocked(); fl != nil {
		c.clock.Cancel(fl)
		conn.SetPendingFlightLocked(nil)
	}
	conn.Unlock()
	c.store.Remove(peerAddr)
	c.gate.forget(peerAddr)
	c.metrics.connectionsActive.Set(float64(c.store.Len()))
}

// armFlightLocked fills in the peer address every flight.Flight comes
// back from the handshaker with zeroed [handshake.StartHandshakeMessage /
// flows.go — every constructor there passes netip.AddrPort{}], records it
// as conn's pending flight, and schedules its first retransmission
// deadline, Config.InitialRetransmitTimeout from now, unless it opted out
// (an alert flight). conn.mu must already be held by the caller.
func (c *Connector) armFlightLocked(conn *connection.Connection, peerAddr netip.AddrPort, fl *flight.Flight) {
	if prev := conn.PendingFlightLocked(); prev != nil {
		c.clock.Cancel(prev)
	}
	fl.PeerAddr = peerAddr
	if d := c.cfg.InitialRetransmitTimeout; d > 0 {
		fl.TimeoutMs = int(d / time.Millisecond)
	}
	conn.SetPendingFlightLocked(fl)
	if fl.RetransmitNeeded {
		c.clock.Schedule(fl, time.Now().Add(time.Duration(fl.TimeoutMs)*time.Millisecond))
	}
	c.sendFlightDatagrams(fl)
}
