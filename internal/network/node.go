// Package network carries query requests between nodes over QUIC.
//
// Every node is both a server and a client. A request travels on its own
// bidirectional stream as one length-prefixed message, and the reply comes
// back on the same stream.
package network

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"golang.org/x/sync/singleflight"
)

const (
	// alpnProtocol is the ALPN protocol identifier.
	alpnProtocol = "multicall/1"

	// defaultDialTimeout bounds connection setup when the caller's context has no deadline.
	defaultDialTimeout = 5 * time.Second
)

// ErrClosed is returned when using a node or peer after Close.
var ErrClosed = errors.New("network: closed")

// RequestHandler answers a request received from a peer.
type RequestHandler func(ctx context.Context, p *Peer, data []byte) ([]byte, error)

// Config holds the configuration for a Node.
type Config struct {
	PrivateKey ed25519.PrivateKey // PrivateKey is the node's ed25519 private key
	ListenAddr string             // ListenAddr is the address to listen on (e.g., ":9000")
	Logger     *slog.Logger       // Logger receives connection events; defaults to slog.Default
}

// Node accepts connections from peers and dials them on demand.
type Node struct {
	publicKey  ed25519.PublicKey // publicKey is the node's ed25519 public key
	listenAddr string            // listenAddr is the address to listen on
	tlsConfig  *tls.Config       // tlsConfig is the TLS configuration
	quicConfig *quic.Config      // quicConfig is the QUIC configuration
	log        *slog.Logger

	listener *quic.Listener // listener is the QUIC listener

	peers   map[string]*Peer // peers maps public key hex to peer
	dialed  map[string]*Peer // dialed maps a dialed address to its peer
	peersMu sync.RWMutex     // peersMu protects peers and dialed

	dialing singleflight.Group // dialing collapses concurrent dials to one address

	onRequest  RequestHandler // onRequest answers incoming requests
	handlersMu sync.RWMutex   // handlersMu protects onRequest

	ctx    context.Context    // ctx is the node's context
	cancel context.CancelFunc // cancel cancels the node's context
	wg     sync.WaitGroup     // wg waits for goroutines to finish
}

// NewNode creates a new network node.
func NewNode(cfg Config) (*Node, error) {
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	cert, err := generateCertificate(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("generate certificate:\n%w", err)
	}

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true, // peers are identified by their ed25519 key, not a CA
		NextProtos:         []string{alpnProtocol},
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		publicKey:  cfg.PrivateKey.Public().(ed25519.PublicKey),
		listenAddr: cfg.ListenAddr,
		tlsConfig:  tlsConfig,
		quicConfig: quicConfig,
		log:        log,
		peers:      make(map[string]*Peer),
		dialed:     make(map[string]*Peer),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// PublicKey returns the node's public key.
func (n *Node) PublicKey() ed25519.PublicKey {
	return n.publicKey
}

// Addr returns the listener's address. Returns empty string if not started.
func (n *Node) Addr() string {
	if n.listener == nil {
		return ""
	}

	return n.listener.Addr().String()
}

// Start starts the node and begins accepting connections.
func (n *Node) Start() error {
	listener, err := quic.ListenAddr(n.listenAddr, n.tlsConfig, n.quicConfig)
	if err != nil {
		return fmt.Errorf("listen:\n%w", err)
	}

	n.listener = listener

	n.wg.Add(1)
	go n.acceptLoop()

	n.log.Info("quic listening", "addr", n.Addr())

	return nil
}

// Connect dials a remote node at addr.
func (n *Node) Connect(ctx context.Context, addr string) (*Peer, error) {
	if n.ctx.Err() != nil {
		return nil, ErrClosed
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultDialTimeout)
		defer cancel()
	}

	conn, err := quic.DialAddr(ctx, addr, n.tlsConfig, n.quicConfig)
	if err != nil {
		return nil, fmt.Errorf("dial %s:\n%w", addr, err)
	}

	peer, err := n.setupPeer(conn, addr)
	if err != nil {
		conn.CloseWithError(1, "setup failed")
		return nil, err
	}

	return peer, nil
}

// Dial returns the live peer previously dialed at addr, connecting if there is none.
// Concurrent dials to the same address share a single connection attempt.
func (n *Node) Dial(ctx context.Context, addr string) (*Peer, error) {
	if peer := n.dialedPeer(addr); peer != nil {
		return peer, nil
	}

	v, err, _ := n.dialing.Do(addr, func() (any, error) {
		if peer := n.dialedPeer(addr); peer != nil {
			return peer, nil
		}

		peer, err := n.Connect(ctx, addr)
		if err != nil {
			return nil, err
		}

		n.peersMu.Lock()
		n.dialed[addr] = peer
		n.peersMu.Unlock()

		return peer, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Peer), nil
}

// dialedPeer returns the live peer dialed at addr, or nil.
func (n *Node) dialedPeer(addr string) *Peer {
	n.peersMu.RLock()
	defer n.peersMu.RUnlock()

	peer, ok := n.dialed[addr]
	if !ok || peer.closed.Load() {
		return nil
	}

	return peer
}

// Request sends data to the node at addr and waits for its reply.
func (n *Node) Request(ctx context.Context, addr string, data []byte) ([]byte, error) {
	peer, err := n.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}

	return peer.Request(ctx, data)
}

// Peers returns a list of all connected peers.
func (n *Node) Peers() []*Peer {
	n.peersMu.RLock()
	defer n.peersMu.RUnlock()

	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}

	return peers
}

// GetPeer returns the peer for the given public key, or nil if not connected.
func (n *Node) GetPeer(pubkey ed25519.PublicKey) *Peer {
	keyHex := hex.EncodeToString(pubkey)

	n.peersMu.RLock()
	defer n.peersMu.RUnlock()

	return n.peers[keyHex]
}

// OnRequest sets the handler for incoming requests.
func (n *Node) OnRequest(fn RequestHandler) {
	n.handlersMu.Lock()
	n.onRequest = fn
	n.handlersMu.Unlock()
}

// Close stops the node and closes all connections.
func (n *Node) Close() error {
	n.cancel()

	if n.listener != nil {
		n.listener.Close()
	}

	n.peersMu.Lock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.peers = make(map[string]*Peer)
	n.dialed = make(map[string]*Peer)
	n.peersMu.Unlock()

	for _, p := range peers {
		p.Close()
	}

	n.wg.Wait()

	return nil
}

// acceptLoop accepts incoming connections.
func (n *Node) acceptLoop() {
	defer n.wg.Done()

	for {
		conn, err := n.listener.Accept(n.ctx)
		if err != nil {
			return // Listener closed
		}

		go n.handleIncoming(conn)
	}
}

// handleIncoming handles an incoming connection.
func (n *Node) handleIncoming(conn *quic.Conn) {
	peer, err := n.setupPeer(conn, conn.RemoteAddr().String())
	if err != nil {
		n.log.Debug("rejecting connection", "remote", conn.RemoteAddr().String(), "error", err)
		conn.CloseWithError(1, "setup failed")
		return
	}

	n.log.Debug("peer connected", "peer", peer.address)
}

// setupPeer creates a Peer from a QUIC connection.
func (n *Node) setupPeer(conn *quic.Conn, addr string) (*Peer, error) {
	tlsState := conn.ConnectionState().TLS

	pubKey, err := extractPublicKey(tlsState)
	if err != nil {
		return nil, fmt.Errorf("extract public key:\n%w", err)
	}

	peer := &Peer{
		publicKey: pubKey,
		address:   addr,
		conn:      conn,
		node:      n,
	}

	n.peersMu.Lock()
	if n.ctx.Err() != nil {
		n.peersMu.Unlock()
		return nil, ErrClosed
	}
	n.peers[hex.EncodeToString(pubKey)] = peer
	n.wg.Add(1)
	n.peersMu.Unlock()

	go func() {
		defer n.wg.Done()
		peer.serve()
	}()

	return peer, nil
}

// handlePeerDisconnect forgets a disconnected peer.
func (n *Node) handlePeerDisconnect(p *Peer) {
	keyHex := hex.EncodeToString(p.publicKey)

	n.peersMu.Lock()
	if n.peers[keyHex] == p {
		delete(n.peers, keyHex)
	}
	if n.dialed[p.address] == p {
		delete(n.dialed, p.address)
	}
	n.peersMu.Unlock()

	n.log.Debug("peer disconnected", "peer", p.address)
}

// callOnRequest calls the onRequest handler if set.
func (n *Node) callOnRequest(ctx context.Context, p *Peer, data []byte) ([]byte, error) {
	n.handlersMu.RLock()
	fn := n.onRequest
	n.handlersMu.RUnlock()

	if fn == nil {
		return nil, fmt.Errorf("no request handler registered")
	}

	return fn(ctx, p, data)
}
