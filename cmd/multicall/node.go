package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"multicall/internal/api"
	"multicall/internal/chain"
	"multicall/internal/config"
	"multicall/internal/contract"
	"multicall/internal/multicall"
	"multicall/internal/network"
	"multicall/internal/podvm"
	"multicall/internal/router"
	"multicall/internal/state"
	"multicall/internal/storage"
)

// Node is a running multicall node.
type Node struct {
	cfg      *config.Config
	log      *slog.Logger
	storage  *storage.Storage
	podPool  *podvm.Pool
	state    *state.State
	clock    *chain.Clock
	network  *network.Node
	router   *router.Router
	contract *contract.Contract
	api      *api.Server
	httpLn   net.Listener // httpLn is bound in NewNode so the address is known before Run
}

// NewNode creates and initializes a node. Listeners are bound but nothing is
// served until Run.
func NewNode(log *slog.Logger, cfg *config.Config) (*Node, error) {
	n := &Node{cfg: cfg, log: log}

	for _, step := range []func() error{
		n.initStorage,
		n.initPodVM,
		n.initState,
		n.initClock,
		n.initNetwork,
		n.initContract,
		n.initAPI,
	} {
		if err := step(); err != nil {
			n.Close()
			return nil, err
		}
	}

	return n, nil
}

// initStorage opens the Pebble storage under the data directory.
func (n *Node) initStorage() error {
	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.Open(filepath.Join(n.cfg.DataPath, "db"), storage.Options{})
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db

	return nil
}

// initPodVM creates the WASM runtime.
func (n *Node) initPodVM() error {
	n.podPool = podvm.New(context.Background())
	return nil
}

// initState reloads the deployed pods.
func (n *Node) initState() error {
	st, err := state.New(n.log.With("component", "state"), n.storage, n.podPool, n.cfg.GasLimit)
	if err != nil {
		return fmt.Errorf("init state:\n%w", err)
	}

	n.state = st

	if _, err := st.LoadAll(context.Background()); err != nil {
		return fmt.Errorf("load pods:\n%w", err)
	}

	return nil
}

// initClock resumes the block height.
func (n *Node) initClock() error {
	clock, err := chain.NewClock(n.log.With("component", "chain"), n.storage, n.cfg.BlockInterval)
	if err != nil {
		return fmt.Errorf("init clock:\n%w", err)
	}

	n.clock = clock

	return nil
}

// initNetwork starts the QUIC node and the router over it.
func (n *Node) initNetwork() error {
	key, err := config.LoadOrGenerateKey(n.cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	netNode, err := network.NewNode(network.Config{
		PrivateKey: key,
		ListenAddr: n.cfg.QUICAddress,
		Logger:     n.log.With("component", "network"),
	})
	if err != nil {
		return fmt.Errorf("init network:\n%w", err)
	}

	if err := netNode.Start(); err != nil {
		return fmt.Errorf("start network:\n%w", err)
	}

	n.network = netNode
	n.router = router.New(n.log.With("component", "router"), n.state, netNode, n.cfg.Routes)
	netNode.OnRequest(n.router.HandleRequest)

	n.log.Info("node identity",
		"pubkey", hex.EncodeToString(key.Public().(ed25519.PublicKey)),
		"quic", netNode.Addr(),
		"routes", len(n.cfg.Routes),
	)

	return nil
}

// initContract builds the aggregator and records the contract version:
// instantiate on a fresh data directory, migrate otherwise.
func (n *Node) initContract() error {
	agg := multicall.NewAggregator(n.log.With("component", "multicall"), n.router, n.clock)
	n.contract = contract.New(n.log.With("component", "contract"), agg, n.state)

	info, err := n.state.ContractInfo()
	if err != nil {
		return fmt.Errorf("read contract info:\n%w", err)
	}

	if info == nil {
		err = n.contract.Instantiate()
	} else {
		err = n.contract.Migrate()
	}
	if err != nil {
		return fmt.Errorf("record contract version:\n%w", err)
	}

	return nil
}

// initAPI binds the HTTP listener.
func (n *Node) initAPI() error {
	ln, err := net.Listen("tcp", n.cfg.HTTPAddress)
	if err != nil {
		return fmt.Errorf("listen http:\n%w", err)
	}

	n.httpLn = ln
	n.api = api.New(n.log.With("component", "api"), api.Config{
		Addr:     ln.Addr().String(),
		Contract: n.contract,
		Deployer: n.state,
		Heights:  n.clock,
		Pods:     n.state,
	})

	return nil
}

// HTTPAddr returns the bound HTTP address.
func (n *Node) HTTPAddr() string {
	return n.httpLn.Addr().String()
}

// Run serves until ctx is cancelled or a component fails.
func (n *Node) Run(ctx context.Context) error {
	n.log.Info("starting multicall node",
		"http", n.HTTPAddr(),
		"quic", n.network.Addr(),
		"data", n.cfg.DataPath,
		"pods", n.state.Pods(),
		"height", n.clock.Height(),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.clock.Run(gctx)
	})

	g.Go(func() error {
		return n.api.Serve(gctx, n.httpLn)
	})

	return g.Wait()
}

// Close releases every resource the node holds. Safe on a partly built node.
func (n *Node) Close() {
	if n.httpLn != nil {
		n.httpLn.Close()
	}

	if n.network != nil {
		n.network.Close()
	}

	if n.state != nil {
		n.state.Close()
	}

	if n.podPool != nil {
		n.podPool.Close(context.Background())
	}

	if n.storage != nil {
		n.storage.Close()
	}
}
