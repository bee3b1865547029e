package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"multicall/client"
	"multicall/internal/config"
	"multicall/internal/contract"
	"multicall/internal/logger"
)

const (
	flagConfig        = "config"
	flagData          = "data"
	flagHTTP          = "http"
	flagQUIC          = "quic"
	flagKey           = "key"
	flagBlockInterval = "block-interval"
	flagGasLimit      = "gas-limit"
	flagLogLevel      = "log-level"
	flagRoute         = "route"
	flagNode          = "node"
)

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "multicall",
		Short: "Batch query aggregator node",
		Long: `multicall runs a node that answers batches of contract queries in one
round trip. Pods (WASM contracts) are deployed to the node or reached on
peers over QUIC.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newDeployCmd(), newQueryCmd(), newVersionCmd())

	return root
}

// serveFlags holds the serve flags that override the loaded config.
type serveFlags struct {
	configPath    string
	dataPath      string
	httpAddress   string
	quicAddress   string
	keyPath       string
	blockInterval time.Duration
	gasLimit      uint64
	logLevel      string
	routes        map[string]string
}

func newServeCmd() *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}

			level, _ := logger.ParseLevel(cfg.LogLevel)
			log := logger.Init(os.Stdout, level)

			node, err := NewNode(log, cfg)
			if err != nil {
				return fmt.Errorf("create node:\n%w", err)
			}
			defer node.Close()

			return node.Run(cmd.Context())
		},
	}

	bindServeFlags(cmd, f)

	return cmd
}

// bindServeFlags registers the serve flags on cmd, storing values in f.
func bindServeFlags(cmd *cobra.Command, f *serveFlags) {
	fs := cmd.Flags()
	fs.StringVar(&f.configPath, flagConfig, "", "YAML config file")
	fs.StringVar(&f.dataPath, flagData, "", "Data directory path")
	fs.StringVar(&f.httpAddress, flagHTTP, "", "HTTP API address")
	fs.StringVar(&f.quicAddress, flagQUIC, "", "QUIC peer address")
	fs.StringVar(&f.keyPath, flagKey, "", "Ed25519 private key path (generates new if missing)")
	fs.DurationVar(&f.blockInterval, flagBlockInterval, 0, "Time between blocks")
	fs.Uint64Var(&f.gasLimit, flagGasLimit, 0, "Gas limit per pod query")
	fs.StringVar(&f.logLevel, flagLogLevel, "", "Log level (debug, info, warn, error)")
	fs.StringToStringVar(&f.routes, flagRoute, nil, "Remote pod route address=host:port (repeatable)")
}

// loadConfig loads the config file and environment, then applies the flags
// that were set explicitly.
func loadConfig(cmd *cobra.Command, f *serveFlags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config:\n%w", err)
	}

	fs := cmd.Flags()

	if fs.Changed(flagData) {
		cfg.DataPath = f.dataPath
	}
	if fs.Changed(flagHTTP) {
		cfg.HTTPAddress = f.httpAddress
	}
	if fs.Changed(flagQUIC) {
		cfg.QUICAddress = f.quicAddress
	}
	if fs.Changed(flagKey) {
		cfg.KeyPath = f.keyPath
	}
	if fs.Changed(flagBlockInterval) {
		cfg.BlockInterval = f.blockInterval
	}
	if fs.Changed(flagGasLimit) {
		cfg.GasLimit = f.gasLimit
	}
	if fs.Changed(flagLogLevel) {
		cfg.LogLevel = f.logLevel
	}
	if fs.Changed(flagRoute) {
		if cfg.Routes == nil {
			cfg.Routes = make(map[string]string, len(f.routes))
		}
		for addr, peer := range f.routes {
			cfg.Routes[addr] = peer
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}

	return cfg, nil
}

func newDeployCmd() *cobra.Command {
	var node string

	cmd := &cobra.Command{
		Use:   "deploy <wasm-file>",
		Short: "Deploy a pod to a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read pod:\n%w", err)
			}

			addr, err := client.NewClient(node, nil).Deploy(cmd.Context(), code)
			if err != nil {
				return fmt.Errorf("deploy:\n%w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}

	cmd.Flags().StringVar(&node, flagNode, "127.0.0.1:8080", "Node HTTP address")

	return cmd
}

func newQueryCmd() *cobra.Command {
	var node string

	cmd := &cobra.Command{
		Use:   "query <json>",
		Short: "Send a query message to a node",
		Example: `  multicall query '{"contract_version":{}}'
  multicall query '{"try_aggregate":{"queries":[{"address":"<pod>","data":"<base64>"}]}}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[0])) {
				return fmt.Errorf("query is not valid JSON")
			}

			resp, err := client.NewClient(node, nil).QueryRaw(cmd.Context(), []byte(args[0]))
			if err != nil {
				return fmt.Errorf("query:\n%w", err)
			}

			var out bytes.Buffer
			if err := json.Indent(&out, resp, "", "  "); err != nil {
				out.Reset()
				out.Write(resp)
			}

			fmt.Fprintln(cmd.OutOrStdout(), out.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&node, flagNode, "127.0.0.1:8080", "Node HTTP address")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the contract name and version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", contract.Name, contract.Version)
		},
	}
}
