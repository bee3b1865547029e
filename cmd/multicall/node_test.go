package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"multicall/client"
	"multicall/internal/config"
	"multicall/internal/contract"
	"multicall/internal/multicall"
	"multicall/internal/podvm/podvmtest"
)

func testConfig(t *testing.T, dataPath string) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.DataPath = dataPath
	cfg.HTTPAddress = "127.0.0.1:0"
	cfg.QUICAddress = "127.0.0.1:0"
	cfg.BlockInterval = 10 * time.Millisecond
	require.NoError(t, cfg.Validate())

	return cfg
}

// startNode runs a node until the returned stop function is called.
func startNode(t *testing.T, cfg *config.Config) (*Node, func()) {
	t.Helper()

	node, err := NewNode(slogt.New(t), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- node.Run(ctx) }()

	stop := func() {
		cancel()
		require.NoError(t, <-done)
		node.Close()
	}

	return node, stop
}

func TestNode_EndToEnd(t *testing.T) {
	dataPath := filepath.Join(t.TempDir(), "data")
	node, stop := startNode(t, testConfig(t, dataPath))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := client.NewClient(node.HTTPAddr(), nil)
	require.Eventually(t, func() bool { return c.Health(ctx) == nil }, 5*time.Second, 10*time.Millisecond)

	echo, err := c.Deploy(ctx, podvmtest.Echo())
	require.NoError(t, err)

	fail, err := c.Deploy(ctx, podvmtest.Fail())
	require.NoError(t, err)

	info, err := c.ContractVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, &contract.ContractInfo{Contract: contract.Name, Version: contract.Version}, info)

	res, err := c.TryAggregate(ctx, false, true, []multicall.Call{
		{Address: echo, Data: []byte("hello")},
		{Address: fail, Data: []byte("x")},
		{Address: "missing", Data: []byte("y")},
	})
	require.NoError(t, err)
	require.Equal(t, []multicall.CallResult{
		{Success: true, Data: []byte("hello")},
		{Success: false, Data: []byte(`"querier contract error: error"`)},
		{Success: false, Data: []byte(`"querier system error: no such contract: missing"`)},
	}, res.ReturnData)

	require.Eventually(t, func() bool {
		status, err := c.Status(ctx)
		return err == nil && status.Height > 0 && status.Pods == 2
	}, 5*time.Second, 10*time.Millisecond)

	block, err := c.BlockAggregate(ctx, []multicall.Call{{Address: echo, Data: []byte("b")}})
	require.NoError(t, err)
	require.Positive(t, block.Block)
	require.Equal(t, "b", string(block.ReturnData[0].Data))

	stop()

	// A restart reloads the pods and resumes the height.
	node, stop = startNode(t, testConfig(t, dataPath))
	defer stop()

	require.Equal(t, 2, node.state.Pods())
	require.GreaterOrEqual(t, node.clock.Height(), block.Block)

	c = client.NewClient(node.HTTPAddr(), nil)
	require.Eventually(t, func() bool { return c.Health(ctx) == nil }, 5*time.Second, 10*time.Millisecond)

	res, err = c.Aggregate(ctx, []multicall.Call{{Address: echo, Data: []byte("again")}})
	require.NoError(t, err)
	require.Equal(t, "again", string(res.ReturnData[0].Data))
}

func TestNode_RemoteRoute(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	far, stopFar := startNode(t, testConfig(t, filepath.Join(t.TempDir(), "far")))
	defer stopFar()

	addr, err := far.state.Deploy(ctx, podvmtest.Echo())
	require.NoError(t, err)

	cfg := testConfig(t, filepath.Join(t.TempDir(), "near"))
	cfg.Routes = map[string]string{addr.String(): far.network.Addr()}

	near, stopNear := startNode(t, cfg)
	defer stopNear()

	c := client.NewClient(near.HTTPAddr(), nil)
	require.Eventually(t, func() bool { return c.Health(ctx) == nil }, 5*time.Second, 10*time.Millisecond)

	res, err := c.Aggregate(ctx, []multicall.Call{{Address: addr.String(), Data: []byte("via quic")}})
	require.NoError(t, err)
	require.Equal(t, "via quic", string(res.ReturnData[0].Data))
	require.Equal(t, 0, near.state.Pods())
}

func TestNewNode_BadAddress(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "data"))
	cfg.HTTPAddress = "256.0.0.1:bad"

	_, err := NewNode(slogt.New(t), cfg)
	require.ErrorContains(t, err, "listen http")
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, contract.Name+" "+contract.Version+"\n", out.String())
}

func TestQueryCmd_InvalidJSON(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"query", "{not json"})

	require.ErrorContains(t, cmd.Execute(), "not valid JSON")
}

// parseServeFlags parses args as serve flags and loads the config.
func parseServeFlags(t *testing.T, args []string) (*config.Config, error) {
	t.Helper()

	cmd := &cobra.Command{Use: "serve"}
	f := &serveFlags{}
	bindServeFlags(cmd, f)
	require.NoError(t, cmd.ParseFlags(args))

	return loadConfig(cmd, f)
}

func TestLoadConfig_Precedence(t *testing.T) {
	t.Setenv("MULTICALL_HTTP", "0.0.0.0:7000")
	t.Setenv("MULTICALL_GAS_LIMIT", "123")

	cfg, err := parseServeFlags(t, []string{
		"--http", "127.0.0.1:7001",
		"--route", "aa=10.0.0.1:9000",
		"--block-interval", "3s",
	})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7001", cfg.HTTPAddress, "flag wins over env")
	require.Equal(t, uint64(123), cfg.GasLimit, "env wins over default")
	require.Equal(t, ":9000", cfg.QUICAddress)
	require.Equal(t, 3*time.Second, cfg.BlockInterval)
	require.Equal(t, map[string]string{"aa": "10.0.0.1:9000"}, cfg.Routes)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := parseServeFlags(t, []string{"--log-level", "chatty"})
	require.ErrorContains(t, err, "invalid config")
}
