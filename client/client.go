// Package client talks to a multicall node over its HTTP API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"multicall/internal/contract"
	"multicall/internal/multicall"
)

// defaultTimeout bounds each request when no http.Client is supplied.
const defaultTimeout = 30 * time.Second

// Client connects to a multicall node via HTTP.
type Client struct {
	baseURL string       // baseURL is the node's API root (e.g. "http://127.0.0.1:8080")
	http    *http.Client // http sends the requests
}

// Status is the node status reported by GET /status.
type Status struct {
	Height  uint64 `json:"height"`  // Height is the current block height
	Pods    int    `json:"pods"`    // Pods is the number of pods served locally
	Version string `json:"version"` // Version is the contract version
}

// NewClient creates a client for the node at nodeAddr, either host:port or a
// full URL. A nil httpClient selects one with a default timeout.
func NewClient(nodeAddr string, httpClient *http.Client) *Client {
	base := strings.TrimRight(nodeAddr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{baseURL: base, http: httpClient}
}

// Health checks that the node is serving.
func (c *Client) Health(ctx context.Context) error {
	var resp map[string]string
	return c.httpGet(ctx, "/health", &resp)
}

// Status returns the node status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.httpGet(ctx, "/status", &s); err != nil {
		return nil, fmt.Errorf("get status:\n%w", err)
	}
	return &s, nil
}

// QueryRaw sends a raw JSON query message and returns the raw JSON response.
func (c *Client) QueryRaw(ctx context.Context, msg []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "/query", "application/json", msg, http.StatusOK)
}

// Query sends msg and decodes the response into result.
func (c *Client) Query(ctx context.Context, msg *contract.QueryMsg, result any) error {
	return c.httpPostJSON(ctx, "/query", msg, http.StatusOK, result)
}

// Execute sends an execute message. Nodes reject every execute message.
func (c *Client) Execute(ctx context.Context, msg json.RawMessage) error {
	return c.httpPostJSON(ctx, "/execute", msg, http.StatusOK, nil)
}

// Deploy uploads pod code and returns its address.
func (c *Client) Deploy(ctx context.Context, code []byte) (string, error) {
	data, err := c.do(ctx, http.MethodPost, "/pods", "application/wasm", code, http.StatusCreated)
	if err != nil {
		return "", err
	}

	var resp struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decode deploy response:\n%w", err)
	}

	return resp.Address, nil
}

// ContractVersion returns the contract name and version recorded on the node.
func (c *Client) ContractVersion(ctx context.Context) (*contract.ContractInfo, error) {
	var info contract.ContractInfo
	if err := c.Query(ctx, &contract.QueryMsg{ContractVersion: &struct{}{}}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Aggregate runs calls and fails if any call fails.
func (c *Client) Aggregate(ctx context.Context, calls []multicall.Call) (*multicall.AggregateResult, error) {
	msg := &contract.QueryMsg{Aggregate: &contract.AggregateMsg{Queries: calls}}
	return queryAs[multicall.AggregateResult](ctx, c, msg)
}

// TryAggregate runs calls, tolerating failures unless requireSuccess is set.
func (c *Client) TryAggregate(ctx context.Context, requireSuccess, includeCause bool, calls []multicall.Call) (*multicall.AggregateResult, error) {
	msg := &contract.QueryMsg{TryAggregate: tryMsg(requireSuccess, includeCause, calls)}
	return queryAs[multicall.AggregateResult](ctx, c, msg)
}

// TryAggregateOptional runs calls, each deciding whether its failure aborts the batch.
func (c *Client) TryAggregateOptional(ctx context.Context, includeCause bool, calls []multicall.CallOptional) (*multicall.AggregateResult, error) {
	msg := &contract.QueryMsg{TryAggregateOptional: optionalMsg(includeCause, calls)}
	return queryAs[multicall.AggregateResult](ctx, c, msg)
}

// BlockAggregate is Aggregate stamped with the block height.
func (c *Client) BlockAggregate(ctx context.Context, calls []multicall.Call) (*multicall.BlockAggregateResult, error) {
	msg := &contract.QueryMsg{BlockAggregate: &contract.AggregateMsg{Queries: calls}}
	return queryAs[multicall.BlockAggregateResult](ctx, c, msg)
}

// BlockTryAggregate is TryAggregate stamped with the block height.
func (c *Client) BlockTryAggregate(ctx context.Context, requireSuccess, includeCause bool, calls []multicall.Call) (*multicall.BlockAggregateResult, error) {
	msg := &contract.QueryMsg{BlockTryAggregate: tryMsg(requireSuccess, includeCause, calls)}
	return queryAs[multicall.BlockAggregateResult](ctx, c, msg)
}

// BlockTryAggregateOptional is TryAggregateOptional stamped with the block height.
func (c *Client) BlockTryAggregateOptional(ctx context.Context, includeCause bool, calls []multicall.CallOptional) (*multicall.BlockAggregateResult, error) {
	msg := &contract.QueryMsg{BlockTryAggregateOptional: optionalMsg(includeCause, calls)}
	return queryAs[multicall.BlockAggregateResult](ctx, c, msg)
}

// queryAs sends msg and decodes the response as T.
func queryAs[T any](ctx context.Context, c *Client, msg *contract.QueryMsg) (*T, error) {
	var result T
	if err := c.Query(ctx, msg, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func tryMsg(requireSuccess, includeCause bool, calls []multicall.Call) *contract.TryAggregateMsg {
	return &contract.TryAggregateMsg{
		RequireSuccess: contract.Bool(requireSuccess),
		IncludeCause:   contract.Bool(includeCause),
		Queries:        calls,
	}
}

func optionalMsg(includeCause bool, calls []multicall.CallOptional) *contract.TryAggregateOptionalMsg {
	return &contract.TryAggregateOptionalMsg{
		IncludeCause: contract.Bool(includeCause),
		Queries:      calls,
	}
}
