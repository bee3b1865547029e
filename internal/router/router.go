// Package router resolves a query to the pod that answers it, either on this
// node or on a statically routed peer.
package router

import (
	"context"
	"log/slog"
	"sync"

	"multicall/internal/multicall"
	"multicall/internal/network"
	"multicall/internal/types"
	"multicall/internal/wire"
)

// Local answers queries against pods deployed on this node.
type Local interface {
	Has(address string) bool
	Query(ctx context.Context, address string, msg []byte) multicall.Outcome
}

// Requester sends a request to a peer and returns its reply.
type Requester interface {
	Request(ctx context.Context, addr string, data []byte) ([]byte, error)
}

// Router is the node's multicall.Querier.
type Router struct {
	local  Local
	remote Requester // remote is nil when the node has no peers
	log    *slog.Logger

	routes   map[string]string // routes maps a pod address to the peer serving it
	routesMu sync.RWMutex
}

// New creates a Router. remote may be nil.
func New(log *slog.Logger, local Local, remote Requester, routes map[string]string) *Router {
	r := &Router{
		local:  local,
		remote: remote,
		log:    log,
		routes: make(map[string]string, len(routes)),
	}

	for addr, peer := range routes {
		r.routes[addr] = peer
	}

	return r
}

// SetRoute routes queries for a pod address to peer.
func (r *Router) SetRoute(address, peer string) {
	r.routesMu.Lock()
	r.routes[address] = peer
	r.routesMu.Unlock()
}

// Route returns the peer serving address, if any.
func (r *Router) Route(address string) (string, bool) {
	r.routesMu.RLock()
	defer r.routesMu.RUnlock()

	peer, ok := r.routes[address]
	return peer, ok
}

// RawQuery implements multicall.Querier.
// Local pods win over routes; a pod found nowhere is a system failure.
func (r *Router) RawQuery(ctx context.Context, request []byte) multicall.Outcome {
	q, err := wire.DecodeQuery(request)
	if err != nil {
		return multicall.SystemFailure("parsing query request: " + err.Error())
	}

	if r.local.Has(q.Address) {
		return r.local.Query(ctx, q.Address, q.Msg)
	}

	peer, ok := r.Route(q.Address)
	if !ok || r.remote == nil {
		return multicall.SystemFailure("no such contract: " + q.Address)
	}

	return r.forward(ctx, peer, request)
}

// forward sends the envelope unchanged to peer and decodes its outcome.
func (r *Router) forward(ctx context.Context, peer string, request []byte) multicall.Outcome {
	data, err := r.remote.Request(ctx, peer, request)
	if err != nil {
		r.log.Warn("remote query failed", "peer", peer, "error", err)
		return multicall.SystemFailure("remote query to " + peer + ": " + err.Error())
	}

	resp, err := wire.DecodeResponse(data)
	if err != nil {
		return multicall.SystemFailure("parsing response from " + peer + ": " + err.Error())
	}

	switch resp.Kind {
	case types.QueryResultKindSystemError:
		return multicall.SystemFailure(resp.Error)
	case types.QueryResultKindContractError:
		return multicall.ContractFailure(resp.Error)
	default:
		return multicall.Success(resp.Data)
	}
}

// HandleRequest answers a query from a peer with the local pods only, so a
// misconfigured route cannot bounce a query between nodes.
func (r *Router) HandleRequest(ctx context.Context, p *network.Peer, data []byte) ([]byte, error) {
	var out multicall.Outcome

	q, err := wire.DecodeQuery(data)
	switch {
	case err != nil:
		out = multicall.SystemFailure("parsing query request: " + err.Error())
	case !r.local.Has(q.Address):
		out = multicall.SystemFailure("no such contract: " + q.Address)
	default:
		out = r.local.Query(ctx, q.Address, q.Msg)
	}

	if p != nil {
		r.log.Debug("served remote query", "peer", p.Address(), "ok", out.Err == nil)
	}

	return wire.EncodeResponse(encodeOutcome(out)), nil
}

// encodeOutcome converts an outcome to its wire form.
func encodeOutcome(out multicall.Outcome) *wire.Response {
	if out.Err == nil {
		return &wire.Response{Kind: types.QueryResultKindOk, Data: out.Data}
	}

	kind := types.QueryResultKindSystemError
	if out.Err.Kind == multicall.KindContract {
		kind = types.QueryResultKindContractError
	}

	return &wire.Response{Kind: kind, Error: out.Err.Msg}
}
