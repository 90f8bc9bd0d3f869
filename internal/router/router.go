package router

import (
	"context"
	"fmt"
	"io"
	"log"

	"chordkit/internal/config"
	"chordkit/internal/metrics"
	"chordkit/internal/node"
	"chordkit/internal/ring"
)

// Options configures a Router.
type Options struct {
	// MaxHops is the most redirects one request may follow.
	MaxHops int
	// Port is attached to entry and forward addresses that carry none.
	Port    int
	Metrics *metrics.ClientMetrics
	Logger  *log.Logger
}

// Router issues set and get requests and follows redirects.
type Router struct {
	client  *node.Client
	space   ring.Space
	maxHops int
	port    int
	metrics *metrics.ClientMetrics
	logger  *log.Logger
}

// New creates a router over client. space is used by identifier routing.
func New(client *node.Client, space ring.Space, opts Options) *Router {
	if opts.MaxHops <= 0 {
		opts.MaxHops = config.DefaultMaxHops
	}
	if opts.Port <= 0 {
		opts.Port = config.DefaultPort
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Router{
		client:  client,
		space:   space,
		maxHops: opts.MaxHops,
		port:    opts.Port,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// MaxHops returns the redirect ceiling.
func (r *Router) MaxHops() int { return r.maxHops }

// SetResult is a completed write.
type SetResult struct {
	Addr string // node that accepted the write
	Hops int
}

// GetResult is a completed read.
type GetResult struct {
	Addr  string // node that returned the value
	Value []byte
	Hops  int
	// ReportedPathLength is the last path length a node put in a
	// redirect, zero if the first node answered.
	ReportedPathLength int
}

// hopFunc issues one request at addr and returns the redirect, if any.
type hopFunc func(ctx context.Context, addr string) (*node.Forward, error)

// Set writes value under key, starting at entry.
func (r *Router) Set(ctx context.Context, entry string, key, value []byte) (SetResult, error) {
	addr, hops, err := r.follow(ctx, "set", entry, func(ctx context.Context, addr string) (*node.Forward, error) {
		return r.client.SetKey(ctx, addr, key, value)
	})
	if err != nil {
		return SetResult{}, err
	}
	r.logger.Printf("[router] set %q accepted by %s after %d hops", key, addr, hops)
	return SetResult{Addr: addr, Hops: hops}, nil
}

// Get reads the value under key, starting at entry. A terminal node
// without the key yields *KeyNotFoundError.
func (r *Router) Get(ctx context.Context, entry string, key []byte) (GetResult, error) {
	var res GetResult
	addr, hops, err := r.follow(ctx, "get", entry, func(ctx context.Context, addr string) (*node.Forward, error) {
		reply, err := r.client.GetKey(ctx, addr, key)
		if err != nil {
			return nil, err
		}
		if reply.Forward != nil {
			res.ReportedPathLength = reply.PathLength
			return reply.Forward, nil
		}
		res.Value = reply.Value
		return nil, nil
	})
	if err != nil {
		return GetResult{}, err
	}
	res.Addr, res.Hops = addr, hops
	return res, nil
}

// follow runs step at entry and at every redirect until a node answers
// without one. It returns the terminal endpoint and the redirects taken.
func (r *Router) follow(ctx context.Context, op, entry string, step hopFunc) (string, int, error) {
	addr, err := config.ResolveEndpoint(entry, r.port)
	if err != nil {
		return "", 0, fmt.Errorf("%s: entry address: %w", op, err)
	}

	hops := 0
	for {
		fwd, err := step(ctx, addr)
		if err != nil {
			return "", hops, node.AtHop(err, hops)
		}
		if fwd == nil {
			r.metrics.ObserveRoute(op, hops)
			return addr, hops, nil
		}

		if hops == r.maxHops {
			r.logger.Printf("[router] %s from %s: giving up after %d hops", op, entry, hops)
			return "", hops, &RoutingLoopError{Op: op, Entry: entry, Last: addr, Hops: hops, Limit: r.maxHops}
		}

		next, err := config.ResolveEndpoint(fwd.Addr, r.port)
		if err != nil {
			return "", hops, &node.TransportError{
				Addr:   addr,
				Method: op,
				Hop:    hops,
				Kind:   node.KindRemote,
				Err:    fmt.Errorf("%w: forward address %q: %v", node.ErrMalformedResponse, fwd.Addr, err),
			}
		}
		hops++
		r.logger.Printf("[router] %s forwarded %s -> %s (hop %d)", op, addr, next, hops)
		addr = next
	}
}

// StoreResult is a completed identifier-mode write.
type StoreResult struct {
	ID   ring.Identifier
	Addr string
	Hops int
}

// FetchResult is a completed identifier-mode read.
type FetchResult struct {
	Addr  string
	Value []byte
	Hops  int
}

// Store writes value under its own identifier. The entry node names the
// owner and the value is sent there directly.
func (r *Router) Store(ctx context.Context, entry string, value []byte) (StoreResult, error) {
	id, err := r.space.Identify(value)
	if err != nil {
		return StoreResult{}, err
	}
	owner, hops, err := r.owner(ctx, entry, id)
	if err != nil {
		return StoreResult{}, err
	}
	if err := r.client.StoreID(ctx, owner, id, value); err != nil {
		return StoreResult{}, node.AtHop(err, hops)
	}
	r.metrics.ObserveRoute("store", hops)
	r.logger.Printf("[router] stored %d at %s", id, owner)
	return StoreResult{ID: id, Addr: owner, Hops: hops}, nil
}

// Fetch reads the value stored under id.
func (r *Router) Fetch(ctx context.Context, entry string, id ring.Identifier) (FetchResult, error) {
	if err := r.space.Check(id); err != nil {
		return FetchResult{}, err
	}
	owner, hops, err := r.owner(ctx, entry, id)
	if err != nil {
		return FetchResult{}, err
	}
	value, err := r.client.Lookup(ctx, owner, id)
	if err != nil {
		return FetchResult{}, node.AtHop(err, hops)
	}
	r.metrics.ObserveRoute("fetch", hops)
	return FetchResult{Addr: owner, Value: value, Hops: hops}, nil
}

// owner asks entry which node is responsible for id. The path length is
// one unless entry is the owner.
func (r *Router) owner(ctx context.Context, entry string, id ring.Identifier) (string, int, error) {
	addr, err := config.ResolveEndpoint(entry, r.port)
	if err != nil {
		return "", 0, fmt.Errorf("entry address: %w", err)
	}
	succ, err := r.client.FindSuccessor(ctx, addr, id)
	if err != nil {
		return "", 0, node.AtHop(err, 0)
	}
	if err := r.space.Check(succ.ID); err != nil {
		return "", 0, fmt.Errorf("successor of %d reported by %s: %w", id, addr, err)
	}
	owner, err := config.ResolveEndpoint(succ.Addr, r.port)
	if err != nil {
		return "", 0, &node.TransportError{
			Addr:   addr,
			Method: "FindSuccessor",
			Kind:   node.KindRemote,
			Err:    fmt.Errorf("%w: successor address %q: %v", node.ErrMalformedResponse, succ.Addr, err),
		}
	}
	if owner == addr {
		return owner, 0, nil
	}
	return owner, 1, nil
}
