package node

import (
	"context"
	"fmt"
	"time"

	"chordkit/internal/metrics"
	"chordkit/internal/ring"
	"chordkit/internal/rpcpb"
)

// DefaultRPCTimeout bounds one RPC when the caller sets no timeout.
const DefaultRPCTimeout = 3 * time.Second

// Client issues single RPCs to ring nodes. Every call dials through the
// Dialer, runs under its own timeout and releases the connection before
// returning. Failures come back as *TransportError.
type Client struct {
	dialer  Dialer
	timeout time.Duration
	metrics *metrics.ClientMetrics
}

// NewClient creates a client. m may be nil.
func NewClient(dialer Dialer, timeout time.Duration, m *metrics.ClientMetrics) *Client {
	if dialer == nil {
		dialer = FreshDialer{}
	}
	if timeout <= 0 {
		timeout = DefaultRPCTimeout
	}
	return &Client{
		dialer:  dialer,
		timeout: timeout,
		metrics: m,
	}
}

// Forward is a redirect returned by SetKey or GetKey.
type Forward struct {
	Addr string
}

// GetReply is a terminal value or a redirect.
type GetReply struct {
	Value      []byte
	Forward    *Forward
	PathLength int
}

// FindSuccessor asks addr for the node responsible for id.
func (c *Client) FindSuccessor(ctx context.Context, addr string, id ring.Identifier) (ring.Node, error) {
	const method = "FindSuccessor"

	var out rpcpb.Node
	err := c.call(ctx, addr, method, func(ctx context.Context, conn *Conn) error {
		var err error
		out, err = conn.Chord().FindSuccessor(ctx, rpcpb.FindSuccessorRequest{ID: int64(id)})
		return err
	})
	if err != nil {
		return ring.Node{}, err
	}
	c.metrics.ObserveRPC(method, metrics.OutcomeOK)
	return ring.Node{ID: ring.Identifier(uint64(out.Identifier)), Addr: out.Address}, nil
}

// SetKey issues one SetKey at addr. A nil Forward means addr accepted
// the write.
func (c *Client) SetKey(ctx context.Context, addr string, key, value []byte) (*Forward, error) {
	const method = "SetKey"

	var out rpcpb.SetKeyResponse
	err := c.call(ctx, addr, method, func(ctx context.Context, conn *Conn) error {
		var err error
		out, err = conn.DHT().SetKey(ctx, rpcpb.SetKeyRequest{Key: key, Value: value})
		return err
	})
	if err != nil {
		return nil, err
	}

	fwd, err := forwardOf(addr, method, out.ForwardNode)
	if err != nil {
		c.metrics.ObserveRPC(method, metrics.OutcomeError)
		return nil, err
	}
	c.metrics.ObserveRPC(method, outcome(fwd))
	return fwd, nil
}

// GetKey issues one GetKey at addr.
func (c *Client) GetKey(ctx context.Context, addr string, key []byte) (GetReply, error) {
	const method = "GetKey"

	var out rpcpb.GetKeyResponse
	err := c.call(ctx, addr, method, func(ctx context.Context, conn *Conn) error {
		var err error
		out, err = conn.DHT().GetKey(ctx, rpcpb.GetKeyRequest{Key: key})
		if err != nil && isNotFound(err) {
			return &KeyNotFoundError{Key: string(key), Addr: addr}
		}
		return err
	})
	if err != nil {
		return GetReply{}, err
	}

	fwd, err := forwardOf(addr, method, out.ForwardNode)
	if err != nil {
		c.metrics.ObserveRPC(method, metrics.OutcomeError)
		return GetReply{}, err
	}
	c.metrics.ObserveRPC(method, outcome(fwd))
	return GetReply{Value: out.Value, Forward: fwd, PathLength: int(out.PathLength)}, nil
}

// StoreID stores value under id at addr through the chord service.
func (c *Client) StoreID(ctx context.Context, addr string, id ring.Identifier, value []byte) error {
	const method = "ChordSetKey"

	err := c.call(ctx, addr, method, func(ctx context.Context, conn *Conn) error {
		return conn.Chord().SetKey(ctx, rpcpb.ChordSetKeyRequest{Key: int64(id), Value: value})
	})
	if err != nil {
		return err
	}
	c.metrics.ObserveRPC(method, metrics.OutcomeOK)
	return nil
}

// Lookup reads the value stored under id at addr through the chord service.
func (c *Client) Lookup(ctx context.Context, addr string, id ring.Identifier) ([]byte, error) {
	const method = "Lookup"

	var out rpcpb.LookupResponse
	err := c.call(ctx, addr, method, func(ctx context.Context, conn *Conn) error {
		var err error
		out, err = conn.Chord().Lookup(ctx, rpcpb.LookupRequest{Key: int64(id)})
		if err != nil && isNotFound(err) {
			return &KeyNotFoundError{Key: fmt.Sprint(uint64(id)), Addr: addr}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	c.metrics.ObserveRPC(method, metrics.OutcomeOK)
	return out.Value, nil
}

// call dials addr, runs fn under the RPC timeout and releases the
// connection on every path.
func (c *Client) call(ctx context.Context, addr, method string, fn func(context.Context, *Conn) error) error {
	conn, err := c.dialer.Dial(addr)
	if err != nil {
		c.metrics.ObserveRPC(method, metrics.OutcomeError)
		return &TransportError{Addr: addr, Method: method, Kind: KindUnreachable, Err: err}
	}
	defer conn.Release()

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err = fn(rctx, conn)
	switch err.(type) {
	case nil:
		return nil
	case *KeyNotFoundError:
		c.metrics.ObserveRPC(method, metrics.OutcomeNotFound)
		return err
	default:
		c.metrics.ObserveRPC(method, metrics.OutcomeError)
		return classify(addr, method, err)
	}
}

func forwardOf(addr, method string, fn *rpcpb.ForwardNode) (*Forward, error) {
	if fn == nil {
		return nil, nil
	}
	if fn.Address == "" {
		return nil, &TransportError{
			Addr:   addr,
			Method: method,
			Kind:   KindRemote,
			Err:    fmt.Errorf("%w: forward pointer without address", ErrMalformedResponse),
		}
	}
	return &Forward{Addr: fn.Address}, nil
}

func outcome(fwd *Forward) string {
	if fwd != nil {
		return metrics.OutcomeForward
	}
	return metrics.OutcomeOK
}
