package node

import (
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"chordkit/internal/rpcpb"
)

// Conn is a transport handle to one ring node, valid until Release.
type Conn struct {
	addr    string
	cc      *grpc.ClientConn
	release func() error
}

// Addr returns the endpoint the connection targets.
func (c *Conn) Addr() string { return c.addr }

// Chord returns a chord.Chord client on the connection.
func (c *Conn) Chord() *rpcpb.ChordClient { return rpcpb.NewChordClient(c.cc) }

// DHT returns a dht.DHT client on the connection.
func (c *Conn) DHT() *rpcpb.DHTClient { return rpcpb.NewDHTClient(c.cc) }

// Release gives the connection back. It must be called exactly once.
func (c *Conn) Release() error {
	if c.release == nil {
		return nil
	}
	return c.release()
}

// OnRelease returns a handle to the same connection whose Release also
// calls fn. Dialers that wrap another Dialer use it to observe releases.
func (c *Conn) OnRelease(fn func()) *Conn {
	release := c.release
	return &Conn{
		addr: c.addr,
		cc:   c.cc,
		release: func() error {
			fn()
			if release == nil {
				return nil
			}
			return release()
		},
	}
}

// Dialer hands out connections to ring nodes.
type Dialer interface {
	Dial(addr string) (*Conn, error)
}

func newClientConn(addr string) (*grpc.ClientConn, error) {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return cc, nil
}

// FreshDialer opens a new connection per Dial and closes it on Release.
type FreshDialer struct{}

// Dial opens a connection to addr.
func (FreshDialer) Dial(addr string) (*Conn, error) {
	cc, err := newClientConn(addr)
	if err != nil {
		return nil, err
	}
	return &Conn{addr: addr, cc: cc, release: cc.Close}, nil
}

// ErrClientManagerClosed is returned by Dial after Close.
var ErrClientManagerClosed = errors.New("client manager closed")

// ClientManager pools one gRPC connection per node address.
// Releasing a pooled connection leaves it open for the next caller.
type ClientManager struct {
	mu     sync.RWMutex
	conns  map[string]*grpc.ClientConn
	closed bool
}

// NewClientManager creates a new client manager.
func NewClientManager() *ClientManager {
	return &ClientManager{
		conns: make(map[string]*grpc.ClientConn),
	}
}

// Dial returns the pooled connection for addr, creating it if needed.
func (cm *ClientManager) Dial(addr string) (*Conn, error) {
	cm.mu.RLock()
	cc, exists := cm.conns[addr]
	closed := cm.closed
	cm.mu.RUnlock()

	if closed {
		return nil, ErrClientManagerClosed
	}
	if exists {
		return &Conn{addr: addr, cc: cc}, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return nil, ErrClientManagerClosed
	}
	// Double-check after acquiring write lock
	if cc, exists := cm.conns[addr]; exists {
		return &Conn{addr: addr, cc: cc}, nil
	}

	cc, err := newClientConn(addr)
	if err != nil {
		return nil, err
	}
	cm.conns[addr] = cc
	return &Conn{addr: addr, cc: cc}, nil
}

// Len returns the number of pooled connections.
func (cm *ClientManager) Len() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}

// Close closes all pooled connections. Later Dials fail.
func (cm *ClientManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var errs []error
	for addr, cc := range cm.conns {
		if err := cc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", addr, err))
		}
	}
	cm.conns = make(map[string]*grpc.ClientConn)
	cm.closed = true
	return errors.Join(errs...)
}
