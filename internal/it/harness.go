// Package it runs in-process simulated rings for integration tests and
// local experiments.
package it

import (
	"fmt"
	"io"
	"log"
	"net"
	"sort"
	"strconv"
	"sync"

	"chordkit/internal/metrics"
	"chordkit/internal/node"
	"chordkit/internal/ring"
)

// Options configures a Cluster.
type Options struct {
	Space    ring.Space
	Strategy node.ForwardStrategy
	// Host is the interface nodes listen on. Defaults to 127.0.0.1.
	Host string
	// BasePort, if non-zero, gives node i the port BasePort+i.
	BasePort int
	Metrics  *metrics.NodeMetrics
	Logger   *log.Logger
}

// Cluster represents a simulated ring of nodes sharing one membership view.
type Cluster struct {
	opts    Options
	ring    *ring.Ring
	mu      sync.Mutex
	members []*Member
	wg      sync.WaitGroup
}

// Member is a single node in the cluster.
type Member struct {
	ID     ring.Identifier
	Addr   string
	Node   *node.Node
	Server *node.Server
	killed bool
}

// NewCluster creates an empty cluster.
func NewCluster(opts Options) (*Cluster, error) {
	if opts.Space.Modulus() == 0 {
		space, err := ring.NewSpace(ring.DefaultBits)
		if err != nil {
			return nil, err
		}
		opts.Space = space
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Cluster{
		opts:    opts,
		ring:    ring.NewRing(),
		members: make([]*Member, 0),
	}, nil
}

// Space returns the identifier space nodes use.
func (c *Cluster) Space() ring.Space { return c.opts.Space }

// Ring returns the shared membership view.
func (c *Cluster) Ring() *ring.Ring { return c.ring }

// StartNodes starts n nodes whose identifiers derive from their addresses.
func (c *Cluster) StartNodes(n int) error {
	for i := 0; i < n; i++ {
		if _, err := c.startNode(nil); err != nil {
			c.Stop()
			return err
		}
	}
	c.refresh()
	return nil
}

// StartNodesWithIDs starts one node per identifier.
func (c *Cluster) StartNodesWithIDs(ids []ring.Identifier) error {
	for _, id := range ids {
		id := id
		if _, err := c.startNode(&id); err != nil {
			c.Stop()
			return err
		}
	}
	c.refresh()
	return nil
}

func (c *Cluster) startNode(id *ring.Identifier) (*Member, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	port := 0
	if c.opts.BasePort != 0 {
		port = c.opts.BasePort + len(c.members)
	}
	listen := net.JoinHostPort(c.opts.Host, strconv.Itoa(port))

	n := node.NewNode(listen)
	addr, err := n.Listen()
	if err != nil {
		return nil, fmt.Errorf("failed to start node %d: %w", len(c.members), err)
	}

	var nodeID ring.Identifier
	if id != nil {
		if err := c.opts.Space.Check(*id); err != nil {
			n.Stop()
			return nil, err
		}
		nodeID = *id
	} else {
		nodeID, err = c.opts.Space.IdentifyAddress(addr)
		if err != nil {
			n.Stop()
			return nil, err
		}
	}
	if c.hasID(nodeID) {
		n.Stop()
		return nil, fmt.Errorf("identifier %d already in use", nodeID)
	}

	self := ring.Node{ID: nodeID, Addr: addr}
	srv := node.NewServer(self, c.opts.Space, c.ring, c.opts.Strategy, c.opts.Metrics, c.opts.Logger)
	c.ring.AddNode(self)

	m := &Member{ID: nodeID, Addr: addr, Node: n, Server: srv}
	c.members = append(c.members, m)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := n.Serve(srv); err != nil {
			c.opts.Logger.Printf("[it] node %d stopped: %v", nodeID, err)
		}
	}()

	return m, nil
}

func (c *Cluster) hasID(id ring.Identifier) bool {
	for _, m := range c.members {
		if m.ID == id {
			return true
		}
	}
	return false
}

// refresh republishes every member's successor after membership changes.
func (c *Cluster) refresh() {
	for _, m := range c.Members() {
		m.Server.RefreshSuccessor()
	}
}

// Members returns the members in identifier order.
func (c *Cluster) Members() []*Member {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Member, len(c.members))
	copy(out, c.members)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Entry returns the address of the first node started.
func (c *Cluster) Entry() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.members) == 0 {
		return ""
	}
	return c.members[0].Addr
}

// Member returns the member with the given identifier, or nil.
func (c *Cluster) Member(id ring.Identifier) *Member {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.members {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Owner returns the member responsible for key.
func (c *Cluster) Owner(key []byte) (*Member, error) {
	id, err := c.opts.Space.Identify(key)
	if err != nil {
		return nil, err
	}
	n, ok := c.ring.ResponsibleNode(id)
	if !ok {
		return nil, fmt.Errorf("cluster is empty")
	}
	return c.Member(n.ID), nil
}

// KillNode stops a node's server but leaves it in the membership view,
// so peers keep routing to an unreachable endpoint.
func (c *Cluster) KillNode(id ring.Identifier) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.members {
		if m.ID == id {
			if !m.killed {
				m.Node.Stop()
				m.killed = true
			}
			return nil
		}
	}
	return fmt.Errorf("node %d not found", id)
}

// Stop stops all nodes in the cluster.
func (c *Cluster) Stop() {
	c.mu.Lock()
	members := c.members
	c.members = nil
	c.mu.Unlock()

	for _, m := range members {
		if !m.killed {
			m.Node.Stop()
		}
	}
	c.wg.Wait()
}
