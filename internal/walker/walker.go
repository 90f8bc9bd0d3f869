// Package walker enumerates the members of a ring by repeated successor
// queries against one entry node.
package walker

import (
	"context"
	"fmt"
	"io"
	"log"

	"chordkit/internal/config"
	"chordkit/internal/node"
	"chordkit/internal/ring"
)

// Successors answers FindSuccessor queries. *node.Client implements it.
type Successors interface {
	FindSuccessor(ctx context.Context, addr string, id ring.Identifier) (ring.Node, error)
}

// Options configures a Walker.
type Options struct {
	// MaxWalk is the most distinct nodes a walk may visit before the
	// ring is declared inconsistent.
	MaxWalk int
	// Port is attached to an entry address that carries none.
	Port   int
	Logger *log.Logger
}

// Walker discovers ring membership.
type Walker struct {
	succ    Successors
	space   ring.Space
	maxWalk int
	port    int
	logger  *log.Logger
}

// New creates a walker.
func New(succ Successors, space ring.Space, opts Options) *Walker {
	if opts.MaxWalk <= 0 {
		opts.MaxWalk = config.DefaultMaxWalk
	}
	if opts.Port <= 0 {
		opts.Port = config.DefaultPort
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Walker{
		succ:    succ,
		space:   space,
		maxWalk: opts.MaxWalk,
		port:    opts.Port,
		logger:  opts.Logger,
	}
}

// Snapshot is the ordered cycle of nodes found by one walk, starting at
// the successor of identifier 0.
type Snapshot struct {
	Nodes []ring.Node
}

// IDs returns the node identifiers in visitation order.
func (s Snapshot) IDs() []ring.Identifier {
	ids := make([]ring.Identifier, len(s.Nodes))
	for i, n := range s.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// Count returns the number of distinct nodes.
func (s Snapshot) Count() int { return len(s.Nodes) }

// Reasons a walk is declared inconsistent.
const (
	ReasonLimit  = "walk limit exceeded"
	ReasonRepeat = "non-first identifier repeated"
)

// RingInconsistentError aborts a walk that did not close cleanly.
type RingInconsistentError struct {
	Entry  string
	Reason string
	Steps  int
	ID     ring.Identifier // identifier returned by the offending step
	Seen   []ring.Identifier
}

func (e *RingInconsistentError) Error() string {
	return fmt.Sprintf("ring walk from %s inconsistent after %d steps: %s (identifier %d)",
		e.Entry, e.Steps, e.Reason, e.ID)
}

// Discover walks the ring from entry. It queries FindSuccessor(0), then
// FindSuccessor(id+1) for each result, until the first identifier comes
// back.
func (w *Walker) Discover(ctx context.Context, entry string) (Snapshot, error) {
	addr, err := config.ResolveEndpoint(entry, w.port)
	if err != nil {
		return Snapshot{}, fmt.Errorf("walk: entry address: %w", err)
	}

	first, err := w.probe(ctx, addr, 0, 0)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Nodes: []ring.Node{first}}
	seen := map[ring.Identifier]bool{first.ID: true}
	cur := first.ID

	for step := 1; ; step++ {
		next, err := w.probe(ctx, addr, w.space.Next(cur), step)
		if err != nil {
			return Snapshot{}, err
		}
		if next.ID == first.ID {
			w.logger.Printf("[walker] ring closed after %d nodes", snap.Count())
			return snap, nil
		}
		if seen[next.ID] {
			return Snapshot{}, &RingInconsistentError{Entry: entry, Reason: ReasonRepeat, Steps: step, ID: next.ID, Seen: snap.IDs()}
		}
		if snap.Count() == w.maxWalk {
			return Snapshot{}, &RingInconsistentError{Entry: entry, Reason: ReasonLimit, Steps: step, ID: next.ID, Seen: snap.IDs()}
		}

		w.logger.Printf("[walker] %d -> %d (%s)", cur, next.ID, next.Addr)
		seen[next.ID] = true
		snap.Nodes = append(snap.Nodes, next)
		cur = next.ID
	}
}

func (w *Walker) probe(ctx context.Context, addr string, id ring.Identifier, step int) (ring.Node, error) {
	n, err := w.succ.FindSuccessor(ctx, addr, id)
	if err != nil {
		return ring.Node{}, node.AtHop(err, step)
	}
	if err := w.space.Check(n.ID); err != nil {
		return ring.Node{}, fmt.Errorf("successor of %d: %w", id, err)
	}
	return n, nil
}
