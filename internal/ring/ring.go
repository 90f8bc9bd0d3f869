package ring

import (
	"sort"
	"sync"
)

// Node is a ring member. Identity is the endpoint; ID is advisory.
type Node struct {
	ID   Identifier
	Addr string
}

// Ring is a sorted membership view answering successor queries.
type Ring struct {
	mu    sync.RWMutex
	nodes []Node // sorted by ID, unique IDs
}

// NewRing creates an empty ring.
func NewRing() *Ring {
	return &Ring{
		nodes: make([]Node, 0),
	}
}

// SetNodes rebuilds the ring with the given nodes.
// A later node replaces an earlier one with the same identifier.
func (r *Ring) SetNodes(nodes []Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byID := make(map[Identifier]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	r.nodes = make([]Node, 0, len(byID))
	for _, n := range byID {
		r.nodes = append(r.nodes, n)
	}

	sort.Slice(r.nodes, func(i, j int) bool {
		return r.nodes[i].ID < r.nodes[j].ID
	})
}

// AddNode adds a node, replacing any member with the same identifier.
func (r *Ring) AddNode(node Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.search(node.ID)
	if idx < len(r.nodes) && r.nodes[idx].ID == node.ID {
		r.nodes[idx] = node
		return
	}
	r.nodes = append(r.nodes, Node{})
	copy(r.nodes[idx+1:], r.nodes[idx:])
	r.nodes[idx] = node
}

// RemoveNode removes the member with the given identifier.
func (r *Ring) RemoveNode(id Identifier) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.search(id)
	if idx >= len(r.nodes) || r.nodes[idx].ID != id {
		return
	}
	r.nodes = append(r.nodes[:idx], r.nodes[idx+1:]...)
}

// ResponsibleNode returns the successor of id: the first member whose
// identifier is >= id, wrapping past the largest identifier.
// Returns (Node{}, false) if the ring is empty.
func (r *Ring) ResponsibleNode(id Identifier) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.nodes) == 0 {
		return Node{}, false
	}

	idx := r.search(id)
	if idx >= len(r.nodes) {
		idx = 0
	}
	return r.nodes[idx], true
}

// Successor returns the member immediately after id, strictly greater,
// wrapping past the largest identifier.
func (r *Ring) Successor(id Identifier) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.nodes) == 0 {
		return Node{}, false
	}

	idx := sort.Search(len(r.nodes), func(i int) bool {
		return r.nodes[i].ID > id
	})
	if idx >= len(r.nodes) {
		idx = 0
	}
	return r.nodes[idx], true
}

// GetNodes returns all members in identifier order.
func (r *Ring) GetNodes() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]Node, len(r.nodes))
	copy(nodes, r.nodes)
	return nodes
}

// Len returns the number of members.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// search returns the index of the first member with ID >= id.
func (r *Ring) search(id Identifier) int {
	return sort.Search(len(r.nodes), func(i int) bool {
		return r.nodes[i].ID >= id
	})
}
