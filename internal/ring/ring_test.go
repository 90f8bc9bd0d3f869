package ring

import (
	"testing"
)

func testNodes() []Node {
	return []Node{
		{ID: 10, Addr: "127.0.0.1:50051"},
		{ID: 20, Addr: "127.0.0.1:50052"},
		{ID: 30, Addr: "127.0.0.1:50053"},
		{ID: 40, Addr: "127.0.0.1:50054"},
	}
}

func TestRing_ResponsibleNode(t *testing.T) {
	ring := NewRing()
	ring.SetNodes(testNodes())

	tests := []struct {
		id   Identifier
		want Identifier
	}{
		{id: 0, want: 10},
		{id: 10, want: 10},
		{id: 11, want: 20},
		{id: 35, want: 40},
		{id: 40, want: 40},
		{id: 41, want: 10}, // wraps
	}

	for _, tt := range tests {
		node, found := ring.ResponsibleNode(tt.id)
		if !found {
			t.Fatalf("Expected a responsible node for %d", tt.id)
		}
		if node.ID != tt.want {
			t.Errorf("ResponsibleNode(%d) = %d, want %d", tt.id, node.ID, tt.want)
		}
	}
}

func TestRing_Successor(t *testing.T) {
	ring := NewRing()
	ring.SetNodes(testNodes())

	if n, _ := ring.Successor(10); n.ID != 20 {
		t.Errorf("Successor(10) = %d, want 20", n.ID)
	}
	if n, _ := ring.Successor(40); n.ID != 10 {
		t.Errorf("Successor(40) = %d, want 10", n.ID)
	}
}

func TestRing_SetNodesSortsAndDedupes(t *testing.T) {
	ring := NewRing()
	ring.SetNodes([]Node{
		{ID: 30, Addr: "c"},
		{ID: 10, Addr: "a"},
		{ID: 30, Addr: "c2"},
	})

	nodes := ring.GetNodes()
	if len(nodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(nodes))
	}
	if nodes[0].ID != 10 || nodes[1].ID != 30 {
		t.Errorf("Nodes not sorted: %v", nodes)
	}
	if nodes[1].Addr != "c2" {
		t.Errorf("Expected later duplicate to win, got %s", nodes[1].Addr)
	}
}

func TestRing_AddRemoveNode(t *testing.T) {
	ring := NewRing()
	ring.SetNodes(testNodes())

	ring.AddNode(Node{ID: 25, Addr: "127.0.0.1:50055"})
	if n, _ := ring.ResponsibleNode(21); n.ID != 25 {
		t.Errorf("Expected 25 to own 21 after add, got %d", n.ID)
	}

	ring.AddNode(Node{ID: 25, Addr: "moved"})
	if ring.Len() != 5 {
		t.Errorf("Re-adding an identifier should replace, got %d members", ring.Len())
	}

	ring.RemoveNode(25)
	ring.RemoveNode(99) // absent, no-op
	if n, _ := ring.ResponsibleNode(21); n.ID != 30 {
		t.Errorf("Expected 30 to own 21 after removal, got %d", n.ID)
	}
	if ring.Len() != 4 {
		t.Errorf("Expected 4 members, got %d", ring.Len())
	}
}

func TestRing_EmptyRing(t *testing.T) {
	ring := NewRing()
	if _, found := ring.ResponsibleNode(1); found {
		t.Error("Expected no node found for empty ring")
	}
	if _, found := ring.Successor(1); found {
		t.Error("Expected no successor for empty ring")
	}
}
