package it

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chordkit/internal/node"
	"chordkit/internal/ring"
	"chordkit/internal/router"
	"chordkit/internal/walker"
)

func TestSmoke_SetGetWalk(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cluster, err := NewCluster(Options{Strategy: node.ForwardSuccessor})
	require.NoError(t, err)
	defer cluster.Stop()

	require.NoError(t, cluster.StartNodes(6), "Failed to start cluster")
	require.Len(t, cluster.Members(), 6)

	pool := node.NewClientManager()
	defer pool.Close()
	client := node.NewClient(pool, 2*time.Second, nil)
	r := router.New(client, cluster.Space(), router.Options{})

	// Set
	set, err := r.Set(ctx, cluster.Entry(), []byte("test-key"), []byte("test-value"))
	require.NoError(t, err)
	owner, err := cluster.Owner([]byte("test-key"))
	require.NoError(t, err)
	assert.Equal(t, owner.Addr, set.Addr)

	// The value lives on the owner only
	for _, m := range cluster.Members() {
		_, ok := m.Server.Keys().Get("test-key")
		assert.Equal(t, m.ID == owner.ID, ok, "node %d", m.ID)
	}

	// Get
	got, err := r.Get(ctx, cluster.Entry(), []byte("test-key"))
	require.NoError(t, err)
	assert.Equal(t, "test-value", string(got.Value))

	// Walk
	snap, err := walker.New(client, cluster.Space(), walker.Options{}).Discover(ctx, cluster.Entry())
	require.NoError(t, err)
	assert.Equal(t, 6, snap.Count())
	assert.LessOrEqual(t, got.Hops, snap.Count())
}

func TestSmoke_KilledNode(t *testing.T) {
	space, err := ring.NewSpaceWithModulus(1 << 16)
	require.NoError(t, err)
	cluster, err := NewCluster(Options{Space: space})
	require.NoError(t, err)
	defer cluster.Stop()
	require.NoError(t, cluster.StartNodesWithIDs([]ring.Identifier{1000, 20000, 40000}))

	client := node.NewClient(node.FreshDialer{}, time.Second, nil)
	r := router.New(client, space, router.Options{})
	ctx := context.Background()

	// Find a key owned away from the entry node.
	entry := cluster.Member(1000)
	var key []byte
	for i := 0; key == nil; i++ {
		k := []byte(fmt.Sprintf("key-%d", i))
		if o, _ := cluster.Owner(k); o.ID != entry.ID {
			key = k
		}
	}
	owner, err := cluster.Owner(key)
	require.NoError(t, err)

	_, err = r.Set(ctx, entry.Addr, key, []byte("v"))
	require.NoError(t, err)

	require.NoError(t, cluster.KillNode(owner.ID))
	require.NoError(t, cluster.KillNode(owner.ID), "killing twice is a no-op")

	_, err = r.Get(ctx, entry.Addr, key)
	var te *node.TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, owner.Addr, te.Addr)
	assert.Equal(t, node.KindUnreachable, te.Kind)

	assert.Error(t, cluster.KillNode(12345))
}

func TestCluster_DuplicateIdentifier(t *testing.T) {
	cluster, err := NewCluster(Options{})
	require.NoError(t, err)
	defer cluster.Stop()

	err = cluster.StartNodesWithIDs([]ring.Identifier{7, 7})
	assert.Error(t, err)
}

func TestCluster_IdentifierOutsideSpace(t *testing.T) {
	space, err := ring.NewSpaceWithModulus(100)
	require.NoError(t, err)
	cluster, err := NewCluster(Options{Space: space})
	require.NoError(t, err)
	defer cluster.Stop()

	err = cluster.StartNodesWithIDs([]ring.Identifier{100})
	var re *ring.IdentifierRangeError
	assert.True(t, errors.As(err, &re), "got %v", err)
}
