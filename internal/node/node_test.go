package node

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chordkit/internal/ring"
	"chordkit/internal/rpcpb"
)

type testRing struct {
	space   ring.Space
	ring    *ring.Ring
	servers []*Server
}

func startTestRing(t *testing.T, strategy ForwardStrategy, ids ...ring.Identifier) *testRing {
	t.Helper()

	space, err := ring.NewSpaceWithModulus(1 << 16)
	require.NoError(t, err)

	tr := &testRing{space: space, ring: ring.NewRing()}
	for _, id := range ids {
		n := NewNode("127.0.0.1:0")
		addr, err := n.Listen()
		require.NoError(t, err)

		srv := NewServer(ring.Node{ID: id, Addr: addr}, space, tr.ring, strategy, nil, nil)
		tr.ring.AddNode(srv.Self())
		tr.servers = append(tr.servers, srv)

		go n.Serve(srv)
		t.Cleanup(n.Stop)
	}
	return tr
}

// split returns the owner of key and some other server.
func (tr *testRing) split(t *testing.T, key []byte) (owner, other *Server) {
	t.Helper()
	id, err := tr.space.Identify(key)
	require.NoError(t, err)
	o, ok := tr.ring.ResponsibleNode(id)
	require.True(t, ok)
	for _, s := range tr.servers {
		if s.Self().ID == o.ID {
			owner = s
		} else if other == nil {
			other = s
		}
	}
	require.NotNil(t, owner)
	require.NotNil(t, other)
	return owner, other
}

func closedAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestClient_FindSuccessor(t *testing.T) {
	tr := startTestRing(t, ForwardOwner, 1000, 30000, 60000)
	c := NewClient(FreshDialer{}, time.Second, nil)
	ctx := context.Background()

	entry := tr.servers[0].Self().Addr
	tests := []struct {
		id   ring.Identifier
		want ring.Identifier
	}{
		{id: 0, want: 1000},
		{id: 1001, want: 30000},
		{id: 60000, want: 60000},
		{id: 60001, want: 1000},
	}
	for _, tt := range tests {
		got, err := c.FindSuccessor(ctx, entry, tt.id)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.ID, "FindSuccessor(%d)", tt.id)
		assert.NotEmpty(t, got.Addr)
	}
}

func TestClient_SetGetKey(t *testing.T) {
	tr := startTestRing(t, ForwardOwner, 1000, 30000, 60000)
	c := NewClient(FreshDialer{}, time.Second, nil)
	ctx := context.Background()
	key := []byte("foo")

	owner, other := tr.split(t, key)

	fwd, err := c.SetKey(ctx, other.Self().Addr, key, []byte("bar"))
	require.NoError(t, err)
	require.NotNil(t, fwd, "non-owner must redirect")
	assert.Equal(t, owner.Self().Addr, fwd.Addr)
	assert.Equal(t, 0, other.Keys().Len())

	fwd, err = c.SetKey(ctx, owner.Self().Addr, key, []byte("bar"))
	require.NoError(t, err)
	assert.Nil(t, fwd)

	reply, err := c.GetKey(ctx, owner.Self().Addr, key)
	require.NoError(t, err)
	assert.Nil(t, reply.Forward)
	assert.Equal(t, "bar", string(reply.Value))

	reply, err = c.GetKey(ctx, other.Self().Addr, key)
	require.NoError(t, err)
	require.NotNil(t, reply.Forward)
	assert.Equal(t, owner.Self().Addr, reply.Forward.Addr)
	assert.Equal(t, 1, reply.PathLength)
}

func TestClient_GetKeyNotFound(t *testing.T) {
	tr := startTestRing(t, ForwardOwner, 1000, 30000)
	c := NewClient(FreshDialer{}, time.Second, nil)
	key := []byte("missing")

	owner, _ := tr.split(t, key)

	_, err := c.GetKey(context.Background(), owner.Self().Addr, key)
	var nf *KeyNotFoundError
	require.True(t, errors.As(err, &nf), "got %v", err)
	assert.Equal(t, "missing", nf.Key)
	assert.Equal(t, owner.Self().Addr, nf.Addr)
}

func TestClient_Unreachable(t *testing.T) {
	c := NewClient(FreshDialer{}, time.Second, nil)
	addr := closedAddr(t)

	_, err := c.FindSuccessor(context.Background(), addr, 0)

	var te *TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, KindUnreachable, te.Kind)
	assert.Equal(t, addr, te.Addr)
	assert.False(t, te.Timeout())
}

func TestClient_Timeout(t *testing.T) {
	tr := startTestRing(t, ForwardOwner, 1000)
	tr.servers[0].SetDelay(2 * time.Second)

	c := NewClient(FreshDialer{}, 100*time.Millisecond, nil)
	start := time.Now()
	_, err := c.FindSuccessor(context.Background(), tr.servers[0].Self().Addr, 0)

	var te *TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, KindTimeout, te.Kind)
	assert.True(t, te.Timeout())
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_StoreAndLookupByIdentifier(t *testing.T) {
	tr := startTestRing(t, ForwardOwner, 1000, 30000, 60000)
	c := NewClient(FreshDialer{}, time.Second, nil)
	ctx := context.Background()
	value := []byte("content addressed")

	owner, other := tr.split(t, value)
	id, _ := tr.space.Identify(value)

	require.NoError(t, c.StoreID(ctx, owner.Self().Addr, id, value))

	got, err := c.Lookup(ctx, owner.Self().Addr, id)
	require.NoError(t, err)
	assert.Equal(t, value, got)

	// Wrong owner is rejected.
	err = c.StoreID(ctx, other.Self().Addr, id, value)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, codes.Canceled, status.Code(te.Err))

	// Identifier that is not the value's hash fails the integrity check.
	err = c.StoreID(ctx, owner.Self().Addr, id+1, value)
	require.True(t, errors.As(err, &te))
	assert.Equal(t, KindRemote, te.Kind)
	assert.Equal(t, codes.InvalidArgument, status.Code(te.Err))

	_, err = c.Lookup(ctx, other.Self().Addr, id)
	var nf *KeyNotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestServer_ForwardAllTo(t *testing.T) {
	tr := startTestRing(t, ForwardOwner, 1000)
	srv := tr.servers[0]
	srv.ForwardAllTo(srv.Self().Addr)

	c := NewClient(FreshDialer{}, time.Second, nil)
	fwd, err := c.SetKey(context.Background(), srv.Self().Addr, []byte("k"), []byte("v"))
	require.NoError(t, err)
	require.NotNil(t, fwd)
	assert.Equal(t, srv.Self().Addr, fwd.Addr)

	srv.ForwardAllTo("")
	fwd, err = c.SetKey(context.Background(), srv.Self().Addr, []byte("k"), []byte("v"))
	require.NoError(t, err)
	assert.Nil(t, fwd, "single node owns every key")
}

func TestServer_ForwardSuccessorWalksTheRing(t *testing.T) {
	tr := startTestRing(t, ForwardSuccessor, 1000, 20000, 40000, 60000)

	// Pick a key owned by the node after next, seen from 1000.
	var key []byte
	for i := 0; i < 10000 && key == nil; i++ {
		k := []byte{byte(i), byte(i >> 8)}
		id, _ := tr.space.Identify(k)
		if owner, _ := tr.ring.ResponsibleNode(id); owner.ID == 40000 {
			key = k
		}
	}
	require.NotNil(t, key)

	c := NewClient(FreshDialer{}, time.Second, nil)
	entry := tr.servers[0].Self().Addr
	next := tr.servers[1].Self().Addr

	reply, err := c.GetKey(context.Background(), entry, key)
	require.NoError(t, err)
	require.NotNil(t, reply.Forward)
	assert.Equal(t, next, reply.Forward.Addr, "successor strategy forwards one member along")
	assert.Equal(t, 2, reply.PathLength)

	fwd, err := c.SetKey(context.Background(), entry, key, []byte("v"))
	require.NoError(t, err)
	require.NotNil(t, fwd)
	assert.Equal(t, next, fwd.Addr)
}

func TestClientManager_Pools(t *testing.T) {
	tr := startTestRing(t, ForwardOwner, 1000)
	addr := tr.servers[0].Self().Addr

	cm := NewClientManager()
	c := NewClient(cm, time.Second, nil)

	for i := 0; i < 3; i++ {
		_, err := c.FindSuccessor(context.Background(), addr, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, cm.Len())

	require.NoError(t, cm.Close())
	assert.Equal(t, 0, cm.Len())

	_, err := cm.Dial(addr)
	assert.ErrorIs(t, err, ErrClientManagerClosed)
}

func TestAtHop(t *testing.T) {
	orig := &TransportError{Addr: "a:1", Method: "GetKey", Kind: KindTimeout}
	err := AtHop(orig, 3)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 3, te.Hop)
	assert.Equal(t, 0, orig.Hop, "input error must not change")

	plain := errors.New("x")
	assert.Equal(t, plain, AtHop(plain, 2))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(status.Error(codes.NotFound, "whatever")))
	assert.True(t, isNotFound(status.Error(codes.Internal, "node does not have this key")))
	assert.False(t, isNotFound(status.Error(codes.Internal, "error setting key")))
	assert.False(t, isNotFound(errors.New("node does not have this key")))
	assert.True(t, isNotFound(status.Error(codes.Internal, "key not found in this node")))

	// A node that cannot pick a forward target has failed to route.
	routing := status.Error(codes.Internal,
		"Our node does not have this key, and we could not find a node to forward to: rpc error")
	assert.False(t, isNotFound(routing))
}

func TestClient_GetKeyRoutingFailureIsTransportError(t *testing.T) {
	space, err := ring.NewSpaceWithModulus(1 << 16)
	require.NoError(t, err)

	// The node is not in its own membership view, so it can neither
	// answer nor forward.
	n := NewNode("127.0.0.1:0")
	addr, err := n.Listen()
	require.NoError(t, err)
	srv := NewServer(ring.Node{ID: 10, Addr: addr}, space, ring.NewRing(), ForwardOwner, nil, nil)
	go n.Serve(srv)
	t.Cleanup(n.Stop)

	c := NewClient(FreshDialer{}, time.Second, nil)
	_, err = c.GetKey(context.Background(), addr, []byte("k"))

	var nf *KeyNotFoundError
	assert.False(t, errors.As(err, &nf), "routing failure must not look like a miss")
	var te *TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, KindRemote, te.Kind)
	assert.Equal(t, codes.Internal, status.Code(te.Err))
}

func TestForwardOf(t *testing.T) {
	fwd, err := forwardOf("a:1", "GetKey", nil)
	require.NoError(t, err)
	assert.Nil(t, fwd)

	fwd, err = forwardOf("a:1", "GetKey", &rpcpb.ForwardNode{Address: "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", fwd.Addr)

	_, err = forwardOf("a:1", "GetKey", &rpcpb.ForwardNode{})
	assert.ErrorIs(t, err, ErrMalformedResponse)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, KindRemote, te.Kind)
}
