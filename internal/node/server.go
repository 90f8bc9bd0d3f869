package node

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"chordkit/internal/metrics"
	"chordkit/internal/ring"
	"chordkit/internal/rpcpb"
	"chordkit/internal/storage"
)

// ForwardStrategy decides where a node redirects requests it does not own.
type ForwardStrategy int

const (
	// ForwardOwner redirects straight to the responsible node.
	ForwardOwner ForwardStrategy = iota
	// ForwardSuccessor redirects to the node's own successor, so a request
	// travels the ring one member per hop.
	ForwardSuccessor
)

// Server simulates one ring node serving chord.Chord and dht.DHT over a
// shared membership view.
type Server struct {
	self     ring.Node
	space    ring.Space
	ring     *ring.Ring
	strategy ForwardStrategy
	keys     storage.Store // dht keys
	ids      storage.Store // chord identifiers
	metrics  *metrics.NodeMetrics
	logger   *log.Logger

	mu         sync.RWMutex
	forwardAll string
	delay      time.Duration
}

// NewServer creates a simulated node. m and logger may be nil.
func NewServer(self ring.Node, space ring.Space, rng *ring.Ring, strategy ForwardStrategy, m *metrics.NodeMetrics, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	nodeID := strconv.FormatUint(uint64(self.ID), 10)
	s := &Server{
		self:     self,
		space:    space,
		ring:     rng,
		strategy: strategy,
		keys:     storage.NewInMemoryStore(nodeID),
		ids:      storage.NewInMemoryStore(nodeID),
		metrics:  m,
		logger:   logger,
	}
	m.SetKeys(uint64(self.ID), 0)
	return s
}

// Self returns the node this server simulates.
func (s *Server) Self() ring.Node { return s.self }

// Keys returns the node's dht keystore.
func (s *Server) Keys() storage.Store { return s.keys }

// ForwardAllTo makes the node redirect every dht request to addr,
// whoever owns the key. An empty addr restores normal routing.
func (s *Server) ForwardAllTo(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forwardAll = addr
}

// SetDelay makes every RPC wait d before answering.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// RefreshSuccessor publishes the node's current successor as a metric.
func (s *Server) RefreshSuccessor() {
	if succ, ok := s.ring.Successor(s.self.ID); ok {
		s.metrics.SetSuccessor(uint64(s.self.ID), uint64(succ.ID))
	}
}

func (s *Server) wait(ctx context.Context) error {
	s.mu.RLock()
	d := s.delay
	s.mu.RUnlock()
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return status.FromContextError(ctx.Err()).Err()
	}
}

// route returns where a request for id should go next, or "" if this
// node owns id. hops estimates the remaining path length.
func (s *Server) route(id ring.Identifier) (next string, hops int, err error) {
	s.mu.RLock()
	forwardAll := s.forwardAll
	s.mu.RUnlock()
	if forwardAll != "" {
		return forwardAll, 1, nil
	}

	owner, ok := s.ring.ResponsibleNode(id)
	if !ok {
		return "", 0, status.Error(codes.Unavailable, "ring has no members")
	}
	if owner.ID == s.self.ID {
		return "", 0, nil
	}

	if s.strategy == ForwardOwner {
		return owner.Addr, 1, nil
	}

	succ, _ := s.ring.Successor(s.self.ID)
	return succ.Addr, s.distance(owner.ID), nil
}

// distance counts members from this node to owner along the ring.
func (s *Server) distance(owner ring.Identifier) int {
	hops := 0
	cur := s.self.ID
	for i := 0; i < s.ring.Len(); i++ {
		next, ok := s.ring.Successor(cur)
		if !ok {
			break
		}
		hops++
		if next.ID == owner {
			break
		}
		cur = next.ID
	}
	return hops
}

func (s *Server) findSuccessor(ctx context.Context, in rpcpb.FindSuccessorRequest) (rpcpb.Node, error) {
	s.metrics.FindSuccessorCalled()
	if err := s.wait(ctx); err != nil {
		return rpcpb.Node{}, err
	}

	id := ring.Identifier(uint64(in.ID))
	succ, ok := s.ring.ResponsibleNode(id)
	if !ok {
		return rpcpb.Node{}, status.Error(codes.Unavailable, "ring has no members")
	}
	s.logger.Printf("[%d] FindSuccessor(%d) = %d", s.self.ID, id, succ.ID)

	return rpcpb.Node{Address: succ.Addr, Identifier: int64(succ.ID)}, nil
}

func (s *Server) setKey(ctx context.Context, in rpcpb.SetKeyRequest) (rpcpb.SetKeyResponse, error) {
	s.metrics.SetKeyCalled()
	if err := s.wait(ctx); err != nil {
		return rpcpb.SetKeyResponse{}, err
	}

	s.logger.Printf("[%d] SetKey request: key=%q transfer=%v", s.self.ID, in.Key, in.Transfer)

	if !in.Transfer {
		id, err := s.space.Identify(in.Key)
		if err != nil {
			return rpcpb.SetKeyResponse{}, status.Error(codes.Internal, err.Error())
		}
		next, _, err := s.route(id)
		if err != nil {
			msg := fmt.Sprintf("key setting failed, could not verify the node's ownership of the key: %v", err)
			return rpcpb.SetKeyResponse{}, status.Error(codes.Internal, msg)
		}
		if next != "" {
			return rpcpb.SetKeyResponse{ForwardNode: &rpcpb.ForwardNode{Address: next}}, nil
		}
	}

	s.keys.Put(string(in.Key), in.Value)
	s.metrics.SetKeys(uint64(s.self.ID), s.keys.Len())
	return rpcpb.SetKeyResponse{}, nil
}

func (s *Server) getKey(ctx context.Context, in rpcpb.GetKeyRequest) (rpcpb.GetKeyResponse, error) {
	s.metrics.GetKeyCalled()
	if err := s.wait(ctx); err != nil {
		return rpcpb.GetKeyResponse{}, err
	}

	s.logger.Printf("[%d] GetKey request: key=%q", s.self.ID, in.Key)

	if v, ok := s.keys.Get(string(in.Key)); ok {
		return rpcpb.GetKeyResponse{Value: v}, nil
	}

	id, err := s.space.Identify(in.Key)
	if err != nil {
		return rpcpb.GetKeyResponse{}, status.Error(codes.Internal, err.Error())
	}
	next, hops, err := s.route(id)
	if err != nil {
		msg := fmt.Sprintf("our node does not have this key, and we could not find a node to forward to: %v", err)
		return rpcpb.GetKeyResponse{}, status.Error(codes.Internal, msg)
	}
	if next == "" {
		return rpcpb.GetKeyResponse{}, status.Error(codes.NotFound, "node does not have this key")
	}

	return rpcpb.GetKeyResponse{
		ForwardNode: &rpcpb.ForwardNode{Address: next},
		PathLength:  int32(hops),
	}, nil
}

func (s *Server) storeID(ctx context.Context, in rpcpb.ChordSetKeyRequest) error {
	if err := s.wait(ctx); err != nil {
		return err
	}

	key := ring.Identifier(uint64(in.Key))

	// The identifier must be the value's own hash.
	actual, err := s.space.Identify(in.Value)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	if actual != key {
		msg := fmt.Sprintf("integrity check failed, provided key: %d, actual key: %d", key, actual)
		return status.Error(codes.InvalidArgument, msg)
	}

	owner, ok := s.ring.ResponsibleNode(key)
	if !ok {
		return status.Error(codes.Internal, "key setting failed, ring has no members")
	}
	if owner.ID != s.self.ID {
		msg := fmt.Sprintf("rejected key, node %d is the successor of the provided key", owner.ID)
		return status.Error(codes.Canceled, msg)
	}

	s.ids.Put(strconv.FormatUint(uint64(key), 10), in.Value)
	return nil
}

func (s *Server) lookup(ctx context.Context, in rpcpb.LookupRequest) (rpcpb.LookupResponse, error) {
	if err := s.wait(ctx); err != nil {
		return rpcpb.LookupResponse{}, err
	}

	v, ok := s.ids.Get(strconv.FormatUint(uint64(in.Key), 10))
	if !ok {
		return rpcpb.LookupResponse{}, status.Error(codes.NotFound, "key not found in this node")
	}
	return rpcpb.LookupResponse{Value: v}, nil
}

// chordService and dhtService expose Server under the two service APIs,
// which both name a SetKey method.
type chordService struct{ s *Server }

func (c chordService) FindSuccessor(ctx context.Context, in rpcpb.FindSuccessorRequest) (rpcpb.Node, error) {
	return c.s.findSuccessor(ctx, in)
}

func (c chordService) SetKey(ctx context.Context, in rpcpb.ChordSetKeyRequest) error {
	return c.s.storeID(ctx, in)
}

func (c chordService) Lookup(ctx context.Context, in rpcpb.LookupRequest) (rpcpb.LookupResponse, error) {
	return c.s.lookup(ctx, in)
}

type dhtService struct{ s *Server }

func (d dhtService) SetKey(ctx context.Context, in rpcpb.SetKeyRequest) (rpcpb.SetKeyResponse, error) {
	return d.s.setKey(ctx, in)
}

func (d dhtService) GetKey(ctx context.Context, in rpcpb.GetKeyRequest) (rpcpb.GetKeyResponse, error) {
	return d.s.getKey(ctx, in)
}
