package node

import (
	"fmt"
	"log"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"chordkit/internal/rpcpb"
)

// Node hosts a simulated ring node on a gRPC listener.
type Node struct {
	listenAddr string

	mu         sync.Mutex
	lis        net.Listener
	grpcServer *grpc.Server
	logger     *log.Logger
}

// NewNode creates a node that will listen on listenAddr. A zero port
// picks a free one.
func NewNode(listenAddr string) *Node {
	return &Node{listenAddr: listenAddr}
}

// Listen binds the listener and returns the bound "host:port".
func (n *Node) Listen() (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.lis != nil {
		return n.lis.Addr().String(), nil
	}
	lis, err := net.Listen("tcp", n.listenAddr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", n.listenAddr, err)
	}
	n.lis = lis
	return lis.Addr().String(), nil
}

// Addr returns the bound address, or the configured one before Listen.
func (n *Node) Addr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lis != nil {
		return n.lis.Addr().String()
	}
	return n.listenAddr
}

// Serve registers srv's services and serves until Stop. It listens
// first if Listen was not called.
func (n *Node) Serve(srv *Server) error {
	if _, err := n.Listen(); err != nil {
		return err
	}

	n.mu.Lock()
	if n.grpcServer != nil {
		n.mu.Unlock()
		return fmt.Errorf("node %s already serving", n.listenAddr)
	}
	n.grpcServer = grpc.NewServer()
	rpcpb.RegisterChordServer(n.grpcServer, chordService{s: srv})
	rpcpb.RegisterDHTServer(n.grpcServer, dhtService{s: srv})

	// Enable gRPC reflection for grpcurl
	reflection.Register(n.grpcServer)

	n.logger = srv.logger
	gs, lis := n.grpcServer, n.lis
	n.mu.Unlock()

	srv.logger.Printf("[%d] Starting node on %s", srv.Self().ID, lis.Addr())

	if err := gs.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop gracefully stops the node.
func (n *Node) Stop() {
	n.mu.Lock()
	gs, lis, logger := n.grpcServer, n.lis, n.logger
	n.mu.Unlock()

	if gs != nil {
		logger.Printf("[node] Stopping node on %s", lis.Addr())
		gs.GracefulStop()
		return
	}
	if lis != nil {
		lis.Close()
	}
}
