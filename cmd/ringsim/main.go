// Command ringsim runs a static simulated ring on loopback for trying
// chordctl without a deployment.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chordkit/internal/config"
	"chordkit/internal/it"
	"chordkit/internal/metrics"
	"chordkit/internal/node"
	"chordkit/internal/ring"
)

type simOptions struct {
	nodes       int
	ids         []ring.Identifier
	host        string
	basePort    int
	bits        int
	modulus     uint64
	strategy    node.ForwardStrategy
	metricsAddr string
	verbose     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}

	s, err := startSim(opts, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	<-ctx.Done()
	s.close()
	return 0
}

func parseFlags(args []string, stderr io.Writer) (simOptions, error) {
	opts := simOptions{}
	fs := flag.NewFlagSet("ringsim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&opts.nodes, "nodes", 8, "number of nodes, identifiers derived from addresses")
	ids := fs.String("ids", "", "explicit comma-separated node identifiers, overrides -nodes")
	fs.StringVar(&opts.host, "host", "127.0.0.1", "interface nodes listen on")
	fs.IntVar(&opts.basePort, "base-port", 0, "port of the first node, others follow; 0 picks free ports")
	fs.IntVar(&opts.bits, "bits", ring.DefaultBits, "identifier width m; the ring bound is (1<<(m-1))-1")
	fs.Uint64Var(&opts.modulus, "modulus", 0, "explicit identifier modulus, overrides -bits")
	strategy := fs.String("strategy", "owner", "forwarding: owner (one hop) or successor (walk the ring)")
	fs.StringVar(&opts.metricsAddr, "metrics", "", "serve node metrics on this address")
	fs.BoolVar(&opts.verbose, "v", false, "log every RPC")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	fail := func(err error) (simOptions, error) {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return opts, err
	}

	var err error
	if opts.ids, err = config.ParseIdentifiers(*ids); err != nil {
		return fail(err)
	}
	switch *strategy {
	case "owner":
		opts.strategy = node.ForwardOwner
	case "successor":
		opts.strategy = node.ForwardSuccessor
	default:
		return fail(fmt.Errorf("unknown strategy %q", *strategy))
	}
	if len(opts.ids) == 0 && opts.nodes <= 0 {
		return fail(fmt.Errorf("need at least one node"))
	}
	return opts, nil
}

type sim struct {
	cluster *it.Cluster
	metrics *http.Server
}

func startSim(opts simOptions, stdout, stderr io.Writer) (*sim, error) {
	var (
		space ring.Space
		err   error
	)
	if opts.modulus != 0 {
		space, err = ring.NewSpaceWithModulus(opts.modulus)
	} else {
		space, err = ring.NewSpace(opts.bits)
	}
	if err != nil {
		return nil, err
	}

	logger := log.New(io.Discard, "", 0)
	if opts.verbose {
		logger = log.New(stderr, "", log.LstdFlags|log.Lmicroseconds)
	}

	reg := prometheus.NewRegistry()
	c, err := it.NewCluster(it.Options{
		Space:    space,
		Strategy: opts.strategy,
		Host:     opts.host,
		BasePort: opts.basePort,
		Metrics:  metrics.NewNodeMetrics(reg),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	if len(opts.ids) > 0 {
		err = c.StartNodesWithIDs(opts.ids)
	} else {
		err = c.StartNodes(opts.nodes)
	}
	if err != nil {
		return nil, err
	}

	s := &sim{cluster: c}
	if opts.metricsAddr != "" {
		lis, err := net.Listen("tcp", opts.metricsAddr)
		if err != nil {
			c.Stop()
			return nil, fmt.Errorf("metrics listener: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		s.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := s.metrics.Serve(lis); err != nil && err != http.ErrServerClosed {
				logger.Printf("[ringsim] metrics server: %v", err)
			}
		}()
		fmt.Fprintf(stdout, "metrics on http://%s/metrics\n", lis.Addr())
	}

	for _, m := range c.Members() {
		fmt.Fprintf(stdout, "%d %s\n", m.ID, m.Addr)
	}
	fmt.Fprintf(stdout, "ring of %d nodes up, entry %s\n", len(c.Members()), c.Entry())
	return s, nil
}

func (s *sim) close() {
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.metrics.Shutdown(ctx)
	}
	s.cluster.Stop()
}
