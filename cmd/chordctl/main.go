// Command chordctl talks to a Chord ring: routed reads and writes,
// identifier-addressed storage, ring discovery, load experiments and
// metric exports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chordkit/internal/config"
	"chordkit/internal/experiment"
	"chordkit/internal/metrics"
	"chordkit/internal/node"
	"chordkit/internal/results"
	"chordkit/internal/ring"
	"chordkit/internal/router"
	"chordkit/internal/walker"
)

const usage = `usage: chordctl <mode> [flags] [args]

modes:
  get <entry> <key>               print the value; path length goes to stderr
  set <entry> <key> [value]       value defaults to stdin
  store <entry> [value]           store under the value's own identifier
  fetch <entry> <id>              read by identifier
  walk <entry>                    list ring members
  experiment <entry>              timed set/get load run
  nodes                           node identifiers from Prometheus
  keydist                         per-node key totals from Prometheus

flags may appear before or after the arguments; "--" ends flag parsing
run "chordctl <mode> -h" for flags`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// options are the per-invocation flags on top of config.Config.
type options struct {
	out         string
	count       int
	size        int
	seed        int64
	metricsAddr string
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	mode, rest := args[0], args[1:]

	cfg := config.Default()
	var opts options
	fs := flag.NewFlagSet("chordctl "+mode, flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg.RegisterFlags(fs)
	fs.StringVar(&opts.out, "out", "", "write results to this .npy file")
	fs.IntVar(&opts.count, "count", 2000, "experiment: number of keys")
	fs.IntVar(&opts.size, "size", 255, "experiment: value size in bytes")
	fs.Int64Var(&opts.seed, "seed", 0, "experiment: random seed, 0 for the clock")
	fs.StringVar(&opts.metricsAddr, "metrics", "", "experiment: serve client metrics on this address")
	pos, err := parseArgs(fs, rest)
	if err != nil {
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tk, err := newToolkit(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer tk.close()

	cmd := command{tk: tk, opts: opts, stdin: stdin, stdout: stdout, stderr: stderr}

	switch mode {
	case "get":
		err = cmd.get(ctx, pos)
	case "set":
		err = cmd.set(ctx, pos)
	case "store":
		err = cmd.store(ctx, pos)
	case "fetch":
		err = cmd.fetch(ctx, pos)
	case "walk":
		err = cmd.walk(ctx, pos)
	case "experiment":
		err = cmd.experiment(ctx, pos)
	case "nodes":
		err = cmd.nodes(ctx)
	case "keydist":
		err = cmd.keydist(ctx)
	default:
		fmt.Fprintf(stderr, "unknown mode %q\n\n%s\n", mode, usage)
		return 2
	}

	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(stderr, "usage: chordctl %s\n", ue)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// parseArgs parses flags placed anywhere among the positional arguments.
// Everything after "--" is positional.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return pos, nil
		}
		if used := len(args) - len(rest); used > 0 && args[used-1] == "--" {
			return append(pos, rest...), nil
		}
		pos = append(pos, rest[0])
		args = rest[1:]
	}
}

type usageError string

func (e usageError) Error() string { return string(e) }

// toolkit wires the client components from one configuration.
type toolkit struct {
	cfg      config.Config
	space    ring.Space
	registry *prometheus.Registry
	metrics  *metrics.ClientMetrics
	logger   *log.Logger
	client   *node.Client
	router   *router.Router
	walker   *walker.Walker
	pool     *node.ClientManager
}

func newToolkit(cfg config.Config, stderr io.Writer) (*toolkit, error) {
	space, err := cfg.Space()
	if err != nil {
		return nil, err
	}

	logger := log.New(io.Discard, "", 0)
	if cfg.Verbose {
		logger = log.New(stderr, "", log.LstdFlags|log.Lmicroseconds)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewClientMetrics(reg)

	tk := &toolkit{cfg: cfg, space: space, registry: reg, metrics: m, logger: logger}

	var dialer node.Dialer = node.FreshDialer{}
	if cfg.Pooled {
		tk.pool = node.NewClientManager()
		dialer = tk.pool
	}
	tk.client = node.NewClient(dialer, cfg.RPCTimeout, m)
	tk.router = router.New(tk.client, space, router.Options{
		MaxHops: cfg.MaxHops,
		Port:    cfg.Port,
		Metrics: m,
		Logger:  logger,
	})
	tk.walker = walker.New(tk.client, space, walker.Options{
		MaxWalk: cfg.MaxWalk,
		Port:    cfg.Port,
		Logger:  logger,
	})
	return tk, nil
}

func (tk *toolkit) close() {
	if tk.pool != nil {
		if err := tk.pool.Close(); err != nil {
			tk.logger.Printf("[chordctl] closing connections: %v", err)
		}
	}
}

type command struct {
	tk     *toolkit
	opts   options
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (c command) get(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("get <entry> <key>")
	}
	res, err := c.tk.router.Get(ctx, args[0], []byte(args[1]))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stderr, res.Hops)
	_, err = c.stdout.Write(res.Value)
	return err
}

func (c command) set(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return usageError("set <entry> <key> [value]")
	}
	value, err := c.value(args[2:])
	if err != nil {
		return err
	}
	res, err := c.tk.router.Set(ctx, args[0], []byte(args[1]), value)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "stored on %s after %d hops\n", res.Addr, res.Hops)
	return nil
}

func (c command) store(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return usageError("store <entry> [value]")
	}
	var value []byte
	if len(args) > 1 {
		value = []byte(strings.Join(args[1:], " "))
	} else {
		var err error
		if value, err = c.value(nil); err != nil {
			return err
		}
	}
	res, err := c.tk.router.Store(ctx, args[0], value)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%d on node %s\n", res.ID, res.Addr)
	return nil
}

func (c command) fetch(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("fetch <entry> <id>")
	}
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid identifier %q: %w", args[1], err)
	}
	res, err := c.tk.router.Fetch(ctx, args[0], ring.Identifier(id))
	if err != nil {
		return err
	}
	_, err = c.stdout.Write(res.Value)
	return err
}

func (c command) walk(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("walk <entry>")
	}
	snap, err := c.tk.walker.Discover(ctx, args[0])
	if err != nil {
		return err
	}

	ids := make([]int64, snap.Count())
	for i, n := range snap.Nodes {
		fmt.Fprintf(c.stdout, "%d %s\n", n.ID, n.Addr)
		ids[i] = int64(n.ID)
	}
	fmt.Fprintf(c.stdout, "\nTotal nodes: %d\n", snap.Count())

	return c.saveIDs(ids)
}

func (c command) experiment(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("experiment [-count n] [-size b] [-out file] <entry>")
	}

	if c.opts.metricsAddr != "" {
		stop, err := serveMetrics(c.opts.metricsAddr, c.tk.registry, c.tk.logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	h := experiment.New(c.tk.router, experiment.Options{
		Concurrency: c.tk.cfg.Concurrency,
		Retries:     c.tk.cfg.Retries,
		Output:      c.opts.out,
		Seed:        c.opts.seed,
		Metrics:     c.tk.metrics,
		Logger:      c.tk.logger,
	})
	start := time.Now()
	samples, err := h.Run(ctx, args[0], c.opts.count, c.opts.size)
	if err != nil {
		return err
	}

	paths := make([]float64, len(samples))
	lat := make([]float64, len(samples))
	for i, s := range samples {
		paths[i] = float64(s.PathLength)
		lat[i] = s.LatencyMicros
	}
	ps, ls := metrics.Summarize(paths), metrics.Summarize(lat)

	fmt.Fprintf(c.stdout, "%d samples in %s\n", len(samples), time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(c.stdout, "path length: average %.3f, 1%% = %g, 50%% = %g, 99%% = %g\n", ps.Mean, ps.P1, ps.P50, ps.P99)
	fmt.Fprintf(c.stdout, "latency us:  average %.1f, 1%% = %.1f, 50%% = %.1f, 99%% = %.1f\n", ls.Mean, ls.P1, ls.P50, ls.P99)
	return nil
}

func (c command) nodes(ctx context.Context) error {
	q, err := metrics.NewQueryClient(c.tk.cfg.PrometheusAddr)
	if err != nil {
		return err
	}
	ids, err := q.FetchNodeIDs(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, len(ids))
	return c.saveIDs(ids)
}

func (c command) keydist(ctx context.Context) error {
	q, err := metrics.NewQueryClient(c.tk.cfg.PrometheusAddr)
	if err != nil {
		return err
	}
	totals, err := q.FetchKeyTotals(ctx)
	if err != nil {
		return err
	}

	keys := make([]float64, len(totals))
	rows := make([][]int64, len(totals))
	for i, kt := range totals {
		keys[i] = float64(kt.Total)
		rows[i] = []int64{kt.Total, kt.ID}
	}
	s := metrics.Summarize(keys)

	fmt.Fprintf(c.stdout, "Got %d totals\n", len(totals))
	fmt.Fprintf(c.stdout, "1%% = %g\n50%% = %g\n99%% = %g\n", s.P1, s.P50, s.P99)
	fmt.Fprintf(c.stdout, "Sum = %g\n", s.Sum)

	if c.opts.out == "" {
		return nil
	}
	return results.Save(c.opts.out, func(w io.Writer) error {
		return results.WriteInt64Matrix(w, rows, 2)
	})
}

func (c command) saveIDs(ids []int64) error {
	if c.opts.out == "" {
		return nil
	}
	return results.Save(c.opts.out, func(w io.Writer) error {
		return results.WriteInt64Vector(w, ids)
	})
}

// value returns args joined, or stdin when args is empty.
func (c command) value(args []string) ([]byte, error) {
	if len(args) > 0 {
		return []byte(strings.Join(args, " ")), nil
	}
	b, err := io.ReadAll(c.stdin)
	if err != nil {
		return nil, fmt.Errorf("read value from stdin: %w", err)
	}
	return b, nil
}

// serveMetrics exposes reg over HTTP until the returned stop is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *log.Logger) (func(), error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("[chordctl] metrics listening on %s", lis.Addr())
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			logger.Printf("[chordctl] metrics server: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
