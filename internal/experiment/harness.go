package experiment

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync"
	"time"

	"chordkit/internal/metrics"
	"chordkit/internal/node"
	"chordkit/internal/results"
	"chordkit/internal/router"
)

// Sample is one timed read.
type Sample struct {
	PathLength    int
	LatencyMicros float64
}

// Pair is a key and the value written under it.
type Pair struct {
	Key   []byte
	Value []byte
}

// ErrDuplicateKey is returned by RunKeys for a pair set that reuses a key.
var ErrDuplicateKey = errors.New("duplicate key")

// ErrValueMismatch marks a read that returned something other than what
// was written.
var ErrValueMismatch = errors.New("value mismatch")

// SampleError reports the pair that failed a run.
type SampleError struct {
	Index    int
	Key      string
	Phase    string // "set" or "get"
	Attempts int
	Err      error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("%s %q (pair %d) failed after %d attempts: %v", e.Phase, e.Key, e.Index, e.Attempts, e.Err)
}

func (e *SampleError) Unwrap() error { return e.Err }

// Options configures a Harness.
type Options struct {
	// Concurrency bounds the workers of each phase. Zero means one.
	Concurrency int
	// Retries is how many more times a pair is attempted from the entry
	// node after a transport failure.
	Retries int
	// Output, if set, is the .npy file the samples are written to.
	Output string
	// Seed makes generated pairs reproducible. Zero uses the clock.
	Seed    int64
	Metrics *metrics.ClientMetrics
	Logger  *log.Logger
}

// Harness runs experiments through a Router. Runs on one Harness must
// not overlap.
type Harness struct {
	router      *router.Router
	concurrency int
	retries     int
	output      string
	rand        *rand.Rand
	metrics     *metrics.ClientMetrics
	logger      *log.Logger
}

// New creates a harness.
func New(r *router.Router, opts Options) *Harness {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Harness{
		router:      r,
		concurrency: opts.Concurrency,
		retries:     opts.Retries,
		output:      opts.Output,
		rand:        rand.New(rand.NewSource(opts.Seed)),
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
}

// Run writes count random values of payloadSize bytes under distinct
// random keys, then reads each back.
func (h *Harness) Run(ctx context.Context, entry string, count, payloadSize int) ([]Sample, error) {
	pairs, err := GeneratePairs(h.rand, count, payloadSize)
	if err != nil {
		return nil, err
	}
	return h.RunKeys(ctx, entry, pairs)
}

// GeneratePairs returns count pairs with distinct hex keys and random
// values of payloadSize bytes.
func GeneratePairs(rng *rand.Rand, count, payloadSize int) ([]Pair, error) {
	if count < 0 {
		return nil, fmt.Errorf("count must be non-negative, got %d", count)
	}
	if payloadSize < 0 {
		return nil, fmt.Errorf("payload size must be non-negative, got %d", payloadSize)
	}

	pairs := make([]Pair, 0, count)
	seen := make(map[string]bool, count)
	raw := make([]byte, 16)
	for len(pairs) < count {
		rng.Read(raw)
		key := hex.EncodeToString(raw)
		if seen[key] {
			continue
		}
		seen[key] = true

		value := make([]byte, payloadSize)
		rng.Read(value)
		pairs = append(pairs, Pair{Key: []byte(key), Value: value})
	}
	return pairs, nil
}

// RunKeys writes every pair, then times one get per pair. The returned
// samples are in pair order.
func (h *Harness) RunKeys(ctx context.Context, entry string, pairs []Pair) ([]Sample, error) {
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		if seen[string(p.Key)] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, p.Key)
		}
		seen[string(p.Key)] = true
	}

	h.logger.Printf("[experiment] writing %d pairs via %s", len(pairs), entry)
	err := h.each(ctx, len(pairs), func(ctx context.Context, i int) error {
		return h.attempt(ctx, "set", i, pairs[i].Key, func() error {
			_, err := h.router.Set(ctx, entry, pairs[i].Key, pairs[i].Value)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	h.logger.Printf("[experiment] reading %d pairs via %s", len(pairs), entry)
	samples := make([]Sample, len(pairs))
	err = h.each(ctx, len(pairs), func(ctx context.Context, i int) error {
		return h.attempt(ctx, "get", i, pairs[i].Key, func() error {
			start := time.Now()
			res, err := h.router.Get(ctx, entry, pairs[i].Key)
			d := time.Since(start)
			if err != nil {
				return err
			}
			if !bytes.Equal(res.Value, pairs[i].Value) {
				return fmt.Errorf("%w at %s", ErrValueMismatch, res.Addr)
			}
			h.metrics.ObserveGet(d)
			samples[i] = Sample{PathLength: res.Hops, LatencyMicros: float64(d.Nanoseconds()) / 1e3}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if h.output != "" {
		if err := Save(h.output, samples); err != nil {
			return nil, err
		}
		h.logger.Printf("[experiment] wrote %d samples to %s", len(samples), h.output)
	}
	return samples, nil
}

// attempt runs fn, retrying from the entry node on transport failures.
func (h *Harness) attempt(ctx context.Context, phase string, i int, key []byte, fn func() error) error {
	var err error
	for n := 1; ; n++ {
		if err = fn(); err == nil {
			return nil
		}
		var te *node.TransportError
		if n > h.retries || !errors.As(err, &te) || ctx.Err() != nil {
			return &SampleError{Index: i, Key: string(key), Phase: phase, Attempts: n, Err: err}
		}
		h.logger.Printf("[experiment] %s %q attempt %d failed, retrying: %v", phase, key, n, err)
	}
}

// each calls fn for 0..n-1 on at most h.concurrency goroutines and
// returns the first error. Remaining items are skipped after an error.
func (h *Harness) each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	next := make(chan int)

	for w := 0; w < min(h.concurrency, n); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				if err := fn(ctx, i); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
						cancel()
					}
					mu.Unlock()
				}
			}
		}()
	}

feed:
	for i := 0; i < n; i++ {
		select {
		case next <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(next)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// Rows returns samples as (pathLength, latencyMicros) rows.
func Rows(samples []Sample) [][]float64 {
	rows := make([][]float64, len(samples))
	for i, s := range samples {
		rows[i] = []float64{float64(s.PathLength), s.LatencyMicros}
	}
	return rows
}

// Save writes samples to path as an (n, 2) float64 array.
func Save(path string, samples []Sample) error {
	return results.Save(path, func(w io.Writer) error {
		return results.WriteFloat64Matrix(w, Rows(samples), 2)
	})
}
