package config

import (
	"flag"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"chordkit/internal/node"
	"chordkit/internal/ring"
)

const (
	// DefaultPort is the DHT service port of the deployed ring.
	DefaultPort = 8081
	// DefaultMaxHops caps forwarding redirects for one set/get.
	DefaultMaxHops = 32
	// DefaultMaxWalk caps successor probes during discovery.
	DefaultMaxWalk = 4096
	// DefaultPrometheusAddr is where the metrics query endpoint lives.
	DefaultPrometheusAddr = "localhost:9090"
)

// Config holds the client configuration shared by every tool.
type Config struct {
	Port           int
	Bits           int
	Modulus        uint64 // overrides Bits when non-zero
	MaxHops        int
	MaxWalk        int
	RPCTimeout     time.Duration
	Pooled         bool
	Concurrency    int
	Retries        int
	PrometheusAddr string
	Verbose        bool
}

// Default returns the configuration matching the deployed ring.
func Default() Config {
	return Config{
		Port:           DefaultPort,
		Bits:           ring.DefaultBits,
		MaxHops:        DefaultMaxHops,
		MaxWalk:        DefaultMaxWalk,
		RPCTimeout:     node.DefaultRPCTimeout,
		Concurrency:    1,
		PrometheusAddr: DefaultPrometheusAddr,
	}
}

// RegisterFlags binds the configuration to fs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Port, "port", c.Port, "ring service port, attached to addresses given without one")
	fs.IntVar(&c.Bits, "bits", c.Bits, "identifier width m; the ring bound is (1<<(m-1))-1")
	fs.Uint64Var(&c.Modulus, "modulus", c.Modulus, "explicit identifier modulus, overrides -bits")
	fs.IntVar(&c.MaxHops, "max-hops", c.MaxHops, "maximum forwarding hops per request")
	fs.IntVar(&c.MaxWalk, "max-walk", c.MaxWalk, "maximum successor probes during discovery")
	fs.DurationVar(&c.RPCTimeout, "timeout", c.RPCTimeout, "per-RPC timeout")
	fs.BoolVar(&c.Pooled, "pooled", c.Pooled, "reuse one connection per endpoint")
	fs.IntVar(&c.Concurrency, "concurrency", c.Concurrency, "parallel experiment workers")
	fs.IntVar(&c.Retries, "retries", c.Retries, "experiment retries per failed operation, from the entry point")
	fs.StringVar(&c.PrometheusAddr, "prom", c.PrometheusAddr, "Prometheus query endpoint host:port")
	fs.BoolVar(&c.Verbose, "v", c.Verbose, "log routing decisions to stderr")
}

// Validate checks the configuration for values no component can use.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Modulus == 0 && (c.Bits < 2 || c.Bits > ring.MaxBits) {
		return fmt.Errorf("invalid identifier width %d", c.Bits)
	}
	if c.MaxHops <= 0 {
		return fmt.Errorf("max hops must be positive, got %d", c.MaxHops)
	}
	if c.MaxWalk <= 0 {
		return fmt.Errorf("max walk must be positive, got %d", c.MaxWalk)
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.RPCTimeout)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries cannot be negative, got %d", c.Retries)
	}
	return nil
}

// Space returns the identifier space described by the configuration.
func (c *Config) Space() (ring.Space, error) {
	if c.Modulus != 0 {
		return ring.NewSpaceWithModulus(c.Modulus)
	}
	return ring.NewSpace(c.Bits)
}

// ResolveEndpoint returns addr as "host:port", attaching port when addr
// carries none. Forward pointers from the DHT service are host-only.
func ResolveEndpoint(addr string, port int) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("empty address")
	}

	if host, p, err := net.SplitHostPort(addr); err == nil {
		if host == "" || p == "" {
			return "", fmt.Errorf("invalid address %q", addr)
		}
		return addr, nil
	}

	host := strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
	if host == "" {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// ParseIdentifiers parses a comma-separated list of ring identifiers:
// "10,20,30".
func ParseIdentifiers(s string) ([]ring.Identifier, error) {
	if s == "" {
		return []ring.Identifier{}, nil
	}

	parts := strings.Split(s, ",")
	ids := make([]ring.Identifier, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid identifier %q: %w", part, err)
		}
		ids = append(ids, ring.Identifier(v))
	}

	return ids, nil
}
