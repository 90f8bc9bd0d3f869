package metrics

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// Queries issued against the deployed ring's Prometheus.
const (
	NodeQuery     = "chord_successor"
	KeyTotalQuery = "dht_keys_total"
	idLabel       = model.LabelName("id")
)

// KeyTotal is the number of keys held by one node.
type KeyTotal struct {
	Total int64
	ID    int64
}

// QueryClient reads gauges from a Prometheus query endpoint.
type QueryClient struct {
	api v1.API
}

// NewQueryClient connects to a Prometheus server at addr, either
// "host:port" or a full URL.
func NewQueryClient(addr string) (*QueryClient, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	c, err := api.NewClient(api.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client for %s: %w", addr, err)
	}
	return &QueryClient{api: v1.NewAPI(c)}, nil
}

// FetchNodeIDs returns the identifiers of every node exporting
// chord_successor.
func (q *QueryClient) FetchNodeIDs(ctx context.Context) ([]int64, error) {
	vec, err := q.vector(ctx, NodeQuery)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(vec))
	for _, s := range vec {
		id, err := sampleID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// FetchKeyTotals returns the key count of every node exporting
// dht_keys_total.
func (q *QueryClient) FetchKeyTotals(ctx context.Context) ([]KeyTotal, error) {
	vec, err := q.vector(ctx, KeyTotalQuery)
	if err != nil {
		return nil, err
	}

	totals := make([]KeyTotal, 0, len(vec))
	for _, s := range vec {
		id, err := sampleID(s)
		if err != nil {
			return nil, err
		}
		totals = append(totals, KeyTotal{Total: int64(s.Value), ID: id})
	}
	return totals, nil
}

func (q *QueryClient) vector(ctx context.Context, query string) (model.Vector, error) {
	val, warnings, err := q.api.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", query, err)
	}
	for _, w := range warnings {
		log.Printf("[metrics] query %s: warning: %s", query, w)
	}

	vec, ok := val.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("query %s: unexpected result type %s", query, val.Type())
	}
	return vec, nil
}

func sampleID(s *model.Sample) (int64, error) {
	raw, ok := s.Metric[idLabel]
	if !ok {
		return 0, fmt.Errorf("sample %s has no %s label", s.Metric, idLabel)
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sample %s: invalid id: %w", s.Metric, err)
	}
	return id, nil
}
