package router

import (
	"fmt"

	"chordkit/internal/node"
)

// Error types callers may match with errors.As.
type (
	TransportError   = node.TransportError
	KeyNotFoundError = node.KeyNotFoundError
)

// RoutingLoopError reports a request that was still being forwarded
// after the hop ceiling.
type RoutingLoopError struct {
	Op    string
	Entry string
	Last  string // endpoint that returned the last redirect
	Hops  int
	Limit int
}

func (e *RoutingLoopError) Error() string {
	return fmt.Sprintf("%s from %s: still forwarding after %d hops (limit %d), last redirect from %s",
		e.Op, e.Entry, e.Hops, e.Limit, e.Last)
}
