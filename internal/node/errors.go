package node

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind classifies a TransportError for retry decisions.
type ErrorKind int

const (
	// KindRemote is a failure reported by the node or a malformed response.
	KindRemote ErrorKind = iota
	// KindUnreachable is a refused or unroutable connection.
	KindUnreachable
	// KindTimeout is an RPC that exceeded its deadline.
	KindTimeout
	// KindCanceled is an RPC abandoned because the caller's context was canceled.
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindTimeout:
		return "timed out"
	case KindCanceled:
		return "canceled"
	default:
		return "remote error"
	}
}

// ErrMalformedResponse marks a response that violates the wire contract.
var ErrMalformedResponse = errors.New("malformed response")

// TransportError is a failed RPC to one node. Hop is the number of
// forwarding hops completed before the failure.
type TransportError struct {
	Addr   string
	Method string
	Hop    int
	Kind   ErrorKind
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s to %s at hop %d: %s: %v", e.Method, e.Addr, e.Hop, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the RPC timed out.
func (e *TransportError) Timeout() bool { return e.Kind == KindTimeout }

// AtHop returns err with the hop index of any TransportError set to hop.
func AtHop(err error, hop int) error {
	var te *TransportError
	if !errors.As(err, &te) {
		return err
	}
	cp := *te
	cp.Hop = hop
	return &cp
}

// KeyNotFoundError reports that the terminal node holds no value.
type KeyNotFoundError struct {
	Key  string
	Addr string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found on %s", e.Key, e.Addr)
}

// classify converts an RPC error into a TransportError.
func classify(addr, method string, err error) *TransportError {
	te := &TransportError{Addr: addr, Method: method, Kind: KindRemote, Err: err}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		te.Kind = KindTimeout
		return te
	case errors.Is(err, context.Canceled):
		te.Kind = KindCanceled
		return te
	}

	switch status.Code(err) {
	case codes.DeadlineExceeded:
		te.Kind = KindTimeout
	case codes.Unavailable:
		te.Kind = KindUnreachable
	case codes.Canceled:
		te.Kind = KindCanceled
	}
	return te
}

// Internal messages deployed nodes send for a terminal miss. A node that
// lacks the key and also fails to find a forward target sends a longer
// message; that is a routing failure, not a miss.
var notFoundMessages = []string{
	"node does not have this key",
	"key not found in this node",
}

// isNotFound reports whether err is a node saying it holds no such key.
// Deployed nodes answer with Internal and a message instead of NotFound.
func isNotFound(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.NotFound:
		return true
	case codes.Internal:
		msg := strings.ToLower(strings.TrimSpace(st.Message()))
		for _, m := range notFoundMessages {
			if msg == m {
				return true
			}
		}
	}
	return false
}
