// Package router resolves set and get requests against a ring by
// following forwarding redirects until a terminal node answers.
//
// Forwarding is an explicit loop with a hop ceiling. Every hop is a new
// logical request issued through node.Client, which owns connection
// handling and per-RPC timeouts. Failures at a hop are returned as
// *node.TransportError carrying the endpoint and the hop index; nothing
// is retried here.
package router
