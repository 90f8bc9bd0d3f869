// Package experiment drives routed sets and gets at volume and records
// the path length and latency of every read.
//
// A run writes every pair first, untimed, then times one routed get per
// pair. Samples keep the order of the pairs. With Concurrency above one
// the pairs of each phase are spread over a bounded worker pool; the
// write phase always completes before the first read starts.
package experiment
