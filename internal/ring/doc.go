// Package ring models the identifier space of a Chord-style ring.
// It maps arbitrary byte keys to bounded identifiers and keeps a sorted
// membership view that answers successor queries the way a consistent
// ring does.
package ring
