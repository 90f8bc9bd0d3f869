// Package storage provides the keystore held by a simulated ring node:
// a thread-safe in-memory map of opaque keys to values.
package storage
