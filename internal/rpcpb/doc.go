// Package rpcpb defines the wire contract of the ring service: the
// chord.Chord and dht.DHT gRPC services and their protobuf messages.
//
// The descriptors are assembled in Go and messages travel as dynamicpb
// values, so the encoding matches protoc-generated code for the same
// .proto without a code generation step. Callers work with the plain Go
// structs in messages.go.
package rpcpb
