// Package node implements the node instance data model: the per-node
// static info (port signatures, VM programs, data layout) and mutable
// runtime buffers a connection drives through CONSTRUCTED..DISCONNECTED.
package node

import "github.com/cogu/apx-go/vm"

// DataProps is one port's `data_props`: its byte offset and size
// within the node's packed port-data buffer, queue depth (for queued
// ports), and whether its array length is dynamic.
type DataProps struct {
	Offset    int
	Size      int
	QueueLen  int
	IsDynamic bool
}

// PortDef is the node-definition interface received from the
// (out-of-scope) APX definition parser: everything needed to drive one
// port at runtime.
type PortDef struct {
	Name      string
	Signature string
	Props     DataProps
	Pack      *vm.Program
	Unpack    *vm.Program
	InitValue []byte
}

// Kind distinguishes a provide (publish) port from a require
// (subscribe) port.
type Kind int

const (
	ProvidePort Kind = iota
	RequirePort
)
