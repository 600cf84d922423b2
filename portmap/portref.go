// Package portmap implements the port signature map: it matches
// provide ports to require ports by signature string and accumulates
// per-node connector-change deltas for the router to consume once and
// clear.
package portmap

import "fmt"

// Side distinguishes a provide port from a require port.
type Side int

const (
	Provide Side = iota
	Require
)

func (s Side) String() string {
	if s == Provide {
		return "provide"
	}
	return "require"
}

// NodeRef identifies the owning node instance without importing the
// node package, avoiding an import cycle (node imports portmap for the
// PortRef entries of its TriggerLists, not the reverse).
type NodeRef interface {
	NodeID() int
	NodeName() string
}

// PortRef is a non-owning reference to one port of one node instance,
// the unit this package matches and notifies on.
type PortRef struct {
	Node NodeRef
	Side Side
	// PortID is the port's index within its node's provide- or
	// require-port list (they are numbered independently per side).
	PortID int
}

func (r PortRef) String() string {
	return fmt.Sprintf("%s.%s[%d]", r.Node.NodeName(), r.Side, r.PortID)
}

// Equal reports whether two references name the same node+side+port.
func (r PortRef) Equal(other PortRef) bool {
	return r.Node == other.Node && r.Side == other.Side && r.PortID == other.PortID
}
