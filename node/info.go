package node

import "github.com/cogu/apx-go/internal/apxerr"

// Info is a node's static, parser-derived description: its port
// signatures, pack/unpack programs and data_props, built once from a
// parse tree (or directly from PortDef slices, since the APX
// definition parser is out of scope) and then immutable.
type Info struct {
	Name         string
	ProvidePorts []PortDef
	RequirePorts []PortDef
}

// NewInfo builds Info directly from already-parsed port definitions,
// standing in for build_node_info (the parse-tree-consuming step is
// out of scope).
func NewInfo(name string, provide, require []PortDef) *Info {
	return &Info{Name: name, ProvidePorts: provide, RequirePorts: require}
}

func (i *Info) NumProvidePorts() int { return len(i.ProvidePorts) }
func (i *Info) NumRequirePorts() int { return len(i.RequirePorts) }

// totalSize returns the end of the furthest port in a port slice (the
// largest data_props Offset+Size), the packed buffer length for that side.
func totalSize(ports []PortDef) int {
	total := 0
	for _, p := range ports {
		end := p.Props.Offset + p.Props.Size
		if end > total {
			total = end
		}
	}
	return total
}

func (i *Info) OutPortDataSize() int { return totalSize(i.ProvidePorts) }
func (i *Info) InPortDataSize() int  { return totalSize(i.RequirePorts) }

func (i *Info) ProvidePortByID(id int) (PortDef, error) {
	if id < 0 || id >= len(i.ProvidePorts) {
		return PortDef{}, apxerr.New("node.Info.ProvidePortByID", apxerr.InvalidArgument)
	}
	return i.ProvidePorts[id], nil
}

func (i *Info) RequirePortByID(id int) (PortDef, error) {
	if id < 0 || id >= len(i.RequirePorts) {
		return PortDef{}, apxerr.New("node.Info.RequirePortByID", apxerr.InvalidArgument)
	}
	return i.RequirePorts[id], nil
}
