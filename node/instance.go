package node

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cogu/apx-go/internal/apxerr"
	"github.com/cogu/apx-go/fileman"
)

// Mode distinguishes a node instance owned by a client connection from
// one owned by a server connection (server mode runs the port-
// signature matcher and trigger lists; client mode does not).
type Mode int

const (
	ClientMode Mode = iota
	ServerMode
)

// State is the node instance lifecycle.
type State int

const (
	Constructed State = iota
	DefinitionAttached
	InfoBuilt
	DataReady
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "CONSTRUCTED"
	case DefinitionAttached:
		return "DEFINITION_ATTACHED"
	case InfoBuilt:
		return "INFO_BUILT"
	case DataReady:
		return "DATA_READY"
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// validNext encodes the forward-only transitions of the state machine;
// any node may move directly to Disconnected from any state (a torn-
// down connection).
var validNext = map[State]State{
	Constructed:        DefinitionAttached,
	DefinitionAttached: InfoBuilt,
	InfoBuilt:          DataReady,
	DataReady:          Connected,
}

// DataRef is a non-owning reference to one port's runtime location:
// the node instance plus which side and port id (apx_portDataRef_t in
// the original). It is distinct from portmap.PortRef, which identifies
// a port to the signature matcher rather than to its data buffer.
type DataRef struct {
	Instance *Instance
	Kind     Kind
	PortID   int
}

// Instance is one node instance: parse-derived Info, mutable Data,
// per-port DataRefs, and (server mode) a TriggerList per provide port.
// The connection back-reference is a non-owning handle installed by
// SetConnection after construction.
type Instance struct {
	mu sync.Mutex

	id   uuid.UUID
	mode Mode

	Info *Info
	Data *Data

	RequireRefs []DataRef
	ProvideRefs []DataRef

	triggerLists []TriggerList // server mode only, one per provide port

	connection ConnectionHandle

	definitionFile *fileman.File
	providePortFile *fileman.File
	requirePortFile *fileman.File

	state State
}

// ConnectionHandle is the non-owning parent link to the enclosing
// connection (conn.Connection implements this); kept as a small
// interface here so node never imports conn.
type ConnectionHandle interface {
	ConnectionID() uuid.UUID
}

// New constructs a node instance in CONSTRUCTED state. Info/Data are
// supplied once built (NewInfo / NewData); server-mode instances get a
// TriggerList per provide port.
func New(mode Mode) *Instance {
	return &Instance{id: uuid.New(), mode: mode, state: Constructed}
}

// NodeID / NodeName implement portmap.NodeRef.
func (n *Instance) NodeID() int { return int(n.id[0])<<24 | int(n.id[1])<<16 | int(n.id[2])<<8 | int(n.id[3]) }
func (n *Instance) NodeName() string {
	if n.Info == nil {
		return n.id.String()
	}
	return n.Info.Name
}

func (n *Instance) UUID() uuid.UUID { return n.id }
func (n *Instance) Mode() Mode      { return n.mode }
func (n *Instance) State() State    { n.mu.Lock(); defer n.mu.Unlock(); return n.state }

// SetConnection installs the non-owning back-reference; called once by
// the connection that owns this instance.
func (n *Instance) SetConnection(c ConnectionHandle) { n.connection = c }
func (n *Instance) Connection() ConnectionHandle      { return n.connection }

// AttachDefinition moves CONSTRUCTED -> DEFINITION_ATTACHED; the parse
// tree itself is out of scope (the definition parser is an external
// collaborator), so this only records the transition once the caller
// has a definition file to back it.
func (n *Instance) AttachDefinition(f *fileman.File) error {
	if err := n.transition(DefinitionAttached); err != nil {
		return err
	}
	n.definitionFile = f
	return nil
}

// BuildInfo moves DEFINITION_ATTACHED -> INFO_BUILT: installs the
// parser-derived Info and, in server mode, allocates one TriggerList
// per provide port.
func (n *Instance) BuildInfo(info *Info) error {
	if err := n.transition(InfoBuilt); err != nil {
		return err
	}
	n.Info = info
	n.RequireRefs = make([]DataRef, len(info.RequirePorts))
	n.ProvideRefs = make([]DataRef, len(info.ProvidePorts))
	for i := range n.RequireRefs {
		n.RequireRefs[i] = DataRef{Instance: n, Kind: RequirePort, PortID: i}
	}
	for i := range n.ProvideRefs {
		n.ProvideRefs[i] = DataRef{Instance: n, Kind: ProvidePort, PortID: i}
	}
	if n.mode == ServerMode {
		n.triggerLists = make([]TriggerList, len(info.ProvidePorts))
	}
	return nil
}

// BuildData moves INFO_BUILT -> DATA_READY: allocates the runtime
// buffers sized from Info.
func (n *Instance) BuildData(definitionSize int) error {
	if n.Info == nil {
		return apxerr.New("node.Instance.BuildData", apxerr.InvalidArgument)
	}
	if err := n.transition(DataReady); err != nil {
		return err
	}
	n.Data = NewData(definitionSize, n.Info.OutPortDataSize(), n.Info.InPortDataSize())
	return nil
}

// MarkConnected moves DATA_READY -> CONNECTED and records the node's
// port-data files; conn.Connection.AttachNode calls it once those files
// are placed in the local file map, before the handshake runs.
func (n *Instance) MarkConnected(providePortFile, requirePortFile *fileman.File) error {
	if err := n.transition(Connected); err != nil {
		return err
	}
	n.providePortFile = providePortFile
	n.requirePortFile = requirePortFile
	return nil
}

// MarkDisconnected is reachable from any state: a torn-down connection.
func (n *Instance) MarkDisconnected() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = Disconnected
}

func (n *Instance) transition(next State) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if want, ok := validNext[n.state]; !ok || want != next {
		return apxerr.New(fmt.Sprintf("node.Instance.transition(%s->%s)", n.state, next), apxerr.InvalidArgument)
	}
	n.state = next
	return nil
}

// TriggerListFor returns the fan-out list for a provide port (server
// mode only); nil in client mode or for an out-of-range id.
func (n *Instance) TriggerListFor(portID int) *TriggerList {
	if n.mode != ServerMode || portID < 0 || portID >= len(n.triggerLists) {
		return nil
	}
	return &n.triggerLists[portID]
}

func (n *Instance) DefinitionFile() *fileman.File    { return n.definitionFile }
func (n *Instance) ProvidePortFile() *fileman.File   { return n.providePortFile }
func (n *Instance) RequirePortFile() *fileman.File    { return n.requirePortFile }

func (n *Instance) String() string {
	name := n.id.String()
	if n.Info != nil {
		name = n.Info.Name
	}
	return fmt.Sprintf("Instance{%s state=%s}", name, n.State())
}
