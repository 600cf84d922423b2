package conn

import (
	"sync"

	"github.com/cogu/apx-go/internal/logger"
	"github.com/cogu/apx-go/node"
	"github.com/cogu/apx-go/portmap"
)

// Router is the server-side port signature matcher: a single signature
// map and connector-change registry shared by every Connection a
// broker process hosts, plus the bookkeeping needed to actually
// deliver bytes between connections once ports are matched. A Router
// with no Connections attached is harmless but useless; build one per
// broker process with NewRouter.
type Router struct {
	mu       sync.Mutex
	sigMap   *portmap.Map
	registry *portmap.Registry
	homes    map[*node.Instance]*Connection
	log      logger.Logger
}

// NewRouter returns an empty Router.
func NewRouter(log logger.Logger) *Router {
	return &Router{
		sigMap:   portmap.NewMap(),
		registry: portmap.NewRegistry(),
		homes:    make(map[*node.Instance]*Connection),
		log:      log.With("component", "router"),
	}
}

// RegisterNode matches instance's provide and require ports against
// every other node instance the Router currently knows about, then
// applies whatever connector-change deltas result (new TriggerList
// subscribers, an initial value push to a freshly bound require port).
func (r *Router) RegisterNode(c *Connection, instance *node.Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.homes[instance] = c
	info := instance.Info
	for i, p := range info.ProvidePorts {
		r.sigMap.ConnectProvide(r.registry, p.Signature, portmap.PortRef{Node: instance, Side: portmap.Provide, PortID: i})
	}
	for i, p := range info.RequirePorts {
		r.sigMap.ConnectRequire(r.registry, p.Signature, portmap.PortRef{Node: instance, Side: portmap.Require, PortID: i})
	}
	r.applyDeltas(instance)
}

// UnregisterNode removes instance from every signature entry it
// participated in, orphaning or rebinding any require ports that were
// bound to it, and drops its home-connection mapping.
func (r *Router) UnregisterNode(instance *node.Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := instance.Info
	if info == nil {
		delete(r.homes, instance)
		return
	}
	for i, p := range info.ProvidePorts {
		r.sigMap.DisconnectProvide(r.registry, p.Signature, portmap.PortRef{Node: instance, Side: portmap.Provide, PortID: i})
	}
	for i, p := range info.RequirePorts {
		r.sigMap.DisconnectRequire(r.registry, p.Signature, portmap.PortRef{Node: instance, Side: portmap.Require, PortID: i})
	}
	delete(r.homes, instance)
	// A disconnect's deltas land on the surviving peers' change tables
	// (a rebound require port, a provide port that lost a subscriber),
	// never on the instance just removed, so drain every remaining node.
	for other := range r.homes {
		r.applyDeltas(other)
	}
}

// applyDeltas drains instance's provide-side ChangeTable into its
// TriggerLists and pushes an initial value to any require port that
// just became bound. Must be called with r.mu held.
func (r *Router) applyDeltas(instance *node.Instance) {
	table := r.registry.Table(instance, portmap.Provide)
	for portID, deltas := range table.Drain() {
		tl := instance.TriggerListFor(portID)
		if tl == nil {
			continue
		}
		for _, d := range deltas {
			if d.Kind == portmap.Connected {
				tl.Add(d.Peer)
				r.syncInitial(instance, portID, d.Peer)
			} else {
				tl.Remove(d.Peer)
			}
		}
	}
	// Require-side deltas are purely informational here (they mirror
	// the provide-side Connected/Disconnected events already applied
	// above); drain them so the table doesn't grow unbounded.
	r.registry.Table(instance, portmap.Require).Drain()
}

// syncInitial pushes a freshly connected provide port's current value
// to one newly bound require port, so a late subscriber doesn't wait
// for the provider's next publish.
func (r *Router) syncInitial(provider *node.Instance, providePortID int, requireRef portmap.PortRef) {
	port, err := provider.Info.ProvidePortByID(providePortID)
	if err != nil {
		return
	}
	data, err := provider.Data.ReadOutPort(port.Props.Offset, port.Props.Size)
	if err != nil {
		return
	}
	r.deliver(requireRef, data)
}

// deliver writes data into the require port's own .in file, over its
// home connection's own wire — the in-process equivalent of
// apx_router.c forwarding a provide port's bytes to every connector in
// its port_trigger_list.
func (r *Router) deliver(requireRef portmap.PortRef, data []byte) {
	subscriber, ok := requireRef.Node.(*node.Instance)
	if !ok {
		return
	}
	home, ok := r.homes[subscriber]
	if !ok {
		return
	}
	port, err := subscriber.Info.RequirePortByID(requireRef.PortID)
	if err != nil {
		return
	}
	b := home.bindingFor(subscriber)
	if b == nil || b.inFile == nil {
		return
	}
	if err := home.manager.WriteLocalFile(b.inFile, port.Props.Offset, data, home.opts.FragmentSize); err != nil {
		r.log.Warnf("router: delivering to %s.%s: %v", subscriber.Info.Name, port.Name, err)
	}
}

// Forward is called by Connection.Publish after a local pack: push the
// new bytes to every require port currently bound to providePortID.
func (r *Router) Forward(provider *node.Instance, providePortID int, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tl := provider.TriggerListFor(providePortID)
	if tl == nil {
		return
	}
	for _, sub := range tl.Subscribers() {
		r.deliver(sub, data)
	}
}
