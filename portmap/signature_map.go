package portmap

// entry holds every provide and require port sharing one signature
// string, plus the current require->provide binding ("last-attached
// wins").
type entry struct {
	providePorts []PortRef
	requirePorts []PortRef
	active       map[int]PortRef // requirePorts index -> bound provide port
}

// Map is the port signature map: a hash map from signature string to
// an Entry of provide/require port references, maintaining
// last-attached-wins bindings and emitting connector-change deltas
// into a Registry.
type Map struct {
	entries map[string]*entry
}

// NewMap returns an empty signature map.
func NewMap() *Map {
	return &Map{entries: make(map[string]*entry)}
}

func (m *Map) entryFor(signature string) *entry {
	e, ok := m.entries[signature]
	if !ok {
		e = &entry{active: make(map[int]PortRef)}
		m.entries[signature] = e
	}
	return e
}

// Len returns the number of distinct signatures currently tracked.
func (m *Map) Len() int { return len(m.entries) }

// indexOfRequire finds rp's position in a signature entry's require
// list, the key entry.active is indexed by.
func indexOfRequire(ports []PortRef, rp PortRef) int {
	for i, p := range ports {
		if p.Equal(rp) {
			return i
		}
	}
	return -1
}

// ConnectProvide inserts pr into the entry's provide list, then rebinds
// every require port in the entry to pr (last-attached wins), emitting
// a Disconnected delta for any superseded provider and a Connected
// delta for pr, both logged against the require port's own ChangeTable.
func (m *Map) ConnectProvide(reg *Registry, signature string, pr PortRef) {
	e := m.entryFor(signature)
	e.providePorts = append(e.providePorts, pr)
	for i, rp := range e.requirePorts {
		if prev, had := e.active[i]; had {
			reg.Table(rp.Node, Require).record(rp.PortID, Disconnected, prev)
		}
		e.active[i] = pr
		reg.Table(rp.Node, Require).record(rp.PortID, Connected, pr)
	}
}

// ConnectRequire inserts rp, and if any provider already exists in the
// entry, binds rp to the last-inserted one, notifying both sides'
// ChangeTables.
func (m *Map) ConnectRequire(reg *Registry, signature string, rp PortRef) {
	e := m.entryFor(signature)
	e.requirePorts = append(e.requirePorts, rp)
	idx := len(e.requirePorts) - 1
	if len(e.providePorts) == 0 {
		return
	}
	pr := e.providePorts[len(e.providePorts)-1]
	e.active[idx] = pr
	reg.Table(rp.Node, Require).record(rp.PortID, Connected, pr)
	reg.Table(pr.Node, Provide).record(pr.PortID, Connected, rp)
}

// DisconnectProvide removes pr from the entry and, for every require
// port that was bound to it, emits Disconnected then attempts to
// rebind to another provider in the entry (again last-inserted wins),
// becoming orphan if none remain.
func (m *Map) DisconnectProvide(reg *Registry, signature string, pr PortRef) {
	e, ok := m.entries[signature]
	if !ok {
		return
	}
	for i, p := range e.providePorts {
		if p.Equal(pr) {
			e.providePorts = append(e.providePorts[:i], e.providePorts[i+1:]...)
			break
		}
	}
	for i, rp := range e.requirePorts {
		active, had := e.active[i]
		if !had || !active.Equal(pr) {
			continue
		}
		reg.Table(rp.Node, Require).record(rp.PortID, Disconnected, pr)
		delete(e.active, i)
		if len(e.providePorts) > 0 {
			newPr := e.providePorts[len(e.providePorts)-1]
			e.active[i] = newPr
			reg.Table(rp.Node, Require).record(rp.PortID, Connected, newPr)
		}
	}
	m.pruneIfEmpty(signature, e)
}

// DisconnectRequire removes rp from the entry, notifying its former
// active provider (if any) on both sides.
func (m *Map) DisconnectRequire(reg *Registry, signature string, rp PortRef) {
	e, ok := m.entries[signature]
	if !ok {
		return
	}
	idx := indexOfRequire(e.requirePorts, rp)
	if idx < 0 {
		return
	}
	if active, had := e.active[idx]; had {
		reg.Table(rp.Node, Require).record(rp.PortID, Disconnected, active)
		reg.Table(active.Node, Provide).record(active.PortID, Disconnected, rp)
	}
	delete(e.active, idx)
	e.requirePorts = append(e.requirePorts[:idx], e.requirePorts[idx+1:]...)
	// Shift every active binding above idx down by one to track the slice shrink.
	shifted := make(map[int]PortRef, len(e.active))
	for i, v := range e.active {
		if i > idx {
			shifted[i-1] = v
		} else {
			shifted[i] = v
		}
	}
	e.active = shifted
	m.pruneIfEmpty(signature, e)
}

func (m *Map) pruneIfEmpty(signature string, e *entry) {
	if len(e.providePorts) == 0 && len(e.requirePorts) == 0 {
		delete(m.entries, signature)
	}
}

// ActiveProvider reports the provide port currently bound to rp, if
// any (test/diagnostic use).
func (m *Map) ActiveProvider(signature string, rp PortRef) (PortRef, bool) {
	e, ok := m.entries[signature]
	if !ok {
		return PortRef{}, false
	}
	idx := indexOfRequire(e.requirePorts, rp)
	if idx < 0 {
		return PortRef{}, false
	}
	pr, had := e.active[idx]
	return pr, had
}

// ProvidePorts returns a signature's current provide-side references,
// in attach order.
func (m *Map) ProvidePorts(signature string) []PortRef {
	e, ok := m.entries[signature]
	if !ok {
		return nil
	}
	return append([]PortRef(nil), e.providePorts...)
}

// RequirePorts returns a signature's current require-side references,
// in attach order.
func (m *Map) RequirePorts(signature string) []PortRef {
	e, ok := m.entries[signature]
	if !ok {
		return nil
	}
	return append([]PortRef(nil), e.requirePorts...)
}
