package portmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	id   int
	name string
}

func (n *fakeNode) NodeID() int      { return n.id }
func (n *fakeNode) NodeName() string { return n.name }

func TestConnectProvideThenRequireBindsImmediately(t *testing.T) {
	m := NewMap()
	reg := NewRegistry()
	provider := &fakeNode{1, "Producer"}
	consumer := &fakeNode{2, "Consumer"}

	pr := PortRef{Node: provider, Side: Provide, PortID: 0}
	rp := PortRef{Node: consumer, Side: Require, PortID: 0}

	m.ConnectProvide(reg, "C(0,100)", pr)
	m.ConnectRequire(reg, "C(0,100)", rp)

	active, ok := m.ActiveProvider("C(0,100)", rp)
	require.True(t, ok)
	assert.True(t, active.Equal(pr))

	deltas := reg.Table(consumer, Require).Drain()
	require.Contains(t, deltas, 0)
	assert.Equal(t, Connected, deltas[0][0].Kind)
}

// A later-attached provider supersedes ("last-attached wins");
// detaching it rebinds to the previous one if present, else orphans
// the require port.
func TestLastAttachedWinsAndRebindOnDisconnect(t *testing.T) {
	m := NewMap()
	reg := NewRegistry()
	first := &fakeNode{1, "First"}
	second := &fakeNode{2, "Second"}
	consumer := &fakeNode{3, "Consumer"}

	prFirst := PortRef{Node: first, Side: Provide, PortID: 0}
	prSecond := PortRef{Node: second, Side: Provide, PortID: 0}
	rp := PortRef{Node: consumer, Side: Require, PortID: 0}

	sig := "S(\"Hello\")"
	m.ConnectRequire(reg, sig, rp)
	m.ConnectProvide(reg, sig, prFirst)

	active, ok := m.ActiveProvider(sig, rp)
	require.True(t, ok)
	assert.True(t, active.Equal(prFirst))

	m.ConnectProvide(reg, sig, prSecond)
	active, ok = m.ActiveProvider(sig, rp)
	require.True(t, ok)
	assert.True(t, active.Equal(prSecond))

	deltas := reg.Table(consumer, Require).Drain()
	require.Contains(t, deltas, 0)
	var sawDisconnectFirst, sawConnectSecond bool
	for _, d := range deltas[0] {
		if d.Kind == Disconnected && d.Peer.Equal(prFirst) {
			sawDisconnectFirst = true
		}
		if d.Kind == Connected && d.Peer.Equal(prSecond) {
			sawConnectSecond = true
		}
	}
	assert.True(t, sawDisconnectFirst)
	assert.True(t, sawConnectSecond)

	// Detach the active (second) provider: rebinds to first, the only
	// remaining provider.
	m.DisconnectProvide(reg, sig, prSecond)
	active, ok = m.ActiveProvider(sig, rp)
	require.True(t, ok)
	assert.True(t, active.Equal(prFirst))

	// Detach the last provider: require port becomes orphan.
	m.DisconnectProvide(reg, sig, prFirst)
	_, ok = m.ActiveProvider(sig, rp)
	assert.False(t, ok)
}

func TestDisconnectRequireNotifiesProvideSide(t *testing.T) {
	m := NewMap()
	reg := NewRegistry()
	provider := &fakeNode{1, "Producer"}
	consumer := &fakeNode{2, "Consumer"}
	pr := PortRef{Node: provider, Side: Provide, PortID: 0}
	rp := PortRef{Node: consumer, Side: Require, PortID: 5}

	sig := "U8"
	m.ConnectProvide(reg, sig, pr)
	m.ConnectRequire(reg, sig, rp)
	reg.Table(provider, Provide).Drain()

	m.DisconnectRequire(reg, sig, rp)
	deltas := reg.Table(provider, Provide).Drain()
	require.Contains(t, deltas, 0)
	assert.Equal(t, Disconnected, deltas[0][0].Kind)
	assert.True(t, deltas[0][0].Peer.Equal(rp))
}

func TestEntryPrunedWhenEmpty(t *testing.T) {
	m := NewMap()
	reg := NewRegistry()
	provider := &fakeNode{1, "Producer"}
	pr := PortRef{Node: provider, Side: Provide, PortID: 0}

	m.ConnectProvide(reg, "U8", pr)
	assert.Equal(t, 1, m.Len())
	m.DisconnectProvide(reg, "U8", pr)
	assert.Equal(t, 0, m.Len())
}

func TestMultipleRequirePortsAllRebindOnProviderChange(t *testing.T) {
	m := NewMap()
	reg := NewRegistry()
	provider := &fakeNode{1, "Producer"}
	c1 := &fakeNode{2, "C1"}
	c2 := &fakeNode{3, "C2"}
	pr := PortRef{Node: provider, Side: Provide, PortID: 0}
	rp1 := PortRef{Node: c1, Side: Require, PortID: 0}
	rp2 := PortRef{Node: c2, Side: Require, PortID: 0}

	sig := "U16"
	m.ConnectRequire(reg, sig, rp1)
	m.ConnectRequire(reg, sig, rp2)
	m.ConnectProvide(reg, sig, pr)

	a1, ok1 := m.ActiveProvider(sig, rp1)
	a2, ok2 := m.ActiveProvider(sig, rp2)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.True(t, a1.Equal(pr))
	assert.True(t, a2.Equal(pr))
}
