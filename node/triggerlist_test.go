package node

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cogu/apx-go/portmap"
)

type fakeNodeRef struct{ id int }

func (f *fakeNodeRef) NodeID() int      { return f.id }
func (f *fakeNodeRef) NodeName() string { return "fake" }

func TestTriggerListAddRemoveDedup(t *testing.T) {
	var tl TriggerList
	a := portmap.PortRef{Node: &fakeNodeRef{1}, Side: portmap.Require, PortID: 0}
	b := portmap.PortRef{Node: &fakeNodeRef{2}, Side: portmap.Require, PortID: 0}

	tl.Add(a)
	tl.Add(a) // dedup
	tl.Add(b)
	assert.Len(t, tl.Subscribers(), 2)

	tl.Remove(a)
	subs := tl.Subscribers()
	assert.Len(t, subs, 1)
	assert.True(t, subs[0].Equal(b))
}

func TestTriggerListSetReplacesWholesale(t *testing.T) {
	var tl TriggerList
	a := portmap.PortRef{Node: &fakeNodeRef{1}, Side: portmap.Require, PortID: 0}
	tl.Add(a)
	tl.Set(nil)
	assert.Empty(t, tl.Subscribers())
}
