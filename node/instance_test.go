package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInfo() *Info {
	provide := []PortDef{{Name: "Out1", Signature: "C(0,100)", Props: DataProps{Offset: 0, Size: 1}}}
	require := []PortDef{{Name: "In1", Signature: "S(\"Hello\")", Props: DataProps{Offset: 0, Size: 8}}}
	return NewInfo("TestNode1", provide, require)
}

func TestStateMachineHappyPath(t *testing.T) {
	n := New(ServerMode)
	assert.Equal(t, Constructed, n.State())

	require.NoError(t, n.AttachDefinition(nil))
	assert.Equal(t, DefinitionAttached, n.State())

	require.NoError(t, n.BuildInfo(sampleInfo()))
	assert.Equal(t, InfoBuilt, n.State())
	assert.Len(t, n.ProvideRefs, 1)
	assert.Len(t, n.RequireRefs, 1)
	assert.NotNil(t, n.TriggerListFor(0))

	require.NoError(t, n.BuildData(0))
	assert.Equal(t, DataReady, n.State())
	assert.Equal(t, 1, n.Data.OutPortSize())
	assert.Equal(t, 8, n.Data.InPortSize())

	require.NoError(t, n.MarkConnected(nil, nil))
	assert.Equal(t, Connected, n.State())

	n.MarkDisconnected()
	assert.Equal(t, Disconnected, n.State())
}

func TestStateMachineRejectsOutOfOrderTransition(t *testing.T) {
	n := New(ClientMode)
	err := n.BuildInfo(sampleInfo())
	assert.Error(t, err)
}

func TestClientModeHasNoTriggerLists(t *testing.T) {
	n := New(ClientMode)
	require.NoError(t, n.AttachDefinition(nil))
	require.NoError(t, n.BuildInfo(sampleInfo()))
	assert.Nil(t, n.TriggerListFor(0))
}

func TestDataWriteReadRoundTrip(t *testing.T) {
	d := NewData(4, 4, 8)
	require.NoError(t, d.WriteOutPort(0, []byte{1, 2, 3, 4}))
	got, err := d.ReadOutPort(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	err = d.WriteInPort(6, []byte{9, 9, 9})
	assert.Error(t, err) // 6+3 > 8
}
