package conn

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogu/apx-go/dtl"
	"github.com/cogu/apx-go/fileman"
	applog "github.com/cogu/apx-go/internal/logger"
	"github.com/cogu/apx-go/internal/soa"
	"github.com/cogu/apx-go/node"
	"github.com/cogu/apx-go/vm"
)

func testLogger() applog.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return applog.New(l)
}

func u8Programs() (*vm.Program, *vm.Program) {
	pack := vm.NewBuilder().PackUint(vm.Variant8).Program(vm.Header{Major: 1, ProgType: vm.ProgPack, MaxDataSize: 1})
	unpack := vm.NewBuilder().UnpackUint(vm.Variant8).Program(vm.Header{Major: 1, ProgType: vm.ProgUnpack, MaxDataSize: 1})
	return pack, unpack
}

// buildInstance constructs a fully built (DATA_READY) node instance
// with a single provide or require port of one byte, signature "u8".
func buildInstance(t *testing.T, mode node.Mode, name string, provide, require bool) *node.Instance {
	t.Helper()
	pack, unpack := u8Programs()
	var provides, requires []node.PortDef
	if provide {
		provides = []node.PortDef{{Name: "Value", Signature: "u8", Props: node.DataProps{Offset: 0, Size: 1}, Pack: pack, Unpack: unpack}}
	}
	if require {
		requires = []node.PortDef{{Name: "Value", Signature: "u8", Props: node.DataProps{Offset: 0, Size: 1}, Pack: pack, Unpack: unpack}}
	}
	inst := node.New(mode)
	require.NoError(t, inst.AttachDefinition(nil))
	require.NoError(t, inst.BuildInfo(node.NewInfo(name, provides, requires)))
	require.NoError(t, inst.BuildData(0))
	return inst
}

func runConn(t *testing.T, ctx context.Context, c *Connection) {
	t.Helper()
	go func() {
		if err := c.Run(ctx); err != nil && ctx.Err() == nil {
			t.Logf("connection run: %v", err)
		}
	}()
}

func TestConnectionHandshakeOverPipe(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()
	log := testLogger()

	client := NewClient(clientRaw, log)
	server := NewServerConn(serverRaw, log, NewRouter(log))

	inst := buildInstance(t, node.ClientMode, "Sensor", true, false)
	require.NoError(t, client.AttachNode(inst, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runConn(t, ctx, client)
	runConn(t, ctx, server)

	// Give both read loops a moment to exchange the handshake.
	time.Sleep(20 * time.Millisecond)

	assert.NoError(t, client.Close())
	assert.NoError(t, server.Close())
}

func TestConnectionPublishForwardsAcrossConnectionsViaRouter(t *testing.T) {
	log := testLogger()
	router := NewRouter(log)

	providerClientRaw, providerServerRaw := net.Pipe()
	subscriberClientRaw, subscriberServerRaw := net.Pipe()

	providerClient := NewClient(providerClientRaw, log)
	providerServer := NewServerConn(providerServerRaw, log, router)
	subscriberClient := NewClient(subscriberClientRaw, log)
	subscriberServer := NewServerConn(subscriberServerRaw, log, router)

	providerClientInst := buildInstance(t, node.ClientMode, "Provider", true, false)
	providerServerInst := buildInstance(t, node.ServerMode, "Provider", true, false)
	subscriberClientInst := buildInstance(t, node.ClientMode, "Subscriber", false, true)
	subscriberServerInst := buildInstance(t, node.ServerMode, "Subscriber", false, true)

	require.NoError(t, providerClient.AttachNode(providerClientInst, nil))
	require.NoError(t, providerServer.AttachNode(providerServerInst, nil))

	received := make(chan *dtl.Value, 1)
	require.NoError(t, subscriberClient.AttachNode(subscriberClientInst, func(port string, v *dtl.Value) {
		received <- v
	}))
	require.NoError(t, subscriberServer.AttachNode(subscriberServerInst, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, c := range []*Connection{providerClient, providerServer, subscriberClient, subscriberServer} {
		runConn(t, ctx, c)
	}

	// Give the handshakes time to complete before publishing.
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, providerServer.Publish(providerServerInst, 0, dtl.NewUint(42)))

	select {
	case v := <-received:
		n, err := v.Uint()
		require.NoError(t, err)
		assert.Equal(t, uint64(42), n)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscriber to receive published value")
	}

	for _, c := range []*Connection{providerClient, providerServer, subscriberClient, subscriberServer} {
		_ = c.Close()
	}
}

func TestConnectionFileOpenSendsCurrentValue(t *testing.T) {
	log := testLogger()

	clientRaw, serverRaw := net.Pipe()
	client := NewClient(clientRaw, log)
	server := NewServerConn(serverRaw, log, NewRouter(log))

	clientInst := buildInstance(t, node.ClientMode, "Sensor", true, false)
	serverInst := buildInstance(t, node.ServerMode, "Sensor", true, false)

	require.NoError(t, client.AttachNode(clientInst, nil))
	require.NoError(t, server.AttachNode(serverInst, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runConn(t, ctx, client)
	runConn(t, ctx, server)

	// Give the handshake time to complete and publish a value on the
	// client side before the server ever asks to see it.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, client.Publish(clientInst, 0, dtl.NewUint(7)))
	time.Sleep(20 * time.Millisecond)

	var remote *fileman.File
	for _, f := range server.Manager().RemoteFiles() {
		if f.Name == "Sensor.out" {
			remote = f
		}
	}
	require.NotNil(t, remote, "server should have learned about Sensor.out during the handshake")

	require.NoError(t, server.Manager().OpenRemoteFile(remote))

	deadline := time.After(2 * time.Second)
	for {
		data, err := serverInst.Data.ReadOutPort(0, 1)
		require.NoError(t, err)
		if data[0] == 7 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for FILE_OPEN to deliver the current published value")
		case <-time.After(5 * time.Millisecond):
		}
	}

	assert.NoError(t, client.Close())
	assert.NoError(t, server.Close())
}

func TestConnectionCloseUnregistersFromRouter(t *testing.T) {
	log := testLogger()
	router := NewRouter(log)
	_, serverRaw := net.Pipe()
	server := NewServerConn(serverRaw, log, router)

	inst := buildInstance(t, node.ServerMode, "Temp", true, false)
	require.NoError(t, server.AttachNode(inst, nil))

	require.NoError(t, server.Close())
	assert.Equal(t, node.Disconnected, inst.State())
}

func TestNetTransmitReserveRejectsInvalidSize(t *testing.T) {
	raw, _ := net.Pipe()
	defer raw.Close()
	alloc := soa.New()
	alloc.Start()
	defer alloc.Stop()
	tx := newNetTransmit(raw, alloc)
	_, ok := tx.Reserve(0)
	assert.False(t, ok)
}
