// Package conn implements the Connection (client + server) component:
// it wires the File Manager to a byte-oriented transport and owns the
// per-connection state the rest of the core is agnostic to (the I/O
// goroutine, the small-object allocator instance, the set of node
// instances homed on this connection), built around
// golang.org/x/sync/errgroup for the supervised goroutine group.
package conn

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cogu/apx-go/dtl"
	"github.com/cogu/apx-go/bytemap"
	"github.com/cogu/apx-go/fileman"
	"github.com/cogu/apx-go/internal/apxerr"
	"github.com/cogu/apx-go/internal/logger"
	"github.com/cogu/apx-go/internal/soa"
	"github.com/cogu/apx-go/node"
	"github.com/cogu/apx-go/rmf"
	"github.com/cogu/apx-go/vm"
)

// Mode distinguishes which side of the handshake a Connection plays;
// both sides run an identical protocol, the distinction only matters
// for which node instances a Connection is expected to host (a server
// Connection is usually attached to a shared Router).
type Mode int

const (
	ModeClient Mode = iota
	ModeServer
)

// inPortSink, outPortSink and definitionSink adapt node.Data's named
// Write*port methods to the single WriteAt shape fileman.WriteSink
// expects: one small interface per concern rather than one
// do-everything interface.
type inPortSink struct{ data *node.Data }

func (s inPortSink) WriteAt(offset int, b []byte) error { return s.data.WriteInPort(offset, b) }

type outPortSink struct{ data *node.Data }

func (s outPortSink) WriteAt(offset int, b []byte) error { return s.data.WriteOutPort(offset, b) }

type definitionSink struct{ data *node.Data }

func (s definitionSink) WriteAt(offset int, b []byte) error { return s.data.WriteDefinition(offset, b) }

// binding is everything a Connection needs to route wire traffic to and
// from one attached node instance.
type binding struct {
	instance  *node.Instance
	defFile   *fileman.File
	outFile   *fileman.File
	inFile    *fileman.File
	outBytes  *bytemap.Map
	inBytes   *bytemap.Map
	onReceive func(portName string, v *dtl.Value)
}

// Connection owns one RemoteFile stream: its codec decoder, its File
// Manager, the small-object allocator backing outbound frames, and the
// node instances advertised over it. The zero value is not usable;
// build one with NewClient or NewServerConn.
type Connection struct {
	id      uuid.UUID
	mode    Mode
	raw     io.ReadWriteCloser
	decoder *rmf.StreamDecoder
	tx      *netTransmit
	alloc   *soa.Allocator
	manager *fileman.Manager
	log     logger.Logger
	opts    Options
	router  *Router

	mu              sync.Mutex
	nodes           map[*node.Instance]*binding
	filesToBindings map[*fileman.File]*binding

	closeOnce sync.Once
}

func newConnection(mode Mode, raw io.ReadWriteCloser, log logger.Logger, router *Router, opts ...Option) *Connection {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	id := uuid.New()
	alloc := soa.New(soa.WithQueueDepth(o.QueueDepth))
	alloc.Start()
	c := &Connection{
		id:              id,
		mode:            mode,
		raw:             raw,
		decoder:         rmf.NewStreamDecoder(),
		alloc:           alloc,
		opts:            o,
		router:          router,
		nodes:           make(map[*node.Instance]*binding),
		filesToBindings: make(map[*fileman.File]*binding),
	}
	c.log = log.With("conn_id", id.String()).With("component", "conn")
	c.tx = newNetTransmit(raw, alloc)
	c.manager = fileman.NewManager(c, c.tx, c.log, o.MaxMessageSize)
	return c
}

// NewClient builds a client-side Connection over raw (typically a
// net.Conn dialed to a broker).
func NewClient(raw io.ReadWriteCloser, log logger.Logger, opts ...Option) *Connection {
	return newConnection(ModeClient, raw, log, nil, opts...)
}

// NewServerConn builds a server-side Connection over raw (typically an
// accepted net.Conn), registered with router so its node instances
// participate in cross-connection port matching.
func NewServerConn(raw io.ReadWriteCloser, log logger.Logger, router *Router, opts ...Option) *Connection {
	return newConnection(ModeServer, raw, log, router, opts...)
}

// ConnectionID implements node.ConnectionHandle.
func (c *Connection) ConnectionID() uuid.UUID { return c.id }

func (c *Connection) Mode() Mode      { return c.mode }
func (c *Connection) Manager() *fileman.Manager { return c.manager }

// Run drives the connection: launches the read loop under an errgroup
// as the per-connection I/O goroutine, sends the handshake greeting
// and local file advertisement, then blocks until the read loop exits
// (peer disconnect, protocol error, or Close). The first error from
// the group tears down the whole connection via errgroup.WithContext
// cancellation.
func (c *Connection) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx) })
	if err := c.manager.Connected(); err != nil {
		c.raw.Close()
		return err
	}
	return g.Wait()
}

func (c *Connection) readLoop(ctx context.Context) error {
	buf := make([]byte, 8192)
	for {
		n, err := c.raw.Read(buf)
		if n > 0 {
			if _, derr := c.manager.OnBytes(c.decoder, buf[:n]); derr != nil {
				return derr
			}
		}
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// Close tears the connection down cooperatively: closing raw unblocks
// the pending Read in readLoop, letting it finish the frame already in
// flight before exiting, and every node instance homed here is
// unregistered from the shared Router, if any.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.raw.Close()
		c.alloc.Stop()
		if c.router != nil {
			c.mu.Lock()
			insts := make([]*node.Instance, 0, len(c.nodes))
			for inst := range c.nodes {
				insts = append(insts, inst)
			}
			c.mu.Unlock()
			for _, inst := range insts {
				inst.MarkDisconnected()
				c.router.UnregisterNode(inst)
			}
		}
	})
	return err
}

// AttachNode advertises instance's definition, provide-port and
// require-port files as local files on this connection, wires their
// write sinks to instance's runtime buffers, and (for server
// connections carrying a Router) registers the instance's ports for
// cross-connection signature matching. onReceive is invoked, from the
// read goroutine, whenever a require port's data changes as a result of
// a completed wire write.
func (c *Connection) AttachNode(instance *node.Instance, onReceive func(portName string, v *dtl.Value)) error {
	if instance.Info == nil || instance.Data == nil {
		return apxerr.New("conn.Connection.AttachNode", apxerr.InvalidArgument)
	}
	b := &binding{instance: instance, onReceive: onReceive}

	defFile, err := fileman.New(instance.Info.Name+".apx", uint32(instance.Data.DefinitionSize()), rmf.FileTypeFixed, definitionSink{instance.Data})
	if err != nil {
		return err
	}
	outFile, err := fileman.New(instance.Info.Name+".out", uint32(instance.Data.OutPortSize()), rmf.FileTypeFixed, outPortSink{instance.Data})
	if err != nil {
		return err
	}
	inFile, err := fileman.New(instance.Info.Name+".in", uint32(instance.Data.InPortSize()), rmf.FileTypeFixed, inPortSink{instance.Data})
	if err != nil {
		return err
	}
	for _, f := range []*fileman.File{defFile, outFile, inFile} {
		if err := c.manager.AddLocalFile(f); err != nil {
			return err
		}
	}

	requirePorts := make([]bytemap.Port, len(instance.Info.RequirePorts))
	for i, p := range instance.Info.RequirePorts {
		requirePorts[i] = bytemap.Port{Offset: p.Props.Offset, Size: p.Props.Size}
	}
	inBytes, err := bytemap.Build(requirePorts)
	if err != nil {
		return err
	}
	providePorts := make([]bytemap.Port, len(instance.Info.ProvidePorts))
	for i, p := range instance.Info.ProvidePorts {
		providePorts[i] = bytemap.Port{Offset: p.Props.Offset, Size: p.Props.Size}
	}
	outBytes, err := bytemap.Build(providePorts)
	if err != nil {
		return err
	}

	b.defFile, b.outFile, b.inFile = defFile, outFile, inFile
	b.inBytes, b.outBytes = inBytes, outBytes
	instance.SetConnection(c)

	c.mu.Lock()
	c.nodes[instance] = b
	c.filesToBindings[outFile] = b
	c.filesToBindings[inFile] = b
	c.mu.Unlock()

	if err := instance.MarkConnected(outFile, inFile); err != nil {
		return err
	}
	if c.router != nil {
		c.router.RegisterNode(c, instance)
	}
	return nil
}

func (c *Connection) bindingFor(instance *node.Instance) *binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[instance]
}

// Publish packs v through portID's pack program, stores the bytes in
// instance's own provide-port buffer, and — when this connection is
// attached to a Router — forwards the new value to every require port
// currently bound to it. This is the direct in-process publish path,
// for an application embedding a node
// instance on the same connection that hosts the Router; a publish that
// instead arrives as a completed wire write to the node's own .out file
// (a remote peer pushing new data to an address this side advertised)
// is forwarded the same way, from RemoteFileWritten.
func (c *Connection) Publish(instance *node.Instance, portID int, v *dtl.Value) error {
	port, err := instance.Info.ProvidePortByID(portID)
	if err != nil {
		return err
	}
	s := vm.NewSerializer(port.Pack)
	s.SetValue(v)
	data, err := s.Pack()
	if err != nil {
		return err
	}
	if err := instance.Data.WriteOutPort(port.Props.Offset, data); err != nil {
		return err
	}
	if c.router != nil {
		c.router.Forward(instance, portID, data)
	}
	return nil
}

// RemoteFileCreated implements fileman.Events.
func (c *Connection) RemoteFileCreated(f *fileman.File) {
	c.log.Debugf("conn: peer advertised %s", f)
}

// FileOpenRequested implements fileman.Events: a peer opening one of
// our local files expects to immediately see its current bytes, not
// just future writes, so push the buffer's present contents back over
// the wire as a write at offset 0.
func (c *Connection) FileOpenRequested(f *fileman.File) {
	c.mu.Lock()
	b, ok := c.filesToBindings[f]
	c.mu.Unlock()
	if !ok {
		c.log.Debugf("conn: peer opened %s", f)
		return
	}
	var data []byte
	var err error
	switch f {
	case b.outFile:
		data, err = b.instance.Data.ReadOutPort(0, b.instance.Data.OutPortSize())
	case b.inFile:
		data, err = b.instance.Data.ReadInPort(0, b.instance.Data.InPortSize())
	default:
		return
	}
	if err != nil || len(data) == 0 {
		return
	}
	if err := c.manager.WriteLocalFile(f, 0, data, c.opts.FragmentSize); err != nil {
		c.log.Warnf("conn: satisfying FILE_OPEN for %s: %v", f, err)
	}
}

// RemoteFileWritten implements fileman.Events. A completed write lands
// on one of two files a binding owns: the node's .in file (a peer
// delivering new require-port data routed to us by a Router, or a
// directly wired peer), which is unpacked and handed to the attached
// callback; or the node's own .out file (a peer publishing new data to
// the address we ourselves advertised for its provide port), which is
// forwarded on to this connection's Router, if any.
func (c *Connection) RemoteFileWritten(f *fileman.File, offset int, data []byte) {
	c.mu.Lock()
	b, ok := c.filesToBindings[f]
	c.mu.Unlock()
	if !ok {
		return
	}
	switch f {
	case b.inFile:
		c.forEachTouchedPort(b.inBytes, offset, len(data), func(portID int) { c.dispatchUnpack(b, portID) })
	case b.outFile:
		c.forEachTouchedPort(b.outBytes, offset, len(data), func(portID int) { c.forwardProvide(b, portID) })
	}
}

// forEachTouchedPort calls fn once for every distinct port index a
// [offset, offset+n) byte range overlaps, per the byte-addressed port
// map.
func (c *Connection) forEachTouchedPort(m *bytemap.Map, offset, n int, fn func(portID int)) {
	seen := make(map[int]bool)
	for k := offset; k < offset+n; k++ {
		id, err := m.Lookup(k)
		if err != nil {
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		fn(id)
	}
}

// forwardProvide reads a provide port's full current value and pushes
// it through the Router to every bound require port, mirroring Publish
// for data that arrived over the wire rather than through a direct
// in-process call.
func (c *Connection) forwardProvide(b *binding, portID int) {
	if c.router == nil {
		return
	}
	port, err := b.instance.Info.ProvidePortByID(portID)
	if err != nil {
		return
	}
	data, err := b.instance.Data.ReadOutPort(port.Props.Offset, port.Props.Size)
	if err != nil {
		return
	}
	c.router.Forward(b.instance, portID, data)
}

func (c *Connection) dispatchUnpack(b *binding, portID int) {
	port, err := b.instance.Info.RequirePortByID(portID)
	if err != nil {
		return
	}
	raw, err := b.instance.Data.ReadInPort(port.Props.Offset, port.Props.Size)
	if err != nil {
		return
	}
	d := vm.NewDeserializer(port.Unpack)
	if err := d.SetData(raw); err != nil {
		c.log.Warnf("conn: unpack set-data %s.%s: %v", b.instance.Info.Name, port.Name, err)
		return
	}
	v, err := d.Unpack()
	if err != nil {
		c.log.Warnf("conn: unpack %s.%s: %v", b.instance.Info.Name, port.Name, err)
		return
	}
	if b.onReceive != nil {
		b.onReceive(port.Name, v)
	}
}
