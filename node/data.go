package node

import (
	"sync"

	"github.com/cogu/apx-go/internal/apxerr"
)

// Data is a node's mutable runtime state: the definition blob and the
// provide/require port-data buffers, each under its own lock so a
// publish on one buffer never blocks a concurrent receive on another.
type Data struct {
	definitionMu sync.RWMutex
	definition   []byte

	outMu sync.RWMutex
	out   []byte // provide-port data, written locally, read by the sender

	inMu sync.RWMutex
	in   []byte // require-port data, written by the receive path
}

// NewData allocates zeroed buffers of the given sizes.
func NewData(definitionSize, outSize, inSize int) *Data {
	return &Data{
		definition: make([]byte, definitionSize),
		out:        make([]byte, outSize),
		in:         make([]byte, inSize),
	}
}

func writeAt(mu *sync.RWMutex, buf []byte, offset int, src []byte) error {
	mu.Lock()
	defer mu.Unlock()
	if offset < 0 || offset+len(src) > len(buf) {
		return apxerr.New("node.Data.writeAt", apxerr.BufferBoundary)
	}
	copy(buf[offset:], src)
	return nil
}

func readAt(mu *sync.RWMutex, buf []byte, offset, length int) ([]byte, error) {
	mu.RLock()
	defer mu.RUnlock()
	if offset < 0 || offset+length > len(buf) {
		return nil, apxerr.New("node.Data.readAt", apxerr.BufferBoundary)
	}
	out := make([]byte, length)
	copy(out, buf[offset:offset+length])
	return out, nil
}

func (d *Data) WriteDefinition(offset int, src []byte) error {
	return writeAt(&d.definitionMu, d.definition, offset, src)
}

func (d *Data) ReadDefinition(offset, length int) ([]byte, error) {
	return readAt(&d.definitionMu, d.definition, offset, length)
}

// WriteOutPort writes into the provide-port data buffer (a local
// publish call).
func (d *Data) WriteOutPort(offset int, src []byte) error {
	return writeAt(&d.outMu, d.out, offset, src)
}

func (d *Data) ReadOutPort(offset, length int) ([]byte, error) {
	return readAt(&d.outMu, d.out, offset, length)
}

// WriteInPort writes into the require-port data buffer (driven by the
// receive path when the peer's write lands on our .in file).
func (d *Data) WriteInPort(offset int, src []byte) error {
	return writeAt(&d.inMu, d.in, offset, src)
}

func (d *Data) ReadInPort(offset, length int) ([]byte, error) {
	return readAt(&d.inMu, d.in, offset, length)
}

func (d *Data) OutPortSize() int { d.outMu.RLock(); defer d.outMu.RUnlock(); return len(d.out) }
func (d *Data) InPortSize() int  { d.inMu.RLock(); defer d.inMu.RUnlock(); return len(d.in) }
func (d *Data) DefinitionSize() int {
	d.definitionMu.RLock()
	defer d.definitionMu.RUnlock()
	return len(d.definition)
}
