package conn

import (
	"context"
	"io"
	"sync"

	"github.com/cogu/apx-go/internal/pacer"
	"github.com/cogu/apx-go/internal/soa"
)

// netTransmit adapts the small-object allocator and a plain io.Writer
// (typically a net.Conn) into the fileman.TransmitHandler the core
// consumes: Reserve borrows a buffer from the allocator on the
// caller's goroutine, Send writes it to the stream and hands the
// buffer back to the allocator's background reclamation goroutine,
// matching the allocator's alloc-on-publisher/free-on-I/O-thread
// split. A transient allocation failure is retried with backoff
// through a Pacer before surfacing as TRANSMIT_UNAVAILABLE, rather
// than failing on the very first busy allocator.
type netTransmit struct {
	w     io.Writer
	alloc *soa.Allocator
	pacer *pacer.Pacer
	mu    sync.Mutex // serializes writes onto the single underlying stream
}

func newNetTransmit(w io.Writer, alloc *soa.Allocator) *netTransmit {
	return &netTransmit{w: w, alloc: alloc, pacer: pacer.New(pacer.RetriesOption(3))}
}

// Reserve implements fileman.TransmitHandler. A failed allocation (the
// allocator is out of memory for this size class) is retried a few
// times with backoff; if it still fails, ok=false, which the caller
// surfaces as TRANSMIT_UNAVAILABLE.
func (t *netTransmit) Reserve(n int) (buf []byte, ok bool) {
	err := t.pacer.Call(context.Background(), func() (bool, error) {
		b, err := t.alloc.Alloc(n)
		if err != nil {
			return true, err
		}
		buf = b
		return false, nil
	})
	return buf, err == nil
}

// Send implements fileman.TransmitHandler.
func (t *netTransmit) Send(buf []byte) (int, error) {
	t.mu.Lock()
	n, err := t.w.Write(buf)
	t.mu.Unlock()
	t.alloc.Free(buf, len(buf))
	return n, err
}
