package fileman

import "github.com/cogu/apx-go/internal/apxerr"

// Receiver reassembles a `more`-bit fragmented write sequence into one
// contiguous buffer. It is per-connection, single-stream: receiving
// bytes for address A while mid-reassembly of a different address is a
// protocol violation.
type Receiver struct {
	maxSize      int
	startAddress uint32
	buf          []byte
	inProgress   bool
}

// NewReceiver returns a Receiver that rejects any reassembled buffer
// larger than maxSize (BUFFER_FULL).
func NewReceiver(maxSize int) *Receiver {
	return &Receiver{maxSize: maxSize}
}

// Completion is the contiguous byte range delivered once a fragmented
// (or single-fragment) write finishes.
type Completion struct {
	StartAddress uint32
	Data         []byte
}

// Feed processes one frame's (address, payload, more) triple. It returns
// a non-nil Completion when the write is now complete; the Receiver is
// reset and ready for the next write in that case.
func (r *Receiver) Feed(address uint32, payload []byte, more bool) (*Completion, error) {
	if !r.inProgress {
		if len(payload) > r.maxSize {
			return nil, apxerr.New("fileman.Receiver.Feed", apxerr.BufferFull)
		}
		r.startAddress = address
		r.buf = append(r.buf[:0], payload...)
		r.inProgress = more
		if !more {
			return r.complete(), nil
		}
		return nil, nil
	}

	expected := r.startAddress + uint32(len(r.buf))
	if address != expected {
		r.reset()
		return nil, apxerr.New("fileman.Receiver.Feed", apxerr.UnexpectedAddress)
	}
	if len(r.buf)+len(payload) > r.maxSize {
		r.reset()
		return nil, apxerr.New("fileman.Receiver.Feed", apxerr.BufferFull)
	}
	r.buf = append(r.buf, payload...)
	r.inProgress = more
	if !more {
		return r.complete(), nil
	}
	return nil, nil
}

func (r *Receiver) complete() *Completion {
	c := &Completion{StartAddress: r.startAddress, Data: append([]byte(nil), r.buf...)}
	r.reset()
	return c
}

func (r *Receiver) reset() {
	r.buf = nil
	r.inProgress = false
}

// InProgress reports whether a fragmented write is currently being
// reassembled (diagnostic / test use).
func (r *Receiver) InProgress() bool { return r.inProgress }
