package rmf

import (
	"encoding/binary"
	"fmt"
)

// Frame is one fully decoded message: an address header plus its payload.
type Frame struct {
	Address uint32
	More    bool
	Payload []byte
}

// lengthPrefixSize is the width of the outer frame-length prefix that
// delimits messages on the underlying byte stream. RemoteFile's address
// header alone cannot self-delimit a variable-length payload (a file
// write carries no length field of its own), so every frame going out
// over a stream transport is wrapped in a 4-byte big-endian length
// count of the bytes that follow (address header + payload). This is
// what the connection handshake's "NumHeader-Format: 32" line negotiates.
const lengthPrefixSize = 4

// EncodeFrame wraps an address header and payload with the outer length
// prefix, producing exactly what should be handed to a transmit
// handler's reserved buffer.
func EncodeFrame(address uint32, more bool, payload []byte) ([]byte, error) {
	hdrSize := HeaderSize(address, more)
	out := make([]byte, lengthPrefixSize+hdrSize+len(payload))
	binary.BigEndian.PutUint32(out, uint32(hdrSize+len(payload)))
	if _, err := PutHeader(out[lengthPrefixSize:], address, more); err != nil {
		return nil, err
	}
	copy(out[lengthPrefixSize+hdrSize:], payload)
	return out, nil
}

// StreamDecoder reassembles Frames out of a raw byte stream, buffering
// whatever part of the current frame hasn't arrived yet. It implements
// the core's on_bytes(buf, len) -> consumed_len receive entry point:
// Feed always consumes everything handed to it (appending to its
// internal carry-over buffer) and returns every frame that became
// complete as a result.
type StreamDecoder struct {
	buf []byte
}

// NewStreamDecoder returns a decoder ready to receive bytes.
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{}
}

// Feed appends data to the decoder's internal buffer and extracts every
// frame that is now fully present. It always reports consumed == len(data).
func (d *StreamDecoder) Feed(data []byte) (frames []Frame, consumed int, err error) {
	d.buf = append(d.buf, data...)
	consumed = len(data)
	for {
		if len(d.buf) < lengthPrefixSize {
			break
		}
		total := binary.BigEndian.Uint32(d.buf)
		need := lengthPrefixSize + int(total)
		if len(d.buf) < need {
			break
		}
		body := d.buf[lengthPrefixSize:need]
		address, more, headerLen, perr := ParseHeader(body)
		if perr != nil {
			return frames, consumed, fmt.Errorf("rmf: decoding frame: %w", perr)
		}
		frames = append(frames, Frame{Address: address, More: more, Payload: body[headerLen:]})
		d.buf = d.buf[need:]
	}
	// Compact so the backing array doesn't grow without bound across a
	// long-lived connection.
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frames, consumed, nil
}

// Pending reports how many undecoded bytes are currently buffered
// (diagnostic / testing use).
func (d *StreamDecoder) Pending() int { return len(d.buf) }
