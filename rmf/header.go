package rmf

import (
	"encoding/binary"
	"errors"
)

// Header form selector and flag bits for the 4-byte form. The 2-byte
// form has no flag bits: a clear top bit on the first byte IS the
// "use 2 bytes, no fragmentation" signal.
const (
	fourByteSelector uint32 = 0x80000000
	moreFragmentsBit uint32 = 0x40000000
	addressMask      uint32 = 0x3FFFFFFF

	lowAddressLimit = 0x8000 // largest address representable in the 2-byte form

	// MinMsgLen is the shortest buffer Unpack will attempt to decode,
	// matching RMF_MIN_MSG_LEN (RMF_HIGH_ADDRESS_SIZE+1) in the original:
	// the codec always has room to peek a full 4-byte header plus one
	// payload byte before it will commit to parsing.
	MinMsgLen = 5
)

// ErrTooShort is returned by Unpack when the buffer is below MinMsgLen.
var ErrTooShort = errors.New("rmf: buffer too short")

// ErrAddressOutOfRange is returned by PutHeader when address does not
// fit in 30 bits (the largest address the 4-byte form can carry).
var ErrAddressOutOfRange = errors.New("rmf: address out of range")

// HeaderSize returns 2 or 4, the number of bytes PutHeader will write
// for the given address/more_bit combination.
func HeaderSize(address uint32, more bool) int {
	if address < lowAddressLimit && !more {
		return 2
	}
	return 4
}

// PutHeader writes the shortest legal header for (address, more) into
// buf, which must be at least HeaderSize(address, more) bytes long, and
// returns the number of bytes written.
func PutHeader(buf []byte, address uint32, more bool) (int, error) {
	if address > addressMask {
		return 0, ErrAddressOutOfRange
	}
	if address < lowAddressLimit && !more {
		binary.BigEndian.PutUint16(buf, uint16(address))
		return 2, nil
	}
	word := fourByteSelector | address
	if more {
		word |= moreFragmentsBit
	}
	binary.BigEndian.PutUint32(buf, word)
	return 4, nil
}

// PackHeader is a convenience wrapper around PutHeader that allocates
// its own buffer.
func PackHeader(address uint32, more bool) ([]byte, error) {
	buf := make([]byte, HeaderSize(address, more))
	_, err := PutHeader(buf, address, more)
	return buf, err
}

// ParseHeader reads the address header at the start of buf and returns
// the decoded address, the more_fragments flag, and the header's length
// in bytes (2 or 4).
func ParseHeader(buf []byte) (address uint32, more bool, headerLen int, err error) {
	if len(buf) == 0 {
		return 0, false, 0, ErrTooShort
	}
	if buf[0]&0x80 == 0 {
		if len(buf) < 2 {
			return 0, false, 0, ErrTooShort
		}
		address = uint32(binary.BigEndian.Uint16(buf))
		return address, false, 2, nil
	}
	if len(buf) < 4 {
		return 0, false, 0, ErrTooShort
	}
	word := binary.BigEndian.Uint32(buf)
	address = word & addressMask
	more = word&moreFragmentsBit != 0
	return address, more, 4, nil
}

// Unpack decodes a full frame (header + payload) and returns the
// address, the more_fragments flag, and the payload slice (a sub-slice
// of buf, not a copy). It fails with ErrTooShort if buf is shorter than
// MinMsgLen.
func Unpack(buf []byte) (address uint32, more bool, payload []byte, err error) {
	if len(buf) < MinMsgLen {
		return 0, false, nil, ErrTooShort
	}
	address, more, headerLen, err := ParseHeader(buf)
	if err != nil {
		return 0, false, nil, err
	}
	return address, more, buf[headerLen:], nil
}
