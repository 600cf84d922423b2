package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/cogu/apx-go/internal/apxerr"
)

// ProgType distinguishes a pack program from an unpack program. Both
// share the same instruction set; the type is carried in the header
// only, and Serializer/Deserializer do not check it.
type ProgType uint8

const (
	ProgPack ProgType = iota
	ProgUnpack
)

// headerSize is the program header's fixed 7-byte encoding:
// major, minor, prog_type, max_data_size(u32le).
const headerSize = 7

// Header is the fixed preamble of every VM program.
type Header struct {
	Major       uint8
	Minor       uint8
	ProgType    ProgType
	MaxDataSize uint32
}

// Program is a decoded VM program: its header plus the bytecode that
// follows it.
type Program struct {
	Header   Header
	Bytecode []byte
}

// EncodeHeader renders a Header to its 7-byte wire form.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, headerSize)
	buf[0] = h.Major
	buf[1] = h.Minor
	buf[2] = byte(h.ProgType)
	binary.LittleEndian.PutUint32(buf[3:], h.MaxDataSize)
	return buf
}

// DecodeProgram splits a program byte string into its header and
// bytecode.
func DecodeProgram(raw []byte) (*Program, error) {
	if len(raw) < headerSize {
		return nil, apxerr.New("vm.DecodeProgram", apxerr.TooShort)
	}
	h := Header{
		Major:       raw[0],
		Minor:       raw[1],
		ProgType:    ProgType(raw[2]),
		MaxDataSize: binary.LittleEndian.Uint32(raw[3:7]),
	}
	return &Program{Header: h, Bytecode: raw[headerSize:]}, nil
}

// Encode renders a Program back to its full wire form (header + bytecode).
func (p *Program) Encode() []byte {
	out := make([]byte, 0, headerSize+len(p.Bytecode))
	out = append(out, EncodeHeader(p.Header)...)
	out = append(out, p.Bytecode...)
	return out
}

// Builder assembles bytecode instruction-by-instruction; it exists
// because the APX definition parser that would normally emit programs
// from a .apx file is explicitly out of scope (spec section 1), so
// callers (and tests) construct programs directly.
type Builder struct {
	buf []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) emit(op Opcode, variant Variant, flag uint8) *Builder {
	b.buf = append(b.buf, EncodeByte(op, variant, flag))
	return b
}

// PackUint appends a PACK_UINT instruction of the given width.
func (b *Builder) PackUint(v Variant) *Builder { return b.emit(OpPackUint, v, FlagNone) }

// PackSint appends a PACK_SINT instruction of the given width.
func (b *Builder) PackSint(v Variant) *Builder { return b.emit(OpPackSint, v, FlagNone) }

// PackBool appends a PACK_BOOL instruction.
func (b *Builder) PackBool() *Builder { return b.emit(OpPackBool, Variant8, FlagNone) }

// PackStr appends a PACK_STR instruction with a fixed field width n.
func (b *Builder) PackStr(n uint32) *Builder {
	b.emit(OpPackStr, Variant32, FlagNone)
	tmp := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp, n)
	b.buf = append(b.buf, tmp...)
	return b
}

// UnpackUint appends an UNPACK_UINT instruction of the given width.
func (b *Builder) UnpackUint(v Variant) *Builder { return b.emit(OpUnpackUint, v, FlagNone) }

// UnpackSint appends an UNPACK_SINT instruction of the given width.
func (b *Builder) UnpackSint(v Variant) *Builder { return b.emit(OpUnpackSint, v, FlagNone) }

// UnpackBool appends an UNPACK_BOOL instruction.
func (b *Builder) UnpackBool() *Builder { return b.emit(OpUnpackBool, Variant8, FlagNone) }

// UnpackStr appends an UNPACK_STR instruction with a fixed field width n.
func (b *Builder) UnpackStr(n uint32) *Builder {
	b.emit(OpUnpackStr, Variant32, FlagNone)
	tmp := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp, n)
	b.buf = append(b.buf, tmp...)
	return b
}

// Array appends an ARRAY instruction. maxLen is written in the width
// dictated by variant (1/2/4 bytes, matching ARRAY_U8/U16/U32); dynamic
// marks the length as a ceiling read from the data stream rather than a
// fixed count.
func (b *Builder) Array(variant Variant, maxLen uint32, dynamic bool) *Builder {
	flag := uint8(FlagNone)
	if dynamic {
		flag = FlagDynamic
	}
	b.emit(OpArray, variant, flag)
	switch variant {
	case Variant8:
		b.buf = append(b.buf, byte(maxLen))
	case Variant16:
		tmp := make([]byte, 2)
		binary.LittleEndian.PutUint16(tmp, uint16(maxLen))
		b.buf = append(b.buf, tmp...)
	case Variant32:
		tmp := make([]byte, 4)
		binary.LittleEndian.PutUint32(tmp, maxLen)
		b.buf = append(b.buf, tmp...)
	}
	return b
}

// RecordPush appends a RECORD_PUSH instruction.
func (b *Builder) RecordPush() *Builder { return b.emit(OpRecordPush, Variant8, FlagNone) }

// RecordPop appends a RECORD_POP instruction.
func (b *Builder) RecordPop() *Builder { return b.emit(OpRecordPop, Variant8, FlagNone) }

// RecordSelect appends a RECORD_SELECT instruction with a NUL-terminated key.
func (b *Builder) RecordSelect(key string) *Builder {
	b.emit(OpRecordSelect, Variant8, FlagNone)
	b.buf = append(b.buf, []byte(key)...)
	b.buf = append(b.buf, 0)
	return b
}

// Bytecode returns the assembled instruction stream.
func (b *Builder) Bytecode() []byte { return b.buf }

// Program wraps the assembled bytecode with the given header.
func (b *Builder) Program(h Header) *Program {
	return &Program{Header: h, Bytecode: b.buf}
}

func readCString(buf []byte, pos int) (string, int, error) {
	end := pos
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	if end >= len(buf) {
		return "", 0, fmt.Errorf("vm: unterminated RECORD_SELECT key")
	}
	return string(buf[pos:end]), end + 1, nil
}
