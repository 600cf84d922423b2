package vm

import (
	"github.com/cogu/apx-go/dtl"
	"github.com/cogu/apx-go/internal/apxerr"
)

// pframe is one entry of the serializer's value stack: a non-owning
// reference into the DTL tree currently being visited.
type pframe struct {
	value *dtl.Value
}

// Serializer packs a dtl.Value into the wire bytes a program describes.
// It is single-threaded per instance, matching the "VM is single-threaded
// per instance" resource policy (spec section 5).
type Serializer struct {
	prog         *Program
	stack        []*pframe
	pendingKey   *string
	pendingArray *arrayCtx
	out          []byte
}

// NewSerializer returns a Serializer bound to a decoded pack program.
func NewSerializer(p *Program) *Serializer {
	return &Serializer{prog: p}
}

// SetValue seeds the root frame and resets any output from a previous run.
func (s *Serializer) SetValue(v *dtl.Value) {
	s.stack = []*pframe{{value: v}}
	s.pendingKey = nil
	s.pendingArray = nil
	s.out = nil
}

func (s *Serializer) top() *pframe { return s.stack[len(s.stack)-1] }

// target resolves the value the next leaf instruction should act on,
// consuming any pending RECORD_SELECT key.
func (s *Serializer) target() (*dtl.Value, error) {
	cur := s.top().value
	if s.pendingKey == nil {
		return cur, nil
	}
	key := *s.pendingKey
	s.pendingKey = nil
	field, ok, err := cur.Get(key)
	if err != nil {
		return nil, apxerr.Wrap("vm.Pack", apxerr.DVTypeError, err)
	}
	if !ok {
		return nil, apxerr.New("vm.Pack", apxerr.KeyNotFound)
	}
	return field, nil
}

// Pack runs the bound program against the value supplied to SetValue and
// returns the packed bytes.
func (s *Serializer) Pack() ([]byte, error) {
	bytecode := s.prog.Bytecode
	pc := 0
	for pc < len(bytecode) {
		next, err := s.step(bytecode, pc)
		if err != nil {
			return nil, err
		}
		pc = next
	}
	if len(s.stack) != 1 {
		return nil, apxerr.New("vm.Pack", apxerr.ProtocolError)
	}
	if uint32(len(s.out)) != s.prog.Header.MaxDataSize {
		return nil, apxerr.New("vm.Pack", apxerr.LengthError)
	}
	return s.out, nil
}

func (s *Serializer) step(bytecode []byte, pc int) (int, error) {
	op, variant, flag := DecodeByte(bytecode[pc])
	pc++
	switch op {
	case OpNop:
		return pc, nil
	case OpRecordSelect:
		key, next, err := readCStringOperand(bytecode, pc)
		if err != nil {
			return 0, apxerr.Wrap("vm.Pack", apxerr.ProtocolError, err)
		}
		s.pendingKey = &key
		return next, nil
	case OpRecordPush:
		if s.pendingKey == nil {
			return 0, apxerr.New("vm.Pack", apxerr.ProtocolError)
		}
		field, err := s.target()
		if err != nil {
			return 0, err
		}
		s.stack = append(s.stack, &pframe{value: field})
		return pc, nil
	case OpRecordPop:
		if len(s.stack) <= 1 {
			return 0, apxerr.New("vm.Pack", apxerr.ProtocolError)
		}
		s.stack = s.stack[:len(s.stack)-1]
		return pc, nil
	case OpArray:
		maxLen, next, err := readArrayLenOperand(bytecode, pc, variant)
		if err != nil {
			return 0, err
		}
		s.pendingArray = &arrayCtx{variant: variant, maxLen: maxLen, dynamic: flag == FlagDynamic}
		return next, nil
	case OpPackUint, OpPackSint, OpPackBool, OpPackStr:
		return s.packLeaf(bytecode, pc, op, variant)
	default:
		return 0, apxerr.New("vm.Pack", apxerr.ProtocolError)
	}
}

func (s *Serializer) packLeaf(bytecode []byte, pc int, op Opcode, variant Variant) (int, error) {
	var strWidth uint32
	if op == OpPackStr {
		w, next, err := readArrayLenOperand(bytecode, pc, Variant32)
		if err != nil {
			return 0, err
		}
		strWidth = w
		pc = next
	}

	target, err := s.target()
	if err != nil {
		return 0, err
	}

	arr := s.pendingArray
	s.pendingArray = nil

	if arr == nil {
		return pc, s.packOne(target, op, variant, strWidth)
	}

	n, err := target.Len()
	if err != nil {
		return 0, apxerr.Wrap("vm.Pack", apxerr.DVTypeError, err)
	}
	if arr.dynamic {
		if uint32(n) > arr.maxLen {
			return 0, apxerr.New("vm.Pack", apxerr.LengthError)
		}
		width, werr := scalarByteWidth(arr.variant)
		if werr != nil {
			return 0, apxerr.Wrap("vm.Pack", apxerr.ValueError, werr)
		}
		s.out = append(s.out, uintToBytes(uint64(n), width)...)
	} else if uint32(n) != arr.maxLen {
		return 0, apxerr.New("vm.Pack", apxerr.LengthError)
	}
	for i := 0; i < n; i++ {
		elem, err := target.At(i)
		if err != nil {
			return 0, apxerr.Wrap("vm.Pack", apxerr.DVTypeError, err)
		}
		if err := s.packOne(elem, op, variant, strWidth); err != nil {
			return 0, err
		}
	}
	return pc, nil
}

func (s *Serializer) packOne(v *dtl.Value, op Opcode, variant Variant, strWidth uint32) error {
	switch op {
	case OpPackUint:
		width, err := scalarByteWidth(variant)
		if err != nil {
			return apxerr.Wrap("vm.Pack", apxerr.ValueError, err)
		}
		u, err := v.Uint()
		if err != nil {
			return apxerr.Wrap("vm.Pack", apxerr.DVTypeError, err)
		}
		s.out = append(s.out, uintToBytes(u, width)...)
		return nil
	case OpPackSint:
		width, err := scalarByteWidth(variant)
		if err != nil {
			return apxerr.Wrap("vm.Pack", apxerr.ValueError, err)
		}
		i, err := v.Sint()
		if err != nil {
			return apxerr.Wrap("vm.Pack", apxerr.DVTypeError, err)
		}
		s.out = append(s.out, uintToBytes(uint64(i)&widthMask(width), width)...)
		return nil
	case OpPackBool:
		b, err := v.Bool()
		if err != nil {
			return apxerr.Wrap("vm.Pack", apxerr.DVTypeError, err)
		}
		if b {
			s.out = append(s.out, 1)
		} else {
			s.out = append(s.out, 0)
		}
		return nil
	case OpPackStr:
		str, err := v.Str()
		if err != nil {
			return apxerr.Wrap("vm.Pack", apxerr.DVTypeError, err)
		}
		if uint32(len(str)) > strWidth {
			return apxerr.New("vm.Pack", apxerr.LengthError)
		}
		field := make([]byte, strWidth)
		copy(field, str)
		s.out = append(s.out, field...)
		return nil
	default:
		return apxerr.New("vm.Pack", apxerr.ProtocolError)
	}
}

func widthMask(width int) uint64 {
	switch width {
	case 1:
		return 0xFF
	case 2:
		return 0xFFFF
	case 4:
		return 0xFFFFFFFF
	default:
		return ^uint64(0)
	}
}
