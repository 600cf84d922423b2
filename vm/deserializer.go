package vm

import (
	"github.com/cogu/apx-go/dtl"
	"github.com/cogu/apx-go/internal/apxerr"
)

// dframe is one entry of the deserializer's build stack: the DTL value
// currently under construction at this nesting level, plus the key it
// will be attached under once its enclosing RECORD_PUSH/SELECT completes.
type dframe struct {
	value *dtl.Value
	key   string
}

// Deserializer builds a dtl.Value tree out of wire bytes by running an
// unpack program, the mirror image of Serializer.
type Deserializer struct {
	prog         *Program
	stack        []*dframe
	pendingKey   *string
	pendingArray *arrayCtx
	in           []byte
	pos          int
}

// NewDeserializer returns a Deserializer bound to a decoded unpack program.
func NewDeserializer(p *Program) *Deserializer {
	return &Deserializer{prog: p}
}

// SetData provides the raw bytes to unpack; must be exactly
// prog.Header.MaxDataSize long.
func (d *Deserializer) SetData(data []byte) error {
	if uint32(len(data)) != d.prog.Header.MaxDataSize {
		return apxerr.New("vm.Unpack", apxerr.LengthError)
	}
	d.in = data
	d.pos = 0
	// Root frame: seeded by whichever leaf instruction runs first. Until
	// then it is nil, and the root op must write directly into it.
	d.stack = []*dframe{{}}
	d.pendingKey = nil
	d.pendingArray = nil
	return nil
}

func (d *Deserializer) top() *dframe { return d.stack[len(d.stack)-1] }

func (d *Deserializer) readBytes(n int) ([]byte, error) {
	if d.pos+n > len(d.in) {
		return nil, apxerr.New("vm.Unpack", apxerr.BufferBoundary)
	}
	b := d.in[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// assign stores newVal either into the current record field named by a
// pending RECORD_SELECT key, or directly into the current frame slot.
func (d *Deserializer) assign(newVal *dtl.Value) error {
	if d.pendingKey == nil {
		d.top().value = newVal
		return nil
	}
	key := *d.pendingKey
	d.pendingKey = nil
	cur := d.top().value
	if cur == nil {
		cur = dtl.NewRecord()
		d.top().value = cur
	}
	if err := cur.Set(key, newVal); err != nil {
		return apxerr.Wrap("vm.Unpack", apxerr.DVTypeError, err)
	}
	return nil
}

// Unpack runs the bound program over the data supplied to SetData and
// returns the root DTL value.
func (d *Deserializer) Unpack() (*dtl.Value, error) {
	bytecode := d.prog.Bytecode
	pc := 0
	for pc < len(bytecode) {
		next, err := d.step(bytecode, pc)
		if err != nil {
			return nil, err
		}
		pc = next
	}
	if len(d.stack) != 1 {
		return nil, apxerr.New("vm.Unpack", apxerr.ProtocolError)
	}
	if d.pos != len(d.in) {
		return nil, apxerr.New("vm.Unpack", apxerr.LengthError)
	}
	return d.stack[0].value, nil
}

func (d *Deserializer) step(bytecode []byte, pc int) (int, error) {
	op, variant, flag := DecodeByte(bytecode[pc])
	pc++
	switch op {
	case OpNop:
		return pc, nil
	case OpRecordSelect:
		key, next, err := readCStringOperand(bytecode, pc)
		if err != nil {
			return 0, apxerr.Wrap("vm.Unpack", apxerr.ProtocolError, err)
		}
		d.pendingKey = &key
		return next, nil
	case OpRecordPush:
		if d.pendingKey == nil {
			return 0, apxerr.New("vm.Unpack", apxerr.ProtocolError)
		}
		key := *d.pendingKey
		d.pendingKey = nil
		d.stack = append(d.stack, &dframe{value: dtl.NewRecord(), key: key})
		return pc, nil
	case OpRecordPop:
		if len(d.stack) <= 1 {
			return 0, apxerr.New("vm.Unpack", apxerr.ProtocolError)
		}
		child := d.stack[len(d.stack)-1]
		d.stack = d.stack[:len(d.stack)-1]
		parent := d.top()
		if parent.value == nil {
			parent.value = dtl.NewRecord()
		}
		if err := parent.value.Set(child.key, child.value); err != nil {
			return 0, apxerr.Wrap("vm.Unpack", apxerr.DVTypeError, err)
		}
		return pc, nil
	case OpArray:
		maxLen, next, err := readArrayLenOperand(bytecode, pc, variant)
		if err != nil {
			return 0, err
		}
		d.pendingArray = &arrayCtx{variant: variant, maxLen: maxLen, dynamic: flag == FlagDynamic}
		return next, nil
	case OpUnpackUint, OpUnpackSint, OpUnpackBool, OpUnpackStr:
		return d.unpackLeaf(bytecode, pc, op, variant)
	default:
		return 0, apxerr.New("vm.Unpack", apxerr.ProtocolError)
	}
}

func (d *Deserializer) unpackLeaf(bytecode []byte, pc int, op Opcode, variant Variant) (int, error) {
	var strWidth uint32
	if op == OpUnpackStr {
		w, next, err := readArrayLenOperand(bytecode, pc, Variant32)
		if err != nil {
			return 0, err
		}
		strWidth = w
		pc = next
	}

	arr := d.pendingArray
	d.pendingArray = nil

	if arr == nil {
		v, err := d.unpackOne(op, variant, strWidth)
		if err != nil {
			return 0, err
		}
		return pc, d.assign(v)
	}

	n := arr.maxLen
	if arr.dynamic {
		width, werr := scalarByteWidth(arr.variant)
		if werr != nil {
			return 0, apxerr.Wrap("vm.Unpack", apxerr.ValueError, werr)
		}
		lenBytes, err := d.readBytes(width)
		if err != nil {
			return 0, err
		}
		n = uint32(bytesToUint(lenBytes))
		if n > arr.maxLen {
			return 0, apxerr.New("vm.Unpack", apxerr.LengthError)
		}
	}
	elems := make([]*dtl.Value, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := d.unpackOne(op, variant, strWidth)
		if err != nil {
			return 0, err
		}
		elems = append(elems, v)
	}
	return pc, d.assign(dtl.NewArray(elems...))
}

func (d *Deserializer) unpackOne(op Opcode, variant Variant, strWidth uint32) (*dtl.Value, error) {
	switch op {
	case OpUnpackUint:
		width, err := scalarByteWidth(variant)
		if err != nil {
			return nil, apxerr.Wrap("vm.Unpack", apxerr.ValueError, err)
		}
		raw, err := d.readBytes(width)
		if err != nil {
			return nil, err
		}
		return dtl.NewUint(bytesToUint(raw)), nil
	case OpUnpackSint:
		width, err := scalarByteWidth(variant)
		if err != nil {
			return nil, apxerr.Wrap("vm.Unpack", apxerr.ValueError, err)
		}
		raw, err := d.readBytes(width)
		if err != nil {
			return nil, err
		}
		return dtl.NewSint(signExtend(bytesToUint(raw), width)), nil
	case OpUnpackBool:
		raw, err := d.readBytes(1)
		if err != nil {
			return nil, err
		}
		return dtl.NewBool(raw[0] != 0), nil
	case OpUnpackStr:
		raw, err := d.readBytes(int(strWidth))
		if err != nil {
			return nil, err
		}
		end := 0
		for end < len(raw) && raw[end] != 0 {
			end++
		}
		return dtl.NewString(string(raw[:end])), nil
	default:
		return nil, apxerr.New("vm.Unpack", apxerr.ProtocolError)
	}
}
