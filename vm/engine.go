package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/cogu/apx-go/internal/apxerr"
)

// arrayCtx is the pending-array marker left by an ARRAY instruction for
// the single leaf instruction that follows it to consume. Only one can
// be pending at a time — the VM is a straight-line instruction stream,
// never nested array contexts without an intervening record scope.
type arrayCtx struct {
	variant Variant
	maxLen  uint32
	dynamic bool
}

func scalarByteWidth(variant Variant) (int, error) {
	switch variant {
	case Variant8:
		return 1, nil
	case Variant16:
		return 2, nil
	case Variant32:
		return 4, nil
	default:
		return 0, fmt.Errorf("vm: 64-bit scalars are reserved and not implemented")
	}
}

func readCStringOperand(bytecode []byte, pc int) (string, int, error) {
	return readCString(bytecode, pc)
}

func readArrayLenOperand(bytecode []byte, pc int, variant Variant) (uint32, int, error) {
	switch variant {
	case Variant8:
		if pc >= len(bytecode) {
			return 0, pc, apxerr.New("vm.ARRAY", apxerr.TooShort)
		}
		return uint32(bytecode[pc]), pc + 1, nil
	case Variant16:
		if pc+2 > len(bytecode) {
			return 0, pc, apxerr.New("vm.ARRAY", apxerr.TooShort)
		}
		return uint32(binary.LittleEndian.Uint16(bytecode[pc:])), pc + 2, nil
	case Variant32:
		if pc+4 > len(bytecode) {
			return 0, pc, apxerr.New("vm.ARRAY", apxerr.TooShort)
		}
		return binary.LittleEndian.Uint32(bytecode[pc:]), pc + 4, nil
	default:
		return 0, pc, fmt.Errorf("vm: ARRAY with 64-bit length prefix is reserved and not implemented")
	}
}

// uintToBytes renders v in the requested width, little-endian.
func uintToBytes(v uint64, width int) []byte {
	buf := make([]byte, width)
	switch width {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	}
	return buf
}

func bytesToUint(buf []byte) uint64 {
	switch len(buf) {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	}
	return 0
}

func signExtend(v uint64, width int) int64 {
	switch width {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	default:
		return int64(v)
	}
}
