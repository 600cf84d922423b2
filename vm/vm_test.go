package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogu/apx-go/dtl"
)

func packHeader(maxSize uint32) Header {
	return Header{Major: 1, Minor: 0, ProgType: ProgPack, MaxDataSize: maxSize}
}

func unpackHeader(maxSize uint32) Header {
	return Header{Major: 1, Minor: 0, ProgType: ProgUnpack, MaxDataSize: maxSize}
}

func TestHeaderEncodeDecode(t *testing.T) {
	h := Header{Major: 2, Minor: 1, ProgType: ProgPack, MaxDataSize: 0x12345678}
	raw := EncodeHeader(h)
	require.Len(t, raw, 7)
	prog, err := DecodeProgram(append(raw, 0xAA))
	require.NoError(t, err)
	assert.Equal(t, h, prog.Header)
	assert.Equal(t, []byte{0xAA}, prog.Bytecode)
}

func TestPackRecordFieldsInSelectOrder(t *testing.T) {
	prog := NewBuilder().
		RecordSelect("Red").PackUint(Variant8).
		RecordSelect("Green").PackUint(Variant8).
		RecordSelect("Blue").PackUint(Variant8).
		Program(packHeader(3))

	rec := dtl.NewRecord()
	require.NoError(t, rec.Set("Red", dtl.NewUint(0xff)))
	require.NoError(t, rec.Set("Green", dtl.NewUint(0x12)))
	require.NoError(t, rec.Set("Blue", dtl.NewUint(0xaa)))

	s := NewSerializer(prog)
	s.SetValue(rec)
	out, err := s.Pack()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x12, 0xAA}, out)
}

func TestPackRecordWithFixedStringAndUint(t *testing.T) {
	prog := NewBuilder().
		RecordSelect("Name").PackStr(12).
		RecordSelect("Id").PackUint(Variant32).
		Program(packHeader(16))

	rec := dtl.NewRecord()
	require.NoError(t, rec.Set("Name", dtl.NewString("George")))
	require.NoError(t, rec.Set("Id", dtl.NewUint(0x12345678)))

	s := NewSerializer(prog)
	s.SetValue(rec)
	out, err := s.Pack()
	require.NoError(t, err)

	expect := append([]byte("George"), make([]byte, 6)...)
	expect = append(expect, 0x78, 0x56, 0x34, 0x12)
	assert.Equal(t, expect, out)
}

func TestUnpackRecordWithFixedStringAndUint(t *testing.T) {
	prog := NewBuilder().
		RecordSelect("Name").UnpackStr(12).
		RecordSelect("Id").UnpackUint(Variant32).
		Program(unpackHeader(16))

	data := append([]byte("George"), make([]byte, 6)...)
	data = append(data, 0x78, 0x56, 0x34, 0x12)

	d := NewDeserializer(prog)
	require.NoError(t, d.SetData(data))
	v, err := d.Unpack()
	require.NoError(t, err)

	name, err := mustField(t, v, "Name").Str()
	require.NoError(t, err)
	assert.Equal(t, "George", name)
	id, err := mustField(t, v, "Id").Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x12345678), id)
}

func mustField(t *testing.T, v *dtl.Value, key string) *dtl.Value {
	t.Helper()
	field, ok, err := v.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	return field
}

func TestPackUnpackIdempotenceFixedArray(t *testing.T) {
	packProg := NewBuilder().Array(Variant8, 4, false).PackUint(Variant8).Program(packHeader(4))
	unpackProg := NewBuilder().Array(Variant8, 4, false).UnpackUint(Variant8).Program(unpackHeader(4))

	arr := dtl.NewArray(dtl.NewUint(10), dtl.NewUint(20), dtl.NewUint(30), dtl.NewUint(40))

	s := NewSerializer(packProg)
	s.SetValue(arr)
	packed, err := s.Pack()
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 20, 30, 40}, packed)

	d := NewDeserializer(unpackProg)
	require.NoError(t, d.SetData(packed))
	got, err := d.Unpack()
	require.NoError(t, err)
	n, _ := got.Len()
	assert.Equal(t, 4, n)
	for i := 0; i < 4; i++ {
		elem, _ := got.At(i)
		origElem, _ := arr.At(i)
		gv, _ := elem.Uint()
		ov, _ := origElem.Uint()
		assert.Equal(t, ov, gv)
	}
}

func TestPackUnpackDynamicArray(t *testing.T) {
	// u8 dynamic array, max 10 elements, length prefix is u8: 1(prefix)+3(data)=4
	packProg := NewBuilder().Array(Variant8, 10, true).PackUint(Variant8).Program(packHeader(4))
	unpackProg := NewBuilder().Array(Variant8, 10, true).UnpackUint(Variant8).Program(unpackHeader(4))

	arr := dtl.NewArray(dtl.NewUint(1), dtl.NewUint(2), dtl.NewUint(3))

	s := NewSerializer(packProg)
	s.SetValue(arr)
	packed, err := s.Pack()
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 1, 2, 3}, packed)

	d := NewDeserializer(unpackProg)
	require.NoError(t, d.SetData(packed))
	got, err := d.Unpack()
	require.NoError(t, err)
	n, _ := got.Len()
	assert.Equal(t, 3, n)
}

func TestPackMissingKeyError(t *testing.T) {
	prog := NewBuilder().RecordSelect("Missing").PackUint(Variant8).Program(packHeader(1))
	s := NewSerializer(prog)
	s.SetValue(dtl.NewRecord())
	_, err := s.Pack()
	assert.Error(t, err)
}

func TestPackStrTooLongError(t *testing.T) {
	prog := NewBuilder().PackStr(4).Program(packHeader(4))
	s := NewSerializer(prog)
	s.SetValue(dtl.NewString("toolong"))
	_, err := s.Pack()
	assert.Error(t, err)
}

func TestUnpackDataLengthMismatchError(t *testing.T) {
	prog := NewBuilder().UnpackUint(Variant32).Program(unpackHeader(4))
	d := NewDeserializer(prog)
	err := d.SetData([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestNestedRecordPushPop(t *testing.T) {
	// {"Outer": {"X": 1, "Y": 2}}
	packProg := NewBuilder().
		RecordSelect("Outer").RecordPush().
		RecordSelect("X").PackUint(Variant8).
		RecordSelect("Y").PackUint(Variant8).
		RecordPop().
		Program(packHeader(2))

	outer := dtl.NewRecord()
	require.NoError(t, outer.Set("X", dtl.NewUint(1)))
	require.NoError(t, outer.Set("Y", dtl.NewUint(2)))
	root := dtl.NewRecord()
	require.NoError(t, root.Set("Outer", outer))

	s := NewSerializer(packProg)
	s.SetValue(root)
	out, err := s.Pack()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, out)

	unpackProg := NewBuilder().
		RecordSelect("Outer").RecordPush().
		RecordSelect("X").UnpackUint(Variant8).
		RecordSelect("Y").UnpackUint(Variant8).
		RecordPop().
		Program(unpackHeader(2))
	d := NewDeserializer(unpackProg)
	require.NoError(t, d.SetData(out))
	got, err := d.Unpack()
	require.NoError(t, err)
	gotOuter := mustField(t, got, "Outer")
	x, _ := mustField(t, gotOuter, "X").Uint()
	y, _ := mustField(t, gotOuter, "Y").Uint()
	assert.Equal(t, uint64(1), x)
	assert.Equal(t, uint64(2), y)
}
