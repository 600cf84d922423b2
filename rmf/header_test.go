package rmf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []struct {
		address uint32
		more    bool
	}{
		{0, false},
		{0x1234, false},
		{0x7FFF, false},
		{0x8000, false},
		{0x8000, true},
		{0x3FFFFC00, false},
		{0x3FFFFFFF, true},
	}
	for _, c := range cases {
		hdr, err := PackHeader(c.address, c.more)
		require.NoError(t, err)
		payload := []byte{1, 2, 3, 4, 5}
		buf := append(append([]byte{}, hdr...), payload...)
		addr, more, gotPayload, err := Unpack(buf)
		require.NoError(t, err)
		assert.Equal(t, c.address, addr)
		assert.Equal(t, c.more, more)
		assert.Equal(t, payload, gotPayload)
	}
}

func TestTwoByteFormSelection(t *testing.T) {
	assert.Equal(t, 2, HeaderSize(0x7FFF, false))
	assert.Equal(t, 4, HeaderSize(0x8000, false))
	assert.Equal(t, 4, HeaderSize(0x1234, true), "fragmented writes always use the 4-byte form")
}

func TestPackHeaderExactByteLayout(t *testing.T) {
	hdr, err := PackHeader(0x1234, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34}, hdr)

	hdr, err = PackHeader(0x8000, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x00, 0x80, 0x00}, hdr)
}

func TestUnpackTooShort(t *testing.T) {
	_, _, _, err := Unpack([]byte{0x00, 0x01})
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestAddressOutOfRange(t *testing.T) {
	_, err := PackHeader(0x40000000, false)
	assert.ErrorIs(t, err, ErrAddressOutOfRange)
}
