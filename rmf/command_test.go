package rmf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileInfoRoundTrip(t *testing.T) {
	info := FileInfo{
		Address:    0,
		Length:     3,
		FileType:   FileTypeFixed,
		DigestType: DigestTypeNone,
		Name:       "TestNode1.out",
	}
	buf, err := EncodeFileInfo(info)
	require.NoError(t, err)
	assert.Len(t, buf, 62)

	cmdType, err := DecodeCmdType(buf)
	require.NoError(t, err)
	assert.Equal(t, CmdFileInfo, cmdType)

	got, err := DecodeFileInfo(buf[4:])
	require.NoError(t, err)
	assert.Equal(t, info, got)
}

func TestFileInfoFrameWireLayout(t *testing.T) {
	info := FileInfo{Address: 0, Length: 3, FileType: FileTypeFixed, DigestType: DigestTypeNone, Name: "TestNode1.out"}
	body, err := EncodeFileInfo(info)
	require.NoError(t, err)

	frame, err := EncodeFrame(CmdAreaStart, false, body)
	require.NoError(t, err)

	// frame = [len:4][addrHeader:4][body:62] = 70 bytes total.
	assert.Len(t, frame, 4+4+62)
	assert.Equal(t, []byte{0xBF, 0xFF, 0xFC, 0x00}, frame[4:8])
	assert.Equal(t, byte(0x03), frame[8]) // cmd_type low byte (FILE_INFO==3)
}

func TestFileInfoNameTooLong(t *testing.T) {
	long := make([]byte, MaxFileNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := EncodeFileInfo(FileInfo{Name: string(long)})
	assert.ErrorIs(t, err, ErrNameTooLong)
}

func TestAddressCmdRoundTrip(t *testing.T) {
	buf := EncodeAddressCmd(CmdFileOpen, 0x1000)
	assert.Len(t, buf, 8)
	cmdType, err := DecodeCmdType(buf)
	require.NoError(t, err)
	assert.Equal(t, CmdFileOpen, cmdType)
	addr, err := DecodeAddressCmd(buf[4:])
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1000), addr)
}
