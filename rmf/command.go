package rmf

import (
	"encoding/binary"
	"errors"
)

// CmdType identifies the command carried in a command-address frame's
// payload, see spec section 4.1.
type CmdType uint32

const (
	CmdAck         CmdType = 0
	CmdNack        CmdType = 1
	CmdEOT         CmdType = 2
	CmdFileInfo    CmdType = 3
	CmdRevokeFile  CmdType = 4
	CmdGetFileList CmdType = 8
	CmdGetFileInfo CmdType = 9
	CmdFileOpen    CmdType = 10
	CmdFileClose   CmdType = 11
)

// File type and digest type wire values.
const (
	FileTypeFixed   uint16 = 0
	FileTypeDynamic uint16 = 1
	FileTypeStream  uint16 = 2

	DigestTypeNone   uint16 = 0
	DigestTypeSHA256 uint16 = 1
)

const DigestSize = 32

var (
	ErrNameTooLong    = errors.New("rmf: file name too long")
	ErrShortCmdBody   = errors.New("rmf: command body too short")
	ErrNameNotTerminated = errors.New("rmf: file name missing NUL terminator")
)

// DecodeCmdType reads the 4-byte little-endian command type at the
// start of a command frame's payload.
func DecodeCmdType(payload []byte) (CmdType, error) {
	if len(payload) < 4 {
		return 0, ErrShortCmdBody
	}
	return CmdType(binary.LittleEndian.Uint32(payload)), nil
}

func putCmdType(buf []byte, t CmdType) {
	binary.LittleEndian.PutUint32(buf, uint32(t))
}

// EncodeSimple encodes a command with no body (ACK, NACK, EOT, GET_FILE_LIST).
func EncodeSimple(t CmdType) []byte {
	buf := make([]byte, 4)
	putCmdType(buf, t)
	return buf
}

// FileInfo is the body of a FILE_INFO command.
type FileInfo struct {
	Address    uint32
	Length     uint32
	FileType   uint16
	DigestType uint16
	Digest     [DigestSize]byte
	Name       string
}

// EncodeFileInfo serializes a FILE_INFO command (cmd_type + body).
func EncodeFileInfo(info FileInfo) ([]byte, error) {
	if len(info.Name) > MaxFileNameLen {
		return nil, ErrNameTooLong
	}
	nameField := len(info.Name) + 1 // NUL terminator
	buf := make([]byte, 4+4+4+2+2+DigestSize+nameField)
	putCmdType(buf, CmdFileInfo)
	off := 4
	binary.LittleEndian.PutUint32(buf[off:], info.Address)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], info.Length)
	off += 4
	binary.LittleEndian.PutUint16(buf[off:], info.FileType)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], info.DigestType)
	off += 2
	copy(buf[off:], info.Digest[:])
	off += DigestSize
	copy(buf[off:], info.Name)
	// buf[off+len(info.Name)] is already zero (the NUL terminator)
	return buf, nil
}

// DecodeFileInfo parses a FILE_INFO command body (payload must already
// have the 4-byte cmd_type stripped).
func DecodeFileInfo(body []byte) (FileInfo, error) {
	const fixedLen = 4 + 4 + 2 + 2 + DigestSize
	if len(body) < fixedLen+1 {
		return FileInfo{}, ErrShortCmdBody
	}
	var info FileInfo
	off := 0
	info.Address = binary.LittleEndian.Uint32(body[off:])
	off += 4
	info.Length = binary.LittleEndian.Uint32(body[off:])
	off += 4
	info.FileType = binary.LittleEndian.Uint16(body[off:])
	off += 2
	info.DigestType = binary.LittleEndian.Uint16(body[off:])
	off += 2
	copy(info.Digest[:], body[off:off+DigestSize])
	off += DigestSize
	nameBytes := body[off:]
	nul := -1
	for i, b := range nameBytes {
		if b == 0 {
			nul = i
			break
		}
	}
	if nul < 0 {
		return FileInfo{}, ErrNameNotTerminated
	}
	info.Name = string(nameBytes[:nul])
	return info, nil
}

// EncodeAddressCmd encodes a command whose body is a single u32le
// address (FILE_OPEN, FILE_CLOSE, GET_FILE_INFO, REVOKE_FILE).
func EncodeAddressCmd(t CmdType, address uint32) []byte {
	buf := make([]byte, 8)
	putCmdType(buf, t)
	binary.LittleEndian.PutUint32(buf[4:], address)
	return buf
}

// DecodeAddressCmd parses the single-address body shared by FILE_OPEN,
// FILE_CLOSE, GET_FILE_INFO and REVOKE_FILE (payload must already have
// the cmd_type stripped).
func DecodeAddressCmd(body []byte) (uint32, error) {
	if len(body) < 4 {
		return 0, ErrShortCmdBody
	}
	return binary.LittleEndian.Uint32(body), nil
}
