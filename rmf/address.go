// Package rmf implements the RemoteFile wire codec: the address-prefixed
// framing that multiplexes file writes and command messages onto a
// single byte stream, plus the command payload encodings.
package rmf

// Address space partitioning.
const (
	PortDataAreaStart = 0x00000000
	PortDataAreaEnd   = 0x03FFFFFF
	PortDataBoundary  = 1024 // 1 KiB per file

	DefinitionAreaStart = 0x04000000
	DefinitionAreaEnd   = 0x1FFFFFFF
	DefinitionBoundary  = 1024 * 1024 // 1 MiB per file

	UserDataAreaStart = 0x20000000
	UserDataAreaEnd   = 0x3FFFFBFF
	UserDataBoundary  = 1024 * 1024

	CmdAreaStart = 0x3FFFFC00
	CmdAreaEnd   = 0x3FFFFFFF

	// RemoteAddressBit marks a received frame's address as belonging to
	// the peer's address space rather than ours.
	RemoteAddressBit uint32 = 0x80000000

	// InvalidAddress is the sentinel "no address" value.
	InvalidAddress uint32 = 0xFFFFFFFF

	// MaxFileSize bounds any single file's length.
	MaxFileSize uint32 = 0x03FFFFFF

	MaxFileNameLen = 63 // plus a NUL terminator, 64 bytes total on the wire
)

// IsCmdAddress reports whether address falls in the reserved command range.
func IsCmdAddress(address uint32) bool {
	return address >= CmdAreaStart && address <= CmdAreaEnd
}
