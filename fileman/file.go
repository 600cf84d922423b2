// Package fileman implements the File Manager: the per-connection
// registry of addressable "files" (port-data and definition blobs),
// their fragment-reassembling receiver, and the
// advertise/discover/open/route state machine that drives the
// RemoteFile codec.
package fileman

import (
	"fmt"
	"strings"

	"github.com/cogu/apx-go/internal/apxerr"
	"github.com/cogu/apx-go/rmf"
)

// Kind classifies a file by its name suffix.
type Kind int

const (
	KindUserData Kind = iota
	KindDefinition
	KindProvidePortData
	KindRequirePortData
)

func kindFromName(name string) Kind {
	switch {
	case strings.HasSuffix(name, ".apx"):
		return KindDefinition
	case strings.HasSuffix(name, ".out"):
		return KindProvidePortData
	case strings.HasSuffix(name, ".in"):
		return KindRequirePortData
	default:
		return KindUserData
	}
}

// WriteSink receives the bytes of a completed write into a file at a
// given offset. Implemented by whatever owns the file's backing buffer
// (typically node.Data).
type WriteSink interface {
	WriteAt(offset int, data []byte) error
}

// File is one addressable byte range on one side of a connection.
type File struct {
	Name       string
	Address    uint32
	Length     uint32
	FileType   uint16
	DigestType uint16
	Digest     [rmf.DigestSize]byte
	IsOpen     bool
	IsRemote   bool
	Kind       Kind
	Sink       WriteSink // nil for remote files; the core never writes into those itself
}

// New builds a local File; address is AddressUnknown until the file map
// assigns one.
func New(name string, length uint32, fileType uint16, sink WriteSink) (*File, error) {
	if len(name) == 0 || len(name) > rmf.MaxFileNameLen {
		return nil, apxerr.New("fileman.New", apxerr.InvalidArgument)
	}
	if length > rmf.MaxFileSize {
		return nil, apxerr.New("fileman.New", apxerr.FileTooLarge)
	}
	return &File{
		Name:     name,
		Address:  rmf.InvalidAddress,
		Length:   length,
		FileType: fileType,
		Kind:     kindFromName(name),
		Sink:     sink,
	}, nil
}

// NewRemote builds a File mirroring a peer's advertised FILE_INFO.
func NewRemote(info rmf.FileInfo) (*File, error) {
	if info.Length > rmf.MaxFileSize {
		return nil, apxerr.New("fileman.NewRemote", apxerr.FileTooLarge)
	}
	return &File{
		Name:       info.Name,
		Address:    info.Address,
		Length:     info.Length,
		FileType:   info.FileType,
		DigestType: info.DigestType,
		Digest:     info.Digest,
		IsRemote:   true,
		Kind:       kindFromName(info.Name),
	}, nil
}

// End returns the first address past the file.
func (f *File) End() uint32 { return f.Address + f.Length }

// Info renders a File's advertisable FILE_INFO fields.
func (f *File) Info() rmf.FileInfo {
	return rmf.FileInfo{
		Address:    f.Address,
		Length:     f.Length,
		FileType:   f.FileType,
		DigestType: f.DigestType,
		Digest:     f.Digest,
		Name:       f.Name,
	}
}

func (f *File) String() string {
	return fmt.Sprintf("File{%s @0x%08X len=%d open=%v remote=%v}", f.Name, f.Address, f.Length, f.IsOpen, f.IsRemote)
}
