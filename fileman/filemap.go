package fileman

import (
	"github.com/cogu/apx-go/internal/apxerr"
	"github.com/cogu/apx-go/rmf"
)

// region describes one of the three auto-placement sub-regions of the
// shared address space.
type region struct {
	start, end, boundary uint32
}

var (
	portDataRegion   = region{rmf.PortDataAreaStart, rmf.DefinitionAreaStart, rmf.PortDataBoundary}
	definitionRegion = region{rmf.DefinitionAreaStart, rmf.UserDataAreaStart, rmf.DefinitionBoundary}
	userDataRegion   = region{rmf.UserDataAreaStart, rmf.CmdAreaStart, rmf.UserDataBoundary}
)

// FileMap is an insertion-ordered, address-sorted collection of files
// with auto-placement into the port-data, definition and user-data
// regions.
type FileMap struct {
	files []*File // kept sorted by Address
}

// NewFileMap returns an empty FileMap.
func NewFileMap() *FileMap { return &FileMap{} }

// insertAt finds the sorted insertion point for address and verifies no
// overlap with its neighbors, mirroring apx_fileMap_insertFile's
// single forward scan.
func (m *FileMap) insertAt(f *File) error {
	idx := 0
	for idx < len(m.files) && m.files[idx].Address <= f.Address {
		idx++
	}
	if idx > 0 {
		prev := m.files[idx-1]
		if prev.End() > f.Address {
			return apxerr.New("fileman.FileMap.Insert", apxerr.AddressInUse)
		}
	}
	if idx < len(m.files) {
		next := m.files[idx]
		if f.End() > next.Address {
			return apxerr.New("fileman.FileMap.Insert", apxerr.FileTooLarge)
		}
	}
	m.files = append(m.files, nil)
	copy(m.files[idx+1:], m.files[idx:])
	m.files[idx] = f
	return nil
}

// InsertAt inserts f at its already-assigned Address.
func (m *FileMap) InsertAt(f *File) error {
	if f.Address == rmf.InvalidAddress {
		return apxerr.New("fileman.FileMap.InsertAt", apxerr.InvalidArgument)
	}
	return m.insertAt(f)
}

func roundUp(v, boundary uint32) uint32 {
	return (v + boundary - 1) &^ (boundary - 1)
}

func (m *FileMap) autoInsert(f *File, r region) error {
	placement := r.start
	found := false
	var lastInRegion *File
	for _, other := range m.files {
		if other.Address >= r.end {
			break
		}
		if other.Address >= r.start {
			lastInRegion = other
			found = true
		}
	}
	if found {
		placement = roundUp(lastInRegion.End(), r.boundary)
		if placement >= r.end {
			return apxerr.New("fileman.FileMap.AutoInsert", apxerr.AddressSpaceExhausted)
		}
	}
	f.Address = placement
	return m.insertAt(f)
}

// AutoInsertPortData places f in the port-data region at the next free
// boundary-aligned address.
func (m *FileMap) AutoInsertPortData(f *File) error { return m.autoInsert(f, portDataRegion) }

// AutoInsertDefinition places f in the definition region.
func (m *FileMap) AutoInsertDefinition(f *File) error { return m.autoInsert(f, definitionRegion) }

// AutoInsertUserData places f in the user-data region.
func (m *FileMap) AutoInsertUserData(f *File) error { return m.autoInsert(f, userDataRegion) }

// Remove deletes f from the map. A no-op if f isn't present.
func (m *FileMap) Remove(f *File) {
	for i, other := range m.files {
		if other == f {
			m.files = append(m.files[:i], m.files[i+1:]...)
			return
		}
	}
}

// FindByAddress returns the unique file with start <= address < start+length, or nil.
func (m *FileMap) FindByAddress(address uint32) *File {
	for _, f := range m.files {
		if address >= f.Address && address < f.End() {
			return f
		}
	}
	return nil
}

// FindByName returns the file with the given name, or nil.
func (m *FileMap) FindByName(name string) *File {
	for _, f := range m.files {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Len returns the number of files in the map.
func (m *FileMap) Len() int { return len(m.files) }

// All returns the files in address order. The slice must not be mutated
// by the caller.
func (m *FileMap) All() []*File { return m.files }
