// Package bytemap implements a byte-addressed port map: an O(1) lookup
// from a byte offset inside a packed port-data buffer back to the port
// that owns it.
package bytemap

import "github.com/cogu/apx-go/internal/apxerr"

// Port is the minimal shape bytemap needs from a port's data properties:
// where it starts in the packed buffer and how many bytes it occupies.
type Port struct {
	Offset int
	Size   int
}

// Map is a flat offset -> port-index lookup table built once from a
// port layout and never mutated afterwards.
type Map struct {
	lookup []int
}

// Build constructs a Map from an ordered port layout. Port i must not
// overlap port j (i != j); ports need not be given in offset order, but
// in APX node layouts they always are.
func Build(ports []Port) (*Map, error) {
	total := 0
	for _, p := range ports {
		if end := p.Offset + p.Size; end > total {
			total = end
		}
	}
	lookup := make([]int, total)
	for i := range lookup {
		lookup[i] = -1
	}
	for i, p := range ports {
		for k := p.Offset; k < p.Offset+p.Size; k++ {
			if lookup[k] != -1 {
				return nil, apxerr.New("bytemap.Build", apxerr.AddressInUse)
			}
			lookup[k] = i
		}
	}
	return &Map{lookup: lookup}, nil
}

// Lookup returns the port index owning byte offset, or an error if the
// offset falls outside every port's range.
func (m *Map) Lookup(offset int) (int, error) {
	if offset < 0 || offset >= len(m.lookup) || m.lookup[offset] == -1 {
		return 0, apxerr.New("bytemap.Lookup", apxerr.InvalidArgument)
	}
	return m.lookup[offset], nil
}

// Len reports the total byte span covered by the map.
func (m *Map) Len() int { return len(m.lookup) }
