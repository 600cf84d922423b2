package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cogu/apx-go/node"
	"github.com/cogu/apx-go/vm"
)

// portSpecs is a repeatable flag value of "name:signature" pairs
// (--provide Temperature:u16 --provide Status:bool), standing in for
// the out-of-scope node-definition parser: a command-line stand-in so
// serve/dial/inspect have something to build a node.Info from without
// a .apx grammar.
type portSpecs []string

func (p *portSpecs) String() string { return strings.Join(*p, ",") }
func (p *portSpecs) Type() string   { return "name:signature" }
func (p *portSpecs) Set(v string) error {
	*p = append(*p, v)
	return nil
}

// buildPortDefs turns a portSpecs flag value into PortDefs with
// matching pack/unpack programs, laying each port out back to back in
// the packed buffer.
func buildPortDefs(specs []string) ([]node.PortDef, error) {
	defs := make([]node.PortDef, 0, len(specs))
	offset := 0
	for _, s := range specs {
		parts := strings.SplitN(s, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("apxnode: port spec %q must be name:signature", s)
		}
		name, sig := parts[0], parts[1]
		pack, unpack, size, err := programsForSignature(sig)
		if err != nil {
			return nil, fmt.Errorf("apxnode: port %q: %w", name, err)
		}
		defs = append(defs, node.PortDef{
			Name:      name,
			Signature: sig,
			Props:     node.DataProps{Offset: offset, Size: size},
			Pack:      pack,
			Unpack:    unpack,
		})
		offset += size
	}
	return defs, nil
}

// programsForSignature supports the handful of scalar signatures the
// CLI can exercise end to end (u8/u16/u32/bool); anything richer
// (records, arrays, strings) needs the definition parser this command
// line intentionally doesn't have.
func programsForSignature(sig string) (pack, unpack *vm.Program, size int, err error) {
	var variant vm.Variant
	switch sig {
	case "u8":
		variant, size = vm.Variant8, 1
	case "u16":
		variant, size = vm.Variant16, 2
	case "u32":
		variant, size = vm.Variant32, 4
	case "bool":
		p := vm.NewBuilder().PackBool().Program(vm.Header{Major: 1, ProgType: vm.ProgPack, MaxDataSize: 1})
		u := vm.NewBuilder().UnpackBool().Program(vm.Header{Major: 1, ProgType: vm.ProgUnpack, MaxDataSize: 1})
		return p, u, 1, nil
	default:
		return nil, nil, 0, fmt.Errorf("unsupported signature %q (supported: u8, u16, u32, bool)", sig)
	}
	pack = vm.NewBuilder().PackUint(variant).Program(vm.Header{Major: 1, ProgType: vm.ProgPack, MaxDataSize: uint32(size)})
	unpack = vm.NewBuilder().UnpackUint(variant).Program(vm.Header{Major: 1, ProgType: vm.ProgUnpack, MaxDataSize: uint32(size)})
	return pack, unpack, size, nil
}

// parseUint64 is a small helper shared by dial's --publish flag so a
// bad value reports which flag it came from.
func parseUint64(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
