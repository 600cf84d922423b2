// Package dtl implements the dynamic-typed value tree that flows between
// application code and the APX VM: a scalar, an array of values, or a
// record (ordered string-keyed map of values).
package dtl

import (
	"fmt"
	"math"
)

// Kind identifies which variant of Value is populated.
type Kind int

const (
	KindScalar Kind = iota
	KindArray
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Value is a tagged variant over scalar/array/record. The VM operates on
// references into a tree of these; callers must not assume a *Value
// obtained from a tree stays valid after the tree is mutated elsewhere
// (no reference stability across reentry, per the original design notes).
type Value struct {
	kind   Kind
	scalar Scalar
	array  []*Value
	record *Record
}

// Scalar holds exactly one of the primitive wire-representable types.
// A zero Scalar is the unsigned integer 0, matching Go's own zero value
// convention; use the NewXxx constructors to build anything else.
type Scalar struct {
	set  scalarTag
	u    uint64
	s    int64
	str  string
	boln bool
}

type scalarTag int

const (
	tagUint scalarTag = iota
	tagSint
	tagStr
	tagBool
)

// NewUint wraps an unsigned integer scalar value.
func NewUint(v uint64) *Value {
	return &Value{kind: KindScalar, scalar: Scalar{set: tagUint, u: v}}
}

// NewSint wraps a signed integer scalar value.
func NewSint(v int64) *Value {
	return &Value{kind: KindScalar, scalar: Scalar{set: tagSint, s: v}}
}

// NewString wraps a string scalar value.
func NewString(v string) *Value {
	return &Value{kind: KindScalar, scalar: Scalar{set: tagStr, str: v}}
}

// NewBool wraps a boolean scalar value.
func NewBool(v bool) *Value {
	return &Value{kind: KindScalar, scalar: Scalar{set: tagBool, boln: v}}
}

// NewArray wraps a (possibly empty) ordered sequence of values.
func NewArray(elems ...*Value) *Value {
	return &Value{kind: KindArray, array: elems}
}

// NewRecord wraps an empty record; use Set to populate it.
func NewRecord() *Value {
	return &Value{kind: KindRecord, record: newRecord()}
}

// Kind reports which variant this value holds.
func (v *Value) Kind() Kind { return v.kind }

// Uint returns the scalar as an unsigned integer, coercing from a signed
// value if it is non-negative. Returns an error for array/record values
// or a negative signed scalar (DV_TYPE_ERROR / VALUE_ERROR territory;
// callers in vm/ translate this into the apxerr taxonomy).
func (v *Value) Uint() (uint64, error) {
	if v.kind != KindScalar {
		return 0, fmt.Errorf("dtl: value is a %s, not a scalar", v.kind)
	}
	switch v.scalar.set {
	case tagUint:
		return v.scalar.u, nil
	case tagSint:
		if v.scalar.s < 0 {
			return 0, fmt.Errorf("dtl: negative value %d has no unsigned representation", v.scalar.s)
		}
		return uint64(v.scalar.s), nil
	case tagBool:
		if v.scalar.boln {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("dtl: scalar is not numeric")
	}
}

// Sint returns the scalar as a signed integer.
func (v *Value) Sint() (int64, error) {
	if v.kind != KindScalar {
		return 0, fmt.Errorf("dtl: value is a %s, not a scalar", v.kind)
	}
	switch v.scalar.set {
	case tagSint:
		return v.scalar.s, nil
	case tagUint:
		if v.scalar.u > math.MaxInt64 {
			return 0, fmt.Errorf("dtl: value %d overflows int64", v.scalar.u)
		}
		return int64(v.scalar.u), nil
	default:
		return 0, fmt.Errorf("dtl: scalar is not numeric")
	}
}

// Str returns the scalar as a string.
func (v *Value) Str() (string, error) {
	if v.kind != KindScalar || v.scalar.set != tagStr {
		return "", fmt.Errorf("dtl: value is not a string scalar")
	}
	return v.scalar.str, nil
}

// Bool returns the scalar as a boolean.
func (v *Value) Bool() (bool, error) {
	if v.kind != KindScalar || v.scalar.set != tagBool {
		return false, fmt.Errorf("dtl: value is not a bool scalar")
	}
	return v.scalar.boln, nil
}

// Len returns the number of elements in an array value.
func (v *Value) Len() (int, error) {
	if v.kind != KindArray {
		return 0, fmt.Errorf("dtl: value is a %s, not an array", v.kind)
	}
	return len(v.array), nil
}

// At returns the i'th element of an array value.
func (v *Value) At(i int) (*Value, error) {
	if v.kind != KindArray {
		return nil, fmt.Errorf("dtl: value is a %s, not an array", v.kind)
	}
	if i < 0 || i >= len(v.array) {
		return nil, fmt.Errorf("dtl: array index %d out of range [0,%d)", i, len(v.array))
	}
	return v.array[i], nil
}

// Append adds an element to an array value in place.
func (v *Value) Append(elem *Value) error {
	if v.kind != KindArray {
		return fmt.Errorf("dtl: value is a %s, not an array", v.kind)
	}
	v.array = append(v.array, elem)
	return nil
}

// Get returns the named field of a record value. ok is false if the key
// is absent (the VM surfaces this as KEY_NOT_FOUND).
func (v *Value) Get(key string) (val *Value, ok bool, err error) {
	if v.kind != KindRecord {
		return nil, false, fmt.Errorf("dtl: value is a %s, not a record", v.kind)
	}
	val, ok = v.record.get(key)
	return val, ok, nil
}

// Set assigns a field on a record value, preserving first-insertion order
// for keys not previously present.
func (v *Value) Set(key string, val *Value) error {
	if v.kind != KindRecord {
		return fmt.Errorf("dtl: value is a %s, not a record", v.kind)
	}
	v.record.set(key, val)
	return nil
}

// Keys returns a record's field names in insertion order.
func (v *Value) Keys() ([]string, error) {
	if v.kind != KindRecord {
		return nil, fmt.Errorf("dtl: value is a %s, not a record", v.kind)
	}
	return v.record.keys(), nil
}

// Record is an insertion-ordered string-keyed map, kept separate from
// Value so the zero value of Value stays trivially constructible.
type Record struct {
	order []string
	data  map[string]*Value
}

func newRecord() *Record {
	return &Record{data: make(map[string]*Value)}
}

func (r *Record) get(key string) (*Value, bool) {
	v, ok := r.data[key]
	return v, ok
}

func (r *Record) set(key string, v *Value) {
	if _, exists := r.data[key]; !exists {
		r.order = append(r.order, key)
	}
	r.data[key] = v
}

func (r *Record) keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
