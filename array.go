package dbus

import (
	"bytes"
	"fmt"
	"math"

	"github.com/danderson/dbuswire/fragments"
)

// Array is a DBus array. All items are of the array's element type.
//
// Dictionaries are arrays whose element type is a dict entry type,
// and whose items are [DictEntry] values.
//
// Arrays of fixed-size types (bytes, integers, handles and doubles)
// are stored as a single block of encoded elements rather than as
// individual Values, and are copied to and from the wire in one
// piece. Their items are decoded on demand by [Array.Index] and
// [Array.Items].
type Array struct {
	elem Signature
	// items holds the elements of arrays whose element type is not
	// fixed-size.
	items []Value
	// block holds the elements of arrays of fixed-size types,
	// encoded in byte order ord.
	block []byte
	ord   fragments.ByteOrder
}

// NewArray returns an Array of the given element type. It returns an
// error if elem is not a single complete type, or if any item is not
// of type elem.
func NewArray(elem Signature, items ...Value) (Array, error) {
	if !elem.IsSingle() {
		return Array{}, fmt.Errorf("array element type %q is not a single complete type", elem)
	}
	for i, item := range items {
		if item == nil {
			return Array{}, fmt.Errorf("array item %d is nil", i)
		}
		if got := item.Type(); got != elem {
			return Array{}, fmt.Errorf("array item %d has type %q, want %q", i, got, elem)
		}
	}

	sz, fixed := fixedSize[elem.str[0]]
	if !fixed {
		return Array{elem: elem, items: items}, nil
	}
	ret := Array{elem: elem, ord: fragments.NativeEndian}
	if len(items) > 0 {
		ret.block = make([]byte, len(items)*sz)
		for i, item := range items {
			putFixed(ret.ord, ret.block[i*sz:], item)
		}
	}
	return ret, nil
}

// NewDict returns a dictionary from key type to value type, holding
// entries.
func NewDict(key, value Signature, entries ...DictEntry) (Array, error) {
	elem, err := ParseSignature("{" + key.String() + value.String() + "}")
	if err != nil {
		return Array{}, err
	}
	items := make([]Value, len(entries))
	for i, e := range entries {
		items[i] = e
	}
	return NewArray(elem, items...)
}

// ByteArray returns an array of bytes holding bs. The array shares
// bs, which must not be modified afterwards.
func ByteArray(bs []byte) Array {
	return Array{elem: sigByte, block: bs}
}

// Elem returns the array's element type.
func (a Array) Elem() Signature { return a.elem }

// Len returns the number of items in the array.
func (a Array) Len() int {
	if sz, ok := a.fixedSize(); ok {
		return len(a.block) / sz
	}
	return len(a.items)
}

// Index returns the i-th item of the array. It panics if i is out of
// range.
func (a Array) Index(i int) Value {
	sz, ok := a.fixedSize()
	if !ok {
		return a.items[i]
	}
	if i < 0 || i >= a.Len() {
		panic(fmt.Sprintf("array index %d out of range [0,%d)", i, a.Len()))
	}
	return getFixed(a.ord, a.block[i*sz:], a.elem.str[0])
}

// Items returns the array's items. For arrays of fixed-size types,
// each call decodes a fresh slice; prefer [Array.Index] or
// [Array.Bytes] for large arrays.
func (a Array) Items() []Value {
	if _, ok := a.fixedSize(); !ok {
		return a.items
	}
	n := a.Len()
	if n == 0 {
		return nil
	}
	ret := make([]Value, n)
	for i := range ret {
		ret[i] = a.Index(i)
	}
	return ret
}

// Bytes returns the array's contents, if the array is an array of
// bytes. The returned slice shares the array's storage and must not
// be modified.
func (a Array) Bytes() ([]byte, bool) {
	if a.elem != sigByte {
		return nil, false
	}
	return a.block, true
}

func (a Array) Type() Signature {
	return Signature{"a" + a.elem.str}
}

func (Array) isValue() {}

// Equal reports whether a and b have the same element type and equal
// items. Arrays of fixed-size types compare equal regardless of the
// byte order their block is held in.
func (a Array) Equal(b Array) bool {
	if a.elem != b.elem || a.Len() != b.Len() {
		return false
	}
	if _, ok := a.fixedSize(); ok && sameOrder(a.ord, b.ord) {
		return bytes.Equal(a.block, b.block)
	}
	for i := range a.Len() {
		if !valuesEqual(a.Index(i), b.Index(i)) {
			return false
		}
	}
	return true
}

// fixedSize returns the wire size of the array's elements, if they
// are of a fixed-size type.
func (a Array) fixedSize() (int, bool) {
	if a.elem.str == "" {
		return 0, false
	}
	sz, ok := fixedSize[a.elem.str[0]]
	return sz, ok
}

// sameOrder reports whether blocks in byte orders a and b have the
// same layout. A nil order is only found on byte arrays, for which
// order does not matter.
func sameOrder(a, b fragments.ByteOrder) bool {
	if a == nil || b == nil {
		return true
	}
	return a.Flag() == b.Flag()
}

// valuesEqual reports whether a and b are the same value. Doubles are
// compared bitwise, so that NaNs equal themselves.
func valuesEqual(a, b Value) bool {
	switch a := a.(type) {
	case Array:
		b, ok := b.(Array)
		return ok && a.Equal(b)
	case Struct:
		b, ok := b.(Struct)
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if !valuesEqual(a[i], b[i]) {
				return false
			}
		}
		return true
	case DictEntry:
		b, ok := b.(DictEntry)
		return ok && valuesEqual(a.Key, b.Key) && valuesEqual(a.Value, b.Value)
	case Variant:
		b, ok := b.(Variant)
		return ok && valuesEqual(a.Value, b.Value)
	case Double:
		b, ok := b.(Double)
		return ok && math.Float64bits(float64(a)) == math.Float64bits(float64(b))
	default:
		return a == b
	}
}

// getFixed decodes the fixed-size value of type code c at the start
// of b.
func getFixed(ord fragments.ByteOrder, b []byte, c byte) Value {
	switch c {
	case 'y':
		return Byte(b[0])
	case 'n':
		return Int16(ord.Uint16(b))
	case 'q':
		return Uint16(ord.Uint16(b))
	case 'i':
		return Int32(ord.Uint32(b))
	case 'u':
		return Uint32(ord.Uint32(b))
	case 'h':
		return Handle(ord.Uint32(b))
	case 'x':
		return Int64(ord.Uint64(b))
	case 't':
		return Uint64(ord.Uint64(b))
	case 'd':
		return Double(math.Float64frombits(ord.Uint64(b)))
	default:
		panic(fmt.Sprintf("getFixed on non fixed-size type %q", c))
	}
}

// putFixed encodes the fixed-size value v at the start of out.
func putFixed(ord fragments.ByteOrder, out []byte, v Value) {
	switch v := v.(type) {
	case Byte:
		out[0] = byte(v)
	case Int16:
		ord.PutUint16(out, uint16(v))
	case Uint16:
		ord.PutUint16(out, uint16(v))
	case Int32:
		ord.PutUint32(out, uint32(v))
	case Uint32:
		ord.PutUint32(out, uint32(v))
	case Handle:
		ord.PutUint32(out, uint32(v))
	case Int64:
		ord.PutUint64(out, uint64(v))
	case Uint64:
		ord.PutUint64(out, uint64(v))
	case Double:
		ord.PutUint64(out, math.Float64bits(float64(v)))
	default:
		panic(fmt.Sprintf("putFixed on non fixed-size value %T", v))
	}
}

// swapBlock reverses the byte order of each sz-byte element of bs in
// place.
func swapBlock(bs []byte, sz int) {
	for i := 0; i+sz <= len(bs); i += sz {
		el := bs[i : i+sz]
		for j, k := 0, sz-1; j < k; j, k = j+1, k-1 {
			el[j], el[k] = el[k], el[j]
		}
	}
}
