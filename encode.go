package dbus

import (
	"math"

	"github.com/danderson/dbuswire/fragments"
)

const (
	// MaxArrayLen is the maximum size in bytes of an array's payload.
	MaxArrayLen = 1 << 26
	// MaxMessageLen is the maximum size in bytes of a complete
	// message.
	MaxMessageLen = 1 << 27
	// maxDepth is the maximum nesting of containers within one value,
	// counting arrays, structs, dict entries and variants.
	maxDepth = 64
)

// encodeValue writes v to e as a value of type sig, and returns the
// number of padding bytes written before the value.
//
// sig must be a single complete type, and v must have passed
// checkValue. If v is nil, encodeValue only writes the padding that a
// value of type sig would need.
func encodeValue(e *fragments.Encoder, v Value, sig string, depth int) (pad int, err error) {
	if depth > maxDepth {
		return 0, typeErr(sig, "values nested deeper than %d", maxDepth)
	}
	if v == nil {
		return e.Pad(alignOf(sig[0])), nil
	}
	if got := v.Type().str; got != sig {
		return 0, typeErr(sig, "got value of type %q", got)
	}

	pad = e.Pad(alignOf(sig[0]))
	switch v := v.(type) {
	case Byte:
		e.Uint8(uint8(v))
	case Bool:
		if v {
			e.Uint32(1)
		} else {
			e.Uint32(0)
		}
	case Int16:
		e.Uint16(uint16(v))
	case Uint16:
		e.Uint16(uint16(v))
	case Int32:
		e.Uint32(uint32(v))
	case Uint32:
		e.Uint32(uint32(v))
	case Handle:
		e.Uint32(uint32(v))
	case Int64:
		e.Uint64(uint64(v))
	case Uint64:
		e.Uint64(uint64(v))
	case Double:
		e.Uint64(math.Float64bits(float64(v)))
	case String:
		if err := validateString(string(v)); err != nil {
			return 0, err
		}
		e.String(string(v))
	case ObjectPath:
		if err := validateObjectPath(string(v)); err != nil {
			return 0, err
		}
		e.String(string(v))
	case Signature:
		if _, err := ParseSignature(v.str); err != nil {
			return 0, err
		}
		e.Signature(v.str)
	case Variant:
		if v.Value == nil {
			return 0, typeErr(sig, "variant holds %v", errNilValue)
		}
		inner := v.Value.Type()
		if _, err := ParseSignature(inner.str); err != nil {
			return 0, err
		}
		e.Signature(inner.str)
		if _, err := encodeValue(e, v.Value, inner.str, depth+1); err != nil {
			return 0, err
		}
	case Array:
		if err := encodeArray(e, v, depth); err != nil {
			return 0, err
		}
	case Struct:
		if len(v) == 0 {
			return 0, typeErr(sig, "empty struct")
		}
		for _, f := range v {
			if _, err := encodeValue(e, f, f.Type().str, depth+1); err != nil {
				return 0, err
			}
		}
	case DictEntry:
		if !isBasic(v.Key.Type()) {
			return 0, typeErr(sig, "dict entry key type %q is not a basic type", v.Key.Type())
		}
		if _, err := encodeValue(e, v.Key, v.Key.Type().str, depth+1); err != nil {
			return 0, err
		}
		if _, err := encodeValue(e, v.Value, v.Value.Type().str, depth+1); err != nil {
			return 0, err
		}
	default:
		return 0, typeErr(sig, "unsupported value %T", v)
	}
	return pad, nil
}

// encodeArray writes the length and elements of a. The array's own
// 4-byte alignment has already been written.
//
// The array length counts the elements only, not the padding between
// the length and the first element. That padding is written even for
// empty arrays.
func encodeArray(e *fragments.Encoder, a Array, depth int) error {
	if !a.elem.IsSingle() {
		return typeErr(a.Type().str, "array element type %q is not a single complete type", a.elem)
	}
	elem := a.elem.str
	lenOffset := e.Len()
	e.Uint32(0)
	if _, err := encodeValue(e, nil, elem, depth+1); err != nil {
		return err
	}
	start := e.Len()

	if sz, ok := a.fixedSize(); ok {
		n := len(a.block)
		if n > MaxArrayLen {
			return wireErr(lenOffset, "array of %d bytes exceeds maximum of %d", n, MaxArrayLen)
		}
		if n%sz != 0 {
			return typeErr(a.Type().str, "block of %d bytes is not a multiple of element size %d", n, sz)
		}
		out := e.Extend(n)
		copy(out, a.block)
		if sz > 1 && !sameOrder(a.ord, e.Order) {
			swapBlock(out, sz)
		}
		e.PutUint32At(lenOffset, uint32(n))
		return nil
	}

	for _, item := range a.items {
		if _, err := encodeValue(e, item, elem, depth+1); err != nil {
			return err
		}
		if n := e.Len() - start; n > MaxArrayLen {
			return wireErr(lenOffset, "array of at least %d bytes exceeds maximum of %d", n, MaxArrayLen)
		}
	}
	e.PutUint32At(lenOffset, uint32(e.Len()-start))
	return nil
}
