package dbus

import (
	"bytes"
	"errors"
	"math"

	"github.com/danderson/dbuswire/fragments"
)

// decodeValue reads a value of type sig from d.
//
// sig must be a single complete type. If justAlign is set,
// decodeValue only consumes the padding that a value of type sig
// would need, and returns a nil Value.
func decodeValue(d *fragments.Decoder, sig string, justAlign bool, depth int) (Value, error) {
	start := d.Offset()
	if depth > maxDepth {
		return nil, wireErr(start, "values nested deeper than %d", maxDepth)
	}
	if justAlign {
		if err := d.Pad(alignOf(sig[0])); err != nil {
			return nil, wireAt(start, err)
		}
		return nil, nil
	}

	switch sig[0] {
	case 'y':
		u8, err := d.Uint8()
		if err != nil {
			return nil, wireAt(start, err)
		}
		return Byte(u8), nil
	case 'b':
		u32, err := d.Uint32()
		if err != nil {
			return nil, wireAt(start, err)
		}
		return Bool(u32 != 0), nil
	case 'n', 'q':
		u16, err := d.Uint16()
		if err != nil {
			return nil, wireAt(start, err)
		}
		if sig[0] == 'n' {
			return Int16(u16), nil
		}
		return Uint16(u16), nil
	case 'i', 'u', 'h':
		u32, err := d.Uint32()
		if err != nil {
			return nil, wireAt(start, err)
		}
		switch sig[0] {
		case 'i':
			return Int32(u32), nil
		case 'u':
			return Uint32(u32), nil
		default:
			return Handle(u32), nil
		}
	case 'x', 't', 'd':
		u64, err := d.Uint64()
		if err != nil {
			return nil, wireAt(start, err)
		}
		switch sig[0] {
		case 'x':
			return Int64(u64), nil
		case 't':
			return Uint64(u64), nil
		default:
			return Double(math.Float64frombits(u64)), nil
		}
	case 's', 'o':
		s, err := d.String()
		if err != nil {
			return nil, wireAt(start, err)
		}
		if sig[0] == 's' {
			if err := validateString(s); err != nil {
				return nil, textAt(start, err)
			}
			return String(s), nil
		}
		if err := validateObjectPath(s); err != nil {
			return nil, textAt(start, err)
		}
		return ObjectPath(s), nil
	case 'g':
		s, err := d.Signature()
		if err != nil {
			return nil, wireAt(start, err)
		}
		ret, err := ParseSignature(s)
		if err != nil {
			return nil, textAt(start, err)
		}
		return ret, nil
	case 'v':
		s, err := d.Signature()
		if err != nil {
			return nil, wireAt(start, err)
		}
		inner, err := ParseSignature(s)
		if err != nil {
			return nil, textAt(start, err)
		}
		if !inner.IsSingle() {
			return nil, textAt(start, textErr("variant signature", s, errors.New("not a single complete type")))
		}
		v, err := decodeValue(d, inner.str, false, depth+1)
		if err != nil {
			return nil, err
		}
		return Variant{v}, nil
	case 'a':
		return decodeArray(d, sig[1:], depth)
	case '(':
		if err := d.Pad(8); err != nil {
			return nil, wireAt(start, err)
		}
		var ret Struct
		for rest := sig[1 : len(sig)-1]; rest != ""; {
			var field string
			field, rest = nextType(rest)
			v, err := decodeValue(d, field, false, depth+1)
			if err != nil {
				return nil, err
			}
			ret = append(ret, v)
		}
		return ret, nil
	case '{':
		if err := d.Pad(8); err != nil {
			return nil, wireAt(start, err)
		}
		key, err := decodeValue(d, sig[1:2], false, depth+1)
		if err != nil {
			return nil, err
		}
		val, err := decodeValue(d, sig[2:len(sig)-1], false, depth+1)
		if err != nil {
			return nil, err
		}
		return DictEntry{key, val}, nil
	default:
		return nil, wireErr(start, "unknown type code %q", sig[0])
	}
}

// decodeArray reads an array of elem from d. The array's type code
// has been consumed from the signature but nothing has been read.
func decodeArray(d *fragments.Decoder, elem string, depth int) (Value, error) {
	start := d.Offset()
	ln, err := d.Uint32()
	if err != nil {
		return nil, wireAt(start, err)
	}
	if ln > MaxArrayLen {
		return nil, wireErr(start, "array length %d exceeds maximum of %d", ln, MaxArrayLen)
	}
	n := int(ln)
	// The padding before the first element is not included in the
	// array length, and is present even if the array is empty.
	if _, err := decodeValue(d, elem, true, depth+1); err != nil {
		return nil, err
	}
	elemSig := Signature{elem}

	if sz, ok := fixedSize[elem[0]]; ok {
		if n%sz != 0 {
			return nil, wireErr(start, "array length %d is not a multiple of element size %d", n, sz)
		}
		off := d.Offset()
		bs, err := d.Read(n)
		if err != nil {
			return nil, wireAt(off, err)
		}
		ret := Array{elem: elemSig, ord: d.Order}
		if n > 0 {
			// bs aliases the input, which the caller may reuse.
			ret.block = bytes.Clone(bs)
		}
		return ret, nil
	}

	if n > d.Remaining() {
		off := d.Offset()
		err := &fragments.TruncatedError{Offset: off, Want: n, Have: d.Remaining()}
		return nil, wireAt(off, err)
	}
	end := d.Offset() + n
	var items []Value
	for d.Offset() < end {
		v, err := decodeValue(d, elem, false, depth+1)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if d.Offset() != end {
		return nil, wireErr(start, "array elements overran declared length %d by %d bytes", n, d.Offset()-end)
	}
	return Array{elem: elemSig, items: items}, nil
}

// wireAt wraps a wire decoding error from the fragments package with
// the offset of the value being decoded.
func wireAt(offset int, err error) error {
	var we *WireError
	if errors.As(err, &we) {
		return err
	}
	return &WireError{offset, err}
}

// textAt returns err with its offset set to offset, if err is a
// TextError. TextErrors may be shared by the signature cache, so err
// is copied rather than modified.
func textAt(offset int, err error) error {
	var te *TextError
	if !errors.As(err, &te) {
		return err
	}
	ret := *te
	ret.Offset = offset
	return &ret
}
