package dbus

import (
	"errors"
	"fmt"
	"strings"
)

// A Value is a DBus value.
//
// Value is a closed set: the only implementations are the types in
// this package, one per DBus wire type. Container values own their
// children. Values are treated as immutable once constructed, so
// they can be freely shared between messages.
type Value interface {
	// Type returns the DBus type of the value.
	Type() Signature

	isValue()
}

// Basic DBus types.
type (
	Byte   uint8
	Bool   bool
	Int16  int16
	Uint16 uint16
	Int32  int32
	Uint32 uint32
	Int64  int64
	Uint64 uint64
	Double float64
	String string
)

// Handle is an index into the list of file descriptors attached to a
// message.
type Handle int32

func (Byte) Type() Signature   { return sigByte }
func (Bool) Type() Signature   { return sigBool }
func (Int16) Type() Signature  { return sigInt16 }
func (Uint16) Type() Signature { return sigUint16 }
func (Int32) Type() Signature  { return sigInt32 }
func (Uint32) Type() Signature { return sigUint32 }
func (Int64) Type() Signature  { return sigInt64 }
func (Uint64) Type() Signature { return sigUint64 }
func (Double) Type() Signature { return sigDouble }
func (String) Type() Signature { return sigString }
func (Handle) Type() Signature { return sigHandle }

func (Byte) isValue()   {}
func (Bool) isValue()   {}
func (Int16) isValue()  {}
func (Uint16) isValue() {}
func (Int32) isValue()  {}
func (Uint32) isValue() {}
func (Int64) isValue()  {}
func (Uint64) isValue() {}
func (Double) isValue() {}
func (String) isValue() {}
func (Handle) isValue() {}

// Struct is a DBus struct. DBus structs must have at least one
// field.
type Struct []Value

func (s Struct) Type() Signature {
	var b strings.Builder
	b.WriteByte('(')
	for _, f := range s {
		b.WriteString(f.Type().String())
	}
	b.WriteByte(')')
	return Signature{b.String()}
}

func (Struct) isValue() {}

// signature returns the concatenation of the fields' types, which is
// the signature of a message body holding s.
func (s Struct) signature() string {
	var b strings.Builder
	for _, f := range s {
		b.WriteString(f.Type().String())
	}
	return b.String()
}

// DictEntry is a key/value pair in a DBus dictionary. Key must be a
// basic type.
type DictEntry struct {
	Key   Value
	Value Value
}

func (d DictEntry) Type() Signature {
	return Signature{"{" + d.Key.Type().str + d.Value.Type().str + "}"}
}

func (DictEntry) isValue() {}

// errNilValue is returned when a nil Value is found where a value is
// required.
var errNilValue = errors.New("nil Value")

// checkValue verifies that v is a well-formed value: containers hold
// children of the right types, and text values satisfy their
// grammars.
func checkValue(v Value) error {
	switch v := v.(type) {
	case nil:
		return errNilValue
	case Array:
		if !v.elem.IsSingle() {
			return fmt.Errorf("array element type %q is not a single complete type", v.elem)
		}
		if sz, ok := v.fixedSize(); ok {
			if len(v.block)%sz != 0 {
				return fmt.Errorf("array of %q holds %d bytes, not a multiple of %d", v.elem, len(v.block), sz)
			}
			return nil
		}
		for i, item := range v.items {
			if item == nil {
				return fmt.Errorf("array item %d: %w", i, errNilValue)
			}
			if err := checkValue(item); err != nil {
				return err
			}
			if got := item.Type(); got != v.elem {
				return fmt.Errorf("array item %d has type %q, want %q", i, got, v.elem)
			}
		}
	case Struct:
		if len(v) == 0 {
			return errors.New("empty struct")
		}
		for _, f := range v {
			if err := checkValue(f); err != nil {
				return err
			}
		}
	case DictEntry:
		if v.Key == nil || v.Value == nil {
			return fmt.Errorf("dict entry: %w", errNilValue)
		}
		if !isBasic(v.Key.Type()) {
			return fmt.Errorf("dict entry key type %q is not a basic type", v.Key.Type())
		}
		if err := checkValue(v.Key); err != nil {
			return err
		}
		if err := checkValue(v.Value); err != nil {
			return err
		}
	case Variant:
		if v.Value == nil {
			return fmt.Errorf("variant: %w", errNilValue)
		}
		return checkValue(v.Value)
	case String:
		return validateString(string(v))
	case ObjectPath:
		return validateObjectPath(string(v))
	case Signature:
		_, err := ParseSignature(v.str)
		return err
	}
	return nil
}
