package dbus

// Variant is a value boxed with its own type signature. On the wire,
// a variant is the signature of its inner value followed by the value
// itself.
type Variant struct {
	Value Value
}

func (Variant) Type() Signature { return sigVariant }

func (Variant) isValue() {}

// Inner returns the innermost value of v, unwrapping any nested
// variants.
func (v Variant) Inner() Value {
	ret := v.Value
	for {
		inner, ok := ret.(Variant)
		if !ok {
			return ret
		}
		ret = inner.Value
	}
}
