package dbus

import (
	"errors"
	"fmt"
)

// Signature limits imposed by the DBus specification.
const (
	maxSignatureLen = 255
	maxArrayDepth   = 32
	maxStructDepth  = 32
)

// A Signature describes the type of a sequence of zero or more DBus
// values.
//
// Signature is also a [Value], holding a type signature on the
// wire. Its Type method reports the DBus type of that value ("g"),
// not the type the signature describes.
//
// The zero Signature is the empty signature, which describes no
// values. Signatures are comparable with ==.
type Signature struct {
	str string
}

var (
	sigByte       = Signature{"y"}
	sigBool       = Signature{"b"}
	sigInt16      = Signature{"n"}
	sigUint16     = Signature{"q"}
	sigInt32      = Signature{"i"}
	sigUint32     = Signature{"u"}
	sigInt64      = Signature{"x"}
	sigUint64     = Signature{"t"}
	sigDouble     = Signature{"d"}
	sigString     = Signature{"s"}
	sigObjectPath = Signature{"o"}
	sigSignature  = Signature{"g"}
	sigHandle     = Signature{"h"}
	sigVariant    = Signature{"v"}
)

var strToSignature cache[string, Signature]

// ParseSignature parses a DBus type signature string.
func ParseSignature(sig string) (Signature, error) {
	if ret, err := strToSignature.Get(sig); !errors.Is(err, errNotFound) {
		return ret, err
	}
	if err := validateSignature(sig); err != nil {
		err := textErr("type signature", sig, err)
		strToSignature.SetErr(sig, err)
		return Signature{}, err
	}
	ret := Signature{sig}
	strToSignature.Set(sig, ret)
	return ret, nil
}

// MustParseSignature is like [ParseSignature], but panics if sig is
// not a valid signature.
func MustParseSignature(sig string) Signature {
	ret, err := ParseSignature(sig)
	if err != nil {
		panic(err)
	}
	return ret
}

// String returns the string encoding of the Signature, as described
// in the DBus specification.
func (s Signature) String() string {
	return s.str
}

// IsZero reports whether the signature is empty.
func (s Signature) IsZero() bool {
	return s.str == ""
}

// Equal reports whether s and o describe the same types.
func (s Signature) Equal(o Signature) bool {
	return s.str == o.str
}

// IsSingle reports whether s describes exactly one complete type.
func (s Signature) IsSingle() bool {
	if s.str == "" {
		return false
	}
	n, err := parseOne(s.str, 0, 0, false)
	return err == nil && n == len(s.str)
}

// Types splits s into its sequence of complete types.
func (s Signature) Types() []Signature {
	var ret []Signature
	for rest := s.str; rest != ""; {
		var one string
		one, rest = nextType(rest)
		ret = append(ret, Signature{one})
	}
	return ret
}

// Type returns the DBus type of s as a value, which is always "g".
func (Signature) Type() Signature { return sigSignature }

func (Signature) isValue() {}

// isBasic reports whether s is a single basic type, which can be
// used as a dict key.
func isBasic(s Signature) bool {
	return len(s.str) == 1 && basicCodes.Has(s.str[0])
}

// nextType splits a valid signature string into its first complete
// type and the remainder.
func nextType(sig string) (first, rest string) {
	n, err := parseOne(sig, 0, 0, false)
	if err != nil {
		// Signatures are validated before they get here.
		panic(fmt.Sprintf("nextType on invalid signature %q: %v", sig, err))
	}
	return sig[:n], sig[n:]
}

// validateSignature checks that sig is a sequence of zero or more
// well-formed complete types.
func validateSignature(sig string) error {
	if len(sig) > maxSignatureLen {
		return fmt.Errorf("length %d exceeds maximum of %d", len(sig), maxSignatureLen)
	}
	for i := 0; i < len(sig); {
		n, err := parseOne(sig[i:], 0, 0, false)
		if err != nil {
			return fmt.Errorf("at position %d: %w", i, err)
		}
		i += n
	}
	return nil
}

// parseOne returns the length of the first complete type at the front
// of sig. arrays and structs are the nesting depths of the enclosing
// containers, and inArray reports whether sig immediately follows an
// array type code.
func parseOne(sig string, arrays, structs int, inArray bool) (int, error) {
	if sig == "" {
		return 0, errors.New("missing type")
	}
	c := sig[0]
	if basicCodes.Has(c) || c == 'v' {
		return 1, nil
	}

	switch c {
	case 'a':
		if arrays >= maxArrayDepth {
			return 0, fmt.Errorf("arrays nested deeper than %d", maxArrayDepth)
		}
		n, err := parseOne(sig[1:], arrays+1, structs, true)
		if err != nil {
			return 0, err
		}
		return n + 1, nil
	case '(':
		if structs >= maxStructDepth {
			return 0, fmt.Errorf("structs nested deeper than %d", maxStructDepth)
		}
		i := 1
		for i < len(sig) && sig[i] != ')' {
			n, err := parseOne(sig[i:], arrays, structs+1, false)
			if err != nil {
				return 0, err
			}
			i += n
		}
		if i == len(sig) {
			return 0, errors.New("missing closing ) in struct definition")
		}
		if i == 1 {
			return 0, errors.New("empty struct")
		}
		return i + 1, nil
	case '{':
		if !inArray {
			return 0, errors.New("dict entry type found outside array")
		}
		if structs >= maxStructDepth {
			return 0, fmt.Errorf("structs nested deeper than %d", maxStructDepth)
		}
		if len(sig) < 2 || !basicCodes.Has(sig[1]) {
			return 0, errors.New("dict entry key must be a basic type")
		}
		n, err := parseOne(sig[2:], arrays, structs+1, false)
		if err != nil {
			return 0, err
		}
		i := 2 + n
		if i >= len(sig) || sig[i] != '}' {
			return 0, errors.New("missing closing } in dict entry definition")
		}
		return i + 1, nil
	case ')', '}':
		return 0, fmt.Errorf("unexpected %q", c)
	default:
		return 0, fmt.Errorf("unknown type specifier %q", c)
	}
}
