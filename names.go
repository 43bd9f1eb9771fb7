package dbus

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxNameLen is the maximum length of bus, interface, member and
// error names.
const maxNameLen = 255

// localInterface is reserved for messages synthesized by a local
// DBus implementation. It must never appear on the wire in a signal.
const localInterface = "org.freedesktop.DBus.Local"

// validateString checks that s is valid UTF-8 and contains no NUL
// bytes.
func validateString(s string) error {
	if utf8.ValidString(s) && strings.IndexByte(s, 0) < 0 {
		return nil
	}
	for i := 0; i < len(s); {
		r, n := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && n <= 1:
			return textErr("string", s, fmt.Errorf("invalid UTF-8 at byte %d of %d, valid prefix %q", i, len(s), s[:i]))
		case r == 0:
			return textErr("string", s, fmt.Errorf("NUL byte at byte %d of %d, valid prefix %q", i, len(s), s[:i]))
		}
		i += n
	}
	return nil
}

// validateObjectPath checks that p is a well-formed object path.
func validateObjectPath(p string) error {
	if err := objectPathErr(p); err != nil {
		return textErr("object path", p, err)
	}
	return nil
}

func objectPathErr(p string) error {
	if p == "" || p[0] != '/' {
		return errors.New("must begin with /")
	}
	if p == "/" {
		return nil
	}
	for i, elem := range strings.Split(p[1:], "/") {
		if elem == "" {
			return fmt.Errorf("empty path element %d", i)
		}
		for j := 0; j < len(elem); j++ {
			if !isNameChar(elem[j], false) {
				return fmt.Errorf("invalid character %q in path element %q", elem[j], elem)
			}
		}
	}
	return nil
}

// isNameChar reports whether c may appear in a name element. Hyphens
// are permitted only in bus names.
func isNameChar(c byte, hyphen bool) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		return true
	case c == '-':
		return hyphen
	}
	return false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// dottedNameErr checks the grammar shared by bus, interface and error
// names: two or more non-empty dot-separated elements of name
// characters. Elements may only start with a digit if digitStart is
// set.
func dottedNameErr(s string, hyphen, digitStart bool) error {
	if len(s) == 0 {
		return errors.New("empty name")
	}
	if len(s) > maxNameLen {
		return fmt.Errorf("length %d exceeds maximum of %d", len(s), maxNameLen)
	}
	elems := strings.Split(s, ".")
	if len(elems) < 2 {
		return errors.New("must have at least two elements separated by .")
	}
	for _, elem := range elems {
		if elem == "" {
			return errors.New("empty name element")
		}
		if !digitStart && isDigit(elem[0]) {
			return fmt.Errorf("element %q begins with a digit", elem)
		}
		for i := 0; i < len(elem); i++ {
			if !isNameChar(elem[i], hyphen) {
				return fmt.Errorf("invalid character %q in element %q", elem[i], elem)
			}
		}
	}
	return nil
}

func busNameErr(s string) error {
	if strings.HasPrefix(s, ":") {
		if len(s) > maxNameLen {
			return fmt.Errorf("length %d exceeds maximum of %d", len(s), maxNameLen)
		}
		return dottedNameErr(s[1:], true, true)
	}
	return dottedNameErr(s, true, false)
}

func memberNameErr(s string) error {
	if len(s) == 0 {
		return errors.New("empty name")
	}
	if len(s) > maxNameLen {
		return fmt.Errorf("length %d exceeds maximum of %d", len(s), maxNameLen)
	}
	if isDigit(s[0]) {
		return errors.New("begins with a digit")
	}
	for i := 0; i < len(s); i++ {
		if !isNameChar(s[i], false) {
			return fmt.Errorf("invalid character %q", s[i])
		}
	}
	return nil
}

func validateBusName(s string) error {
	if err := busNameErr(s); err != nil {
		return textErr("bus name", s, err)
	}
	return nil
}

func validateInterfaceName(s string) error {
	if err := dottedNameErr(s, false, false); err != nil {
		return textErr("interface name", s, err)
	}
	return nil
}

func validateErrorName(s string) error {
	if err := dottedNameErr(s, false, false); err != nil {
		return textErr("error name", s, err)
	}
	return nil
}

func validateMemberName(s string) error {
	if err := memberNameErr(s); err != nil {
		return textErr("member name", s, err)
	}
	return nil
}

// IsBusName reports whether s is a valid bus name, either well-known
// (org.freedesktop.DBus) or unique (:1.42).
func IsBusName(s string) bool { return busNameErr(s) == nil }

// IsUniqueName reports whether s is a valid unique connection name.
func IsUniqueName(s string) bool { return strings.HasPrefix(s, ":") && IsBusName(s) }

// IsInterfaceName reports whether s is a valid interface name.
func IsInterfaceName(s string) bool { return dottedNameErr(s, false, false) == nil }

// IsErrorName reports whether s is a valid error name. Error names
// follow the interface name grammar.
func IsErrorName(s string) bool { return IsInterfaceName(s) }

// IsMemberName reports whether s is a valid method or signal name.
func IsMemberName(s string) bool { return memberNameErr(s) == nil }
