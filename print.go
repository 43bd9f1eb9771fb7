package dbus

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// nick converts a constant name like METHOD_CALL to the lowercase
// form used when printing messages.
func nick(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", "-")
}

// Print returns a human-readable multi-line description of m, with
// each line indented by indent spaces. Header fields are listed in
// numeric order, and values are printed with their types.
func (m *Message) Print(indent int) string {
	var (
		b   strings.Builder
		pfx = strings.Repeat(" ", indent)
	)
	typ := nick(m.typ.String())
	if m.typ > SignalMessage {
		typ = strconv.Itoa(int(m.typ))
	}
	fmt.Fprintf(&b, "%sType:    %s\n", pfx, typ)
	fmt.Fprintf(&b, "%sFlags:   %s\n", pfx, nick(m.flags.String()))
	fmt.Fprintf(&b, "%sVersion: %d\n", pfx, protocolVersion)
	fmt.Fprintf(&b, "%sSerial:  %d\n", pfx, m.serial)

	fmt.Fprintf(&b, "%sHeaders:\n", pfx)
	fields := slices.Clone(m.fields)
	slices.Sort(fields)
	if len(fields) == 0 {
		fmt.Fprintf(&b, "%s  (none)\n", pfx)
	}
	for _, f := range fields {
		name := strconv.Itoa(int(f))
		if s, ok := fieldNames[f]; ok {
			name = nick(s)
		}
		fmt.Fprintf(&b, "%s  %s -> %s\n", pfx, name, FormatValue(m.headers[f]))
	}

	fmt.Fprintf(&b, "%sBody: ", pfx)
	if m.body == nil {
		b.WriteString("()")
	} else {
		writeValue(&b, m.body)
	}
	b.WriteByte('\n')

	fmt.Fprintf(&b, "%sUNIX File Descriptors:\n", pfx)
	if len(m.files) == 0 {
		fmt.Fprintf(&b, "%s  (none)\n", pfx)
	}
	for _, f := range m.files {
		fmt.Fprintf(&b, "%s  fd %d: %s\n", pfx, fdNumber(f), describeFile(f))
	}
	return b.String()
}

// String returns the same description as [Message.Print], without
// indentation.
func (m *Message) String() string {
	return m.Print(0)
}

// FormatValue returns a textual representation of v, annotated with
// type names where the type would otherwise be ambiguous.
func FormatValue(v Value) string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

func writeValue(b *strings.Builder, v Value) {
	switch v := v.(type) {
	case nil:
		b.WriteString("<nil>")
	case Byte:
		fmt.Fprintf(b, "byte 0x%02x", byte(v))
	case Bool:
		b.WriteString(strconv.FormatBool(bool(v)))
	case Int16:
		fmt.Fprintf(b, "int16 %d", v)
	case Uint16:
		fmt.Fprintf(b, "uint16 %d", v)
	case Int32:
		fmt.Fprintf(b, "%d", v)
	case Uint32:
		fmt.Fprintf(b, "uint32 %d", v)
	case Int64:
		fmt.Fprintf(b, "int64 %d", v)
	case Uint64:
		fmt.Fprintf(b, "uint64 %d", v)
	case Double:
		s := strconv.FormatFloat(float64(v), 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		b.WriteString(s)
	case Handle:
		fmt.Fprintf(b, "handle %d", v)
	case String:
		writeQuoted(b, string(v))
	case ObjectPath:
		b.WriteString("objectpath ")
		writeQuoted(b, string(v))
	case Signature:
		b.WriteString("signature ")
		writeQuoted(b, v.str)
	case Variant:
		b.WriteByte('<')
		writeValue(b, v.Value)
		b.WriteByte('>')
	case Array:
		writeArray(b, v)
	case Struct:
		b.WriteByte('(')
		for i, f := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, f)
		}
		if len(v) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case DictEntry:
		b.WriteByte('{')
		writeValue(b, v.Key)
		b.WriteString(", ")
		writeValue(b, v.Value)
		b.WriteByte('}')
	default:
		fmt.Fprintf(b, "%v", v)
	}
}

func writeArray(b *strings.Builder, a Array) {
	if a.Len() == 0 {
		fmt.Fprintf(b, "@%s []", a.Type())
		return
	}
	isDict := strings.HasPrefix(a.elem.str, "{")
	if isDict {
		b.WriteByte('{')
	} else {
		b.WriteByte('[')
	}
	for i := range a.Len() {
		item := a.Index(i)
		if i > 0 {
			b.WriteString(", ")
		}
		if e, ok := item.(DictEntry); ok && isDict {
			writeValue(b, e.Key)
			b.WriteString(": ")
			writeValue(b, e.Value)
		} else {
			writeValue(b, item)
		}
	}
	if isDict {
		b.WriteByte('}')
	} else {
		b.WriteByte(']')
	}
}

// writeQuoted writes s in single quotes, escaping quotes, backslashes
// and non-printable characters.
func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('\'')
	for _, r := range s {
		switch {
		case r == '\'' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(b, `\u%04x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
}
