// Package dbustest generates random DBus values and messages for
// tests.
//
// Generators are deterministic for a given seed, so failing tests can
// be reproduced.
package dbustest

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/danderson/dbuswire"
)

// Gen is a source of random DBus types, values and messages.
type Gen struct {
	r *rand.Rand

	// MaxDepth is the maximum container nesting of generated types.
	MaxDepth int
	// MaxItems is the maximum number of items in generated arrays,
	// struct fields and message body values.
	MaxItems int
}

// New returns a generator seeded with seed.
func New(seed uint64) *Gen {
	return &Gen{
		r:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		MaxDepth: 4,
		MaxItems: 4,
	}
}

const (
	basicCodes = "ybnqiuxtdsogh"
	// maxTypeLen keeps generated signatures well within the 255 byte
	// limit, even when several are concatenated into a message body.
	maxTypeLen = 48
)

// Type returns a random single complete type.
func (g *Gen) Type() dbus.Signature {
	return dbus.MustParseSignature(g.boundedType(g.MaxDepth))
}

func (g *Gen) boundedType(depth int) string {
	for {
		if s := g.typ(depth); len(s) <= maxTypeLen {
			return s
		}
	}
}

func (g *Gen) basicType() string {
	return string(basicCodes[g.r.IntN(len(basicCodes))])
}

func (g *Gen) typ(depth int) string {
	if depth <= 0 {
		return g.basicType()
	}
	switch g.r.IntN(10) {
	case 0, 1:
		return "a" + g.typ(depth-1)
	case 2:
		return "a{" + g.basicType() + g.typ(depth-1) + "}"
	case 3, 4:
		n := 1 + g.r.IntN(g.MaxItems)
		var b strings.Builder
		b.WriteByte('(')
		for range n {
			b.WriteString(g.typ(depth - 1))
		}
		b.WriteByte(')')
		return b.String()
	case 5:
		return "v"
	default:
		return g.basicType()
	}
}

// Value returns a random value of a random type.
func (g *Gen) Value() dbus.Value {
	return g.ValueOf(g.Type())
}

// ValueOf returns a random value of type sig, which must be a single
// complete type.
func (g *Gen) ValueOf(sig dbus.Signature) dbus.Value {
	v, rest := g.value(sig.String(), g.MaxDepth)
	if rest != "" {
		panic(fmt.Sprintf("ValueOf(%q): not a single complete type", sig))
	}
	return v
}

// value returns a random value of the first complete type in sig,
// and the remainder of sig.
func (g *Gen) value(sig string, depth int) (dbus.Value, string) {
	c, rest := sig[0], sig[1:]
	switch c {
	case 'y':
		return dbus.Byte(g.r.Uint32()), rest
	case 'b':
		return dbus.Bool(g.r.IntN(2) == 1), rest
	case 'n':
		return dbus.Int16(g.r.Int32()), rest
	case 'q':
		return dbus.Uint16(g.r.Uint32()), rest
	case 'i':
		return dbus.Int32(g.r.Int32()), rest
	case 'u':
		return dbus.Uint32(g.r.Uint32()), rest
	case 'x':
		return dbus.Int64(g.r.Int64()), rest
	case 't':
		return dbus.Uint64(g.r.Uint64()), rest
	case 'd':
		return dbus.Double(g.r.NormFloat64() * 1e6), rest
	case 'h':
		return dbus.Handle(g.r.IntN(8)), rest
	case 's':
		return dbus.String(g.Text()), rest
	case 'o':
		return g.ObjectPath(), rest
	case 'g':
		if depth <= 0 {
			return dbus.MustParseSignature(g.basicType()), rest
		}
		return dbus.MustParseSignature(g.boundedType(depth - 1)), rest
	case 'v':
		if depth <= 0 {
			v, _ := g.value(g.basicType(), 0)
			return dbus.Variant{Value: v}, rest
		}
		v, _ := g.value(g.boundedType(depth-1), depth-1)
		return dbus.Variant{Value: v}, rest
	case 'a':
		elem := firstType(rest)
		var items []dbus.Value
		for range g.r.IntN(g.MaxItems + 1) {
			v, _ := g.value(elem, depth-1)
			items = append(items, v)
		}
		arr, err := dbus.NewArray(dbus.MustParseSignature(elem), items...)
		if err != nil {
			panic(fmt.Sprintf("generated invalid array of %q: %v", elem, err))
		}
		return arr, rest[len(elem):]
	case '{':
		k, rest := g.value(rest, depth-1)
		v, rest := g.value(rest, depth-1)
		return dbus.DictEntry{Key: k, Value: v}, rest[1:]
	case '(':
		var ret dbus.Struct
		for rest[0] != ')' {
			var v dbus.Value
			v, rest = g.value(rest, depth-1)
			ret = append(ret, v)
		}
		return ret, rest[1:]
	default:
		panic(fmt.Sprintf("unknown type code %q", c))
	}
}

// firstType returns the first complete type in sig.
func firstType(sig string) string {
	switch sig[0] {
	case 'a':
		return "a" + firstType(sig[1:])
	case '(', '{':
		depth := 0
		for i := range len(sig) {
			switch sig[i] {
			case '(', '{':
				depth++
			case ')', '}':
				depth--
				if depth == 0 {
					return sig[:i+1]
				}
			}
		}
		panic(fmt.Sprintf("unterminated container in %q", sig))
	default:
		return sig[:1]
	}
}

const stringRunes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 _-./'\"\\\n\téüß→日本語🐀"

// Text returns a random valid DBus string.
func (g *Gen) Text() string {
	runes := []rune(stringRunes)
	n := g.r.IntN(24)
	var b strings.Builder
	for range n {
		b.WriteRune(runes[g.r.IntN(len(runes))])
	}
	return b.String()
}

const nameChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ_"

func (g *Gen) element() string {
	n := 1 + g.r.IntN(8)
	var b strings.Builder
	for i := range n {
		if i > 0 && g.r.IntN(4) == 0 {
			b.WriteByte(byte('0' + g.r.IntN(10)))
			continue
		}
		b.WriteByte(nameChars[g.r.IntN(len(nameChars))])
	}
	return b.String()
}

// ObjectPath returns a random valid object path.
func (g *Gen) ObjectPath() dbus.ObjectPath {
	n := g.r.IntN(4)
	if n == 0 {
		return "/"
	}
	var b strings.Builder
	for range n {
		b.WriteByte('/')
		b.WriteString(g.element())
	}
	return dbus.ObjectPath(b.String())
}

// InterfaceName returns a random valid interface name.
func (g *Gen) InterfaceName() string {
	n := 2 + g.r.IntN(3)
	parts := make([]string, n)
	for i := range parts {
		parts[i] = g.element()
	}
	return strings.Join(parts, ".")
}

// MemberName returns a random valid member name.
func (g *Gen) MemberName() string {
	return g.element()
}

// BusName returns a random valid bus name, which may be a unique
// name.
func (g *Gen) BusName() string {
	if g.r.IntN(2) == 0 {
		return fmt.Sprintf(":%d.%d", g.r.IntN(10), g.r.IntN(1000))
	}
	return g.InterfaceName()
}

// Message returns a random valid message, of a random known type.
func (g *Gen) Message() *dbus.Message {
	typ := dbus.MessageType(1 + g.r.IntN(4))
	m := dbus.NewMessage(typ)
	if g.r.IntN(2) == 0 {
		m.SetByteOrder(dbus.BigEndian)
	} else {
		m.SetByteOrder(dbus.LittleEndian)
	}
	m.SetFlags(dbus.Flags(g.r.IntN(8)))
	m.SetSerial(1 + g.r.Uint32N(1<<31))

	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	switch typ {
	case dbus.MethodCallMessage:
		must(m.SetPath(g.ObjectPath()))
		must(m.SetMember(g.MemberName()))
		if g.r.IntN(2) == 0 {
			must(m.SetInterface(g.InterfaceName()))
		}
		if g.r.IntN(2) == 0 {
			must(m.SetDestination(g.BusName()))
		}
	case dbus.MethodReturnMessage:
		m.SetReplySerial(1 + g.r.Uint32N(1<<31))
	case dbus.ErrorMessage:
		must(m.SetErrorName(g.InterfaceName()))
		m.SetReplySerial(1 + g.r.Uint32N(1<<31))
	case dbus.SignalMessage:
		must(m.SetPath(g.ObjectPath()))
		must(m.SetInterface(g.InterfaceName()))
		must(m.SetMember(g.MemberName()))
	}
	if g.r.IntN(2) == 0 {
		must(m.SetSender(g.BusName()))
	}

	var body []dbus.Value
	for range g.r.IntN(g.MaxItems + 1) {
		body = append(body, g.Value())
	}
	must(m.SetBody(body...))
	return m
}
