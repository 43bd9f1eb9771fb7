package dbus

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/creachadair/mds/value"
)

// maxMatchArgs is the number of body arguments a match rule can test.
const maxMatchArgs = 64

// Match is a filter that matches DBus messages, using the semantics
// of DBus match rules.
type Match struct {
	typ          value.Maybe[MessageType]
	sender       value.Maybe[string]
	iface        value.Maybe[string]
	member       value.Maybe[string]
	destination  value.Maybe[string]
	object       value.Maybe[ObjectPath]
	objectPrefix value.Maybe[ObjectPath]
	argStr       map[int]string
	argPath      map[int]string
	arg0NS       value.Maybe[string]
}

// NewMatch returns a Match that matches all messages.
func NewMatch() *Match {
	return &Match{}
}

// Type restricts the match to messages of type t.
func (m *Match) Type(t MessageType) *Match {
	m.typ = value.Just(t)
	return m
}

// Sender restricts the match to messages from sender.
func (m *Match) Sender(sender string) *Match {
	m.sender = value.Just(sender)
	return m
}

// Interface restricts the match to messages with the given
// INTERFACE header.
func (m *Match) Interface(iface string) *Match {
	m.iface = value.Just(iface)
	return m
}

// Member restricts the match to messages with the given MEMBER
// header.
func (m *Match) Member(member string) *Match {
	m.member = value.Just(member)
	return m
}

// Destination restricts the match to messages addressed to dest.
func (m *Match) Destination(dest string) *Match {
	m.destination = value.Just(dest)
	return m
}

// Object restricts the match to a single object path.
func (m *Match) Object(o ObjectPath) *Match {
	m.objectPrefix = value.Absent[ObjectPath]()
	m.object = value.Just(o)
	return m
}

// ObjectPrefix restricts the match to objects rooted at the given
// path prefix.
//
// For example, ObjectPrefix("/mascots/gopher") matches messages for
// /mascots/gopher, /mascots/gopher/plushie,
// /mascots/gopher/art/renee-french, but not /mascots/glenda.
func (m *Match) ObjectPrefix(o ObjectPath) *Match {
	m.object = value.Absent[ObjectPath]()
	if o == "/" {
		// / matches every path, same as no path match.
		m.objectPrefix = value.Absent[ObjectPath]()
	} else {
		m.objectPrefix = value.Just(o)
	}
	return m
}

// ArgStr restricts the match to messages whose i-th body value is a
// string equal to val.
func (m *Match) ArgStr(i int, val string) *Match {
	if i < 0 || i >= maxMatchArgs {
		panic(fmt.Errorf("invalid ArgStr match on arg %d, must be in [0,%d)", i, maxMatchArgs))
	}
	if m.argStr == nil {
		m.argStr = map[int]string{}
	}
	m.argStr[i] = val
	return m
}

// ArgPathPrefix restricts the match to messages whose i-th body value
// is a string or object path that is path-compatible with val: equal
// to val, or a prefix of val ending in /, or having val as a prefix
// if val ends in /.
func (m *Match) ArgPathPrefix(i int, val string) *Match {
	if i < 0 || i >= maxMatchArgs {
		panic(fmt.Errorf("invalid ArgPathPrefix match on arg %d, must be in [0,%d)", i, maxMatchArgs))
	}
	if m.argPath == nil {
		m.argPath = map[int]string{}
	}
	m.argPath[i] = val
	return m
}

// Arg0Namespace restricts the match to messages whose first body
// value is a bus or interface name with the given dot-separated
// prefix.
func (m *Match) Arg0Namespace(val string) *Match {
	m.arg0NS = value.Just(val)
	return m
}

var matchTypeNames = map[MessageType]string{
	MethodCallMessage:   "method_call",
	MethodReturnMessage: "method_return",
	ErrorMessage:        "error",
	SignalMessage:       "signal",
}

// String returns the match in the DBus match rule format.
func (m *Match) String() string {
	var ms []string
	kv := func(k string, v string) {
		ms = append(ms, fmt.Sprintf("%s=%s", k, escapeMatchArg(v)))
	}

	if t, ok := m.typ.GetOK(); ok {
		kv("type", matchTypeNames[t])
	}
	if s, ok := m.sender.GetOK(); ok {
		kv("sender", s)
	}
	if s, ok := m.iface.GetOK(); ok {
		kv("interface", s)
	}
	if s, ok := m.member.GetOK(); ok {
		kv("member", s)
	}
	if o, ok := m.object.GetOK(); ok {
		kv("path", string(o))
	}
	if p, ok := m.objectPrefix.GetOK(); ok {
		kv("path_namespace", string(p))
	}
	if s, ok := m.destination.GetOK(); ok {
		kv("destination", s)
	}
	for _, i := range slices.Sorted(maps.Keys(m.argStr)) {
		kv(fmt.Sprintf("arg%d", i), m.argStr[i])
	}
	for _, i := range slices.Sorted(maps.Keys(m.argPath)) {
		kv(fmt.Sprintf("arg%dpath", i), m.argPath[i])
	}
	if n, ok := m.arg0NS.GetOK(); ok {
		kv("arg0namespace", n)
	}

	return strings.Join(ms, ",")
}

// Matches reports whether msg matches the filter.
func (m *Match) Matches(msg *Message) bool {
	if t, ok := m.typ.GetOK(); ok && msg.Type() != t {
		return false
	}
	if s, ok := m.sender.GetOK(); ok && msg.Sender() != s {
		return false
	}
	if s, ok := m.iface.GetOK(); ok && msg.Interface() != s {
		return false
	}
	if s, ok := m.member.GetOK(); ok && msg.Member() != s {
		return false
	}
	if s, ok := m.destination.GetOK(); ok && msg.Destination() != s {
		return false
	}
	if o, ok := m.object.GetOK(); ok && msg.Path() != o {
		return false
	}
	if p, ok := m.objectPrefix.GetOK(); ok && msg.Path() != p && !msg.Path().IsChildOf(p) {
		return false
	}

	body := msg.Body()
	for i, want := range m.argStr {
		if i >= len(body) {
			return false
		}
		if got, ok := body[i].(String); !ok || string(got) != want {
			return false
		}
	}
	for i, want := range m.argPath {
		if i >= len(body) {
			return false
		}
		var got string
		switch v := body[i].(type) {
		case String:
			got = string(v)
		case ObjectPath:
			got = string(v)
		default:
			return false
		}
		if !pathCompatible(got, want) {
			return false
		}
	}
	if n, ok := m.arg0NS.GetOK(); ok {
		if len(body) == 0 {
			return false
		}
		got, ok := body[0].(String)
		if !ok || (string(got) != n && !strings.HasPrefix(string(got), n+".")) {
			return false
		}
	}

	return true
}

// pathCompatible reports whether a and b are equal, or one is a
// prefix of the other and the prefix ends with /.
func pathCompatible(a, b string) bool {
	if a == b {
		return true
	}
	if strings.HasSuffix(a, "/") && strings.HasPrefix(b, a) {
		return true
	}
	return strings.HasSuffix(b, "/") && strings.HasPrefix(a, b)
}

func escapeMatchArg(s string) string {
	s = strings.ReplaceAll(s, "'", "'\\''")
	return "'" + s + "'"
}

// ParseMatch parses a DBus match rule, such as
// "type='signal',interface='org.freedesktop.DBus'".
func ParseMatch(rule string) (*Match, error) {
	ret := NewMatch()
	for rest := rule; rest != ""; {
		var key, val string
		var err error
		key, val, rest, err = nextMatchPair(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid match rule %q: %w", rule, err)
		}
		if err := ret.set(key, val); err != nil {
			return nil, fmt.Errorf("invalid match rule %q: %w", rule, err)
		}
	}
	return ret, nil
}

// nextMatchPair consumes one key=value pair from the front of rule.
//
// Values may be quoted with single quotes. Outside of quotes, \' is
// a literal single quote. Within quotes, there is no escaping.
func nextMatchPair(rule string) (key, val, rest string, err error) {
	rule = strings.TrimLeft(rule, " ")
	key, rest, ok := strings.Cut(rule, "=")
	if !ok {
		return "", "", "", fmt.Errorf("missing = after %q", rule)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", "", errors.New("empty key")
	}

	var (
		b      strings.Builder
		quoted bool
		i      int
	)
	for i = 0; i < len(rest); i++ {
		c := rest[i]
		switch {
		case c == '\'':
			quoted = !quoted
		case !quoted && c == '\\' && i+1 < len(rest) && rest[i+1] == '\'':
			b.WriteByte('\'')
			i++
		case !quoted && c == ',':
			return key, b.String(), rest[i+1:], nil
		default:
			b.WriteByte(c)
		}
	}
	if quoted {
		return "", "", "", fmt.Errorf("unterminated quote in value of %s", key)
	}
	return key, b.String(), "", nil
}

func (m *Match) set(key, val string) error {
	switch key {
	case "type":
		for t, name := range matchTypeNames {
			if name == val {
				m.Type(t)
				return nil
			}
		}
		return fmt.Errorf("unknown message type %q", val)
	case "sender":
		m.Sender(val)
	case "interface":
		m.Interface(val)
	case "member":
		m.Member(val)
	case "destination":
		m.Destination(val)
	case "path":
		m.Object(ObjectPath(val))
	case "path_namespace":
		m.ObjectPrefix(ObjectPath(val))
	case "arg0namespace":
		m.Arg0Namespace(val)
	default:
		if !strings.HasPrefix(key, "arg") {
			return fmt.Errorf("unknown key %q", key)
		}
		num, isPath := strings.CutSuffix(key[3:], "path")
		i, err := strconv.Atoi(num)
		if err != nil || i < 0 || i >= maxMatchArgs {
			return fmt.Errorf("unknown key %q", key)
		}
		if isPath {
			m.ArgPathPrefix(i, val)
		} else {
			m.ArgStr(i, val)
		}
	}
	return nil
}
