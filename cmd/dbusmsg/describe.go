package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/danderson/dbuswire"
	"gopkg.in/yaml.v3"
)

// messageDesc is the YAML description of a message.
//
// Body values are given as YAML nodes, and interpreted according to
// Signature. Basic values are scalars, arrays and structs are
// sequences, dictionaries are mappings, and variants are mappings
// with "type" and "value" keys. A byte array may also be given as a
// plain string.
type messageDesc struct {
	Type        string    `yaml:"type"`
	Order       string    `yaml:"order"`
	Flags       []string  `yaml:"flags"`
	Serial      uint32    `yaml:"serial"`
	Path        string    `yaml:"path"`
	Interface   string    `yaml:"interface"`
	Member      string    `yaml:"member"`
	ErrorName   string    `yaml:"error_name"`
	ReplySerial uint32    `yaml:"reply_serial"`
	Destination string    `yaml:"destination"`
	Sender      string    `yaml:"sender"`
	Signature   string    `yaml:"signature"`
	Body        yaml.Node `yaml:"body"`
}

var typeNames = map[string]dbus.MessageType{
	"method_call":   dbus.MethodCallMessage,
	"method_return": dbus.MethodReturnMessage,
	"error":         dbus.ErrorMessage,
	"signal":        dbus.SignalMessage,
}

var flagNames = map[string]dbus.Flags{
	"no-reply-expected":               dbus.FlagNoReplyExpected,
	"no-auto-start":                   dbus.FlagNoAutoStart,
	"allow-interactive-authorization": dbus.FlagAllowInteractiveAuthorization,
}

// loadMessages reads all the message descriptions in r, which may
// hold several YAML documents. Messages with no serial are numbered
// by their position in the stream, starting at 1.
func loadMessages(r io.Reader, order dbus.ByteOrder) ([]*dbus.Message, error) {
	var ret []*dbus.Message
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	for {
		var desc messageDesc
		err := dec.Decode(&desc)
		if errors.Is(err, io.EOF) {
			return ret, nil
		} else if err != nil {
			return nil, fmt.Errorf("message %d: %w", len(ret)+1, err)
		}
		m, err := desc.message(order)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", len(ret)+1, err)
		}
		if m.Serial() == 0 {
			m.SetSerial(uint32(len(ret) + 1))
		}
		ret = append(ret, m)
	}
}

func (d *messageDesc) message(order dbus.ByteOrder) (*dbus.Message, error) {
	typ, ok := typeNames[d.Type]
	if !ok {
		return nil, fmt.Errorf("unknown message type %q", d.Type)
	}
	m := dbus.NewMessage(typ)

	switch d.Order {
	case "":
		m.SetByteOrder(order)
	case "little":
		m.SetByteOrder(dbus.LittleEndian)
	case "big":
		m.SetByteOrder(dbus.BigEndian)
	default:
		return nil, fmt.Errorf("unknown byte order %q", d.Order)
	}

	var flags dbus.Flags
	for _, f := range d.Flags {
		v, ok := flagNames[f]
		if !ok {
			return nil, fmt.Errorf("unknown flag %q", f)
		}
		flags |= v
	}
	m.SetFlags(flags)
	m.SetSerial(d.Serial)

	if d.Path != "" {
		if err := m.SetPath(dbus.ObjectPath(d.Path)); err != nil {
			return nil, err
		}
	}
	setters := []struct {
		val string
		set func(string) error
	}{
		{d.Interface, m.SetInterface},
		{d.Member, m.SetMember},
		{d.ErrorName, m.SetErrorName},
		{d.Destination, m.SetDestination},
		{d.Sender, m.SetSender},
	}
	for _, s := range setters {
		if s.val == "" {
			continue
		}
		if err := s.set(s.val); err != nil {
			return nil, err
		}
	}
	if d.ReplySerial != 0 {
		m.SetReplySerial(d.ReplySerial)
	}

	sig, err := dbus.ParseSignature(d.Signature)
	if err != nil {
		return nil, err
	}
	body, err := bodyValues(sig, &d.Body)
	if err != nil {
		return nil, err
	}
	if err := m.SetBody(body...); err != nil {
		return nil, err
	}
	return m, nil
}

func bodyValues(sig dbus.Signature, n *yaml.Node) ([]dbus.Value, error) {
	types := sig.Types()
	if n.Kind == 0 {
		if len(types) > 0 {
			return nil, fmt.Errorf("signature %q needs a body", sig)
		}
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, nodeErr(n, "body must be a sequence")
	}
	if len(n.Content) != len(types) {
		return nil, nodeErr(n, "body has %d values, signature %q wants %d", len(n.Content), sig, len(types))
	}
	ret := make([]dbus.Value, len(types))
	for i, t := range types {
		v, err := nodeValue(t, n.Content[i])
		if err != nil {
			return nil, err
		}
		ret[i] = v
	}
	return ret, nil
}

func nodeErr(n *yaml.Node, format string, args ...any) error {
	return fmt.Errorf("line %d: %s", n.Line, fmt.Sprintf(format, args...))
}

// nodeValue converts n to a value of type t, which must be a single
// complete type.
func nodeValue(t dbus.Signature, n *yaml.Node) (dbus.Value, error) {
	s := t.String()
	switch s[0] {
	case 'a':
		return arrayValue(t, n)
	case '(':
		if n.Kind != yaml.SequenceNode {
			return nil, nodeErr(n, "struct %s must be a sequence", t)
		}
		fields, err := bodyValues(dbus.MustParseSignature(s[1:len(s)-1]), n)
		if err != nil {
			return nil, err
		}
		return dbus.Struct(fields), nil
	case 'v':
		return variantValue(n)
	}

	if n.Kind != yaml.ScalarNode {
		return nil, nodeErr(n, "value of type %s must be a scalar", t)
	}
	ret, err := scalarValue(s[0], n.Value)
	if err != nil {
		return nil, nodeErr(n, "%v", err)
	}
	return ret, nil
}

func scalarValue(code byte, s string) (dbus.Value, error) {
	unsigned := func(bits int) (uint64, error) { return strconv.ParseUint(s, 0, bits) }
	signed := func(bits int) (int64, error) { return strconv.ParseInt(s, 0, bits) }
	switch code {
	case 'y':
		v, err := unsigned(8)
		return dbus.Byte(v), err
	case 'b':
		v, err := strconv.ParseBool(s)
		return dbus.Bool(v), err
	case 'n':
		v, err := signed(16)
		return dbus.Int16(v), err
	case 'q':
		v, err := unsigned(16)
		return dbus.Uint16(v), err
	case 'i':
		v, err := signed(32)
		return dbus.Int32(v), err
	case 'u':
		v, err := unsigned(32)
		return dbus.Uint32(v), err
	case 'x':
		v, err := signed(64)
		return dbus.Int64(v), err
	case 't':
		v, err := unsigned(64)
		return dbus.Uint64(v), err
	case 'd':
		v, err := strconv.ParseFloat(s, 64)
		return dbus.Double(v), err
	case 'h':
		v, err := signed(32)
		return dbus.Handle(v), err
	case 's':
		return dbus.String(s), nil
	case 'o':
		return dbus.ObjectPath(s), nil
	case 'g':
		return dbus.ParseSignature(s)
	default:
		return nil, fmt.Errorf("unknown type code %q", code)
	}
}

func arrayValue(t dbus.Signature, n *yaml.Node) (dbus.Value, error) {
	elem := dbus.MustParseSignature(t.String()[1:])
	es := elem.String()

	if es[0] == '{' {
		if n.Kind != yaml.MappingNode {
			return nil, nodeErr(n, "dict %s must be a mapping", t)
		}
		kv := dbus.MustParseSignature(es[1 : len(es)-1]).Types()
		entries := make([]dbus.DictEntry, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, err := nodeValue(kv[0], n.Content[i])
			if err != nil {
				return nil, err
			}
			v, err := nodeValue(kv[1], n.Content[i+1])
			if err != nil {
				return nil, err
			}
			entries = append(entries, dbus.DictEntry{Key: k, Value: v})
		}
		return dbus.NewDict(kv[0], kv[1], entries...)
	}

	if es == "y" && n.Kind == yaml.ScalarNode {
		return dbus.ByteArray([]byte(n.Value)), nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, nodeErr(n, "array %s must be a sequence", t)
	}
	items := make([]dbus.Value, len(n.Content))
	for i, c := range n.Content {
		v, err := nodeValue(elem, c)
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return dbus.NewArray(elem, items...)
}

func variantValue(n *yaml.Node) (dbus.Value, error) {
	var v struct {
		Type  string    `yaml:"type"`
		Value yaml.Node `yaml:"value"`
	}
	if n.Kind != yaml.MappingNode {
		return nil, nodeErr(n, "variant must be a mapping with type and value")
	}
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	t, err := dbus.ParseSignature(v.Type)
	if err != nil {
		return nil, nodeErr(n, "%v", err)
	}
	if !t.IsSingle() {
		return nil, nodeErr(n, "variant type %q is not a single complete type", t)
	}
	inner, err := nodeValue(t, &v.Value)
	if err != nil {
		return nil, err
	}
	return dbus.Variant{Value: inner}, nil
}
