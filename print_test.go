package dbus_test

import (
	"testing"

	"github.com/danderson/dbuswire"
	"github.com/google/go-cmp/cmp"
)

func TestPrint(t *testing.T) {
	m := pingMessage(t)
	m.SetFlags(dbus.FlagNoAutoStart | dbus.FlagAllowInteractiveAuthorization)
	if err := m.SetSender(":1.7"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetBody(dbus.String("it's"), dbus.Uint32(7), dbus.ByteArray(nil)); err != nil {
		t.Fatal(err)
	}

	want := `  Type:    method-call
  Flags:   no-auto-start|allow-interactive-authorization
  Version: 1
  Serial:  1
  Headers:
    path -> objectpath '/org/example/Obj'
    interface -> 'org.example.Iface'
    member -> 'Ping'
    sender -> ':1.7'
    signature -> signature 'suay'
  Body: ('it\'s', uint32 7, @ay [])
  UNIX File Descriptors:
    (none)
`
	if diff := cmp.Diff(m.Print(2), want); diff != "" {
		t.Errorf("wrong Print output (-got+want):\n%s", diff)
	}
}

func TestFormatValue(t *testing.T) {
	dict, err := dbus.NewDict(dbus.MustParseSignature("s"), dbus.MustParseSignature("v"),
		dbus.DictEntry{Key: dbus.String("a"), Value: dbus.Variant{Value: dbus.Int32(1)}},
		dbus.DictEntry{Key: dbus.String("b"), Value: dbus.Variant{Value: dbus.Bool(true)}})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		in   dbus.Value
		want string
	}{
		{dbus.Byte(42), "byte 0x2a"},
		{dbus.Bool(false), "false"},
		{dbus.Int16(-3), "int16 -3"},
		{dbus.Uint16(3), "uint16 3"},
		{dbus.Int32(-3), "-3"},
		{dbus.Uint32(3), "uint32 3"},
		{dbus.Int64(-3), "int64 -3"},
		{dbus.Uint64(3), "uint64 3"},
		{dbus.Double(2), "2.0"},
		{dbus.Double(0.5), "0.5"},
		{dbus.Handle(1), "handle 1"},
		{dbus.String("a\nb"), `'a\nb'`},
		{dbus.ObjectPath("/a"), "objectpath '/a'"},
		{dbus.MustParseSignature("a{sv}"), "signature 'a{sv}'"},
		{dbus.Variant{Value: dbus.String("x")}, "<'x'>"},
		{dbus.ByteArray([]byte{1, 2}), "[byte 0x01, byte 0x02]"},
		{dbus.Struct{dbus.Int32(1)}, "(1,)"},
		{dbus.Struct{dbus.Int32(1), dbus.String("x")}, "(1, 'x')"},
		{dict, "{'a': <1>, 'b': <true>}"},
	}
	for _, tc := range tests {
		if got := dbus.FormatValue(tc.in); got != tc.want {
			t.Errorf("FormatValue(%#v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
