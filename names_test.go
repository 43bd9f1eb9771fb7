package dbus_test

import (
	"strings"
	"testing"

	"github.com/danderson/dbuswire"
)

func TestNames(t *testing.T) {
	long := strings.Repeat("a", 200) + "." + strings.Repeat("b", 60)
	tests := []struct {
		in                       string
		bus, unique, iface, memb bool
	}{
		{"org.freedesktop.DBus", true, false, true, false},
		{"org.example-corp.Foo", true, false, false, false},
		{":1.42", true, true, false, false},
		{":1.4-2", true, true, false, false},
		{"a.b", true, false, true, false},
		{"_a.b_c", true, false, true, false},
		{"a", false, false, false, true},
		{"Ping", false, false, false, true},
		{"Ping_2", false, false, false, true},
		{"2Ping", false, false, false, false},
		{"a.1b", false, false, false, false},
		{":a.1b", true, true, false, false},
		{"a..b", false, false, false, false},
		{".a.b", false, false, false, false},
		{"a.b.", false, false, false, false},
		{"", false, false, false, false},
		{":", false, false, false, false},
		{"a.b/c", false, false, false, false},
		{"é.b", false, false, false, false},
		{long, false, false, false, false},
	}
	for _, tc := range tests {
		if got := dbus.IsBusName(tc.in); got != tc.bus {
			t.Errorf("IsBusName(%q) = %v, want %v", tc.in, got, tc.bus)
		}
		if got := dbus.IsUniqueName(tc.in); got != tc.unique {
			t.Errorf("IsUniqueName(%q) = %v, want %v", tc.in, got, tc.unique)
		}
		if got := dbus.IsInterfaceName(tc.in); got != tc.iface {
			t.Errorf("IsInterfaceName(%q) = %v, want %v", tc.in, got, tc.iface)
		}
		if got := dbus.IsErrorName(tc.in); got != tc.iface {
			t.Errorf("IsErrorName(%q) = %v, want %v", tc.in, got, tc.iface)
		}
		if got := dbus.IsMemberName(tc.in); got != tc.memb {
			t.Errorf("IsMemberName(%q) = %v, want %v", tc.in, got, tc.memb)
		}
	}
}

func TestObjectPath(t *testing.T) {
	tests := []struct {
		in    dbus.ObjectPath
		valid bool
	}{
		{"/", true},
		{"/org", true},
		{"/org/freedesktop/DBus", true},
		{"/a_b/C1", true},
		{"", false},
		{"org", false},
		{"/org/", false},
		{"//", false},
		{"/a//b", false},
		{"/a-b", false},
		{"/a.b", false},
	}
	for _, tc := range tests {
		if got := tc.in.Valid(); got != tc.valid {
			t.Errorf("ObjectPath(%q).Valid() = %v, want %v", tc.in, got, tc.valid)
		}
	}

	children := []struct {
		p, parent dbus.ObjectPath
		want      bool
	}{
		{"/a", "/", true},
		{"/", "/", false},
		{"/a/b", "/a", true},
		{"/a", "/a", false},
		{"/ab", "/a", false},
		{"/a/b/c", "/a", true},
	}
	for _, tc := range children {
		if got := tc.p.IsChildOf(tc.parent); got != tc.want {
			t.Errorf("%q.IsChildOf(%q) = %v, want %v", tc.p, tc.parent, got, tc.want)
		}
	}
}
