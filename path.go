package dbus

import "strings"

// ObjectPath is the path of an object exported on the bus, such as
// "/org/freedesktop/DBus".
type ObjectPath string

func (ObjectPath) Type() Signature { return sigObjectPath }

func (ObjectPath) isValue() {}

// Valid reports whether p is a well-formed object path.
func (p ObjectPath) Valid() bool {
	return validateObjectPath(string(p)) == nil
}

// IsChildOf reports whether p is a strict descendant of parent.
func (p ObjectPath) IsChildOf(parent ObjectPath) bool {
	if parent == "/" {
		return p != "/" && strings.HasPrefix(string(p), "/")
	}
	return strings.HasPrefix(string(p), string(parent)+"/")
}

// localPath is reserved for messages synthesized by a local DBus
// implementation. It must never appear on the wire in a signal.
const localPath ObjectPath = "/org/freedesktop/DBus/Local"
