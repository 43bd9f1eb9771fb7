package dbus

import (
	"fmt"
	"strings"

	"github.com/danderson/dbuswire/fragments"
)

// ByteOrder is the byte order of a message's wire encoding. Its value
// is the byte order flag that begins the encoded message.
type ByteOrder byte

const (
	LittleEndian ByteOrder = 'l'
	BigEndian    ByteOrder = 'B'
)

// NativeEndian is the byte order of the host.
var NativeEndian = ByteOrder(fragments.NativeEndian.Flag())

func (o ByteOrder) String() string {
	switch o {
	case LittleEndian:
		return "little-endian"
	case BigEndian:
		return "big-endian"
	default:
		return fmt.Sprintf("ByteOrder(0x%02x)", byte(o))
	}
}

// fragments returns the fragments byte order for o.
func (o ByteOrder) fragments() (fragments.ByteOrder, bool) {
	return fragments.OrderForFlag(byte(o))
}

// MessageType is the type of a DBus message.
type MessageType byte

const (
	InvalidMessage MessageType = iota
	MethodCallMessage
	MethodReturnMessage
	ErrorMessage
	SignalMessage
)

func (t MessageType) String() string {
	switch t {
	case InvalidMessage:
		return "INVALID"
	case MethodCallMessage:
		return "METHOD_CALL"
	case MethodReturnMessage:
		return "METHOD_RETURN"
	case ErrorMessage:
		return "ERROR"
	case SignalMessage:
		return "SIGNAL"
	default:
		return fmt.Sprintf("MessageType(%d)", byte(t))
	}
}

// Flags is the flag byte of a DBus message.
type Flags byte

const (
	// FlagNoReplyExpected indicates that the sender does not want a
	// reply to a method call.
	FlagNoReplyExpected Flags = 1 << iota
	// FlagNoAutoStart asks the bus not to launch an owner for the
	// destination name if none is running.
	FlagNoAutoStart
	// FlagAllowInteractiveAuthorization indicates that the sender is
	// prepared to wait for an interactive authorization prompt.
	FlagAllowInteractiveAuthorization
)

var flagNames = []struct {
	f    Flags
	name string
}{
	{FlagNoReplyExpected, "NO_REPLY_EXPECTED"},
	{FlagNoAutoStart, "NO_AUTO_START"},
	{FlagAllowInteractiveAuthorization, "ALLOW_INTERACTIVE_AUTHORIZATION"},
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.f != 0 {
			parts = append(parts, fn.name)
			f &^= fn.f
		}
	}
	if f != 0 {
		parts = append(parts, fmt.Sprintf("0x%02x", byte(f)))
	}
	return strings.Join(parts, "|")
}

// HeaderField is the code of a message header field.
type HeaderField byte

const (
	FieldPath HeaderField = iota + 1
	FieldInterface
	FieldMember
	FieldErrorName
	FieldReplySerial
	FieldDestination
	FieldSender
	FieldSignature
	FieldUnixFDs
)

var fieldNames = map[HeaderField]string{
	FieldPath:        "PATH",
	FieldInterface:   "INTERFACE",
	FieldMember:      "MEMBER",
	FieldErrorName:   "ERROR_NAME",
	FieldReplySerial: "REPLY_SERIAL",
	FieldDestination: "DESTINATION",
	FieldSender:      "SENDER",
	FieldSignature:   "SIGNATURE",
	FieldUnixFDs:     "NUM_UNIX_FDS",
}

func (f HeaderField) String() string {
	if s, ok := fieldNames[f]; ok {
		return s
	}
	return fmt.Sprintf("HeaderField(%d)", byte(f))
}

// fieldTypes are the DBus types of the well-known header fields.
var fieldTypes = map[HeaderField]Signature{
	FieldPath:        sigObjectPath,
	FieldInterface:   sigString,
	FieldMember:      sigString,
	FieldErrorName:   sigString,
	FieldReplySerial: sigUint32,
	FieldDestination: sigString,
	FieldSender:      sigString,
	FieldSignature:   sigSignature,
	FieldUnixFDs:     sigUint32,
}

// checkField verifies that v is an acceptable value for header field
// f: well-known fields must have their protocol type, and names must
// follow their grammar. Unknown fields accept any value.
func checkField(f HeaderField, v Value) error {
	want, known := fieldTypes[f]
	if !known {
		return nil
	}
	if got := v.Type(); got != want {
		return textErr("header "+f.String(), fmt.Sprint(v), fmt.Errorf("has type %q, want %q", got, want))
	}
	switch f {
	case FieldInterface:
		return validateInterfaceName(string(v.(String)))
	case FieldMember:
		return validateMemberName(string(v.(String)))
	case FieldErrorName:
		return validateErrorName(string(v.(String)))
	case FieldDestination, FieldSender:
		return validateBusName(string(v.(String)))
	}
	return nil
}

// requiredFields lists the header fields that must be present for
// each message type.
var requiredFields = map[MessageType][]HeaderField{
	MethodCallMessage:   {FieldPath, FieldMember},
	MethodReturnMessage: {FieldReplySerial},
	ErrorMessage:        {FieldErrorName, FieldReplySerial},
	SignalMessage:       {FieldPath, FieldInterface, FieldMember},
}

// validateHeaders checks that m's headers are consistent with its
// type.
func validateHeaders(m *Message) error {
	if m.typ == InvalidMessage {
		return headerErr(m.typ, 0, "message type is INVALID")
	}
	for _, f := range requiredFields[m.typ] {
		if _, ok := m.headers[f]; !ok {
			return headerErr(m.typ, f, "required header missing")
		}
	}
	if m.typ == SignalMessage {
		if m.Path() == localPath {
			return headerErr(m.typ, FieldPath, "%s is reserved for local use", localPath)
		}
		if m.Interface() == localInterface {
			return headerErr(m.typ, FieldInterface, "%s is reserved for local use", localInterface)
		}
	}
	// Unknown message types are suspect, but the DBus specification
	// requires that they be accepted and ignored by receivers.
	return nil
}

// validateBody checks that m's SIGNATURE header describes its body.
func validateBody(m *Message) error {
	sig := m.Signature()
	if m.body == nil {
		if !sig.IsZero() {
			return headerErr(m.typ, FieldSignature, "signature %q given but message has no body", sig)
		}
		return nil
	}
	if sig.IsZero() {
		return headerErr(m.typ, FieldSignature, "message has a body of type %q but no signature", m.body.signature())
	}
	if got := m.body.signature(); got != sig.str {
		return headerErr(m.typ, FieldSignature, "signature %q does not match body type %q", sig, got)
	}
	return nil
}

// WantReply reports whether m requires a response.
func (m *Message) WantReply() bool {
	return m.typ == MethodCallMessage && m.flags&FlagNoReplyExpected == 0
}

// CanInteract reports whether the message's sender is prepared to
// wait for an interactive authorization prompt, if the sender lacks
// the necessary privileges for the message, and the bus or
// destination wish to trigger an interactive prompt.
func (m *Message) CanInteract() bool {
	return m.typ == MethodCallMessage && m.flags&FlagAllowInteractiveAuthorization != 0
}
