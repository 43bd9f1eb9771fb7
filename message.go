package dbus

import (
	"fmt"
	"os"
	"slices"
)

// A Message is a DBus message.
//
// A Message is built by the sender with [NewMessage] or one of the
// more specific constructors, or produced by [Unmarshal]. Once
// [Message.Lock] has been called, the message is immutable and safe
// for concurrent use. Mutating a locked message panics with
// [ErrLocked].
type Message struct {
	order  ByteOrder
	typ    MessageType
	flags  Flags
	serial uint32

	// headers holds the message's header fields, and fields records
	// the order in which they were added. Headers are encoded in
	// that order.
	headers map[HeaderField]Value
	fields  []HeaderField

	// body is the message body, or nil if the message has no body.
	body Struct
	// files are the file descriptors attached to the message.
	files []*os.File

	locked bool
}

// NewMessage returns an empty message of the given type, in the
// host's byte order.
func NewMessage(typ MessageType) *Message {
	return &Message{
		order: NativeEndian,
		typ:   typ,
	}
}

// NewMethodCall returns a method call message. dest and iface may be
// empty.
func NewMethodCall(dest string, path ObjectPath, iface, member string) (*Message, error) {
	ret := NewMessage(MethodCallMessage)
	if err := ret.SetPath(path); err != nil {
		return nil, err
	}
	if err := ret.SetMember(member); err != nil {
		return nil, err
	}
	if err := ret.SetInterface(iface); err != nil {
		return nil, err
	}
	if err := ret.SetDestination(dest); err != nil {
		return nil, err
	}
	return ret, nil
}

// NewSignal returns a signal message. Signals never expect a reply.
func NewSignal(path ObjectPath, iface, member string) (*Message, error) {
	ret := NewMessage(SignalMessage)
	ret.flags = FlagNoReplyExpected
	if err := ret.SetPath(path); err != nil {
		return nil, err
	}
	if err := ret.SetInterface(iface); err != nil {
		return nil, err
	}
	if err := ret.SetMember(member); err != nil {
		return nil, err
	}
	return ret, nil
}

// NewMethodReply returns a successful reply to call. The reply uses
// call's byte order, and is addressed to call's sender.
func NewMethodReply(call *Message) *Message {
	return newReply(call, MethodReturnMessage)
}

// NewMethodError returns an error reply to call. The reply uses
// call's byte order, is addressed to call's sender, and carries the
// formatted message as its body.
func NewMethodError(call *Message, name string, format string, args ...any) (*Message, error) {
	ret := newReply(call, ErrorMessage)
	if err := ret.SetErrorName(name); err != nil {
		return nil, err
	}
	if err := ret.SetBody(String(fmt.Sprintf(format, args...))); err != nil {
		return nil, err
	}
	return ret, nil
}

func newReply(call *Message, typ MessageType) *Message {
	ret := NewMessage(typ)
	ret.order = call.order
	ret.flags = FlagNoReplyExpected
	// Replies require the header, even when call has no serial yet.
	ret.setHeader(FieldReplySerial, Uint32(call.serial))
	if sender := call.Sender(); sender != "" {
		// Already validated when set on call.
		ret.setHeader(FieldDestination, String(sender))
	}
	return ret
}

func (m *Message) mustUnlocked() {
	if m.locked {
		panic(ErrLocked)
	}
}

// Lock makes m immutable. Once locked, any attempt to mutate m
// panics.
func (m *Message) Lock() {
	m.locked = true
}

// Locked reports whether m is locked.
func (m *Message) Locked() bool {
	return m.locked
}

// ByteOrder returns the byte order m is encoded with.
func (m *Message) ByteOrder() ByteOrder { return m.order }

// SetByteOrder sets the byte order m is encoded with.
func (m *Message) SetByteOrder(o ByteOrder) {
	m.mustUnlocked()
	m.order = o
}

// Type returns the message type.
func (m *Message) Type() MessageType { return m.typ }

// SetType sets the message type.
func (m *Message) SetType(t MessageType) {
	m.mustUnlocked()
	m.typ = t
}

// Flags returns the message flags.
func (m *Message) Flags() Flags { return m.flags }

// SetFlags sets the message flags.
func (m *Message) SetFlags(f Flags) {
	m.mustUnlocked()
	m.flags = f
}

// Serial returns the message serial. Serials are assigned by the
// sending connection, and are zero until then.
func (m *Message) Serial() uint32 { return m.serial }

// SetSerial sets the message serial.
func (m *Message) SetSerial(s uint32) {
	m.mustUnlocked()
	m.serial = s
}

// Header returns the value of header field f, if present.
func (m *Message) Header(f HeaderField) (Value, bool) {
	v, ok := m.headers[f]
	return v, ok
}

// HeaderFields returns the header fields present in m, in the order
// they were added.
func (m *Message) HeaderFields() []HeaderField {
	return slices.Clone(m.fields)
}

// SetHeader sets header field f to v. If v is nil, the header field
// is removed.
//
// Well-known header fields must have their protocol type, and names
// must be valid. Unknown header fields accept any value.
func (m *Message) SetHeader(f HeaderField, v Value) error {
	m.mustUnlocked()
	if v == nil {
		m.deleteHeader(f)
		return nil
	}
	if err := checkValue(v); err != nil {
		return err
	}
	if err := checkField(f, v); err != nil {
		return err
	}
	m.setHeader(f, v)
	return nil
}

func (m *Message) setHeader(f HeaderField, v Value) {
	if m.headers == nil {
		m.headers = map[HeaderField]Value{}
	}
	if _, ok := m.headers[f]; !ok {
		m.fields = append(m.fields, f)
	}
	m.headers[f] = v
}

func (m *Message) deleteHeader(f HeaderField) {
	if _, ok := m.headers[f]; !ok {
		return
	}
	delete(m.headers, f)
	m.fields = slices.DeleteFunc(m.fields, func(g HeaderField) bool { return g == f })
}

// setOptional sets f to v if set is true, and removes f otherwise.
func (m *Message) setOptional(f HeaderField, v Value, set bool) error {
	if !set {
		v = nil
	}
	return m.SetHeader(f, v)
}

func headerString(m *Message, f HeaderField) string {
	v, _ := m.headers[f].(String)
	return string(v)
}

func headerUint32(m *Message, f HeaderField) uint32 {
	v, _ := m.headers[f].(Uint32)
	return uint32(v)
}

// Path returns the PATH header: the object a method call is
// addressed to, or the object emitting a signal.
func (m *Message) Path() ObjectPath {
	v, _ := m.headers[FieldPath].(ObjectPath)
	return v
}

// SetPath sets the PATH header. An empty path removes the header.
func (m *Message) SetPath(p ObjectPath) error {
	return m.setOptional(FieldPath, p, p != "")
}

// Interface returns the INTERFACE header.
func (m *Message) Interface() string { return headerString(m, FieldInterface) }

// SetInterface sets the INTERFACE header. An empty name removes the
// header.
func (m *Message) SetInterface(iface string) error {
	return m.setOptional(FieldInterface, String(iface), iface != "")
}

// Member returns the MEMBER header: the method or signal name.
func (m *Message) Member() string { return headerString(m, FieldMember) }

// SetMember sets the MEMBER header. An empty name removes the
// header.
func (m *Message) SetMember(member string) error {
	return m.setOptional(FieldMember, String(member), member != "")
}

// ErrorName returns the ERROR_NAME header.
func (m *Message) ErrorName() string { return headerString(m, FieldErrorName) }

// SetErrorName sets the ERROR_NAME header. An empty name removes the
// header.
func (m *Message) SetErrorName(name string) error {
	return m.setOptional(FieldErrorName, String(name), name != "")
}

// ReplySerial returns the REPLY_SERIAL header: the serial of the
// message this message replies to.
func (m *Message) ReplySerial() uint32 { return headerUint32(m, FieldReplySerial) }

// SetReplySerial sets the REPLY_SERIAL header. A zero serial removes
// the header.
func (m *Message) SetReplySerial(serial uint32) {
	m.setOptional(FieldReplySerial, Uint32(serial), serial != 0)
}

// Destination returns the DESTINATION header.
func (m *Message) Destination() string { return headerString(m, FieldDestination) }

// SetDestination sets the DESTINATION header. An empty name removes
// the header.
func (m *Message) SetDestination(dest string) error {
	return m.setOptional(FieldDestination, String(dest), dest != "")
}

// Sender returns the SENDER header.
func (m *Message) Sender() string { return headerString(m, FieldSender) }

// SetSender sets the SENDER header. An empty name removes the
// header.
func (m *Message) SetSender(sender string) error {
	return m.setOptional(FieldSender, String(sender), sender != "")
}

// Signature returns the SIGNATURE header: the type of the message
// body.
func (m *Message) Signature() Signature {
	v, _ := m.headers[FieldSignature].(Signature)
	return v
}

// SetSignature sets the SIGNATURE header. An empty signature removes
// the header.
//
// [Message.SetBody] maintains the SIGNATURE header, so most callers
// have no need to call SetSignature.
func (m *Message) SetSignature(sig Signature) error {
	return m.setOptional(FieldSignature, sig, !sig.IsZero())
}

// NumUnixFDs returns the NUM_UNIX_FDS header.
func (m *Message) NumUnixFDs() uint32 { return headerUint32(m, FieldUnixFDs) }

// SetNumUnixFDs sets the NUM_UNIX_FDS header. Zero removes the
// header.
//
// [Message.SetUnixFDs] maintains the NUM_UNIX_FDS header, so most
// callers have no need to call SetNumUnixFDs.
func (m *Message) SetNumUnixFDs(n uint32) {
	m.setOptional(FieldUnixFDs, Uint32(n), n != 0)
}

// Body returns the message body. The returned Struct must not be
// modified.
func (m *Message) Body() Struct { return m.body }

// SetBody sets the message body to vals, and updates the SIGNATURE
// header to match. With no vals, the message has no body.
func (m *Message) SetBody(vals ...Value) error {
	m.mustUnlocked()
	if len(vals) == 0 {
		m.body = nil
		m.deleteHeader(FieldSignature)
		return nil
	}
	body := Struct(slices.Clone(vals))
	for _, v := range body {
		if err := checkValue(v); err != nil {
			return err
		}
	}
	sig, err := ParseSignature(body.signature())
	if err != nil {
		return err
	}
	m.body = body
	m.setHeader(FieldSignature, sig)
	return nil
}

// Arg0 returns the first body value, if it is a string, object path
// or signature.
func (m *Message) Arg0() (string, bool) {
	if len(m.body) == 0 {
		return "", false
	}
	switch v := m.body[0].(type) {
	case String:
		return string(v), true
	case ObjectPath:
		return string(v), true
	case Signature:
		return v.str, true
	default:
		return "", false
	}
}

// UnixFDs returns the file descriptors attached to m.
func (m *Message) UnixFDs() []*os.File { return m.files }

// SetUnixFDs attaches files to m, and updates the NUM_UNIX_FDS header
// to match. [Handle] values in the body index into files.
//
// m does not take ownership of files: the caller remains responsible
// for closing them.
func (m *Message) SetUnixFDs(files []*os.File) {
	m.mustUnlocked()
	m.files = slices.Clone(files)
	if len(m.files) == 0 {
		m.files = nil
	}
	m.SetNumUnixFDs(uint32(len(files)))
}

// Copy returns an unlocked copy of m. Header and body values are
// shared with m, and attached file descriptors are duplicated.
func (m *Message) Copy() (*Message, error) {
	files, err := dupFiles(m.files)
	if err != nil {
		return nil, fmt.Errorf("copying message: %w", err)
	}
	ret := &Message{
		order:  m.order,
		typ:    m.typ,
		flags:  m.flags,
		serial: m.serial,
		fields: slices.Clone(m.fields),
		body:   m.body,
		files:  files,
	}
	if m.headers != nil {
		ret.headers = make(map[HeaderField]Value, len(m.headers))
		for f, v := range m.headers {
			ret.headers[f] = v
		}
	}
	return ret, nil
}
