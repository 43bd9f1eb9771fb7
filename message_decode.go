package dbus

import (
	"github.com/danderson/dbuswire/fragments"
)

// BytesNeeded returns the total size of the message that begins
// with blob, by inspecting only the fixed 16-byte message preamble.
//
// Connections use BytesNeeded to find message boundaries in a byte
// stream before calling [Unmarshal].
func BytesNeeded(blob []byte) (int, error) {
	if len(blob) < preambleLen {
		return 0, &WireError{0, &fragments.TruncatedError{Offset: 0, Want: preambleLen, Have: len(blob)}}
	}
	ord, ok := fragments.OrderForFlag(blob[0])
	if !ok {
		return 0, &WireError{0, &fragments.FlagError{Got: blob[0]}}
	}
	bodyLen := uint64(ord.Uint32(blob[bodyLenOffset:]))
	hdrLen := uint64(ord.Uint32(blob[12:]))

	total := preambleLen + hdrLen
	total = (total + 7) &^ 7
	total += bodyLen
	if total > MaxMessageLen {
		return 0, wireErr(0, "message of %d bytes exceeds maximum of %d", total, MaxMessageLen)
	}
	return int(total), nil
}

// Unmarshal decodes the message encoded in blob, which must hold
// exactly one complete message.
//
// Unmarshal fails if the message claims to have file descriptors
// attached and caps does not include [CapUnixFDPassing]. The
// returned message has no files attached; the caller attaches the
// file descriptors that arrived out of band with
// [Message.SetUnixFDs].
func Unmarshal(blob []byte, caps Capabilities) (*Message, error) {
	need, err := BytesNeeded(blob)
	if err != nil {
		return nil, err
	}
	if len(blob) < need {
		return nil, &WireError{len(blob), &fragments.TruncatedError{Offset: len(blob), Want: need - len(blob), Have: 0}}
	}
	if len(blob) > need {
		return nil, wireErr(need, "%d trailing bytes after end of message", len(blob)-need)
	}

	d := fragments.Decoder{In: blob}
	if err := d.ByteOrderFlag(); err != nil {
		return nil, wireAt(0, err)
	}
	// The preamble is known to be present, so these reads can't
	// fail.
	typ, _ := d.Uint8()
	flags, _ := d.Uint8()
	version, _ := d.Uint8()
	bodyLen, _ := d.Uint32()
	serial, _ := d.Uint32()
	if version != protocolVersion {
		return nil, wireErr(3, "invalid major protocol version, expected %d but found %d", protocolVersion, version)
	}

	m := &Message{
		order:  ByteOrder(blob[0]),
		typ:    MessageType(typ),
		flags:  Flags(flags),
		serial: serial,
	}

	hdrs, err := decodeValue(&d, headerArraySig, false, 0)
	if err != nil {
		return nil, err
	}
	for _, item := range hdrs.(Array).items {
		entry := item.(Struct)
		f := HeaderField(entry[0].(Byte))
		v := entry[1].(Variant).Value
		if _, dup := m.headers[f]; dup {
			return nil, wireErr(preambleLen, "duplicate header field %s", f)
		}
		if err := checkField(f, v); err != nil {
			return nil, textAt(preambleLen, err)
		}
		m.setHeader(f, v)
	}
	padStart := d.Offset()
	if err := d.Pad(8); err != nil {
		return nil, wireAt(padStart, err)
	}

	bodyStart := d.Offset()
	if sig := m.Signature(); !sig.IsZero() {
		if bodyLen == 0 {
			return nil, headerErr(m.typ, FieldSignature, "signature %q given but message body is empty", sig)
		}
		for rest := sig.str; rest != ""; {
			var one string
			one, rest = nextType(rest)
			v, err := decodeValue(&d, one, false, 0)
			if err != nil {
				return nil, err
			}
			m.body = append(m.body, v)
		}
	} else if bodyLen != 0 {
		return nil, headerErr(m.typ, FieldSignature, "no signature given but message body is %d bytes", bodyLen)
	}
	if got := d.Offset() - bodyStart; got != int(bodyLen) {
		return nil, wireErr(bodyStart, "body is %d bytes but header says %d", got, bodyLen)
	}

	if n := m.NumUnixFDs(); n > 0 && caps&CapUnixFDPassing == 0 {
		return nil, headerErr(m.typ, FieldUnixFDs, "message has %d file descriptors, but file descriptor passing is not enabled", n)
	}
	if err := validateHeaders(m); err != nil {
		return nil, err
	}
	return m, nil
}
