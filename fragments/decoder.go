package fragments

import "fmt"

// A Decoder provides utilities to read a DBus wire format message
// from a byte slice.
//
// Methods advance the read cursor as needed to account for the
// padding required by DBus alignment rules, except for [Decoder.Read]
// which reads bytes verbatim.
type Decoder struct {
	// Order is the byte order to use when reading multi-byte values.
	Order ByteOrder
	// In is the input to read. Alignment is computed relative to
	// the start of In, so In must begin at the start of a message.
	In []byte

	// offset is the read cursor within In.
	offset int
}

// Offset returns the current read offset.
func (d *Decoder) Offset() int {
	return d.offset
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.In) - d.offset
}

// truncated returns a TruncatedError for a read of want bytes, and
// moves the cursor to the end of the input.
func (d *Decoder) truncated(want int) error {
	ret := &TruncatedError{
		Offset: d.offset,
		Want:   want,
		Have:   len(d.In) - d.offset,
	}
	d.offset = len(d.In)
	return ret
}

// Pad consumes padding bytes as needed to make the next read happen
// at a multiple of align bytes. If the decoder is already correctly
// aligned, no bytes are consumed. Padding bytes must be zero.
func (d *Decoder) Pad(align int) error {
	extra := d.offset % align
	if extra == 0 {
		return nil
	}
	skip := align - extra
	start := d.offset
	bs, err := d.Read(skip)
	if err != nil {
		return err
	}
	for i, b := range bs {
		if b != 0 {
			return &PaddingError{Offset: start + i, Got: b}
		}
	}
	return nil
}

// Read reads n bytes, with no framing or padding. The returned slice
// aliases In.
func (d *Decoder) Read(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid read length %d", n)
	}
	if n > len(d.In)-d.offset {
		return nil, d.truncated(n)
	}
	ret := d.In[d.offset : d.offset+n : d.offset+n]
	d.offset += n
	return ret, nil
}

// terminated reads n bytes followed by a NUL terminator.
func (d *Decoder) terminated(n int) (string, error) {
	if n+1 > len(d.In)-d.offset {
		return "", d.truncated(n + 1)
	}
	bs, _ := d.Read(n + 1)
	if term := bs[n]; term != 0 {
		return "", &TerminatorError{
			Offset: d.offset - 1,
			Got:    term,
			Prefix: string(bs[:n]),
		}
	}
	return string(bs[:n]), nil
}

// String reads a DBus string: a 4-byte length, the string bytes and
// a NUL terminator. String does not validate the string's contents.
func (d *Decoder) String() (string, error) {
	ln, err := d.Uint32()
	if err != nil {
		return "", err
	}
	return d.terminated(int(ln))
}

// Signature reads a DBus signature: a 1-byte length, the signature
// bytes and a NUL terminator. Signature does not validate the
// signature's grammar.
func (d *Decoder) Signature() (string, error) {
	ln, err := d.Uint8()
	if err != nil {
		return "", err
	}
	return d.terminated(int(ln))
}

// Uint8 reads a uint8.
func (d *Decoder) Uint8() (uint8, error) {
	bs, err := d.Read(1)
	if err != nil {
		return 0, err
	}
	return bs[0], nil
}

// Uint16 reads a uint16.
func (d *Decoder) Uint16() (uint16, error) {
	if err := d.Pad(2); err != nil {
		return 0, err
	}
	bs, err := d.Read(2)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint16(bs), nil
}

// Uint32 reads a uint32.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.Pad(4); err != nil {
		return 0, err
	}
	bs, err := d.Read(4)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint32(bs), nil
}

// Uint64 reads a uint64.
func (d *Decoder) Uint64() (uint64, error) {
	if err := d.Pad(8); err != nil {
		return 0, err
	}
	bs, err := d.Read(8)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint64(bs), nil
}

// Struct reads a struct.
//
// Struct fields must be read within the provided fields function.
func (d *Decoder) Struct(fields func() error) error {
	if err := d.Pad(8); err != nil {
		return err
	}
	return fields()
}

// ByteOrderFlag reads a DBus byte order flag byte, and sets
// [Decoder.Order] to match it.
func (d *Decoder) ByteOrderFlag() error {
	v, err := d.Uint8()
	if err != nil {
		return err
	}
	ord, ok := OrderForFlag(v)
	if !ok {
		return &FlagError{Got: v}
	}
	d.Order = ord
	return nil
}
