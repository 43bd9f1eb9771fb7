package fragments

// minBlock is the smallest buffer an Encoder allocates.
const minBlock = 128

// An Encoder provides utilities to write a DBus wire format message
// to a byte slice.
//
// Methods insert padding as needed to conform to DBus alignment
// rules, except for [Encoder.Write] which outputs bytes verbatim.
//
// Alignment is computed relative to the start of Out, so Out must
// either be empty or hold the beginning of the message being built.
type Encoder struct {
	// Order is the byte order to use when encoding multi-byte values.
	Order ByteOrder
	// Out is the encoded output.
	Out []byte
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return len(e.Out)
}

// grow makes room for n more bytes without further reallocation.
// Capacity doubles from a minimum block, and new capacity is zero
// filled.
func (e *Encoder) grow(n int) {
	need := len(e.Out) + n
	if need <= cap(e.Out) {
		return
	}
	c := max(cap(e.Out), minBlock)
	for c < need {
		c *= 2
	}
	out := make([]byte, len(e.Out), c)
	copy(out, e.Out)
	e.Out = out
}

// Pad inserts padding bytes as needed to make the message a multiple
// of align bytes, and returns the number of bytes inserted. If the
// message is already correctly aligned, no padding is inserted.
func (e *Encoder) Pad(align int) int {
	extra := len(e.Out) % align
	if extra == 0 {
		return 0
	}
	var pad [8]byte
	n := align - extra
	e.Write(pad[:n])
	return n
}

// Write writes bs as-is to the output. It is the caller's
// responsibility to ensure correct padding and encoding.
func (e *Encoder) Write(bs []byte) {
	e.grow(len(bs))
	e.Out = append(e.Out, bs...)
}

// Extend appends n zero bytes to the output and returns them, for the
// caller to fill in place.
func (e *Encoder) Extend(n int) []byte {
	e.grow(n)
	start := len(e.Out)
	e.Out = e.Out[:start+n]
	clear(e.Out[start:])
	return e.Out[start:]
}

// String writes a DBus string: a 4-byte length, the string bytes and
// a NUL terminator.
func (e *Encoder) String(s string) {
	e.Uint32(uint32(len(s)))
	e.grow(len(s) + 1)
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

// Signature writes a DBus signature: a 1-byte length, the signature
// bytes and a NUL terminator.
func (e *Encoder) Signature(s string) {
	e.Uint8(uint8(len(s)))
	e.grow(len(s) + 1)
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

// Uint8 writes a uint8.
func (e *Encoder) Uint8(u8 uint8) {
	e.grow(1)
	e.Out = append(e.Out, u8)
}

// Uint16 writes uint16.
func (e *Encoder) Uint16(u16 uint16) {
	e.Pad(2)
	e.grow(2)
	e.Out = e.Order.AppendUint16(e.Out, u16)
}

// Uint32 writes uint32.
func (e *Encoder) Uint32(u32 uint32) {
	e.Pad(4)
	e.grow(4)
	e.Out = e.Order.AppendUint32(e.Out, u32)
}

// Uint64 writes uint64.
func (e *Encoder) Uint64(u64 uint64) {
	e.Pad(8)
	e.grow(8)
	e.Out = e.Order.AppendUint64(e.Out, u64)
}

// PutUint32At overwrites the 4 bytes at offset with u32. It is used
// to back-patch lengths that are only known after their content has
// been written.
func (e *Encoder) PutUint32At(offset int, u32 uint32) {
	e.Order.PutUint32(e.Out[offset:], u32)
}

// Struct writes a struct to the output.
//
// Struct fields must be added within the provided elements function.
func (e *Encoder) Struct(elements func() error) error {
	e.Pad(8)
	return elements()
}

// ByteOrderFlag writes the DBus byte order flag byte ('l' or 'B')
// that matches [Encoder.Order].
func (e *Encoder) ByteOrderFlag() {
	e.Uint8(e.Order.Flag())
}
