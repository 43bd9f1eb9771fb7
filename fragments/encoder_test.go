package fragments_test

import (
	"bytes"
	"testing"

	"github.com/danderson/dbuswire/fragments"
)

func TestEncoder(t *testing.T) {
	tests := []struct {
		name string
		in   func(*fragments.Encoder)
		want []byte
	}{
		{
			"raw bytes",
			func(e *fragments.Encoder) {
				e.Write([]byte{1, 2, 3})
			},
			[]byte{0x01, 0x02, 0x03},
		},

		{
			"string",
			func(e *fragments.Encoder) {
				e.String("foo")
			},
			[]byte{
				0x00, 0x00, 0x00, 0x03, // length
				0x66, 0x6f, 0x6f, // val
				0x00, // terminator
			},
		},

		{
			"signature",
			func(e *fragments.Encoder) {
				e.Uint8(1)
				e.Signature("a{sv}")
			},
			[]byte{
				0x01,
				0x05, // length, no padding
				'a', '{', 's', 'v', '}',
				0x00, // terminator
			},
		},

		{
			"uints",
			func(e *fragments.Encoder) {
				e.Uint8(42)
				e.Uint16(66)
				e.Uint32(42)
				e.Uint64(66)
			},
			[]byte{
				0x2a,
				0x00, // pad
				0x00, 0x42,
				0x00, 0x00, 0x00, 0x2a,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
			},
		},

		{
			"uints padding",
			func(e *fragments.Encoder) {
				e.Uint64(66)
				e.Write([]byte{0})
				e.Uint32(42)
				e.Write([]byte{0})
				e.Uint16(66)
				e.Write([]byte{0})
				e.Uint8(42)
			},
			[]byte{
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
				0x00,             // raw
				0x00, 0x00, 0x00, // pad
				0x00, 0x00, 0x00, 0x2a,
				0x00, // raw
				0x00, // pad
				0x00, 0x42,
				0x00, // raw
				0x2a,
			},
		},

		{
			"struct padding",
			func(e *fragments.Encoder) {
				e.Struct(func() error {
					e.Uint64(66)
					return nil
				})
				e.Struct(func() error {
					e.Uint32(42)
					return nil
				})
				e.Struct(func() error {
					e.Uint16(66)
					return nil
				})
				e.Struct(func() error {
					e.Uint8(42)
					return nil
				})
			},
			[]byte{
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x42,
				0x00, 0x00, 0x00, 0x2a,
				0x00, 0x00, 0x00, 0x00, // pad
				0x00, 0x42,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // pad
				0x2a,
			},
		},

		{
			"back-patched length",
			func(e *fragments.Encoder) {
				e.Uint32(0)
				e.Uint16(1)
				e.Uint16(2)
				e.PutUint32At(0, 4)
			},
			[]byte{
				0x00, 0x00, 0x00, 0x04, // patched
				0x00, 0x01,
				0x00, 0x02,
			},
		},

		{
			"extend",
			func(e *fragments.Encoder) {
				e.Uint8(1)
				e.Pad(4)
				bs := e.Extend(4)
				e.Order.PutUint32(bs, 7)
			},
			[]byte{
				0x01,
				0x00, 0x00, 0x00, // pad
				0x00, 0x00, 0x00, 0x07,
			},
		},

		{
			"byte order flag",
			func(e *fragments.Encoder) {
				e.Order = fragments.BigEndian
				e.ByteOrderFlag()
				e.Order = fragments.LittleEndian
				e.ByteOrderFlag()
			},
			[]byte{'B', 'l'},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := fragments.Encoder{
				Order: fragments.BigEndian,
			}
			tc.in(&e)
			if got := e.Out; !bytes.Equal(got, tc.want) {
				t.Errorf("incorrect encode:\n  got: % x\n want: % x", got, tc.want)
			} else if testing.Verbose() {
				t.Logf("encoder got: % x", got)
			}
		})
	}
}

func TestEncoderGrowth(t *testing.T) {
	e := fragments.Encoder{Order: fragments.LittleEndian}
	e.Uint8(1)
	if got := cap(e.Out); got != 128 {
		t.Fatalf("first allocation has cap %d, want 128", got)
	}
	e.Write(make([]byte, 200))
	if got := cap(e.Out); got != 256 {
		t.Fatalf("grown buffer has cap %d, want 256", got)
	}
	if got := e.Len(); got != 201 {
		t.Fatalf("Len() = %d, want 201", got)
	}
	// Capacity past the valid length must be zero filled.
	full := e.Out[:cap(e.Out)]
	for i, b := range full[e.Len():] {
		if b != 0 {
			t.Fatalf("byte %d past end is 0x%02x, want 0", e.Len()+i, b)
		}
	}
}
