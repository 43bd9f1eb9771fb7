package dbus

import (
	"errors"
	"testing"

	"github.com/danderson/dbuswire/fragments"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var valueCmp = []cmp.Option{
	cmp.AllowUnexported(Signature{}),
	cmpopts.EquateEmpty(),
}

func mustArray(t *testing.T, elem string, items ...Value) Array {
	t.Helper()
	ret, err := NewArray(MustParseSignature(elem), items...)
	if err != nil {
		t.Fatalf("NewArray(%q): %v", elem, err)
	}
	return ret
}

func TestValueCodec(t *testing.T) {
	be, le := fragments.BigEndian, fragments.LittleEndian
	tests := []struct {
		name string
		in   Value
		ord  fragments.ByteOrder
		want []byte
	}{
		{"byte", Byte(5), le, []byte{0x05}},
		{"true LE", Bool(true), le, []byte{0x01, 0x00, 0x00, 0x00}},
		{"true BE", Bool(true), be, []byte{0x00, 0x00, 0x00, 0x01}},
		{"false", Bool(false), be, []byte{0x00, 0x00, 0x00, 0x00}},
		{"int16 LE", Int16(0x2bff), le, []byte{0xff, 0x2b}},
		{"int16 BE", Int16(0x2bff), be, []byte{0x2b, 0xff}},
		{"negative int16", Int16(-2), be, []byte{0xff, 0xfe}},
		{"uint16", Uint16(0x2bff), le, []byte{0xff, 0x2b}},
		{"int32", Int32(0x12342bff), le, []byte{0xff, 0x2b, 0x34, 0x12}},
		{"uint32 BE", Uint32(0x12342bff), be, []byte{0x12, 0x34, 0x2b, 0xff}},
		{"handle", Handle(3), le, []byte{0x03, 0x00, 0x00, 0x00}},
		{"int64", Int64(-1), le, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"uint64 BE", Uint64(0x0102030405060708), be, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}},
		{"double LE", Double(1.5), le, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf8, 0x3f}},
		{"double BE", Double(1.5), be, []byte{0x3f, 0xf8, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},

		{"string", String("foo"), le, []byte{
			0x03, 0x00, 0x00, 0x00, // length
			'f', 'o', 'o',
			0x00, // terminator
		}},
		{"empty string BE", String(""), be, []byte{0x00, 0x00, 0x00, 0x00, 0x00}},
		{"object path", ObjectPath("/a"), le, []byte{
			0x02, 0x00, 0x00, 0x00,
			'/', 'a',
			0x00,
		}},
		{"signature", MustParseSignature("a{sv}"), be, []byte{
			0x05, // length
			'a', '{', 's', 'v', '}',
			0x00,
		}},

		{"variant", Variant{Uint32(7)}, le, []byte{
			0x01, 'u', 0x00, // signature
			0x00,                   // pad
			0x07, 0x00, 0x00, 0x00, // value
		}},
		{"nested variant", Variant{Variant{Byte(1)}}, le, []byte{
			0x01, 'v', 0x00,
			0x01, 'y', 0x00,
			0x01,
		}},

		{"empty uint64 array", mustArray(t, "t"), le, []byte{
			0x00, 0x00, 0x00, 0x00, // length, not counting padding
			0x00, 0x00, 0x00, 0x00, // pad to first element
		}},
		{"uint64 array", mustArray(t, "t", Uint64(1)), le, []byte{
			0x08, 0x00, 0x00, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		}},
		{"byte array", ByteArray([]byte{1, 2, 3}), be, []byte{
			0x00, 0x00, 0x00, 0x03,
			0x01, 0x02, 0x03,
		}},
		{"int16 array BE", mustArray(t, "n", Int16(1), Int16(-1)), be, []byte{
			0x00, 0x00, 0x00, 0x04,
			0x00, 0x01, 0xff, 0xff,
		}},
		{"bool array", mustArray(t, "b", Bool(true), Bool(false)), le, []byte{
			0x08, 0x00, 0x00, 0x00,
			0x01, 0x00, 0x00, 0x00,
			0x00, 0x00, 0x00, 0x00,
		}},
		{"string array", mustArray(t, "s", String("a"), String("bc")), le, []byte{
			0x0f, 0x00, 0x00, 0x00, // length
			0x01, 0x00, 0x00, 0x00, 'a', 0x00,
			0x00, 0x00, // pad
			0x02, 0x00, 0x00, 0x00, 'b', 'c', 0x00,
		}},
		{"empty struct array", mustArray(t, "(y)"), be, []byte{
			0x00, 0x00, 0x00, 0x00,
			0x00, 0x00, 0x00, 0x00,
		}},

		{"struct", Struct{Byte(1), Uint32(2)}, le, []byte{
			0x01,
			0x00, 0x00, 0x00,
			0x02, 0x00, 0x00, 0x00,
		}},
		{"nested struct", Struct{Byte(1), Struct{Byte(2)}}, be, []byte{
			0x01,
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // pad inner struct to 8
			0x02,
		}},

		{"dict", mustArray(t, "{sy}", DictEntry{String("k"), Byte(1)}), le, []byte{
			0x07, 0x00, 0x00, 0x00, // length
			0x00, 0x00, 0x00, 0x00, // pad to first entry
			0x01, 0x00, 0x00, 0x00, 'k', 0x00,
			0x01,
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sig := tc.in.Type().String()
			e := fragments.Encoder{Order: tc.ord}
			if _, err := encodeValue(&e, tc.in, sig, 0); err != nil {
				t.Fatalf("encodeValue(%s) failed: %v", FormatValue(tc.in), err)
			}
			if diff := cmp.Diff(e.Out, tc.want); diff != "" {
				t.Errorf("encodeValue(%s) wrong output (-got+want):\n%s", FormatValue(tc.in), diff)
			}

			d := fragments.Decoder{Order: tc.ord, In: tc.want}
			got, err := decodeValue(&d, sig, false, 0)
			if err != nil {
				t.Fatalf("decodeValue(%q) failed: %v", sig, err)
			}
			if d.Remaining() != 0 {
				t.Errorf("decodeValue(%q) left %d bytes unread", sig, d.Remaining())
			}
			if diff := cmp.Diff(got, tc.in, valueCmp...); diff != "" {
				t.Errorf("decodeValue(%q) wrong result (-got+want):\n%s", sig, diff)
			}

			// Every strict prefix of a value must fail to decode as
			// truncated, without panicking.
			for i := range len(tc.want) {
				d := fragments.Decoder{Order: tc.ord, In: tc.want[:i]}
				if _, err := decodeValue(&d, sig, false, 0); err == nil {
					t.Errorf("decodeValue(%q) of %d byte prefix succeeded", sig, i)
				}
			}
		})
	}
}

func TestAlignment(t *testing.T) {
	// Values are aligned relative to the start of the message, so
	// encoding after a leading byte adds padding.
	tests := []struct {
		in      Value
		wantPad int
	}{
		{Byte(1), 0},
		{Int16(1), 1},
		{Uint32(1), 3},
		{Uint64(1), 7},
		{String("x"), 3},
		{MustParseSignature("y"), 0},
		{Variant{Byte(1)}, 0},
		{ByteArray(nil), 3},
		{Struct{Byte(1)}, 7},
	}
	for _, tc := range tests {
		e := fragments.Encoder{Order: fragments.LittleEndian}
		e.Uint8(0xff)
		pad, err := encodeValue(&e, tc.in, tc.in.Type().String(), 0)
		if err != nil {
			t.Fatalf("encodeValue(%s) failed: %v", FormatValue(tc.in), err)
		}
		if pad != tc.wantPad {
			t.Errorf("encodeValue(%s) padding = %d, want %d", FormatValue(tc.in), pad, tc.wantPad)
		}
		for i := 1; i < 1+pad; i++ {
			if e.Out[i] != 0 {
				t.Errorf("encodeValue(%s) padding byte %d is %#x, want 0", FormatValue(tc.in), i, e.Out[i])
			}
		}

		d := fragments.Decoder{Order: fragments.LittleEndian, In: e.Out}
		d.Uint8()
		got, err := decodeValue(&d, tc.in.Type().String(), false, 0)
		if err != nil {
			t.Fatalf("decodeValue(%q) failed: %v", tc.in.Type(), err)
		}
		if diff := cmp.Diff(got, tc.in, valueCmp...); diff != "" {
			t.Errorf("decodeValue(%q) wrong result (-got+want):\n%s", tc.in.Type(), diff)
		}
	}
}

func TestEncodeTypeMismatch(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		sig  string
	}{
		{"wrong basic type", Uint32(1), "i"},
		{"mixed array", Array{elem: sigString, items: []Value{String("a"), Uint32(1)}}, "as"},
		{"ragged fixed array", Array{elem: sigUint32, block: []byte{1, 2, 3}}, "au"},
		{"multi-type element", Array{elem: MustParseSignature("yy")}, "ayy"},
		{"empty struct", Struct{}, "()"},
		{"nil variant", Variant{}, "v"},
		{"array without element type", Array{}, "a"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := fragments.Encoder{Order: fragments.LittleEndian}
			_, err := encodeValue(&e, tc.in, tc.sig, 0)
			var te TypeError
			if !errors.As(err, &te) {
				t.Fatalf("encodeValue returned %v, want TypeError", err)
			}
		})
	}
}

func TestMultiTypeArrayBody(t *testing.T) {
	// "ayy" parses as a valid body signature, but the array cannot be
	// encoded as one value.
	m := NewMessage(MethodReturnMessage)
	m.SetReplySerial(1)
	if err := m.SetBody(Array{elem: MustParseSignature("yy")}); err == nil {
		blob, err := m.Marshal(0)
		t.Fatalf("SetBody of array with multi-type element succeeded, Marshal = %d bytes, %v", len(blob), err)
	}
}

func TestEncodeArrayLimit(t *testing.T) {
	e := fragments.Encoder{Order: fragments.LittleEndian}
	big := ByteArray(make([]byte, MaxArrayLen+1))
	if _, err := encodeValue(&e, big, "ay", 0); !errors.Is(err, ErrMalformed) {
		t.Errorf("encoding %d byte array returned %v, want ErrMalformed", MaxArrayLen+1, err)
	}
}

func TestFixedArray(t *testing.T) {
	a := mustArray(t, "u", Uint32(1), Uint32(0x01020304))
	if got, want := a.Len(), 2; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}
	if got, want := a.Index(1), Value(Uint32(0x01020304)); got != want {
		t.Errorf("Index(1) = %v, want %v", got, want)
	}
	if diff := cmp.Diff(a.Items(), []Value{Uint32(1), Uint32(0x01020304)}); diff != "" {
		t.Errorf("wrong Items() (-got+want):\n%s", diff)
	}

	// Arrays built in one byte order encode correctly in both, and
	// compare equal after decoding in either.
	for _, ord := range []fragments.ByteOrder{fragments.LittleEndian, fragments.BigEndian} {
		e := fragments.Encoder{Order: ord}
		if _, err := encodeValue(&e, a, "au", 0); err != nil {
			t.Fatalf("encodeValue in order %c: %v", ord.Flag(), err)
		}
		want := []byte{0x08, 0, 0, 0, 1, 0, 0, 0, 4, 3, 2, 1}
		if ord == fragments.BigEndian {
			want = []byte{0, 0, 0, 0x08, 0, 0, 0, 1, 1, 2, 3, 4}
		}
		if diff := cmp.Diff(e.Out, want); diff != "" {
			t.Errorf("encoding in order %c wrong output (-got+want):\n%s", ord.Flag(), diff)
		}
		d := fragments.Decoder{Order: ord, In: e.Out}
		got, err := decodeValue(&d, "au", false, 0)
		if err != nil {
			t.Fatalf("decodeValue in order %c: %v", ord.Flag(), err)
		}
		if !a.Equal(got.(Array)) {
			t.Errorf("decoded %s, want %s", FormatValue(got), FormatValue(a))
		}

		// Re-encoding a decoded array in the other byte order swaps
		// the block.
		other := fragments.BigEndian
		if ord == fragments.BigEndian {
			other = fragments.LittleEndian
		}
		e2 := fragments.Encoder{Order: other}
		if _, err := encodeValue(&e2, got, "au", 0); err != nil {
			t.Fatalf("re-encodeValue in order %c: %v", other.Flag(), err)
		}
		d2 := fragments.Decoder{Order: other, In: e2.Out}
		got2, err := decodeValue(&d2, "au", false, 0)
		if err != nil {
			t.Fatalf("decodeValue in order %c: %v", other.Flag(), err)
		}
		if !a.Equal(got2.(Array)) {
			t.Errorf("re-decoded %s, want %s", FormatValue(got2), FormatValue(a))
		}
	}

	if a.Equal(mustArray(t, "u", Uint32(1))) || a.Equal(mustArray(t, "i", Int32(1), Int32(0x01020304))) {
		t.Error("Equal matched a different array")
	}
}

func TestFixedArrayDecodeCopies(t *testing.T) {
	const n = 1 << 20
	in := make([]byte, 4+n)
	in[2] = 0x10 // length 1<<20, little-endian
	for i := range n {
		in[4+i] = byte(i)
	}

	allocs := testing.AllocsPerRun(10, func() {
		d := fragments.Decoder{Order: fragments.LittleEndian, In: in}
		if _, err := decodeValue(&d, "ay", false, 0); err != nil {
			t.Fatal(err)
		}
	})
	if allocs > 4 {
		t.Errorf("decoding a %d byte array made %v allocations, want a block copy", n, allocs)
	}

	d := fragments.Decoder{Order: fragments.LittleEndian, In: in}
	v, err := decodeValue(&d, "ay", false, 0)
	if err != nil {
		t.Fatal(err)
	}
	bs, ok := v.(Array).Bytes()
	if !ok || len(bs) != n {
		t.Fatalf("Bytes() = %d bytes, %v, want %d bytes", len(bs), ok, n)
	}
	// The decoded array must not alias the input buffer, which
	// callers reuse.
	in[4] = 0xff
	if bs[0] != 0 {
		t.Error("decoded byte array aliases the input")
	}
}

func TestEncodeInvalidText(t *testing.T) {
	tests := []struct {
		name string
		in   Value
	}{
		{"NUL in string", String("a\x00b")},
		{"bad UTF-8", String("a\xffb")},
		{"relative path", ObjectPath("a/b")},
		{"trailing slash", ObjectPath("/a/")},
		{"empty path element", ObjectPath("/a//b")},
		{"bad path char", ObjectPath("/a-b")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := fragments.Encoder{Order: fragments.LittleEndian}
			_, err := encodeValue(&e, tc.in, tc.in.Type().String(), 0)
			if !errors.Is(err, ErrInvalidText) {
				t.Fatalf("encodeValue returned %v, want ErrInvalidText", err)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		sig  string
		in   []byte
		want error
	}{
		{"nonzero padding", "(yu)", []byte{0x01, 0x00, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00}, ErrMalformed},
		{"missing string terminator", "s", []byte{0x01, 0x00, 0x00, 0x00, 'a', 'b'}, ErrMalformed},
		{"string with NUL", "s", []byte{0x02, 0x00, 0x00, 0x00, 'a', 0x00, 0x00}, ErrInvalidText},
		{"bad UTF-8", "s", []byte{0x01, 0x00, 0x00, 0x00, 0xff, 0x00}, ErrInvalidText},
		{"bad object path", "o", []byte{0x01, 0x00, 0x00, 0x00, 'a', 0x00}, ErrInvalidText},
		{"bad signature", "g", []byte{0x01, '(', 0x00}, ErrInvalidText},
		{"multi-type variant", "v", []byte{0x02, 'y', 'y', 0x00, 0x01, 0x02}, ErrInvalidText},
		{"empty variant", "v", []byte{0x00, 0x00}, ErrInvalidText},
		{"huge array", "ay", []byte{0xff, 0xff, 0xff, 0x7f}, ErrMalformed},
		{"array length past end", "as", []byte{0x10, 0x00, 0x00, 0x00}, fragments.ErrTruncated},
		{"ragged fixed array", "au", []byte{0x03, 0x00, 0x00, 0x00, 0x01, 0x02, 0x03}, ErrMalformed},
		{"array element overrun", "as", []byte{
			0x02, 0x00, 0x00, 0x00,
			0x01, 0x00, 0x00, 0x00, 'a', 0x00,
		}, ErrMalformed},
		{"truncated uint32", "u", []byte{0x01, 0x02}, fragments.ErrTruncated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := fragments.Decoder{Order: fragments.LittleEndian, In: tc.in}
			v, err := decodeValue(&d, tc.sig, false, 0)
			if err == nil {
				t.Fatalf("decodeValue(%q) = %s, want error", tc.sig, FormatValue(v))
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("decodeValue(%q) error = %v, want %v", tc.sig, err, tc.want)
			}
		})
	}
}

func TestDecodeDepthLimit(t *testing.T) {
	// A chain of variants, each holding the next, deeper than any
	// valid message can nest.
	var bs []byte
	for range maxDepth + 2 {
		bs = append(bs, 0x01, 'v', 0x00)
	}
	bs = append(bs, 0x01, 'y', 0x00, 0x2a)
	d := fragments.Decoder{Order: fragments.LittleEndian, In: bs}
	if _, err := decodeValue(&d, "v", false, 0); !errors.Is(err, ErrMalformed) {
		t.Fatalf("decoding deeply nested variants returned %v, want ErrMalformed", err)
	}
}
