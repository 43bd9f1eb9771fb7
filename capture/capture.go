// Package capture reads and writes logs of DBus messages in wire
// format.
//
// A capture file begins with an 8-byte magic string and a 1-byte
// compression tag. The remainder of the file, compressed as the tag
// says, is a sequence of records. Each record is a message's length
// as a big-endian uint32, the message's wire encoding, and the
// 32-byte BLAKE3 digest of the encoding.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danderson/dbuswire"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

const (
	magic      = "DBUSCAP1"
	digestLen  = 32
	lengthLen  = 4
	fileHdrLen = len(magic) + 1
)

// ErrCorrupt is the error returned when a capture file is not well
// formed.
var ErrCorrupt = errors.New("corrupt capture file")

// Compression is the compression applied to a capture file's records.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// A Writer writes messages to a capture file.
type Writer struct {
	zw  *zstd.Encoder
	out io.Writer
	n   int
	err error
}

// NewWriter writes a capture file header to w, and returns a Writer
// that appends records to it.
//
// The caller must call Close when done, to flush any compressed
// data. Close does not close w.
func NewWriter(w io.Writer, c Compression) (*Writer, error) {
	var hdr [fileHdrLen]byte
	copy(hdr[:], magic)
	hdr[len(magic)] = byte(c)

	ret := &Writer{out: w}
	switch c {
	case CompressionNone:
	case CompressionZstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		ret.zw = zw
		ret.out = zw
	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
	if _, err := w.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("writing capture header: %w", err)
	}
	return ret, nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int { return w.n }

// WriteMessage marshals m and writes it as a record.
func (w *Writer) WriteMessage(m *dbus.Message, caps dbus.Capabilities) error {
	blob, err := m.Marshal(caps)
	if err != nil {
		return err
	}
	return w.WriteBlob(blob)
}

// WriteBlob writes a message that is already in wire format. blob
// must contain exactly one message, according to [dbus.BytesNeeded].
func (w *Writer) WriteBlob(blob []byte) error {
	if w.err != nil {
		return w.err
	}
	need, err := dbus.BytesNeeded(blob)
	if err != nil {
		return err
	}
	if need != len(blob) {
		return fmt.Errorf("blob is %d bytes, but contains a %d byte message", len(blob), need)
	}

	rec := make([]byte, 0, lengthLen+len(blob)+digestLen)
	rec = binary.BigEndian.AppendUint32(rec, uint32(len(blob)))
	rec = append(rec, blob...)
	sum := blake3.Sum256(blob)
	rec = append(rec, sum[:]...)
	if _, err := w.out.Write(rec); err != nil {
		w.err = fmt.Errorf("writing record %d: %w", w.n, err)
		return w.err
	}
	w.n++
	return nil
}

// Close flushes any buffered data to the underlying writer.
func (w *Writer) Close() error {
	if w.zw == nil {
		return w.err
	}
	if err := w.zw.Close(); err != nil && w.err == nil {
		w.err = err
	}
	return w.err
}

// A Reader reads message blobs from a capture file.
type Reader struct {
	zr  *zstd.Decoder
	in  io.Reader
	c   Compression
	n   int
	buf []byte
}

// NewReader reads a capture file header from r, and returns a Reader
// for the records that follow.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	var hdr [fileHdrLen]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short file header", ErrCorrupt)
		}
		return nil, err
	}
	if string(hdr[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, hdr[:len(magic)])
	}

	ret := &Reader{in: br, c: Compression(hdr[len(magic)])}
	switch ret.c {
	case CompressionNone:
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		ret.zr = zr
		ret.in = zr
	default:
		return nil, fmt.Errorf("%w: unknown compression %s", ErrCorrupt, ret.c)
	}
	return ret, nil
}

// Compression returns the compression used by the capture file.
func (r *Reader) Compression() Compression { return r.c }

// Next returns the next message blob in the capture. It returns
// io.EOF when there are no more records.
//
// The returned slice is only valid until the next call to Next.
func (r *Reader) Next() ([]byte, error) {
	var hdr [lengthLen]byte
	if _, err := io.ReadFull(r.in, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, r.framing(err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > dbus.MaxMessageLen {
		return nil, fmt.Errorf("%w: record %d claims %d bytes, larger than the maximum message size", ErrCorrupt, r.n, n)
	}

	want := int(n) + digestLen
	if cap(r.buf) < want {
		r.buf = make([]byte, want)
	}
	r.buf = r.buf[:want]
	if _, err := io.ReadFull(r.in, r.buf); err != nil {
		return nil, r.framing(err)
	}
	blob, sum := r.buf[:n], r.buf[n:]
	if got := blake3.Sum256(blob); string(got[:]) != string(sum) {
		return nil, fmt.Errorf("%w: record %d digest mismatch", ErrCorrupt, r.n)
	}
	need, err := dbus.BytesNeeded(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: record %d: %w", ErrCorrupt, r.n, err)
	}
	if need != len(blob) {
		return nil, fmt.Errorf("%w: record %d is %d bytes, but holds a %d byte message", ErrCorrupt, r.n, len(blob), need)
	}
	r.n++
	return blob, nil
}

func (r *Reader) framing(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: record %d truncated", ErrCorrupt, r.n)
	}
	return fmt.Errorf("reading record %d: %w", r.n, err)
}

// Close releases resources held by the reader. It does not close the
// underlying reader.
func (r *Reader) Close() {
	if r.zr != nil {
		r.zr.Close()
	}
}
