package capture_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/danderson/dbuswire"
	"github.com/danderson/dbuswire/capture"
	"github.com/google/go-cmp/cmp"
)

func testMessages(t *testing.T) []*dbus.Message {
	t.Helper()
	call, err := dbus.NewMethodCall("org.example.Dest", "/org/example/obj", "org.example.Iface", "Frob")
	if err != nil {
		t.Fatal(err)
	}
	call.SetSerial(1)
	if err := call.SetBody(dbus.String("hello"), dbus.Uint32(42)); err != nil {
		t.Fatal(err)
	}

	sig, err := dbus.NewSignal("/org/example/obj", "org.example.Iface", "Changed")
	if err != nil {
		t.Fatal(err)
	}
	sig.SetSerial(2)
	sig.SetByteOrder(dbus.BigEndian)

	reply := dbus.NewMethodReply(call)
	reply.SetSerial(3)
	if err := reply.SetBody(dbus.ByteArray([]byte("some bytes"))); err != nil {
		t.Fatal(err)
	}

	return []*dbus.Message{call, sig, reply}
}

func writeCapture(t *testing.T, c capture.Compression, blobs [][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := capture.NewWriter(&buf, c)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i, b := range blobs {
		if err := w.WriteBlob(b); err != nil {
			t.Fatalf("WriteBlob(%d): %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func marshalAll(t *testing.T, msgs []*dbus.Message) [][]byte {
	t.Helper()
	var ret [][]byte
	for _, m := range msgs {
		bs, err := m.Marshal(0)
		if err != nil {
			t.Fatalf("marshaling %s: %v", m, err)
		}
		ret = append(ret, bs)
	}
	return ret
}

func readAll(t *testing.T, bs []byte) ([][]byte, error) {
	t.Helper()
	r, err := capture.NewReader(bytes.NewReader(bs))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var ret [][]byte
	for {
		blob, err := r.Next()
		if errors.Is(err, io.EOF) {
			return ret, nil
		} else if err != nil {
			return ret, err
		}
		ret = append(ret, bytes.Clone(blob))
	}
}

func TestRoundTrip(t *testing.T) {
	for _, c := range []capture.Compression{capture.CompressionNone, capture.CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			want := marshalAll(t, testMessages(t))
			file := writeCapture(t, c, want)
			if testing.Verbose() {
				t.Logf("capture file is %d bytes", len(file))
			}
			got, err := readAll(t, file)
			if err != nil {
				t.Fatalf("reading capture: %v", err)
			}
			if diff := cmp.Diff(got, want); diff != "" {
				t.Errorf("wrong blobs read back (-got+want):\n%s", diff)
			}
		})
	}
}

func TestWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	w, err := capture.NewWriter(&buf, capture.CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	msgs := testMessages(t)
	for _, m := range msgs {
		if err := w.WriteMessage(m, 0); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if got, want := w.Count(), len(msgs); got != want {
		t.Errorf("Count() = %d, want %d", got, want)
	}
	got, err := readAll(t, buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, marshalAll(t, msgs)); diff != "" {
		t.Errorf("wrong blobs read back (-got+want):\n%s", diff)
	}
}

func TestWriteBlobRejectsPartial(t *testing.T) {
	blobs := marshalAll(t, testMessages(t))
	w, err := capture.NewWriter(io.Discard, capture.CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteBlob(blobs[0][:len(blobs[0])-1]); err == nil {
		t.Error("WriteBlob of truncated message succeeded")
	}
	if err := w.WriteBlob(append(bytes.Clone(blobs[0]), 0)); err == nil {
		t.Error("WriteBlob with trailing garbage succeeded")
	}
	if err := w.WriteBlob([]byte("short")); err == nil {
		t.Error("WriteBlob of short blob succeeded")
	}
}

func TestCorrupt(t *testing.T) {
	blobs := marshalAll(t, testMessages(t))
	good := writeCapture(t, capture.CompressionNone, blobs)

	tests := []struct {
		name   string
		mangle func([]byte) []byte
	}{
		{"empty", func([]byte) []byte { return nil }},
		{"bad magic", func(bs []byte) []byte {
			bs[0] = 'X'
			return bs
		}},
		{"unknown compression", func(bs []byte) []byte {
			bs[8] = 42
			return bs
		}},
		{"truncated record", func(bs []byte) []byte {
			return bs[:len(bs)-5]
		}},
		{"truncated length", func(bs []byte) []byte {
			return append(bs, 0, 0)
		}},
		{"flipped body bit", func(bs []byte) []byte {
			// First record's blob starts after the 9 byte file
			// header and the 4 byte record length.
			bs[9+4+20] ^= 0x01
			return bs
		}},
		{"flipped digest bit", func(bs []byte) []byte {
			bs[9+4+len(blobs[0])] ^= 0x80
			return bs
		}},
		{"oversized record", func(bs []byte) []byte {
			bs[9] = 0xff
			return bs
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := readAll(t, tc.mangle(bytes.Clone(good)))
			if err == nil {
				t.Fatal("reading corrupt capture succeeded")
			}
			if !errors.Is(err, capture.ErrCorrupt) {
				t.Errorf("got error %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestReplay(t *testing.T) {
	msgs := testMessages(t)
	blobs := marshalAll(t, msgs)

	// Correctly framed, but with an unsupported protocol version.
	bad := bytes.Clone(blobs[0])
	bad[3] = 2
	file := writeCapture(t, capture.CompressionZstd, [][]byte{blobs[0], bad, blobs[1], blobs[2]})

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	var got []uint32
	stats, err := capture.Replay(bytes.NewReader(file), 0, logger, func(m *dbus.Message) error {
		got = append(got, m.Serial())
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if diff := cmp.Diff(got, []uint32{1, 2, 3}); diff != "" {
		t.Errorf("wrong messages replayed (-got+want):\n%s", diff)
	}
	wantStats := capture.ReplayStats{Records: 4, Delivered: 3, Skipped: 1}
	if diff := cmp.Diff(stats, wantStats); diff != "" {
		t.Errorf("wrong replay stats (-got+want):\n%s", diff)
	}
	if !bytes.Contains(logs.Bytes(), []byte("skipping undecodable message")) {
		t.Errorf("skipped message was not logged, logs:\n%s", logs.String())
	}
}

func TestReplayStops(t *testing.T) {
	blobs := marshalAll(t, testMessages(t))
	file := writeCapture(t, capture.CompressionNone, blobs)

	errStop := errors.New("stop")
	calls := 0
	stats, err := capture.Replay(bytes.NewReader(file), 0, slog.New(slog.NewTextHandler(io.Discard, nil)), func(m *dbus.Message) error {
		calls++
		if calls == 2 {
			return errStop
		}
		return nil
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("Replay returned %v, want %v", err, errStop)
	}
	if calls != 2 || stats.Delivered != 2 {
		t.Errorf("replay made %d calls (stats %+v), want 2", calls, stats)
	}

	// Framing errors abort the replay.
	_, err = capture.Replay(bytes.NewReader(file[:len(file)-1]), 0, nil, func(*dbus.Message) error { return nil })
	if !errors.Is(err, capture.ErrCorrupt) {
		t.Errorf("Replay of truncated capture returned %v, want ErrCorrupt", err)
	}
}

func ExampleWriter() {
	m, err := dbus.NewSignal("/org/example/obj", "org.example.Iface", "Changed")
	if err != nil {
		panic(err)
	}
	m.SetSerial(1)
	m.SetByteOrder(dbus.LittleEndian)

	var buf bytes.Buffer
	w, err := capture.NewWriter(&buf, capture.CompressionNone)
	if err != nil {
		panic(err)
	}
	if err := w.WriteMessage(m, 0); err != nil {
		panic(err)
	}
	w.Close()

	r, err := capture.NewReader(&buf)
	if err != nil {
		panic(err)
	}
	blob, err := r.Next()
	if err != nil {
		panic(err)
	}
	fmt.Println(len(blob), blob[0] == 'l')
	// Output: 96 true
}
