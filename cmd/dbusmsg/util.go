package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

type indenter struct {
	out        io.Writer
	prefix     string
	indentNext bool
}

func (i *indenter) v(v any) {
	fmt.Fprintf(i, "%v\n", v)
}

func (i *indenter) s(msg string) {
	io.WriteString(i, msg+"\n")
}

func (i *indenter) f(msg string, args ...any) {
	fmt.Fprintf(i, msg+"\n", args...)
}

func (i *indenter) Write(bs []byte) (int, error) {
	ret := 0
	for len(bs) > 0 {
		if i.indentNext {
			i.indentNext = false
			_, err := io.WriteString(i.out, i.prefix)
			if err != nil {
				return ret, err
			}
		}

		var wr []byte
		idx := bytes.IndexByte(bs, '\n')
		if idx >= 0 {
			i.indentNext = true
			wr, bs = bs[:idx+1], bs[idx+1:]
		} else {
			wr, bs = bs, nil
		}

		n, err := i.out.Write(wr)
		ret += n
		if err != nil {
			return ret, err
		}
	}
	return ret, nil
}

func (i *indenter) indent(n int) {
	i.prefix = strings.Repeat("  ", n)
}

// openInput opens the named file for reading, or stdin if path is
// empty or "-".
func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// readBlob reads an encoded message from path. If isHex is set, the
// input is hex text, and whitespace within it is ignored.
func readBlob(path string, isHex bool) ([]byte, error) {
	f, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bs, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if !isHex {
		return bs, nil
	}
	bs = bytes.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, bs)
	ret := make([]byte, hex.DecodedLen(len(bs)))
	if _, err := hex.Decode(ret, bs); err != nil {
		return nil, fmt.Errorf("decoding hex input: %w", err)
	}
	return ret, nil
}

// writeBlob writes blob to w, as a hex dump if isHex is set.
func writeBlob(w io.Writer, blob []byte, isHex bool) error {
	if !isHex {
		_, err := w.Write(blob)
		return err
	}
	for len(blob) > 0 {
		n := min(len(blob), 16)
		if _, err := fmt.Fprintf(w, "%x\n", blob[:n]); err != nil {
			return err
		}
		blob = blob[n:]
	}
	return nil
}
