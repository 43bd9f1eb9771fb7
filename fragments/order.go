package fragments

import (
	"encoding/binary"

	"golang.org/x/sys/cpu"
)

// ByteOrder is a byte order that DBus messages can be encoded with.
type ByteOrder interface {
	byteOrder
	// Flag returns the byte that identifies the byte order at the
	// start of a message: 'l' for little-endian, 'B' for big-endian.
	Flag() byte
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

type flagged struct {
	byteOrder
	flag byte
}

func (f flagged) Flag() byte { return f.flag }

var (
	BigEndian    ByteOrder = flagged{binary.BigEndian, 'B'}
	LittleEndian ByteOrder = flagged{binary.LittleEndian, 'l'}
	NativeEndian ByteOrder = native()
)

func native() ByteOrder {
	if cpu.IsBigEndian {
		return flagged{binary.NativeEndian, 'B'}
	}
	return flagged{binary.NativeEndian, 'l'}
}

// OrderForFlag returns the ByteOrder identified by the message flag
// byte b. It reports false if b is not a valid flag.
func OrderForFlag(b byte) (ByteOrder, bool) {
	switch b {
	case BigEndian.Flag():
		return BigEndian, true
	case LittleEndian.Flag():
		return LittleEndian, true
	default:
		return nil, false
	}
}
