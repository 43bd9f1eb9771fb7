//go:build !unix

package dbus

import (
	"errors"
	"os"
)

var errNoFDs = errors.New("file descriptor passing is not supported on this platform")

func dupFiles(files []*os.File) ([]*os.File, error) {
	if len(files) == 0 {
		return nil, nil
	}
	return nil, errNoFDs
}

func describeFile(f *os.File) string {
	return f.Name()
}

func fdNumber(f *os.File) int {
	return int(f.Fd())
}
