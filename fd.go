//go:build unix

package dbus

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// dupFiles returns duplicates of files, which share the underlying
// open file descriptions but can be closed independently.
func dupFiles(files []*os.File) ([]*os.File, error) {
	if len(files) == 0 {
		return nil, nil
	}
	ret := make([]*os.File, 0, len(files))
	for _, f := range files {
		dup, err := dupFile(f)
		if err != nil {
			for _, d := range ret {
				d.Close()
			}
			return nil, err
		}
		ret = append(ret, dup)
	}
	return ret, nil
}

func dupFile(f *os.File) (*os.File, error) {
	if f == nil {
		return nil, errors.New("nil file")
	}
	rc, err := f.SyscallConn()
	if err != nil {
		return nil, err
	}
	var (
		fd     int
		dupErr error
	)
	err = rc.Control(func(orig uintptr) {
		fd, dupErr = unix.FcntlInt(orig, unix.F_DUPFD_CLOEXEC, 0)
	})
	if err != nil {
		return nil, err
	}
	if dupErr != nil {
		return nil, fmt.Errorf("duplicating %s: %w", f.Name(), dupErr)
	}
	return os.NewFile(uintptr(fd), f.Name()), nil
}

// describeFile returns a summary of f's stat information.
func describeFile(f *os.File) string {
	rc, err := f.SyscallConn()
	if err != nil {
		return fmt.Sprintf("(fstat failed: %v)", err)
	}
	var (
		st      unix.Stat_t
		statErr error
	)
	if err := rc.Control(func(fd uintptr) { statErr = unix.Fstat(int(fd), &st) }); err != nil {
		statErr = err
	}
	if statErr != nil {
		return fmt.Sprintf("(fstat failed: %v)", statErr)
	}
	dev, rdev := uint64(st.Dev), uint64(st.Rdev)
	var b strings.Builder
	fmt.Fprintf(&b, "dev=%d:%d,mode=0%o,ino=%d,uid=%d,gid=%d,rdev=%d:%d,size=%d",
		unix.Major(dev), unix.Minor(dev), st.Mode, st.Ino, st.Uid, st.Gid,
		unix.Major(rdev), unix.Minor(rdev), st.Size)
	return b.String()
}

// fdNumber returns the descriptor number of f, for display.
func fdNumber(f *os.File) int {
	n := -1
	if rc, err := f.SyscallConn(); err == nil {
		rc.Control(func(fd uintptr) { n = int(fd) })
	}
	return n
}
