//go:build unix

package source

import (
	"os"

	"golang.org/x/sys/unix"
)

// preadRaw issues a single positioned read directly against the file
// descriptor via golang.org/x/sys/unix.Pread, bypassing the extra
// bookkeeping os.File.ReadAt does internally. Concurrent readers on the
// same *os.File each get their own pread(2) call with no shared cursor,
// which is what spec §5 assumes of a byte-stream source ("each read_at
// is self-contained").
func preadRaw(f *os.File, buf []byte, offset int64) (int, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return 0, err
	}
	var n int
	var innerErr error
	err = rc.Read(func(fd uintptr) bool {
		n, innerErr = unix.Pread(int(fd), buf, offset)
		return innerErr != unix.EAGAIN
	})
	if err != nil {
		return n, err
	}
	return n, innerErr
}
