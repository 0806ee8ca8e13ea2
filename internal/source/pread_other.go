//go:build !unix

package source

import "os"

// preadRaw falls back to the stdlib's positioned read on platforms
// without golang.org/x/sys/unix (e.g. Windows, which already serves
// os.File.ReadAt from an OS-level overlapped read with no shared cursor).
func preadRaw(f *os.File, buf []byte, offset int64) (int, error) {
	return f.ReadAt(buf, offset)
}
