package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSourceReadAt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")
	want := []byte("hello, disk image")
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer src.Close()

	if src.Size() != int64(len(want)) {
		t.Fatalf("Size() = %d, want %d", src.Size(), len(want))
	}

	buf := make([]byte, 5)
	n, err := src.ReadAt(buf, 7)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != 5 || string(buf) != "disk " {
		t.Fatalf("ReadAt got %q (n=%d), want %q", buf, n, "disk ")
	}
}

func TestFileSourceShortReadIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	buf := make([]byte, 10)
	_, err = src.ReadAt(buf, 0)
	if err == nil {
		t.Fatal("expected error on short read past end of file")
	}
}

func TestBundleSourceAbsentBandReadsZero(t *testing.T) {
	dir := t.TempDir()
	bandsDir := filepath.Join(dir, "bands")
	if err := os.MkdirAll(bandsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	present := make([]byte, 32)
	for i := range present {
		present[i] = 0xAB
	}
	if err := os.WriteFile(filepath.Join(bandsDir, "1"), present, 0o644); err != nil {
		t.Fatal(err)
	}

	bs := OpenBundle(bandsDir, 32)
	defer bs.Close()

	buf := make([]byte, 32)
	n, err := bs.ReadBand(1, 0, buf)
	if err != nil || n != 32 {
		t.Fatalf("ReadBand(1): n=%d err=%v", n, err)
	}
	if buf[0] != 0xAB {
		t.Fatalf("ReadBand(1) = %v, want present band bytes", buf)
	}

	buf2 := make([]byte, 32)
	for i := range buf2 {
		buf2[i] = 0xFF
	}
	n, err = bs.ReadBand(2, 0, buf2)
	if err != nil || n != 32 {
		t.Fatalf("ReadBand(2, absent): n=%d err=%v", n, err)
	}
	for _, b := range buf2 {
		if b != 0 {
			t.Fatalf("ReadBand(2, absent) should zero-fill, got %v", buf2)
		}
	}
}
