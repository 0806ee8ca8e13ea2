package detect

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProbeSparseBundle(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Info.plist"), []byte("<plist/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Probe(dir)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if f != FormatSparseBundle {
		t.Fatalf("got %v, want FormatSparseBundle", f)
	}
}

func TestProbeSparseImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.sparseimage")
	if err := os.WriteFile(path, []byte("sprs"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if f != FormatSparseImage {
		t.Fatalf("got %v, want FormatSparseImage", f)
	}
}

func TestProbeUDIFFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.dmg")
	if err := os.WriteFile(path, []byte("anything"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if f != FormatUDIF {
		t.Fatalf("got %v, want FormatUDIF", f)
	}
}
