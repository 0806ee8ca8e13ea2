package sparsebundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/elliotnunn/modi/internal/extent"
)

func writeInfoPlist(t *testing.T, dir string, bandSize, size int64) {
	t.Helper()
	content := `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>band-size</key>
	<integer>` + itoa(bandSize) + `</integer>
	<key>size</key>
	<integer>` + itoa(size) + `</integer>
	<key>bundle-backingstore-version</key>
	<integer>1</integer>
</dict>
</plist>
`
	if err := os.WriteFile(filepath.Join(dir, "Info.plist"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestReadInfoMissingPlist(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadInfo(dir); err != ErrMissingInfoPlist {
		t.Fatalf("err = %v, want ErrMissingInfoPlist", err)
	}
}

func TestReadInfoParsesFields(t *testing.T) {
	dir := t.TempDir()
	writeInfoPlist(t, dir, 4096, 20000)
	info, err := ReadInfo(dir)
	if err != nil {
		t.Fatalf("ReadInfo: %v", err)
	}
	if info.BandSize != 4096 || info.Size != 20000 {
		t.Fatalf("got %+v", info)
	}
}

func TestBuildExtentsMarksPresentAndAbsentBands(t *testing.T) {
	dir := t.TempDir()
	bandsDir := filepath.Join(dir, "bands")
	if err := os.MkdirAll(bandsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bandsDir, "1"), make([]byte, 4096), 0o644); err != nil {
		t.Fatal(err)
	}

	info := Info{BandSize: 4096, Size: 4096 * 3}
	extents, err := BuildExtents(dir, info)
	if err != nil {
		t.Fatalf("BuildExtents: %v", err)
	}
	if len(extents) != 3 {
		t.Fatalf("got %d extents, want 3", len(extents))
	}
	if extents[0].Kind != extent.ZeroFill {
		t.Fatalf("band 0 = %v, want ZeroFill", extents[0].Kind)
	}
	if extents[1].Kind != extent.Passthrough || extents[1].Source.FileID != 1 {
		t.Fatalf("band 1 = %+v, want Passthrough FileID=1", extents[1])
	}
	if extents[2].Kind != extent.ZeroFill {
		t.Fatalf("band 2 = %v, want ZeroFill", extents[2].Kind)
	}
}

func TestBuildExtentsTruncatesFinalBand(t *testing.T) {
	dir := t.TempDir()
	info := Info{BandSize: 4096, Size: 5000}
	extents, err := BuildExtents(dir, info)
	if err != nil {
		t.Fatalf("BuildExtents: %v", err)
	}
	if len(extents) != 2 {
		t.Fatalf("got %d extents, want 2", len(extents))
	}
	if extents[1].LogicalSize != 5000-4096 {
		t.Fatalf("final band size = %d, want %d", extents[1].LogicalSize, 5000-4096)
	}
}
