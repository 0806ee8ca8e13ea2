package sparseimage

import (
	"encoding/binary"
	"testing"

	"github.com/elliotnunn/modi/internal/extent"
)

type memReaderAt []byte

func (m memReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m[off:])
	return n, nil
}

func buildHeader(sectorsPerBand, sectorsTotal uint32) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], "sprs")
	binary.BigEndian.PutUint32(buf[8:], sectorsPerBand)
	binary.BigEndian.PutUint32(buf[16:], sectorsTotal)
	return buf
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, headerSize)
	copy(buf, "NOPE")
	if _, err := ReadHeader(memReaderAt(buf)); err != ErrNotSparseImage {
		t.Fatalf("err = %v, want ErrNotSparseImage", err)
	}
}

func TestReadHeaderParsesFields(t *testing.T) {
	h, err := ReadHeader(memReaderAt(buildHeader(8, 32)))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.SectorsPerBand != 8 || h.SectorsTotal != 32 {
		t.Fatalf("got %+v", h)
	}
}

func TestBuildExtentsMixesZeroFillAndPassthrough(t *testing.T) {
	h := Header{SectorsPerBand: 8, SectorsTotal: 24} // 3 bands, 4096 bytes each
	index := []uint32{0, 1, 0}                       // band 1 present
	extents := BuildExtents(h, index)

	if len(extents) != 3 {
		t.Fatalf("got %d extents, want 3", len(extents))
	}
	if extents[0].Kind != extent.ZeroFill {
		t.Fatalf("extent 0 = %v, want ZeroFill", extents[0].Kind)
	}
	if extents[1].Kind != extent.Passthrough {
		t.Fatalf("extent 1 = %v, want Passthrough", extents[1].Kind)
	}
	if extents[2].Kind != extent.ZeroFill {
		t.Fatalf("extent 2 = %v, want ZeroFill", extents[2].Kind)
	}
	bandSize := int64(8 * sectorSize)
	if extents[1].LogicalOffset != bandSize {
		t.Fatalf("extent 1 logical offset = %d, want %d", extents[1].LogicalOffset, bandSize)
	}
}

func TestBuildExtentsTruncatesFinalBand(t *testing.T) {
	h := Header{SectorsPerBand: 8, SectorsTotal: 10} // 4096-byte band, 5120 total -> last band partial
	index := []uint32{1, 1}
	extents := BuildExtents(h, index)
	if len(extents) != 2 {
		t.Fatalf("got %d extents, want 2", len(extents))
	}
	want := int64(10*sectorSize) - int64(8*sectorSize)
	if extents[1].LogicalSize != want {
		t.Fatalf("final band size = %d, want %d", extents[1].LogicalSize, want)
	}
}
