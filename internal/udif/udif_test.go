package udif

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/elliotnunn/modi/internal/extent"
)

func buildTrailer(dataForkLength, xmlOffset, xmlLength uint64) []byte {
	buf := make([]byte, trailerSize)
	copy(buf[0:4], "koly")
	be32 := binary.BigEndian.PutUint32
	be64 := binary.BigEndian.PutUint64
	be32(buf[4:], 4)   // version
	be32(buf[8:], 512) // header size
	be64(buf[32:], dataForkLength)
	be64(buf[216:], xmlOffset)
	be64(buf[224:], xmlLength)
	return buf
}

type memReaderAt []byte

func (m memReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func TestReadTrailerRejectsBadMagic(t *testing.T) {
	buf := make([]byte, trailerSize)
	copy(buf, "NOPE")
	if _, err := ReadTrailer(memReaderAt(buf), int64(len(buf))); err != ErrNotUDIF {
		t.Fatalf("err = %v, want ErrNotUDIF", err)
	}
}

func TestReadTrailerParsesFields(t *testing.T) {
	trailer := buildTrailer(4096, 5000, 200)
	tr, err := ReadTrailer(memReaderAt(trailer), int64(len(trailer)))
	if err != nil {
		t.Fatalf("ReadTrailer: %v", err)
	}
	if tr.DataForkLength != 4096 || tr.XMLOffset != 5000 || tr.XMLLength != 200 {
		t.Fatalf("got %+v", tr)
	}
}

func buildMish(runs []BlkxRun) []byte {
	buf := make([]byte, mishHeaderSize+len(runs)*blkxRunSize)
	copy(buf[0:4], "mish")
	binary.BigEndian.PutUint32(buf[200:], uint32(len(runs)))
	for i, r := range runs {
		rec := buf[mishHeaderSize+i*blkxRunSize:]
		binary.BigEndian.PutUint32(rec[0:], r.Type)
		binary.BigEndian.PutUint32(rec[4:], r.Comment)
		binary.BigEndian.PutUint64(rec[8:], r.SectorStart)
		binary.BigEndian.PutUint64(rec[16:], r.SectorCount)
		binary.BigEndian.PutUint64(rec[24:], r.CompOffset)
		binary.BigEndian.PutUint64(rec[32:], r.CompLength)
	}
	return buf
}

func TestDecodeMishRoundTrip(t *testing.T) {
	want := []BlkxRun{
		{Type: ChunkZeroFill, SectorStart: 0, SectorCount: 8},
		{Type: ChunkPassthrough, SectorStart: 8, SectorCount: 8, CompOffset: 0, CompLength: 4096},
		{Type: ChunkTerminator, SectorStart: 16, SectorCount: 0},
	}
	got, err := decodeMish(buildMish(want))
	if err != nil {
		t.Fatalf("decodeMish: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d runs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("run %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDecodeMishRejectsBadSignature(t *testing.T) {
	buf := buildMish(nil)
	copy(buf[0:4], "xxxx")
	if _, err := decodeMish(buf); err == nil {
		t.Fatal("expected error for bad mish signature")
	}
}

func TestBuildExtentsZeroFillAndPassthrough(t *testing.T) {
	runs := []BlkxRun{
		{Type: ChunkZeroFill, SectorStart: 0, SectorCount: 2},
		{Type: ChunkPassthrough, SectorStart: 2, SectorCount: 2, CompOffset: 100, CompLength: 1024},
		{Type: ChunkTerminator, SectorStart: 4, SectorCount: 0},
	}
	extents, err := BuildExtents(runs, 0x2000)
	if err != nil {
		t.Fatalf("BuildExtents: %v", err)
	}
	if len(extents) != 3 {
		t.Fatalf("got %d extents, want 3", len(extents))
	}
	if extents[0].Kind != extent.ZeroFill {
		t.Fatalf("extent 0 kind = %v, want ZeroFill", extents[0].Kind)
	}
	if extents[1].Kind != extent.Passthrough {
		t.Fatalf("extent 1 kind = %v, want Passthrough", extents[1].Kind)
	}
	if extents[1].Source.PhysicalOffset != 0x2000+100 {
		t.Fatalf("extent 1 physical offset = %d, want %d", extents[1].Source.PhysicalOffset, 0x2000+100)
	}
	if extents[2].Kind != extent.Terminator {
		t.Fatalf("extent 2 kind = %v, want Terminator", extents[2].Kind)
	}
}
