// Package udif parses the UDIF (Universal Disk Image Format) trailer
// and block-table plist of a .dmg file (spec §4.E, §6): a fixed
// 512-byte "koly" trailer pointing at an XML property list (the
// "resource fork" in legacy terms) whose "blkx" entries each carry a
// binary "mish" block-table describing one partition's extents.
//
// Modeled on internal/apm's "read a small fixed header, validate the
// magic, then decode a run of fixed-size records" shape, translated
// from Apple Partition Map's big-endian 512-byte entries to UDIF's
// big-endian trailer and 40-byte BLKXRun chunk records.
package udif

import (
	"encoding/binary"
	"fmt"
	"io"

	"howett.net/plist"

	"github.com/elliotnunn/modi/internal/extent"
)

const trailerSize = 512

var ErrNotUDIF = fmt.Errorf("udif: missing koly trailer")

// Trailer is the decoded fixed-size footer of a UDIF file.
type Trailer struct {
	Version              uint32
	HeaderSize            uint32
	Flags                 uint32
	RunningDataForkOffset uint64
	DataForkOffset        uint64
	DataForkLength        uint64
	RsrcForkOffset        uint64
	RsrcForkLength        uint64
	SegmentNumber         uint32
	SegmentCount          uint32
	SegmentID             [16]byte
	DataChecksumType      uint32
	DataChecksumSize      uint32
	DataChecksum          [32]uint32
	XMLOffset             uint64
	XMLLength             uint64
	MasterChecksumType    uint32
	MasterChecksumSize    uint32
	MasterChecksum        [32]uint32
	ImageVariant          uint32
	SectorCount           uint64
}

// ReadTrailer reads and validates the 512-byte koly trailer at the end
// of r, whose total length is size.
func ReadTrailer(r io.ReaderAt, size int64) (Trailer, error) {
	var t Trailer
	if size < trailerSize {
		return t, ErrNotUDIF
	}
	buf := make([]byte, trailerSize)
	if _, err := r.ReadAt(buf, size-trailerSize); err != nil {
		return t, fmt.Errorf("udif: reading trailer: %w", err)
	}
	if string(buf[0:4]) != "koly" {
		return t, ErrNotUDIF
	}

	be32 := binary.BigEndian.Uint32
	be64 := binary.BigEndian.Uint64

	t.Version = be32(buf[4:])
	t.HeaderSize = be32(buf[8:])
	t.Flags = be32(buf[12:])
	t.RunningDataForkOffset = be64(buf[16:])
	t.DataForkOffset = be64(buf[24:])
	t.DataForkLength = be64(buf[32:])
	t.RsrcForkOffset = be64(buf[40:])
	t.RsrcForkLength = be64(buf[48:])
	t.SegmentNumber = be32(buf[56:])
	t.SegmentCount = be32(buf[60:])
	copy(t.SegmentID[:], buf[64:80])
	t.DataChecksumType = be32(buf[80:])
	t.DataChecksumSize = be32(buf[84:])
	for i := range t.DataChecksum {
		t.DataChecksum[i] = be32(buf[88+i*4:])
	}
	t.XMLOffset = be64(buf[216:])
	t.XMLLength = be64(buf[224:])
	// buf[232:352] reserved1 (120 bytes)
	t.MasterChecksumType = be32(buf[352:])
	t.MasterChecksumSize = be32(buf[356:])
	for i := range t.MasterChecksum {
		t.MasterChecksum[i] = be32(buf[360+i*4:])
	}
	t.ImageVariant = be32(buf[488:])
	t.SectorCount = be64(buf[492:])
	// buf[500:512] reserved2 (12 bytes)

	return t, nil
}

// resourceFork mirrors the subset of the UDIF XML property list this
// package consumes: a "resource-fork" dictionary of arrays, each entry
// an attributes dict with a base64 "Data" payload (the binary "mish"
// block table) under the "blkx" key.
type resourceFork struct {
	ResourceFork struct {
		Blkx []struct {
			Data []byte `plist:"Data"`
			Name string `plist:"Name"`
			ID   int    `plist:"ID"`
		} `plist:"blkx"`
	} `plist:"resource-fork"`
}

// BlockTable is one decoded "blkx" entry: a partition's logical extent
// list plus its descriptive name from the plist.
type BlockTable struct {
	Name    string
	Runs    []BlkxRun
	Builder *extent.Builder
}

// BlkxRun is one decoded 40-byte BLKXRun chunk record.
type BlkxRun struct {
	Type         uint32
	Comment      uint32
	SectorStart  uint64
	SectorCount  uint64
	CompOffset   uint64
	CompLength   uint64
}

// Chunk type codes (spec §4.E / §6).
const (
	ChunkZeroFill    = 0x00000000
	ChunkPassthrough = 0x00000001
	ChunkIgnored     = 0x00000002
	ChunkADC         = 0x80000004
	ChunkZlib        = 0x80000005
	ChunkBzip2       = 0x80000006
	ChunkLZFSE       = 0x80000007
	ChunkLZVN        = 0x80000008
	ChunkComment     = 0x7ffffffe
	ChunkTerminator  = 0xffffffff
)

const mishHeaderSize = 204
const blkxRunSize = 40

// ReadBlockTables fetches the XML plist from r using the trailer's
// XMLOffset/XMLLength, decodes it via howett.net/plist, and returns one
// BlockTable per "blkx" array element with its binary mish payload
// decoded into BlkxRun records.
func ReadBlockTables(r io.ReaderAt, t Trailer) ([]BlockTable, error) {
	xml := make([]byte, t.XMLLength)
	if _, err := r.ReadAt(xml, int64(t.XMLOffset)); err != nil {
		return nil, fmt.Errorf("udif: reading XML plist: %w", err)
	}

	var rf resourceFork
	if _, err := plist.Unmarshal(xml, &rf); err != nil {
		return nil, fmt.Errorf("udif: decoding resource-fork plist: %w", err)
	}

	tables := make([]BlockTable, 0, len(rf.ResourceFork.Blkx))
	for _, entry := range rf.ResourceFork.Blkx {
		runs, err := decodeMish(entry.Data)
		if err != nil {
			return nil, fmt.Errorf("udif: blkx %q: %w", entry.Name, err)
		}
		tables = append(tables, BlockTable{Name: entry.Name, Runs: runs})
	}
	return tables, nil
}

// decodeMish parses a "mish" block-table header followed by its
// BLKXRun array, per spec §4.E/§6's 204-byte header + N x 40-byte runs.
func decodeMish(data []byte) ([]BlkxRun, error) {
	if len(data) < mishHeaderSize {
		return nil, fmt.Errorf("mish header truncated: %d bytes", len(data))
	}
	if string(data[0:4]) != "mish" {
		return nil, fmt.Errorf("bad mish signature %q", data[0:4])
	}
	be32 := binary.BigEndian.Uint32
	runCount := int(be32(data[200:204]))

	want := mishHeaderSize + runCount*blkxRunSize
	if len(data) < want {
		return nil, fmt.Errorf("mish run table truncated: have %d want %d", len(data), want)
	}

	be64 := binary.BigEndian.Uint64
	runs := make([]BlkxRun, runCount)
	for i := range runs {
		rec := data[mishHeaderSize+i*blkxRunSize:]
		runs[i] = BlkxRun{
			Type:        be32(rec[0:]),
			Comment:     be32(rec[4:]),
			SectorStart: be64(rec[8:]),
			SectorCount: be64(rec[16:]),
			CompOffset:  be64(rec[24:]),
			CompLength:  be64(rec[32:]),
		}
	}
	return runs, nil
}

const sectorSize = 512

// BuildExtents converts a BlockTable's BlkxRun records into extent.Extent
// values relative to the whole-image logical address space, anchored
// at the partition's own starting logical sector (callers combining
// multiple blkx entries into one media must offset by the partition's
// position in the outer partition map themselves).
func BuildExtents(runs []BlkxRun, dataForkOffset uint64) ([]extent.Extent, error) {
	out := make([]extent.Extent, 0, len(runs))
	for _, run := range runs {
		var kind extent.Kind
		switch run.Type {
		case ChunkTerminator:
			kind = extent.Terminator
		case ChunkComment:
			kind = extent.Comment
		default:
			var err error
			kind, err = chunkKind(run.Type)
			if err != nil {
				return nil, err
			}
		}

		e := extent.Extent{
			LogicalOffset: int64(run.SectorStart) * sectorSize,
			LogicalSize:   int64(run.SectorCount) * sectorSize,
			Kind:          kind,
		}
		if kind.Compressed() || kind == extent.Passthrough {
			e.Source = extent.Source{
				PhysicalOffset: int64(dataForkOffset + run.CompOffset),
				PhysicalSize:   int64(run.CompLength),
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func chunkKind(chunkType uint32) (extent.Kind, error) {
	switch chunkType {
	case ChunkZeroFill:
		return extent.ZeroFill, nil
	case ChunkPassthrough:
		return extent.Passthrough, nil
	case ChunkIgnored:
		return extent.Ignored, nil
	case ChunkADC:
		return extent.ADC, nil
	case ChunkZlib:
		return extent.Zlib, nil
	case ChunkBzip2:
		return extent.Bzip2, nil
	case ChunkLZFSE:
		return extent.LZFSE, nil
	case ChunkLZVN:
		return extent.LZVN, nil
	default:
		return 0, fmt.Errorf("udif: unsupported chunk type 0x%08x", chunkType)
	}
}
