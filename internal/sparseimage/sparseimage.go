// Package sparseimage parses the single-file sparse disk image format
// (magic "sprs", spec §4.E): a small fixed header followed by a vector
// of per-band 1-based physical band numbers (0 meaning "band never
// written, reads as zero").
//
// Grounded on internal/apm's header-then-index-vector parsing shape,
// translated from Apple Partition Map's big-endian 512-byte entries to
// sparse image's big-endian 52-byte header and uint32 band-index
// vector.
package sparseimage

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/elliotnunn/modi/internal/extent"
)

const headerSize = 52

var ErrNotSparseImage = fmt.Errorf("sparseimage: missing sprs magic")

// Header is the decoded fixed 52-byte sparse-image header.
type Header struct {
	SignatureVersion uint32
	SectorsPerBand   uint32
	Flags            uint32
	SectorsTotal     uint32
	NextBandIndex    uint32
}

// ReadHeader reads and validates the header at the start of r.
func ReadHeader(r io.ReaderAt) (Header, error) {
	var h Header
	buf := make([]byte, headerSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return h, fmt.Errorf("sparseimage: reading header: %w", err)
	}
	if string(buf[0:4]) != "sprs" {
		return h, ErrNotSparseImage
	}
	be32 := binary.BigEndian.Uint32
	h.SignatureVersion = be32(buf[4:])
	h.SectorsPerBand = be32(buf[8:])
	h.Flags = be32(buf[12:])
	h.SectorsTotal = be32(buf[16:])
	// buf[20:48] is reserved padding.
	h.NextBandIndex = be32(buf[48:])
	return h, nil
}

const sectorSize = 512

// bandDataStart is the first 512-byte-aligned offset following the
// header and the band-index vector; sparse-image files have no field
// recording this directly, so it is computed from the band count. This
// is a documented implementation decision (see DESIGN.md's Open
// Question decisions), not a fact recovered from original_source.
func bandDataStart(bandCount int) int64 {
	indexVectorEnd := int64(headerSize) + int64(bandCount)*4
	return (indexVectorEnd + sectorSize - 1) / sectorSize * sectorSize
}

// ReadBandIndex reads the bandCount-entry big-endian uint32 band-index
// vector immediately following the header; entry i is 0 if band i was
// never written, else its 1-based physical band number.
func ReadBandIndex(r io.ReaderAt, bandCount int) ([]uint32, error) {
	buf := make([]byte, bandCount*4)
	if _, err := r.ReadAt(buf, headerSize); err != nil {
		return nil, fmt.Errorf("sparseimage: reading band index: %w", err)
	}
	index := make([]uint32, bandCount)
	for i := range index {
		index[i] = binary.BigEndian.Uint32(buf[i*4:])
	}
	return index, nil
}

// BuildExtents converts a sparse image's header and band index into a
// gap-free extent list covering the whole logical media: present bands
// become Passthrough extents pointing at their physical band region,
// absent bands become ZeroFill.
func BuildExtents(h Header, index []uint32) []extent.Extent {
	bandSize := int64(h.SectorsPerBand) * sectorSize
	mediaSize := int64(h.SectorsTotal) * sectorSize
	start := bandDataStart(len(index))

	out := make([]extent.Extent, 0, len(index))
	for i, physicalBand := range index {
		logicalOffset := int64(i) * bandSize
		logicalSize := bandSize
		if end := logicalOffset + logicalSize; end > mediaSize {
			logicalSize = mediaSize - logicalOffset
		}
		if logicalSize <= 0 {
			break
		}

		if physicalBand == 0 {
			out = append(out, extent.Extent{
				LogicalOffset: logicalOffset,
				LogicalSize:   logicalSize,
				Kind:          extent.ZeroFill,
			})
			continue
		}

		out = append(out, extent.Extent{
			LogicalOffset: logicalOffset,
			LogicalSize:   logicalSize,
			Kind:          extent.Passthrough,
			Source: extent.Source{
				PhysicalOffset: start + int64(physicalBand-1)*bandSize,
				PhysicalSize:   logicalSize,
			},
		})
	}
	return out
}
