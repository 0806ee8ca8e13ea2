// Package detect sniffs which of the three image container formats
// (spec §4.A/§4.E) a path names: a single UDIF file, a single sparse
// image file, or a sparse-bundle directory.
//
// Adapted from probe.go's "switch on the first N header bytes" shape
// (there switching on zip/tar/gzip/bzip2/StuffIt/HFS magics); here
// switching on koly/sprs/Info.plist instead.
package detect

import (
	"fmt"
	"os"
)

// Format identifies which container BuildExtents/Open should use.
type Format int

const (
	FormatUnknown Format = iota
	FormatUDIF
	FormatSparseImage
	FormatSparseBundle
)

func (f Format) String() string {
	switch f {
	case FormatUDIF:
		return "UDIF"
	case FormatSparseImage:
		return "SparseImage"
	case FormatSparseBundle:
		return "SparseBundle"
	default:
		return "Unknown"
	}
}

// Probe determines path's container format. A directory containing
// Info.plist is a sparse bundle; otherwise the file's header magic
// decides between sparse image ("sprs") and UDIF, whose signature
// ("koly") lives in a trailer at the end of the file rather than the
// start, per spec §4.E — Probe only distinguishes "not sprs" here and
// leaves final UDIF trailer validation to internal/udif.ReadTrailer.
func Probe(path string) (Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("detect: %w", err)
	}

	if info.IsDir() {
		if _, err := os.Stat(path + "/Info.plist"); err == nil {
			return FormatSparseBundle, nil
		}
		return FormatUnknown, fmt.Errorf("detect: directory %s has no Info.plist", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("detect: %w", err)
	}
	defer f.Close()

	head := make([]byte, 4)
	if _, err := f.ReadAt(head, 0); err != nil {
		return FormatUnknown, fmt.Errorf("detect: reading header: %w", err)
	}
	if string(head) == "sprs" {
		return FormatSparseImage, nil
	}
	return FormatUDIF, nil
}
