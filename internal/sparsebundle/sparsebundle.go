// Package sparsebundle parses a sparse-bundle directory (spec §4.E):
// an Info.plist describing total size and per-band layout, backed by a
// bands/ subdirectory of hex-named files (one per written band).
//
// Grounded on internal/apm's "read small header, validate, build an
// extent list" shape; Info.plist is decoded with howett.net/plist
// (already pulled in for internal/udif's resource-fork plist) instead
// of a bespoke parser.
package sparsebundle

import (
	"fmt"
	"os"
	"path/filepath"

	"howett.net/plist"

	"github.com/elliotnunn/modi/internal/extent"
)

// infoPlist mirrors the subset of Info.plist fields this package
// decodes; sparse bundles carry several more (e.g. diskimage-bundle-type)
// that aren't needed to compute extents.
type infoPlist struct {
	BandSize             int64  `plist:"band-size"`
	Size                 int64  `plist:"size"`
	BackingStoreVersion  int    `plist:"bundle-backingstore-version"`
}

// ErrMissingInfoPlist is returned when a directory has no Info.plist.
var ErrMissingInfoPlist = fmt.Errorf("sparsebundle: missing Info.plist")

// Info is the decoded subset of Info.plist needed to compute extents.
type Info struct {
	BandSize int64
	Size     int64
}

// ReadInfo reads and decodes bundleDir/Info.plist.
func ReadInfo(bundleDir string) (Info, error) {
	var info Info
	data, err := os.ReadFile(filepath.Join(bundleDir, "Info.plist"))
	if err != nil {
		if os.IsNotExist(err) {
			return info, ErrMissingInfoPlist
		}
		return info, fmt.Errorf("sparsebundle: reading Info.plist: %w", err)
	}

	var ip infoPlist
	if _, err := plist.Unmarshal(data, &ip); err != nil {
		return info, fmt.Errorf("sparsebundle: decoding Info.plist: %w", err)
	}
	info.BandSize = ip.BandSize
	info.Size = ip.Size
	return info, nil
}

// BuildExtents lists bundleDir/bands/ and produces a gap-free extent
// list covering [0, info.Size): present band files become Passthrough
// extents addressed by FileID (the band number), absent bands become
// ZeroFill. FileID lets internal/source.BundleSource route a read to
// the right band file without re-deriving the band number from the
// logical offset.
func BuildExtents(bundleDir string, info Info) ([]extent.Extent, error) {
	entries, err := os.ReadDir(filepath.Join(bundleDir, "bands"))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("sparsebundle: listing bands: %w", err)
	}

	present := make(map[int64]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, err := parseHexBandName(e.Name())
		if err != nil {
			continue // skip stray non-band files (e.g. .DS_Store)
		}
		present[n] = true
	}

	bandCount := (info.Size + info.BandSize - 1) / info.BandSize
	out := make([]extent.Extent, 0, bandCount)
	for i := int64(0); i < bandCount; i++ {
		logicalOffset := i * info.BandSize
		logicalSize := info.BandSize
		if end := logicalOffset + logicalSize; end > info.Size {
			logicalSize = info.Size - logicalOffset
		}
		if logicalSize <= 0 {
			break
		}

		if !present[i] {
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
				FileID:         int(i),
				PhysicalOffset: 0,
				PhysicalSize:   logicalSize,
			},
		})
	}
	return out, nil
}

func parseHexBandName(name string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(name, "%x", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
