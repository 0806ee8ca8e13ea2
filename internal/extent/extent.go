// Package extent implements the block-table model (spec §3, §4.F): an
// ordered, non-overlapping, gap-covering partition of a logical disk
// into Extents, each describing how to satisfy reads against it.
package extent

import (
	"fmt"
	"sort"
)

// Kind is the chunk type tagging an Extent, per spec §3/§6.
type Kind int

const (
	Passthrough Kind = iota
	ZeroFill
	Ignored
	Comment
	Terminator
	ADC
	Zlib
	Bzip2
	LZFSE
	LZVN
)

func (k Kind) String() string {
	switch k {
	case Passthrough:
		return "Passthrough"
	case ZeroFill:
		return "ZeroFill"
	case Ignored:
		return "Ignored"
	case Comment:
		return "Comment"
	case Terminator:
		return "Terminator"
	case ADC:
		return "ADC"
	case Zlib:
		return "Zlib"
	case Bzip2:
		return "Bzip2"
	case LZFSE:
		return "LZFSE"
	case LZVN:
		return "LZVN"
	default:
		return "Unknown"
	}
}

// Compressed reports whether this kind requires running a decompressor
// over the backing bytes before they can satisfy a read.
func (k Kind) Compressed() bool {
	switch k {
	case ADC, Zlib, Bzip2, LZFSE, LZVN:
		return true
	default:
		return false
	}
}

// Routable reports whether this kind participates in read routing.
// Comment and Terminator chunks are parsed but skipped (spec §3 invariant).
func (k Kind) Routable() bool {
	return k != Comment && k != Terminator
}

// Source locates the physical bytes backing a compressed or passthrough
// extent. ZeroFill and Ignored extents carry a zero Source (unused).
type Source struct {
	// FileID identifies which backing file/band this extent reads from
	// (band number for a sparse bundle, 0 for a single-file UDIF or
	// sparse image).
	FileID         int
	PhysicalOffset int64
	PhysicalSize   int64
}

// Extent is one routing unit of the logical disk (spec §3).
type Extent struct {
	LogicalOffset int64
	LogicalSize   int64
	Kind          Kind
	Source        Source
}

func (e Extent) LogicalEnd() int64 { return e.LogicalOffset + e.LogicalSize }

// LogicalMedia is the immutable, binary-searchable extent list for one
// opened image (spec §3, §4.F). Build it with a Builder and never
// mutate it afterward.
type LogicalMedia struct {
	MediaSize int64
	BlockSize int64
	extents   []Extent // routable extents only, sorted, gap-free, abutting
}

// Find returns the extent containing offset, or false if offset is
// outside [0, MediaSize).
func (m *LogicalMedia) Find(offset int64) (Extent, bool) {
	if offset < 0 || offset >= m.MediaSize || len(m.extents) == 0 {
		return Extent{}, false
	}
	i := sort.Search(len(m.extents), func(i int) bool {
		return m.extents[i].LogicalEnd() > offset
	})
	if i >= len(m.extents) {
		return Extent{}, false
	}
	return m.extents[i], true
}

// Slice calls yield once per extent overlapping [offset, offset+length),
// along with the sub-range of that extent (in extent-relative bytes)
// the request touches. It stops early if yield returns false, and stops
// (without error) at logical end-of-media.
func (m *LogicalMedia) Slice(offset, length int64, yield func(e Extent, relOff, relLen int64) bool) {
	if length <= 0 {
		return
	}
	end := offset + length
	if end > m.MediaSize {
		end = m.MediaSize
	}
	for offset < end {
		e, ok := m.Find(offset)
		if !ok {
			return
		}
		relOff := offset - e.LogicalOffset
		relLen := e.LogicalSize - relOff
		if want := end - offset; relLen > want {
			relLen = want
		}
		if !yield(e, relOff, relLen) {
			return
		}
		offset += relLen
	}
}

// Extents returns a copy of the routable extent list in logical
// order, for callers that need to summarize the block table (e.g. a
// chunk-kind histogram) rather than just route reads through it.
func (m *LogicalMedia) Extents() []Extent {
	out := make([]Extent, len(m.extents))
	copy(out, m.extents)
	return out
}

// Builder accumulates extents during parse (spec §4.E feeds one of
// these) and validates the §3 invariants and the §9 overlap Open
// Question before producing a LogicalMedia.
type Builder struct {
	mediaSize int64
	blockSize int64
	extents   []Extent
	lastEnd   int64
}

// NewBuilder starts a Builder for a disk of the given size and nominal
// sector/block size.
func NewBuilder(mediaSize, blockSize int64) *Builder {
	return &Builder{mediaSize: mediaSize, blockSize: blockSize}
}

// Add appends one extent. Non-routable kinds (Comment, Terminator) are
// accepted and dropped: they are not kept in the routing list and are
// exempt from the overlap/ordering check, matching spec §3's "never
// participate in read routing... skipped during parse".
func (b *Builder) Add(e Extent) error {
	if !e.Kind.Routable() {
		return nil
	}
	if e.LogicalSize < 0 {
		return fmt.Errorf("extent at %d: negative logical size %d", e.LogicalOffset, e.LogicalSize)
	}
	if e.LogicalOffset < b.lastEnd {
		return fmt.Errorf("extent at %d overlaps previous extent ending at %d", e.LogicalOffset, b.lastEnd)
	}
	if e.LogicalOffset > b.lastEnd {
		return fmt.Errorf("extent at %d leaves a gap after %d", e.LogicalOffset, b.lastEnd)
	}
	b.extents = append(b.extents, e)
	b.lastEnd = e.LogicalEnd()
	return nil
}

// Build validates full coverage of [0, mediaSize) and returns the
// immutable LogicalMedia.
func (b *Builder) Build() (*LogicalMedia, error) {
	if b.lastEnd != b.mediaSize {
		return nil, fmt.Errorf("extents cover [0, %d) but media size is %d", b.lastEnd, b.mediaSize)
	}
	return &LogicalMedia{
		MediaSize: b.mediaSize,
		BlockSize: b.blockSize,
		extents:   b.extents,
	}, nil
}
