// Package modi provides read-only access to Mac OS disk images: UDIF
// (.dmg), single-file sparse images (.sparseimage), and sparse bundles
// (.sparsebundle directories). It parses the container's block table
// or band index into an in-memory extent model and serves Read/ReadAt
// against it, decompressing ADC/zlib/bzip2/LZFSE/LZVN chunks on demand
// through a single-flight, budget-bounded cache.
//
// Adapted from the teacher's open.go/fs.go "parse header, build
// immutable model, wrap every failure in a named error" shape, with
// fs.FS path navigation replaced by a single flat, offset-addressed
// byte stream.
package modi

import (
	"compress/bzip2"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zlib"

	"github.com/elliotnunn/modi/internal/adc"
	"github.com/elliotnunn/modi/internal/bandcache"
	"github.com/elliotnunn/modi/internal/checksum"
	"github.com/elliotnunn/modi/internal/config"
	"github.com/elliotnunn/modi/internal/detect"
	"github.com/elliotnunn/modi/internal/extent"
	"github.com/elliotnunn/modi/internal/lzfse"
	"github.com/elliotnunn/modi/internal/lzvn"
	"github.com/elliotnunn/modi/internal/sectionreader"
	"github.com/elliotnunn/modi/internal/source"
	"github.com/elliotnunn/modi/internal/sparsebundle"
	"github.com/elliotnunn/modi/internal/sparseimage"
	"github.com/elliotnunn/modi/internal/udif"
)

// Option configures Open/OpenSparseBundle (spec-adjacent ambient
// concern: cache budget and compressed-chunk size cap, per
// internal/config's env-var-with-override pattern).
type Option = config.Option

// WithCacheBudget overrides the band/chunk cache's memory budget.
func WithCacheBudget(bytes int64) Option { return config.WithCacheBudget(bytes) }

// WithMaxCompressedChunk overrides the per-chunk compressed-size cap
// (spec §9's open question; default is internal/config.DefaultMaxCompressedChunk).
func WithMaxCompressedChunk(bytes int64) Option { return config.WithMaxCompressedChunk(bytes) }

// Whence values for Seek, mirroring io.Seeker.
const (
	SeekStart   = io.SeekStart
	SeekCurrent = io.SeekCurrent
	SeekEnd     = io.SeekEnd
)

// Image is a handle to one opened disk image (spec §6). The zero value
// is not usable; construct with Open or OpenSparseBundle. Safe for
// concurrent Read/ReadAt from multiple goroutines once opened; Seek
// and Read share a single cursor and must not be called concurrently
// with each other.
type Image struct {
	media *extent.LogicalMedia
	cache *bandcache.Cache
	cfg   config.Config

	file   source.Source       // set for UDIF/sparse-image (single backing file)
	bundle *source.BundleSource // set for sparse bundles

	udifTrailer *udif.Trailer // non-nil only when opened via Open on a UDIF file

	mu     sync.Mutex
	cursor int64
	aborted atomic.Bool
}

// Open opens a UDIF (.dmg) or single-file sparse image (.sparseimage)
// at path, auto-detecting the container format (spec §4.E).
func Open(path string, opts ...Option) (*Image, error) {
	format, err := detect.Probe(path)
	if err != nil {
		return nil, wrapErr(DomainIo, CodeOpen, err, "probing %s", path)
	}

	src, err := source.OpenFile(path)
	if err != nil {
		return nil, wrapErr(DomainIo, CodeOpen, err, "opening %s", path)
	}

	img := &Image{
		file: src,
		cfg:  config.New(opts...),
	}

	var buildErr error
	switch format {
	case detect.FormatSparseImage:
		buildErr = img.openSparseImage(src)
	default:
		buildErr = img.openUDIF(src)
	}
	if buildErr != nil {
		src.Close()
		return nil, buildErr
	}

	img.cache = bandcache.New(img.cfg.CacheBudget)
	return img, nil
}

// OpenSparseBundle opens a sparse-bundle directory at directory (spec
// §4.E).
func OpenSparseBundle(directory string, opts ...Option) (*Image, error) {
	info, err := sparsebundle.ReadInfo(directory)
	if err != nil {
		return nil, wrapErr(DomainIo, CodeOpen, err, "reading %s/Info.plist", directory)
	}
	extents, err := sparsebundle.BuildExtents(directory, info)
	if err != nil {
		return nil, wrapErr(DomainInput, CodeInvalidData, err, "building extents for %s", directory)
	}

	b := extent.NewBuilder(info.Size, info.BandSize)
	for _, e := range extents {
		if err := b.Add(e); err != nil {
			return nil, wrapErr(DomainInput, CodeInvalidData, err, "sparse bundle extent layout")
		}
	}
	media, err := b.Build()
	if err != nil {
		return nil, wrapErr(DomainInput, CodeInvalidData, err, "sparse bundle coverage")
	}

	cfg := config.New(opts...)
	return &Image{
		media:  media,
		bundle: source.OpenBundle(filepath.Join(directory, "bands"), info.BandSize),
		cfg:    cfg,
		cache:  bandcache.New(cfg.CacheBudget),
	}, nil
}

func (img *Image) openUDIF(src source.Source) error {
	t, err := udif.ReadTrailer(src, src.Size())
	if err != nil {
		return wrapErr(DomainInput, CodeSignatureMismatch, err, "reading UDIF trailer")
	}
	img.udifTrailer = &t
	if t.SegmentCount > 1 {
		slog.Warn("opening one segment of a multi-segment UDIF image without joining the others", "segment", t.SegmentNumber, "segmentCount", t.SegmentCount)
	}

	tables, err := udif.ReadBlockTables(src, t)
	if err != nil {
		return wrapErr(DomainInput, CodeInvalidData, err, "reading UDIF block tables")
	}

	mediaSize := int64(t.SectorCount) * 512
	b := extent.NewBuilder(mediaSize, 512)
	for _, table := range tables {
		extents, err := udif.BuildExtents(table.Runs, t.DataForkOffset)
		if err != nil {
			return wrapErr(DomainInput, CodeUnsupportedValue, err, "blkx %q", table.Name)
		}
		for _, e := range extents {
			if err := b.Add(e); err != nil {
				return wrapErr(DomainInput, CodeInvalidData, err, "blkx %q extent layout", table.Name)
			}
		}
	}
	media, err := b.Build()
	if err != nil {
		return wrapErr(DomainInput, CodeInvalidData, err, "UDIF coverage")
	}
	img.media = media
	return nil
}

func (img *Image) openSparseImage(src source.Source) error {
	h, err := sparseimage.ReadHeader(src)
	if err != nil {
		return wrapErr(DomainInput, CodeSignatureMismatch, err, "reading sparse image header")
	}
	mediaSize := int64(h.SectorsTotal) * 512
	bandSize := int64(h.SectorsPerBand) * 512
	bandCount := int((mediaSize + bandSize - 1) / bandSize)
	index, err := sparseimage.ReadBandIndex(src, bandCount)
	if err != nil {
		return wrapErr(DomainInput, CodeInvalidData, err, "reading band index")
	}
	extents := sparseimage.BuildExtents(h, index)

	b := extent.NewBuilder(mediaSize, bandSize)
	for _, e := range extents {
		if err := b.Add(e); err != nil {
			return wrapErr(DomainInput, CodeInvalidData, err, "sparse image extent layout")
		}
	}
	media, err := b.Build()
	if err != nil {
		return wrapErr(DomainInput, CodeInvalidData, err, "sparse image coverage")
	}
	img.media = media
	return nil
}

// Close releases the image's backing file descriptors.
func (img *Image) Close() error {
	if img.file != nil {
		return img.file.Close()
	}
	if img.bundle != nil {
		return img.bundle.Close()
	}
	return nil
}

// MediaSize returns the logical size of the disk image in bytes.
func (img *Image) MediaSize() int64 { return img.media.MediaSize }

// Abort requests that any in-progress Read/ReadAt return early with
// ErrAbortRequested at the next extent boundary (spec §5).
func (img *Image) Abort() { img.aborted.Store(true) }

// Seek repositions the handle's read cursor, matching io.Seeker.
func (img *Image) Seek(offset int64, whence int) (int64, error) {
	img.mu.Lock()
	defer img.mu.Unlock()
	var abs int64
	switch whence {
	case SeekStart:
		abs = offset
	case SeekCurrent:
		abs = img.cursor + offset
	case SeekEnd:
		abs = img.media.MediaSize + offset
	default:
		return 0, newErr(DomainArgument, CodeInvalidValue, "invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, newErr(DomainArgument, CodeOutOfBounds, "negative seek result %d", abs)
	}
	img.cursor = abs
	return abs, nil
}

// Read fills buf from the handle's current cursor and advances it,
// matching io.Reader (spec §4.H/§6's read).
func (img *Image) Read(buf []byte) (int, error) {
	img.mu.Lock()
	offset := img.cursor
	img.mu.Unlock()

	n, err := img.ReadAt(buf, offset)

	img.mu.Lock()
	img.cursor += int64(n)
	img.mu.Unlock()

	if err == nil && n < len(buf) {
		err = io.EOF
	}
	return n, err
}

// ReadAt fills buf with media bytes starting at offset, without
// touching the handle's Seek cursor (spec §4.H/§6's read_at). A short
// read is returned only at end-of-media, on abort, or on error — never
// silently otherwise (§8 universal property 1).
func (img *Image) ReadAt(buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, newErr(DomainArgument, CodeOutOfBounds, "negative offset %d", offset)
	}
	if offset >= img.media.MediaSize || len(buf) == 0 {
		return 0, nil
	}

	var written int
	var readErr error
	img.media.Slice(offset, int64(len(buf)), func(e extent.Extent, relOff, relLen int64) bool {
		if img.aborted.Load() {
			readErr = ErrAbortRequested
			return false
		}
		dst := buf[written : written+int(relLen)]
		if err := img.fillExtent(e, relOff, dst); err != nil {
			readErr = err
			return false
		}
		written += int(relLen)
		return true
	})
	return written, readErr
}

// fillExtent satisfies one extent's worth of a read into dst, per the
// routing rules of spec §4.H step 3.
func (img *Image) fillExtent(e extent.Extent, relOff int64, dst []byte) error {
	switch e.Kind {
	case extent.ZeroFill, extent.Ignored:
		for i := range dst {
			dst[i] = 0
		}
		return nil

	case extent.Passthrough:
		return img.readPhysical(e.Source, relOff, dst)

	default: // a compressed kind
		decoded, err := img.decodedBand(e)
		if err != nil {
			return err
		}
		if relOff+int64(len(dst)) > int64(len(decoded)) {
			return newErr(DomainCompression, CodeDecompressFailed, "decoded band shorter than extent claims")
		}
		copy(dst, decoded[relOff:relOff+int64(len(dst))])
		return nil
	}
}

// readPhysical reads a Passthrough extent's bytes directly, without
// going through the cache (uncompressed data needs no decode step).
func (img *Image) readPhysical(s extent.Source, relOff int64, dst []byte) error {
	if img.bundle != nil {
		_, err := img.bundle.ReadBand(s.FileID, s.PhysicalOffset+relOff, dst)
		if err != nil {
			return wrapErr(DomainIo, CodeRead, err, "reading band %d", s.FileID)
		}
		return nil
	}
	_, err := img.file.ReadAt(dst, s.PhysicalOffset+relOff)
	if err != nil {
		return wrapErr(DomainIo, CodeRead, err, "reading data fork at %d", s.PhysicalOffset+relOff)
	}
	return nil
}

// decodedBand fetches (decoding on miss, via the band cache) the full
// decompressed bytes backing a compressed extent.
func (img *Image) decodedBand(e extent.Extent) ([]byte, error) {
	if e.Source.PhysicalSize > img.cfg.MaxCompressedChunk {
		return nil, newErr(DomainArgument, CodeValueExceedsMaximum, "compressed chunk size %d exceeds limit %d", e.Source.PhysicalSize, img.cfg.MaxCompressedChunk)
	}

	fp := bandcache.Fingerprint{
		FileID:         e.Source.FileID,
		PhysicalOffset: e.Source.PhysicalOffset,
		PhysicalSize:   e.Source.PhysicalSize,
	}
	return img.cache.Get(fp, func() ([]byte, error) {
		raw, err := img.readRawChunk(e.Source)
		if err != nil {
			return nil, err
		}
		return decodeChunk(e.Kind, raw, e.LogicalSize)
	})
}

// readRawChunk reads a compressed chunk's compressed bytes ahead of
// decoding. For a single-file image this goes through
// internal/sectionreader's bounded io.ReaderAt view of the chunk's
// byte range,
// the same positioned-slicing idiom the teacher uses to hand
// sub-ranges of one backing file to independent decoders; a sparse
// bundle's bands are already separate files, so no section view is
// needed there.
func (img *Image) readRawChunk(s extent.Source) ([]byte, error) {
	raw := make([]byte, s.PhysicalSize)
	if img.bundle != nil {
		if _, err := img.bundle.ReadBand(s.FileID, s.PhysicalOffset, raw); err != nil {
			return nil, wrapErr(DomainIo, CodeRead, err, "reading band %d", s.FileID)
		}
		return raw, nil
	}
	section := sectionreader.Section(img.file, s.PhysicalOffset, s.PhysicalSize)
	if _, err := section.ReadAt(raw, 0); err != nil {
		return nil, wrapErr(DomainIo, CodeRead, err, "reading compressed chunk at %d", s.PhysicalOffset)
	}
	return raw, nil
}

// decodeChunk runs the decompressor matching kind over raw, producing
// exactly logicalSize bytes.
func decodeChunk(kind extent.Kind, raw []byte, logicalSize int64) ([]byte, error) {
	out := make([]byte, logicalSize)
	var n int
	var err error

	switch kind {
	case extent.ADC:
		n, err = adc.Decompress(raw, out)
	case extent.LZVN:
		n, err = lzvn.Decompress(raw, out)
	case extent.LZFSE:
		n, err = lzfse.Decompress(raw, out)
	case extent.Zlib:
		n, err = inflateZlib(raw, out)
	case extent.Bzip2:
		n, err = inflateBzip2(raw, out)
	default:
		return nil, newErr(DomainInput, CodeUnsupportedValue, "unsupported compressed chunk kind %v", kind)
	}
	if err != nil {
		return nil, wrapErr(DomainCompression, CodeDecompressFailed, err, "decoding %v chunk", kind)
	}
	if int64(n) != logicalSize {
		return nil, newErr(DomainCompression, CodeDecompressFailed, "%v chunk decoded to %d bytes, extent claims %d", kind, n, logicalSize)
	}
	return out, nil
}

func inflateZlib(raw, out []byte) (int, error) {
	r, err := zlib.NewReader(newByteReader(raw))
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return io.ReadFull(r, out)
}

func inflateBzip2(raw, out []byte) (int, error) {
	r := bzip2.NewReader(newByteReader(raw))
	n, err := io.ReadFull(r, out)
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	return n, err
}

func newByteReader(b []byte) io.Reader { return &sliceReader{b: b} }

// sliceReader is a minimal io.Reader over a byte slice (bytes.Reader
// would do, but this keeps the decode helpers self-contained and
// allocation-free for the common single-read case).
type sliceReader struct {
	b []byte
	i int
}

func (s *sliceReader) Read(p []byte) (int, error) {
	if s.i >= len(s.b) {
		return 0, io.EOF
	}
	n := copy(p, s.b[s.i:])
	s.i += n
	return n, nil
}

// DataChecksum reports the UDIF trailer's whole-data-fork checksum
// (supplemented surface; zero value for non-UDIF images).
func (img *Image) DataChecksum() checksum.Info {
	if img.udifTrailer == nil {
		return checksum.Info{}
	}
	t := img.udifTrailer
	return checksum.Info{Algorithm: checksum.Algorithm(t.DataChecksumType), SizeBits: t.DataChecksumSize, Digest: t.DataChecksum}
}

// MasterChecksum reports the UDIF trailer's block-table checksum
// (supplemented surface; zero value for non-UDIF images).
func (img *Image) MasterChecksum() checksum.Info {
	if img.udifTrailer == nil {
		return checksum.Info{}
	}
	t := img.udifTrailer
	return checksum.Info{Algorithm: checksum.Algorithm(t.MasterChecksumType), SizeBits: t.MasterChecksumSize, Digest: t.MasterChecksum}
}

// Segment reports the UDIF trailer's segment fields, for images that
// are one part of a multi-segment (.dmgpart) set (supplemented
// surface; joining segments on open is out of scope per §1).
func (img *Image) Segment() (number, count uint32, id [16]byte) {
	if img.udifTrailer == nil {
		return 0, 0, id
	}
	return img.udifTrailer.SegmentNumber, img.udifTrailer.SegmentCount, img.udifTrailer.SegmentID
}

// ImageVariant reports the UDIF trailer's image_variant field (0 for
// non-UDIF images).
func (img *Image) ImageVariant() uint32 {
	if img.udifTrailer == nil {
		return 0
	}
	return img.udifTrailer.ImageVariant
}

// ChunkHistogram counts logical extents by kind (supplemented
// `modiinfo`-style reporting surface, SPEC_FULL.md item 2).
func (img *Image) ChunkHistogram() map[extent.Kind]int {
	out := make(map[extent.Kind]int)
	for _, e := range img.media.Extents() {
		out[e.Kind]++
	}
	return out
}
