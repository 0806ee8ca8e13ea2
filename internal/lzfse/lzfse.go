// Package lzfse implements the LZFSE decoder (spec §4.D): Apple's
// format layering a finite-state-entropy (FSE/tANS) literal and
// match-parameter coder on top of an LZ77 match model, framed as a
// sequence of typed blocks.
//
// Block framing (magics, v1/v2 headers, the embedded-LZVN and raw
// passthrough block types, end-of-stream) is grounded on the constants
// and struct layouts in
// _examples/original_source/libmodi/libmodi_lzfse.h — the only LZFSE
// source the reference pack retained is that header, not the decoder
// body, so the header-unpacking and table constants below are this
// package's one component built from the public LZFSE format notes
// rather than a cross-checked reference implementation; see DESIGN.md.
package lzfse

import (
	"encoding/binary"
	"errors"

	"github.com/elliotnunn/modi/internal/lzvn"
)

const (
	magicUncompressed   = 0x2d787662 // "bvx-"
	magicCompressedV1   = 0x31787662 // "bvx1"
	magicCompressedV2   = 0x32787662 // "bvx2"
	magicCompressedLZVN = 0x6e787662 // "bvxn"
	magicEndOfStream    = 0x24787662 // "bvx$"
)

const (
	literalStates  = 1024
	literalSymbols = 256
	lStates        = 64
	lSymbols       = 20
	mStates        = 64
	mSymbols       = 20
	dStates        = 256
	dSymbols       = 64
)

// ErrBadMagic is returned when a block header's magic does not match
// any known LZFSE block type.
var ErrBadMagic = errors.New("lzfse: unrecognized block magic")

// ErrTruncatedInput is returned when a block header or payload runs
// past the end of the compressed buffer.
var ErrTruncatedInput = errors.New("lzfse: truncated input")

// ErrOutputOverrun is returned when a block would decode past the
// caller-supplied output capacity.
var ErrOutputOverrun = errors.New("lzfse: output capacity exceeded")

var lExtraBits = [lSymbols]uint8{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 3, 8}
var lBaseValue = [lSymbols]int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 14, 16, 18, 20, 24, 28, 36}

var mExtraBits = [mSymbols]uint8{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 3, 8}
var mBaseValue = [mSymbols]int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 14, 16, 18, 20, 24, 28, 36}

// matchMinLength is added to every decoded M value: LZFSE never emits
// a match shorter than this.
const matchMinLength = 3

var dExtraBits = buildDExtraBits()
var dBaseValue = buildDBaseValue()

// buildDExtraBits constructs the distance symbol's extra-bit counts:
// every group of 4 symbols gains one more extra bit than the last
// (0,0,0,0, 1,1,1,1, 2,2,2,2, ... 15,15,15,15), the same "small table
// covers small values exactly, big values get a wider bucket" shape
// used by L and M above, but with a 4-wide group so the 64 symbols
// reach 15 extra bits and cover the full distance window instead of
// capping out after only 4 bit-widths.
func buildDExtraBits() [dSymbols]uint8 {
	const groupSize = 4
	var t [dSymbols]uint8
	for i := 0; i < dSymbols; i++ {
		t[i] = uint8(i / groupSize)
	}
	return t
}

func buildDBaseValue() [dSymbols]int32 {
	var t [dSymbols]int32
	extra := buildDExtraBits()
	base := int32(0)
	for i := 0; i < dSymbols; i++ {
		t[i] = base
		base += 1 << extra[i]
	}
	return t
}

// blockState carries the running literal/L/M/D decoder state across
// sequential blocks of one LZFSE stream (state survives block
// boundaries within a single compressed object, matching
// libmodi_lzfse_state).
type blockState struct {
	literalTable []decoderEntry
	lTable       []valueDecoderEntry
	mTable       []valueDecoderEntry
	dTable       []valueDecoderEntry

	literalState [4]uint16
	lState       uint16
	mState       uint16
	dState       uint16

	lastDistance int32
}

// Decompress decodes a complete LZFSE object (one or more framed
// blocks terminated by an end-of-stream marker) from src into dst. It
// returns the number of bytes produced.
func Decompress(src []byte, dst []byte) (int, error) {
	var st blockState
	pos, outPos := 0, 0

	for {
		if pos+4 > len(src) {
			return outPos, ErrTruncatedInput
		}
		magic := binary.LittleEndian.Uint32(src[pos:])

		switch magic {
		case magicEndOfStream:
			return outPos, nil

		case magicUncompressed:
			if pos+8 > len(src) {
				return outPos, ErrTruncatedInput
			}
			n := int(binary.LittleEndian.Uint32(src[pos+4:]))
			pos += 8
			if pos+n > len(src) {
				return outPos, ErrTruncatedInput
			}
			if outPos+n > len(dst) {
				return outPos, ErrOutputOverrun
			}
			copy(dst[outPos:outPos+n], src[pos:pos+n])
			pos += n
			outPos += n

		case magicCompressedLZVN:
			if pos+12 > len(src) {
				return outPos, ErrTruncatedInput
			}
			nRaw := int(binary.LittleEndian.Uint32(src[pos+4:]))
			nPayload := int(binary.LittleEndian.Uint32(src[pos+8:]))
			pos += 12
			if pos+nPayload > len(src) {
				return outPos, ErrTruncatedInput
			}
			if outPos+nRaw > len(dst) {
				return outPos, ErrOutputOverrun
			}
			n, err := lzvn.Decompress(src[pos:pos+nPayload], dst[outPos:outPos+nRaw])
			if err != nil {
				return outPos, err
			}
			pos += nPayload
			outPos += n

		case magicCompressedV1:
			n, newPos, err := decodeBlockV1(&st, src, pos, dst, outPos)
			if err != nil {
				return outPos, err
			}
			pos = newPos
			outPos = n

		case magicCompressedV2:
			n, newPos, err := decodeBlockV2(&st, src, pos, dst, outPos)
			if err != nil {
				return outPos, err
			}
			pos = newPos
			outPos = n

		default:
			return outPos, ErrBadMagic
		}
	}
}
