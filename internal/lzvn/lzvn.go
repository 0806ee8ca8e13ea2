// Package lzvn implements the LZVN decoder (spec §4.C): a byte-aligned
// LZ77 variant with a single opcode byte classified via a 256-entry
// lookup table into literal, match, and distance sub-opcodes that may
// combine a literal run and a match in one opcode.
//
// The opcode table and per-opcode field layout are transcribed from
// _examples/original_source/libmodi/libmodi_lzvn.c, which is itself a
// clean-room reimplementation of Apple's compression_decode_buffer
// LZVN path; the decode loop below keeps that file's structure (a
// single switch over oppcode_type) translated into Go's explicit
// multi-value returns instead of out-parameters.
package lzvn

import "errors"

type oppcodeType uint8

const (
	typeDistanceLarge oppcodeType = iota
	typeDistanceMedium
	typeDistancePrevious
	typeDistanceSmall
	typeEndOfStream
	typeInvalid
	typeLiteralLarge
	typeLiteralSmall
	typeMatchLarge
	typeMatchSmall
	typeNone
)

// oppcodeTypes maps every possible opcode byte to its type, transcribed
// byte-for-byte from libmodi_lzvn_oppcode_types.
var oppcodeTypes = [256]oppcodeType{
	0x00: typeDistanceSmall, 0x01: typeDistanceSmall, 0x02: typeDistanceSmall, 0x03: typeDistanceSmall,
	0x04: typeDistanceSmall, 0x05: typeDistanceSmall, 0x06: typeEndOfStream, 0x07: typeDistanceLarge,
	0x08: typeDistanceSmall, 0x09: typeDistanceSmall, 0x0a: typeDistanceSmall, 0x0b: typeDistanceSmall,
	0x0c: typeDistanceSmall, 0x0d: typeDistanceSmall, 0x0e: typeNone, 0x0f: typeDistanceLarge,

	0x10: typeDistanceSmall, 0x11: typeDistanceSmall, 0x12: typeDistanceSmall, 0x13: typeDistanceSmall,
	0x14: typeDistanceSmall, 0x15: typeDistanceSmall, 0x16: typeNone, 0x17: typeDistanceLarge,
	0x18: typeDistanceSmall, 0x19: typeDistanceSmall, 0x1a: typeDistanceSmall, 0x1b: typeDistanceSmall,
	0x1c: typeDistanceSmall, 0x1d: typeDistanceSmall, 0x1e: typeInvalid, 0x1f: typeDistanceLarge,

	0x20: typeDistanceSmall, 0x21: typeDistanceSmall, 0x22: typeDistanceSmall, 0x23: typeDistanceSmall,
	0x24: typeDistanceSmall, 0x25: typeDistanceSmall, 0x26: typeInvalid, 0x27: typeDistanceLarge,
	0x28: typeDistanceSmall, 0x29: typeDistanceSmall, 0x2a: typeDistanceSmall, 0x2b: typeDistanceSmall,
	0x2c: typeDistanceSmall, 0x2d: typeDistanceSmall, 0x2e: typeInvalid, 0x2f: typeDistanceLarge,

	0x30: typeDistanceSmall, 0x31: typeDistanceSmall, 0x32: typeDistanceSmall, 0x33: typeDistanceSmall,
	0x34: typeDistanceSmall, 0x35: typeDistanceSmall, 0x36: typeInvalid, 0x37: typeDistanceLarge,
	0x38: typeDistanceSmall, 0x39: typeDistanceSmall, 0x3a: typeDistanceSmall, 0x3b: typeDistanceSmall,
	0x3c: typeDistanceSmall, 0x3d: typeDistanceSmall, 0x3e: typeInvalid, 0x3f: typeDistanceLarge,

	0x40: typeDistanceSmall, 0x41: typeDistanceSmall, 0x42: typeDistanceSmall, 0x43: typeDistanceSmall,
	0x44: typeDistanceSmall, 0x45: typeDistanceSmall, 0x46: typeDistancePrevious, 0x47: typeDistanceLarge,
	0x48: typeDistanceSmall, 0x49: typeDistanceSmall, 0x4a: typeDistanceSmall, 0x4b: typeDistanceSmall,
	0x4c: typeDistanceSmall, 0x4d: typeDistanceSmall, 0x4e: typeDistancePrevious, 0x4f: typeDistanceLarge,

	0x50: typeDistanceSmall, 0x51: typeDistanceSmall, 0x52: typeDistanceSmall, 0x53: typeDistanceSmall,
	0x54: typeDistanceSmall, 0x55: typeDistanceSmall, 0x56: typeDistancePrevious, 0x57: typeDistanceLarge,
	0x58: typeDistanceSmall, 0x59: typeDistanceSmall, 0x5a: typeDistanceSmall, 0x5b: typeDistanceSmall,
	0x5c: typeDistanceSmall, 0x5d: typeDistanceSmall, 0x5e: typeDistancePrevious, 0x5f: typeDistanceLarge,

	0x60: typeDistanceSmall, 0x61: typeDistanceSmall, 0x62: typeDistanceSmall, 0x63: typeDistanceSmall,
	0x64: typeDistanceSmall, 0x65: typeDistanceSmall, 0x66: typeDistancePrevious, 0x67: typeDistanceLarge,
	0x68: typeDistanceSmall, 0x69: typeDistanceSmall, 0x6a: typeDistanceSmall, 0x6b: typeDistanceSmall,
	0x6c: typeDistanceSmall, 0x6d: typeDistanceSmall, 0x6e: typeDistancePrevious, 0x6f: typeDistanceLarge,

	0x70: typeInvalid, 0x71: typeInvalid, 0x72: typeInvalid, 0x73: typeInvalid,
	0x74: typeInvalid, 0x75: typeInvalid, 0x76: typeInvalid, 0x77: typeInvalid,
	0x78: typeInvalid, 0x79: typeInvalid, 0x7a: typeInvalid, 0x7b: typeInvalid,
	0x7c: typeInvalid, 0x7d: typeInvalid, 0x7e: typeInvalid, 0x7f: typeInvalid,

	0x80: typeDistanceSmall, 0x81: typeDistanceSmall, 0x82: typeDistanceSmall, 0x83: typeDistanceSmall,
	0x84: typeDistanceSmall, 0x85: typeDistanceSmall, 0x86: typeDistancePrevious, 0x87: typeDistanceLarge,
	0x88: typeDistanceSmall, 0x89: typeDistanceSmall, 0x8a: typeDistanceSmall, 0x8b: typeDistanceSmall,
	0x8c: typeDistanceSmall, 0x8d: typeDistanceSmall, 0x8e: typeDistancePrevious, 0x8f: typeDistanceLarge,

	0x90: typeDistanceSmall, 0x91: typeDistanceSmall, 0x92: typeDistanceSmall, 0x93: typeDistanceSmall,
	0x94: typeDistanceSmall, 0x95: typeDistanceSmall, 0x96: typeDistancePrevious, 0x97: typeDistanceLarge,
	0x98: typeDistanceSmall, 0x99: typeDistanceSmall, 0x9a: typeDistanceSmall, 0x9b: typeDistanceSmall,
	0x9c: typeDistanceSmall, 0x9d: typeDistanceSmall, 0x9e: typeDistancePrevious, 0x9f: typeDistanceLarge,

	0xa0: typeDistanceMedium, 0xa1: typeDistanceMedium, 0xa2: typeDistanceMedium, 0xa3: typeDistanceMedium,
	0xa4: typeDistanceMedium, 0xa5: typeDistanceMedium, 0xa6: typeDistanceMedium, 0xa7: typeDistanceMedium,
	0xa8: typeDistanceMedium, 0xa9: typeDistanceMedium, 0xaa: typeDistanceMedium, 0xab: typeDistanceMedium,
	0xac: typeDistanceMedium, 0xad: typeDistanceMedium, 0xae: typeDistanceMedium, 0xaf: typeDistanceMedium,

	0xb0: typeDistanceMedium, 0xb1: typeDistanceMedium, 0xb2: typeDistanceMedium, 0xb3: typeDistanceMedium,
	0xb4: typeDistanceMedium, 0xb5: typeDistanceMedium, 0xb6: typeDistanceMedium, 0xb7: typeDistanceMedium,
	0xb8: typeDistanceMedium, 0xb9: typeDistanceMedium, 0xba: typeDistanceMedium, 0xbb: typeDistanceMedium,
	0xbc: typeDistanceMedium, 0xbd: typeDistanceMedium, 0xbe: typeDistanceMedium, 0xbf: typeDistanceMedium,

	0xc0: typeDistanceSmall, 0xc1: typeDistanceSmall, 0xc2: typeDistanceSmall, 0xc3: typeDistanceSmall,
	0xc4: typeDistanceSmall, 0xc5: typeDistanceSmall, 0xc6: typeDistancePrevious, 0xc7: typeDistanceLarge,
	0xc8: typeDistanceSmall, 0xc9: typeDistanceSmall, 0xca: typeDistanceSmall, 0xcb: typeDistanceSmall,
	0xcc: typeDistanceSmall, 0xcd: typeDistanceSmall, 0xce: typeDistancePrevious, 0xcf: typeDistanceLarge,

	0xd0: typeInvalid, 0xd1: typeInvalid, 0xd2: typeInvalid, 0xd3: typeInvalid,
	0xd4: typeInvalid, 0xd5: typeInvalid, 0xd6: typeInvalid, 0xd7: typeInvalid,
	0xd8: typeInvalid, 0xd9: typeInvalid, 0xda: typeInvalid, 0xdb: typeInvalid,
	0xdc: typeInvalid, 0xdd: typeInvalid, 0xde: typeInvalid, 0xdf: typeInvalid,

	0xe0: typeLiteralLarge, 0xe1: typeLiteralSmall, 0xe2: typeLiteralSmall, 0xe3: typeLiteralSmall,
	0xe4: typeLiteralSmall, 0xe5: typeLiteralSmall, 0xe6: typeLiteralSmall, 0xe7: typeLiteralSmall,
	0xe8: typeLiteralSmall, 0xe9: typeLiteralSmall, 0xea: typeLiteralSmall, 0xeb: typeLiteralSmall,
	0xec: typeLiteralSmall, 0xed: typeLiteralSmall, 0xee: typeLiteralSmall, 0xef: typeLiteralSmall,

	0xf0: typeMatchLarge, 0xf1: typeMatchSmall, 0xf2: typeMatchSmall, 0xf3: typeMatchSmall,
	0xf4: typeMatchSmall, 0xf5: typeMatchSmall, 0xf6: typeMatchSmall, 0xf7: typeMatchSmall,
	0xf8: typeMatchSmall, 0xf9: typeMatchSmall, 0xfa: typeMatchSmall, 0xfb: typeMatchSmall,
	0xfc: typeMatchSmall, 0xfd: typeMatchSmall, 0xfe: typeMatchSmall, 0xff: typeMatchSmall,
}

// ErrInvalidOppcode is returned for an opcode byte with no defined meaning.
var ErrInvalidOppcode = errors.New("lzvn: invalid oppcode")

// ErrTruncatedInput is returned when an opcode's trailing bytes (or a
// literal/match body) run past the end of src.
var ErrTruncatedInput = errors.New("lzvn: truncated input")

// ErrOutputOverrun is returned when a literal or match would write past dst.
var ErrOutputOverrun = errors.New("lzvn: output capacity exceeded")

// ErrLookBehindUnderrun is returned when a match's distance reaches
// before the start of the output produced so far.
var ErrLookBehindUnderrun = errors.New("lzvn: match distance precedes output start")

// ErrNoPreviousDistance is returned when a distance-previous opcode is
// the first distance-carrying opcode in the stream, so there is no
// prior distance to reuse.
var ErrNoPreviousDistance = errors.New("lzvn: distance-previous opcode with no prior distance")

// Decompress decodes an LZVN stream from src into dst, stopping at an
// end-of-stream opcode, src exhaustion, or dst capacity, matching
// libmodi_lzvn_decompress's three-way loop exit.
func Decompress(src []byte, dst []byte) (int, error) {
	inPos, outPos := 0, 0
	var distance int
	distanceSet := false

	for inPos < len(src) && outPos < len(dst) {
		op := src[inPos]
		inPos++

		literalSize, matchSize := 0, 0

		switch oppcodeTypes[op] {
		case typeDistanceLarge:
			if inPos+1 >= len(src) {
				return outPos, ErrTruncatedInput
			}
			oppcodeValue := src[inPos]
			inPos++
			literalSize = int(op&0xc0) >> 6
			matchSize = int(op&0x38)>>3 + 3
			distance = int(src[inPos])<<8 | int(oppcodeValue)
			distanceSet = true
			inPos++

		case typeDistanceMedium:
			if inPos+1 >= len(src) {
				return outPos, ErrTruncatedInput
			}
			oppcodeValue := src[inPos]
			inPos++
			literalSize = int(op&0x18) >> 3
			matchSize = (int(op&0x07)<<2 | int(oppcodeValue&0x03)) + 3
			distance = int(src[inPos])<<6 | int(oppcodeValue&0xfc)>>2
			distanceSet = true
			inPos++

		case typeDistancePrevious:
			if !distanceSet {
				return outPos, ErrNoPreviousDistance
			}
			literalSize = int(op&0xc0) >> 6
			matchSize = int(op&0x38)>>3 + 3

		case typeDistanceSmall:
			if inPos >= len(src) {
				return outPos, ErrTruncatedInput
			}
			literalSize = int(op&0xc0) >> 6
			matchSize = int(op&0x38)>>3 + 3
			distance = int(op&0x07)<<8 | int(src[inPos])
			distanceSet = true
			inPos++

		case typeLiteralLarge:
			if inPos >= len(src) {
				return outPos, ErrTruncatedInput
			}
			literalSize = int(src[inPos]) + 16
			inPos++

		case typeLiteralSmall:
			literalSize = int(op & 0x0f)

		case typeMatchLarge:
			if inPos >= len(src) {
				return outPos, ErrTruncatedInput
			}
			matchSize = int(src[inPos]) + 16
			inPos++

		case typeMatchSmall:
			matchSize = int(op & 0x0f)

		case typeEndOfStream, typeNone:
			// Handled after the switch: None carries no payload, and
			// EndOfStream ends the loop immediately below.

		default: // typeInvalid
			return outPos, ErrInvalidOppcode
		}

		if oppcodeTypes[op] == typeEndOfStream {
			break
		}

		if literalSize > 0 {
			if inPos+literalSize > len(src) {
				return outPos, ErrTruncatedInput
			}
			if outPos+literalSize > len(dst) {
				return outPos, ErrOutputOverrun
			}
			copy(dst[outPos:outPos+literalSize], src[inPos:inPos+literalSize])
			inPos += literalSize
			outPos += literalSize
		}

		if matchSize > 0 {
			if distance > outPos {
				return outPos, ErrLookBehindUnderrun
			}
			matchOffset := outPos - distance
			if outPos+matchSize > len(dst) {
				return outPos, ErrOutputOverrun
			}
			for i := 0; i < matchSize; i++ {
				dst[outPos] = dst[matchOffset]
				outPos++
				matchOffset++
			}
		}
	}

	return outPos, nil
}
