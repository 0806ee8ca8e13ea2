package lzfse

import "encoding/binary"

// v1 header field offsets (see package doc: reconstructed from the
// public LZFSE block layout, since the reference pack's
// libmodi_lzfse.h only carries the struct's field list, not a byte
// offset table).
const (
	v1HeaderSize = 4 + 4*6 + 4 + 2*4 + 4 + 2*3 + 2*lSymbols + 2*mSymbols + 2*dSymbols + 2*literalSymbols
)

type v1Header struct {
	nRawBytes             int
	nPayloadBytes         int
	nLiterals             int
	nCommands             int
	nLiteralPayloadBytes  int
	nLMDPayloadBytes      int
	literalBits           int32
	literalState          [4]uint16
	lmdBits               int32
	lState, mState, dState uint16
	lFreq, mFreq           [20]uint16
	dFreq                  [64]uint16
	literalFreq            [256]uint16
}

func parseV1Header(src []byte, pos int) (v1Header, error) {
	var h v1Header
	if pos+v1HeaderSize > len(src) {
		return h, ErrTruncatedInput
	}
	p := pos + 4 // skip magic
	u32 := func() int { v := int(binary.LittleEndian.Uint32(src[p:])); p += 4; return v }
	i32 := func() int32 { v := int32(binary.LittleEndian.Uint32(src[p:])); p += 4; return v }
	u16 := func() uint16 { v := binary.LittleEndian.Uint16(src[p:]); p += 2; return v }

	h.nRawBytes = u32()
	h.nPayloadBytes = u32()
	h.nLiterals = u32()
	h.nCommands = u32()
	h.nLiteralPayloadBytes = u32()
	h.nLMDPayloadBytes = u32()
	h.literalBits = i32()
	for i := range h.literalState {
		h.literalState[i] = u16()
	}
	h.lmdBits = i32()
	h.lState = u16()
	h.mState = u16()
	h.dState = u16()
	for i := range h.lFreq {
		h.lFreq[i] = u16()
	}
	for i := range h.mFreq {
		h.mFreq[i] = u16()
	}
	for i := range h.dFreq {
		h.dFreq[i] = u16()
	}
	for i := range h.literalFreq {
		h.literalFreq[i] = u16()
	}
	return h, nil
}

// decodeBlockV1 decodes one "bvx1" block starting at src[pos], writing
// into dst[outPos:], returning the new output cursor and input cursor.
func decodeBlockV1(st *blockState, src []byte, pos int, dst []byte, outPos int) (int, int, error) {
	h, err := parseV1Header(src, pos)
	if err != nil {
		return outPos, pos, err
	}
	bodyStart := pos + v1HeaderSize
	if bodyStart+h.nPayloadBytes > len(src) {
		return outPos, pos, ErrTruncatedInput
	}

	st.literalTable = buildDecoderTable(literalStates, h.literalFreq[:])
	st.lTable = buildValueDecoderTable(lStates, h.lFreq[:], lExtraBits[:], lBaseValue[:])
	st.mTable = buildValueDecoderTable(mStates, h.mFreq[:], mExtraBits[:], mBaseValue[:])
	st.dTable = buildValueDecoderTable(dStates, h.dFreq[:], dExtraBits[:], dBaseValue[:])
	st.literalState = h.literalState
	st.lState, st.mState, st.dState = h.lState, h.mState, h.dState

	literalPayload := src[bodyStart : bodyStart+h.nLiteralPayloadBytes]
	lmdPayload := src[bodyStart+h.nLiteralPayloadBytes : bodyStart+h.nPayloadBytes]

	newOutPos, err := decodeBlockBody(st, literalPayload, h.nLiterals, h.literalBits, lmdPayload, h.nCommands, h.lmdBits, h.nRawBytes, dst, outPos)
	if err != nil {
		return outPos, pos, err
	}
	return newOutPos, bodyStart + h.nPayloadBytes, nil
}

// decodeBlockV2 expands a compact "bvx2" header (the same fields as
// v1, bit-packed instead of one field per machine word) and otherwise
// shares v1's body decode. The exact packed-field bit widths are not
// verified against Apple's reference decoder in this build (see
// package doc); callers working exclusively with "bvx1"/"bvxn"/"bvx-"
// producers are unaffected.
func decodeBlockV2(st *blockState, src []byte, pos int, dst []byte, outPos int) (int, int, error) {
	if pos+4+8+24+2*(lSymbols+mSymbols+dSymbols+literalSymbols) > len(src) {
		return outPos, pos, ErrTruncatedInput
	}
	p := pos + 4
	nRawBytes := int(binary.LittleEndian.Uint32(src[p:]))
	p += 4
	packed0 := binary.LittleEndian.Uint64(src[p:])
	p += 8
	packed1 := binary.LittleEndian.Uint64(src[p:])
	p += 8
	packed2 := binary.LittleEndian.Uint64(src[p:])
	p += 8

	// Bit allocation as read below, low bits first in each 64-bit word:
	// word 0: n_payload_bytes(32), n_literals(20), low 12 bits of
	// n_cmds | word 1: high 8 bits of n_cmds, n_literal_payload_bytes(20),
	// n_lmd_payload_bytes(20), l_state(6), m_state(6) | word 2: d_state(8)
	// at bit 2, then four 10-bit literal states. No literal_bits/lmd_bits
	// fields are read.
	nPayloadBytes := int(packed0 & 0xffffffff)
	nLiterals := int((packed0 >> 32) & 0xfffff)
	nCommands := int((packed0 >> 52) & 0xfff) // low 12 bits here
	nCommands |= int((packed1 & 0xff) << 12)

	nLiteralPayloadBytes := int((packed1 >> 8) & 0xfffff)
	nLMDPayloadBytes := int((packed1 >> 28) & 0xfffff)
	lState := uint16((packed1 >> 48) & 0x3f)
	mState := uint16((packed1 >> 54) & 0x3f)
	dState := uint16((packed2 >> 2) & 0xff)

	_ = nLMDPayloadBytes
	_ = lState
	_ = mState
	_ = dState

	literalState := [4]uint16{
		uint16((packed2 >> 10) & 0x3ff),
		uint16((packed2 >> 20) & 0x3ff),
		uint16((packed2 >> 30) & 0x3ff),
		uint16((packed2 >> 40) & 0x3ff),
	}

	bodyStart := p
	if bodyStart+nPayloadBytes > len(src) {
		return outPos, pos, ErrTruncatedInput
	}

	freqStart := bodyStart
	freqBytes := 2 * (lSymbols + mSymbols + dSymbols + literalSymbols)
	if freqStart+freqBytes > len(src) {
		return outPos, pos, ErrTruncatedInput
	}
	var lFreq, mFreq [20]uint16
	var dFreq [64]uint16
	var literalFreq [256]uint16
	fp := freqStart
	for i := range lFreq {
		lFreq[i] = binary.LittleEndian.Uint16(src[fp:])
		fp += 2
	}
	for i := range mFreq {
		mFreq[i] = binary.LittleEndian.Uint16(src[fp:])
		fp += 2
	}
	for i := range dFreq {
		dFreq[i] = binary.LittleEndian.Uint16(src[fp:])
		fp += 2
	}
	for i := range literalFreq {
		literalFreq[i] = binary.LittleEndian.Uint16(src[fp:])
		fp += 2
	}

	st.literalTable = buildDecoderTable(literalStates, literalFreq[:])
	st.lTable = buildValueDecoderTable(lStates, lFreq[:], lExtraBits[:], lBaseValue[:])
	st.mTable = buildValueDecoderTable(mStates, mFreq[:], mExtraBits[:], mBaseValue[:])
	st.dTable = buildValueDecoderTable(dStates, dFreq[:], dExtraBits[:], dBaseValue[:])
	st.literalState = literalState
	st.lState, st.mState, st.dState = lState, mState, dState

	payloadEnd := bodyStart + nPayloadBytes
	literalPayload := src[fp : fp+nLiteralPayloadBytes]
	lmdPayload := src[fp+nLiteralPayloadBytes : payloadEnd]

	// v2's packed header carries no separate literal_bits/lmd_bits
	// sub-fields as reconstructed here (see package doc); treat both
	// streams as byte-aligned until a verified v2 bit layout is
	// available.
	newOutPos, err := decodeBlockBody(st, literalPayload, nLiterals, 0, lmdPayload, nCommands, 0, nRawBytes, dst, outPos)
	if err != nil {
		return outPos, pos, err
	}
	return newOutPos, payloadEnd, nil
}

// decodeBlockBody runs the two-pass LZFSE block decode shared by v1
// and v2 framings: first the literal stream fills a scratch buffer of
// nLiterals bytes via four interleaved FSE literal decoders, then
// nCommands (L, M, D) triples are read from the LMD stream, each
// copying L bytes out of the literal buffer followed by an M-byte
// back-reference at distance D (or the most recent non-zero distance
// when D decodes to zero). literalBits/lmdBits give each stream's starting
// sub-byte bit offset, per the block header.
func decodeBlockBody(st *blockState, literalPayload []byte, nLiterals int, literalBits int32, lmdPayload []byte, nCommands int, lmdBits int32, nRawBytes int, dst []byte, outPos int) (int, error) {
	literals := make([]byte, nLiterals)
	lit := newInputStream(literalPayload, len(literalPayload), uint(literalBits))
	states := st.literalState
	for i := 0; i < nLiterals; i++ {
		s := &states[i%4]
		e := st.literalTable[*s]
		extra := lit.read(uint(e.numberOfBits))
		literals[i] = e.symbol
		*s = uint16(int32(e.delta) + int32(extra))
	}
	st.literalState = states

	lmd := newInputStream(lmdPayload, len(lmdPayload), uint(lmdBits))
	literalCursor := 0
	lState, mState, dState := st.lState, st.mState, st.dState

	for cmd := 0; cmd < nCommands; cmd++ {
		lVal, newLState := decodeValue(st.lTable, lState, lmd)
		mVal, newMState := decodeValue(st.mTable, mState, lmd)
		dVal, newDState := decodeValue(st.dTable, dState, lmd)
		lState, mState, dState = newLState, newMState, newDState

		if lVal > 0 {
			if literalCursor+int(lVal) > len(literals) {
				return outPos, ErrTruncatedInput
			}
			if outPos+int(lVal) > len(dst) {
				return outPos, ErrOutputOverrun
			}
			copy(dst[outPos:outPos+int(lVal)], literals[literalCursor:literalCursor+int(lVal)])
			literalCursor += int(lVal)
			outPos += int(lVal)
		}

		matchLen := mVal + matchMinLength
		if dVal != 0 {
			st.lastDistance = dVal
		}
		distance := int(st.lastDistance)
		if matchLen > 0 {
			if distance <= 0 || distance > outPos {
				return outPos, ErrOutputOverrun
			}
			if outPos+int(matchLen) > len(dst) {
				return outPos, ErrOutputOverrun
			}
			src := outPos - distance
			for i := 0; i < int(matchLen); i++ {
				dst[outPos] = dst[src]
				outPos++
				src++
			}
		}
	}

	// Trailing literals beyond the last command's L count are copied
	// verbatim to reach the block's declared raw size.
	if literalCursor < len(literals) {
		n := len(literals) - literalCursor
		if outPos+n > len(dst) {
			return outPos, ErrOutputOverrun
		}
		copy(dst[outPos:outPos+n], literals[literalCursor:])
		outPos += n
	}

	st.lState, st.mState, st.dState = lState, mState, dState
	return outPos, nil
}

// decodeValue reads one FSE value symbol from state, returning the
// decoded integer and the updated state.
func decodeValue(table []valueDecoderEntry, state uint16, in *inputStream) (int32, uint16) {
	e := table[state]
	bits := in.read(uint(e.numberOfBits))
	value := e.valueBase + int32(bits&((1<<e.valueBits)-1))
	nextState := int32(e.delta) + int32(bits>>e.valueBits)
	return value, uint16(nextState)
}
