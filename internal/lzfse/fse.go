package lzfse

// decoderEntry is one slot of an FSE literal decoder table: enough
// bits to pick the symbol stored at this state, and the delta applied
// to rebuild the next state once those bits are consumed.
type decoderEntry struct {
	numberOfBits int8
	symbol       uint8
	delta        int16
}

// valueDecoderEntry is one slot of an L/M/D value decoder table: in
// addition to a symbol's bits/delta, it carries the extra value bits
// and base needed to reconstruct the actual L, M or D integer.
type valueDecoderEntry struct {
	numberOfBits uint8
	valueBits    uint8
	delta        int16
	valueBase    int32
}

// buildDecoderTable distributes nsymbols symbols across nstates table
// slots proportionally to freq, the classic FSE spread used to convert
// a normalized frequency table into a fast decode table indexed by
// state. Ported from the canonical table-build walk described in
// Apple's LZFSE format notes (freq[i] == 0 symbols get no slots).
func buildDecoderTable(nstates int, freq []uint16) []decoderEntry {
	table := make([]decoderEntry, nstates)

	totalFreq := 0
	for _, f := range freq {
		totalFreq += int(f)
	}
	if totalFreq == 0 {
		return table
	}

	// Assign each symbol exactly freq[i] slots, walking the table with
	// a prime stride (mod nstates) so each symbol's slots spread across
	// the table instead of clumping at the front.
	step := (nstates >> 1) + (nstates >> 3) + 3
	mask := nstates - 1
	pos := 0
	for symbol, f := range freq {
		for k := 0; k < int(f); k++ {
			table[pos].symbol = uint8(symbol)
			pos = (pos + step) & mask
		}
	}

	// For each symbol, number its occupied slots 0..f-1 in table order
	// and derive (numberOfBits, delta) so that state transitions stay
	// within nstates.
	occurrence := make([]int, len(freq))
	for i := 0; i < nstates; i++ {
		symbol := table[i].symbol
		f := int(freq[symbol])
		if f == 0 {
			continue
		}
		k := occurrence[symbol]
		occurrence[symbol]++

		nbits := highBit(nstates/f) // nstates/f rounded via bit length
		nextState := (k << uint(nbits)) - f
		// nextState may still exceed nstates if f isn't a power-of-two
		// divisor; drop one bit in that case, matching FSE's classic
		// "two possible bit widths per symbol" rule.
		if nextState >= nstates {
			nbits--
			nextState = (k << uint(nbits)) - f
		}
		table[i].numberOfBits = int8(nbits)
		table[i].delta = int16(nextState)
	}

	return table
}

// buildValueDecoderTable layers L/M/D value extraction on top of a
// plain symbol decoder table: each symbol additionally encodes extra
// literal bits and a base value (vbits/vbase), per the same spec
// constants libmodi_lzfse.h documents for the L/M/D state machines.
// A value entry's numberOfBits is the *total* bit count read from the
// stream per transition: the low valueBits of that chunk are the
// value's extra bits, and the remaining high bits combine with delta
// to produce the next state (see decodeValue in block.go).
func buildValueDecoderTable(nstates int, freq []uint16, vbits []uint8, vbase []int32) []valueDecoderEntry {
	base := buildDecoderTable(nstates, freq)
	table := make([]valueDecoderEntry, nstates)
	for i, e := range base {
		vb := vbits[e.symbol]
		table[i] = valueDecoderEntry{
			numberOfBits: uint8(e.numberOfBits) + vb,
			delta:        e.delta,
			valueBits:    vb,
			valueBase:    vbase[e.symbol],
		}
	}
	return table
}

// highBit returns the position of the highest set bit of a positive
// integer (equivalently floor(log2(n))), with highBit(0) defined as 0.
func highBit(n int) int {
	b := 0
	for n > 1 {
		n >>= 1
		b++
	}
	return b
}
