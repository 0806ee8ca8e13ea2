package lzfse

// inputStream reads LZFSE's entropy-coded payload back-to-front: the
// encoder appends bits starting from the end of the payload buffer, so
// the decoder walks the byte stream backwards while accumulating bits
// into a 64-bit window, matching libmodi_lzvn_bit_stream's forward
// analogue but mirrored per the LZFSE payload's write direction.
type inputStream struct {
	buf   []byte
	pos   int // next unread byte index, descending
	accum uint64
	nbits uint
}

// newInputStream starts a reverse bit reader over buf[:endOffset].
// trailingGarbageBits is the header's literal_bits/lmd_bits field: the
// count of low-order bits in the payload's final byte (buf[endOffset-1],
// the first byte this reader consumes) that belong to the encoder's
// byte-alignment padding rather than the coded stream, and so must be
// dropped before the first real read.
func newInputStream(buf []byte, endOffset int, trailingGarbageBits uint) *inputStream {
	s := &inputStream{buf: buf, pos: endOffset}
	if trailingGarbageBits > 0 && endOffset > 0 {
		s.pos--
		s.accum = uint64(buf[s.pos]) >> trailingGarbageBits
		s.nbits = 8 - trailingGarbageBits
	}
	return s
}

// refill pulls whole bytes off the tail of the buffer until at least
// 56 bits are buffered, or the buffer is exhausted.
func (s *inputStream) refill() {
	for s.nbits <= 56 && s.pos > 0 {
		s.pos--
		s.accum |= uint64(s.buf[s.pos]) << s.nbits
		s.nbits += 8
	}
}

// read consumes and returns the low n bits of the stream (n <= 32).
func (s *inputStream) read(n uint) uint32 {
	if n == 0 {
		return 0
	}
	if s.nbits < n {
		s.refill()
	}
	v := uint32(s.accum & ((1 << n) - 1))
	s.accum >>= n
	s.nbits -= n
	return v
}

func (s *inputStream) exhausted() bool {
	return s.pos == 0 && s.nbits == 0
}
