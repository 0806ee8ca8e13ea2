package lzvn

import "testing"

func TestDecompressLiteralLarge(t *testing.T) {
	literal := []byte("My compressed file\n")
	src := append([]byte{0xe0, byte(len(literal) - 16)}, literal...)
	src = append(src, 0x06) // end of stream

	dst := make([]byte, 64)
	n, err := Decompress(src, dst)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if string(dst[:n]) != string(literal) {
		t.Fatalf("got %q, want %q", dst[:n], literal)
	}
}

func TestDecompressTruncatedLiteral(t *testing.T) {
	// Literal-small opcode 0xe5 claims 5 bytes but only 2 follow.
	src := []byte{0xe5, 'a', 'b'}
	dst := make([]byte, 16)
	if _, err := Decompress(src, dst); err != ErrTruncatedInput {
		t.Fatalf("err = %v, want ErrTruncatedInput", err)
	}
}

func TestDecompressInvalidOppcode(t *testing.T) {
	src := []byte{0x1e}
	dst := make([]byte, 16)
	if _, err := Decompress(src, dst); err != ErrInvalidOppcode {
		t.Fatalf("err = %v, want ErrInvalidOppcode", err)
	}
}

func TestDecompressOverlappingMatch(t *testing.T) {
	// literal-small 'A', then distance-small opcode with distance=1,
	// match size 5 (self-overlapping run of 'A's).
	src := []byte{0xe1, 'A', 0x10, 0x01}
	dst := make([]byte, 16)
	n, err := Decompress(src, dst)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	want := "AAAAAA"
	if string(dst[:n]) != want {
		t.Fatalf("got %q, want %q", dst[:n], want)
	}
}

func TestDecompressDistancePreviousWithoutPriorDistance(t *testing.T) {
	// 0x46 is a distance-previous opcode; as the very first opcode in
	// the stream there is no earlier distance to reuse.
	src := []byte{0x46}
	dst := make([]byte, 16)
	if _, err := Decompress(src, dst); err != ErrNoPreviousDistance {
		t.Fatalf("err = %v, want ErrNoPreviousDistance", err)
	}
}

func TestDecompressDistancePreviousReusesDistance(t *testing.T) {
	// literal 'A', distance-small opcode (distance=1, match 5), then a
	// distance-previous opcode (0x46: literal 1, match 3) that must
	// reuse distance=1 rather than erroring.
	src := []byte{0xe1, 'A', 0x10, 0x01, 0x46, 'B'}
	dst := make([]byte, 16)
	n, err := Decompress(src, dst)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	want := "AAAAAABBBB"
	if string(dst[:n]) != want {
		t.Fatalf("got %q, want %q", dst[:n], want)
	}
}

func TestDecompressStopsAtOutputCapacity(t *testing.T) {
	// Two one-byte literals exactly fill a two-byte destination; the
	// decode loop must stop cleanly rather than attempt a third opcode.
	src := []byte{0xe1, 'A', 0xe1, 'B', 0xe1, 'C'}
	dst := make([]byte, 2)
	n, err := Decompress(src, dst)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if n != 2 || string(dst) != "AB" {
		t.Fatalf("got %q (n=%d), want %q", dst[:n], n, "AB")
	}
}
