package adc

import "testing"

func TestDecompressS1(t *testing.T) {
	src := []byte{0x83, 0xFE, 0xED, 0xFA, 0xCE, 0x00, 0x00, 0x40, 0x00, 0x06}
	want := []byte{0xFE, 0xED, 0xFA, 0xCE, 0xCE, 0xCE, 0xCE, 0xFE, 0xED, 0xFA, 0xCE}

	dst := make([]byte, 16)
	n, err := Decompress(src, dst)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if n != len(want) {
		t.Fatalf("n = %d, want %d", n, len(want))
	}
	if string(dst[:n]) != string(want) {
		t.Fatalf("got % x, want % x", dst[:n], want)
	}
}

func TestDecompressLiteralOnly(t *testing.T) {
	src := []byte{0x83, 'a', 'b', 'c', 'd'}
	dst := make([]byte, 8)
	n, err := Decompress(src, dst)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if string(dst[:n]) != "abcd" {
		t.Fatalf("got %q, want %q", dst[:n], "abcd")
	}
}

func TestDecompressOutputOverrun(t *testing.T) {
	src := []byte{0x83, 'a', 'b', 'c', 'd'}
	dst := make([]byte, 2)
	if _, err := Decompress(src, dst); err != ErrOutputOverrun {
		t.Fatalf("err = %v, want ErrOutputOverrun", err)
	}
}

func TestDecompressTruncatedLiteral(t *testing.T) {
	src := []byte{0x83, 'a', 'b'}
	dst := make([]byte, 8)
	if _, err := Decompress(src, dst); err != ErrTruncatedInput {
		t.Fatalf("err = %v, want ErrTruncatedInput", err)
	}
}

func TestDecompressLookBehindUnderrun(t *testing.T) {
	// Short match opcode with distance reaching before output start.
	src := []byte{0x00, 0x00}
	dst := make([]byte, 8)
	if _, err := Decompress(src, dst); err != ErrLookBehindUnderrun {
		t.Fatalf("err = %v, want ErrLookBehindUnderrun", err)
	}
}

func TestDecompressOverlappingMatch(t *testing.T) {
	// Literal "A", then a short match of distance=1 length=5, producing
	// a run of six 'A's via self-overlapping copy.
	src := []byte{0x80, 'A', 0x08, 0x00}
	dst := make([]byte, 8)
	n, err := Decompress(src, dst)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	want := "AAAAAA"
	if string(dst[:n]) != want {
		t.Fatalf("got %q, want %q", dst[:n], want)
	}
}
