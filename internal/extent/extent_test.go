package extent

import "testing"

func buildSimple(t *testing.T) *LogicalMedia {
	t.Helper()
	b := NewBuilder(2048, 512)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	must(b.Add(Extent{LogicalOffset: 0, LogicalSize: 512, Kind: ZeroFill}))
	must(b.Add(Extent{LogicalOffset: 512, LogicalSize: 512, Kind: Passthrough, Source: Source{PhysicalOffset: 4096, PhysicalSize: 512}}))
	must(b.Add(Extent{LogicalOffset: 1024, LogicalSize: 1024, Kind: ADC, Source: Source{PhysicalOffset: 8192, PhysicalSize: 64}}))
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return m
}

func TestFind(t *testing.T) {
	m := buildSimple(t)
	for _, tc := range []struct {
		off      int64
		wantKind Kind
	}{
		{0, ZeroFill},
		{511, ZeroFill},
		{512, Passthrough},
		{1023, Passthrough},
		{1024, ADC},
		{2047, ADC},
	} {
		e, ok := m.Find(tc.off)
		if !ok {
			t.Fatalf("Find(%d): not found", tc.off)
		}
		if e.Kind != tc.wantKind {
			t.Errorf("Find(%d): kind=%v want %v", tc.off, e.Kind, tc.wantKind)
		}
	}
	if _, ok := m.Find(2048); ok {
		t.Errorf("Find(2048): expected out-of-range miss")
	}
}

func TestSliceAcrossBoundary(t *testing.T) {
	m := buildSimple(t)
	var kinds []Kind
	var total int64
	m.Slice(256, 1024, func(e Extent, relOff, relLen int64) bool {
		kinds = append(kinds, e.Kind)
		total += relLen
		return true
	})
	if total != 1024 {
		t.Fatalf("total bytes touched = %d, want 1024", total)
	}
	if len(kinds) != 3 || kinds[0] != ZeroFill || kinds[1] != Passthrough || kinds[2] != ADC {
		t.Fatalf("kinds = %v, want [ZeroFill Passthrough ADC]", kinds)
	}
}

func TestBuilderRejectsOverlap(t *testing.T) {
	b := NewBuilder(1024, 512)
	if err := b.Add(Extent{LogicalOffset: 0, LogicalSize: 512, Kind: ZeroFill}); err != nil {
		t.Fatal(err)
	}
	if err := b.Add(Extent{LogicalOffset: 256, LogicalSize: 512, Kind: ZeroFill}); err == nil {
		t.Fatal("expected overlap to be rejected")
	}
}

func TestBuilderRejectsGap(t *testing.T) {
	b := NewBuilder(1024, 512)
	if err := b.Add(Extent{LogicalOffset: 0, LogicalSize: 256, Kind: ZeroFill}); err != nil {
		t.Fatal(err)
	}
	if err := b.Add(Extent{LogicalOffset: 512, LogicalSize: 512, Kind: ZeroFill}); err == nil {
		t.Fatal("expected gap to be rejected")
	}
}

func TestBuilderRejectsShortCoverage(t *testing.T) {
	b := NewBuilder(1024, 512)
	if err := b.Add(Extent{LogicalOffset: 0, LogicalSize: 512, Kind: ZeroFill}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected Build to fail on incomplete coverage")
	}
}

func TestNonRoutableExemptFromOverlapCheck(t *testing.T) {
	b := NewBuilder(512, 512)
	if err := b.Add(Extent{LogicalOffset: 0, LogicalSize: 512, Kind: ZeroFill}); err != nil {
		t.Fatal(err)
	}
	// A Comment/Terminator extent can claim any logical_offset/size in the
	// source record; it must never be allowed to break routing.
	if err := b.Add(Extent{LogicalOffset: 0, LogicalSize: 0xFFFFFFFF, Kind: Terminator}); err != nil {
		t.Fatalf("terminator extent should be accepted and ignored: %v", err)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if m.MediaSize != 512 {
		t.Fatalf("MediaSize = %d, want 512", m.MediaSize)
	}
}
