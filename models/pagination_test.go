package models

import "testing"

func TestPageNormalized(t *testing.T) {
	p := Page{}.Normalized()
	if p.Number != 1 || p.Size != DefaultPageSize {
		t.Fatalf("zero page normalized to %+v", p)
	}
	p = Page{Number: -3, Size: 10_000}.Normalized()
	if p.Number != 1 || p.Size != MaxPageSize {
		t.Fatalf("out-of-range page normalized to %+v", p)
	}
}

func TestPageSlice(t *testing.T) {
	p := Page{Number: 2, Size: 10}
	lo, hi := p.Slice(25)
	if lo != 10 || hi != 20 {
		t.Fatalf("Slice(25) = [%d, %d), want [10, 20)", lo, hi)
	}
	lo, hi = Page{Number: 3, Size: 10}.Slice(25)
	if lo != 20 || hi != 25 {
		t.Fatalf("partial page = [%d, %d), want [20, 25)", lo, hi)
	}
	lo, hi = Page{Number: 9, Size: 10}.Slice(25)
	if lo != hi {
		t.Fatalf("page past the end must be empty, got [%d, %d)", lo, hi)
	}
}
