package colfetch

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestPlace(t *testing.T) {
	dst := make([]byte, 10)
	if err := Place(dst, 3, []byte("abc")); err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if !bytes.Equal(dst[3:6], []byte("abc")) {
		t.Errorf("dst = %q", dst)
	}

	for _, off := range []int64{-1, 8, 11} {
		if err := Place(dst, off, []byte("abc")); !errors.Is(err, ErrOverlap) {
			t.Errorf("Place at %d: err = %v, want ErrOverlap", off, err)
		}
	}
}

func TestValidateNoOverlaps(t *testing.T) {
	tests := []struct {
		name    string
		ranges  []RangeRequest
		lo, hi  int64
		wantErr bool
	}{
		{"empty", nil, 0, 10, false},
		{"adjacent", []RangeRequest{{0, 5}, {5, 5}}, 0, 10, false},
		{"unsorted disjoint", []RangeRequest{{6, 4}, {0, 3}}, 0, 10, false},
		{"with gap", []RangeRequest{{0, 2}, {8, 2}}, 0, 10, false},
		{"overlap", []RangeRequest{{0, 6}, {5, 5}}, 0, 10, true},
		{"duplicate", []RangeRequest{{2, 2}, {2, 2}}, 0, 10, true},
		{"contained", []RangeRequest{{0, 10}, {3, 1}}, 0, 10, true},
		{"below lo", []RangeRequest{{4, 2}}, 5, 10, true},
		{"past hi", []RangeRequest{{8, 3}}, 0, 10, true},
		{"overflowing length", []RangeRequest{{1, math.MaxInt64}}, 0, 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateNoOverlaps(tt.ranges, tt.lo, tt.hi)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrOverlap) {
				t.Errorf("err = %v, want ErrOverlap", err)
			}
		})
	}
}

func TestBlockBuffer_Coverage(t *testing.T) {
	b := newBlockBuffer(BlockDescriptor{StartOffset: 100, TotalSize: 50})
	b.record(20)
	b.record(20)
	if err := b.checkCoverage(50); !errors.Is(err, ErrGap) {
		t.Errorf("err = %v, want ErrGap", err)
	}
	b.record(10)
	if err := b.checkCoverage(50); err != nil {
		t.Errorf("full coverage reported %v", err)
	}
}

func TestBuffer_WriteAt(t *testing.T) {
	b := NewBuffer(8)
	if n, err := b.WriteAt([]byte("cd"), 2); err != nil || n != 2 {
		t.Fatalf("WriteAt = (%d, %v)", n, err)
	}
	if _, err := b.WriteAt([]byte("xyz"), 6); err == nil {
		t.Error("WriteAt past the end should fail")
	}
	if !bytes.Equal(b.Bytes(), []byte{0, 0, 'c', 'd', 0, 0, 0, 0}) {
		t.Errorf("Bytes() = %q", b.Bytes())
	}
}
