package circpad

import "testing"

func TestNewHistogramRejectsMismatchedLengths(t *testing.T) {
	if _, err := NewHistogram([]uint64{0, 1000}, []uint64{1, 2, 3}); err == nil {
		t.Fatal("expected an error for edges/tokens length mismatch")
	}
}

func TestNewHistogramRejectsNonIncreasingEdges(t *testing.T) {
	if _, err := NewHistogram([]uint64{0, 1000, 900}, []uint64{1, 1, 0}); err == nil {
		t.Fatal("expected an error for non-increasing edges")
	}
}

func TestNewGeometricHistogramPartitionsRange(t *testing.T) {
	h, err := NewGeometricHistogram(0, 8000, 4, 1, 2)
	if err != nil {
		t.Fatalf("NewGeometricHistogram: %v", err)
	}
	if h.BinCount() != 4 {
		t.Fatalf("bin count = %d, want 4", h.BinCount())
	}
	if h.Edges[0] != 0 || h.Edges[len(h.Edges)-1] != 8000 {
		t.Fatalf("edges = %v, want to span [0,8000]", h.Edges)
	}
	for i := 1; i < len(h.Edges); i++ {
		if h.Edges[i] <= h.Edges[i-1] {
			t.Fatalf("edges not strictly increasing: %v", h.Edges)
		}
	}
	if h.Tokens[h.InfinityBin()] != 1 {
		t.Fatalf("infinity bin tokens = %d, want 1", h.Tokens[h.InfinityBin()])
	}
}

func TestNewGeometricHistogramRejectsBadRange(t *testing.T) {
	if _, err := NewGeometricHistogram(1000, 1000, 4, 0, 1); err == nil {
		t.Fatal("expected an error when end does not exceed start")
	}
	if _, err := NewGeometricHistogram(0, 1000, 0, 0, 1); err == nil {
		t.Fatal("expected an error for zero bins")
	}
}

func TestHistogramCloneIsIndependent(t *testing.T) {
	h, _ := NewHistogram([]uint64{0, 1000}, []uint64{3, 0})
	clone := h.Clone()
	clone.Tokens[0] = 0
	if h.Tokens[0] != 3 {
		t.Fatalf("original histogram mutated through its clone: tokens = %v", h.Tokens)
	}
}

func TestHistogramNonInfinityTokensEmpty(t *testing.T) {
	h, _ := NewHistogram([]uint64{0, 1000, 2000}, []uint64{0, 0, 5})
	if !h.NonInfinityTokensEmpty() {
		t.Fatal("expected finite bins to read as empty with only infinity tokens remaining")
	}
	h.Tokens[1] = 1
	if h.NonInfinityTokensEmpty() {
		t.Fatal("expected finite bins to read as non-empty once bin 1 has a token")
	}
}

func TestHistogramBinIntervalPanicsOnInfinityBin(t *testing.T) {
	h, _ := NewHistogram([]uint64{0, 1000}, []uint64{1, 0})
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for an out-of-range bin index")
		}
	}()
	h.BinInterval(h.InfinityBin())
}
