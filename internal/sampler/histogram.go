package sampler

import "circpad"

// SampleHistogram selects a bin weighted by current token counts and, for
// a finite bin, draws a uniform delay within its interval. If every bin
// (finite and infinity) is empty, empty is true and the caller must raise
// BinsEmpty without arming a timer. Selecting the infinity bin returns
// delay = circpad.InfinityDelay and the caller raises Infinity.
func (s *Sampler) SampleHistogram(h circpad.Histogram) (bin int, delay uint64, empty bool) {
	total := h.TotalTokens()
	if total == 0 {
		return 0, 0, true
	}

	pick := uint64(s.rng.Int63n(int64(total)))
	var cum uint64
	for i, tok := range h.Tokens {
		cum += tok
		if pick < cum {
			bin = i
			break
		}
	}

	if bin == h.InfinityBin() {
		return bin, circpad.InfinityDelay, false
	}

	lo, hi := h.BinInterval(bin)
	if hi <= lo {
		return bin, lo, false
	}
	span := hi - lo
	delay = lo + uint64(s.rng.Int63n(int64(span)))
	return bin, delay, false
}

// RemoveToken applies strategy's token-removal rule to h for an observed
// inter-arrival delay d. It never mutates the infinity bin. RemoveNone
// is a documented no-op — callers should not even allocate a mutable
// histogram copy in that case (see internal/runtime).
func RemoveToken(h *circpad.Histogram, d uint64, strategy circpad.TokenRemoval) {
	switch strategy {
	case circpad.RemoveNone:
		return
	case circpad.RemoveExact:
		if i, ok := exactBin(h, d); ok && h.Tokens[i] > 0 {
			h.Tokens[i]--
		}
	case circpad.RemoveClosest:
		if i, ok := closestBin(h, d, nil); ok {
			h.Tokens[i]--
		}
	case circpad.RemoveHigher:
		if i, ok := closestBin(h, d, func(_, hi uint64) bool { return hi > d }); ok {
			h.Tokens[i]--
		}
	case circpad.RemoveLower:
		if i, ok := closestBin(h, d, func(lo, _ uint64) bool { return lo <= d }); ok {
			h.Tokens[i]--
		}
	case circpad.RemoveClosestOnUnder:
		if h.InfinityBin() == 0 {
			return
		}
		lowerEdge, _ := h.BinInterval(0)
		if d >= lowerEdge {
			return
		}
		if i, ok := closestBin(h, d, nil); ok {
			h.Tokens[i]--
		}
	}
}

func exactBin(h *circpad.Histogram, d uint64) (int, bool) {
	for i := 0; i < h.InfinityBin(); i++ {
		lo, hi := h.BinInterval(i)
		if d >= lo && d < hi {
			return i, true
		}
	}
	return 0, false
}

// closestBin returns the non-empty finite bin nearest d among those
// passing filter (nil means no filter), ties broken toward the lower
// index.
func closestBin(h *circpad.Histogram, d uint64, filter func(lo, hi uint64) bool) (int, bool) {
	best := -1
	var bestDist uint64
	for i := 0; i < h.InfinityBin(); i++ {
		if h.Tokens[i] == 0 {
			continue
		}
		lo, hi := h.BinInterval(i)
		if filter != nil && !filter(lo, hi) {
			continue
		}
		dist := pointDistance(d, lo, hi)
		if best == -1 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// pointDistance is the distance from d to the interval [lo, hi); 0 if d
// falls inside it.
func pointDistance(d, lo, hi uint64) uint64 {
	switch {
	case d < lo:
		return lo - d
	case d >= hi:
		return d - hi + 1
	default:
		return 0
	}
}
