package negotiate

import "testing"

func TestMatchesCtrRequiresBothFieldsToMatch(t *testing.T) {
	if !MatchesCtr(5, 2, 5, 2) {
		t.Fatal("expected identical (number, ctr) pairs to match")
	}
	if MatchesCtr(5, 2, 5, 1) {
		t.Fatal("a stale counter must not match (S5)")
	}
	if MatchesCtr(5, 2, 6, 2) {
		t.Fatal("a response for a different machine number must not match")
	}
}
