package negotiate

import "time"

// DefaultStopGrace is the suggested (non-normative, per spec §9) grace
// period the origin waits for NEGOTIATED(STOP) before clearing a slot's
// spec reference unilaterally.
const DefaultStopGrace = 30 * time.Second

// MatchesCtr reports whether a NEGOTIATED response's (machine_number,
// machine_ctr) still matches what a slot currently expects. A mismatch
// means the response is stale — from a machine that has since been
// replaced — and must be dropped silently (S5).
func MatchesCtr(slotNumber uint8, slotCtr uint32, respNumber uint8, respCtr uint32) bool {
	return slotNumber == respNumber && slotCtr == respCtr
}
