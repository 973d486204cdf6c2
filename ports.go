package circpad

import "context"

// Transport is the cryptographic cell transport (out of scope for this
// core, per §1). It enqueues a cell addressed to a hop on a circuit;
// the transport itself handles any later blocking, satisfying §5's
// suspension-point contract ("emitting a cell to the transport is
// expected to complete synchronously enqueueing into the per-circuit
// outbound queue").
type Transport interface {
	// SendPadding enqueues a DROP cell addressed to hop on circuitID.
	SendPadding(ctx context.Context, circuitID string, hop int) error
	// SendNegotiate enqueues a PADDING_NEGOTIATE control cell addressed
	// to hop on circuitID.
	SendNegotiate(ctx context.Context, circuitID string, hop int, payload []byte) error
	// SendNegotiated enqueues a PADDING_NEGOTIATED control cell
	// addressed back to the origin.
	SendNegotiated(ctx context.Context, circuitID string, hop int, payload []byte) error
}

// HopDirectory resolves per-hop subprotocol support (§6.2) — owned by
// the hop-selection and relay-support probing logic (out of scope).
type HopDirectory interface {
	// SupportsMachine reports whether the given hop on circuitID has
	// advertised support for machine number in its Padding subprotocol
	// version.
	SupportsMachine(circuitID string, hop int, number uint8) bool
	// Fingerprint identifies the given hop on circuitID (e.g. a relay
	// fingerprint or address), for matching against the §6.3
	// RestrictedMiddleNodes override list.
	Fingerprint(circuitID string, hop int) string
}
