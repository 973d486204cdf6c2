// Package negotiate implements the negotiation protocol (component H):
// encoding/decoding of the NEGOTIATE/NEGOTIATED control payloads, the
// default STOP grace period, and the (machine_number, machine_ctr)
// matching that disambiguates rapid install/replace cycles. The per-slot
// state itself lives in runtime.Slot and is driven by the activation
// controller.
//
// The wire codec is hand-packed big/little-endian fields via
// encoding/binary rather than a generated message format, matching this
// stack's own direct-binary-encoding convention elsewhere (no protobuf
// schema would make sense for a fixed 9-byte control payload).
package negotiate

import (
	"encoding/binary"
	"fmt"

	"circpad"
)

// PayloadSize is the wire size of both NEGOTIATE and NEGOTIATED
// payloads (§6.1): 9 bytes, zero-padded to the transport cell size by
// the caller.
const PayloadSize = 9

// EncodeNegotiate packs msg into its 9-byte wire form.
func EncodeNegotiate(msg circpad.Negotiate) []byte {
	buf := make([]byte, PayloadSize)
	buf[0] = msg.Version
	buf[1] = byte(msg.Command)
	buf[2] = byte(msg.MachineType)
	buf[3] = msg.Number
	binary.LittleEndian.PutUint32(buf[4:8], msg.Ctr)
	// buf[8] is unused in a NEGOTIATE payload.
	return buf
}

// DecodeNegotiate unpacks a NEGOTIATE payload. It requires at least
// PayloadSize bytes (the transport may deliver a larger, zero-padded
// cell body).
func DecodeNegotiate(buf []byte) (circpad.Negotiate, error) {
	if len(buf) < PayloadSize {
		return circpad.Negotiate{}, fmt.Errorf("circpad: negotiate payload too short: %d bytes, want at least %d", len(buf), PayloadSize)
	}
	return circpad.Negotiate{
		Version:     buf[0],
		Command:     circpad.Command(buf[1]),
		MachineType: circpad.MachineType(buf[2]),
		Number:      buf[3],
		Ctr:         binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// EncodeNegotiated packs msg into its 9-byte wire form.
func EncodeNegotiated(msg circpad.Negotiated) []byte {
	buf := make([]byte, PayloadSize)
	buf[0] = msg.Version
	buf[1] = byte(msg.Command)
	buf[2] = byte(msg.MachineType)
	buf[3] = msg.Number
	binary.LittleEndian.PutUint32(buf[4:8], msg.Ctr)
	buf[8] = byte(msg.ResponseCode)
	return buf
}

// DecodeNegotiated unpacks a NEGOTIATED payload.
func DecodeNegotiated(buf []byte) (circpad.Negotiated, error) {
	if len(buf) < PayloadSize {
		return circpad.Negotiated{}, fmt.Errorf("circpad: negotiated payload too short: %d bytes, want at least %d", len(buf), PayloadSize)
	}
	return circpad.Negotiated{
		Version:      buf[0],
		Command:      circpad.Command(buf[1]),
		MachineType:  circpad.MachineType(buf[2]),
		Number:       buf[3],
		Ctr:          binary.LittleEndian.Uint32(buf[4:8]),
		ResponseCode: circpad.ResponseCode(buf[8]),
	}, nil
}
