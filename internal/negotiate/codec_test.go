package negotiate

import (
	"testing"

	"circpad"
)

func TestEncodeDecodeNegotiateRoundTrip(t *testing.T) {
	msg := circpad.Negotiate{
		Version:     circpad.NegotiationVersion,
		Command:     circpad.CommandStart,
		MachineType: circpad.MachineTypeRelay,
		Number:      42,
		Ctr:         0xdeadbeef,
	}
	got, err := DecodeNegotiate(EncodeNegotiate(msg))
	if err != nil {
		t.Fatalf("DecodeNegotiate: %v", err)
	}
	if got != msg {
		t.Fatalf("round trip = %+v, want %+v", got, msg)
	}
}

func TestEncodeDecodeNegotiatedRoundTrip(t *testing.T) {
	msg := circpad.Negotiated{
		Version:      circpad.NegotiationVersion,
		Command:      circpad.CommandStop,
		MachineType:  circpad.MachineTypeCircuitSetupClient,
		Number:       7,
		Ctr:          1,
		ResponseCode: circpad.ErrNotApplicable,
	}
	got, err := DecodeNegotiated(EncodeNegotiated(msg))
	if err != nil {
		t.Fatalf("DecodeNegotiated: %v", err)
	}
	if got != msg {
		t.Fatalf("round trip = %+v, want %+v", got, msg)
	}
}

func TestDecodeNegotiateRejectsShortPayload(t *testing.T) {
	if _, err := DecodeNegotiate(make([]byte, PayloadSize-1)); err == nil {
		t.Fatal("expected an error for a too-short NEGOTIATE payload")
	}
}

func TestDecodeNegotiatedRejectsShortPayload(t *testing.T) {
	if _, err := DecodeNegotiated(make([]byte, PayloadSize-1)); err == nil {
		t.Fatal("expected an error for a too-short NEGOTIATED payload")
	}
}

// DecodeNegotiate/DecodeNegotiated tolerate a transport that zero-pads a
// control payload out to the cell size.
func TestDecodeToleratesTrailingPadding(t *testing.T) {
	msg := circpad.Negotiate{Version: 0, Command: circpad.CommandStart, Number: 1, Ctr: 2}
	buf := append(EncodeNegotiate(msg), make([]byte, 500)...)
	got, err := DecodeNegotiate(buf)
	if err != nil {
		t.Fatalf("DecodeNegotiate: %v", err)
	}
	if got != msg {
		t.Fatalf("got %+v, want %+v", got, msg)
	}
}

// P7: encode-then-decode of any NEGOTIATE or NEGOTIATED payload yields
// the original fields.
func FuzzNegotiateRoundTrip(f *testing.F) {
	f.Add(uint8(0), uint8(1), uint8(0), uint8(1), uint32(0))
	f.Add(uint8(1), uint8(2), uint8(2), uint8(255), uint32(0xffffffff))

	f.Fuzz(func(t *testing.T, version, command, machineType, number uint8, ctr uint32) {
		msg := circpad.Negotiate{
			Version:     version,
			Command:     circpad.Command(command),
			MachineType: circpad.MachineType(machineType),
			Number:      number,
			Ctr:         ctr,
		}
		got, err := DecodeNegotiate(EncodeNegotiate(msg))
		if err != nil {
			t.Fatalf("DecodeNegotiate: %v", err)
		}
		if got != msg {
			t.Fatalf("round trip = %+v, want %+v", got, msg)
		}
	})
}

func FuzzNegotiatedRoundTrip(f *testing.F) {
	f.Add(uint8(0), uint8(1), uint8(0), uint8(1), uint32(0), uint8(0))
	f.Add(uint8(1), uint8(2), uint8(2), uint8(255), uint32(0xffffffff), uint8(4))

	f.Fuzz(func(t *testing.T, version, command, machineType, number uint8, ctr uint32, responseCode uint8) {
		msg := circpad.Negotiated{
			Version:      version,
			Command:      circpad.Command(command),
			MachineType:  circpad.MachineType(machineType),
			Number:       number,
			Ctr:          ctr,
			ResponseCode: circpad.ResponseCode(responseCode),
		}
		got, err := DecodeNegotiated(EncodeNegotiated(msg))
		if err != nil {
			t.Fatalf("DecodeNegotiated: %v", err)
		}
		if got != msg {
			t.Fatalf("round trip = %+v, want %+v", got, msg)
		}
	})
}
