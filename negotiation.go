package circpad

import "fmt"

// Command is the NEGOTIATE command field (§6.1).
type Command uint8

const (
	CommandStart Command = 1
	CommandStop  Command = 2
)

func (c Command) String() string {
	switch c {
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	default:
		return fmt.Sprintf("command(%d)", uint8(c))
	}
}

// ResponseCode is the NEGOTIATED response_code field (§6.1).
type ResponseCode uint8

const (
	Success ResponseCode = iota
	ErrUnknownMachine
	ErrUnsupportedVersion
	ErrNotApplicable
	ErrInternal
)

func (r ResponseCode) String() string {
	switch r {
	case Success:
		return "success"
	case ErrUnknownMachine:
		return "unknown_machine"
	case ErrUnsupportedVersion:
		return "unsupported_version"
	case ErrNotApplicable:
		return "not_applicable"
	case ErrInternal:
		return "internal"
	default:
		return fmt.Sprintf("response_code(%d)", uint8(r))
	}
}

// NegotiationVersion is the currently-supported negotiation payload
// version (§6.1: "currently 0").
const NegotiationVersion uint8 = 0

// Negotiate is the origin→relay control message (§4.H, §6.1).
type Negotiate struct {
	Version     uint8
	Command     Command
	MachineType MachineType
	Number      uint8
	Ctr         uint32
}

// Negotiated is the relay→origin response (§4.H, §6.1).
type Negotiated struct {
	Version      uint8
	Command      Command
	MachineType  MachineType
	Number       uint8
	Ctr          uint32
	ResponseCode ResponseCode
}
