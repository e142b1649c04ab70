package elm

import "fmt"

// Protocol identifies an OBD-II bus protocol as the ELM327 numbers them.
type Protocol int

const (
	ProtocolAuto Protocol = iota
	ProtocolCAN11_500
	ProtocolCAN29_500
	ProtocolCAN11_250
	ProtocolCAN29_250
	ProtocolISO9141
	ProtocolISO14230
	ProtocolJ1850PWM
	ProtocolJ1850VPW
)

// autoLadder is the order AUTO negotiation tries explicit protocols after
// the adapter's own auto-detect fails: CAN variants first (most common on
// post-2008 vehicles), then the legacy buses.
var autoLadder = []Protocol{
	ProtocolCAN11_500,
	ProtocolCAN29_500,
	ProtocolCAN11_250,
	ProtocolCAN29_250,
	ProtocolISO9141,
	ProtocolISO14230,
	ProtocolJ1850PWM,
	ProtocolJ1850VPW,
}

var protocolNames = map[Protocol]string{
	ProtocolAuto:      "auto",
	ProtocolCAN11_500: "can_11_500",
	ProtocolCAN29_500: "can_29_500",
	ProtocolCAN11_250: "can_11_250",
	ProtocolCAN29_250: "can_29_250",
	ProtocolISO9141:   "iso_9141_2",
	ProtocolISO14230:  "iso_14230_4",
	ProtocolJ1850PWM:  "sae_j1850_pwm",
	ProtocolJ1850VPW:  "sae_j1850_vpw",
}

// elmDigits maps protocols to the ELM327 ATSP argument.
var elmDigits = map[Protocol]string{
	ProtocolAuto:      "0",
	ProtocolJ1850PWM:  "1",
	ProtocolJ1850VPW:  "2",
	ProtocolISO9141:   "3",
	ProtocolISO14230:  "5",
	ProtocolCAN11_500: "6",
	ProtocolCAN29_500: "7",
	ProtocolCAN11_250: "8",
	ProtocolCAN29_250: "9",
}

var protocolDescriptions = map[Protocol]string{
	ProtocolAuto:      "Automatic",
	ProtocolJ1850PWM:  "SAE J1850 PWM (41.6 kbaud)",
	ProtocolJ1850VPW:  "SAE J1850 VPW (10.4 kbaud)",
	ProtocolISO9141:   "ISO 9141-2 (5 baud init)",
	ProtocolISO14230:  "ISO 14230-4 KWP (fast init)",
	ProtocolCAN11_500: "ISO 15765-4 CAN (11 bit ID, 500 kbaud)",
	ProtocolCAN29_500: "ISO 15765-4 CAN (29 bit ID, 500 kbaud)",
	ProtocolCAN11_250: "ISO 15765-4 CAN (11 bit ID, 250 kbaud)",
	ProtocolCAN29_250: "ISO 15765-4 CAN (29 bit ID, 250 kbaud)",
}

func (p Protocol) String() string {
	if s, ok := protocolNames[p]; ok {
		return s
	}
	return "unknown"
}

// Description returns the long human-readable protocol name.
func (p Protocol) Description() string {
	if s, ok := protocolDescriptions[p]; ok {
		return s
	}
	return "Unknown"
}

func (p Protocol) elmDigit() string {
	return elmDigits[p]
}

// ParseProtocol parses the profile-file spelling of a protocol.
func ParseProtocol(s string) (Protocol, error) {
	for p, name := range protocolNames {
		if s == name {
			return p, nil
		}
	}
	return ProtocolAuto, fmt.Errorf("unknown protocol %q", s)
}

// protocolFromDigit maps an ATDPN reply digit back to a Protocol.
func protocolFromDigit(d string) (Protocol, bool) {
	for p, digit := range elmDigits {
		if p != ProtocolAuto && digit == d {
			return p, true
		}
	}
	return ProtocolAuto, false
}
