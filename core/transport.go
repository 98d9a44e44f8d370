package emv

import (
	"fmt"
	"log/slog"
)

// Transport sends one raw APDU to the card and returns its raw reply,
// trailing status bytes included. It is the only thing this package
// requires from whatever moves bytes to and from the ICC — a PC/SC reader,
// a test double, anything. Errors are opaque to the kernel.
type Transport func(apdu []byte) ([]byte, error)

// transmit sends apdu through t and splits the two-byte status trailer off
// the response. It transparently handles the two extended-flow status
// words: 61xx (more data is available via GET RESPONSE) and 6Cxx (resend
// with the corrected Le). Any other trailer is returned as-is; the caller
// decides whether it counts as success.
func transmit(t Transport, apdu []byte) (sw uint16, data []byte, err error) {
	command := apdu

	for {
		raw, err := t(command)
		if err != nil {
			return 0, nil, fmt.Errorf("transport: %w", err)
		}
		if len(raw) < 2 {
			return 0, nil, fmt.Errorf("transport: short response (%d bytes)", len(raw))
		}

		body := raw[:len(raw)-2]
		sw1, sw2 := raw[len(raw)-2], raw[len(raw)-1]
		data = append(data, body...)

		slog.Debug("apdu response", "sw1", fmt.Sprintf("%02X", sw1), "sw2", fmt.Sprintf("%02X", sw2), "bytes", len(body))

		switch sw1 {
		case 0x61:
			le := sw2
			if le == 0x00 {
				le = 0xFF
			}
			command = []byte{0x00, 0xC0, 0x00, 0x00, le}
			continue
		case 0x6C:
			if sw2 == 0x00 {
				return 0, nil, fmt.Errorf("transport: 6Cxx retry with Le=0")
			}
			resend := append([]byte{}, apdu...)
			resend[len(resend)-1] = sw2
			command = resend
			continue
		default:
			return uint16(sw1)<<8 | uint16(sw2), data, nil
		}
	}
}
