package cli

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// DAP_Info requests, the one piece of command vocabulary the CLI speaks
// itself. The transport below stays payload-agnostic.
const (
	cmdInfo byte = 0x00

	infoVendorName      byte = 0x01
	infoProductName     byte = 0x02
	infoSerialNumber    byte = 0x03
	infoFirmwareVersion byte = 0x04
	infoPacketSize      byte = 0xFF
)

type exchanger interface {
	Exchange(req, resp []byte) (int, error)
	ReportSize() int
}

// dapInfoString queries one DAP_Info string. The response payload is a
// length byte followed by that many string bytes, NUL terminator
// included.
func dapInfoString(sess exchanger, id byte) (string, error) {
	resp := make([]byte, sess.ReportSize())
	n, err := sess.Exchange([]byte{cmdInfo, id}, resp)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("truncated DAP_Info response")
	}
	l := int(resp[0])
	if l > n-1 {
		l = n - 1
	}
	return strings.TrimRight(string(resp[1:1+l]), "\x00"), nil
}

// dapInfoPacketSize queries the probe's maximum packet size, a
// little-endian uint16.
func dapInfoPacketSize(sess exchanger) (uint16, error) {
	resp := make([]byte, sess.ReportSize())
	n, err := sess.Exchange([]byte{cmdInfo, infoPacketSize}, resp)
	if err != nil {
		return 0, err
	}
	if n < 3 || resp[0] != 2 {
		return 0, fmt.Errorf("malformed DAP_Info packet size response")
	}
	return binary.LittleEndian.Uint16(resp[1:3]), nil
}
