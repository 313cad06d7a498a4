// Package hidreport recovers the negotiated report payload size from a
// raw USB HID report descriptor.
package hidreport

import (
	"fmt"
)

// AsymmetricReportSizesError is returned when the descriptor declares
// different report counts for its Input and Output items. Such firmware
// cannot be driven with fixed-size command/response frames.
type AsymmetricReportSizesError struct {
	Input  uint32
	Output uint32
}

func (e *AsymmetricReportSizesError) Error() string {
	return fmt.Sprintf("input and output report sizes do not match (input %d, output %d)", e.Input, e.Output)
}

// UnsupportedReportSizeError is returned when the descriptor agrees on a
// report size that no known CMSIS-DAP firmware uses.
type UnsupportedReportSizeError struct {
	Size uint32
}

func (e *UnsupportedReportSizeError) Error() string {
	return fmt.Sprintf("detected report size (%d) is not 64, 512 or 1024", e.Size)
}

// Size walks the descriptor items and returns the report payload size in
// bytes. This is a deliberately partial interpreter: CMSIS-DAP
// descriptors are uniform enough that only the Report Count global and
// the Input/Output main items matter. Every other item is consumed and
// ignored, so the cursor always advances by one prefix byte plus the
// item's data length.
func Size(desc []byte) (int, error) {
	var count, input, output uint32
	for i := 0; i < len(desc); {
		prefix := itemPrefix(desc[i])
		i++
		n := prefix.dataLen()
		switch {
		case prefix.typ() == itemGlobal && prefix.tag() == tagGlobalReportCount:
			count = 0
			for j := 0; j < n && i+j < len(desc); j++ {
				count |= uint32(desc[i+j]) << (8 * j)
			}
		case prefix.typ() == itemMain && prefix.tag() == tagMainInput:
			input = count
		case prefix.typ() == itemMain && prefix.tag() == tagMainOutput:
			output = count
		}
		i += n
	}
	if input != output {
		return 0, &AsymmetricReportSizesError{Input: input, Output: output}
	}
	switch input {
	case 64, 512, 1024:
		return int(input), nil
	}
	return 0, &UnsupportedReportSizeError{Size: input}
}
