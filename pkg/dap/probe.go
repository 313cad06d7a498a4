// Package dap implements the HID report transport used to talk to
// CMSIS-DAP debug probes. It covers probe discovery contracts, the
// open/close session lifecycle and the fixed-size command/response
// exchange every higher-level debug operation is built on. The meaning
// of command payloads is left entirely to the caller.
package dap

import (
	"fmt"
	"io"
)

// ProductFilter is the substring a USB product string must contain for
// the device to be treated as a CMSIS-DAP probe.
const ProductFilter = "CMSIS-DAP"

// UnknownAttribute is substituted for USB string attributes the platform
// could not read. ProbeInfo fields are never empty.
const UnknownAttribute = "<unknown>"

// ProbeInfo identifies one discoverable CMSIS-DAP probe. Instances are
// created fresh on every enumeration and carry no relation to any open
// session.
type ProbeInfo struct {
	Path         string `json:"path"`
	Serial       string `json:"serial"`
	Manufacturer string `json:"manufacturer"`
	Product      string `json:"product"`
	VendorID     uint16 `json:"vendorId"`
	ProductID    uint16 `json:"productId"`
}

func (p ProbeInfo) String() string {
	return fmt.Sprintf("%04x:%04x %s %s (%s)", p.VendorID, p.ProductID, p.Manufacturer, p.Product, p.Path)
}

// Device is the raw HID I/O surface a discovery backend hands out for
// one opened device node. Read and Write block until the underlying OS
// call completes; there is no timeout at this layer.
type Device interface {
	io.ReadWriteCloser

	// ReportDescriptor returns the device's raw HID report descriptor
	// bytes, sized to the length the kernel reports for it.
	ReportDescriptor() ([]byte, error)
}

// Backend discovers probes on one platform and opens raw access to them.
// Implementations exist per native HID API; the parser and session logic
// are platform independent.
type Backend interface {
	// Enumerate scans the platform HID registry and returns up to
	// capacity CMSIS-DAP probes in the registry's native scan order.
	Enumerate(capacity int) ([]ProbeInfo, error)

	// Open acquires exclusive read/write access to the device node at
	// path, as previously returned in a ProbeInfo.
	Open(path string) (Device, error)
}
