// Package hidapi discovers and opens CMSIS-DAP probes through the
// portable hidapi library. It implements the same contract as the udev
// backend and exists for hosts where udev is unavailable.
package hidapi

import (
	"fmt"
	"strings"
	"sync"

	"github.com/probelink/probelink/pkg/dap"
	"github.com/sstallion/go-hid"
	"go.uber.org/zap"
)

// Backend implements dap.Backend on top of hidapi.
type Backend struct {
	log *zap.Logger

	initOnce sync.Once
	initErr  error
}

func NewBackend(log *zap.Logger) *Backend {
	return &Backend{log: log}
}

func (b *Backend) init() error {
	b.initOnce.Do(func() {
		b.initErr = hid.Init()
	})
	if b.initErr != nil {
		return fmt.Errorf("unable to initialize hidapi: %w", b.initErr)
	}
	return nil
}

// Enumerate walks every HID device hidapi reports, keeping USB-backed
// devices whose product string passes the CMSIS-DAP filter, up to
// capacity entries.
func (b *Backend) Enumerate(capacity int) ([]dap.ProbeInfo, error) {
	if err := b.init(); err != nil {
		return nil, err
	}
	probes := make([]dap.ProbeInfo, 0, capacity)
	err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
		if len(probes) >= capacity {
			return nil
		}
		if info.BusType != hid.BusUSB {
			return nil
		}
		probe := dap.ProbeInfo{
			Path:         info.Path,
			Serial:       orUnknown(info.SerialNbr),
			Manufacturer: orUnknown(info.MfrStr),
			Product:      orUnknown(info.ProductStr),
			VendorID:     info.VendorID,
			ProductID:    info.ProductID,
		}
		if strings.Contains(probe.Product, dap.ProductFilter) {
			probes = append(probes, probe)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to scan HID devices: %w", err)
	}
	return probes, nil
}

func orUnknown(s string) string {
	if s == "" {
		return dap.UnknownAttribute
	}
	return s
}

// Open acquires read/write access to the device at path.
func (b *Backend) Open(path string) (dap.Device, error) {
	if err := b.init(); err != nil {
		return nil, err
	}
	dev, err := hid.OpenPath(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open device %s: %w", path, err)
	}
	return &hidapiDevice{dev: dev}, nil
}

type hidapiDevice struct {
	dev *hid.Device
}

// maxReportDescriptorSize mirrors HID_API_MAX_REPORT_DESCRIPTOR_SIZE.
const maxReportDescriptorSize = 4096

func (d *hidapiDevice) ReportDescriptor() ([]byte, error) {
	buf := make([]byte, maxReportDescriptorSize)
	n, err := d.dev.GetReportDescriptor(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (d *hidapiDevice) Read(p []byte) (int, error) {
	return d.dev.Read(p)
}

func (d *hidapiDevice) Write(p []byte) (int, error) {
	return d.dev.Write(p)
}

func (d *hidapiDevice) Close() error {
	return d.dev.Close()
}
