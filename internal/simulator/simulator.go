// Package simulator creates a virtual CMSIS-DAP probe through the uhid
// kernel module. It echoes command opcodes and answers DAP_Info, which
// is enough to exercise the enumeration and exchange paths end to end
// without hardware attached.
package simulator

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/psanford/uhid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// reportSize is the payload size declared by ReportDescriptor.
const reportSize = 64

// ReportDescriptor is the canonical vendor-defined descriptor CMSIS-DAP
// firmware ships: 64-byte Input and Output reports plus a one-byte
// Feature report, all inside a single application collection.
var ReportDescriptor = []byte{
	0x06, 0x00, 0xFF, // Usage Page (Vendor Defined)
	0x09, 0x01, // Usage
	0xA1, 0x01, // Collection (Application)
	0x15, 0x00, // Logical Minimum (0)
	0x26, 0xFF, 0x00, // Logical Maximum (255)
	0x75, 0x08, // Report Size (8)
	0x95, 0x40, // Report Count (64)
	0x09, 0x01, // Usage
	0x81, 0x02, // Input (Data, Variable, Absolute)
	0x95, 0x40, // Report Count (64)
	0x09, 0x01, // Usage
	0x91, 0x02, // Output (Data, Variable, Absolute)
	0x95, 0x01, // Report Count (1)
	0x09, 0x01, // Usage
	0xB1, 0x02, // Feature (Data, Variable, Absolute)
	0xC0, // End Collection
}

// DAP_Info command and the IDs the simulator answers.
const (
	cmdInfo byte = 0x00

	infoVendorName      byte = 0x01
	infoProductName     byte = 0x02
	infoSerialNumber    byte = 0x03
	infoFirmwareVersion byte = 0x04
	infoPacketSize      byte = 0xFF
)

type Config struct {
	Name      string
	VendorID  uint32
	ProductID uint32
}

// Probe is one virtual CMSIS-DAP device.
type Probe struct {
	log *zap.Logger
	cfg Config
	dev *uhid.Device
}

func New(log *zap.Logger, cfg Config) (*Probe, error) {
	dev, err := uhid.NewDevice(cfg.Name, ReportDescriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to create uhid device: %w", err)
	}
	dev.Data.Bus = 0x03
	dev.Data.VendorID = cfg.VendorID
	dev.Data.ProductID = cfg.ProductID
	return &Probe{log: log, cfg: cfg, dev: dev}, nil
}

// Run serves requests until ctx is cancelled.
func (p *Probe) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := p.dev.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open uhid device: %w", err)
	}
	p.log.Info("virtual probe attached", zap.String("name", p.cfg.Name))

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return p.serve(ctx, events)
	})
	group.Go(func() error {
		<-ctx.Done()
		return p.dev.Close()
	})
	return group.Wait()
}

func (p *Probe) serve(ctx context.Context, events chan uhid.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if event.Type != uhid.Output {
				continue
			}
			resp := HandleFrame(event.Data)
			if err := p.dev.InjectEvent(resp); err != nil {
				p.log.Error("failed to inject response", zap.Error(err))
			}
		}
	}
}

// HandleFrame builds the response for one raw output event. uhid
// delivers the host's hidraw write verbatim, so the frame starts with
// the report ID byte and the opcode sits at frame[1]; the event buffer
// is the fixed-size kernel struct and trails the frame with padding,
// which must be trimmed before interpreting the payload.
func HandleFrame(frame []byte) []byte {
	if len(frame) > reportSize+1 {
		frame = frame[:reportSize+1]
	}
	if len(frame) < 2 {
		return make([]byte, reportSize)
	}
	return HandleRequest(frame[1:])
}

// HandleRequest builds the response frame for one host request with the
// report ID byte already stripped, so req[0] is the command opcode.
func HandleRequest(req []byte) []byte {
	resp := make([]byte, reportSize)
	if len(req) == 0 {
		return resp
	}
	opcode := req[0]
	resp[0] = opcode
	if opcode != cmdInfo {
		// DAP_OK status; payload semantics belong to the host.
		resp[1] = 0x00
		return resp
	}

	var id byte
	if len(req) > 1 {
		id = req[1]
	}
	switch id {
	case infoPacketSize:
		resp[1] = 2
		binary.LittleEndian.PutUint16(resp[2:], reportSize)
	case infoVendorName, infoProductName, infoSerialNumber, infoFirmwareVersion:
		s := infoStrings[id]
		// Info strings are length-prefixed and NUL-terminated.
		n := copy(resp[2:len(resp)-1], s)
		resp[2+n] = 0x00
		resp[1] = byte(n + 1)
	default:
		resp[1] = 0
	}
	return resp
}

var infoStrings = map[byte]string{
	infoVendorName:      "probelink",
	infoProductName:     "CMSIS-DAP virtual probe",
	infoSerialNumber:    "SIM0001",
	infoFirmwareVersion: "1.0",
}
