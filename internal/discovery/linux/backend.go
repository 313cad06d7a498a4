// Package linux discovers CMSIS-DAP probes through udev and opens them
// through the hidraw character devices the kernel exposes for them.
package linux

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jochenvg/go-udev"
	"github.com/probelink/probelink/pkg/dap"
	"go.uber.org/zap"
)

// Backend implements dap.Backend on top of the udev device registry.
type Backend struct {
	log  *zap.Logger
	udev *udev.Udev
}

func NewBackend(log *zap.Logger) *Backend {
	return &Backend{
		log:  log,
		udev: &udev.Udev{},
	}
}

// usbAttrs is the attribute record read from a hidraw node's USB parent
// before the accept decision is made.
type usbAttrs struct {
	serial       string
	manufacturer string
	product      string
	vendorID     string
	productID    string
}

type hidrawNode struct {
	devnode string
	syspath string
	attrs   usbAttrs
}

// Enumerate scans the hidraw subsystem in udev's native order. Nodes
// without a resolvable USB parent (e.g. Bluetooth HID devices) are
// skipped without error.
func (b *Backend) Enumerate(capacity int) ([]dap.ProbeInfo, error) {
	e := b.udev.NewEnumerate()
	e.AddMatchSubsystem("hidraw")
	devices, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("unable to scan hidraw devices: %w", err)
	}

	var nodes []hidrawNode
	for _, dev := range devices {
		parent := dev.ParentWithSubsystemDevtype("usb", "usb_device")
		if parent == nil {
			continue
		}
		nodes = append(nodes, hidrawNode{
			devnode: dev.Devnode(),
			syspath: dev.Syspath(),
			attrs: usbAttrs{
				serial:       parent.SysattrValue("serial"),
				manufacturer: parent.SysattrValue("manufacturer"),
				product:      parent.SysattrValue("product"),
				vendorID:     parent.SysattrValue("idVendor"),
				productID:    parent.SysattrValue("idProduct"),
			},
		})
	}
	return b.collect(nodes, capacity), nil
}

// collect applies the accept policy to visited nodes, bounding the
// accepted count by capacity. Nodes with unreadable vendor/product IDs
// are logged and skipped rather than failing the whole scan.
func (b *Backend) collect(nodes []hidrawNode, capacity int) []dap.ProbeInfo {
	probes := make([]dap.ProbeInfo, 0, capacity)
	for _, node := range nodes {
		if len(probes) >= capacity {
			break
		}
		info, ok, err := probeFromAttrs(node.devnode, node.attrs)
		if err != nil {
			b.log.Warn("skipping hidraw device", zap.String("syspath", node.syspath), zap.Error(err))
			continue
		}
		if ok {
			probes = append(probes, info)
		}
	}
	return probes
}

// probeFromAttrs builds a ProbeInfo from one attribute record. ok
// reports whether the device passes the CMSIS-DAP product filter.
func probeFromAttrs(devnode string, attrs usbAttrs) (dap.ProbeInfo, bool, error) {
	vid, err := strconv.ParseUint(attrs.vendorID, 16, 16)
	if err != nil {
		return dap.ProbeInfo{}, false, fmt.Errorf("unreadable idVendor %q: %w", attrs.vendorID, err)
	}
	pid, err := strconv.ParseUint(attrs.productID, 16, 16)
	if err != nil {
		return dap.ProbeInfo{}, false, fmt.Errorf("unreadable idProduct %q: %w", attrs.productID, err)
	}
	info := dap.ProbeInfo{
		Path:         devnode,
		Serial:       orUnknown(attrs.serial),
		Manufacturer: orUnknown(attrs.manufacturer),
		Product:      orUnknown(attrs.product),
		VendorID:     uint16(vid),
		ProductID:    uint16(pid),
	}
	return info, strings.Contains(info.Product, dap.ProductFilter), nil
}

func orUnknown(s string) string {
	if s == "" {
		return dap.UnknownAttribute
	}
	return s
}

// Open acquires exclusive read/write access to the hidraw node at path.
func (b *Backend) Open(path string) (dap.Device, error) {
	return openHidraw(path)
}
