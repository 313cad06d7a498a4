package linux

import (
	"fmt"
	"testing"

	"github.com/probelink/probelink/pkg/dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func daplinkAttrs() usbAttrs {
	return usbAttrs{
		serial:       "0240000034",
		manufacturer: "ARM",
		product:      "DAPLink CMSIS-DAP",
		vendorID:     "0d28",
		productID:    "0204",
	}
}

func TestProbeFromAttrs(t *testing.T) {
	info, ok, err := probeFromAttrs("/dev/hidraw2", daplinkAttrs())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, dap.ProbeInfo{
		Path:         "/dev/hidraw2",
		Serial:       "0240000034",
		Manufacturer: "ARM",
		Product:      "DAPLink CMSIS-DAP",
		VendorID:     0x0d28,
		ProductID:    0x0204,
	}, info)
}

func TestProbeFromAttrsDefaultsMissingStrings(t *testing.T) {
	attrs := daplinkAttrs()
	attrs.serial = ""
	attrs.manufacturer = ""
	attrs.product = ""
	info, ok, err := probeFromAttrs("/dev/hidraw2", attrs)
	require.NoError(t, err)
	assert.False(t, ok, "an unreadable product string cannot match the filter")
	assert.Equal(t, dap.UnknownAttribute, info.Serial)
	assert.Equal(t, dap.UnknownAttribute, info.Manufacturer)
	assert.Equal(t, dap.UnknownAttribute, info.Product)
}

func TestProbeFromAttrsRejectsOtherProducts(t *testing.T) {
	attrs := daplinkAttrs()
	attrs.product = "Optical Mouse"
	_, ok, err := probeFromAttrs("/dev/hidraw0", attrs)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProbeFromAttrsBadIDs(t *testing.T) {
	attrs := daplinkAttrs()
	attrs.vendorID = ""
	_, _, err := probeFromAttrs("/dev/hidraw2", attrs)
	require.Error(t, err)

	attrs = daplinkAttrs()
	attrs.productID = "xyzw"
	_, _, err = probeFromAttrs("/dev/hidraw2", attrs)
	require.Error(t, err)
}

func TestCollectBoundsAndFilters(t *testing.T) {
	b := NewBackend(zap.NewNop())

	var nodes []hidrawNode
	for i := 0; i < 5; i++ {
		attrs := daplinkAttrs()
		nodes = append(nodes, hidrawNode{
			devnode: fmt.Sprintf("/dev/hidraw%d", i),
			syspath: fmt.Sprintf("/sys/class/hidraw/hidraw%d", i),
			attrs:   attrs,
		})
	}
	nodes[1].attrs.product = "Optical Mouse"
	nodes[3].attrs.vendorID = "" // unreadable, skipped with a warning

	probes := b.collect(nodes, 2)
	require.Len(t, probes, 2)
	assert.Equal(t, "/dev/hidraw0", probes[0].Path)
	assert.Equal(t, "/dev/hidraw2", probes[1].Path)
	for _, probe := range probes {
		assert.Contains(t, probe.Product, dap.ProductFilter)
	}
}

func TestCollectEmpty(t *testing.T) {
	b := NewBackend(zap.NewNop())
	probes := b.collect(nil, 8)
	assert.Empty(t, probes)
}
