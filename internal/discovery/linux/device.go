package linux

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// hidraw ioctl request numbers, _IOR('H', nr, ...).
const (
	hidIoctlGetDescSize = 0x80044801 // HIDIOCGRDESCSIZE, int out
	hidIoctlGetDesc     = 0x90044802 // HIDIOCGRDESC, struct hidraw_report_descriptor out
)

// hidMaxDescriptorSize mirrors HID_MAX_DESCRIPTOR_SIZE from the kernel.
const hidMaxDescriptorSize = 4096

// hidrawReportDescriptor mirrors struct hidraw_report_descriptor.
type hidrawReportDescriptor struct {
	size  uint32
	value [hidMaxDescriptorSize]byte
}

type hidrawDevice struct {
	path string
	fd   int
}

func openHidraw(path string) (*hidrawDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("unable to open device %s: %w", path, err)
	}
	return &hidrawDevice{path: path, fd: fd}, nil
}

// ReportDescriptor queries the descriptor in two steps: its byte length
// first, then the content into a buffer sized to that length.
func (d *hidrawDevice) ReportDescriptor() ([]byte, error) {
	size, err := unix.IoctlGetInt(d.fd, hidIoctlGetDescSize)
	if err != nil {
		return nil, fmt.Errorf("HIDIOCGRDESCSIZE %s: %w", d.path, err)
	}
	if size < 0 || size > hidMaxDescriptorSize {
		return nil, fmt.Errorf("report descriptor size %d of %s is out of range", size, d.path)
	}
	desc := hidrawReportDescriptor{size: uint32(size)}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), hidIoctlGetDesc, uintptr(unsafe.Pointer(&desc))); errno != 0 {
		return nil, fmt.Errorf("HIDIOCGRDESC %s: %w", d.path, errno)
	}
	buf := make([]byte, size)
	copy(buf, desc.value[:size])
	return buf, nil
}

func (d *hidrawDevice) Read(p []byte) (int, error) {
	return unix.Read(d.fd, p)
}

func (d *hidrawDevice) Write(p []byte) (int, error) {
	return unix.Write(d.fd, p)
}

func (d *hidrawDevice) Close() error {
	return unix.Close(d.fd)
}
