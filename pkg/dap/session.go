package dap

import (
	"fmt"

	"github.com/probelink/probelink/pkg/hidreport"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// reportID is the fixed HID report ID CMSIS-DAP probes use.
	reportID = 0x00

	// framePadding fills the unused tail of every outgoing frame. Some
	// probe firmwares rely on non-zero padding to detect the end of a
	// request, so this must not be zero.
	framePadding = 0xFF
)

var defaultSessionOptions = sessionOptions{
	log: zap.NewNop(),
}

type sessionOptions struct {
	log *zap.Logger
}

type Option func(*sessionOptions)

func WithLogger(log *zap.Logger) Option {
	return func(o *sessionOptions) {
		o.log = log
	}
}

// Session owns one open probe device and the report size negotiated for
// it. All methods block; callers must serialize Exchange calls
// themselves, typically by dedicating one goroutine to the session.
type Session struct {
	log        *zap.Logger
	dev        Device
	reportSize int
	frame      []byte
	closed     atomic.Bool
}

// Open reads the device's HID report descriptor, derives the report size
// from it and returns a ready session. On any failure the device handle
// is closed before returning, so Open never leaks it.
func Open(dev Device, opts ...Option) (*Session, error) {
	options := defaultSessionOptions
	for _, opt := range opts {
		opt(&options)
	}

	desc, err := dev.ReportDescriptor()
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to query report descriptor: %w", err), dev.Close())
	}
	size, err := hidreport.Size(desc)
	if err != nil {
		return nil, multierr.Append(err, dev.Close())
	}
	options.log.Debug("negotiated report size", zap.Int("bytes", size))

	return &Session{
		log:        options.log,
		dev:        dev,
		reportSize: size,
		frame:      make([]byte, size+1),
	}, nil
}

// ReportSize returns the negotiated HID report payload size in bytes,
// one of 64, 512 or 1024.
func (s *Session) ReportSize() int {
	return s.reportSize
}

// Exchange sends one command and receives its response. req[0] is the
// command opcode and must be echoed by the probe. The response payload,
// opcode excluded, is copied into resp and its length returned; a probe
// may reply with fewer bytes than len(resp), so callers must use the
// returned count.
func (s *Session) Exchange(req, resp []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrSessionClosed
	}
	if len(req) == 0 {
		return 0, fmt.Errorf("request is empty")
	}
	if len(req) > s.reportSize {
		return 0, fmt.Errorf("request of %d bytes exceeds report size %d", len(req), s.reportSize)
	}
	opcode := req[0]

	s.frame[0] = reportID
	for i := 1; i < len(s.frame); i++ {
		s.frame[i] = framePadding
	}
	copy(s.frame[1:], req)

	n, err := s.dev.Write(s.frame)
	if err != nil {
		return 0, fmt.Errorf("debugger write: %w", err)
	}
	if n != len(s.frame) {
		return 0, fmt.Errorf("debugger write: short write of %d out of %d bytes", n, len(s.frame))
	}

	n, err = s.dev.Read(s.frame)
	if err != nil {
		return 0, fmt.Errorf("debugger read: %w", err)
	}
	if n == 0 {
		return 0, ErrEmptyResponse
	}
	if s.frame[0] != opcode {
		return 0, &OpcodeMismatchError{Request: opcode, Response: s.frame[0]}
	}
	return copy(resp, s.frame[1:n]), nil
}

// Close releases the device handle. It is idempotent; calling it on an
// already closed session is a no-op.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.dev.Close()
}
