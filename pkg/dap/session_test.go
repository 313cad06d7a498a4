package dap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// desc64 declares matching 64-byte Input and Output reports.
var desc64 = []byte{
	0x95, 0x40, // Report Count (64)
	0x81, 0x02, // Input
	0x95, 0x40, // Report Count (64)
	0x91, 0x02, // Output
}

// fakeDevice emulates a probe: every written frame is run through
// respond to produce the next read.
type fakeDevice struct {
	desc    []byte
	descErr error

	respond  func(frame []byte) []byte
	writeErr error
	readErr  error
	shortBy  int

	frames  [][]byte
	pending []byte
	closed  int
}

func (d *fakeDevice) ReportDescriptor() ([]byte, error) {
	return d.desc, d.descErr
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	frame := make([]byte, len(p))
	copy(frame, p)
	d.frames = append(d.frames, frame)
	if d.respond != nil {
		d.pending = d.respond(frame)
	}
	return len(p) - d.shortBy, nil
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	if d.readErr != nil {
		return 0, d.readErr
	}
	return copy(p, d.pending), nil
}

func (d *fakeDevice) Close() error {
	d.closed++
	return nil
}

// echo responds like a healthy probe: opcode echoed, payload following.
func echo(payload ...byte) func(frame []byte) []byte {
	return func(frame []byte) []byte {
		resp := make([]byte, 64)
		resp[0] = frame[1] // frame[0] is the report ID
		copy(resp[1:], payload)
		return resp
	}
}

func TestOpenNegotiatesReportSize(t *testing.T) {
	dev := &fakeDevice{desc: desc64}
	sess, err := Open(dev)
	require.NoError(t, err)
	defer sess.Close()
	assert.Equal(t, 64, sess.ReportSize())
	assert.Zero(t, dev.closed)
}

func TestOpenClosesDeviceOnDescriptorError(t *testing.T) {
	dev := &fakeDevice{descErr: errors.New("ioctl failed")}
	_, err := Open(dev)
	require.Error(t, err)
	assert.Equal(t, 1, dev.closed)
}

func TestOpenClosesDeviceOnParseError(t *testing.T) {
	dev := &fakeDevice{desc: []byte{0x95, 0x20, 0x81, 0x02, 0x95, 0x20, 0x91, 0x02}}
	_, err := Open(dev)
	require.Error(t, err)
	assert.Equal(t, 1, dev.closed)
}

func TestExchangeRoundTrip(t *testing.T) {
	dev := &fakeDevice{desc: desc64, respond: echo(0x11, 0x22, 0x33)}
	sess, err := Open(dev)
	require.NoError(t, err)
	defer sess.Close()

	resp := make([]byte, 8)
	n, err := sess.Exchange([]byte{0x05, 0x01}, resp)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, resp[:3])

	require.Len(t, dev.frames, 1)
	frame := dev.frames[0]
	assert.Len(t, frame, 65)
	assert.Equal(t, byte(0x00), frame[0], "report ID")
	assert.Equal(t, []byte{0x05, 0x01}, frame[1:3])
	for i := 3; i < len(frame); i++ {
		assert.Equal(t, byte(0xFF), frame[i], "padding at offset %d", i)
	}
}

func TestExchangeClampsToResponseCapacity(t *testing.T) {
	dev := &fakeDevice{desc: desc64, respond: echo(0xAA, 0xBB, 0xCC, 0xDD)}
	sess, err := Open(dev)
	require.NoError(t, err)
	defer sess.Close()

	resp := make([]byte, 2)
	n, err := sess.Exchange([]byte{0x01}, resp)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{0xAA, 0xBB}, resp)
}

func TestExchangeOpcodeMismatch(t *testing.T) {
	dev := &fakeDevice{desc: desc64, respond: func(frame []byte) []byte {
		resp := make([]byte, 64)
		resp[0] = 0x7F
		return resp
	}}
	sess, err := Open(dev)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Exchange([]byte{0x05}, make([]byte, 8))
	var mismatch *OpcodeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, byte(0x05), mismatch.Request)
	assert.Equal(t, byte(0x7F), mismatch.Response)
	assert.Contains(t, err.Error(), "0x05")
	assert.Contains(t, err.Error(), "0x7f")
}

func TestExchangeEmptyResponse(t *testing.T) {
	dev := &fakeDevice{desc: desc64, respond: func(frame []byte) []byte {
		return nil
	}}
	sess, err := Open(dev)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Exchange([]byte{0x05}, make([]byte, 8))
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestExchangeShortWrite(t *testing.T) {
	dev := &fakeDevice{desc: desc64, respond: echo(), shortBy: 1}
	sess, err := Open(dev)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Exchange([]byte{0x05}, make([]byte, 8))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short write")
}

func TestExchangeWriteError(t *testing.T) {
	dev := &fakeDevice{desc: desc64, writeErr: errors.New("device removed")}
	sess, err := Open(dev)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Exchange([]byte{0x05}, make([]byte, 8))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device removed")
}

func TestExchangeRejectsOversizeRequest(t *testing.T) {
	dev := &fakeDevice{desc: desc64, respond: echo()}
	sess, err := Open(dev)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Exchange(make([]byte, 65), make([]byte, 8))
	require.Error(t, err)
	assert.Empty(t, dev.frames, "no frame must reach the device")
}

func TestExchangeRejectsEmptyRequest(t *testing.T) {
	dev := &fakeDevice{desc: desc64, respond: echo()}
	sess, err := Open(dev)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Exchange(nil, make([]byte, 8))
	require.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	dev := &fakeDevice{desc: desc64}
	sess, err := Open(dev)
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	assert.Equal(t, 1, dev.closed)

	_, err = sess.Exchange([]byte{0x05}, make([]byte, 8))
	assert.ErrorIs(t, err, ErrSessionClosed)
}
