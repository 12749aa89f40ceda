package hd108

import (
	"bytes"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/coreman2200/hd108/model"
	"github.com/coreman2200/hd108/refresh"
)

// fakePort is a spi.Port whose connection can fail or report a transfer
// limit.
type fakePort struct {
	connectErr error
	txErr      error
	maxTx      int
	connects   int
	closes     int
	mode       spi.Mode
	freq       physic.Frequency
	writes     [][]byte
}

func (p *fakePort) String() string                      { return "fake" }
func (p *fakePort) LimitSpeed(f physic.Frequency) error { return nil }
func (p *fakePort) Close() error                        { p.closes++; return nil }

func (p *fakePort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	p.connects++
	p.freq, p.mode = f, mode
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	if p.maxTx > 0 {
		return &limitedConn{fakeConn{p}}, nil
	}
	return &fakeConn{p}, nil
}

type fakeConn struct {
	p *fakePort
}

func (c *fakeConn) String() string                 { return "fake" }
func (c *fakeConn) Duplex() conn.Duplex            { return conn.Half }
func (c *fakeConn) TxPackets(p []spi.Packet) error { return errors.New("not implemented") }

func (c *fakeConn) Tx(w, r []byte) error {
	if c.p.txErr != nil {
		return c.p.txErr
	}
	c.p.writes = append(c.p.writes, bytes.Clone(w))
	return nil
}

type limitedConn struct {
	fakeConn
}

func (c *limitedConn) MaxTxSize() int { return c.p.maxTx }

// errTimer fails to arm.
type errTimer struct {
	err error
}

func (t errTimer) Start(time.Duration, func()) error { return t.err }
func (t errTimer) Stop() error                     { return nil }

func testOpts(timer refresh.Timer, update func()) *Opts {
	if update == nil {
		update = func() {}
	}
	return &Opts{
		Speed:   10 * physic.MegaHertz,
		Count:   4,
		Refresh: model.Refresh30Hz,
		Update:  update,
		Timer:   timer,
	}
}

func TestNewSPIConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *Opts)
		want   error
	}{
		{"zero length", func(o *Opts) { o.Count = 0 }, ErrLength},
		{"length above max", func(o *Opts) { o.Count = model.MaxCount + 1 }, ErrLength},
		{"speed above 40MHz", func(o *Opts) { o.Speed = 41 * physic.MegaHertz }, ErrInvalid},
		{"no update callback", func(o *Opts) { o.Update = nil }, ErrInvalid},
		{"unknown refresh", func(o *Opts) { o.Refresh = 3 }, ErrInvalid},
		{"clock too slow", func(o *Opts) { o.Speed = 10 * physic.KiloHertz }, ErrDataRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m refresh.Manual
			p := &fakePort{}
			o := testOpts(&m, nil)
			tt.modify(o)

			d, err := NewSPI(p, o)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, d)
			assert.Zero(t, p.connects, "bus touched before validation")
			assert.Zero(t, m.Period(), "timer armed")
		})
	}

	d, err := NewSPI(&fakePort{}, nil)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Nil(t, d)

	d, err = Open(nil)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Nil(t, d)

	d, err = Open(&Opts{Count: 0})
	assert.ErrorIs(t, err, ErrLength)
	assert.Nil(t, d)
}

func TestNewSPIConnectErrors(t *testing.T) {
	other := errors.New("spi: gremlins")
	tests := []struct {
		cause error
		want  error
	}{
		{syscall.EINVAL, ErrInvalid},
		{syscall.ENOENT, ErrNoCS},
		{syscall.ENODEV, ErrNoCS},
		{syscall.ENOMEM, ErrNoMemory},
		{syscall.EBUSY, ErrUnknown},
		{other, ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.cause.Error(), func(t *testing.T) {
			var m refresh.Manual
			d, err := NewSPI(&fakePort{connectErr: tt.cause}, testOpts(&m, nil))
			assert.Nil(t, d)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.cause)
			assert.Zero(t, m.Period(), "timer armed after failed attach")
		})
	}
}

func TestNewSPITransferLimit(t *testing.T) {
	var m refresh.Manual
	o := testOpts(&m, nil)
	p := &fakePort{maxTx: model.Size(o.Count) - 1}

	d, err := NewSPI(p, o)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrNoDMA)
	assert.Zero(t, m.Period())

	var m2 refresh.Manual
	p = &fakePort{maxTx: model.Size(o.Count)}
	d, err = NewSPI(p, testOpts(&m2, nil))
	require.NoError(t, err)
	assert.NoError(t, d.Halt())
}

func TestNewSPITimerErrors(t *testing.T) {
	armed := &refresh.Manual{}
	require.NoError(t, armed.Start(time.Second, func() {}))
	stopped := &refresh.Manual{}
	require.NoError(t, stopped.Stop())

	tests := []struct {
		name  string
		timer refresh.Timer
		want  error
	}{
		{"already armed", armed, ErrBusInUse},
		{"stopped", stopped, ErrBusInUse},
		{"bad period", errTimer{refresh.ErrPeriod}, ErrInvalid},
		{"no memory", errTimer{syscall.ENOMEM}, ErrNoMemory},
		{"invalid", errTimer{syscall.EINVAL}, ErrInvalid},
		{"unexpected", errTimer{errors.New("timer: broken")}, ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewSPI(&fakePort{}, testOpts(tt.timer, nil))
			assert.Nil(t, d)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTranslateBus(t *testing.T) {
	tests := []struct {
		cause error
		want  error
	}{
		{syscall.EINVAL, ErrInvalid},
		{syscall.EBUSY, ErrBusInUse},
		{syscall.ENOENT, ErrNoDMA},
		{syscall.ENOMEM, ErrNoMemory},
		{errors.New("spireg: no port found"), ErrUnknown},
	}
	for _, tt := range tests {
		err := translate(stageBus, tt.cause)
		assert.ErrorIs(t, err, tt.want, tt.cause.Error())
		assert.ErrorIs(t, err, tt.cause)
	}
	assert.NoError(t, translate(stageBus, nil))
}

// registerFake makes p reachable through spireg.Open under name.
func registerFake(t *testing.T, name string, p *fakePort) {
	require.NoError(t, spireg.Register(name, nil, -1, func() (spi.PortCloser, error) { return p, nil }))
	t.Cleanup(func() { _ = spireg.Unregister(name) })
}

func TestOpenRollback(t *testing.T) {
	var m refresh.Manual
	o := testOpts(&m, nil)
	p := &fakePort{maxTx: model.PixelSize}
	registerFake(t, "hd108-limited", p)
	o.Bus = "hd108-limited"

	d, err := Open(o)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrNoDMA)
	assert.Equal(t, 1, p.connects)
	assert.Equal(t, 1, p.closes, "owned port left open")
	assert.Zero(t, m.Period())
}

func TestOpenOwnsPort(t *testing.T) {
	var m refresh.Manual
	o := testOpts(&m, nil)
	p := &fakePort{}
	registerFake(t, "hd108-owned", p)
	o.Bus = "hd108-owned"

	d, err := Open(o)
	require.NoError(t, err)
	require.True(t, m.Fire())
	assert.Len(t, p.writes, 1)
	assert.Zero(t, p.closes)

	require.NoError(t, d.Halt())
	require.NoError(t, d.Halt())
	assert.Equal(t, 1, p.closes)
}

func TestOpenUnknownBus(t *testing.T) {
	registerFake(t, "hd108-known", &fakePort{})
	o := testOpts(&refresh.Manual{}, nil)
	o.Bus = "hd108-missing"

	d, err := Open(o)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestNewSPIConnectsMode3(t *testing.T) {
	var m refresh.Manual
	p := &fakePort{}
	o := testOpts(&m, nil)
	d, err := NewSPI(p, o)
	require.NoError(t, err)
	defer d.Halt()

	assert.Equal(t, 1, p.connects)
	assert.Equal(t, spi.Mode3|spi.NoCS, p.mode)
	assert.Equal(t, o.Speed, p.freq)
	assert.Equal(t, model.Refresh30Hz.Period(), m.Period())
	assert.Equal(t, 4, d.Len())
	assert.Equal(t, "hd108{fake}", d.String())

	f := d.Frame()
	assert.Len(t, f, model.Size(4))
	assert.Equal(t, make([]byte, model.Size(4)), f)
}

func TestTickOrdering(t *testing.T) {
	var m refresh.Manual
	var d *Dev
	calls := 0
	update := func() {
		calls++
		switch calls {
		case 1:
			// The frame of this tick has already been sent.
			assert.Equal(t, make([]byte, model.Size(4)), d.Frame())
			require.NoError(t, d.SetPixel(0, model.Pixel{CurrentRed: 3, CurrentGreen: 7, CurrentBlue: 15, Red: 0x1234, Green: 0x5678, Blue: 0x9ABC}))
		case 2:
			require.NoError(t, d.SetPixel(3, model.Pixel{Blue: 0xFFFF}))
		}
	}

	first := make([]byte, model.Size(4))
	second := bytes.Clone(first)
	copy(second[model.SlotOffset(0):], []byte{0x8C, 0xEF, 0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC})
	third := bytes.Clone(second)
	copy(third[model.SlotOffset(3):], []byte{0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0xFF})

	p := &spitest.Playback{
		Playback: conntest.Playback{
			Ops:       []conntest.IO{{W: first}, {W: second}, {W: third}},
			DontPanic: true,
		},
	}

	var err error
	d, err = NewSPI(p, testOpts(&m, update))
	require.NoError(t, err)
	assert.Equal(t, "hd108{playback}", d.String())

	for i := 0; i < 3; i++ {
		require.True(t, m.Fire())
	}
	assert.Equal(t, 3, calls)
	assert.Equal(t, uint64(3), d.Frames())
	require.NoError(t, d.Halt())
	require.NoError(t, p.Close())
}

func TestTickRecordRaw(t *testing.T) {
	buf := bytes.Buffer{}
	var d *Dev
	update := func() {
		require.NoError(t, d.SetPixel(1, model.Pixel{Red: 0xABCD}))
	}

	var err error
	d, err = NewSPI(spitest.NewRecordRaw(&buf), testOpts(&refresh.Manual{}, update))
	require.NoError(t, err)
	assert.Equal(t, "hd108{recordraw}", d.String())

	require.NoError(t, d.Tick())
	require.NoError(t, d.Tick())
	require.NoError(t, d.Halt())

	out := buf.Bytes()
	require.Len(t, out, 2*model.Size(4))
	assert.Equal(t, make([]byte, model.Size(4)), out[:model.Size(4)])
	second := out[model.Size(4):]
	assert.Equal(t, make([]byte, model.Padding), second[:model.Padding])
	assert.Equal(t, []byte{0x80, 0x00, 0xAB, 0xCD, 0, 0, 0, 0}, second[model.SlotOffset(1):model.SlotOffset(2)])
}

func TestSetPixelOutOfRange(t *testing.T) {
	var d *Dev
	var errs []error
	update := func() {
		require.NoError(t, d.SetPixel(2, model.Pixel{Green: 0x0F0F}))
		before := d.Frame()
		for _, i := range []int{-1, 4, 5, 1024} {
			errs = append(errs, d.SetPixel(i, model.Pixel{Red: 0xFFFF}))
		}
		assert.Equal(t, before, d.Frame())
	}

	var m refresh.Manual
	var err error
	d, err = NewSPI(&fakePort{}, testOpts(&m, update))
	require.NoError(t, err)
	require.True(t, m.Fire())

	require.Len(t, errs, 4)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrIndex)
	}
	require.NoError(t, d.Halt())
}

func TestTickTransferError(t *testing.T) {
	logs := bytes.Buffer{}
	logger := zerolog.New(&logs)

	calls := 0
	var m refresh.Manual
	p := &fakePort{}
	o := testOpts(&m, func() { calls++ })
	o.Logger = &logger
	d, err := NewSPI(p, o)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "strip armed")

	p.txErr = syscall.EIO
	assert.ErrorIs(t, d.Tick(), syscall.EIO)
	assert.Equal(t, 1, calls, "update skipped after failed transfer")
	assert.Zero(t, d.Frames())

	require.True(t, m.Fire())
	assert.Equal(t, 2, calls)
	assert.Contains(t, logs.String(), "frame transfer failed")

	p.txErr = nil
	require.NoError(t, d.Tick())
	assert.Equal(t, uint64(1), d.Frames())
	assert.Len(t, p.writes, 1)
	require.NoError(t, d.Halt())
}

func TestHalt(t *testing.T) {
	var m refresh.Manual
	calls := 0
	d, err := NewSPI(&fakePort{}, testOpts(&m, func() { calls++ }))
	require.NoError(t, err)

	require.NoError(t, d.Halt())
	require.NoError(t, d.Halt())

	assert.False(t, m.Fire(), "timer still armed")
	assert.ErrorIs(t, d.Tick(), ErrHalted)
	assert.ErrorIs(t, d.SetPixel(0, model.Pixel{}), ErrHalted)
	assert.Zero(t, calls)
	assert.Zero(t, d.Len())
	assert.Nil(t, d.Frame())
}

func TestArmedTicker(t *testing.T) {
	buf := bytes.Buffer{}
	o := testOpts(nil, func() {})
	o.Refresh = model.Refresh100Hz

	d, err := NewSPI(spitest.NewRecordRaw(&buf), o)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return d.Frames() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, d.Halt())

	n := d.Frames()
	assert.Equal(t, int(n)*model.Size(o.Count), buf.Len())
}
