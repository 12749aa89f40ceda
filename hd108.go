package hd108

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/coreman2200/hd108/model"
	"github.com/coreman2200/hd108/refresh"
)

// Opts is the configuration of one strip.
type Opts struct {
	// Bus is the spireg name of the SPI port used by Open. Empty selects the
	// first port registered.
	Bus string
	// Speed is the SPI clock, at most model.MaxSpeed.
	Speed physic.Frequency
	// MOSI and CLK are the data and clock pin numbers wired to the strip.
	MOSI int
	CLK  int
	// Count is the number of LEDs, in [model.MinCount, model.MaxCount].
	Count int
	// Refresh is the retransmission rate.
	Refresh model.Refresh
	// Update runs after every transmission. It is the only place where
	// SetPixel may be called.
	Update func()

	// Timer drives the transmissions. nil selects refresh.NewTicker().
	Timer refresh.Timer
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// Dev is a handle to an HD108 strip.
type Dev struct {
	c      spi.Conn
	port   spi.PortCloser // set when the port was opened by Open
	frame  *model.Frame
	update func()
	timer  refresh.Timer
	logger zerolog.Logger

	mu     sync.Mutex
	halted bool
	frames atomic.Uint64
}

// Open initializes the host drivers, opens the SPI port named by opts.Bus and
// returns an armed strip. The port is closed by Halt.
func Open(opts *Opts) (*Dev, error) {
	if opts == nil {
		return nil, ErrInvalid
	}
	if err := model.Validate(opts.Count, opts.Speed, opts.Refresh, opts.Update != nil); err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, translate(stageBus, err)
	}
	p, err := spireg.Open(opts.Bus)
	if err != nil {
		return nil, translate(stageBus, err)
	}
	d, err := newDev(p, opts)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	d.port = p
	return d, nil
}

// NewSPI returns an armed strip on an already opened SPI port. The caller
// keeps ownership of p.
func NewSPI(p spi.Port, opts *Opts) (*Dev, error) {
	if opts == nil {
		return nil, ErrInvalid
	}
	return newDev(p, opts)
}

func newDev(p spi.Port, opts *Opts) (*Dev, error) {
	if err := model.Validate(opts.Count, opts.Speed, opts.Refresh, opts.Update != nil); err != nil {
		return nil, err
	}
	frame, err := model.NewFrame(opts.Count)
	if err != nil {
		return nil, err
	}

	// HD108 samples on the rising edge with an idle high clock and has no
	// chip select.
	c, err := p.Connect(opts.Speed, spi.Mode3|spi.NoCS, 8)
	if err != nil {
		return nil, translate(stageDevice, err)
	}
	if l, ok := c.(conn.Limits); ok {
		if limit := l.MaxTxSize(); limit > 0 && limit < model.Size(opts.Count) {
			return nil, fmt.Errorf("%w: frame of %d bytes exceeds transfer limit of %d", ErrNoDMA, model.Size(opts.Count), limit)
		}
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	d := &Dev{
		c:      c,
		frame:  frame,
		update: opts.Update,
		timer:  opts.Timer,
	}
	d.logger = logger.With().Str("dev", d.String()).Logger()
	if d.timer == nil {
		d.timer = refresh.NewTicker()
	}

	period := opts.Refresh.Period()
	if err := d.timer.Start(period, d.tick); err != nil {
		return nil, translate(stageTimer, err)
	}
	d.logger.Info().
		Int("count", opts.Count).
		Stringer("refresh", opts.Refresh).
		Stringer("speed", opts.Speed).
		Stringer("period", period).
		Int("mosi", opts.MOSI).
		Int("clk", opts.CLK).
		Msg("strip armed")
	return d, nil
}

// SetPixel encodes p into slot i. The change is sent with the next
// transmission.
//
// SetPixel is not synchronized with transmissions; it must only be called
// from the Update callback.
func (d *Dev) SetPixel(i int, p model.Pixel) error {
	if d.frame == nil {
		return ErrHalted
	}
	return d.frame.Set(i, p)
}

// Tick sends the current frame, blocking until the transfer completes, then
// runs the Update callback. The armed Timer calls it once per period.
func (d *Dev) Tick() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}

	err := d.c.Tx(d.frame.Bytes(), nil)
	if err == nil {
		d.frames.Add(1)
	}
	d.update()
	return err
}

func (d *Dev) tick() {
	if err := d.Tick(); err != nil && !errors.Is(err, ErrHalted) {
		d.logger.Warn().Err(err).Uint64("frames", d.frames.Load()).Msg("frame transfer failed")
	}
}

// Halt stops the transmissions, closes the port when it was opened by Open
// and releases the frame. It waits for a running Tick and must not be called
// from the Update callback.
func (d *Dev) Halt() error {
	d.mu.Lock()
	if d.halted {
		d.mu.Unlock()
		return nil
	}
	d.halted = true
	d.mu.Unlock()

	err := d.timer.Stop()
	if d.port != nil {
		if cerr := d.port.Close(); err == nil {
			err = cerr
		}
		d.port = nil
	}

	d.mu.Lock()
	d.frame = nil
	d.mu.Unlock()
	d.logger.Debug().Uint64("frames", d.frames.Load()).Msg("strip halted")
	return err
}

// Len returns the number of LEDs.
func (d *Dev) Len() int {
	if d.frame == nil {
		return 0
	}
	return d.frame.Len()
}

// Frames returns the number of frames transmitted successfully.
func (d *Dev) Frames() uint64 {
	return d.frames.Load()
}

// Frame returns a copy of the bytes sent on each transmission.
func (d *Dev) Frame() []byte {
	if d.frame == nil {
		return nil
	}
	return append([]byte(nil), d.frame.Bytes()...)
}

func (d *Dev) String() string {
	return fmt.Sprintf("hd108{%s}", d.c)
}
