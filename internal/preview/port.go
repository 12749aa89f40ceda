// Package preview provides a SPI port without hardware behind it. Frames
// written to it are decoded back into pixels, which lets the driver run on a
// machine without a strip attached.
package preview

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/coreman2200/hd108/model"
)

var ErrMalformed = errors.New("preview: malformed frame")

// Port implements spi.PortCloser.
//
// Tx blocks for the time the frame would take on a real bus at the connected
// speed, then hands the decoded pixels to Sink.
type Port struct {
	Sink func([]model.Pixel)

	mu        sync.Mutex
	limit     physic.Frequency
	speed     physic.Frequency
	connected bool
	closed    bool
}

func (p *Port) String() string {
	return "preview"
}

func (p *Port) LimitSpeed(f physic.Frequency) error {
	if f <= 0 {
		return errors.New("preview: invalid speed")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limit = f
	return nil
}

func (p *Port) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return nil, errors.New("preview: port closed")
	case p.connected:
		return nil, errors.New("preview: Connect cannot be called twice")
	case bits != 8:
		return nil, fmt.Errorf("preview: %d bits per word not supported", bits)
	}
	p.connected = true
	p.speed = f
	if p.limit > 0 && (p.speed == 0 || p.limit < p.speed) {
		p.speed = p.limit
	}
	return &previewConn{p: p}, nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Speed returns the clock negotiated by Connect.
func (p *Port) Speed() physic.Frequency {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// transferTime is how long w takes on the wire at speed.
func transferTime(n int, speed physic.Frequency) time.Duration {
	if speed <= 0 {
		return 0
	}
	return time.Duration(n*8) * speed.Period()
}

type previewConn struct {
	p *Port
}

func (c *previewConn) String() string {
	return c.p.String()
}

func (c *previewConn) Duplex() conn.Duplex {
	return conn.Half
}

func (c *previewConn) TxPackets(p []spi.Packet) error {
	return errors.New("preview: TxPackets is not implemented")
}

func (c *previewConn) Tx(w, r []byte) error {
	if len(r) != 0 {
		return errors.New("preview: reads are not supported")
	}
	pixels, err := Parse(w)
	if err != nil {
		return err
	}
	c.p.mu.Lock()
	closed, speed, sink := c.p.closed, c.p.speed, c.p.Sink
	c.p.mu.Unlock()
	if closed {
		return errors.New("preview: port closed")
	}

	time.Sleep(transferTime(len(w), speed))
	if sink != nil {
		sink(pixels)
	}
	return nil
}

// Parse decodes a complete HD108 frame. Records without a start bit are idle
// bytes to the strip and decode as dark pixels.
func Parse(b []byte) ([]model.Pixel, error) {
	if len(b) < model.Size(1) || (len(b)-model.Padding)%model.PixelSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(b))
	}
	for i, v := range b[:model.Padding] {
		if v != 0 {
			return nil, fmt.Errorf("%w: padding byte %d is %#02x", ErrMalformed, i, v)
		}
	}

	n := (len(b) - model.Padding) / model.PixelSize
	pixels := make([]model.Pixel, n)
	for i := range pixels {
		if p, start := model.Decode(b[model.SlotOffset(i):]); start {
			pixels[i] = p
		}
	}
	return pixels, nil
}
