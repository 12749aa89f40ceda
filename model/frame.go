package model

const (
	// Padding is the number of zero bytes preceding the first pixel of every
	// frame.
	Padding = 16

	MinCount = 1
	MaxCount = 1024
)

// Size returns the frame size in bytes for a strip of n pixels.
func Size(n int) int {
	return Padding + n*PixelSize
}

// SlotOffset returns the offset of pixel i inside a frame. It does not check
// bounds.
func SlotOffset(i int) int {
	return Padding + i*PixelSize
}

// Frame is the transmit buffer of one strip: Padding zero bytes followed by
// one PixelSize slot per LED.
//
// The buffer is allocated once and only ever modified in place.
type Frame struct {
	buf []byte
	n   int
}

// NewFrame allocates a zeroed frame for n pixels.
func NewFrame(n int) (*Frame, error) {
	if n < MinCount || n > MaxCount {
		return nil, ErrLength
	}
	return &Frame{
		buf: make([]byte, Size(n)),
		n:   n,
	}, nil
}

// Len returns the number of pixels.
func (f *Frame) Len() int {
	return f.n
}

// Bytes returns the wire buffer. Callers must not retain or modify it.
func (f *Frame) Bytes() []byte {
	return f.buf
}

// Set encodes p into slot i.
func (f *Frame) Set(i int, p Pixel) error {
	if i < 0 || i >= f.n {
		return ErrIndex
	}
	p.Put(f.buf[SlotOffset(i):])
	return nil
}

// Pixel decodes slot i. Slots never written decode as a zero pixel.
func (f *Frame) Pixel(i int) (Pixel, error) {
	if i < 0 || i >= f.n {
		return Pixel{}, ErrIndex
	}
	p, _ := Decode(f.buf[SlotOffset(i):])
	return p, nil
}

// Clear turns every LED off. Slots keep their start bit.
func (f *Frame) Clear() {
	for i := 0; i < f.n; i++ {
		Pixel{}.Put(f.buf[SlotOffset(i):])
	}
}
