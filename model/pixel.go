package model

import "encoding/binary"

const (
	// PixelSize is the number of bytes one pixel occupies on the wire.
	PixelSize = 8

	// StartBit marks the beginning of every pixel record.
	StartBit uint16 = 0x8000

	currentMask uint16 = 0x1F

	redCurrentOffset   = 10
	greenCurrentOffset = 5
	blueCurrentOffset  = 0
)

// Pixel describes one HD108 LED.
//
// The current levels drive the per-channel current limiters and only their
// low 5 bits are sent. The colors are full 16-bit intensities.
type Pixel struct {
	CurrentRed   uint8
	CurrentGreen uint8
	CurrentBlue  uint8

	Red   uint16
	Green uint16
	Blue  uint16
}

// Header returns the first wire word: start bit followed by the three
// current levels.
func (p Pixel) Header() uint16 {
	return StartBit |
		(uint16(p.CurrentRed)&currentMask)<<redCurrentOffset |
		(uint16(p.CurrentGreen)&currentMask)<<greenCurrentOffset |
		(uint16(p.CurrentBlue)&currentMask)<<blueCurrentOffset
}

// Put writes the wire representation of p into dst[:PixelSize].
func (p Pixel) Put(dst []byte) {
	_ = dst[PixelSize-1]
	binary.BigEndian.PutUint16(dst[0:], p.Header())
	binary.BigEndian.PutUint16(dst[2:], p.Red)
	binary.BigEndian.PutUint16(dst[4:], p.Green)
	binary.BigEndian.PutUint16(dst[6:], p.Blue)
}

// Encode returns the wire representation of p.
func (p Pixel) Encode() [PixelSize]byte {
	var b [PixelSize]byte
	p.Put(b[:])
	return b
}

// Decode parses one wire record. The boolean reports whether the start bit
// was present.
func Decode(src []byte) (Pixel, bool) {
	_ = src[PixelSize-1]
	h := binary.BigEndian.Uint16(src[0:])
	return Pixel{
		CurrentRed:   uint8((h >> redCurrentOffset) & currentMask),
		CurrentGreen: uint8((h >> greenCurrentOffset) & currentMask),
		CurrentBlue:  uint8((h >> blueCurrentOffset) & currentMask),
		Red:          binary.BigEndian.Uint16(src[2:]),
		Green:        binary.BigEndian.Uint16(src[4:]),
		Blue:         binary.BigEndian.Uint16(src[6:]),
	}, h&StartBit != 0
}
