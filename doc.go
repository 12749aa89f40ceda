// Package hd108 drives a strip of HD108 LEDs over SPI.
//
// The HD108 takes 16-bit color intensities and a 5-bit current level per
// channel. A frame starts with 16 zero bytes and carries 8 bytes per LED:
//
//	word0  1 | red current (5) | green current (5) | blue current (5)
//	word1  red
//	word2  green
//	word3  blue
//
// All words are sent most significant byte first, in SPI mode 3 without chip
// select, at up to 40MHz.
//
// The strip is retransmitted at a fixed refresh rate. On each period the
// driver sends the frame, waits for the transfer to complete, then calls
// Opts.Update. Pixels written with SetPixel from within Update are sent on the
// next period. SetPixel is not safe to call from anywhere else.
//
// # Basic Usage
//
//	// The timer is armed before Open returns, so the first ticks may run
//	// before the handle is stored.
//	var dev atomic.Pointer[hd108.Dev]
//	step := 0
//	d, err := hd108.Open(&hd108.Opts{
//		Bus:     "/dev/spidev0.0",
//		Speed:   20 * physic.MegaHertz,
//		Count:   60,
//		Refresh: model.Refresh60Hz,
//		Update: func() {
//			d := dev.Load()
//			if d == nil {
//				return
//			}
//			_ = d.SetPixel(step%60, model.Pixel{})
//			step++
//			_ = d.SetPixel(step%60, model.Pixel{CurrentRed: 8, Red: 0xFFFF})
//		},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	dev.Store(d)
//	defer d.Halt()
//
// A configuration whose refresh rate cannot be sustained at the requested
// clock fails with ErrDataRate: the bus must run at least twice as fast as
// the raw frame bit rate.
//
// # Scheduling
//
// By default transmissions are driven by a refresh.Ticker. Runtimes that own
// their loop can pass a refresh.Manual as Opts.Timer and fire it themselves,
// or call Tick directly.
package hd108
