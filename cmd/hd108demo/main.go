package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/display"
	"periph.io/x/devices/v3/screen1d"

	"github.com/coreman2200/hd108"
	"github.com/coreman2200/hd108/internal/config"
	"github.com/coreman2200/hd108/internal/preview"
	"github.com/coreman2200/hd108/internal/ws"
	"github.com/coreman2200/hd108/model"
)

func main() {
	// ---- Flags (config.yaml overrides them when present) ----
	def := config.Default()
	current := currentLevel(def.Strip.Current)
	flag.Var(&current, "current", "current level 0..31")
	var (
		bus        = flag.String("bus", def.SPI.Bus, "SPI port name (empty for the first one)")
		speedHz    = flag.Int64("speed-hz", def.SPI.SpeedHz, "SPI clock in Hz")
		mosi       = flag.Int("mosi", def.SPI.MOSI, "data pin")
		clk        = flag.Int("clk", def.SPI.CLK, "clock pin")
		count      = flag.Int("count", def.Strip.Count, "number of LEDs")
		refreshHz  = flag.Int("refresh", def.Strip.RefreshHz, "refresh rate in Hz")
		addr       = flag.String("addr", def.Addr, "HTTP listen address")
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		sim        = flag.Bool("sim", false, "force the preview bus (no hardware output)")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg := &config.Config{
		Addr:  *addr,
		SPI:   config.SPI{Bus: *bus, SpeedHz: *speedHz, MOSI: *mosi, CLK: *clk},
		Strip: config.Strip{Count: *count, RefreshHz: *refreshHz, Current: uint8(current)},
	}
	if c, err := config.LoadOver(*configPath, cfg); err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with flags")
	} else {
		cfg = c
	}
	if *sim {
		cfg.Sim = true
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("hd108demo")
	}
}

func run(cfg *config.Config) error {
	r, err := cfg.Refresh()
	if err != nil {
		return err
	}

	hub := ws.NewHub(cfg.Strip.Count, "")
	c := &chase{current: cfg.Strip.Current}
	opts := &hd108.Opts{
		Bus:     cfg.SPI.Bus,
		Speed:   cfg.Speed(),
		MOSI:    cfg.SPI.MOSI,
		CLK:     cfg.SPI.CLK,
		Count:   cfg.Strip.Count,
		Refresh: r,
		Update:  c.update,
	}

	dev, driver, err := open(cfg, opts, hub, c)
	if err != nil {
		return err
	}
	hub.SetDriver(driver)

	// ---- HTTP routes ----
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleFramesWS)
	mux.HandleFunc("/health", hub.HandleHealth)
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("driver", driver).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Uint64("frames", dev.Frames()).Msg("shutting down")
		_ = srv.Close()
		return dev.Halt()
	})
	return g.Wait()
}

// open arms the strip on the configured bus, or on the preview bus when
// asked to or when no bus can be opened.
func open(cfg *config.Config, opts *hd108.Opts, hub *ws.Hub, c *chase) (*hd108.Dev, string, error) {
	if !cfg.Sim {
		c.broadcast = hub.Broadcast
		dev, err := hd108.Open(opts)
		switch {
		case err == nil:
			c.dev.Store(dev)
			return dev, "spi", nil
		case errors.Is(err, hd108.ErrLength), errors.Is(err, hd108.ErrDataRate):
			return nil, "", err
		}
		log.Warn().Err(err).
			Str("bus", cfg.SPI.Bus).
			Int64("speed_hz", cfg.SPI.SpeedHz).
			Msg("SPI init failed; falling back to preview")
		c.broadcast = nil
	}

	screen := screen1d.New(&screen1d.Opts{X: max(opts.Count, 0)})
	p := &preview.Port{Sink: func(pixels []model.Pixel) {
		hub.Broadcast(pixels)
		if err := show(screen, pixels); err != nil {
			log.Debug().Err(err).Msg("draw preview")
		}
	}}
	dev, err := hd108.NewSPI(p, opts)
	if err != nil {
		return nil, "", err
	}
	c.dev.Store(dev)
	return dev, "preview", nil
}

// chase moves a single lit LED along the strip, changing color each lap.
type chase struct {
	dev       atomic.Pointer[hd108.Dev]
	current   uint8
	broadcast func([]model.Pixel)
	pos       int
	lap       int
}

var chaseColors = []model.Pixel{
	{Red: 0xFFFF},
	{Green: 0xFFFF},
	{Blue: 0xFFFF},
	{Red: 0xFFFF, Green: 0xFFFF, Blue: 0xFFFF},
}

// update runs on the tick goroutine after every transmission.
func (c *chase) update() {
	dev := c.dev.Load()
	if dev == nil {
		return
	}
	if c.broadcast != nil {
		if pixels, err := preview.Parse(dev.Frame()); err == nil {
			c.broadcast(pixels)
		}
	}

	n := dev.Len()
	if c.pos == 0 {
		for i := 0; i < n; i++ {
			_ = dev.SetPixel(i, model.Pixel{})
		}
	} else {
		_ = dev.SetPixel(c.pos-1, model.Pixel{})
	}

	p := chaseColors[c.lap%len(chaseColors)]
	p.CurrentRed, p.CurrentGreen, p.CurrentBlue = c.current, c.current, c.current
	_ = dev.SetPixel(c.pos, p)

	c.pos++
	if c.pos == n {
		c.pos = 0
		c.lap++
	}
}

// currentLevel is a flag.Value accepting the 5-bit current range.
type currentLevel uint8

func (c *currentLevel) String() string {
	return strconv.Itoa(int(*c))
}

func (c *currentLevel) Set(s string) error {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return err
	}
	if v > config.MaxCurrent {
		return fmt.Errorf("%d outside 0..%d", v, config.MaxCurrent)
	}
	*c = currentLevel(v)
	return nil
}

// frameImage renders decoded pixels as a one-row image, keeping the high
// byte of each 16-bit intensity.
func frameImage(pixels []model.Pixel) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, len(pixels), 1))
	for i, p := range pixels {
		img.SetNRGBA(i, 0, color.NRGBA{R: uint8(p.Red >> 8), G: uint8(p.Green >> 8), B: uint8(p.Blue >> 8), A: 255})
	}
	return img
}

func show(d display.Drawer, pixels []model.Pixel) error {
	img := frameImage(pixels)
	return d.Draw(d.Bounds(), img, image.Point{})
}
