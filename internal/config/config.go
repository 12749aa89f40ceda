package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/hd108/model"
)

type SPI struct {
	Bus     string `yaml:"bus"`      // e.g. /dev/spidev0.0, empty for the first port
	SpeedHz int64  `yaml:"speed_hz"` // e.g. 20000000
	MOSI    int    `yaml:"mosi"`
	CLK     int    `yaml:"clk"`
}

// MaxCurrent is the highest 5-bit current level.
const MaxCurrent = 31

type Strip struct {
	Count     int `yaml:"count"`
	RefreshHz int `yaml:"refresh_hz"`
	// Current is applied to all three channels by the demo pattern.
	Current uint8 `yaml:"current"`
}

type Config struct {
	Sim   bool   `yaml:"sim"`
	Addr  string `yaml:"addr"`
	SPI   SPI    `yaml:"spi"`
	Strip Strip  `yaml:"strip"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Addr: ":8080",
		SPI: SPI{
			SpeedHz: 20000000,
			MOSI:    10,
			CLK:     11,
		},
		Strip: Strip{
			Count:     60,
			RefreshHz: 60,
			Current:   8,
		},
	}
}

func Load(path string) (*Config, error) {
	return LoadOver(path, Default())
}

// LoadOver reads path on top of a copy of base. Fields the file leaves out
// keep the value from base.
func LoadOver(path string, base *Config) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := *base
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if c.Strip.Current > MaxCurrent {
		return nil, fmt.Errorf("config %s: current %d outside 0..%d", path, c.Strip.Current, MaxCurrent)
	}
	return &c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Speed returns the SPI clock as a frequency.
func (c *Config) Speed() physic.Frequency {
	return physic.Frequency(c.SPI.SpeedHz) * physic.Hertz
}

// Refresh returns the strip refresh rate, rejecting unsupported values.
func (c *Config) Refresh() (model.Refresh, error) {
	return model.ParseRefresh(c.Strip.RefreshHz)
}
