package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/openscb/internal/transport"
)

// Backends.
const (
	USB    = "usb"    // serial link found by the board's USB ids
	Serial = "serial" // serial link on an explicit port
	Sim    = "sim"
)

// Frequency is a physic.Frequency that reads and writes as "50Hz".
type Frequency physic.Frequency

func (f Frequency) MarshalYAML() (any, error) {
	return physic.Frequency(f).String(), nil
}

func (f *Frequency) UnmarshalYAML(n *yaml.Node) error {
	var v physic.Frequency
	if err := v.Set(n.Value); err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*f = Frequency(v)
	return nil
}

type Config struct {
	Backend      string                 `yaml:"backend"` // "usb" | "serial" | "sim"
	Serial       transport.SerialConfig `yaml:"serial,omitempty"`
	PollInterval time.Duration          `yaml:"poll_interval"`
	TickRate     Frequency              `yaml:"tick_rate"`
	Addr         string                 `yaml:"addr"`
	LogLevel     string                 `yaml:"log_level"`
	Project      string                 `yaml:"project,omitempty"` // loaded after connect
}

func Default() *Config {
	return &Config{
		Backend:      USB,
		Serial:       transport.DefaultSerialConfig(),
		PollInterval: 40 * time.Millisecond,
		TickRate:     Frequency(50 * physic.Hertz),
		Addr:         ":8080",
		LogLevel:     "info",
	}
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case USB, Serial, Sim:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.Backend == Serial && c.Serial.Port == "" {
		return fmt.Errorf("config: backend serial needs serial.port")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive")
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("config: tick_rate must be positive")
	}
	return nil
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	return c, c.Validate()
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
