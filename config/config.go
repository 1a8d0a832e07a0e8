package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"go-playseq/transport"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid config")

// ControllerType identifies the kind of controller
type ControllerType string

const (
	ControllerLaunchpadX ControllerType = "launchpad-x"
	ControllerKeyboard   ControllerType = "keyboard"
)

// ControllerConfig defines a saved controller configuration
type ControllerConfig struct {
	PortName    string         `yaml:"port_name"`
	Type        ControllerType `yaml:"type"`
	AutoConnect bool           `yaml:"auto_connect"`
}

// TimeSignature is the transport meter
type TimeSignature struct {
	Top    int `yaml:"top"`
	Bottom int `yaml:"bottom"`
}

// SequencerConfig is the persisted step sequencer state
type SequencerConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Interval      string  `yaml:"interval"`
	Measures      int     `yaml:"measures"`
	Sustain       bool    `yaml:"sustain"`
	VelocityFull  float64 `yaml:"velocity_full"`
	VelocityMed   float64 `yaml:"velocity_med"`
	VelocityLight float64 `yaml:"velocity_light"`
	// lane 0 plays this MIDI note, lane 1 the next one up
	LaneNote int `yaml:"lane_note"`
}

// MonoConfig is the persisted monophonic converter state
type MonoConfig struct {
	Enabled     bool    `yaml:"enabled"`
	GlideMs     float64 `yaml:"glide_ms"`
	RequireHeld bool    `yaml:"require_held"`
}

// PortsConfig selects the MIDI ports
type PortsConfig struct {
	// substring of the keyboard input port name
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	// 1-based MIDI channel
	Channel   int     `yaml:"channel"`
	BendRange float64 `yaml:"bend_range"`
}

// Config is the main configuration structure
type Config struct {
	Tempo         float64            `yaml:"tempo"`
	TimeSignature TimeSignature      `yaml:"time_signature"`
	Sequencer     SequencerConfig    `yaml:"sequencer"`
	Mono          MonoConfig         `yaml:"mono"`
	Ports         PortsConfig        `yaml:"ports"`
	Controllers   []ControllerConfig `yaml:"controllers,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Tempo:         120,
		TimeSignature: TimeSignature{Top: 4, Bottom: 4},
		Sequencer: SequencerConfig{
			Enabled:       true,
			Interval:      transport.Interval16n.String(),
			Measures:      1,
			VelocityFull:  1,
			VelocityMed:   .5,
			VelocityLight: .25,
			LaneNote:      36,
		},
		Mono: MonoConfig{
			Enabled: true,
		},
		Ports: PortsConfig{
			Channel:   1,
			BendRange: 2,
		},
		Controllers: []ControllerConfig{
			{
				PortName:    "Launchpad X LPX MIDI",
				Type:        ControllerLaunchpadX,
				AutoConnect: true,
			},
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-playseq"), nil
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// PatternPath returns where the sequencer grid is kept between sessions
func PatternPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pattern.mid"), nil
}

// Load reads the config at path, or returns defaults if there is no file.
// Fields missing from the file keep their defaults. An empty path means
// ConfigPath.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return DefaultConfig(), nil
		}
		path = p
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating its directory. An empty path
// means ConfigPath.
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Normalize clamps numeric fields into their ranges
func (c *Config) Normalize() {
	c.Tempo = clamp(c.Tempo, 20, 300)
	c.Sequencer.VelocityFull = clamp(c.Sequencer.VelocityFull, 0, 1)
	c.Sequencer.VelocityMed = clamp(c.Sequencer.VelocityMed, 0, 1)
	c.Sequencer.VelocityLight = clamp(c.Sequencer.VelocityLight, 0, 1)
	c.Sequencer.LaneNote = int(clamp(float64(c.Sequencer.LaneNote), 0, 127))
	c.Mono.GlideMs = clamp(c.Mono.GlideMs, 0, 1000)
	if c.Ports.Channel < 1 || c.Ports.Channel > 16 {
		c.Ports.Channel = 1
	}
	if c.Ports.BendRange <= 0 {
		c.Ports.BendRange = 2
	}
}

// Validate reports settings that can't be clamped into shape
func (c *Config) Validate() error {
	var errs []error
	if _, err := transport.ParseInterval(c.Sequencer.Interval); err != nil {
		errs = append(errs, err)
	}
	switch c.Sequencer.Measures {
	case 1, 2, 4, 8, 16:
	default:
		errs = append(errs, fmt.Errorf("measures must be 1, 2, 4, 8 or 16, got %d", c.Sequencer.Measures))
	}
	ts := c.TimeSignature
	if ts.Top <= 0 || ts.Bottom <= 0 || ts.Bottom&(ts.Bottom-1) != 0 {
		errs = append(errs, fmt.Errorf("time signature %d/%d", ts.Top, ts.Bottom))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Interval returns the parsed sequencer interval
func (c *Config) Interval() transport.Interval {
	iv, err := transport.ParseInterval(c.Sequencer.Interval)
	if err != nil {
		return transport.Interval16n
	}
	return iv
}

// FindController finds a controller config by port name
func (c *Config) FindController(portName string) *ControllerConfig {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == portName {
			return &c.Controllers[i]
		}
	}
	return nil
}

// AddController adds or updates a controller config
func (c *Config) AddController(ctrl ControllerConfig) {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == ctrl.PortName {
			c.Controllers[i] = ctrl
			return
		}
	}
	c.Controllers = append(c.Controllers, ctrl)
}

// KeyboardPort returns the keyboard input to open: the ports input, or the
// first auto-connecting keyboard controller
func (c *Config) KeyboardPort() string {
	if c.Ports.Input != "" {
		return c.Ports.Input
	}
	for _, ctrl := range c.Controllers {
		if ctrl.Type == ControllerKeyboard && ctrl.AutoConnect {
			return ctrl.PortName
		}
	}
	return ""
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
