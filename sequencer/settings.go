package sequencer

import (
	"fmt"

	"go-playseq/config"
	"go-playseq/transport"
)

// ApplySettings loads persisted sequencer settings. Velocity tiers are
// clamped; a bad interval or measure count is returned and leaves the
// current value in place.
func (s *PlaySequencer) ApplySettings(c config.SequencerConfig) error {
	s.sustain = c.Sustain
	s.SetVelocityModifiers(c.VelocityFull, c.VelocityMed, c.VelocityLight)

	iv, err := transport.ParseInterval(c.Interval)
	if err != nil {
		return fmt.Errorf("sequencer settings: %w", err)
	}
	if iv != s.interval {
		if err := s.SetInterval(iv); err != nil {
			return fmt.Errorf("sequencer settings: %w", err)
		}
	}
	if err := s.SetNumMeasures(c.Measures); err != nil {
		return fmt.Errorf("sequencer settings: %w", err)
	}
	return nil
}

// Settings returns the persisted part of the sequencer state. Enabled and
// LaneNote belong to the caller and are left zero.
func (s *PlaySequencer) Settings() config.SequencerConfig {
	return config.SequencerConfig{
		Interval:      s.interval.String(),
		Measures:      s.numMeasures,
		Sustain:       s.sustain,
		VelocityFull:  s.velFull,
		VelocityMed:   s.velMed,
		VelocityLight: s.velLight,
	}
}

// ApplySettings loads persisted converter settings
func (m *Monophonic) ApplySettings(c config.MonoConfig) {
	m.SetGlide(c.GlideMs)
	m.SetRequireHeld(c.RequireHeld)
}

func (m *Monophonic) Settings() config.MonoConfig {
	return config.MonoConfig{
		Enabled:     m.enabled,
		GlideMs:     m.glideMs,
		RequireHeld: m.requireHeld,
	}
}
