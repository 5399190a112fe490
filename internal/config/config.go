package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/mechanismd/internal/mixer"
)

// #region config
// Config is the full set of options a Manager is constructed from.
// Construction fails outright on an invalid Config; the system never
// starts partially configured.
type Config struct {
	PositionDim int `yaml:"position_dim"`

	PhaseDotTh        float64 `yaml:"phase_dot_th"`
	PhaseDotPreautoTh float64 `yaml:"phase_dot_preauto_th"`

	// Models lists the names of saved models to pre-load as VMs at
	// startup, in insertion order.
	Models []string `yaml:"models"`

	// ProbMode selects the mixer weighting rule; an unrecognized string
	// falls back to mixer.Potential (see mixer.ParseMode).
	ProbMode string `yaml:"prob_mode"`

	// UseWeightedDist and UseActiveGuide are per-VM flags, one entry per
	// model listed in Models, in the same order.
	UseWeightedDist []bool `yaml:"use_weighted_dist"`
	UseActiveGuide  []bool `yaml:"use_active_guide"`

	// UseAutomaton selects whether ActivationAutomaton or the legacy
	// force_applied/use_active_guide gate drives curve.SetActive.
	UseAutomaton bool `yaml:"use_automaton"`

	// TwoStateAutomaton selects the automaton's two-state Manual/Auto
	// mode instead of the default three-state Manual/PreAuto/Auto path.
	TwoStateAutomaton bool `yaml:"two_state_automaton"`
}

// #endregion config

// #region defaults
// Default returns a minimally viable Config: no VMs pre-loaded, the
// three-state automaton, potential-mode mixing. Callers are expected to
// override PositionDim, the thresholds, and Models for their scenario.
func Default() Config {
	return Config{
		PositionDim:       3,
		PhaseDotTh:        0.1,
		PhaseDotPreautoTh: 0.5,
		ProbMode:          string(mixer.Potential),
		UseAutomaton:      true,
	}
}

// #endregion defaults

// #region load
// Load reads and validates a Config from a YAML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// #endregion load

// #region validate
// Validate enforces the invariants a Manager depends on: bad input
// fails here, not partway through a tick.
func (c Config) Validate() error {
	switch c.PositionDim {
	case 1, 2, 3:
	default:
		return fmt.Errorf("position_dim must be 1, 2, or 3, got %d", c.PositionDim)
	}
	if c.PhaseDotTh <= 0 {
		return fmt.Errorf("phase_dot_th must be > 0, got %v", c.PhaseDotTh)
	}
	if c.PhaseDotPreautoTh <= c.PhaseDotTh {
		return fmt.Errorf("phase_dot_preauto_th (%v) must be > phase_dot_th (%v)", c.PhaseDotPreautoTh, c.PhaseDotTh)
	}
	if len(c.UseWeightedDist) > 0 && len(c.UseWeightedDist) != len(c.Models) {
		return fmt.Errorf("use_weighted_dist has %d entries, want one per model (%d)", len(c.UseWeightedDist), len(c.Models))
	}
	if len(c.UseActiveGuide) > 0 && len(c.UseActiveGuide) != len(c.Models) {
		return fmt.Errorf("use_active_guide has %d entries, want one per model (%d)", len(c.UseActiveGuide), len(c.Models))
	}
	return nil
}

// #endregion validate

// MixerMode parses ProbMode into a mixer.Mode, defaulting to Potential
// on unrecognized input per §6.
func (c Config) MixerMode() mixer.Mode {
	return mixer.ParseMode(c.ProbMode)
}

// WeightedDistFor reports whether VM i should use weighted distance,
// defaulting to false when UseWeightedDist was left empty.
func (c Config) WeightedDistFor(i int) bool {
	if i < 0 || i >= len(c.UseWeightedDist) {
		return false
	}
	return c.UseWeightedDist[i]
}

// ActiveGuideFor reports whether VM i participates in the legacy
// active-guide gate, defaulting to false when UseActiveGuide was left
// empty.
func (c Config) ActiveGuideFor(i int) bool {
	if i < 0 || i >= len(c.UseActiveGuide) {
		return false
	}
	return c.UseActiveGuide[i]
}
