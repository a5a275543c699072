// File: internal/config/humanoid_config.go
// HumanoidConfig tunes the human-like input emulation used for clicking and
// typing into forms. Disabling it turns every pause into a no-op and every
// pointer move into a single straight step, which keeps runs deterministic.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type HumanoidConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Fitts's law movement time parameters, in milliseconds.
	FittsA float64 `mapstructure:"fitts_a" yaml:"fitts_a"`
	FittsB float64 `mapstructure:"fitts_b" yaml:"fitts_b"`

	PerlinAmplitude  float64 `mapstructure:"perlin_amplitude" yaml:"perlin_amplitude"`
	GaussianStrength float64 `mapstructure:"gaussian_strength" yaml:"gaussian_strength"`

	ClickHoldMinMs   int     `mapstructure:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs   int     `mapstructure:"click_hold_max_ms" yaml:"click_hold_max_ms"`
	PreClickMinMs    int     `mapstructure:"pre_click_min_ms" yaml:"pre_click_min_ms"`
	PreClickMaxMs    int     `mapstructure:"pre_click_max_ms" yaml:"pre_click_max_ms"`
	KeyHoldMeanMs    float64 `mapstructure:"key_hold_mean_ms" yaml:"key_hold_mean_ms"`
	KeyPauseMinMs    int     `mapstructure:"key_pause_min_ms" yaml:"key_pause_min_ms"`
	KeyPauseMaxMs    int     `mapstructure:"key_pause_max_ms" yaml:"key_pause_max_ms"`
	ActionPauseMinMs int     `mapstructure:"action_pause_min_ms" yaml:"action_pause_min_ms"`
	ActionPauseMaxMs int     `mapstructure:"action_pause_max_ms" yaml:"action_pause_max_ms"`
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("browser.humanoid.enabled", true)
	v.SetDefault("browser.humanoid.fitts_a", 100.0)
	v.SetDefault("browser.humanoid.fitts_b", 120.0)
	v.SetDefault("browser.humanoid.perlin_amplitude", 2.5)
	v.SetDefault("browser.humanoid.gaussian_strength", 0.5)
	v.SetDefault("browser.humanoid.click_hold_min_ms", 50)
	v.SetDefault("browser.humanoid.click_hold_max_ms", 120)
	v.SetDefault("browser.humanoid.pre_click_min_ms", 100)
	v.SetDefault("browser.humanoid.pre_click_max_ms", 300)
	v.SetDefault("browser.humanoid.key_hold_mean_ms", 55.0)
	v.SetDefault("browser.humanoid.key_pause_min_ms", 50)
	v.SetDefault("browser.humanoid.key_pause_max_ms", 150)
	v.SetDefault("browser.humanoid.action_pause_min_ms", 300)
	v.SetDefault("browser.humanoid.action_pause_max_ms", 800)
}

// Validate checks the ranges are well-formed.
func (h *HumanoidConfig) Validate() error {
	pairs := []struct {
		name     string
		min, max int
	}{
		{"click_hold", h.ClickHoldMinMs, h.ClickHoldMaxMs},
		{"pre_click", h.PreClickMinMs, h.PreClickMaxMs},
		{"key_pause", h.KeyPauseMinMs, h.KeyPauseMaxMs},
		{"action_pause", h.ActionPauseMinMs, h.ActionPauseMaxMs},
	}
	for _, p := range pairs {
		if p.min < 0 || p.max < p.min {
			return fmt.Errorf("%s range [%d, %d] is invalid", p.name, p.min, p.max)
		}
	}
	return nil
}
