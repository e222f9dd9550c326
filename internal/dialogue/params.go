package dialogue

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nadzzz/ttsgraph/internal/apperr"
)

// ModelNone disables the feature.
const ModelNone = "None"

// Models lists the accepted model choices.
var Models = []string{ModelNone, "0.6B", "1.7B"}

// Attention modes accepted by the synthesis nodes.
var Attention = []string{"auto", "sage_attn", "flash_attn", "sdpa", "eager"}

// Params bundles the user-tunable synthesis settings shared by every node
// the builder emits.
type Params struct {
	Model             string  `mapstructure:"model" json:"model"`
	Seed              int64   `mapstructure:"seed" json:"seed"`
	MaxNewTokens      int     `mapstructure:"max_new_tokens" json:"max_new_tokens"`
	TopP              float64 `mapstructure:"top_p" json:"top_p"`
	TopK              int     `mapstructure:"top_k" json:"top_k"`
	Temperature       float64 `mapstructure:"temperature" json:"temperature"`
	RepetitionPenalty float64 `mapstructure:"repetition_penalty" json:"repetition_penalty"`
	Attention         string  `mapstructure:"attention" json:"attention"`
	UnloadModel       bool    `mapstructure:"unload_model_after_generate" json:"unload_model_after_generate"`
}

// DefaultParams returns the documented defaults. The model is None, so the
// defaults alone never enable the feature.
func DefaultParams() Params {
	return Params{
		Model:             ModelNone,
		Seed:              -1,
		MaxNewTokens:      2048,
		TopP:              0.8,
		TopK:              20,
		Temperature:       1.0,
		RepetitionPenalty: 1.05,
		Attention:         "flash_attn",
		UnloadModel:       false,
	}
}

// Enabled reports whether a model has been chosen.
func (p Params) Enabled() bool {
	m := strings.TrimSpace(p.Model)
	return m != "" && !strings.EqualFold(m, ModelNone)
}

// Validate checks every setting against its documented range.
func (p Params) Validate() error {
	const op = "invalid synthesis parameters"

	if !slices.Contains(Models, p.Model) {
		return apperr.Newf(apperr.KindConfig, op, "model must be one of %s, got %q", strings.Join(Models, ", "), p.Model)
	}
	if !slices.Contains(Attention, p.Attention) {
		return apperr.Newf(apperr.KindConfig, op, "attention must be one of %s, got %q", strings.Join(Attention, ", "), p.Attention)
	}

	checks := []struct {
		name     string
		value    float64
		min, max float64
	}{
		{"max_new_tokens", float64(p.MaxNewTokens), 1, 8192},
		{"top_p", p.TopP, 0, 1},
		{"top_k", float64(p.TopK), 1, 100},
		{"temperature", p.Temperature, 0, 2},
		{"repetition_penalty", p.RepetitionPenalty, 0.5, 2},
	}
	for _, c := range checks {
		if c.value < c.min || c.value > c.max {
			return apperr.Newf(apperr.KindConfig, op, "%s must be between %s and %s, got %s",
				c.name, formatNumber(c.min), formatNumber(c.max), formatNumber(c.value))
		}
	}
	return nil
}

func formatNumber(f float64) string {
	return fmt.Sprintf("%g", f)
}
