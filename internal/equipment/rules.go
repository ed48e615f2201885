package equipment

import (
	"fmt"

	"github.com/ironbanner/battlecore/pkg/core"
)

// SourceRule is the quality table and set policy for one source.
// Weights[i] is the weight of tier MinTier+i.
type SourceRule struct {
	MinTier     core.Quality `json:"minTier" mapstructure:"minTier"`
	MaxTier     core.Quality `json:"maxTier" mapstructure:"maxTier"`
	Weights     []int        `json:"weights" mapstructure:"weights"`
	SetChance   float64      `json:"setChance" mapstructure:"setChance"`
	RequireSlot bool         `json:"requireSlot" mapstructure:"requireSlot"`
}

// DefaultRules returns the built-in source tables.
func DefaultRules() map[core.Source]SourceRule {
	return map[core.Source]SourceRule{
		core.SourceCraft: {
			MinTier: core.QualityCommon, MaxTier: core.QualityFine,
			Weights:     []int{70, 30},
			RequireSlot: true,
		},
		core.SourceDungeon: {
			MinTier: core.QualityRare, MaxTier: core.QualityMythic,
			Weights:   []int{40, 30, 20, 10},
			SetChance: 0.2,
		},
		core.SourceSecretRealm: {
			MinTier: core.QualityEpic, MaxTier: core.QualityMythic,
			Weights:   []int{50, 35, 15},
			SetChance: 1,
		},
		core.SourceRaid: {
			MinTier: core.QualityFine, MaxTier: core.QualityLegendary,
			Weights:   []int{35, 35, 20, 10},
			SetChance: 0.1,
		},
	}
}

// Validate checks the tier band against the weight table.
func (r SourceRule) Validate() error {
	if !r.MinTier.Valid() || !r.MaxTier.Valid() || r.MinTier > r.MaxTier {
		return &core.ValidationError{Field: "tier", Reason: fmt.Sprintf("invalid band %d..%d", r.MinTier, r.MaxTier)}
	}
	if want := int(r.MaxTier-r.MinTier) + 1; len(r.Weights) != want {
		return &core.ValidationError{Field: "weights", Reason: fmt.Sprintf("got %d weights for %d tiers", len(r.Weights), want)}
	}
	total := 0
	for _, w := range r.Weights {
		if w < 0 {
			return &core.ValidationError{Field: "weights", Reason: "negative weight"}
		}
		total += w
	}
	if total == 0 {
		return &core.ValidationError{Field: "weights", Reason: "all weights are zero"}
	}
	if r.SetChance < 0 || r.SetChance > 1 {
		return &core.ValidationError{Field: "setChance", Reason: fmt.Sprintf("%v outside [0,1]", r.SetChance)}
	}
	return nil
}

// Probabilities returns the expected share of each tier in the band.
func (r SourceRule) Probabilities() map[core.Quality]float64 {
	total := r.totalWeight()
	out := make(map[core.Quality]float64, len(r.Weights))
	for i, w := range r.Weights {
		out[r.MinTier+core.Quality(i)] = float64(w) / float64(total)
	}
	return out
}

func (r SourceRule) totalWeight() int {
	total := 0
	for _, w := range r.Weights {
		total += w
	}
	return total
}
