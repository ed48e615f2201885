// Package attribute aggregates a combatant's effective stats from its base
// values, equipped items, enhancement levels and active set bonuses.
package attribute

import (
	"github.com/ironbanner/battlecore/pkg/core"
)

const (
	// MaxDodge is the upper clamp applied to dodge after summation.
	MaxDodge = 100
	// SetThreshold3 and SetThreshold6 are the equipped-piece counts that
	// activate a set's bonus bundles.
	SetThreshold3 = 3
	SetThreshold6 = 6
)

// enhancePercent is the cumulative bonus, in percent of the base attribute,
// granted at each enhancement level.
var enhancePercent = [core.MaxEnhancement + 1]int{0, 5, 10, 16, 22, 30, 38, 48, 58, 70, 85}

// enhanceable lists the base attributes that grow with enhancement.
var enhanceable = []core.Stat{core.StatAttack, core.StatDefense, core.StatValor, core.StatCommand, core.StatHP}

// mobilitySteps maps enhancement levels to the mobility bonus reached there.
// Only the highest step reached applies.
var mobilitySteps = []struct {
	level int
	bonus int
}{
	{10, 8},
	{8, 4},
	{6, 2},
	{4, 1},
}

// SetBonus is an active set bundle.
type SetBonus struct {
	SetID  string          `json:"setId"`
	Pieces int             `json:"pieces"`
	Bonus  core.Attributes `json:"bonus"`
}

// Aggregate computes effective stats for c. A nil combatant yields zero stats.
func Aggregate(c *core.Combatant, sets core.SetCatalog) core.EffectiveStats {
	var out core.EffectiveStats
	if c == nil {
		return out
	}

	items := c.Items()
	extra := make(core.Attributes)
	for _, it := range items {
		addAll(extra, it.Base)
		addAll(extra, it.Bonus)
		addAll(extra, EnhancementBonus(it))
	}
	for _, sb := range ActiveSetBonuses(items, sets) {
		addAll(extra, sb.Bonus)
	}

	stats := c.Base
	for _, s := range core.PowerStats {
		stats.Add(s, extra[s])
	}

	out.Stats = clamp(stats)
	out.HP = max(extra[core.StatHP], 0)
	out.CritRate = max(extra[core.StatCritRate], 0)
	out.Power = Power(out.Stats)
	return out
}

// Power is round(atk*1.2 + def*1.2 + valor*1.5 + command*1.5 + dodge*2 + mobility).
// It is computed in tenths so the weights stay exact.
func Power(s core.Stats) int {
	tenths := s.Attack*12 + s.Defense*12 + s.Valor*15 + s.Command*15 + s.Dodge*20 + s.Mobility*10
	if tenths <= 0 {
		return 0
	}
	return (tenths + 5) / 10
}

// EnhancementBonus returns the extra attributes an item gains from its
// enhancement level. Nil items and level 0 contribute nothing.
func EnhancementBonus(it *core.Equipment) core.Attributes {
	out := make(core.Attributes)
	if it == nil {
		return out
	}
	lvl := min(max(it.Enhancement, 0), core.MaxEnhancement)
	if lvl == 0 {
		return out
	}
	pct := enhancePercent[lvl]
	for _, s := range enhanceable {
		if v := it.Base.Get(s); v > 0 {
			if b := v * pct / 100; b > 0 {
				out[s] = b
			}
		}
	}
	if mob := MobilityStep(lvl); mob > 0 {
		out[core.StatMobility] += mob
	}
	return out
}

// MobilityStep returns the mobility bonus for an enhancement level.
func MobilityStep(level int) int {
	for _, step := range mobilitySteps {
		if level >= step.level {
			return step.bonus
		}
	}
	return 0
}

// ActiveSetBonuses counts equipped members per set and returns the bundle
// each set grants, ordered by set ID. Six pieces grant Bonus6 in place of Bonus3.
func ActiveSetBonuses(items []*core.Equipment, sets core.SetCatalog) []SetBonus {
	counts := make(map[string]int)
	for _, it := range items {
		if it != nil && it.SetID != "" {
			counts[it.SetID]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	var out []SetBonus
	for _, set := range sets.Sorted() {
		n := counts[set.ID]
		switch {
		case n >= SetThreshold6 && len(set.Bonus6) > 0:
			out = append(out, SetBonus{SetID: set.ID, Pieces: n, Bonus: set.Bonus6})
		case n >= SetThreshold3:
			out = append(out, SetBonus{SetID: set.ID, Pieces: n, Bonus: set.Bonus3})
		}
	}
	return out
}

// WithTroop applies the troop category multipliers to attack, defense and
// dodge and recomputes power.
func WithTroop(s core.EffectiveStats, troop core.TroopCategory) core.EffectiveStats {
	m := troop.Multipliers()
	s.Attack = core.Scale(s.Attack, m.Attack)
	s.Defense = core.Scale(s.Defense, m.Defense)
	s.Dodge = min(core.Scale(s.Dodge, m.Dodge), MaxDodge)
	s.Power = Power(s.Stats)
	return s
}

// Refresh recomputes c's power from its current stat sources and stores it.
func Refresh(c *core.Combatant, sets core.SetCatalog) core.EffectiveStats {
	eff := Aggregate(c, sets)
	if c != nil {
		c.Power = eff.Power
	}
	return eff
}

func addAll(dst, src core.Attributes) {
	for k, v := range src {
		dst[k] += v
	}
}

func clamp(s core.Stats) core.Stats {
	s.Attack = max(s.Attack, 0)
	s.Defense = max(s.Defense, 0)
	s.Valor = max(s.Valor, 0)
	s.Command = max(s.Command, 0)
	s.Dodge = min(max(s.Dodge, 0), MaxDodge)
	s.Mobility = max(s.Mobility, 0)
	return s
}
