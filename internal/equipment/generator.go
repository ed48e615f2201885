// Package equipment generates equipment for drops and crafts and manages
// equipping, unequipping and enhancing it.
package equipment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ironbanner/battlecore/internal/random"
	"github.com/ironbanner/battlecore/pkg/core"
)

// DefaultMaxLevel is the equipment level cap used when none is configured.
const DefaultMaxLevel = 100

// Config configures a Generator. Zero values select the defaults.
type Config struct {
	MaxLevel int
	Rules    map[core.Source]SourceRule
	Sets     core.SetCatalog
}

// Option customizes a Generator.
type Option func(*Generator)

// WithIDs replaces the uuid-based ID source.
func WithIDs(f func() string) Option {
	return func(g *Generator) { g.newID = f }
}

// WithClock replaces time.Now for CreatedAt stamps.
func WithClock(f func() time.Time) Option {
	return func(g *Generator) { g.now = f }
}

// Generator produces equipment from a random source. It holds no mutable
// state and may be shared between goroutines; the random source may not.
type Generator struct {
	maxLevel int
	rules    map[core.Source]SourceRule
	sets     []core.SetInfo
	newID    func() string
	now      func() time.Time
}

// NewGenerator validates cfg and builds a generator.
func NewGenerator(cfg Config, opts ...Option) (*Generator, error) {
	g := &Generator{
		maxLevel: cfg.MaxLevel,
		rules:    cfg.Rules,
		sets:     cfg.Sets.Sorted(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	if g.maxLevel == 0 {
		g.maxLevel = DefaultMaxLevel
	}
	if g.maxLevel < 1 {
		return nil, &core.ValidationError{Field: "maxLevel", Reason: fmt.Sprintf("%d must be positive", g.maxLevel)}
	}
	if len(g.rules) == 0 {
		g.rules = DefaultRules()
	}
	for src, r := range g.rules {
		if !src.Valid() {
			return nil, &core.ValidationError{Field: "source", Reason: fmt.Sprintf("unknown source %q", src)}
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("source %s: %w", src, err)
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Rule returns the rule configured for src.
func (g *Generator) Rule(src core.Source) (SourceRule, bool) {
	r, ok := g.rules[src]
	return r, ok
}

// MaxLevel is the highest level Generate accepts.
func (g *Generator) MaxLevel() int {
	return g.maxLevel
}

// Generate produces a new unowned item. SlotAny picks a slot uniformly unless
// the source requires an explicit one.
//
// Draws happen in a fixed order (slot, quality, bonus categories, bonus
// values, set) so a seeded source reproduces the same item.
func (g *Generator) Generate(slot core.Slot, level int, src core.Source, rng random.Source) (*core.Equipment, error) {
	rule, ok := g.rules[src]
	if !ok {
		return nil, &core.ValidationError{Field: "source", Reason: fmt.Sprintf("unknown source %q", src)}
	}
	if level < 1 || level > g.maxLevel {
		return nil, &core.ValidationError{Field: "level", Reason: fmt.Sprintf("%d outside [1,%d]", level, g.maxLevel)}
	}
	switch {
	case slot == core.SlotAny && rule.RequireSlot:
		return nil, &core.ValidationError{Field: "slot", Reason: fmt.Sprintf("source %s requires an explicit slot", src)}
	case slot == core.SlotAny:
		slot = core.Slots[rng.Intn(len(core.Slots))]
	case !slot.Valid():
		return nil, &core.ValidationError{Field: "slot", Reason: fmt.Sprintf("unknown slot %d", slot)}
	}

	q := RollQuality(rule, rng)
	item := &core.Equipment{
		ID:        g.newID(),
		Slot:      slot,
		Level:     level,
		Quality:   q,
		Source:    src,
		Base:      BaseAttributes(slot, level, q),
		Bonus:     RollBonus(level, q, rng),
		CreatedAt: g.now(),
	}

	setName := ""
	if set, ok := g.rollSet(rule, rng); ok {
		item.SetID = set.ID
		setName = set.Name
	}
	item.Name = Name(slot, level, q, setName)
	return item, nil
}

func (g *Generator) rollSet(rule SourceRule, rng random.Source) (core.SetInfo, bool) {
	if rule.SetChance <= 0 || len(g.sets) == 0 {
		return core.SetInfo{}, false
	}
	if rule.SetChance < 1 && rng.Float64() >= rule.SetChance {
		return core.SetInfo{}, false
	}
	return g.sets[rng.Intn(len(g.sets))], true
}

// RollQuality draws a tier from the rule's weight table.
func RollQuality(rule SourceRule, rng random.Source) core.Quality {
	n := rng.Intn(rule.totalWeight())
	for i, w := range rule.Weights {
		if n < w {
			return rule.MinTier + core.Quality(i)
		}
		n -= w
	}
	return rule.MaxTier
}

// BaseAttributes applies the per-slot formula with baseValue = level*5.
func BaseAttributes(slot core.Slot, level int, q core.Quality) core.Attributes {
	b := level * 5
	m := q.Multiplier()
	tier := int(q)

	switch slot {
	case core.SlotWeapon:
		return core.Attributes{
			core.StatAttack:   core.Scale(b*2, m),
			core.StatCritRate: tier * 2,
		}
	case core.SlotHelmet:
		return core.Attributes{
			core.StatDefense: core.Scale(b, m),
			core.StatCommand: core.Scale(b, m) / 2,
		}
	case core.SlotArmor:
		return core.Attributes{
			core.StatDefense: core.Scale(b*3, m) / 2,
			core.StatHP:      core.Scale(b*4, m),
			core.StatDodge:   tier,
		}
	case core.SlotRing:
		return core.Attributes{
			core.StatValor:   core.Scale(b, m),
			core.StatCommand: core.Scale(b, m) / 2,
		}
	case core.SlotShoes:
		return core.Attributes{
			core.StatMobility: core.Scale(b, m) / 2,
			core.StatDodge:    tier,
		}
	case core.SlotNecklace:
		return core.Attributes{
			core.StatCommand: core.Scale(b, m),
			core.StatValor:   core.Scale(b, m) / 2,
		}
	}
	return core.Attributes{}
}

// RollBonus picks min(tier,4) distinct power stats from a shuffle of all six
// and gives each a value in [baseBonus/2, baseBonus/2+baseBonus) where
// baseBonus = floor(level*multiplier).
func RollBonus(level int, q core.Quality, rng random.Source) core.Attributes {
	n := q.BonusRolls()
	out := make(core.Attributes, n)
	if n == 0 {
		return out
	}
	baseBonus := max(core.Scale(level, q.Multiplier()), 1)
	perm := rng.Perm(len(core.PowerStats))
	for _, idx := range perm[:n] {
		out[core.PowerStats[idx]] = baseBonus/2 + rng.Intn(baseBonus)
	}
	return out
}
