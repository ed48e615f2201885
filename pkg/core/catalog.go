// pkg/core/catalog.go
package core

import (
	"fmt"
	"math"
	"strings"
)

// Quality is an equipment or combatant tier, 1 (lowest) to 6 (highest).
type Quality uint8

const (
	QualityCommon Quality = iota + 1
	QualityFine
	QualityRare
	QualityEpic
	QualityLegendary
	QualityMythic
)

// MaxBonusRolls caps the number of bonus attributes an item can carry.
const MaxBonusRolls = 4

type qualityInfo struct {
	name       string
	multiplier float64
	prefix     string
}

var qualities = map[Quality]qualityInfo{
	QualityCommon:    {name: "common", multiplier: 1.0},
	QualityFine:      {name: "fine", multiplier: 1.2},
	QualityRare:      {name: "rare", multiplier: 1.5},
	QualityEpic:      {name: "epic", multiplier: 1.8, prefix: "Exalted"},
	QualityLegendary: {name: "legendary", multiplier: 2.2, prefix: "Legendary"},
	QualityMythic:    {name: "mythic", multiplier: 3.0, prefix: "Mythic"},
}

// Valid reports whether q is within 1..6.
func (q Quality) Valid() bool {
	_, ok := qualities[q]
	return ok
}

func (q Quality) String() string {
	if info, ok := qualities[q]; ok {
		return info.name
	}
	return fmt.Sprintf("quality(%d)", uint8(q))
}

// Multiplier scales base-stat generation. Unknown tiers scale by 1.
func (q Quality) Multiplier() float64 {
	if info, ok := qualities[q]; ok {
		return info.multiplier
	}
	return 1.0
}

// BonusRolls is the number of bonus attributes rolled for this tier.
func (q Quality) BonusRolls() int {
	if !q.Valid() {
		return 0
	}
	return min(int(q), MaxBonusRolls)
}

// Prefix is the name prefix for tiers 4 and up, empty otherwise.
func (q Quality) Prefix() string {
	return qualities[q].prefix
}

// Slot is an equipment slot.
type Slot uint8

const (
	// SlotAny asks the generator to pick a slot uniformly at random.
	SlotAny Slot = iota
	SlotWeapon
	SlotHelmet
	SlotArmor
	SlotRing
	SlotShoes
	SlotNecklace
)

// Slots lists every concrete slot in id order.
var Slots = [6]Slot{SlotWeapon, SlotHelmet, SlotArmor, SlotRing, SlotShoes, SlotNecklace}

var slotNames = map[Slot]string{
	SlotAny:      "any",
	SlotWeapon:   "weapon",
	SlotHelmet:   "helmet",
	SlotArmor:    "armor",
	SlotRing:     "ring",
	SlotShoes:    "shoes",
	SlotNecklace: "necklace",
}

// Valid reports whether s is a concrete slot.
func (s Slot) Valid() bool {
	return s >= SlotWeapon && s <= SlotNecklace
}

func (s Slot) String() string {
	if n, ok := slotNames[s]; ok {
		return n
	}
	return fmt.Sprintf("slot(%d)", uint8(s))
}

// TroopCategory classifies the soldiers a combatant leads.
type TroopCategory uint8

const (
	TroopInfantry TroopCategory = iota + 1
	TroopCavalry
	TroopArcher
)

// TroopMultipliers scale attack, defense and dodge.
type TroopMultipliers struct {
	Attack  float64
	Defense float64
	Dodge   float64
}

var troops = map[TroopCategory]struct {
	name string
	mult TroopMultipliers
}{
	TroopInfantry: {"infantry", TroopMultipliers{Attack: 1.0, Defense: 1.2, Dodge: 0.9}},
	TroopCavalry:  {"cavalry", TroopMultipliers{Attack: 1.2, Defense: 0.9, Dodge: 1.1}},
	TroopArcher:   {"archer", TroopMultipliers{Attack: 1.1, Defense: 0.8, Dodge: 1.2}},
}

// Valid reports whether t is a known category.
func (t TroopCategory) Valid() bool {
	_, ok := troops[t]
	return ok
}

func (t TroopCategory) String() string {
	if info, ok := troops[t]; ok {
		return info.name
	}
	return fmt.Sprintf("troop(%d)", uint8(t))
}

// MarshalText encodes the category by name.
func (t TroopCategory) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", t)
	}
	return []byte(t.String()), nil
}

// UnmarshalText accepts a category name, case-insensitively.
func (t *TroopCategory) UnmarshalText(b []byte) error {
	for k, info := range troops {
		if strings.EqualFold(info.name, string(b)) {
			*t = k
			return nil
		}
	}
	return &ValidationError{Field: "troop", Reason: fmt.Sprintf("unknown troop category %q", b)}
}

// Multipliers returns the category's stat multipliers. Unknown categories are neutral.
func (t TroopCategory) Multipliers() TroopMultipliers {
	if info, ok := troops[t]; ok {
		return info.mult
	}
	return TroopMultipliers{Attack: 1, Defense: 1, Dodge: 1}
}

// Scale multiplies v by mult and floors the result. Multipliers are
// resolved to hundredths first so 1.2 scales exactly.
func Scale(v int, mult float64) int {
	return v * int(math.Round(mult*100)) / 100
}

// Source is where a generated piece of equipment comes from.
type Source string

const (
	SourceCraft       Source = "craft"
	SourceDungeon     Source = "dungeon"
	SourceSecretRealm Source = "secretRealm"
	SourceRaid        Source = "raid"
)

// Sources lists every known source.
var Sources = []Source{SourceCraft, SourceDungeon, SourceSecretRealm, SourceRaid}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceCraft, SourceDungeon, SourceSecretRealm, SourceRaid:
		return true
	}
	return false
}
