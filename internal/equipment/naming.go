package equipment

import (
	"strings"

	"github.com/ironbanner/battlecore/pkg/core"
)

// levelBands are the upper bounds (exclusive) of each naming band; levels
// at or above the last bound use the final name.
var levelBands = []int{20, 40, 60, 80}

var slotNames = map[core.Slot][5]string{
	core.SlotWeapon:   {"Iron Sword", "Steel Sword", "Tempered Blade", "Dragonbone Glaive", "Celestial Halberd"},
	core.SlotHelmet:   {"Leather Cap", "Iron Helm", "Steel Visor", "Warlord Crown", "Celestial Helm"},
	core.SlotArmor:    {"Padded Vest", "Chain Mail", "Scale Armor", "Plate Harness", "Celestial Aegis"},
	core.SlotRing:     {"Copper Band", "Silver Ring", "Jade Ring", "Phoenix Seal", "Celestial Loop"},
	core.SlotShoes:    {"Straw Sandals", "Leather Boots", "Swift Greaves", "Windrunner Boots", "Celestial Striders"},
	core.SlotNecklace: {"Bone Charm", "Bronze Pendant", "Amber Amulet", "Tiger Talisman", "Celestial Torc"},
}

// BaseName returns the slot/level table name.
func BaseName(slot core.Slot, level int) string {
	names, ok := slotNames[slot]
	if !ok {
		return "Unknown Relic"
	}
	band := len(levelBands)
	for i, upper := range levelBands {
		if level < upper {
			band = i
			break
		}
	}
	return names[band]
}

// Name combines the quality prefix, set name and base name.
func Name(slot core.Slot, level int, quality core.Quality, setName string) string {
	parts := make([]string, 0, 3)
	if p := quality.Prefix(); p != "" {
		parts = append(parts, p)
	}
	if setName != "" {
		parts = append(parts, setName)
	}
	parts = append(parts, BaseName(slot, level))
	return strings.Join(parts, " ")
}
