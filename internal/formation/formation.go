// Package formation orders a lineup of up to six combatants into a turn sequence.
package formation

import (
	"fmt"
	"sort"

	"github.com/ironbanner/battlecore/internal/attribute"
	"github.com/ironbanner/battlecore/pkg/core"
)

// Size is the number of formation slots.
const Size = 6

// Lineup is a formation: slot index to combatant, nil for empty slots.
type Lineup = [Size]*core.Combatant

// Placement is one occupied slot in turn order.
type Placement struct {
	Slot      int                 `json:"slot"`
	Combatant *core.Combatant     `json:"-"`
	Stats     core.EffectiveStats `json:"stats"`
}

// Order returns the occupied slots sorted by effective mobility, highest
// first, with ties going to the lower slot index.
func Order(slots Lineup, sets core.SetCatalog) []Placement {
	out := make([]Placement, 0, Size)
	for i, c := range slots {
		if c == nil {
			continue
		}
		out = append(out, Placement{Slot: i, Combatant: c, Stats: attribute.Aggregate(c, sets)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Stats.Mobility != out[j].Stats.Mobility {
			return out[i].Stats.Mobility > out[j].Stats.Mobility
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

// Validate checks a slot index.
func Validate(slot int) error {
	if slot < 0 || slot >= Size {
		return &core.ValidationError{Field: "slot", Reason: fmt.Sprintf("formation slot %d outside [0,%d]", slot, Size-1)}
	}
	return nil
}

// Assign places combatants by slot index, rejecting out-of-range or
// doubly-occupied slots and combatants placed twice.
func Assign(placed map[int]*core.Combatant) (Lineup, error) {
	var l Lineup
	seen := make(map[string]int)
	for slot, c := range placed {
		if err := Validate(slot); err != nil {
			return Lineup{}, err
		}
		if c == nil {
			continue
		}
		if prev, dup := seen[c.ID]; dup && c.ID != "" {
			return Lineup{}, &core.ValidationError{Field: "formation", Reason: fmt.Sprintf("combatant %s placed in slots %d and %d", c.ID, min(prev, slot), max(prev, slot))}
		}
		seen[c.ID] = slot
		l[slot] = c
	}
	return l, nil
}
