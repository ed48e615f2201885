// pkg/core/npc.go
package core

import "fmt"

// NPCUnit is one defender in an NPC lineup.
type NPCUnit struct {
	Slot     int           `json:"slot" mapstructure:"slot"`
	Name     string        `json:"name" mapstructure:"name"`
	Stats    Stats         `json:"stats" mapstructure:"stats"`
	Troop    TroopCategory `json:"troop" mapstructure:"troop"`
	Soldiers int           `json:"soldiers" mapstructure:"soldiers"`
	Quality  Quality       `json:"quality" mapstructure:"quality"`
}

// NPCTemplate is a configured encounter: a defender lineup plus its rewards.
type NPCTemplate struct {
	ID         string    `json:"id" mapstructure:"id"`
	Name       string    `json:"name" mapstructure:"name"`
	Level      int       `json:"level" mapstructure:"level"`
	Experience int       `json:"experience" mapstructure:"experience"`
	DropSource Source    `json:"dropSource" mapstructure:"dropSource"`
	DropChance float64   `json:"dropChance" mapstructure:"dropChance"`
	Units      []NPCUnit `json:"units" mapstructure:"units"`
}

// Lineup builds fresh defender combatants from the template.
// Unit IDs are "<template>/<slot>".
func (t NPCTemplate) Lineup() ([6]*Combatant, error) {
	var out [6]*Combatant
	for _, u := range t.Units {
		if u.Slot < 0 || u.Slot >= len(out) {
			return out, &ValidationError{Field: "slot", Reason: fmt.Sprintf("npc %s unit slot %d out of range", t.ID, u.Slot)}
		}
		if out[u.Slot] != nil {
			return out, &ValidationError{Field: "slot", Reason: fmt.Sprintf("npc %s has two units in slot %d", t.ID, u.Slot)}
		}
		q := u.Quality
		if !q.Valid() {
			q = QualityCommon
		}
		out[u.Slot] = &Combatant{
			ID:       fmt.Sprintf("%s/%d", t.ID, u.Slot),
			Name:     u.Name,
			Base:     u.Stats,
			Troop:    u.Troop,
			Soldiers: u.Soldiers,
			Quality:  q,
			Progress: ProgressionState{Level: max(t.Level, 1)},
		}
	}
	return out, nil
}
