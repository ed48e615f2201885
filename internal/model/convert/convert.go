// Package convert provides functions to convert GORM models to core models
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/ironbanner/battlecore/internal/model"
	"github.com/ironbanner/battlecore/pkg/core"
)

// CombatantToCore converts a stored combatant. Equipped items are attached
// by the caller.
func CombatantToCore(c model.Combatant) *core.Combatant {
	return &core.Combatant{
		ID:        c.ID,
		AccountID: c.AccountID,
		Name:      c.Name,
		Base: core.Stats{
			Attack:   c.Attack,
			Defense:  c.Defense,
			Valor:    c.Valor,
			Command:  c.Command,
			Dodge:    c.Dodge,
			Mobility: c.Mobility,
		},
		Troop:      core.TroopCategory(c.Troop),
		Soldiers:   c.Soldiers,
		SoldierCap: c.SoldierCap,
		Quality:    core.Quality(c.Quality),
		Progress: core.ProgressionState{
			Level:         c.Level,
			Exp:           c.Exp,
			NextThreshold: c.Threshold,
			BonusPercent:  c.BonusPct,
		},
		Power: c.Power,
	}
}

// EquipmentToCore converts a stored item.
func EquipmentToCore(e model.Equipment) (*core.Equipment, error) {
	base, err := attributesToCore(e.Base)
	if err != nil {
		return nil, fmt.Errorf("equipment %s base: %w", e.ID, err)
	}
	bonus, err := attributesToCore(e.Bonus)
	if err != nil {
		return nil, fmt.Errorf("equipment %s bonus: %w", e.ID, err)
	}
	return &core.Equipment{
		ID:          e.ID,
		AccountID:   e.AccountID,
		Slot:        core.Slot(e.Slot),
		Level:       e.Level,
		Quality:     core.Quality(e.Quality),
		SetID:       e.SetID,
		Name:        e.Name,
		Source:      core.Source(e.Source),
		Base:        base,
		Bonus:       bonus,
		Enhancement: e.Enhancement,
		Equipped:    e.Equipped,
		OwnerID:     e.OwnerID,
		CreatedAt:   e.CreatedAt,
	}, nil
}

// ProgressToCore converts a stored account progression.
func ProgressToCore(p model.AccountProgress) core.AccountProgress {
	return core.AccountProgress{
		AccountID: p.AccountID,
		State: core.ProgressionState{
			Level:         p.Level,
			Exp:           p.Exp,
			NextThreshold: p.Threshold,
			BonusPercent:  p.BonusPct,
		},
	}
}

// BattleRecordToCore converts a stored engagement summary.
func BattleRecordToCore(r model.BattleRecord) (*core.BattleRecord, error) {
	out := &core.BattleRecord{
		ID:             r.ID,
		AccountID:      r.AccountID,
		Kind:           core.BattleKind(r.Kind),
		Opponent:       r.Opponent,
		Victory:        r.Victory,
		AttackerLosses: r.AttackerLosses,
		DefenderLosses: r.DefenderLosses,
		ExpGranted:     r.ExpGranted,
		FoughtAt:       r.FoughtAt,
	}
	docs := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"matchups", r.Matchups, &out.Matchups},
		{"experience", r.Experience, &out.Experience},
		{"lootIds", r.LootIDs, &out.LootIDs},
		{"log", r.Log, &out.Log},
	}
	for _, d := range docs {
		if len(d.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(d.raw, d.dst); err != nil {
			return nil, fmt.Errorf("battle %s %s: %w", r.ID, d.name, err)
		}
	}
	return out, nil
}

// attributesToCore decodes a JSON object keyed by stat name.
func attributesToCore(raw []byte) (core.Attributes, error) {
	out := core.Attributes{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
