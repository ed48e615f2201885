package convert

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/ironbanner/battlecore/internal/model"
	"github.com/ironbanner/battlecore/pkg/core"
)

// CombatantToGorm converts a combatant. Equipped items are stored separately.
func CombatantToGorm(c *core.Combatant) model.Combatant {
	return model.Combatant{
		ID:         c.ID,
		AccountID:  c.AccountID,
		Name:       c.Name,
		Attack:     c.Base.Attack,
		Defense:    c.Base.Defense,
		Valor:      c.Base.Valor,
		Command:    c.Base.Command,
		Dodge:      c.Base.Dodge,
		Mobility:   c.Base.Mobility,
		Troop:      uint8(c.Troop),
		Soldiers:   c.Soldiers,
		SoldierCap: c.SoldierCap,
		Quality:    uint8(c.Quality),
		Level:      c.Progress.Level,
		Exp:        c.Progress.Exp,
		Threshold:  c.Progress.NextThreshold,
		BonusPct:   c.Progress.BonusPercent,
		Power:      c.Power,
	}
}

// EquipmentToGorm converts an item.
func EquipmentToGorm(e *core.Equipment) (model.Equipment, error) {
	base, err := toJSON(e.Base)
	if err != nil {
		return model.Equipment{}, fmt.Errorf("equipment %s base: %w", e.ID, err)
	}
	bonus, err := toJSON(e.Bonus)
	if err != nil {
		return model.Equipment{}, fmt.Errorf("equipment %s bonus: %w", e.ID, err)
	}
	return model.Equipment{
		ID:          e.ID,
		AccountID:   e.AccountID,
		Slot:        uint8(e.Slot),
		Level:       e.Level,
		Quality:     uint8(e.Quality),
		SetID:       e.SetID,
		Name:        e.Name,
		Source:      string(e.Source),
		Base:        base,
		Bonus:       bonus,
		Enhancement: e.Enhancement,
		Equipped:    e.Equipped,
		OwnerID:     e.OwnerID,
		CreatedAt:   e.CreatedAt,
	}, nil
}

// ProgressToGorm converts an account progression.
func ProgressToGorm(p core.AccountProgress) model.AccountProgress {
	return model.AccountProgress{
		AccountID: p.AccountID,
		Level:     p.State.Level,
		Exp:       p.State.Exp,
		Threshold: p.State.NextThreshold,
		BonusPct:  p.State.BonusPercent,
	}
}

// BattleRecordToGorm converts an engagement summary.
func BattleRecordToGorm(r *core.BattleRecord) (model.BattleRecord, error) {
	out := model.BattleRecord{
		ID:             r.ID,
		AccountID:      r.AccountID,
		Kind:           string(r.Kind),
		Opponent:       r.Opponent,
		Victory:        r.Victory,
		AttackerLosses: r.AttackerLosses,
		DefenderLosses: r.DefenderLosses,
		ExpGranted:     r.ExpGranted,
		FoughtAt:       r.FoughtAt,
	}
	var err error
	if out.Matchups, err = toJSON(r.Matchups); err != nil {
		return out, fmt.Errorf("battle %s matchups: %w", r.ID, err)
	}
	if out.Experience, err = toJSON(r.Experience); err != nil {
		return out, fmt.Errorf("battle %s experience: %w", r.ID, err)
	}
	if out.LootIDs, err = toJSON(r.LootIDs); err != nil {
		return out, fmt.Errorf("battle %s loot: %w", r.ID, err)
	}
	if out.Log, err = toJSON(r.Log); err != nil {
		return out, fmt.Errorf("battle %s log: %w", r.ID, err)
	}
	return out, nil
}

func toJSON(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
