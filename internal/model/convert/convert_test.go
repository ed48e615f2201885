package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironbanner/battlecore/internal/model"
	"github.com/ironbanner/battlecore/pkg/core"
)

func TestCombatant_RoundTrip(t *testing.T) {
	c := &core.Combatant{
		ID:         "hero",
		AccountID:  "acc",
		Name:       "Hero",
		Base:       core.Stats{Attack: 1, Defense: 2, Valor: 3, Command: 4, Dodge: 5, Mobility: 6},
		Troop:      core.TroopArcher,
		Soldiers:   120,
		SoldierCap: 500,
		Quality:    core.QualityRare,
		Progress:   core.ProgressionState{Level: 4, Exp: 12, NextThreshold: 172, BonusPercent: 10},
		Power:      99,
	}

	got := CombatantToCore(CombatantToGorm(c))
	assert.Equal(t, c, got)
}

func TestEquipment_AttributesStoredByName(t *testing.T) {
	e := &core.Equipment{
		ID:          "eq",
		AccountID:   "acc",
		Slot:        core.SlotRing,
		Level:       30,
		Quality:     core.QualityRare,
		Source:      core.SourceDungeon,
		Base:        core.Attributes{core.StatCritRate: 5, core.StatAttack: 60},
		Bonus:       core.Attributes{core.StatHP: 12},
		Enhancement: 3,
		CreatedAt:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	m, err := EquipmentToGorm(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"attack":60,"critRate":5}`, string(m.Base))
	assert.JSONEq(t, `{"hp":12}`, string(m.Bonus))

	back, err := EquipmentToCore(m)
	require.NoError(t, err)
	assert.Equal(t, e, back)
}

func TestEquipmentToCore_EmptyAndBadAttributes(t *testing.T) {
	got, err := EquipmentToCore(model.Equipment{ID: "x"})
	require.NoError(t, err)
	assert.Empty(t, got.Base)

	_, err = EquipmentToCore(model.Equipment{ID: "x", Base: []byte(`{"luck":1}`)})
	assert.Error(t, err)
}

func TestProgress_RoundTrip(t *testing.T) {
	p := core.AccountProgress{AccountID: "acc", State: core.ProgressionState{Level: 2, Exp: 80, NextThreshold: 120, BonusPercent: 20}}
	assert.Equal(t, p, ProgressToCore(ProgressToGorm(p)))
}

func TestBattleRecord_JSONDocuments(t *testing.T) {
	r := &core.BattleRecord{
		ID:         "b1",
		AccountID:  "acc",
		Kind:       core.BattlePvE,
		Opponent:   "bandits",
		Victory:    true,
		Matchups:   []core.Matchup{{Wave: 1, AttackerID: "hero", DefenderID: "bandits/0", Victory: true}},
		Experience: []core.ExperienceDelta{{CombatantID: "hero", Granted: 120, LevelsGained: 1, Level: 2}},
		LootIDs:    []string{"eq-1"},
		Log:        []string{"victory after 1 waves"},
		ExpGranted: 120,
		FoughtAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	m, err := BattleRecordToGorm(r)
	require.NoError(t, err)
	back, err := BattleRecordToCore(m)
	require.NoError(t, err)
	assert.Equal(t, r, back)
}
