package gormstorage

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironbanner/battlecore/internal/database"
	"github.com/ironbanner/battlecore/internal/storage"
	"github.com/ironbanner/battlecore/pkg/core"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

// newTestBackend creates a Backend on a private in-memory SQLite database.
// The writer interval is long so tests control flushing.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.OpenSQLite("")
	require.NoError(t, err)

	b := New(Dependencies{DB: db, Logger: zerolog.Nop(), FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func sword(owner string) *core.Equipment {
	return &core.Equipment{
		ID:          "sword",
		AccountID:   "acc",
		Slot:        core.SlotWeapon,
		Level:       20,
		Quality:     core.QualityEpic,
		Name:        "Exalted Longsword",
		Source:      core.SourceDungeon,
		Base:        core.Attributes{core.StatAttack: 180},
		Bonus:       core.Attributes{core.StatValor: 20, core.StatHP: 7},
		Enhancement: 4,
		Equipped:    owner != "",
		OwnerID:     owner,
		CreatedAt:   time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestInit_RequiresDB(t *testing.T) {
	b := New(Dependencies{Logger: zerolog.Nop()})
	assert.Error(t, b.Init())
}

func TestCombatant_RoundTripWithEquipment(t *testing.T) {
	b := newTestBackend(t)

	c := &core.Combatant{
		ID:        "hero",
		AccountID: "acc",
		Name:      "Hero",
		Base:      core.Stats{Attack: 100, Mobility: 12},
		Troop:     core.TroopCavalry,
		Soldiers:  300,
		Quality:   core.QualityRare,
		Progress:  core.ProgressionState{Level: 2, Exp: 80, NextThreshold: 120},
		Equipped:  map[core.Slot]*core.Equipment{core.SlotWeapon: sword("hero")},
		Power:     321,
	}
	require.NoError(t, b.SaveCombatant(c))

	got, err := b.GetCombatant("hero")
	require.NoError(t, err)
	assert.Equal(t, c.Base, got.Base)
	assert.Equal(t, c.Troop, got.Troop)
	assert.Equal(t, c.Progress, got.Progress)
	assert.Equal(t, 321, got.Power)
	require.Contains(t, got.Equipped, core.SlotWeapon)
	item := got.Equipped[core.SlotWeapon]
	assert.Equal(t, 180, item.Base.Get(core.StatAttack))
	assert.Equal(t, 7, item.Bonus.Get(core.StatHP))
	assert.Equal(t, 4, item.Enhancement)
}

func TestSaveCombatant_Updates(t *testing.T) {
	b := newTestBackend(t)
	c := &core.Combatant{ID: "hero", AccountID: "acc", Soldiers: 300}
	require.NoError(t, b.SaveCombatant(c))

	c.Soldiers = 120
	c.Progress.Level = 3
	require.NoError(t, b.SaveCombatant(c))

	got, err := b.GetCombatant("hero")
	require.NoError(t, err)
	assert.Equal(t, 120, got.Soldiers)
	assert.Equal(t, 3, got.Level())
}

func TestUnequippedItemLeavesCombatant(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.SaveCombatant(&core.Combatant{
		ID:       "hero",
		Equipped: map[core.Slot]*core.Equipment{core.SlotWeapon: sword("hero")},
	}))

	require.NoError(t, b.SaveEquipment(sword("")))

	got, err := b.GetCombatant("hero")
	require.NoError(t, err)
	assert.Empty(t, got.Equipped)

	inv, err := b.ListInventory("acc")
	require.NoError(t, err)
	require.Len(t, inv, 1)
	assert.False(t, inv[0].Equipped)
}

func TestNotFound(t *testing.T) {
	b := newTestBackend(t)

	_, err := b.GetCombatant("nobody")
	assert.True(t, core.IsNotFound(err))
	_, err = b.GetEquipment("nothing")
	assert.True(t, core.IsNotFound(err))
	_, err = b.GetProgression("acc")
	assert.True(t, core.IsNotFound(err))
}

func TestProgression_Upsert(t *testing.T) {
	b := newTestBackend(t)
	p := core.AccountProgress{AccountID: "acc", State: core.ProgressionState{Level: 1, NextThreshold: 100}}
	require.NoError(t, b.SaveProgression(p))

	p.State = core.ProgressionState{Level: 2, Exp: 80, NextThreshold: 120, BonusPercent: 20}
	require.NoError(t, b.SaveProgression(p))

	got, err := b.GetProgression("acc")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestRecordBattle_QueuedThenFlushed(t *testing.T) {
	b := newTestBackend(t)
	r := &core.BattleRecord{
		ID:        "b1",
		AccountID: "acc",
		Kind:      core.BattlePvE,
		Victory:   true,
		Matchups:  []core.Matchup{{Wave: 1, AttackerID: "hero", Victory: true}},
		Log:       []string{"victory after 1 waves"},
		FoughtAt:  time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, b.RecordBattle(r))
	assert.Equal(t, 1, b.PendingBattles())

	ok, err := b.HasBattle("b1")
	require.NoError(t, err)
	assert.True(t, ok, "queued battles count as recorded")
	assert.True(t, errors.Is(b.RecordBattle(r), core.ErrConflict))

	require.NoError(t, b.Flush())
	assert.Equal(t, 0, b.PendingBattles())

	ok, err = b.HasBattle("b1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, errors.Is(b.RecordBattle(r), core.ErrConflict), "written battles still conflict")

	stored, err := b.Battles("acc")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, r.Matchups, stored[0].Matchups)
	assert.Equal(t, r.Log, stored[0].Log)
}

func TestApplyEngagement_SavesStateAndQueuesRecord(t *testing.T) {
	b := newTestBackend(t)
	hero := &core.Combatant{
		ID:        "hero",
		AccountID: "acc",
		Soldiers:  280,
		Progress:  core.ProgressionState{Level: 2, Exp: 10, NextThreshold: 120},
		Equipped:  map[core.Slot]*core.Equipment{core.SlotWeapon: sword("hero")},
	}
	loot := sword("")
	loot.ID = "loot"
	e := &storage.Engagement{
		Combatants: []*core.Combatant{hero},
		Progress:   core.AccountProgress{AccountID: "acc", State: core.ProgressionState{Level: 2, NextThreshold: 120}},
		Loot:       []*core.Equipment{loot},
		Record:     &core.BattleRecord{ID: "b1", AccountID: "acc", Victory: true, FoughtAt: time.Now().UTC()},
	}
	require.NoError(t, b.ApplyEngagement(e))
	assert.Equal(t, 1, b.PendingBattles())

	got, err := b.GetCombatant("hero")
	require.NoError(t, err)
	assert.Equal(t, 280, got.Soldiers)
	assert.Contains(t, got.Equipped, core.SlotWeapon)
	_, err = b.GetEquipment("loot")
	require.NoError(t, err)
	p, err := b.GetProgression("acc")
	require.NoError(t, err)
	assert.Equal(t, 2, p.State.Level)
}

func TestApplyEngagement_ReplayWritesNothing(t *testing.T) {
	b := newTestBackend(t)
	first := &storage.Engagement{
		Combatants: []*core.Combatant{{ID: "hero", AccountID: "acc", Soldiers: 280}},
		Progress:   core.AccountProgress{AccountID: "acc", State: core.ProgressionState{Level: 2}},
		Record:     &core.BattleRecord{ID: "b1", AccountID: "acc"},
	}
	require.NoError(t, b.ApplyEngagement(first))

	replay := &storage.Engagement{
		Combatants: []*core.Combatant{{ID: "hero", AccountID: "acc", Soldiers: 5}},
		Progress:   core.AccountProgress{AccountID: "acc", State: core.ProgressionState{Level: 7}},
		Record:     &core.BattleRecord{ID: "b1", AccountID: "acc"},
	}
	assert.True(t, errors.Is(b.ApplyEngagement(replay), core.ErrConflict), "queued record")

	require.NoError(t, b.Flush())
	assert.True(t, errors.Is(b.ApplyEngagement(replay), core.ErrConflict), "written record")

	got, err := b.GetCombatant("hero")
	require.NoError(t, err)
	assert.Equal(t, 280, got.Soldiers)
	p, err := b.GetProgression("acc")
	require.NoError(t, err)
	assert.Equal(t, 2, p.State.Level)
}

func TestClose_FlushesQueue(t *testing.T) {
	db, err := database.OpenSQLite("")
	require.NoError(t, err)
	b := New(Dependencies{DB: db, Logger: zerolog.Nop(), FlushInterval: time.Hour})
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordBattle(&core.BattleRecord{ID: "b1", AccountID: "acc"}))
	require.NoError(t, b.Close())

	ok, err := b.storedBattle("b1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWriteLoop_FlushesPeriodically(t *testing.T) {
	db, err := database.OpenSQLite("")
	require.NoError(t, err)
	b := New(Dependencies{DB: db, Logger: zerolog.Nop(), FlushInterval: 10 * time.Millisecond})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.RecordBattle(&core.BattleRecord{ID: "b1", AccountID: "acc"}))

	assert.Eventually(t, func() bool {
		ok, err := b.storedBattle("b1")
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return b.GetLastDBWriteDuration() > 0 }, time.Second, 10*time.Millisecond)
}
