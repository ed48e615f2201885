package worker

import (
	"encoding/json"
	"fmt"

	"github.com/ironbanner/battlecore/internal/attribute"
	"github.com/ironbanner/battlecore/internal/dispatcher"
	"github.com/ironbanner/battlecore/internal/equipment"
	"github.com/ironbanner/battlecore/internal/formation"
	"github.com/ironbanner/battlecore/internal/random"
	"github.com/ironbanner/battlecore/pkg/core"
)

// PvPExpDivisor converts defender losses into experience for a PvP victory.
const PvPExpDivisor = 10

// RegisterHandlers registers all command handlers with the dispatcher.
// Every handler is synchronous: callers wait for the result.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Read-only views
	d.Register(":AGGREGATE:", m.handleAggregate, dispatcher.Logged())
	d.Register(":FORMATION:", m.handleFormation, dispatcher.Logged())
	d.Register(":INVENTORY:", m.handleInventory, dispatcher.Logged())

	// Engagements and rewards
	d.Register(":ENGAGE:", m.handleEngage, dispatcher.Logged())
	d.Register(":GRANT:EXP:", m.handleGrantExp, dispatcher.Logged())

	// Equipment
	d.Register(":LOOT:", m.handleLoot, dispatcher.Logged())
	d.Register(":CRAFT:", m.handleCraft, dispatcher.Logged())
	d.Register(":EQUIP:", m.handleEquip, dispatcher.Logged())
	d.Register(":UNEQUIP:", m.handleUnequip, dispatcher.Logged())
	d.Register(":ENHANCE:", m.handleEnhance, dispatcher.Logged())

	d.Register(":STATUS:", func(dispatcher.Event) (any, error) {
		return m.Status(d.Commands()), nil
	})
}

// decode unmarshals the event's JSON payload.
func decode[T any](e dispatcher.Event) (T, error) {
	var p T
	if len(e.Payload) == 0 {
		return p, &core.ValidationError{Field: "payload", Reason: fmt.Sprintf("%s needs a JSON payload", e.Command)}
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, &core.ValidationError{Field: "payload", Reason: err.Error()}
	}
	return p, nil
}

func requireAccount(accountID string) error {
	if accountID == "" {
		return &core.ValidationError{Field: "accountId", Reason: "missing"}
	}
	return nil
}

type aggregatePayload struct {
	CombatantID string `json:"combatantId"`
}

// AggregateResult is the effective view of one combatant.
type AggregateResult struct {
	CombatantID string               `json:"combatantId"`
	Stats       core.EffectiveStats  `json:"stats"`
	Battle      core.EffectiveStats  `json:"battle"`
	Sets        []attribute.SetBonus `json:"sets,omitempty"`
}

func (m *Manager) handleAggregate(e dispatcher.Event) (any, error) {
	p, err := decode[aggregatePayload](e)
	if err != nil {
		return nil, err
	}
	c, err := m.backend.GetCombatant(p.CombatantID)
	if err != nil {
		return nil, err
	}
	stats := attribute.Aggregate(c, m.deps.Sets)
	return AggregateResult{
		CombatantID: c.ID,
		Stats:       stats,
		Battle:      attribute.WithTroop(stats, c.Troop),
		Sets:        attribute.ActiveSetBonuses(c.Items(), m.deps.Sets),
	}, nil
}

type formationPayload struct {
	AccountID string         `json:"accountId"`
	Slots     map[int]string `json:"slots"`
}

// PlacementView is one entry of a turn order.
type PlacementView struct {
	Slot        int    `json:"slot"`
	CombatantID string `json:"combatantId"`
	Mobility    int    `json:"mobility"`
	Power       int    `json:"power"`
}

func (m *Manager) handleFormation(e dispatcher.Event) (any, error) {
	p, err := decode[formationPayload](e)
	if err != nil {
		return nil, err
	}
	lineup, err := m.loadLineup(p.AccountID, p.Slots)
	if err != nil {
		return nil, err
	}
	return turnOrder(lineup, m.deps.Sets), nil
}

func turnOrder(l formation.Lineup, sets core.SetCatalog) []PlacementView {
	placements := formation.Order(l, sets)
	out := make([]PlacementView, 0, len(placements))
	for _, pl := range placements {
		out = append(out, PlacementView{
			Slot:        pl.Slot,
			CombatantID: pl.Combatant.ID,
			Mobility:    pl.Stats.Mobility,
			Power:       pl.Stats.Power,
		})
	}
	return out
}

// loadLineup fetches the account's combatants into their formation slots.
func (m *Manager) loadLineup(accountID string, slots map[int]string) (formation.Lineup, error) {
	if err := requireAccount(accountID); err != nil {
		return formation.Lineup{}, err
	}
	if len(slots) == 0 {
		return formation.Lineup{}, &core.ValidationError{Field: "formation", Reason: "no combatants placed"}
	}
	placed := make(map[int]*core.Combatant, len(slots))
	for slot, id := range slots {
		if err := formation.Validate(slot); err != nil {
			return formation.Lineup{}, err
		}
		c, err := m.ownedCombatant(accountID, id)
		if err != nil {
			return formation.Lineup{}, err
		}
		placed[slot] = c
	}
	return formation.Assign(placed)
}

func (m *Manager) ownedCombatant(accountID, id string) (*core.Combatant, error) {
	c, err := m.backend.GetCombatant(id)
	if err != nil {
		return nil, err
	}
	if c.AccountID != accountID {
		return nil, &core.ValidationError{Field: "combatant", Reason: fmt.Sprintf("combatant %s belongs to another account", id)}
	}
	return c, nil
}

func (m *Manager) ownedEquipment(accountID, id string) (*core.Equipment, error) {
	it, err := m.backend.GetEquipment(id)
	if err != nil {
		return nil, err
	}
	if it.AccountID != accountID {
		return nil, &core.ValidationError{Field: "equipment", Reason: fmt.Sprintf("item %s belongs to another account", id)}
	}
	return it, nil
}

type inventoryPayload struct {
	AccountID string `json:"accountId"`
}

func (m *Manager) handleInventory(e dispatcher.Event) (any, error) {
	p, err := decode[inventoryPayload](e)
	if err != nil {
		return nil, err
	}
	if err := requireAccount(p.AccountID); err != nil {
		return nil, err
	}
	return m.backend.ListInventory(p.AccountID)
}

type grantPayload struct {
	AccountID   string `json:"accountId"`
	CombatantID string `json:"combatantId,omitempty"`
	Exp         int    `json:"exp"`
}

// GrantResult reports experience applied outside an engagement.
type GrantResult struct {
	core.ExperienceDelta
	Progress core.ProgressionState `json:"progress"`
}

func (m *Manager) handleGrantExp(e dispatcher.Event) (any, error) {
	p, err := decode[grantPayload](e)
	if err != nil {
		return nil, err
	}
	if err := requireAccount(p.AccountID); err != nil {
		return nil, err
	}

	unlock := m.deps.Locks.Lock(p.AccountID)
	defer unlock()

	acct, err := m.accountProgress(p.AccountID)
	if err != nil {
		return nil, err
	}

	if p.CombatantID == "" {
		delta, err := m.grantAccount(&acct, p.Exp)
		if err != nil {
			return nil, err
		}
		if err := m.backend.SaveProgression(acct); err != nil {
			return nil, err
		}
		return GrantResult{ExperienceDelta: delta, Progress: acct.State}, nil
	}

	c, err := m.ownedCombatant(p.AccountID, p.CombatantID)
	if err != nil {
		return nil, err
	}
	delta, err := m.grantCombatant(c, acct.State.BonusPercent, p.Exp)
	if err != nil {
		return nil, err
	}
	if err := m.backend.SaveCombatant(c); err != nil {
		return nil, err
	}
	return GrantResult{ExperienceDelta: delta, Progress: c.Progress}, nil
}

// accountProgress loads the account record, starting a fresh one for new accounts.
func (m *Manager) accountProgress(accountID string) (core.AccountProgress, error) {
	p, err := m.backend.GetProgression(accountID)
	if core.IsNotFound(err) {
		return core.AccountProgress{AccountID: accountID, State: m.deps.Ledger.NewState(0)}, nil
	}
	return p, err
}

func (m *Manager) grantAccount(p *core.AccountProgress, exp int) (core.ExperienceDelta, error) {
	next, gained, granted, err := m.deps.Ledger.AddExperience(p.State, exp)
	if err != nil {
		return core.ExperienceDelta{}, err
	}
	p.State = next
	return core.ExperienceDelta{Granted: granted, LevelsGained: gained, Level: next.Level}, nil
}

// grantCombatant applies exp with the account's bonus percent, grows base
// stats for every level gained and refreshes power.
func (m *Manager) grantCombatant(c *core.Combatant, bonusPercent, exp int) (core.ExperienceDelta, error) {
	if c.Progress.Level == 0 {
		c.Progress = m.deps.Ledger.NewState(c.Progress.BonusPercent)
	}
	state := c.Progress
	state.BonusPercent = bonusPercent
	next, gained, granted, err := m.deps.Ledger.AddExperience(state, exp)
	if err != nil {
		return core.ExperienceDelta{}, fmt.Errorf("combatant %s: %w", c.ID, err)
	}
	next.BonusPercent = c.Progress.BonusPercent
	c.Progress = next
	if gained > 0 {
		c.Base = m.deps.Ledger.GrowStats(c.Base, c.Quality, gained)
	}
	attribute.Refresh(c, m.deps.Sets)
	return core.ExperienceDelta{CombatantID: c.ID, Granted: granted, LevelsGained: gained, Level: next.Level}, nil
}

type lootPayload struct {
	AccountID string      `json:"accountId"`
	Source    core.Source `json:"source"`
	Slot      core.Slot   `json:"slot"`
	Level     int         `json:"level"`
}

func (m *Manager) handleLoot(e dispatcher.Event) (any, error) {
	p, err := decode[lootPayload](e)
	if err != nil {
		return nil, err
	}
	return m.generate(p)
}

func (m *Manager) handleCraft(e dispatcher.Event) (any, error) {
	p, err := decode[lootPayload](e)
	if err != nil {
		return nil, err
	}
	p.Source = core.SourceCraft
	return m.generate(p)
}

func (m *Manager) generate(p lootPayload) (*core.Equipment, error) {
	if err := requireAccount(p.AccountID); err != nil {
		return nil, err
	}
	var item *core.Equipment
	err := m.draw(func(rng random.Source) error {
		var err error
		item, err = m.deps.Generator.Generate(p.Slot, p.Level, p.Source, rng)
		return err
	})
	if err != nil {
		return nil, err
	}
	item.AccountID = p.AccountID
	if err := m.backend.SaveEquipment(item); err != nil {
		return nil, err
	}
	return item, nil
}

type equipPayload struct {
	AccountID   string    `json:"accountId"`
	CombatantID string    `json:"combatantId"`
	ItemID      string    `json:"itemId,omitempty"`
	Slot        core.Slot `json:"slot,omitempty"`
}

// EquipResult is the combatant after an equipment change plus the item
// that left it, if any.
type EquipResult struct {
	Combatant *core.Combatant `json:"combatant"`
	Released  *core.Equipment `json:"released,omitempty"`
}

func (m *Manager) handleEquip(e dispatcher.Event) (any, error) {
	p, err := decode[equipPayload](e)
	if err != nil {
		return nil, err
	}
	if err := requireAccount(p.AccountID); err != nil {
		return nil, err
	}
	unlock := m.deps.Locks.Lock(p.AccountID)
	defer unlock()

	c, err := m.ownedCombatant(p.AccountID, p.CombatantID)
	if err != nil {
		return nil, err
	}
	item, err := m.ownedEquipment(p.AccountID, p.ItemID)
	if err != nil {
		return nil, err
	}
	displaced, err := equipment.Equip(c, item, m.deps.Sets)
	if err != nil {
		return nil, err
	}
	return m.saveEquipChange(c, displaced)
}

func (m *Manager) handleUnequip(e dispatcher.Event) (any, error) {
	p, err := decode[equipPayload](e)
	if err != nil {
		return nil, err
	}
	if err := requireAccount(p.AccountID); err != nil {
		return nil, err
	}
	unlock := m.deps.Locks.Lock(p.AccountID)
	defer unlock()

	c, err := m.ownedCombatant(p.AccountID, p.CombatantID)
	if err != nil {
		return nil, err
	}
	released, err := equipment.Unequip(c, p.Slot, m.deps.Sets)
	if err != nil {
		return nil, err
	}
	return m.saveEquipChange(c, released)
}

func (m *Manager) saveEquipChange(c *core.Combatant, released *core.Equipment) (EquipResult, error) {
	if err := m.backend.SaveCombatant(c); err != nil {
		return EquipResult{}, err
	}
	if released != nil {
		if err := m.backend.SaveEquipment(released); err != nil {
			return EquipResult{}, err
		}
	}
	return EquipResult{Combatant: c, Released: released}, nil
}

type enhancePayload struct {
	AccountID string `json:"accountId"`
	ItemID    string `json:"itemId"`
}

func (m *Manager) handleEnhance(e dispatcher.Event) (any, error) {
	p, err := decode[enhancePayload](e)
	if err != nil {
		return nil, err
	}
	if err := requireAccount(p.AccountID); err != nil {
		return nil, err
	}
	unlock := m.deps.Locks.Lock(p.AccountID)
	defer unlock()

	item, err := m.ownedEquipment(p.AccountID, p.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.Equipped {
		if err := equipment.Enhance(item, nil, m.deps.Sets); err != nil {
			return nil, err
		}
		return item, m.backend.SaveEquipment(item)
	}

	owner, err := m.backend.GetCombatant(item.OwnerID)
	if err != nil {
		return nil, err
	}
	worn := owner.Equipped[item.Slot]
	if worn == nil || worn.ID != item.ID {
		return nil, &core.ValidationError{Field: "equipment", Reason: fmt.Sprintf("item %s is not worn by %s", item.ID, owner.ID)}
	}
	if err := equipment.Enhance(worn, owner, m.deps.Sets); err != nil {
		return nil, err
	}
	return worn, m.backend.SaveCombatant(owner)
}

// Status is a point-in-time view of the engine.
type Status struct {
	Engagements    int      `json:"engagements"`
	PendingBattles int      `json:"pendingBattles"`
	LastWriteMs    float64  `json:"lastWriteMs"`
	Commands       []string `json:"commands,omitempty"`
}

// Status reports engine counters.
func (m *Manager) Status(commands []string) Status {
	return Status{
		Engagements:    m.Engagements(),
		PendingBattles: m.PendingBattles(),
		LastWriteMs:    float64(m.GetLastDBWriteDuration().Microseconds()) / 1000,
		Commands:       commands,
	}
}

