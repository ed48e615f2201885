// Package memory keeps all engine state in process memory. It is the
// default backend and the reference the other backends are tested against.
package memory

import (
	"sort"
	"sync"

	"github.com/ironbanner/battlecore/internal/storage"
	"github.com/ironbanner/battlecore/pkg/core"
)

// Backend stores combatants, equipment, progression and battle history in maps.
type Backend struct {
	combatants  map[string]*core.Combatant // equipped items stripped
	equipment   map[string]*core.Equipment
	progression map[string]core.AccountProgress
	battles     map[string]*core.BattleRecord
	order       []string // battle IDs in recording order

	mu sync.RWMutex
}

// New creates an empty memory backend.
func New() *Backend {
	return &Backend{
		combatants:  make(map[string]*core.Combatant),
		equipment:   make(map[string]*core.Equipment),
		progression: make(map[string]core.AccountProgress),
		battles:     make(map[string]*core.BattleRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// GetCombatant returns a copy of the combatant with its equipped items attached.
func (b *Backend) GetCombatant(id string) (*core.Combatant, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stored, ok := b.combatants[id]
	if !ok {
		return nil, &core.NotFoundError{Kind: "combatant", ID: id}
	}
	c := stored.Clone()
	for _, it := range b.equipment {
		if it.Equipped && it.OwnerID == id {
			if c.Equipped == nil {
				c.Equipped = make(map[core.Slot]*core.Equipment)
			}
			c.Equipped[it.Slot] = it.Clone()
		}
	}
	return c, nil
}

// SaveCombatant upserts the combatant and its equipped items.
func (b *Backend) SaveCombatant(c *core.Combatant) error {
	if c == nil || c.ID == "" {
		return &core.ValidationError{Field: "combatant", Reason: "missing id"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putCombatant(c)
	return nil
}

// putCombatant stores c and its equipped items. Callers hold mu.
func (b *Backend) putCombatant(c *core.Combatant) {
	stored := c.Clone()
	stored.Equipped = nil
	b.combatants[c.ID] = stored
	for _, it := range c.Equipped {
		if it != nil {
			b.equipment[it.ID] = it.Clone()
		}
	}
}

// GetEquipment returns a copy of one item.
func (b *Backend) GetEquipment(id string) (*core.Equipment, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	it, ok := b.equipment[id]
	if !ok {
		return nil, &core.NotFoundError{Kind: "equipment", ID: id}
	}
	return it.Clone(), nil
}

// SaveEquipment upserts one item.
func (b *Backend) SaveEquipment(e *core.Equipment) error {
	if e == nil || e.ID == "" {
		return &core.ValidationError{Field: "equipment", Reason: "missing id"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.equipment[e.ID] = e.Clone()
	return nil
}

// ListInventory returns every item of the account ordered by creation time, then ID.
func (b *Backend) ListInventory(accountID string) ([]*core.Equipment, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*core.Equipment
	for _, it := range b.equipment {
		if it.AccountID == accountID {
			out = append(out, it.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetProgression returns the account progression record.
func (b *Backend) GetProgression(accountID string) (core.AccountProgress, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.progression[accountID]
	if !ok {
		return core.AccountProgress{}, &core.NotFoundError{Kind: "progression", ID: accountID}
	}
	return p, nil
}

// SaveProgression upserts the account progression record.
func (b *Backend) SaveProgression(p core.AccountProgress) error {
	if p.AccountID == "" {
		return &core.ValidationError{Field: "progression", Reason: "missing account id"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progression[p.AccountID] = p
	return nil
}

// RecordBattle stores a battle summary. A repeated ID is a conflict.
func (b *Backend) RecordBattle(r *core.BattleRecord) error {
	if r == nil || r.ID == "" {
		return &core.ValidationError{Field: "battle", Reason: "missing id"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.battles[r.ID]; ok {
		return core.ErrConflict
	}
	b.battles[r.ID] = r.Clone()
	b.order = append(b.order, r.ID)
	return nil
}

// ApplyEngagement stores the engagement's changes and record under one lock.
func (b *Backend) ApplyEngagement(e *storage.Engagement) error {
	if err := e.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.battles[e.Record.ID]; ok {
		return core.ErrConflict
	}
	for _, c := range e.Combatants {
		b.putCombatant(c)
	}
	for _, it := range e.Loot {
		b.equipment[it.ID] = it.Clone()
	}
	b.progression[e.Progress.AccountID] = e.Progress
	b.battles[e.Record.ID] = e.Record.Clone()
	b.order = append(b.order, e.Record.ID)
	return nil
}

// HasBattle reports whether a battle with this ID was recorded.
func (b *Backend) HasBattle(id string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.battles[id]
	return ok, nil
}

// Battles returns the recorded battles of an account, oldest first.
func (b *Backend) Battles(accountID string) []*core.BattleRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*core.BattleRecord
	for _, id := range b.order {
		if r := b.battles[id]; r.AccountID == accountID {
			out = append(out, r.Clone())
		}
	}
	return out
}
