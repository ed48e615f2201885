// internal/storage/storage.go
package storage

import (
	"errors"

	"github.com/ironbanner/battlecore/pkg/core"
)

// ErrUnknownBackend is returned by the factory for an unsupported storage type.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Backend is the interface all storage implementations must satisfy.
// Getters return a *core.NotFoundError for missing records and hand out
// copies the caller may mutate freely.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Combatants. SaveCombatant also saves the combatant's equipped items.
	GetCombatant(id string) (*core.Combatant, error)
	SaveCombatant(c *core.Combatant) error

	// Equipment
	GetEquipment(id string) (*core.Equipment, error)
	SaveEquipment(e *core.Equipment) error
	ListInventory(accountID string) ([]*core.Equipment, error)

	// Account progression
	GetProgression(accountID string) (core.AccountProgress, error)
	SaveProgression(p core.AccountProgress) error

	// Battle history
	RecordBattle(r *core.BattleRecord) error
	HasBattle(id string) (bool, error)

	// ApplyEngagement writes every change of an engagement together with
	// its battle record. If the record's ID is already recorded it returns
	// core.ErrConflict and writes nothing.
	ApplyEngagement(e *Engagement) error
}

// Engagement is the state an engagement changed, saved as one unit.
type Engagement struct {
	Combatants []*core.Combatant // with their equipped items
	Progress   core.AccountProgress
	Loot       []*core.Equipment
	Record     *core.BattleRecord
}

// Validate checks the identifiers every backend relies on.
func (e *Engagement) Validate() error {
	if e == nil || e.Record == nil || e.Record.ID == "" {
		return &core.ValidationError{Field: "battle", Reason: "missing id"}
	}
	if e.Progress.AccountID == "" {
		return &core.ValidationError{Field: "progression", Reason: "missing account id"}
	}
	for _, c := range e.Combatants {
		if c == nil || c.ID == "" {
			return &core.ValidationError{Field: "combatant", Reason: "missing id"}
		}
	}
	for _, it := range e.Loot {
		if it == nil || it.ID == "" {
			return &core.ValidationError{Field: "equipment", Reason: "missing id"}
		}
	}
	return nil
}

// Recorder receives engagement summaries after they are applied, for
// metrics and live feeds. Failures never roll back the engagement.
type Recorder interface {
	RecordBattle(r *core.BattleRecord) error
	Close() error
}
