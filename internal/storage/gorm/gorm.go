// Package gormstorage implements the storage.Backend interface on GORM.
// Combatants, equipment and progression are written synchronously; battle
// records go through a queue drained by a background writer.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ironbanner/battlecore/internal/database"
	"github.com/ironbanner/battlecore/internal/model"
	"github.com/ironbanner/battlecore/internal/model/convert"
	"github.com/ironbanner/battlecore/internal/queue"
	"github.com/ironbanner/battlecore/internal/storage"
	"github.com/ironbanner/battlecore/pkg/core"
)

// DefaultFlushInterval is how often queued battle records are written.
const DefaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        zerolog.Logger
	FlushInterval time.Duration
}

// Backend implements storage.Backend using GORM with queue-based battle writes.
type Backend struct {
	deps     Dependencies
	battles  *queue.Keyed[string, model.BattleRecord]
	stopChan chan struct{}
	done     chan struct{}

	// recordMu orders the stored-battle check before the push against the
	// release of written keys
	recordMu sync.Mutex
	writeMu  sync.Mutex

	lastWrite atomic.Int64
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:    deps,
		battles: queue.NewKeyed(func(r model.BattleRecord) string { return r.ID }),
	}
}

// Init runs schema migration and starts the battle writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend: no database")
	}
	if err := database.Migrate(b.deps.DB, b.deps.Logger); err != nil {
		return err
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the writer and flushes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	return b.Flush()
}

// DB exposes the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// GetCombatant loads a combatant and its equipped items.
func (b *Backend) GetCombatant(id string) (*core.Combatant, error) {
	var m model.Combatant
	if err := b.deps.DB.First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "combatant", id)
	}
	c := convert.CombatantToCore(m)

	var items []model.Equipment
	if err := b.deps.DB.Where("owner_id = ? AND equipped = ?", id, true).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("load equipment of %s: %w", id, err)
	}
	for _, it := range items {
		e, err := convert.EquipmentToCore(it)
		if err != nil {
			return nil, err
		}
		if c.Equipped == nil {
			c.Equipped = make(map[core.Slot]*core.Equipment)
		}
		c.Equipped[e.Slot] = e
	}
	return c, nil
}

// SaveCombatant upserts the combatant and its equipped items in one transaction.
func (b *Backend) SaveCombatant(c *core.Combatant) error {
	if c == nil || c.ID == "" {
		return &core.ValidationError{Field: "combatant", Reason: "missing id"}
	}
	m, items, err := combatantRows(c)
	if err != nil {
		return err
	}

	return b.deps.DB.Transaction(func(tx *gorm.DB) error {
		return saveCombatant(tx, c.ID, &m, items)
	})
}

func combatantRows(c *core.Combatant) (model.Combatant, []model.Equipment, error) {
	items := make([]model.Equipment, 0, len(c.Equipped))
	for _, it := range c.Items() {
		e, err := convert.EquipmentToGorm(it)
		if err != nil {
			return model.Combatant{}, nil, err
		}
		items = append(items, e)
	}
	return convert.CombatantToGorm(c), items, nil
}

func saveCombatant(tx *gorm.DB, id string, m *model.Combatant, items []model.Equipment) error {
	if err := upsert(tx, m); err != nil {
		return fmt.Errorf("save combatant %s: %w", id, err)
	}
	if len(items) > 0 {
		if err := upsert(tx, &items); err != nil {
			return fmt.Errorf("save equipment of %s: %w", id, err)
		}
	}
	return nil
}

// GetEquipment loads one item.
func (b *Backend) GetEquipment(id string) (*core.Equipment, error) {
	var m model.Equipment
	if err := b.deps.DB.First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "equipment", id)
	}
	return convert.EquipmentToCore(m)
}

// SaveEquipment upserts one item.
func (b *Backend) SaveEquipment(e *core.Equipment) error {
	if e == nil || e.ID == "" {
		return &core.ValidationError{Field: "equipment", Reason: "missing id"}
	}
	m, err := convert.EquipmentToGorm(e)
	if err != nil {
		return err
	}
	if err := upsert(b.deps.DB, &m); err != nil {
		return fmt.Errorf("save equipment %s: %w", e.ID, err)
	}
	return nil
}

// ListInventory returns every item of the account ordered by creation time, then ID.
func (b *Backend) ListInventory(accountID string) ([]*core.Equipment, error) {
	var rows []model.Equipment
	if err := b.deps.DB.Where("account_id = ?", accountID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list inventory of %s: %w", accountID, err)
	}
	out := make([]*core.Equipment, 0, len(rows))
	for _, r := range rows {
		e, err := convert.EquipmentToCore(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// GetProgression loads the account progression.
func (b *Backend) GetProgression(accountID string) (core.AccountProgress, error) {
	var m model.AccountProgress
	if err := b.deps.DB.First(&m, "account_id = ?", accountID).Error; err != nil {
		return core.AccountProgress{}, notFound(err, "progression", accountID)
	}
	return convert.ProgressToCore(m), nil
}

// SaveProgression upserts the account progression.
func (b *Backend) SaveProgression(p core.AccountProgress) error {
	if p.AccountID == "" {
		return &core.ValidationError{Field: "progression", Reason: "missing account id"}
	}
	m := convert.ProgressToGorm(p)
	if err := upsert(b.deps.DB, &m); err != nil {
		return fmt.Errorf("save progression %s: %w", p.AccountID, err)
	}
	return nil
}

// RecordBattle queues a battle record. A repeated ID is a conflict.
func (b *Backend) RecordBattle(r *core.BattleRecord) error {
	if r == nil || r.ID == "" {
		return &core.ValidationError{Field: "battle", Reason: "missing id"}
	}
	m, err := convert.BattleRecordToGorm(r)
	if err != nil {
		return err
	}

	b.recordMu.Lock()
	defer b.recordMu.Unlock()
	if b.battles.Has(r.ID) {
		return core.ErrConflict
	}
	stored, err := b.storedBattle(r.ID)
	if err != nil {
		return err
	}
	if stored || !b.battles.Push(m) {
		return core.ErrConflict
	}
	return nil
}

// ApplyEngagement saves the engagement's combatants, loot and progression
// in one transaction and queues its battle record. The battle ID stays
// claimed from the conflict check until the record is queued, so a
// concurrent engagement with the same ID writes nothing.
func (b *Backend) ApplyEngagement(e *storage.Engagement) error {
	if err := e.Validate(); err != nil {
		return err
	}
	record, err := convert.BattleRecordToGorm(e.Record)
	if err != nil {
		return err
	}
	type combatantRow struct {
		id    string
		m     model.Combatant
		items []model.Equipment
	}
	rows := make([]combatantRow, 0, len(e.Combatants))
	for _, c := range e.Combatants {
		m, items, err := combatantRows(c)
		if err != nil {
			return err
		}
		rows = append(rows, combatantRow{id: c.ID, m: m, items: items})
	}
	loot := make([]model.Equipment, 0, len(e.Loot))
	for _, it := range e.Loot {
		m, err := convert.EquipmentToGorm(it)
		if err != nil {
			return err
		}
		loot = append(loot, m)
	}
	progress := convert.ProgressToGorm(e.Progress)

	b.recordMu.Lock()
	defer b.recordMu.Unlock()
	if b.battles.Has(record.ID) {
		return core.ErrConflict
	}
	stored, err := b.storedBattle(record.ID)
	if err != nil {
		return err
	}
	if stored {
		return core.ErrConflict
	}

	err = b.deps.DB.Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := saveCombatant(tx, rows[i].id, &rows[i].m, rows[i].items); err != nil {
				return err
			}
		}
		if len(loot) > 0 {
			if err := upsert(tx, &loot); err != nil {
				return fmt.Errorf("save loot of %s: %w", record.ID, err)
			}
		}
		if err := upsert(tx, &progress); err != nil {
			return fmt.Errorf("save progression %s: %w", progress.AccountID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	// recordMu is held since the Has check, so the key is still free
	b.battles.Push(record)
	return nil
}

// HasBattle reports whether a battle was recorded, written or still queued.
func (b *Backend) HasBattle(id string) (bool, error) {
	if b.battles.Has(id) {
		return true, nil
	}
	return b.storedBattle(id)
}

// Battles loads the written battles of an account, oldest first.
func (b *Backend) Battles(accountID string) ([]*core.BattleRecord, error) {
	var rows []model.BattleRecord
	if err := b.deps.DB.Where("account_id = ?", accountID).Order("fought_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list battles of %s: %w", accountID, err)
	}
	out := make([]*core.BattleRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := convert.BattleRecordToCore(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// PendingBattles is the number of battle records waiting to be written.
func (b *Backend) PendingBattles() int {
	return b.battles.Len()
}

// GetLastDBWriteDuration returns the duration of the last battle write cycle.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// Flush writes all queued battle records now.
func (b *Backend) Flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	err := writeBatch(b.deps.DB, b.battles, "battle records", b.deps.Logger, func(batch []model.BattleRecord) {
		b.recordMu.Lock()
		b.battles.Done(batch)
		b.recordMu.Unlock()
	})
	b.lastWrite.Store(int64(time.Since(start)))
	return err
}

func (b *Backend) storedBattle(id string) (bool, error) {
	var n int64
	if err := b.deps.DB.Model(&model.BattleRecord{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check battle %s: %w", id, err)
	}
	return n > 0, nil
}

// writeLoop periodically drains the battle queue into the DB.
func (b *Backend) writeLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			_ = b.Flush()
		}
	}
}

// writeBatch writes everything queued in one transaction. A failed batch is
// requeued for the next cycle.
func writeBatch[T any](db *gorm.DB, q *queue.Keyed[string, T], name string, log zerolog.Logger, done func([]T)) error {
	batch := q.Take()
	if len(batch) == 0 {
		return nil
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&batch).Error
	})
	if err != nil {
		log.Error().Err(err).Int("count", len(batch)).Msgf("Error creating %s", name)
		q.Requeue(batch)
		return fmt.Errorf("write %s: %w", name, err)
	}

	log.Debug().Int("count", len(batch)).Msgf("Wrote %s", name)
	done(batch)
	return nil
}

func upsert(db *gorm.DB, value any) error {
	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &core.NotFoundError{Kind: kind, ID: id}
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}
