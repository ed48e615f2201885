package worker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ironbanner/battlecore/internal/cache"
	"github.com/ironbanner/battlecore/internal/equipment"
	"github.com/ironbanner/battlecore/internal/progression"
	"github.com/ironbanner/battlecore/internal/random"
	"github.com/ironbanner/battlecore/internal/storage"
	"github.com/ironbanner/battlecore/pkg/core"
)

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Logger    *slog.Logger
	Generator *equipment.Generator
	Ledger    *progression.Ledger
	Sets      core.SetCatalog
	NPCs      []core.NPCTemplate
	Recorders []storage.Recorder
	Locks     *cache.AccountLocks

	// Seed fixes every request's random sequence when non-zero.
	Seed int64
	// RNG, when set, replaces the per-request source.
	RNG   random.Source
	Now   func() time.Time
	NewID func() string
}

// Manager applies commands against a storage backend.
type Manager struct {
	deps    Dependencies
	backend storage.Backend
	npcs    map[string]core.NPCTemplate
	// battle IDs of engagements in progress
	battles *cache.Claims

	engagements cache.SafeCounter
	rngMu       sync.Mutex
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Locks == nil {
		deps.Locks = cache.NewAccountLocks()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	npcs := make(map[string]core.NPCTemplate, len(deps.NPCs))
	for _, n := range deps.NPCs {
		npcs[n.ID] = n
	}
	return &Manager{
		deps:    deps,
		backend: backend,
		npcs:    npcs,
		battles: cache.NewClaims(),
	}
}

// DBWriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type DBWriteDurationProvider interface {
	GetLastDBWriteDuration() time.Duration
}

// PendingProvider is implemented by backends that queue battle records.
type PendingProvider interface {
	PendingBattles() int
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.backend.(DBWriteDurationProvider); ok {
		return p.GetLastDBWriteDuration()
	}
	return 0
}

// PendingBattles returns the number of battle records waiting to be written.
func (m *Manager) PendingBattles() int {
	if p, ok := m.backend.(PendingProvider); ok {
		return p.PendingBattles()
	}
	return 0
}

// Engagements returns the number of engagements applied since start.
func (m *Manager) Engagements() int {
	return m.engagements.Value()
}

// draw runs f with the random source for one request. An injected source is
// shared, so calls through it are serialized.
func (m *Manager) draw(f func(rng random.Source) error) error {
	if m.deps.RNG != nil {
		m.rngMu.Lock()
		defer m.rngMu.Unlock()
		return f(m.deps.RNG)
	}
	rng, seed, err := random.ForRequest(m.deps.Seed)
	if err != nil {
		return err
	}
	m.deps.Logger.Debug("Random source", "seed", seed)
	return f(rng)
}
