package sqlitestorage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironbanner/battlecore/internal/storage"
	"github.com/ironbanner/battlecore/pkg/core"
)

var _ storage.Backend = (*Backend)(nil)

func TestFileBackend_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bc.db")

	b, err := New(Config{Path: path}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.SaveProgression(core.AccountProgress{AccountID: "acc", State: core.ProgressionState{Level: 4}}))
	require.NoError(t, b.RecordBattle(&core.BattleRecord{ID: "b1", AccountID: "acc"}))
	require.NoError(t, b.Close())

	again, err := New(Config{Path: path}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, again.Init())
	defer again.Close()

	p, err := again.GetProgression("acc")
	require.NoError(t, err)
	assert.Equal(t, 4, p.State.Level)

	ok, err := again.HasBattle("b1")
	require.NoError(t, err)
	assert.True(t, ok, "queued battle flushed on close")
}

func TestMemoryBackend_DumpsOnClose(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "dump.db")

	b, err := New(Config{DumpPath: dump, DumpInterval: time.Hour}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.SaveCombatant(&core.Combatant{ID: "hero", AccountID: "acc", Soldiers: 42}))
	require.NoError(t, b.Close())
	assert.Equal(t, int64(1), b.Dumps())

	disk, err := New(Config{Path: dump}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, disk.Init())
	defer disk.Close()

	c, err := disk.GetCombatant("hero")
	require.NoError(t, err)
	assert.Equal(t, 42, c.Soldiers)
}

func TestMemoryBackend_PeriodicDump(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "dump.db")

	b, err := New(Config{DumpPath: dump, DumpInterval: 20 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	assert.Eventually(t, func() bool { return b.Dumps() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.FileExists(t, dump)
}
