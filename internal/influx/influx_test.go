package influx

import (
	"bufio"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironbanner/battlecore/internal/storage"
	"github.com/ironbanner/battlecore/pkg/core"
)

var _ storage.Recorder = (*Manager)(nil)

func sampleRecord() *core.BattleRecord {
	return &core.BattleRecord{
		ID:             "b1",
		AccountID:      "acc",
		Kind:           core.BattlePvE,
		Opponent:       "bandits",
		Victory:        true,
		Matchups:       []core.Matchup{{Wave: 1}, {Wave: 2}},
		AttackerLosses: 12,
		DefenderLosses: 80,
		ExpGranted:     150,
		Experience: []core.ExperienceDelta{
			{CombatantID: "hero", Granted: 150, LevelsGained: 1, Level: 2},
			{CombatantID: "squire", Granted: 150},
			{Granted: 150, LevelsGained: 1, Level: 2},
		},
		LootIDs:  []string{"item-1"},
		FoughtAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestBattlePoints(t *testing.T) {
	points := BattlePoints(sampleRecord())
	require.Len(t, points, 3)

	battle := influxdb2_write.PointToLineProtocol(points[0], time.Nanosecond)
	assert.Contains(t, battle, "battle,")
	assert.Contains(t, battle, "account=acc")
	assert.Contains(t, battle, "kind=pve")
	assert.Contains(t, battle, "victory=true")
	assert.Contains(t, battle, "waves=2i")
	assert.Contains(t, battle, "defender_losses=80i")
	assert.Contains(t, battle, "loot=1i")
	assert.Contains(t, battle, `battle_id="b1"`)
	assert.Contains(t, battle, "1700000000000000000")

	hero := influxdb2_write.PointToLineProtocol(points[1], time.Nanosecond)
	assert.Contains(t, hero, "level_up,")
	assert.Contains(t, hero, "target=hero")
	assert.Contains(t, hero, "level=2i")

	acct := influxdb2_write.PointToLineProtocol(points[2], time.Nanosecond)
	assert.Contains(t, acct, "target=account")
}

func TestRecordBattle_BackupWhenUnreachable(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "influx_backup.lp.gz")
	m := NewManager(Config{URL: "http://127.0.0.1:1", Org: "battlecore", Bucket: "battles", BackupPath: backup}, zerolog.Nop())

	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)
	require.NotNil(t, m.BackupWriter)

	require.NoError(t, m.RecordBattle(sampleRecord()))
	require.NoError(t, m.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var lines []string
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "battle,")
	assert.Contains(t, lines[1], "level_up,")
}

func TestWritePoint_NotConnected(t *testing.T) {
	m := NewManager(Config{}, zerolog.Nop())
	assert.Error(t, m.RecordBattle(sampleRecord()))
	assert.NoError(t, m.Close())
}
