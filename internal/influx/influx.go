// Package influx writes battle and level-up points to InfluxDB, falling back
// to a gzipped line-protocol backup file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/ironbanner/battlecore/pkg/core"
)

// Measurement names.
const (
	MeasurementBattle  = "battle"
	MeasurementLevelUp = "level_up"
)

// RetentionSeconds is the retention applied to a bucket created on connect.
const RetentionSeconds = 60 * 60 * 24 * 90

// Config holds connection settings.
type Config struct {
	URL        string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// Manager handles InfluxDB connections and writes. It implements storage.Recorder.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger

	cfg        Config
	backupFile *os.File
	mu         sync.Mutex
}

// NewManager creates a new InfluxDB manager.
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		Logger: log,
	}
}

// Connect establishes a connection to InfluxDB. When the server does not
// answer a ping the manager writes to the backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Client = influxdb2.NewClientWithOptions(
		m.cfg.URL,
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	running, err := m.Client.Ping(pingCtx)

	if err != nil || !running {
		m.IsValid = false
		if m.BackupWriter == nil {
			m.Logger.Info().Str("backupPath", m.cfg.BackupPath).
				Msg("Failed to initialize InfluxDB client, writing to backup file")

			file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %w", err)
			}
			m.backupFile = file
			m.BackupWriter = gzip.NewWriter(file)
		}
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
		return nil
	}

	m.IsValid = true
	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.Client.OrganizationsAPI()

	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.Logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", m.cfg.Org).Msg("Error creating organization")
			return err
		}
	}

	if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: RetentionSeconds,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)

	errorsCh := m.Writer.Errors()
	go func() {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}()
}

// WritePoint writes a point to InfluxDB or backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}
	if m.BackupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// RecordBattle writes the battle point and one level_up point per level gain.
func (m *Manager) RecordBattle(r *core.BattleRecord) error {
	for _, p := range BattlePoints(r) {
		if err := m.WritePoint(p); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
		m.Client = nil
	}
	m.IsValid = false

	var err error
	if m.BackupWriter != nil {
		err = errors.Join(m.BackupWriter.Close(), m.backupFile.Close())
		m.BackupWriter, m.backupFile = nil, nil
	}
	return err
}

// BattlePoints converts a battle record into line-protocol points.
func BattlePoints(r *core.BattleRecord) []*influxdb2_write.Point {
	points := []*influxdb2_write.Point{
		influxdb2.NewPoint(
			MeasurementBattle,
			map[string]string{
				"account":  r.AccountID,
				"kind":     string(r.Kind),
				"opponent": r.Opponent,
				"victory":  strconv.FormatBool(r.Victory),
			},
			map[string]any{
				"battle_id":       r.ID,
				"waves":           len(r.Matchups),
				"attacker_losses": r.AttackerLosses,
				"defender_losses": r.DefenderLosses,
				"exp_granted":     r.ExpGranted,
				"loot":            len(r.LootIDs),
			},
			r.FoughtAt,
		),
	}

	for _, d := range r.Experience {
		if d.LevelsGained == 0 {
			continue
		}
		target := d.CombatantID
		if target == "" {
			target = "account"
		}
		points = append(points, influxdb2.NewPoint(
			MeasurementLevelUp,
			map[string]string{
				"account": r.AccountID,
				"target":  target,
			},
			map[string]any{
				"battle_id": r.ID,
				"level":     d.Level,
				"gained":    d.LevelsGained,
			},
			r.FoughtAt,
		))
	}
	return points
}
