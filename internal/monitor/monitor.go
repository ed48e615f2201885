package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ironbanner/battlecore/internal/dispatcher"
	"github.com/ironbanner/battlecore/internal/model"
	"github.com/ironbanner/battlecore/internal/worker"
)

// DefaultInterval is the status refresh period.
const DefaultInterval = time.Second

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	DB            *gorm.DB // optional; snapshots are stored when set
	Logger        *slog.Logger
	WorkerManager *worker.Manager
	// Dropped reports messages the outcome stream discarded. Optional.
	Dropped func() int64
	// Outcomes reports dispatched commands by outcome. Optional.
	Outcomes   func() map[string]int64
	StatusPath string
	Interval   time.Duration
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current status as printable lines and as a
// performance row.
func (s *Service) GetProgramStatus() (output []string, perfModel model.EnginePerformance) {
	status := s.deps.WorkerManager.Status(nil)

	perfModel = model.EnginePerformance{
		Time:                time.Now(),
		Engagements:         uint64(status.Engagements),
		PendingBattles:      status.PendingBattles,
		LastWriteDurationMs: float32(status.LastWriteMs),
	}
	if s.deps.Dropped != nil {
		perfModel.StreamDropped = s.deps.Dropped()
	}
	if s.deps.Outcomes != nil {
		for outcome, n := range s.deps.Outcomes() {
			switch outcome {
			case dispatcher.OutcomeOK:
				perfModel.CommandsOK += n
			case dispatcher.OutcomeInternal:
				perfModel.CommandsFailed += n
			default:
				perfModel.CommandsRejected += n
			}
		}
	}

	statusStr, err := json.MarshalIndent(perfModel, "", "  ")
	if err != nil {
		statusStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	output = append(output, string(statusStr))
	return output, perfModel
}

// Tick writes one status snapshot to the status file and the database.
func (s *Service) Tick() error {
	lines, perf := s.GetProgramStatus()

	if s.deps.StatusPath != "" {
		f, err := os.Create(s.deps.StatusPath)
		if err != nil {
			return fmt.Errorf("error creating status file: %w", err)
		}
		for _, line := range lines {
			if _, err := f.WriteString(line + "\n"); err != nil {
				f.Close()
				return err
			}
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	if s.deps.DB != nil {
		if err := s.deps.DB.Create(&perf).Error; err != nil {
			return fmt.Errorf("error writing perf model: %w", err)
		}
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(s.done)
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				if err := s.Tick(); err != nil {
					logger.Error("Error writing status", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for its goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.isRunning = false
	done := s.done
	s.mu.Unlock()
	<-done
}
