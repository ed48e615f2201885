package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/ironbanner/battlecore/internal/cache"
	"github.com/ironbanner/battlecore/internal/config"
	"github.com/ironbanner/battlecore/internal/dispatcher"
	"github.com/ironbanner/battlecore/internal/equipment"
	"github.com/ironbanner/battlecore/internal/logging"
	"github.com/ironbanner/battlecore/internal/monitor"
	intOtel "github.com/ironbanner/battlecore/internal/otel"
	"github.com/ironbanner/battlecore/internal/progression"
	"github.com/ironbanner/battlecore/internal/random"
	"github.com/ironbanner/battlecore/internal/storage"
	"github.com/ironbanner/battlecore/internal/stream"
	"github.com/ironbanner/battlecore/internal/worker"
	"github.com/ironbanner/battlecore/pkg/core"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	ServiceName string = logging.ServiceName
)

// envConfig holds process-level overrides read from the environment.
type envConfig struct {
	ConfigDir string `env:"BATTLECORE_CONFIG_DIR" envDefault:"."`
	LogLevel  string `env:"BATTLECORE_LOG_LEVEL"`
}

// global variables
var (
	appCtx = context.Background()

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()
	LogFilePath      string

	// Services
	storageBackend  storage.Backend
	recorders       []storage.Recorder
	streamPublisher *stream.Publisher
	workerManager   *worker.Manager
	monitorService  *monitor.Service
	eventDispatcher *dispatcher.Dispatcher
)

func main() {
	if err := run(os.Stdin, os.Stdout); err != nil {
		if Logger != nil {
			Logger.Error("Exiting", "error", err)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer) error {
	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, envCfg.LogLevel, nil)
	Logger = SlogManager.Logger()

	if err := config.Load(envCfg.ConfigDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", envCfg.ConfigDir)
	}

	level := envCfg.LogLevel
	if level == "" {
		level = config.GetString("logLevel")
	}

	logFile, zlog, closeLogs := setupLogging(level)
	defer closeLogs()

	engineCfg, err := config.GetEngineConfig()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	storageBackend, err = createStorageBackend(config.GetStorageConfig(), zlog)
	if err != nil {
		return err
	}
	if err := storageBackend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	defer func() {
		if err := storageBackend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
	}()

	recorders = createRecorders(zlog)
	defer func() {
		for _, r := range recorders {
			if err := r.Close(); err != nil {
				Logger.Warn("Failed to close recorder", "error", err)
			}
		}
	}()

	eventDispatcher, err = dispatcher.New(logging.NewCommandLogger(zlog))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	workerManager, err = newWorkerManager(engineCfg, storageBackend, recorders)
	if err != nil {
		return err
	}
	workerManager.RegisterHandlers(eventDispatcher)
	registerLifecycleHandlers(eventDispatcher)
	Logger.Info("Command handlers registered", "commands", eventDispatcher.Commands())

	seedMode := "crypto"
	if engineCfg.Seed != 0 {
		seedMode = "fixed"
	}
	sessionAttrs := []slog.Attr{
		slog.String("storage", config.GetStorageConfig().Type),
		slog.String("seedMode", seedMode),
	}
	SlogManager.SetContextProvider(func() []slog.Attr {
		return append([]slog.Attr{slog.Int("engagements", workerManager.Engagements())}, sessionAttrs...)
	})

	monitorService = monitor.NewService(monitor.Dependencies{
		DB:            backendDB(storageBackend),
		Logger:        Logger,
		WorkerManager: workerManager,
		Dropped:       streamDropped,
		Outcomes:      commandOutcomes,
		StatusPath:    filepath.Join(config.GetString("logsDir"), "status.txt"),
	})
	if err := monitorService.Start(); err != nil {
		Logger.Warn("Failed to start status monitor", "error", err)
	}
	defer monitorService.Stop()

	Logger.Info("Ready", "version", CurrentVersion, "log", LogFilePath, "logToFile", logFile != nil)
	return serve(eventDispatcher, in, out)
}

// setupLogging opens the session log file, the optional GELF sink and the
// optional OTel provider, and rebuilds the slog logger over them.
func setupLogging(level string) (io.Writer, zerolog.Logger, func()) {
	var (
		logFile io.Writer
		sinks   []io.Writer
		closers []func()
	)

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		Logger.Error("Failed to create logs directory", "error", err, "path", logsDir)
	} else {
		LogFilePath = logging.LogFilePath(logsDir, ServiceName, SessionStartTime)
		f, err := os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		} else {
			logFile = f
			closers = append(closers, func() { f.Close() })
		}
	}

	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGELFWriter(gl.Address)
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err, "address", gl.Address)
		} else {
			sinks = append(sinks, w)
			closers = append(closers, func() { w.Close() })
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		p, err := intOtel.New(intOtel.FromConfig(otelCfg, CurrentVersion, logFile))
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			OTelProvider = p
			otelLogProvider = p.LoggerProvider()
			p.InstallGlobal()
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	SlogManager.Setup(logFile, level, otelLogProvider, sinks...)
	Logger = SlogManager.Logger()
	zlog := logging.NewZerolog(logFile, level, sinks...)

	return logFile, zlog, func() {
		if OTelProvider != nil {
			ctx, cancel := context.WithTimeout(appCtx, 5*time.Second)
			defer cancel()
			if err := OTelProvider.Shutdown(ctx); err != nil {
				Logger.Warn("Failed to shut down OTel provider", "error", err)
			}
		}
		_ = SlogManager.Flush(appCtx)
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

// newWorkerManager builds the engine components from configuration.
func newWorkerManager(cfg config.EngineConfig, backend storage.Backend, recorders []storage.Recorder) (*worker.Manager, error) {
	ledger, err := progression.NewLedger(cfg.MaxLevel)
	if err != nil {
		return nil, fmt.Errorf("progression ledger: %w", err)
	}

	rules := equipment.DefaultRules()
	for src, sc := range cfg.Sources {
		rules[src] = equipment.SourceRule{
			MinTier:     core.Quality(sc.MinTier),
			MaxTier:     core.Quality(sc.MaxTier),
			Weights:     sc.Weights,
			SetChance:   sc.SetChance,
			RequireSlot: sc.RequireSlot,
		}
	}
	sets := core.NewSetCatalog(cfg.Sets...)
	gen, err := equipment.NewGenerator(equipment.Config{
		MaxLevel: cfg.MaxEquipLevel,
		Rules:    rules,
		Sets:     sets,
	})
	if err != nil {
		return nil, fmt.Errorf("equipment generator: %w", err)
	}

	for _, npc := range cfg.NPCs {
		if _, err := npc.Lineup(); err != nil {
			return nil, fmt.Errorf("npc %s: %w", npc.ID, err)
		}
	}

	deps := worker.Dependencies{
		Logger:    Logger,
		Generator: gen,
		Ledger:    ledger,
		Sets:      sets,
		NPCs:      cfg.NPCs,
		Recorders: recorders,
		Locks:     cache.NewAccountLocks(),
		Seed:      cfg.Seed,
	}
	if cfg.Seed != 0 {
		// a fixed seed replays one sequence across the whole session
		deps.RNG = random.NewLocked(random.New(cfg.Seed))
	}
	return worker.NewManager(deps, backend), nil
}

func registerLifecycleHandlers(d *dispatcher.Dispatcher) {
	d.Register(":VERSION:", func(e dispatcher.Event) (any, error) {
		return []string{CurrentVersion, BuildDate}, nil
	})

	d.Register(":GETDIR:LOG:", func(e dispatcher.Event) (any, error) {
		return LogFilePath, nil
	})

	d.Register(":LOGLEVEL:", func(e dispatcher.Event) (any, error) {
		var p struct {
			Level string `json:"level"`
		}
		if len(e.Payload) > 0 {
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return nil, &core.ValidationError{Field: "payload", Reason: err.Error()}
			}
		}
		if p.Level != "" {
			if err := SlogManager.SetLevel(p.Level); err != nil {
				return nil, &core.ValidationError{Field: "level", Reason: err.Error()}
			}
			Logger.Info("Log level changed", "level", SlogManager.Level().String())
		}
		return SlogManager.Level().String(), nil
	})

	d.Register(":FLUSH:", func(e dispatcher.Event) (any, error) {
		if f, ok := storageBackend.(interface{ Flush() error }); ok {
			if err := f.Flush(); err != nil {
				return nil, err
			}
		}
		if OTelProvider != nil {
			ctx, cancel := context.WithTimeout(appCtx, 5*time.Second)
			defer cancel()
			if err := OTelProvider.Flush(ctx); err != nil {
				Logger.Warn("Failed to flush OTel data", "error", err)
			}
		}
		return "ok", nil
	}, dispatcher.Logged(), dispatcher.Exclusive())
}

// backendDB exposes the SQL connection of GORM-backed storage to the monitor.
func backendDB(b storage.Backend) *gorm.DB {
	if d, ok := b.(interface{ DB() *gorm.DB }); ok {
		return d.DB()
	}
	return nil
}

func commandOutcomes() map[string]int64 {
	if OTelProvider == nil {
		return nil
	}
	out, err := OTelProvider.CommandOutcomes(appCtx)
	if err != nil {
		Logger.Debug("Failed to collect command metrics", "error", err)
		return nil
	}
	return out
}

func streamDropped() int64 {
	if streamPublisher == nil {
		return 0
	}
	return streamPublisher.Dropped()
}
