package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// consoleOut receives console logs. Stdout carries command results, so
// console logging goes to stderr.
var consoleOut io.Writer = os.Stderr

// ServiceName is the instrumentation scope of the OTel log bridge.
const ServiceName = "battlecore"

// SlogManager owns the engine's slog logger. The level and the context
// attributes can change after Setup.
type SlogManager struct {
	logger      *slog.Logger
	level       slog.LevelVar
	logProvider *sdklog.LoggerProvider
	context     atomic.Pointer[ContextProvider]
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// SetContextProvider attaches runtime attributes to every later record.
// A nil provider removes them.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	if p == nil {
		m.context.Store(nil)
		return
	}
	m.context.Store(&p)
}

func (m *SlogManager) contextProvider() ContextProvider {
	if p := m.context.Load(); p != nil {
		return *p
	}
	return nil
}

// ParseLevel reads a level name such as "debug" or "WARN". An empty name is
// info.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if strings.TrimSpace(level) == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", level, err)
	}
	return l, nil
}

// SetLevel changes the minimum level of the slog logger.
func (m *SlogManager) SetLevel(level string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}
	m.level.Set(l)
	return nil
}

// Level returns the current minimum level.
func (m *SlogManager) Level() slog.Level {
	return m.level.Level()
}

// Setup initializes the logging system with file and optional OTel output.
// Console output is used only when file is nil. Each sink, such as a GELF
// writer, receives JSON records. If provider is nil, OTel logging is disabled.
// An unknown level name falls back to info.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, sinks ...io.Writer) {
	lvl, err := ParseLevel(level)
	m.level.Set(lvl)
	m.logProvider = provider

	opts := &slog.HandlerOptions{
		Level: &m.level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	out := file
	if out == nil {
		out = consoleOut
	}
	handlers := []slog.Handler{slog.NewTextHandler(out, opts)}
	for _, w := range sinks {
		if w != nil {
			handlers = append(handlers, slog.NewJSONHandler(w, opts))
		}
	}
	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider)))
	}

	m.logger = slog.New(newFanout(m.contextProvider, handlers...))
	if err != nil {
		m.logger.Warn("Unknown log level, using info", "level", level)
	}
	m.logger.Info("Logging initialized", "level", m.level.Level().String())
}

// Logger returns the configured slog.Logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
