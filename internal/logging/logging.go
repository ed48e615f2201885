package logging

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, serviceName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", serviceName, sessionStart.Format("20060102_150405")),
	)
}

// ZerologLevel maps a config level name to a zerolog level.
func ZerologLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewZerolog builds the logger used by storage and the dispatcher. The file
// gets console format without colors; every sink gets raw JSON.
func NewZerolog(file io.Writer, level string, sinks ...io.Writer) zerolog.Logger {
	writers := make([]io.Writer, 0, len(sinks)+1)
	if file == nil {
		file = consoleOut
	}
	writers = append(writers, zerolog.ConsoleWriter{
		Out:        file,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	})
	for _, w := range sinks {
		if w != nil {
			writers = append(writers, w)
		}
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ZerologLevel(level)).
		With().Timestamp().Logger()
}

// NewGELFWriter dials a Graylog UDP input. Each write becomes one GELF message.
func NewGELFWriter(addr string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("graylog %s: %w", addr, err)
	}
	w.Facility = ServiceName
	return w, nil
}
