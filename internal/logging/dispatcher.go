package logging

import "github.com/rs/zerolog"

// CommandLogger adapts zerolog to the dispatcher's Logger interface. Every
// entry carries component=dispatcher.
type CommandLogger struct {
	logger zerolog.Logger
}

// NewCommandLogger wraps logger.
func NewCommandLogger(logger zerolog.Logger) *CommandLogger {
	return &CommandLogger{logger: logger.With().Str("component", "dispatcher").Logger()}
}

func (l *CommandLogger) Debug(msg string, keysAndValues ...any) {
	write(l.logger.Debug(), msg, keysAndValues)
}

func (l *CommandLogger) Info(msg string, keysAndValues ...any) {
	write(l.logger.Info(), msg, keysAndValues)
}

func (l *CommandLogger) Error(msg string, keysAndValues ...any) {
	write(l.logger.Error(), msg, keysAndValues)
}

// write adds the pairs to ev. An error value is written with Err so it
// lands under zerolog's error field; a pair with a non-string key and a
// dangling key are dropped.
func write(ev *zerolog.Event, msg string, kv []any) {
	if ev == nil {
		return
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		if err, isErr := kv[i+1].(error); isErr && key == "error" {
			ev = ev.Err(err)
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}
