// Package dispatcher routes engine commands to their handlers. Each dispatch
// is classified by outcome and recorded on an OTel meter.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ironbanner/battlecore/pkg/core"
)

const instrumentationName = "github.com/ironbanner/battlecore/internal/dispatcher"

// CommandsMetric counts dispatched commands by command and outcome.
const CommandsMetric = "battlecore.commands"

// ErrUnknownCommand is returned by Dispatch for commands with no handler.
var ErrUnknownCommand = errors.New("unknown command")

// Outcomes reported by Classify.
const (
	OutcomeOK         = "ok"
	OutcomeValidation = "validation"
	OutcomeNotFound   = "not_found"
	OutcomeConflict   = "conflict"
	OutcomeInternal   = "internal"
)

// Classify maps a handler error to its outcome.
func Classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case core.IsValidation(err), errors.Is(err, ErrUnknownCommand):
		return OutcomeValidation
	case core.IsNotFound(err):
		return OutcomeNotFound
	case errors.Is(err, core.ErrConflict):
		return OutcomeConflict
	default:
		return OutcomeInternal
	}
}

// Event is one incoming command. Payload is the raw JSON argument, empty
// for commands that take none.
type Event struct {
	Command   string
	Payload   json.RawMessage
	RequestID string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	logged    bool
	exclusive bool
}

// Logged adds debug logging to the handler. Failures are logged at error
// level, except validation failures which stay at debug.
func Logged() Option {
	return func(o *options) {
		o.logged = true
	}
}

// Exclusive runs at most one call of the handler at a time.
func Exclusive() Option {
	return func(o *options) {
		o.exclusive = true
	}
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   Logger

	commands metric.Int64Counter
	inflight metric.Int64UpDownCounter
	duration metric.Float64Histogram
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	return NewWithMeter(logger, otel.Meter(instrumentationName))
}

// NewWithMeter creates a Dispatcher recording metrics on m.
func NewWithMeter(logger Logger, m metric.Meter) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}

	var err error
	d.commands, err = m.Int64Counter(
		CommandsMetric,
		metric.WithDescription("Commands dispatched, by command and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating commands counter: %w", err)
	}

	d.inflight, err = m.Int64UpDownCounter(
		"battlecore.commands.inflight",
		metric.WithDescription("Commands currently being handled"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating inflight counter: %w", err)
	}

	d.duration, err = m.Float64Histogram(
		"battlecore.command.duration",
		metric.WithDescription("Handler duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given command, replacing any previous one.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	handler := h
	if o.exclusive {
		handler = withLock(handler)
	}
	if o.logged {
		handler = d.withLogging(command, handler)
	}

	d.mu.Lock()
	d.handlers[command] = handler
	d.mu.Unlock()
}

// Dispatch routes an event to its registered handler. A panicking handler
// is reported as an internal error.
func (d *Dispatcher) Dispatch(e Event) (result any, err error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}

	ctx := context.Background()
	cmdAttr := attribute.String("command", e.Command)
	d.inflight.Add(ctx, 1, metric.WithAttributes(cmdAttr))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("command %s panicked: %v", e.Command, r)
			d.logger.Error("handler panicked", "command", e.Command, "requestId", e.RequestID, "panic", r)
		}
		d.inflight.Add(ctx, -1, metric.WithAttributes(cmdAttr))
		d.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, metric.WithAttributes(cmdAttr))
		d.commands.Add(ctx, 1, metric.WithAttributes(cmdAttr, attribute.String("outcome", Classify(err))))
	}()

	return h(e)
}

// Commands lists the registered commands in sorted order.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.handlers))
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

func withLock(h HandlerFunc) HandlerFunc {
	var mu sync.Mutex
	return func(e Event) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		return h(e)
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling command", "command", command, "requestId", e.RequestID, "payloadBytes", len(e.Payload))

		result, err := h(e)

		switch outcome := Classify(err); outcome {
		case OutcomeOK:
			d.logger.Debug("command complete", "command", command, "requestId", e.RequestID, "duration", time.Since(start))
		case OutcomeInternal:
			d.logger.Error("command failed", "command", command, "requestId", e.RequestID, "duration", time.Since(start), "error", err)
		default:
			d.logger.Debug("command rejected", "command", command, "requestId", e.RequestID, "outcome", outcome, "error", err)
		}
		return result, err
	}
}
