package dispatcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ironbanner/battlecore/pkg/core"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.record("DEBUG", msg, keysAndValues)
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.record("INFO", msg, keysAndValues)
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.record("ERROR", msg, keysAndValues)
}

func (l *testLogger) record(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *testLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func TestDispatcher_PassesPayload(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register(":AGGREGATE:", func(e Event) (any, error) {
		got = e
		return "result", nil
	})

	payload := json.RawMessage(`{"combatantId":"c1"}`)
	result, err := d.Dispatch(Event{Command: ":AGGREGATE:", Payload: payload, RequestID: "r1"})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "result" {
		t.Errorf("expected 'result', got %v", result)
	}
	if string(got.Payload) != string(payload) || got.RequestID != "r1" {
		t.Errorf("handler saw %+v", got)
	}
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Event{Command: ":UNKNOWN:"})

	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if !strings.Contains(err.Error(), ":UNKNOWN:") {
		t.Errorf("error should name the command: %v", err)
	}
}

func TestDispatcher_PanicBecomesInternalError(t *testing.T) {
	d, logger := newTestDispatcher(t)
	d.Register(":BROKEN:", func(Event) (any, error) {
		var m map[string]int
		m["x"] = 1
		return nil, nil
	})

	result, err := d.Dispatch(Event{Command: ":BROKEN:"})

	if err == nil || result != nil {
		t.Fatalf("expected error and nil result, got %v, %v", result, err)
	}
	if Classify(err) != OutcomeInternal {
		t.Errorf("expected internal outcome, got %s", Classify(err))
	}
	if logger.count("ERROR: handler panicked") != 1 {
		t.Error("panic was not logged")
	}
}

func TestDispatcher_ExclusiveSerializesCalls(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var inside, maxInside atomic.Int32
	d.Register(":FLUSH:", func(Event) (any, error) {
		n := inside.Add(1)
		for {
			m := maxInside.Load()
			if n <= m || maxInside.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inside.Add(-1)
		return nil, nil
	}, Exclusive())

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Dispatch(Event{Command: ":FLUSH:"})
		}()
	}
	wg.Wait()

	if maxInside.Load() != 1 {
		t.Errorf("expected one call at a time, saw %d", maxInside.Load())
	}
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":LOGGED:", func(e Event) (any, error) {
		return "ok", nil
	}, Logged())

	if _, err := d.Dispatch(Event{Command: ":LOGGED:"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if logger.count("DEBUG: handling command") != 1 || logger.count("DEBUG: command complete") != 1 {
		t.Errorf("expected start and completion debug logs, got %v", logger.messages)
	}
}

func TestDispatcher_LoggedHandlerLevels(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":REJECT:", func(Event) (any, error) {
		return nil, &core.ValidationError{Field: "level", Reason: "too high"}
	}, Logged())
	d.Register(":FAIL:", func(Event) (any, error) {
		return nil, errors.New("disk full")
	}, Logged())

	_, _ = d.Dispatch(Event{Command: ":REJECT:"})
	if logger.count("ERROR") != 0 || logger.count("DEBUG: command rejected") != 1 {
		t.Errorf("validation failure should log at debug, got %v", logger.messages)
	}

	_, _ = d.Dispatch(Event{Command: ":FAIL:"})
	if logger.count("ERROR: command failed") != 1 {
		t.Errorf("internal failure should log at error, got %v", logger.messages)
	}
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(":EXISTS:", func(e Event) (any, error) {
		return nil, nil
	})

	if !d.HasHandler(":EXISTS:") {
		t.Error("expected HasHandler to return true for registered command")
	}
	if d.HasHandler(":NOTEXISTS:") {
		t.Error("expected HasHandler to return false for unregistered command")
	}
}

func TestDispatcher_RegisterReplaces(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(":CMD:", func(Event) (any, error) { return 1, nil })
	d.Register(":CMD:", func(Event) (any, error) { return 2, nil }, Logged(), Exclusive())

	result, err := d.Dispatch(Event{Command: ":CMD:"})
	if err != nil || result != 2 {
		t.Errorf("expected replaced handler result 2, got %v, %v", result, err)
	}
	if len(d.Commands()) != 1 {
		t.Errorf("expected one command, got %v", d.Commands())
	}
}
