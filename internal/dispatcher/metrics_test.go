package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ironbanner/battlecore/pkg/core"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestDispatcher_RecordsOutcomes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	d, err := NewWithMeter(&testLogger{}, provider.Meter("test"))
	require.NoError(t, err)

	d.Register(":OK:", func(Event) (any, error) { return "ok", nil })
	d.Register(":DUP:", func(Event) (any, error) { return nil, fmt.Errorf("battle b1: %w", core.ErrConflict) })

	_, err = d.Dispatch(Event{Command: ":OK:"})
	require.NoError(t, err)
	for range 2 {
		_, err = d.Dispatch(Event{Command: ":DUP:"})
		require.Error(t, err)
	}

	data := collect(t, reader)

	commands, ok := data["battlecore.commands"].(metricdata.Sum[int64])
	require.True(t, ok, "commands counter missing")
	got := make(map[string]int64)
	for _, dp := range commands.DataPoints {
		cmd, _ := dp.Attributes.Value("command")
		outcome, _ := dp.Attributes.Value("outcome")
		got[cmd.AsString()+"/"+outcome.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{":OK:/ok": 1, ":DUP:/conflict": 2}, got)

	hist, ok := data["battlecore.command.duration"].(metricdata.Histogram[float64])
	require.True(t, ok, "duration histogram missing")
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)

	inflight, ok := data["battlecore.commands.inflight"].(metricdata.Sum[int64])
	require.True(t, ok, "inflight counter missing")
	for _, dp := range inflight.DataPoints {
		assert.Zero(t, dp.Value)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{&core.ValidationError{Field: "level"}, OutcomeValidation},
		{fmt.Errorf("wrapped: %w", &core.ValidationError{Field: "slot"}), OutcomeValidation},
		{fmt.Errorf("%w: :X:", ErrUnknownCommand), OutcomeValidation},
		{&core.NotFoundError{Kind: "combatant", ID: "c1"}, OutcomeNotFound},
		{fmt.Errorf("battle b1: %w", core.ErrConflict), OutcomeConflict},
		{errors.New("disk full"), OutcomeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}

func TestDispatcher_Commands(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register(":B:", func(Event) (any, error) { return nil, nil })
	d.Register(":A:", func(Event) (any, error) { return nil, nil })

	assert.Equal(t, []string{":A:", ":B:"}, d.Commands())
}
