package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"

	"github.com/ironbanner/battlecore/internal/config"
	"github.com/ironbanner/battlecore/internal/dispatcher"
)

func TestFromConfig_DefaultsBatchTimeout(t *testing.T) {
	var buf bytes.Buffer
	cfg := FromConfig(config.OTelConfig{Enabled: true, ServiceName: "battlecore"}, "1.2.0", &buf)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "battlecore", cfg.ServiceName)
	assert.Equal(t, "1.2.0", cfg.ServiceVersion)
	assert.Equal(t, DefaultBatchTimeout, cfg.BatchTimeout)
	assert.Same(t, &buf, cfg.LogWriter)

	cfg = FromConfig(config.OTelConfig{BatchTimeout: time.Second}, "", nil)
	assert.Equal(t, time.Second, cfg.BatchTimeout)
}

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NotNil(t, p.Meter("test"))
	p.InstallGlobal()

	outcomes, err := p.CommandOutcomes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outcomes)

	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutSinks(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "battlecore"})
	assert.Error(t, err)

	_, err = New(Config{Enabled: true, LogWriter: &bytes.Buffer{}})
	assert.Error(t, err, "service name required")
}

func TestNew_WritesLogsToWriter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{Enabled: true, ServiceName: "battlecore", ServiceVersion: "1.2.0", BatchTimeout: time.Second, LogWriter: &buf})
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())

	var rec otellog.Record
	rec.SetBody(otellog.StringValue("engagement applied"))
	p.LoggerProvider().Logger("test").Emit(context.Background(), rec)

	require.NoError(t, p.Flush(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "engagement applied")
	assert.Contains(t, buf.String(), "battlecore")
	assert.Contains(t, buf.String(), "1.2.0")
}

func TestCommandOutcomes(t *testing.T) {
	p, err := New(Config{Enabled: true, ServiceName: "battlecore", LogWriter: &bytes.Buffer{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	ctx := context.Background()
	counter, err := p.Meter("test").Int64Counter(dispatcher.CommandsMetric)
	require.NoError(t, err)
	add := func(cmd, outcome string, n int64) {
		counter.Add(ctx, n, metric.WithAttributes(attribute.String("command", cmd), attribute.String("outcome", outcome)))
	}
	add(":ENGAGE:", "ok", 3)
	add(":ENGAGE:", "conflict", 1)
	add(":CRAFT:", "ok", 2)
	add(":CRAFT:", "validation", 4)

	other, err := p.Meter("test").Int64Counter("unrelated")
	require.NoError(t, err)
	other.Add(ctx, 100)

	outcomes, err := p.CommandOutcomes(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"ok": 5, "conflict": 1, "validation": 4}, outcomes)
}
