package telemetry

import (
	"context"
	"testing"

	"github.com/erp/ledgercore/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Meter("test"))

	base := zap.NewNop()
	assert.Same(t, base, p.BridgeLogger(base))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProviders_NilReceiver(t *testing.T) {
	var p *Providers
	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Meter("test"))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestMinLevelCore(t *testing.T) {
	inner, recorded := observer.New(zapcore.DebugLevel)
	core := &minLevelCore{Core: inner, min: zapcore.InfoLevel}
	log := zap.New(core).With(zap.String("tenant_id", "t-1"))

	log.Debug("dropped")
	log.Info("kept")
	log.Error("kept too")

	assert.Equal(t, 2, recorded.Len())
	assert.False(t, core.Enabled(zapcore.DebugLevel))
	assert.Equal(t, "t-1", recorded.All()[0].ContextMap()["tenant_id"])
}
