package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func sqlFn(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_LogMode(t *testing.T) {
	gl := NewGormLogger(zap.NewNop(), gormlogger.Info)
	changed, ok := gl.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Info, gl.logLevel)
	assert.Equal(t, gormlogger.Warn, changed.logLevel)
}

func TestGormLogger_Trace(t *testing.T) {
	ctx := WithCorrelationID(WithTenantID(WithRequestID(context.Background(), "req-1"), "tenant-1"), "corr-1")

	t.Run("error is logged with ids", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Warn)

		gl.Trace(ctx, time.Now(), sqlFn("INSERT INTO journal_entries", 0), errors.New("duplicate key"))

		entries := recorded.FilterMessage("sql failed").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "tenant-1", fields["tenant_id"])
		assert.Equal(t, "corr-1", fields["correlation_id"])
		assert.Equal(t, "INSERT INTO journal_entries", fields["statement"])
	})

	t.Run("record not found is ignored", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Warn)

		gl.Trace(ctx, time.Now(), sqlFn("SELECT 1", 0), gormlogger.ErrRecordNotFound)
		assert.Zero(t, recorded.Len())
	})

	t.Run("slow statement warns", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Warn, WithSlowThreshold(10*time.Millisecond))

		gl.Trace(ctx, time.Now().Add(-time.Second), sqlFn("SELECT * FROM stock_moves", 3), nil)

		entries := recorded.FilterMessage("slow sql").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	})

	t.Run("fast statement only at info", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		NewGormLogger(zap.New(core), gormlogger.Warn).Trace(ctx, time.Now(), sqlFn("SELECT 1", 1), nil)
		assert.Zero(t, recorded.Len())

		NewGormLogger(zap.New(core), gormlogger.Info).Trace(ctx, time.Now(), sqlFn("SELECT 1", 1), nil)
		assert.Equal(t, 1, recorded.FilterMessage("sql").Len())
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		gl := NewGormLogger(zap.New(core), gormlogger.Silent)
		gl.Trace(ctx, time.Now(), sqlFn("SELECT 1", 1), errors.New("boom"))
		assert.Zero(t, recorded.Len())
	})
}

func TestGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Info, GormLevel("debug"))
	assert.Equal(t, gormlogger.Warn, GormLevel("info"))
	assert.Equal(t, gormlogger.Warn, GormLevel("warn"))
	assert.Equal(t, gormlogger.Error, GormLevel("error"))
	assert.Equal(t, gormlogger.Error, GormLevel("fatal"))
}
