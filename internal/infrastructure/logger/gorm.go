package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowThreshold = 200 * time.Millisecond

// GormLogger routes GORM statement logs to zap, tagged with the request,
// tenant and correlation ids carried by the context. Not-found lookups are
// expected in the command path and are never logged.
type GormLogger struct {
	logger        *zap.Logger
	logLevel      gormlogger.LogLevel
	slowThreshold time.Duration
}

// GormLoggerOption configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the duration above which a statement is logged as
// slow. Zero disables slow statement logging.
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) { l.slowThreshold = threshold }
}

func NewGormLogger(base *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	l := &GormLogger{
		logger:        base.Named("gorm").WithOptions(zap.AddCallerSkip(3)),
		logLevel:      level,
		slowThreshold: defaultSlowThreshold,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.logLevel = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) printf(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []any) {
	if l.logLevel < min {
		return
	}
	l.logger.With(contextFields(ctx)...).Sugar().Logf(level, msg, data...)
}

// Trace logs failed statements at Error, slow ones at Warn and, when the
// level is Info, every statement at Debug.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var (
		msg   string
		level zapcore.Level
		extra []zap.Field
	)
	switch {
	case err != nil && l.logLevel >= gormlogger.Error:
		if errors.Is(err, gormlogger.ErrRecordNotFound) {
			return
		}
		msg, level, extra = "sql failed", zapcore.ErrorLevel, []zap.Field{zap.Error(err)}
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.logLevel >= gormlogger.Warn:
		msg, level, extra = "slow sql", zapcore.WarnLevel, []zap.Field{zap.Duration("threshold", l.slowThreshold)}
	case l.logLevel >= gormlogger.Info:
		msg, level = "sql", zapcore.DebugLevel
	default:
		return
	}

	stmt, rows := fc()
	fields := append([]zap.Field{
		zap.String("statement", stmt),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	}, extra...)
	fields = append(fields, contextFields(ctx)...)
	l.logger.Log(level, msg, fields...)
}

func contextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := GetTenantID(ctx); id != "" {
		fields = append(fields, zap.String("tenant_id", id))
	}
	if id := GetCorrelationID(ctx); id != "" {
		fields = append(fields, zap.String("correlation_id", id))
	}
	return fields
}

// GormLevel maps an application log level name to a GORM level. Only debug
// prints every statement.
func GormLevel(level string) gormlogger.LogLevel {
	switch ParseLevel(level) {
	case zapcore.DebugLevel:
		return gormlogger.Info
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return gormlogger.Error
	default:
		return gormlogger.Warn
	}
}
