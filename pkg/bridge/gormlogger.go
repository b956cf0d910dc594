package bridge

import (
	"context"
	"log/slog"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/attaradev/jetstream-bridge/pkg/logger"
)

// slogGormLogger adapts gorm's logger.Interface to the module's slog-based
// logger, so outbox/inbox queries show up in the same structured log
// stream as everything else rather than gorm's own stdlib-log default.
type slogGormLogger struct {
	slowThreshold time.Duration
}

func newGormLogger() gormlogger.Interface {
	return &slogGormLogger{slowThreshold: 200 * time.Millisecond}
}

func (l *slogGormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return l
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	logger.L().InfoContext(ctx, msg, "args", args)
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	logger.L().WarnContext(ctx, msg, "args", args)
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	logger.L().ErrorContext(ctx, msg, "args", args)
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	attrs := []interface{}{"sql", sql, "rows", rows, "elapsed", elapsed}
	switch {
	case err != nil:
		logger.L().ErrorContext(ctx, "gorm query failed", append(attrs, "error", err)...)
	case elapsed > l.slowThreshold:
		logger.L().WarnContext(ctx, "slow gorm query", attrs...)
	default:
		logger.L().Log(ctx, slog.LevelDebug, "gorm query", attrs...)
	}
}
