package importer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

// auditLog accumulates the human-readable run log and mirrors it to zap.
type auditLog struct {
	result *models.ImportResult
	logger *zap.Logger
}

func (l *auditLog) add(level models.LogLevel, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.result.Log = append(l.result.Log, models.LogEntry{Level: level, Message: msg})
	switch level {
	case models.LogError:
		l.logger.Warn(msg)
	default:
		l.logger.Debug(msg, zap.String("level", string(level)))
	}
}

func (l *auditLog) infof(format string, args ...interface{}) {
	l.add(models.LogInfo, format, args...)
}

func (l *auditLog) warnf(format string, args ...interface{}) {
	l.add(models.LogWarning, format, args...)
}

func (l *auditLog) errorf(format string, args ...interface{}) {
	l.add(models.LogError, format, args...)
}
