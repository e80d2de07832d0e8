package app

import (
	"context"
	"time"

	"github.com/bookpay/settlement-service/internal/domain"
	"go.uber.org/zap"
)

// SecurityEventWriter persists audit rows.
type SecurityEventWriter interface {
	InsertSecurityEvent(ctx context.Context, event *domain.SecurityEvent) error
}

// AuditLogger appends security events. Writes never fail the caller: an error is logged and
// dropped, and the write outlives a cancelled request context.
type AuditLogger struct {
	writer  SecurityEventWriter
	logger  *zap.Logger
	timeout time.Duration
}

func NewAuditLogger(writer SecurityEventWriter, logger *zap.Logger) *AuditLogger {
	return &AuditLogger{
		writer:  writer,
		logger:  logger.Named("audit"),
		timeout: 5 * time.Second,
	}
}

// Log records one security event.
func (a *AuditLogger) Log(ctx context.Context, eventType, description string, severity domain.Severity, metadata map[string]interface{}) {
	if a == nil || a.writer == nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	event := &domain.SecurityEvent{
		EventType:   eventType,
		Description: description,
		Severity:    severity,
		Metadata:    metadata,
	}
	if err := a.writer.InsertSecurityEvent(writeCtx, event); err != nil {
		a.logger.Error("failed to write security event",
			zap.String("event_type", eventType),
			zap.String("severity", string(severity)),
			zap.Error(err),
		)
		return
	}

	fields := []zap.Field{zap.String("event_type", eventType), zap.String("severity", string(severity))}
	switch severity {
	case domain.SeverityCritical, domain.SeverityError:
		a.logger.Error(description, fields...)
	case domain.SeverityWarning:
		a.logger.Warn(description, fields...)
	default:
		a.logger.Info(description, fields...)
	}
}
