package service

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

type auditRecorder struct {
	repo   port.AuditRepository
	logger Logger
}

// NewAuditRecorder returns an AuditSink that appends entries to the audit
// log. Write failures are logged and swallowed so a committed transition is
// never reported as failed.
func NewAuditRecorder(repo port.AuditRepository, logger Logger) port.AuditSink {
	return &auditRecorder{repo: repo, logger: logger}
}

func (a *auditRecorder) Record(ctx context.Context, entry *entity.AuditEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := a.repo.Create(ctx, entry); err != nil {
		a.logger.Error("Failed to write audit entry",
			"error", err,
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
		)
	}
}
