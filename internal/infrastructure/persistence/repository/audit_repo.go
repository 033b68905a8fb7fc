package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// AuditRepository implements port.AuditRepository
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit log repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an audit entry
func (r *AuditRepository) Create(ctx context.Context, entry *entity.AuditEntry) error {
	query := `
		INSERT INTO audit_logs (
			company_id, entity_type, entity_id, action, actor_id,
			before_state, after_state, details, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		entry.CompanyID,
		entry.EntityType,
		entry.EntityID,
		entry.Action,
		entry.ActorID,
		entry.BeforeState,
		entry.AfterState,
		entry.Details,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create audit entry",
			zap.String("action", entry.Action),
			zap.Int64("entity_id", entry.EntityID),
			zap.Error(err))
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

// ListByEntity returns the entries of one entity, oldest first
func (r *AuditRepository) ListByEntity(ctx context.Context, companyID int64, entityType string, entityID int64) ([]*entity.AuditEntry, error) {
	query := `
		SELECT id, company_id, entity_type, entity_id, action, actor_id,
			before_state, after_state, details, created_at
		FROM audit_logs
		WHERE company_id = ? AND entity_type = ? AND entity_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, companyID, entityType, entityID)
	if err != nil {
		r.logger.Error("Failed to list audit entries",
			zap.String("entity_type", entityType),
			zap.Int64("entity_id", entityID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.AuditEntry
	for rows.Next() {
		var e entity.AuditEntry
		if err := rows.Scan(
			&e.ID,
			&e.CompanyID,
			&e.EntityType,
			&e.EntityID,
			&e.Action,
			&e.ActorID,
			&e.BeforeState,
			&e.AfterState,
			&e.Details,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// getExecutor returns appropriate executor based on context
func (r *AuditRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.Conn(ctx, r.db)
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
