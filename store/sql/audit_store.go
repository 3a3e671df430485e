package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuditStore is the append-only ledger of callback attempts. Rows are never
// updated or deleted.
type AuditStore struct {
	db   *bun.DB
	repo repository.Repository[*callbackAttemptRecord]
}

func (s *AuditStore) Append(ctx context.Context, attempt core.CallbackAttempt) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: audit store is not configured")
	}
	record := newCallbackAttemptRecord(attempt)
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now().UTC()
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *AuditStore) ListByIntegration(ctx context.Context, tenantID, integrationID core.ObjectID, limit int) ([]core.CallbackAttempt, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: audit store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []*callbackAttemptRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.tenant_id = ?", tenantID.String()).
		Where("?TableAlias.integration_id = ?", integrationID.String()).
		OrderExpr("?TableAlias.occurred_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return attemptRecordsToDomain(records), nil
}

// ListFlagged returns recent attempts that carried at least one security
// issue, newest first.
func (s *AuditStore) ListFlagged(ctx context.Context, since time.Time, limit int) ([]core.CallbackAttempt, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: audit store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []*callbackAttemptRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.occurred_at >= ?", since.UTC()).
		Where("?TableAlias.security_issues != ?", "[]").
		OrderExpr("?TableAlias.occurred_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return attemptRecordsToDomain(records), nil
}

func attemptRecordsToDomain(records []*callbackAttemptRecord) []core.CallbackAttempt {
	out := make([]core.CallbackAttempt, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out
}
