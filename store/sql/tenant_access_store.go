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

// TenantAccessStore answers membership questions from the tenant_members
// table. A revoked row stops counting the moment revoked_at is set.
type TenantAccessStore struct {
	db   *bun.DB
	repo repository.Repository[*tenantMemberRecord]
}

func (s *TenantAccessStore) HasAccess(ctx context.Context, userID, tenantID core.ObjectID) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: tenant access store is not configured")
	}
	count, err := s.db.NewSelect().
		Model((*tenantMemberRecord)(nil)).
		Where("?TableAlias.user_id = ?", userID.String()).
		Where("?TableAlias.tenant_id = ?", tenantID.String()).
		Where("?TableAlias.revoked_at IS NULL").
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Grant records a membership. Granting an already-revoked membership clears
// the revocation instead of inserting a second row.
func (s *TenantAccessStore) Grant(ctx context.Context, userID, tenantID core.ObjectID, role string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: tenant access store is not configured")
	}
	if err := userID.Validate(); err != nil {
		return err
	}
	if err := tenantID.Validate(); err != nil {
		return err
	}
	role = strings.TrimSpace(role)
	if role == "" {
		role = "member"
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &tenantMemberRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.user_id = ?", userID.String()).
			Where("?TableAlias.tenant_id = ?", tenantID.String()).
			Limit(1).
			Scan(ctx)
		if err == nil {
			record.Role = role
			record.RevokedAt = nil
			_, err = tx.NewUpdate().Model(record).Column("role", "revoked_at").Where("id = ?", record.ID).Exec(ctx)
			return err
		}
		if !isNoRows(err) {
			return err
		}

		record = &tenantMemberRecord{
			ID:        uuid.NewString(),
			TenantID:  tenantID.String(),
			UserID:    userID.String(),
			Role:      role,
			CreatedAt: now,
		}
		_, err = tx.NewInsert().Model(record).Exec(ctx)
		return err
	})
}

func (s *TenantAccessStore) Revoke(ctx context.Context, userID, tenantID core.ObjectID) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: tenant access store is not configured")
	}
	now := time.Now().UTC()
	_, err := s.db.NewUpdate().
		Model((*tenantMemberRecord)(nil)).
		Set("revoked_at = ?", now).
		Where("user_id = ?", userID.String()).
		Where("tenant_id = ?", tenantID.String()).
		Where("revoked_at IS NULL").
		Exec(ctx)
	return err
}
