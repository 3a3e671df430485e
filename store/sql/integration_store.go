package sqlstore

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// IntegrationStore persists integrations and owns the activation commit.
// When a secret provider is configured, access and refresh tokens are
// encrypted before they reach a row and decrypted on the way out.
type IntegrationStore struct {
	db      *bun.DB
	repo    repository.Repository[*integrationRecord]
	secrets core.SecretProvider
}

func (s *IntegrationStore) Create(ctx context.Context, integration core.Integration) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	if err := integration.ID.Validate(); err != nil {
		return core.Integration{}, err
	}
	if err := integration.TenantID.Validate(); err != nil {
		return core.Integration{}, err
	}
	if strings.TrimSpace(integration.ProviderID) == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: provider id is required")
	}
	if strings.TrimSpace(string(integration.Status)) == "" {
		integration.Status = core.IntegrationStatusPending
	}

	record := newIntegrationRecord(integration, time.Now().UTC())
	if err := s.sealTokens(ctx, record); err != nil {
		return core.Integration{}, err
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.Integration{}, fmt.Errorf("sqlstore: integration %s already exists", record.ID)
		}
		return core.Integration{}, err
	}
	return s.openTokens(ctx, record)
}

func (s *IntegrationStore) Find(ctx context.Context, tenantID, integrationID core.ObjectID) (core.Integration, bool, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, false, fmt.Errorf("sqlstore: integration store is not configured")
	}
	record := &integrationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", integrationID.String()).
		Where("?TableAlias.tenant_id = ?", tenantID.String()).
		Where("?TableAlias.deleted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Integration{}, false, nil
		}
		return core.Integration{}, false, err
	}
	integration, err := s.openTokens(ctx, record)
	if err != nil {
		return core.Integration{}, false, err
	}
	return integration, true, nil
}

func (s *IntegrationStore) UpdateStatus(ctx context.Context, integrationID core.ObjectID, status core.IntegrationStatus, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	now := time.Now().UTC()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &integrationRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", integrationID.String()).
			Where("?TableAlias.deleted_at IS NULL").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return core.ErrIntegrationNotFound
			}
			return err
		}

		current := record.toDomain()
		if err := current.TransitionTo(status, reason, now); err != nil {
			return err
		}
		record.Status = string(current.Status)
		record.LastError = current.LastError
		record.UpdatedAt = current.UpdatedAt

		_, err = tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx)
		return err
	})
}

// CommitActivation closes the decide-then-write gap with a single conditional
// write: the UPDATE only matches a row still in pending, so exactly one of
// any number of concurrent callbacks activates the integration and the rest
// see ErrCommitConflict.
func (s *IntegrationStore) CommitActivation(ctx context.Context, in core.CommitActivationInput) (core.Integration, error) {
	if s == nil || s.db == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	now := time.Now().UTC()

	var out core.Integration
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &integrationRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", in.IntegrationID.String()).
			Where("?TableAlias.tenant_id = ?", in.TenantID.String()).
			Where("?TableAlias.deleted_at IS NULL").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return core.ErrIntegrationNotFound
			}
			return err
		}

		record.Status = string(core.IntegrationStatusActive)
		record.AccessToken = in.AccessToken
		record.RefreshToken = in.RefreshToken
		record.Scopes = append([]string{}, in.ScopesGranted...)
		record.LastError = ""
		record.UpdatedAt = now
		if err := s.sealTokens(ctx, record); err != nil {
			return err
		}

		res, err := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Where("status = ?", string(core.IntegrationStatusPending)).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return core.ErrCommitConflict
		}

		out, err = s.openTokens(ctx, record)
		return err
	})
	if err != nil {
		return core.Integration{}, err
	}
	return out, nil
}

func (s *IntegrationStore) ListStalePending(ctx context.Context, before time.Time) ([]core.Integration, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: integration store is not configured")
	}
	var records []*integrationRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", string(core.IntegrationStatusPending)).
		Where("?TableAlias.created_at < ?", before.UTC()).
		Where("?TableAlias.deleted_at IS NULL").
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]core.Integration, 0, len(records))
	for _, record := range records {
		integration, err := s.openTokens(ctx, record)
		if err != nil {
			return nil, err
		}
		out = append(out, integration)
	}
	return out, nil
}

func (s *IntegrationStore) sealTokens(ctx context.Context, record *integrationRecord) error {
	if s.secrets == nil || record == nil {
		return nil
	}
	sealed, err := sealSecret(ctx, s.secrets, record.AccessToken)
	if err != nil {
		return err
	}
	record.AccessToken = sealed
	sealed, err = sealSecret(ctx, s.secrets, record.RefreshToken)
	if err != nil {
		return err
	}
	record.RefreshToken = sealed
	return nil
}

func (s *IntegrationStore) openTokens(ctx context.Context, record *integrationRecord) (core.Integration, error) {
	integration := record.toDomain()
	if s.secrets == nil {
		return integration, nil
	}
	opened, err := openSecret(ctx, s.secrets, integration.AccessToken)
	if err != nil {
		return core.Integration{}, err
	}
	integration.AccessToken = opened
	opened, err = openSecret(ctx, s.secrets, integration.RefreshToken)
	if err != nil {
		return core.Integration{}, err
	}
	integration.RefreshToken = opened
	return integration, nil
}

func sealSecret(ctx context.Context, secrets core.SecretProvider, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	ciphertext, err := secrets.Encrypt(ctx, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("sqlstore: encrypt token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func openSecret(ctx context.Context, secrets core.SecretProvider, stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("sqlstore: decode stored token: %w", err)
	}
	plaintext, err := secrets.Decrypt(ctx, ciphertext)
	if err != nil {
		return "", fmt.Errorf("sqlstore: decrypt token: %w", err)
	}
	return string(plaintext), nil
}

func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
