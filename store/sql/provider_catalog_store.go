package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/uptrace/bun"
)

// ProviderCatalogStore serves the cloud provider catalog. Rows are seeded by
// operators; the callback pipeline only reads them.
type ProviderCatalogStore struct {
	db *bun.DB
}

func (s *ProviderCatalogStore) Get(ctx context.Context, providerID string) (core.CloudProvider, bool, error) {
	if s == nil || s.db == nil {
		return core.CloudProvider{}, false, fmt.Errorf("sqlstore: provider catalog store is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return core.CloudProvider{}, false, nil
	}
	record := &cloudProviderRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", providerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.CloudProvider{}, false, nil
		}
		return core.CloudProvider{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *ProviderCatalogStore) List(ctx context.Context) ([]core.CloudProvider, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: provider catalog store is not configured")
	}
	var records []*cloudProviderRecord
	err := s.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.CloudProvider, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// Upsert registers or refreshes a catalog entry.
func (s *ProviderCatalogStore) Upsert(ctx context.Context, provider core.CloudProvider) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: provider catalog store is not configured")
	}
	if err := provider.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &cloudProviderRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", provider.ID).
			Limit(1).
			Scan(ctx)
		if err == nil {
			record.Name = provider.Name
			record.AuthURL = provider.AuthURL
			record.TokenURL = provider.TokenURL
			record.Enabled = provider.Enabled
			record.DefaultScope = append([]string{}, provider.DefaultScope...)
			record.UpdatedAt = now
			_, err = tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx)
			return err
		}
		if !isNoRows(err) {
			return err
		}
		_, err = tx.NewInsert().Model(newCloudProviderRecord(provider, now)).Exec(ctx)
		return err
	})
}
