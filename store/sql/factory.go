package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-integrations/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repository "github.com/goliatone/go-repository-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db      *bun.DB
	secrets core.SecretProvider
	cache   repositorycache.CacheService

	integrationStore   *IntegrationStore
	tenantAccessStore  *TenantAccessStore
	cachedTenantAccess *CachedTenantAccessStore
	providerCatalog    *ProviderCatalogStore
	auditStore         *AuditStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// WithSecretProvider makes the integration store encrypt tokens at rest.
// It must be called before BuildStores.
func (f *RepositoryFactory) WithSecretProvider(secrets core.SecretProvider) *RepositoryFactory {
	if f != nil {
		f.secrets = secrets
	}
	return f
}

// WithCacheService routes tenant membership reads through the given cache.
// It must be called before BuildStores.
func (f *RepositoryFactory) WithCacheService(cacheService repositorycache.CacheService) *RepositoryFactory {
	if f != nil {
		f.cache = cacheService
	}
	return f
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.integrationStore != nil && f.auditStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) IntegrationStore() core.IntegrationStore {
	if f == nil {
		return nil
	}
	return f.integrationStore
}

func (f *RepositoryFactory) TenantAccess() core.TenantAccess {
	if f == nil {
		return nil
	}
	if f.cachedTenantAccess != nil {
		return f.cachedTenantAccess
	}
	return f.tenantAccessStore
}

func (f *RepositoryFactory) TenantAccessStore() *TenantAccessStore {
	if f == nil {
		return nil
	}
	return f.tenantAccessStore
}

func (f *RepositoryFactory) ProviderCatalog() core.ProviderCatalog {
	if f == nil {
		return nil
	}
	return f.providerCatalog
}

func (f *RepositoryFactory) ProviderCatalogStore() *ProviderCatalogStore {
	if f == nil {
		return nil
	}
	return f.providerCatalog
}

func (f *RepositoryFactory) AuditSink() core.AuditSink {
	if f == nil {
		return nil
	}
	return f.auditStore
}

func (f *RepositoryFactory) AuditStore() *AuditStore {
	if f == nil {
		return nil
	}
	return f.auditStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	integrationRepo := repository.NewRepository[*integrationRecord](f.db, integrationHandlers())
	if validator, ok := integrationRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid integration repository wiring: %w", err)
		}
	}

	memberRepo := repository.NewRepository[*tenantMemberRecord](f.db, tenantMemberHandlers())
	if validator, ok := memberRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid tenant member repository wiring: %w", err)
		}
	}

	attemptRepo := repository.NewRepository[*callbackAttemptRecord](f.db, callbackAttemptHandlers())
	if validator, ok := attemptRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid callback attempt repository wiring: %w", err)
		}
	}

	f.integrationStore = &IntegrationStore{
		db:      f.db,
		repo:    integrationRepo,
		secrets: f.secrets,
	}
	f.tenantAccessStore = &TenantAccessStore{
		db:   f.db,
		repo: memberRepo,
	}
	if f.cache != nil {
		cached, err := NewCachedTenantAccessStore(f.tenantAccessStore, f.cache)
		if err != nil {
			return err
		}
		f.cachedTenantAccess = cached
	}
	f.providerCatalog = &ProviderCatalogStore{db: f.db}
	f.auditStore = &AuditStore{
		db:   f.db,
		repo: attemptRepo,
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
