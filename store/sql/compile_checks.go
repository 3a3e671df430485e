package sqlstore

import "github.com/goliatone/go-integrations/core"

var (
	_ core.IntegrationStore       = (*IntegrationStore)(nil)
	_ core.TenantAccess           = (*TenantAccessStore)(nil)
	_ core.TenantAccess           = (*CachedTenantAccessStore)(nil)
	_ core.ProviderCatalog        = (*ProviderCatalogStore)(nil)
	_ core.AuditSink              = (*AuditStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
