package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-integrations/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const tenantAccessCacheKeyPrefix = "go-integrations::tenant_access::v1"

// TenantMembershipStore is the write-capable membership surface the cached
// wrapper decorates.
type TenantMembershipStore interface {
	core.TenantAccess
	Grant(ctx context.Context, userID, tenantID core.ObjectID, role string) error
	Revoke(ctx context.Context, userID, tenantID core.ObjectID) error
}

// CachedTenantAccessStore answers membership reads from cache. Every callback
// asks the same question for the same user, so the hot path stays off the
// members table; Grant and Revoke invalidate the affected key.
type CachedTenantAccessStore struct {
	base  TenantMembershipStore
	cache repositorycache.CacheService
}

func NewCachedTenantAccessStore(
	base TenantMembershipStore,
	cacheService repositorycache.CacheService,
) (*CachedTenantAccessStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base tenant access store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: tenant access cache service is required")
	}
	return &CachedTenantAccessStore{base: base, cache: cacheService}, nil
}

// TenantAccessCacheKey returns the deterministic cache key contract for
// membership reads: go-integrations::tenant_access::v1::<user_id>::<tenant_id>
// with each segment URL-path escaped.
func TenantAccessCacheKey(userID, tenantID core.ObjectID) (string, error) {
	if err := userID.Validate(); err != nil {
		return "", err
	}
	if err := tenantID.Validate(); err != nil {
		return "", err
	}
	segments := []string{
		url.PathEscape(userID.String()),
		url.PathEscape(tenantID.String()),
	}
	return strings.Join(append([]string{tenantAccessCacheKeyPrefix}, segments...), "::"), nil
}

func (s *CachedTenantAccessStore) HasAccess(ctx context.Context, userID, tenantID core.ObjectID) (bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return false, fmt.Errorf("sqlstore: cached tenant access store is not configured")
	}
	cacheKey, err := TenantAccessCacheKey(userID, tenantID)
	if err != nil {
		return false, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (bool, error) {
		return s.base.HasAccess(ctx, userID, tenantID)
	})
}

func (s *CachedTenantAccessStore) Grant(ctx context.Context, userID, tenantID core.ObjectID, role string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached tenant access store is not configured")
	}
	if err := s.base.Grant(ctx, userID, tenantID, role); err != nil {
		return err
	}
	return s.invalidate(ctx, userID, tenantID)
}

func (s *CachedTenantAccessStore) Revoke(ctx context.Context, userID, tenantID core.ObjectID) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached tenant access store is not configured")
	}
	if err := s.base.Revoke(ctx, userID, tenantID); err != nil {
		return err
	}
	return s.invalidate(ctx, userID, tenantID)
}

func (s *CachedTenantAccessStore) invalidate(ctx context.Context, userID, tenantID core.ObjectID) error {
	cacheKey, err := TenantAccessCacheKey(userID, tenantID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
