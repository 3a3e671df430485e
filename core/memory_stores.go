package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryIntegrationStore keeps integration records in process memory. It is
// the default store wired by NewService when no persistence is configured and
// the store used throughout the test suites.
type MemoryIntegrationStore struct {
	mu      sync.Mutex
	records map[ObjectID]Integration
	now     func() time.Time
}

func NewMemoryIntegrationStore() *MemoryIntegrationStore {
	return &MemoryIntegrationStore{
		records: make(map[ObjectID]Integration),
		now:     time.Now,
	}
}

func (s *MemoryIntegrationStore) Create(ctx context.Context, integration Integration) (Integration, error) {
	if s == nil {
		return Integration{}, fmt.Errorf("core: memory integration store is nil")
	}
	if err := integration.ID.Validate(); err != nil {
		return Integration{}, err
	}
	if err := integration.TenantID.Validate(); err != nil {
		return Integration{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[integration.ID]; exists {
		return Integration{}, fmt.Errorf("core: integration already exists: %s", integration.ID)
	}
	now := s.now()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}
	integration.UpdatedAt = now
	s.records[integration.ID] = integration
	return integration, nil
}

// Find scopes the lookup to the tenant. A record owned by another tenant is
// reported as absent.
func (s *MemoryIntegrationStore) Find(ctx context.Context, tenantID, integrationID ObjectID) (Integration, bool, error) {
	if s == nil {
		return Integration{}, false, fmt.Errorf("core: memory integration store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[integrationID]
	if !ok || record.TenantID != tenantID {
		return Integration{}, false, nil
	}
	return record, true, nil
}

func (s *MemoryIntegrationStore) UpdateStatus(ctx context.Context, integrationID ObjectID, status IntegrationStatus, reason string) error {
	if s == nil {
		return fmt.Errorf("core: memory integration store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[integrationID]
	if !ok {
		return ErrIntegrationNotFound
	}
	if err := record.TransitionTo(status, reason, s.now()); err != nil {
		return err
	}
	s.records[integrationID] = record
	return nil
}

// CommitActivation performs the pending-to-active transition as a single
// conditional write under the store lock. A record that is not pending at
// commit time reports ErrCommitConflict so concurrent callbacks cannot both
// activate the same integration.
func (s *MemoryIntegrationStore) CommitActivation(ctx context.Context, in CommitActivationInput) (Integration, error) {
	if s == nil {
		return Integration{}, fmt.Errorf("core: memory integration store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[in.IntegrationID]
	if !ok || record.TenantID != in.TenantID {
		return Integration{}, ErrIntegrationNotFound
	}
	if record.Status != IntegrationStatusPending {
		return Integration{}, ErrCommitConflict
	}
	record.Status = IntegrationStatusActive
	record.AccessToken = in.AccessToken
	record.RefreshToken = in.RefreshToken
	record.ScopesGranted = append([]string(nil), in.ScopesGranted...)
	record.LastError = ""
	record.UpdatedAt = s.now()
	s.records[in.IntegrationID] = record
	return record, nil
}

func (s *MemoryIntegrationStore) ListStalePending(ctx context.Context, before time.Time) ([]Integration, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory integration store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stale := make([]Integration, 0)
	for _, record := range s.records {
		if record.Status == IntegrationStatusPending && record.CreatedAt.Before(before) {
			stale = append(stale, record)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	return stale, nil
}

// MemoryTenantAccess backs the ownership check with an explicit membership
// set keyed by user and tenant.
type MemoryTenantAccess struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

func NewMemoryTenantAccess() *MemoryTenantAccess {
	return &MemoryTenantAccess{members: make(map[string]struct{})}
}

func membershipKey(userID, tenantID ObjectID) string {
	return string(userID) + "/" + string(tenantID)
}

func (a *MemoryTenantAccess) Grant(userID, tenantID ObjectID) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.members[membershipKey(userID, tenantID)] = struct{}{}
	a.mu.Unlock()
}

func (a *MemoryTenantAccess) Revoke(userID, tenantID ObjectID) {
	if a == nil {
		return
	}
	a.mu.Lock()
	delete(a.members, membershipKey(userID, tenantID))
	a.mu.Unlock()
}

func (a *MemoryTenantAccess) HasAccess(ctx context.Context, userID, tenantID ObjectID) (bool, error) {
	if a == nil {
		return false, fmt.Errorf("core: memory tenant access is nil")
	}
	a.mu.RLock()
	_, ok := a.members[membershipKey(userID, tenantID)]
	a.mu.RUnlock()
	return ok, nil
}

type MemoryProviderCatalog struct {
	mu        sync.RWMutex
	providers map[string]CloudProvider
}

func NewMemoryProviderCatalog(providers ...CloudProvider) *MemoryProviderCatalog {
	catalog := &MemoryProviderCatalog{providers: make(map[string]CloudProvider)}
	for _, provider := range providers {
		_ = catalog.Register(provider)
	}
	return catalog
}

func (c *MemoryProviderCatalog) Register(provider CloudProvider) error {
	if c == nil {
		return fmt.Errorf("core: memory provider catalog is nil")
	}
	id := strings.TrimSpace(provider.ID)
	if id == "" {
		return fmt.Errorf("core: provider id is required")
	}
	c.mu.Lock()
	c.providers[id] = provider
	c.mu.Unlock()
	return nil
}

func (c *MemoryProviderCatalog) Get(ctx context.Context, providerID string) (CloudProvider, bool, error) {
	if c == nil {
		return CloudProvider{}, false, fmt.Errorf("core: memory provider catalog is nil")
	}
	id := strings.TrimSpace(providerID)
	if id == "" {
		return CloudProvider{}, false, nil
	}
	c.mu.RLock()
	provider, ok := c.providers[id]
	c.mu.RUnlock()
	return provider, ok, nil
}

func (c *MemoryProviderCatalog) List(ctx context.Context) ([]CloudProvider, error) {
	if c == nil {
		return nil, fmt.Errorf("core: memory provider catalog is nil")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.providers))
	for id := range c.providers {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	providers := make([]CloudProvider, 0, len(keys))
	for _, id := range keys {
		providers = append(providers, c.providers[id])
	}
	return providers, nil
}

var (
	_ IntegrationStore = (*MemoryIntegrationStore)(nil)
	_ TenantAccess     = (*MemoryTenantAccess)(nil)
	_ ProviderCatalog  = (*MemoryProviderCatalog)(nil)
)
