package core

import (
	"context"
	"fmt"
	"sync/atomic"
)

// AuthorizedCallback is the capability produced by a successful ownership
// check: it authorizes exactly one token-exchange plus activation commit for
// one integration. Single-use is enforced logically, not cryptographically.
type AuthorizedCallback struct {
	Claims      StateClaims
	Integration Integration
	Provider    CloudProvider

	consumed atomic.Bool
}

// Consume claims the capability. The second call and every call after it
// report false.
func (a *AuthorizedCallback) Consume() bool {
	if a == nil {
		return false
	}
	return a.consumed.CompareAndSwap(false, true)
}

// OwnershipVerifier resolves the state's claims against stored tenant and
// integration facts. Checks run in a fixed order and short-circuit at the
// first failure; every failure is terminal for the attempt and the flow must
// be restarted with a fresh state.
type OwnershipVerifier struct {
	integrations IntegrationStore
	tenants      TenantAccess
	catalog      ProviderCatalog
}

func NewOwnershipVerifier(
	integrations IntegrationStore,
	tenants TenantAccess,
	catalog ProviderCatalog,
) (*OwnershipVerifier, error) {
	if integrations == nil {
		return nil, fmt.Errorf("core: integration store is required")
	}
	if tenants == nil {
		return nil, fmt.Errorf("core: tenant access is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("core: provider catalog is required")
	}
	return &OwnershipVerifier{
		integrations: integrations,
		tenants:      tenants,
		catalog:      catalog,
	}, nil
}

func (v *OwnershipVerifier) Authorize(ctx context.Context, claims StateClaims) (*AuthorizedCallback, error) {
	if v == nil {
		return nil, fmt.Errorf("core: ownership verifier is not configured")
	}

	// Tenant-scoped lookup: an integration owned by another tenant reports
	// the same way as one that does not exist.
	integration, found, err := v.integrations.Find(ctx, claims.TenantID, claims.IntegrationID)
	if err != nil {
		return nil, fmt.Errorf("core: integration lookup: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: integration %s", ErrIntegrationNotFound, claims.IntegrationID)
	}

	hasAccess, err := v.tenants.HasAccess(ctx, claims.UserID, claims.TenantID)
	if err != nil {
		return nil, fmt.Errorf("core: tenant access lookup: %w", err)
	}
	if !hasAccess {
		return nil, fmt.Errorf("%w: user %s on tenant %s", ErrAccessDenied, claims.UserID, claims.TenantID)
	}

	// Replay/idempotency: the check runs even when a legitimate retry would
	// otherwise look valid. Rejecting an honest retry is preferred over any
	// double-spend of an authorization code.
	if integration.Configured() {
		return nil, fmt.Errorf("%w: integration %s", ErrAlreadyConfigured, integration.ID)
	}

	provider, found, err := v.catalog.Get(ctx, integration.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("core: provider lookup: %w", err)
	}
	if !found || !provider.Enabled {
		return nil, fmt.Errorf("%w: provider %q", ErrProviderUnavailable, integration.ProviderID)
	}

	return &AuthorizedCallback{
		Claims:      claims,
		Integration: integration,
		Provider:    provider,
	}, nil
}
