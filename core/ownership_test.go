package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newOwnershipFixture(t *testing.T) (*OwnershipVerifier, *MemoryIntegrationStore, *MemoryTenantAccess, *MemoryProviderCatalog) {
	t.Helper()
	store := NewMemoryIntegrationStore()
	access := NewMemoryTenantAccess()
	catalog := NewMemoryProviderCatalog(testCloudProvider())
	verifier, err := NewOwnershipVerifier(store, access, catalog)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := store.Create(context.Background(), Integration{
		ID:         testIntegrationID,
		TenantID:   testTenantID,
		ProviderID: testProviderID,
		Status:     IntegrationStatusPending,
	}); err != nil {
		t.Fatalf("seed integration: %v", err)
	}
	access.Grant(testUserID, testTenantID)
	return verifier, store, access, catalog
}

func ownershipClaims() StateClaims {
	return StateClaims{
		TenantID:      testTenantID,
		IntegrationID: testIntegrationID,
		UserID:        testUserID,
		IssuedAt:      time.Now().UTC(),
		Nonce:         "abcDEF123456_-78",
	}
}

func TestOwnershipVerifier_AuthorizesPendingIntegration(t *testing.T) {
	verifier, _, _, _ := newOwnershipFixture(t)

	authorized, err := verifier.Authorize(context.Background(), ownershipClaims())
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if authorized.Integration.ID != testIntegrationID {
		t.Fatalf("unexpected integration: %+v", authorized.Integration)
	}
	if authorized.Provider.ID != testProviderID {
		t.Fatalf("unexpected provider: %+v", authorized.Provider)
	}
}

func TestOwnershipVerifier_CrossTenantLooksLikeMissing(t *testing.T) {
	verifier, _, access, _ := newOwnershipFixture(t)
	access.Grant(testUserID, testOtherTenantID)

	claims := ownershipClaims()
	claims.TenantID = testOtherTenantID
	_, crossTenantErr := verifier.Authorize(context.Background(), claims)
	if !errors.Is(crossTenantErr, ErrIntegrationNotFound) {
		t.Fatalf("expected ErrIntegrationNotFound for cross-tenant claim, got %v", crossTenantErr)
	}

	claims = ownershipClaims()
	claims.IntegrationID = ObjectID("ffffffffffffffffffffffff")
	_, missingErr := verifier.Authorize(context.Background(), claims)
	if !errors.Is(missingErr, ErrIntegrationNotFound) {
		t.Fatalf("expected ErrIntegrationNotFound for missing record, got %v", missingErr)
	}

	if Externalize(crossTenantErr) != Externalize(missingErr) {
		t.Fatalf("cross-tenant and missing must externalize identically")
	}
}

func TestOwnershipVerifier_RejectsNonMember(t *testing.T) {
	verifier, _, access, _ := newOwnershipFixture(t)
	access.Revoke(testUserID, testTenantID)

	_, err := verifier.Authorize(context.Background(), ownershipClaims())
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if Externalize(err).Code != CallbackErrorIntegrationNotFound {
		t.Fatalf("access denial must externalize as not found, got %+v", Externalize(err))
	}
}

func TestOwnershipVerifier_RejectsConfiguredIntegration(t *testing.T) {
	verifier, store, _, _ := newOwnershipFixture(t)
	if _, err := store.CommitActivation(context.Background(), CommitActivationInput{
		IntegrationID: testIntegrationID,
		TenantID:      testTenantID,
		AccessToken:   "tok",
	}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	_, err := verifier.Authorize(context.Background(), ownershipClaims())
	if !errors.Is(err, ErrAlreadyConfigured) {
		t.Fatalf("expected ErrAlreadyConfigured, got %v", err)
	}
}

func TestOwnershipVerifier_RejectsDisabledProvider(t *testing.T) {
	verifier, _, _, catalog := newOwnershipFixture(t)
	disabled := testCloudProvider()
	disabled.Enabled = false
	if err := catalog.Register(disabled); err != nil {
		t.Fatalf("register disabled provider: %v", err)
	}

	_, err := verifier.Authorize(context.Background(), ownershipClaims())
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestAuthorizedCallback_ConsumeIsSingleUse(t *testing.T) {
	verifier, _, _, _ := newOwnershipFixture(t)
	authorized, err := verifier.Authorize(context.Background(), ownershipClaims())
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !authorized.Consume() {
		t.Fatalf("first consume must succeed")
	}
	if authorized.Consume() {
		t.Fatalf("second consume must fail")
	}
}
