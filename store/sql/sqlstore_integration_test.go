package sqlstore_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	integrationmigrations "github.com/goliatone/go-integrations/migrations"
	persistence "github.com/goliatone/go-persistence-bun"

	"github.com/goliatone/go-integrations/core"
	sqlstore "github.com/goliatone/go-integrations/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const (
	testTenantID      = core.ObjectID("64b0c1d2e3f4a5b6c7d8e9f0")
	testOtherTenantID = core.ObjectID("1234567890abcdef12345678")
	testIntegrationID = core.ObjectID("507f1f77bcf86cd799439011")
	testUserID        = core.ObjectID("5f4dcc3b5aa765d61d832701")
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-integrations-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:integrations-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = integrationmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != integrationmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, integrationmigrations.WithValidationTargets(integrationmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newFactory(t *testing.T, client *persistence.Client) *sqlstore.RepositoryFactory {
	t.Helper()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory
}

func pendingIntegration() core.Integration {
	return core.Integration{
		ID:         testIntegrationID,
		TenantID:   testTenantID,
		ProviderID: "google_drive",
		Status:     core.IntegrationStatusPending,
	}
}

func TestMigrations_CreateCoreTables(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"integrations", "tenant_members", "cloud_providers", "callback_attempts"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestIntegrationStore_TenantScopedFind(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newFactory(t, client).IntegrationStore()
	if _, err := store.Create(ctx, pendingIntegration()); err != nil {
		t.Fatalf("create integration: %v", err)
	}

	found, ok, err := store.Find(ctx, testTenantID, testIntegrationID)
	if err != nil {
		t.Fatalf("find integration: %v", err)
	}
	if !ok {
		t.Fatalf("expected integration to be found")
	}
	if found.Status != core.IntegrationStatusPending {
		t.Fatalf("expected pending status, got %q", found.Status)
	}

	_, ok, err = store.Find(ctx, testOtherTenantID, testIntegrationID)
	if err != nil {
		t.Fatalf("cross-tenant find: %v", err)
	}
	if ok {
		t.Fatalf("cross-tenant find must report not found")
	}
}

func TestIntegrationStore_CommitActivationIsSingleWinner(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newFactory(t, client).IntegrationStore()
	if _, err := store.Create(ctx, pendingIntegration()); err != nil {
		t.Fatalf("create integration: %v", err)
	}

	input := core.CommitActivationInput{
		IntegrationID: testIntegrationID,
		TenantID:      testTenantID,
		AccessToken:   "token-1",
		RefreshToken:  "refresh-1",
		ScopesGranted: []string{"drive.readonly"},
	}
	activated, err := store.CommitActivation(ctx, input)
	if err != nil {
		t.Fatalf("first activation: %v", err)
	}
	if activated.Status != core.IntegrationStatusActive {
		t.Fatalf("expected active status, got %q", activated.Status)
	}
	if activated.AccessToken != "token-1" {
		t.Fatalf("expected access token to round-trip, got %q", activated.AccessToken)
	}

	if _, err := store.CommitActivation(ctx, input); !errors.Is(err, core.ErrCommitConflict) {
		t.Fatalf("expected ErrCommitConflict on second activation, got %v", err)
	}

	missing := input
	missing.IntegrationID = core.ObjectID("000000000000000000000001")
	if _, err := store.CommitActivation(ctx, missing); !errors.Is(err, core.ErrIntegrationNotFound) {
		t.Fatalf("expected ErrIntegrationNotFound for unknown id, got %v", err)
	}

	crossTenant := input
	crossTenant.TenantID = testOtherTenantID
	if _, err := store.CommitActivation(ctx, crossTenant); !errors.Is(err, core.ErrIntegrationNotFound) {
		t.Fatalf("expected ErrIntegrationNotFound for cross-tenant commit, got %v", err)
	}
}

func TestIntegrationStore_UpdateStatusEnforcesTransitions(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newFactory(t, client).IntegrationStore()
	if _, err := store.Create(ctx, pendingIntegration()); err != nil {
		t.Fatalf("create integration: %v", err)
	}

	if err := store.UpdateStatus(ctx, testIntegrationID, core.IntegrationStatusError, "exchange failed"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	found, _, err := store.Find(ctx, testTenantID, testIntegrationID)
	if err != nil {
		t.Fatalf("find integration: %v", err)
	}
	if found.Status != core.IntegrationStatusError {
		t.Fatalf("expected error status, got %q", found.Status)
	}
	if found.LastError != "exchange failed" {
		t.Fatalf("expected last error to persist, got %q", found.LastError)
	}

	if err := store.UpdateStatus(ctx, testIntegrationID, core.IntegrationStatusActive, ""); err == nil {
		t.Fatalf("expected invalid transition error to active from error")
	}
}

func TestIntegrationStore_ListStalePending(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newFactory(t, client).IntegrationStore()

	stale := pendingIntegration()
	stale.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	if _, err := store.Create(ctx, stale); err != nil {
		t.Fatalf("create stale integration: %v", err)
	}

	fresh := pendingIntegration()
	fresh.ID = core.ObjectID("507f1f77bcf86cd799439012")
	if _, err := store.Create(ctx, fresh); err != nil {
		t.Fatalf("create fresh integration: %v", err)
	}

	records, err := store.ListStalePending(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("list stale pending: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 stale record, got %d", len(records))
	}
	if records[0].ID != stale.ID {
		t.Fatalf("expected stale record %s, got %s", stale.ID, records[0].ID)
	}
}

type prefixSecretProvider struct {
	prefix []byte
}

func (p prefixSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	return append(append([]byte{}, p.prefix...), plaintext...), nil
}

func (p prefixSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if !bytes.HasPrefix(ciphertext, p.prefix) {
		return nil, fmt.Errorf("unexpected ciphertext prefix")
	}
	return append([]byte{}, ciphertext[len(p.prefix):]...), nil
}

func TestIntegrationStore_EncryptsTokensAtRest(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory := sqlstore.NewRepositoryFactory().WithSecretProvider(prefixSecretProvider{prefix: []byte("seal:")})
	if _, err := factory.BuildStores(client); err != nil {
		t.Fatalf("build stores: %v", err)
	}
	store := factory.IntegrationStore()

	if _, err := store.Create(ctx, pendingIntegration()); err != nil {
		t.Fatalf("create integration: %v", err)
	}
	if _, err := store.CommitActivation(ctx, core.CommitActivationInput{
		IntegrationID: testIntegrationID,
		TenantID:      testTenantID,
		AccessToken:   "super-secret",
	}); err != nil {
		t.Fatalf("commit activation: %v", err)
	}

	var stored string
	if err := client.DB().NewRaw(
		"SELECT access_token FROM integrations WHERE id = ?",
		testIntegrationID.String(),
	).Scan(ctx, &stored); err != nil {
		t.Fatalf("read raw token: %v", err)
	}
	if stored == "" || stored == "super-secret" {
		t.Fatalf("expected sealed token at rest, got %q", stored)
	}

	found, _, err := store.Find(ctx, testTenantID, testIntegrationID)
	if err != nil {
		t.Fatalf("find integration: %v", err)
	}
	if found.AccessToken != "super-secret" {
		t.Fatalf("expected decrypted token on read, got %q", found.AccessToken)
	}
}

func TestTenantAccessStore_GrantAndRevoke(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newFactory(t, client).TenantAccessStore()

	ok, err := store.HasAccess(ctx, testUserID, testTenantID)
	if err != nil {
		t.Fatalf("has access before grant: %v", err)
	}
	if ok {
		t.Fatalf("expected no access before grant")
	}

	if err := store.Grant(ctx, testUserID, testTenantID, "member"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	ok, err = store.HasAccess(ctx, testUserID, testTenantID)
	if err != nil {
		t.Fatalf("has access after grant: %v", err)
	}
	if !ok {
		t.Fatalf("expected access after grant")
	}

	if err := store.Revoke(ctx, testUserID, testTenantID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err = store.HasAccess(ctx, testUserID, testTenantID)
	if err != nil {
		t.Fatalf("has access after revoke: %v", err)
	}
	if ok {
		t.Fatalf("expected no access after revoke")
	}

	if err := store.Grant(ctx, testUserID, testTenantID, "admin"); err != nil {
		t.Fatalf("re-grant: %v", err)
	}
	ok, err = store.HasAccess(ctx, testUserID, testTenantID)
	if err != nil {
		t.Fatalf("has access after re-grant: %v", err)
	}
	if !ok {
		t.Fatalf("expected access after re-grant")
	}
}

func TestProviderCatalogStore_UpsertGetList(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newFactory(t, client).ProviderCatalogStore()

	provider := core.CloudProvider{
		ID:           "google_drive",
		Name:         "Google Drive",
		AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:     "https://oauth2.googleapis.com/token",
		Enabled:      true,
		DefaultScope: []string{"https://www.googleapis.com/auth/drive.readonly"},
	}
	if err := store.Upsert(ctx, provider); err != nil {
		t.Fatalf("upsert provider: %v", err)
	}

	provider.Enabled = false
	if err := store.Upsert(ctx, provider); err != nil {
		t.Fatalf("upsert provider again: %v", err)
	}

	found, ok, err := store.Get(ctx, "google_drive")
	if err != nil {
		t.Fatalf("get provider: %v", err)
	}
	if !ok {
		t.Fatalf("expected provider to exist")
	}
	if found.Enabled {
		t.Fatalf("expected provider to be disabled after second upsert")
	}

	if _, ok, err := store.Get(ctx, "unknown"); err != nil || ok {
		t.Fatalf("expected unknown provider to report not found, got ok=%v err=%v", ok, err)
	}

	providers, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list providers: %v", err)
	}
	if len(providers) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(providers))
	}
}

func TestAuditStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newFactory(t, client).AuditStore()

	flagged := core.CallbackAttempt{
		EventType:      "oauth.callback",
		UserID:         testUserID,
		IntegrationID:  testIntegrationID,
		TenantID:       testTenantID,
		ProviderID:     "google_drive",
		Outcome:        core.CallbackOutcomeRejected,
		ErrorCode:      "ALREADY_CONFIGURED",
		SecurityIssues: []core.SecurityIssue{core.SecurityIssueReplayDetected},
		IP:             "203.0.113.7",
		UserAgent:      "integration-test",
		StateAgeMS:     1500,
		Timestamp:      time.Now().UTC(),
	}
	if err := store.Append(ctx, flagged); err != nil {
		t.Fatalf("append flagged attempt: %v", err)
	}

	clean := flagged
	clean.Outcome = core.CallbackOutcomeSuccess
	clean.ErrorCode = ""
	clean.SecurityIssues = nil
	clean.Timestamp = time.Now().UTC().Add(time.Second)
	if err := store.Append(ctx, clean); err != nil {
		t.Fatalf("append clean attempt: %v", err)
	}

	attempts, err := store.ListByIntegration(ctx, testTenantID, testIntegrationID, 10)
	if err != nil {
		t.Fatalf("list by integration: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].Outcome != core.CallbackOutcomeSuccess {
		t.Fatalf("expected newest attempt first, got %q", attempts[0].Outcome)
	}
	if len(attempts[1].SecurityIssues) != 1 || attempts[1].SecurityIssues[0] != core.SecurityIssueReplayDetected {
		t.Fatalf("expected replay flag to round-trip, got %v", attempts[1].SecurityIssues)
	}
}
