package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	testTenantID      = ObjectID("64b0c1d2e3f4a5b6c7d8e9f0")
	testIntegrationID = ObjectID("507f1f77bcf86cd799439011")
	testUserID        = ObjectID("5f4dcc3b5aa765d61d832701")
	testOtherTenantID = ObjectID("1234567890abcdef12345678")
	testProviderID    = "google_drive"
)

func testCloudProvider() CloudProvider {
	return CloudProvider{
		ID:           testProviderID,
		Name:         "Google Drive",
		AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:     "https://oauth2.googleapis.com/token",
		Enabled:      true,
		DefaultScope: []string{"https://www.googleapis.com/auth/drive.readonly"},
	}
}

type fakeExchanger struct {
	mu     sync.Mutex
	calls  int
	result ExchangeResult
	err    error
	// gate, when set, is released on entry and awaited before returning so
	// tests can hold several exchanges in flight at once.
	gate *sync.WaitGroup
}

func (f *fakeExchanger) Exchange(ctx context.Context, req ExchangeRequest) (ExchangeResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.gate != nil {
		f.gate.Done()
		f.gate.Wait()
	}
	if err := ctx.Err(); err != nil {
		return ExchangeResult{}, err
	}
	if f.err != nil {
		return ExchangeResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeExchanger) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingAuditSink struct {
	mu       sync.Mutex
	attempts int
}

func (s *failingAuditSink) Append(context.Context, CallbackAttempt) error {
	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()
	return fmt.Errorf("audit sink unavailable")
}

type captureQueue struct {
	mu       sync.Mutex
	messages []*JobExecutionMessage
	err      error
}

func (q *captureQueue) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, msg)
	return nil
}

func (q *captureQueue) Messages() []*JobExecutionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*JobExecutionMessage(nil), q.messages...)
}

type callbackFixture struct {
	service     *Service
	store       *MemoryIntegrationStore
	access      *MemoryTenantAccess
	catalog     *MemoryProviderCatalog
	sink        *MemoryAuditSink
	exchanger   *fakeExchanger
	codec       *Base64StateCodec
	allowedHost string
}

func newCallbackFixture(t testingT, extra ...Option) *callbackFixture {
	store := NewMemoryIntegrationStore()
	access := NewMemoryTenantAccess()
	catalog := NewMemoryProviderCatalog(testCloudProvider())
	sink := NewMemoryAuditSink()
	exchanger := &fakeExchanger{result: ExchangeResult{
		AccessToken:   "access-token-1",
		RefreshToken:  "refresh-token-1",
		TokenType:     "bearer",
		GrantedScopes: []string{"drive.readonly"},
	}}

	cfg := Config{}
	cfg.Callback.AllowedHosts = []string{"app.example.com"}

	options := append([]Option{
		WithLogger(stubLogger{}),
		WithIntegrationStore(store),
		WithTenantAccess(access),
		WithProviderCatalog(catalog),
		WithAuditSink(sink),
		WithTokenExchanger(exchanger),
	}, extra...)

	svc, err := NewService(cfg, options...)
	if err != nil {
		t.Fatalf("new service: %v", err)
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

	return &callbackFixture{
		service:     svc,
		store:       store,
		access:      access,
		catalog:     catalog,
		sink:        sink,
		exchanger:   exchanger,
		codec:       NewBase64StateCodec(0, 0, 0),
		allowedHost: "app.example.com",
	}
}

func (f *callbackFixture) freshState(t testingT) string {
	return f.stateIssuedAt(t, time.Now().UTC())
}

func (f *callbackFixture) stateIssuedAt(t testingT, issuedAt time.Time) string {
	nonce, err := NewStateNonce()
	if err != nil {
		t.Fatalf("mint nonce: %v", err)
	}
	state, err := f.codec.Encode(StateClaims{
		TenantID:      testTenantID,
		IntegrationID: testIntegrationID,
		UserID:        testUserID,
		IssuedAt:      issuedAt,
		Nonce:         nonce,
	})
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}
	return state
}

func (f *callbackFixture) request(state string) CallbackRequest {
	return CallbackRequest{
		State:     state,
		Code:      "auth-code-1",
		Host:      f.allowedHost,
		Scheme:    "https",
		RemoteIP:  "203.0.113.7",
		UserAgent: "integration-test",
	}
}

// testingT is the subset of *testing.T the fixtures need; it keeps helpers
// usable from both tests and benchmarks.
type testingT interface {
	Fatalf(format string, args ...any)
	Helper()
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	return append([]byte("enc:"), plaintext...), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := string(ciphertext)
	if len(value) < 4 || value[:4] != "enc:" {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	return []byte(value[4:]), nil
}
