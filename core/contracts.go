package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// CallbackRequest carries the untrusted inbound redirect from the provider:
// query parameters plus the addressing and client metadata needed for audit.
type CallbackRequest struct {
	State     string
	Code      string
	Host      string
	Scheme    string
	RemoteIP  string
	UserAgent string
}

// CallbackResult is the redirect decision for a completed attempt. ErrorCode
// is empty on success and carries only the externalized code otherwise.
type CallbackResult struct {
	RedirectURL string
	ErrorCode   string
	Integration Integration
}

type InitiateRequest struct {
	TenantID      ObjectID
	IntegrationID ObjectID
	UserID        ObjectID
}

type InitiateResponse struct {
	AuthorizationURL string
	State            string
	Provider         CloudProvider
}

// ExchangeRequest asks the external provider to trade an authorization code
// for tokens. RedirectURI is the validated callback URI the code was bound to.
type ExchangeRequest struct {
	ProviderID  string
	Code        string
	RedirectURI string
}

type ExchangeResult struct {
	AccessToken   string
	RefreshToken  string
	TokenType     string
	GrantedScopes []string
	ExpiresAt     *time.Time
}

// CommitActivationInput is the single conditional write the pipeline issues:
// activate and store tokens only while the record is not already active. The
// store evaluates the condition atomically and reports ErrCommitConflict when
// it fails at commit time.
type CommitActivationInput struct {
	IntegrationID ObjectID
	TenantID      ObjectID
	AccessToken   string
	RefreshToken  string
	ScopesGranted []string
}

type IntegrationStore interface {
	// Find resolves an integration scoped to a tenant. A cross-tenant hit
	// reports found=false, indistinguishable from absence.
	Find(ctx context.Context, tenantID ObjectID, integrationID ObjectID) (Integration, bool, error)
	Create(ctx context.Context, integration Integration) (Integration, error)
	UpdateStatus(ctx context.Context, integrationID ObjectID, status IntegrationStatus, reason string) error
	CommitActivation(ctx context.Context, in CommitActivationInput) (Integration, error)
	ListStalePending(ctx context.Context, before time.Time) ([]Integration, error)
}

// TenantAccess answers whether a user holds a valid access relationship to a
// tenant. Membership is owned by the tenant service; this pipeline only
// consumes the derived fact.
type TenantAccess interface {
	HasAccess(ctx context.Context, userID ObjectID, tenantID ObjectID) (bool, error)
}

type ProviderCatalog interface {
	Get(ctx context.Context, providerID string) (CloudProvider, bool, error)
	List(ctx context.Context) ([]CloudProvider, error)
}

type TokenExchanger interface {
	Exchange(ctx context.Context, req ExchangeRequest) (ExchangeResult, error)
}

// AuditSink receives append-only callback attempt records.
type AuditSink interface {
	Append(ctx context.Context, attempt CallbackAttempt) error
}

// StateCodec encodes and decodes the opaque state parameter. Decode performs
// structural and temporal validation as one atomic pass.
type StateCodec interface {
	Encode(claims StateClaims) (string, error)
	Decode(raw string) (StateClaims, error)
}

// SecretProvider encrypts credential material before it reaches the store.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// JobExecutionMessage mirrors the queue contract used for deferred work: the
// durable audit flush and the stale-pending sweep.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

// StoreProvider bundles the persistence-backed collaborators a repository
// factory can construct from a single client.
type StoreProvider interface {
	IntegrationStore() IntegrationStore
	TenantAccess() TenantAccess
	ProviderCatalog() ProviderCatalog
	AuditSink() AuditSink
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// CallbackService is the surface the command and query layers compose over.
type CallbackService interface {
	InitiateAuthorization(ctx context.Context, req InitiateRequest) (InitiateResponse, error)
	CompleteCallback(ctx context.Context, req CallbackRequest) (CallbackResult, error)
	SweepStalePending(ctx context.Context) (int, error)
}
