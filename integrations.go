package integrations

import "github.com/goliatone/go-integrations/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type ObjectID = core.ObjectID
type Integration = core.Integration
type CloudProvider = core.CloudProvider
type CallbackAttempt = core.CallbackAttempt
type StateCodec = core.StateCodec
type IntegrationStore = core.IntegrationStore
type TenantAccess = core.TenantAccess
type ProviderCatalog = core.ProviderCatalog
type TokenExchanger = core.TokenExchanger
type AuditSink = core.AuditSink
type SecretProvider = core.SecretProvider

type InitiateRequest = core.InitiateRequest
type InitiateResponse = core.InitiateResponse

type CallbackRequest = core.CallbackRequest
type CallbackResult = core.CallbackResult

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithStateCodec        = core.WithStateCodec
	WithIntegrationStore  = core.WithIntegrationStore
	WithTenantAccess      = core.WithTenantAccess
	WithProviderCatalog   = core.WithProviderCatalog
	WithTokenExchanger    = core.WithTokenExchanger
	WithAuditSink         = core.WithAuditSink
	WithAuditQueue        = core.WithAuditQueue
	WithSecretProvider    = core.WithSecretProvider
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
