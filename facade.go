package integrations

import (
	"fmt"
	"reflect"

	integrationscommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	integrationsquery "github.com/goliatone/go-integrations/query"
)

type Commands struct {
	InitiateAuthorization *integrationscommand.InitiateAuthorizationCommand
	CompleteCallback      *integrationscommand.CompleteCallbackCommand
	SweepStalePending     *integrationscommand.SweepStalePendingCommand
}

type Queries struct {
	GetIntegration       *integrationsquery.GetIntegrationQuery
	ListCallbackAttempts *integrationsquery.ListCallbackAttemptsQuery
	ListProviders        *integrationsquery.ListProvidersQuery
}

// Facade bundles the command and query handlers for a single service so
// callers register one value with their dispatcher instead of wiring each
// handler by hand.
type Facade struct {
	service  core.CallbackService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	attemptReader integrationsquery.CallbackAttemptReader
}

// WithAttemptReader overrides where the callback attempt query reads from.
// Without it the facade resolves a reader from the service dependencies.
func WithAttemptReader(reader integrationsquery.CallbackAttemptReader) FacadeOption {
	return func(options *facadeOptions) {
		options.attemptReader = reader
	}
}

func NewFacade(service core.CallbackService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("integrations: callback service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	deps := resolveDependencies(service)
	attemptReader := cfg.attemptReader
	if attemptReader == nil {
		attemptReader = resolveAttemptReader(service, deps)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		InitiateAuthorization: integrationscommand.NewInitiateAuthorizationCommand(service),
		CompleteCallback:      integrationscommand.NewCompleteCallbackCommand(service),
		SweepStalePending:     integrationscommand.NewSweepStalePendingCommand(service),
	}
	facade.queries = Queries{
		GetIntegration:       integrationsquery.NewGetIntegrationQuery(deps.IntegrationStore),
		ListCallbackAttempts: integrationsquery.NewListCallbackAttemptsQuery(attemptReader),
		ListProviders:        integrationsquery.NewListProvidersQuery(deps.ProviderCatalog),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() core.CallbackService {
	if f == nil {
		return nil
	}
	return f.service
}

func resolveDependencies(service core.CallbackService) core.ServiceDependencies {
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return core.ServiceDependencies{}
	}
	return provider.Dependencies()
}

// resolveAttemptReader looks for a ListByIntegration reader on the service
// itself, then on the repository factory's AuditStore accessor. The factory is
// an untyped dependency so the accessor is probed reflectively.
func resolveAttemptReader(service core.CallbackService, deps core.ServiceDependencies) integrationsquery.CallbackAttemptReader {
	if reader, ok := service.(integrationsquery.CallbackAttemptReader); ok {
		return reader
	}
	if deps.RepositoryFactory == nil {
		return nil
	}

	factoryValue := reflect.ValueOf(deps.RepositoryFactory)
	if !factoryValue.IsValid() {
		return nil
	}
	if factoryValue.Kind() == reflect.Ptr && factoryValue.IsNil() {
		return nil
	}
	method := factoryValue.MethodByName("AuditStore")
	if !method.IsValid() || method.Type().NumIn() != 0 || method.Type().NumOut() != 1 {
		return nil
	}

	results, ok := safeReflectCall(method)
	if !ok || len(results) != 1 {
		return nil
	}
	candidate := results[0]
	if !candidate.IsValid() {
		return nil
	}
	if candidate.Kind() == reflect.Ptr && candidate.IsNil() {
		return nil
	}
	reader, ok := candidate.Interface().(integrationsquery.CallbackAttemptReader)
	if !ok {
		return nil
	}
	return reader
}

func safeReflectCall(method reflect.Value) (_ []reflect.Value, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return method.Call(nil), true
}
