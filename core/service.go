package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service orchestrates the OAuth callback pipeline: state decoding, host
// validation, ownership checks, the provider token exchange, and the single
// conditional activation write. Every attempt is audited regardless of
// outcome.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	persistenceClient any
	repositoryFactory any
	stateCodec        StateCodec
	redirectValidator *RedirectValidator
	ownership         *OwnershipVerifier
	integrationStore  IntegrationStore
	tenantAccess      TenantAccess
	providerCatalog   ProviderCatalog
	exchanger         TokenExchanger
	auditRecorder     *AuditRecorder
	auditSink         AuditSink
	secretProvider    SecretProvider
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	StateCodec        StateCodec
	IntegrationStore  IntegrationStore
	TenantAccess      TenantAccess
	ProviderCatalog   ProviderCatalog
	Exchanger         TokenExchanger
	AuditSink         AuditSink
	SecretProvider    SecretProvider
	RepositoryFactory any
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("integrations", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("integrations"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	needsStores := builder.integrationStore == nil || builder.tenantAccess == nil ||
		builder.providerCatalog == nil || builder.auditSink == nil
	if needsStores && builder.repositoryFactory != nil {
		var storeProvider StoreProvider
		if factory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, err = factory.BuildStores(builder.persistenceClient)
			if err != nil {
				return nil, mapBuildError(builder.errorMapper, err)
			}
		} else if direct, ok := builder.repositoryFactory.(StoreProvider); ok {
			storeProvider = direct
		}
		if storeProvider != nil {
			if builder.integrationStore == nil {
				builder.integrationStore = storeProvider.IntegrationStore()
			}
			if builder.tenantAccess == nil {
				builder.tenantAccess = storeProvider.TenantAccess()
			}
			if builder.providerCatalog == nil {
				builder.providerCatalog = storeProvider.ProviderCatalog()
			}
			if builder.auditSink == nil {
				builder.auditSink = storeProvider.AuditSink()
			}
		}
	}
	if builder.integrationStore == nil {
		builder.integrationStore = NewMemoryIntegrationStore()
	}
	if builder.tenantAccess == nil {
		builder.tenantAccess = NewMemoryTenantAccess()
	}
	if builder.providerCatalog == nil {
		builder.providerCatalog = NewMemoryProviderCatalog()
	}
	if builder.auditSink == nil {
		builder.auditSink = NewMemoryAuditSink()
	}
	if builder.stateCodec == nil {
		builder.stateCodec = NewBase64StateCodec(
			finalConfig.Callback.StateMaxAge,
			finalConfig.Callback.ClockSkewTolerance,
			finalConfig.Callback.NonceMinLength,
		)
	}

	ownership, err := NewOwnershipVerifier(builder.integrationStore, builder.tenantAccess, builder.providerCatalog)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		stateCodec:        builder.stateCodec,
		redirectValidator: NewRedirectValidator(finalConfig.Callback.AllowedHosts, finalConfig.Callback.CallbackPath),
		ownership:         ownership,
		integrationStore:  builder.integrationStore,
		tenantAccess:      builder.tenantAccess,
		providerCatalog:   builder.providerCatalog,
		exchanger:         builder.exchanger,
		auditRecorder:     NewAuditRecorder(builder.auditSink, builder.auditQueue, logger),
		auditSink:         builder.auditSink,
		secretProvider:    builder.secretProvider,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		StateCodec:        s.stateCodec,
		IntegrationStore:  s.integrationStore,
		TenantAccess:      s.tenantAccess,
		ProviderCatalog:   s.providerCatalog,
		Exchanger:         s.exchanger,
		AuditSink:         s.auditSink,
		SecretProvider:    s.secretProvider,
		RepositoryFactory: s.repositoryFactory,
	}
}

// InitiateAuthorization mints a signed state value for a pending integration
// and returns the provider authorization URL the browser should visit.
func (s *Service) InitiateAuthorization(ctx context.Context, req InitiateRequest) (InitiateResponse, error) {
	if s == nil {
		return InitiateResponse{}, fmt.Errorf("core: service is not configured")
	}
	startedAt := time.Now()
	fields := map[string]any{
		"tenant_id":      req.TenantID.String(),
		"integration_id": req.IntegrationID.String(),
		"user_id":        req.UserID.String(),
	}

	response, err := s.initiateAuthorization(ctx, req, startedAt)
	if err == nil {
		fields["provider_id"] = response.Provider.ID
	}
	s.observeOperation(ctx, startedAt, "oauth_initiate", err, fields)
	if err != nil {
		return InitiateResponse{}, mapBuildError(s.errorMapper, err)
	}
	return response, nil
}

func (s *Service) initiateAuthorization(ctx context.Context, req InitiateRequest, startedAt time.Time) (InitiateResponse, error) {
	for _, id := range []ObjectID{req.TenantID, req.IntegrationID, req.UserID} {
		if err := id.Validate(); err != nil {
			return InitiateResponse{}, err
		}
	}

	integration, found, err := s.integrationStore.Find(ctx, req.TenantID, req.IntegrationID)
	if err != nil {
		return InitiateResponse{}, fmt.Errorf("core: integration lookup: %w", err)
	}
	if !found {
		return InitiateResponse{}, fmt.Errorf("%w: integration %s", ErrIntegrationNotFound, req.IntegrationID)
	}
	hasAccess, err := s.tenantAccess.HasAccess(ctx, req.UserID, req.TenantID)
	if err != nil {
		return InitiateResponse{}, fmt.Errorf("core: tenant access lookup: %w", err)
	}
	if !hasAccess {
		return InitiateResponse{}, fmt.Errorf("%w: user %s on tenant %s", ErrAccessDenied, req.UserID, req.TenantID)
	}
	if integration.Configured() {
		return InitiateResponse{}, fmt.Errorf("%w: integration %s", ErrAlreadyConfigured, integration.ID)
	}
	provider, found, err := s.providerCatalog.Get(ctx, integration.ProviderID)
	if err != nil {
		return InitiateResponse{}, fmt.Errorf("core: provider lookup: %w", err)
	}
	if !found || !provider.Enabled {
		return InitiateResponse{}, fmt.Errorf("%w: provider %q", ErrProviderUnavailable, integration.ProviderID)
	}

	nonce, err := NewStateNonce()
	if err != nil {
		return InitiateResponse{}, err
	}
	claims := StateClaims{
		TenantID:      req.TenantID,
		IntegrationID: req.IntegrationID,
		UserID:        req.UserID,
		IssuedAt:      startedAt,
		Nonce:         nonce,
	}
	state, err := s.stateCodec.Encode(claims)
	if err != nil {
		return InitiateResponse{}, err
	}

	redirectURI, err := s.defaultRedirectURI()
	if err != nil {
		return InitiateResponse{}, err
	}
	authorizationURL, err := buildAuthorizationURL(provider, redirectURI, state)
	if err != nil {
		return InitiateResponse{}, err
	}

	s.recordAttempt(ctx, CallbackAttempt{
		EventType:     InitiateEventType,
		UserID:        req.UserID,
		IntegrationID: req.IntegrationID,
		TenantID:      req.TenantID,
		ProviderID:    provider.ID,
		Outcome:       CallbackOutcomeSuccess,
	})

	return InitiateResponse{
		AuthorizationURL: authorizationURL,
		State:            state,
		Provider:         provider,
	}, nil
}

// CompleteCallback runs the full pipeline for one inbound provider redirect.
// It always produces a redirect decision: on rejection the result carries the
// external error code and the error-page URL, and the returned error is nil.
// A non-nil error indicates an infrastructure failure, not a policy rejection.
func (s *Service) CompleteCallback(ctx context.Context, req CallbackRequest) (CallbackResult, error) {
	if s == nil {
		return CallbackResult{}, fmt.Errorf("core: service is not configured")
	}
	startedAt := time.Now()
	attempt := CallbackAttempt{
		EventType: CallbackEventType,
		IP:        strings.TrimSpace(req.RemoteIP),
		UserAgent: strings.TrimSpace(req.UserAgent),
	}
	fields := map[string]any{
		"host": strings.TrimSpace(req.Host),
	}

	claims, err := s.stateCodec.Decode(req.State)
	if err != nil {
		switch {
		case errors.Is(err, ErrMalformedState):
			attempt.FlagSecurityIssue(SecurityIssueMalformedState)
		case errors.Is(err, ErrStateFromFuture):
			attempt.FlagSecurityIssue(SecurityIssueStateFromFuture)
		}
		return s.rejectCallback(ctx, startedAt, attempt, fields, err)
	}
	attempt.UserID = claims.UserID
	attempt.IntegrationID = claims.IntegrationID
	attempt.TenantID = claims.TenantID
	attempt.StateAgeMS = claims.Age(startedAt).Milliseconds()
	fields["tenant_id"] = claims.TenantID.String()
	fields["integration_id"] = claims.IntegrationID.String()
	fields["user_id"] = claims.UserID.String()
	fields["state_age_ms"] = attempt.StateAgeMS

	redirectURI, err := s.redirectValidator.Validate(req.Host, req.Scheme)
	if err != nil {
		attempt.FlagSecurityIssue(SecurityIssueUntrustedHost)
		return s.rejectCallback(ctx, startedAt, attempt, fields, err)
	}

	authorized, err := s.ownership.Authorize(ctx, claims)
	if err != nil {
		if errors.Is(err, ErrAlreadyConfigured) {
			attempt.FlagSecurityIssue(SecurityIssueReplayDetected)
		}
		return s.rejectCallback(ctx, startedAt, attempt, fields, err)
	}
	attempt.ProviderID = authorized.Integration.ProviderID
	fields["provider_id"] = authorized.Integration.ProviderID

	if !authorized.Consume() {
		return s.rejectCallback(ctx, startedAt, attempt, fields,
			fmt.Errorf("%w: callback authorization reused", ErrCommitConflict))
	}

	exchange, err := s.exchangeCode(ctx, authorized, req.Code, redirectURI)
	if err != nil {
		// A definitive provider failure marks the record so operators can see
		// the broken attempt. A timeout is indeterminate and leaves the record
		// pending for a retry.
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			if updateErr := s.integrationStore.UpdateStatus(ctx, claims.IntegrationID, IntegrationStatusError, err.Error()); updateErr != nil {
				s.logError(ctx, "status update after failed exchange", map[string]any{
					"integration_id": claims.IntegrationID.String(),
					"error":          updateErr.Error(),
				})
			}
		}
		return s.rejectCallback(ctx, startedAt, attempt, fields, err)
	}

	integration, err := s.integrationStore.CommitActivation(ctx, CommitActivationInput{
		IntegrationID: claims.IntegrationID,
		TenantID:      claims.TenantID,
		AccessToken:   exchange.AccessToken,
		RefreshToken:  exchange.RefreshToken,
		ScopesGranted: exchange.GrantedScopes,
	})
	if err != nil {
		if errors.Is(err, ErrCommitConflict) {
			attempt.FlagSecurityIssue(SecurityIssueReplayDetected)
		}
		return s.rejectCallback(ctx, startedAt, attempt, fields, err)
	}

	attempt.Outcome = CallbackOutcomeSuccess
	s.recordAttempt(ctx, attempt)
	fields["outcome"] = string(CallbackOutcomeSuccess)
	s.observeOperation(ctx, startedAt, "oauth_callback", nil, fields)

	return CallbackResult{
		RedirectURL: s.config.Callback.SuccessRedirect,
		Integration: integration,
	}, nil
}

func (s *Service) exchangeCode(ctx context.Context, authorized *AuthorizedCallback, code string, redirectURI string) (ExchangeResult, error) {
	if s.exchanger == nil {
		return ExchangeResult{}, fmt.Errorf("%w: token exchanger is not configured", ErrProviderUnavailable)
	}
	if strings.TrimSpace(code) == "" {
		return ExchangeResult{}, fmt.Errorf("%w: authorization code is empty", ErrExchangeFailed)
	}
	exchangeCtx := ctx
	if timeout := s.config.Callback.ExchangeTimeout; timeout > 0 {
		var cancel context.CancelFunc
		exchangeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	result, err := s.exchanger.Exchange(exchangeCtx, ExchangeRequest{
		ProviderID:  authorized.Provider.ID,
		Code:        code,
		RedirectURI: redirectURI,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ExchangeResult{}, err
		}
		return ExchangeResult{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if strings.TrimSpace(result.AccessToken) == "" {
		return ExchangeResult{}, fmt.Errorf("%w: provider returned no access token", ErrExchangeFailed)
	}
	return result, nil
}

func (s *Service) rejectCallback(
	ctx context.Context,
	startedAt time.Time,
	attempt CallbackAttempt,
	fields map[string]any,
	cause error,
) (CallbackResult, error) {
	external := Externalize(cause)
	attempt.Outcome = CallbackOutcomeRejected
	attempt.ErrorCode = external.Code
	s.recordAttempt(ctx, attempt)

	fields["outcome"] = string(CallbackOutcomeRejected)
	fields["error_code"] = external.Code
	if attempt.Flagged() {
		fields["security_issues"] = securityIssueStrings(attempt.SecurityIssues)
	}
	s.observeOperation(ctx, startedAt, "oauth_callback", cause, fields)

	return CallbackResult{
		RedirectURL: s.errorRedirectURL(external.Code),
		ErrorCode:   external.Code,
	}, nil
}

func (s *Service) errorRedirectURL(code string) string {
	target, err := url.Parse(s.config.Callback.ErrorRedirect)
	if err != nil {
		return s.config.Callback.ErrorRedirect
	}
	query := target.Query()
	query.Set("error", code)
	target.RawQuery = query.Encode()
	return target.String()
}

func (s *Service) defaultRedirectURI() (string, error) {
	hosts := s.config.Callback.AllowedHosts
	if len(hosts) == 0 {
		return "", fmt.Errorf("core: no allowed callback hosts configured")
	}
	return s.redirectValidator.Validate(hosts[0], "https")
}

func (s *Service) recordAttempt(ctx context.Context, attempt CallbackAttempt) {
	if s.auditRecorder == nil {
		return
	}
	// Record logs and queues its own fallback; the pipeline never fails an
	// attempt because the audit write failed.
	_ = s.auditRecorder.Record(ctx, attempt)
}

// SweepStalePending transitions pending integrations older than the configured
// window into the error state. It returns the number of records swept.
func (s *Service) SweepStalePending(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: service is not configured")
	}
	startedAt := time.Now()
	cutoff := startedAt.Add(-s.config.Sweep.PendingMaxAge)

	stale, err := s.integrationStore.ListStalePending(ctx, cutoff)
	if err != nil {
		s.observeOperation(ctx, startedAt, "pending_sweep", err, map[string]any{})
		return 0, mapBuildError(s.errorMapper, fmt.Errorf("core: stale pending lookup: %w", err))
	}

	swept := 0
	for _, record := range stale {
		if err := s.integrationStore.UpdateStatus(ctx, record.ID, IntegrationStatusError, "authorization was not completed in time"); err != nil {
			s.logError(ctx, "stale pending sweep update", map[string]any{
				"integration_id": record.ID.String(),
				"error":          err.Error(),
			})
			continue
		}
		swept++
	}

	s.observeOperation(ctx, startedAt, "pending_sweep", nil, map[string]any{
		"candidates": len(stale),
		"swept":      swept,
	})
	return swept, nil
}

func buildAuthorizationURL(provider CloudProvider, redirectURI string, state string) (string, error) {
	target, err := url.Parse(provider.AuthURL)
	if err != nil {
		return "", fmt.Errorf("core: provider auth url: %w", err)
	}
	query := target.Query()
	query.Set("response_type", "code")
	query.Set("redirect_uri", redirectURI)
	if scope := strings.TrimSpace(strings.Join(provider.DefaultScope, " ")); scope != "" {
		query.Set("scope", scope)
	}
	query.Set("state", state)
	target.RawQuery = query.Encode()
	return target.String(), nil
}

var _ CallbackService = (*Service)(nil)
