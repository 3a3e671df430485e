package query

import (
	"context"

	"github.com/goliatone/go-integrations/core"
)

type IntegrationReader interface {
	Find(ctx context.Context, tenantID core.ObjectID, integrationID core.ObjectID) (core.Integration, bool, error)
}

type CallbackAttemptReader interface {
	ListByIntegration(ctx context.Context, tenantID, integrationID core.ObjectID, limit int) ([]core.CallbackAttempt, error)
}

type GetIntegrationQuery struct {
	reader IntegrationReader
}

func NewGetIntegrationQuery(reader IntegrationReader) *GetIntegrationQuery {
	return &GetIntegrationQuery{reader: reader}
}

func (q *GetIntegrationQuery) Query(ctx context.Context, msg GetIntegrationMessage) (core.Integration, error) {
	if q == nil || q.reader == nil {
		return core.Integration{}, queryDependencyError("query: integration reader is required")
	}
	integration, found, err := q.reader.Find(ctx, msg.TenantID, msg.IntegrationID)
	if err != nil {
		return core.Integration{}, err
	}
	if !found {
		return core.Integration{}, queryNotFoundError("query: integration not found")
	}
	return integration, nil
}

type ListCallbackAttemptsQuery struct {
	reader CallbackAttemptReader
}

func NewListCallbackAttemptsQuery(reader CallbackAttemptReader) *ListCallbackAttemptsQuery {
	return &ListCallbackAttemptsQuery{reader: reader}
}

func (q *ListCallbackAttemptsQuery) Query(
	ctx context.Context,
	msg ListCallbackAttemptsMessage,
) ([]core.CallbackAttempt, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: callback attempt reader is required")
	}
	return q.reader.ListByIntegration(ctx, msg.TenantID, msg.IntegrationID, msg.Limit)
}

type ListProvidersQuery struct {
	catalog core.ProviderCatalog
}

func NewListProvidersQuery(catalog core.ProviderCatalog) *ListProvidersQuery {
	return &ListProvidersQuery{catalog: catalog}
}

func (q *ListProvidersQuery) Query(ctx context.Context, msg ListProvidersMessage) ([]core.CloudProvider, error) {
	if q == nil || q.catalog == nil {
		return nil, queryDependencyError("query: provider catalog is required")
	}
	return q.catalog.List(ctx)
}
