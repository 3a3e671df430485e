package query

import (
	"github.com/goliatone/go-integrations/core"
)

const (
	TypeGetIntegration       = "integrations.query.integration.get"
	TypeListCallbackAttempts = "integrations.query.callback_attempts.list"
	TypeListProviders        = "integrations.query.providers.list"
)

type GetIntegrationMessage struct {
	TenantID      core.ObjectID
	IntegrationID core.ObjectID
}

func (GetIntegrationMessage) Type() string { return TypeGetIntegration }

func (m GetIntegrationMessage) Validate() error {
	if err := m.TenantID.Validate(); err != nil {
		return queryValidationError("tenant_id", err.Error())
	}
	if err := m.IntegrationID.Validate(); err != nil {
		return queryValidationError("integration_id", err.Error())
	}
	return nil
}

// ListCallbackAttemptsMessage pages the audit trail for one integration,
// newest first. Limit <= 0 falls back to the reader's default page size.
type ListCallbackAttemptsMessage struct {
	TenantID      core.ObjectID
	IntegrationID core.ObjectID
	Limit         int
}

func (ListCallbackAttemptsMessage) Type() string { return TypeListCallbackAttempts }

func (m ListCallbackAttemptsMessage) Validate() error {
	if err := m.TenantID.Validate(); err != nil {
		return queryValidationError("tenant_id", err.Error())
	}
	if err := m.IntegrationID.Validate(); err != nil {
		return queryValidationError("integration_id", err.Error())
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type ListProvidersMessage struct{}

func (ListProvidersMessage) Type() string { return TypeListProviders }

func (ListProvidersMessage) Validate() error { return nil }
