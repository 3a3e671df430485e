package command

import (
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	TypeInitiateAuthorization = "integrations.command.authorization.initiate"
	TypeCompleteCallback      = "integrations.command.callback.complete"
	TypeSweepStalePending     = "integrations.command.pending.sweep"
)

type InitiateAuthorizationMessage struct {
	Request core.InitiateRequest
}

func (InitiateAuthorizationMessage) Type() string { return TypeInitiateAuthorization }

func (m InitiateAuthorizationMessage) Validate() error {
	if err := m.Request.TenantID.Validate(); err != nil {
		return commandValidationError("tenant_id", err.Error())
	}
	if err := m.Request.IntegrationID.Validate(); err != nil {
		return commandValidationError("integration_id", err.Error())
	}
	if err := m.Request.UserID.Validate(); err != nil {
		return commandValidationError("user_id", err.Error())
	}
	return nil
}

// CompleteCallbackMessage carries the raw callback exactly as it arrived.
// Validation here only rejects requests the pipeline could not even audit;
// everything else is the pipeline's decision to make.
type CompleteCallbackMessage struct {
	Request core.CallbackRequest
}

func (CompleteCallbackMessage) Type() string { return TypeCompleteCallback }

func (m CompleteCallbackMessage) Validate() error {
	if strings.TrimSpace(m.Request.Host) == "" {
		return commandValidationError("host", "callback host is required")
	}
	return nil
}

type SweepStalePendingMessage struct{}

func (SweepStalePendingMessage) Type() string { return TypeSweepStalePending }

func (SweepStalePendingMessage) Validate() error { return nil }
