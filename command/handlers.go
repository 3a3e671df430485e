package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

type InitiateAuthorizationCommand struct {
	service core.CallbackService
}

func NewInitiateAuthorizationCommand(service core.CallbackService) *InitiateAuthorizationCommand {
	return &InitiateAuthorizationCommand{service: service}
}

func (c *InitiateAuthorizationCommand) Execute(ctx context.Context, msg InitiateAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.InitiateAuthorization(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteCallbackCommand struct {
	service core.CallbackService
}

func NewCompleteCallbackCommand(service core.CallbackService) *CompleteCallbackCommand {
	return &CompleteCallbackCommand{service: service}
}

func (c *CompleteCallbackCommand) Execute(ctx context.Context, msg CompleteCallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.CompleteCallback(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SweepStalePendingCommand struct {
	service core.CallbackService
}

func NewSweepStalePendingCommand(service core.CallbackService) *SweepStalePendingCommand {
	return &SweepStalePendingCommand{service: service}
}

func (c *SweepStalePendingCommand) Execute(ctx context.Context, msg SweepStalePendingMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	swept, err := c.service.SweepStalePending(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, swept)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
