package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[InitiateAuthorizationMessage] = (*InitiateAuthorizationCommand)(nil)
	_ gocmd.Commander[CompleteCallbackMessage]      = (*CompleteCallbackCommand)(nil)
	_ gocmd.Commander[SweepStalePendingMessage]     = (*SweepStalePendingCommand)(nil)
)
