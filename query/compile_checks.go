package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Querier[GetIntegrationMessage, core.Integration]             = (*GetIntegrationQuery)(nil)
	_ gocmd.Querier[ListCallbackAttemptsMessage, []core.CallbackAttempt] = (*ListCallbackAttemptsQuery)(nil)
	_ gocmd.Querier[ListProvidersMessage, []core.CloudProvider]          = (*ListProvidersQuery)(nil)
)
