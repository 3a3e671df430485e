package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/core"
)

// Router dispatches token exchanges to the exchanger registered for the
// request's provider.
type Router struct {
	mu         sync.RWMutex
	exchangers map[string]core.TokenExchanger
}

func NewRouter() *Router {
	return &Router{
		exchangers: map[string]core.TokenExchanger{},
	}
}

func (r *Router) Register(providerID string, exchanger core.TokenExchanger) error {
	if r == nil {
		return fmt.Errorf("providers: router is nil")
	}
	providerID = strings.TrimSpace(strings.ToLower(providerID))
	if providerID == "" {
		return fmt.Errorf("providers: provider id is required")
	}
	if exchanger == nil {
		return fmt.Errorf("providers: exchanger is required for provider %q", providerID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exchangers == nil {
		r.exchangers = map[string]core.TokenExchanger{}
	}
	if _, exists := r.exchangers[providerID]; exists {
		return fmt.Errorf("providers: exchanger for %q is already registered", providerID)
	}
	r.exchangers[providerID] = exchanger
	return nil
}

func (r *Router) Exchange(ctx context.Context, req core.ExchangeRequest) (core.ExchangeResult, error) {
	if r == nil {
		return core.ExchangeResult{}, fmt.Errorf("providers: router is nil")
	}
	providerID := strings.TrimSpace(strings.ToLower(req.ProviderID))

	r.mu.RLock()
	exchanger, ok := r.exchangers[providerID]
	r.mu.RUnlock()
	if !ok {
		return core.ExchangeResult{}, fmt.Errorf("%w: no exchanger registered for provider %q", core.ErrProviderUnavailable, providerID)
	}
	return exchanger.Exchange(ctx, req)
}

func (r *Router) ProviderIDs() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.exchangers))
	for providerID := range r.exchangers {
		out = append(out, providerID)
	}
	sort.Strings(out)
	return out
}

var _ core.TokenExchanger = (*Router)(nil)
