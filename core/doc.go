// Package core contains the canonical integrations domain contracts, entities,
// and the OAuth callback orchestration logic. Lower-level adapters must depend
// on this package; core must not depend on provider-specific or
// transport-specific adapters.
package core
