package core

import (
	"fmt"
	"strings"
)

const defaultCallbackPath = "/oauth/callback"

// RedirectValidator checks the callback's own addressing: the host the
// pipeline is being reached on and will report back to the provider. It is
// not a user-supplied redirect target check. Callbacks are always reported as
// HTTPS regardless of the observed scheme; HTTP-only callback targets are
// never valid, including local development.
type RedirectValidator struct {
	allowed      map[string]struct{}
	callbackPath string
}

func NewRedirectValidator(allowedHosts []string, callbackPath string) *RedirectValidator {
	allowed := make(map[string]struct{}, len(allowedHosts))
	for _, host := range allowedHosts {
		normalized := normalizeHost(host)
		if normalized == "" {
			continue
		}
		allowed[normalized] = struct{}{}
	}
	callbackPath = strings.TrimSpace(callbackPath)
	if callbackPath == "" {
		callbackPath = defaultCallbackPath
	}
	if !strings.HasPrefix(callbackPath, "/") {
		callbackPath = "/" + callbackPath
	}
	return &RedirectValidator{allowed: allowed, callbackPath: callbackPath}
}

// Validate returns the canonical HTTPS callback URI for an allowlisted host.
// The observed scheme is accepted as input (TLS may terminate upstream) but
// the effective callback URI is constructed as HTTPS unconditionally.
func (v *RedirectValidator) Validate(requestHost string, requestScheme string) (string, error) {
	if v == nil {
		return "", fmt.Errorf("core: redirect validator is not configured")
	}
	host := normalizeHost(requestHost)
	if host == "" {
		return "", fmt.Errorf("%w: empty host", ErrUntrustedHost)
	}
	if _, ok := v.allowed[host]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUntrustedHost, host)
	}
	return "https://" + host + v.callbackPath, nil
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	host = strings.TrimSuffix(host, ".")
	return host
}
