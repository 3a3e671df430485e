package core

import (
	"errors"
	"testing"
)

func TestRedirectValidator_AllowlistedHostCanonicalizes(t *testing.T) {
	validator := NewRedirectValidator([]string{"App.Example.COM", "other.example.com"}, "/oauth/callback")

	uri, err := validator.Validate("app.example.com", "https")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if uri != "https://app.example.com/oauth/callback" {
		t.Fatalf("unexpected canonical uri: %q", uri)
	}
}

func TestRedirectValidator_NormalizesCaseAndTrailingDot(t *testing.T) {
	validator := NewRedirectValidator([]string{"app.example.com"}, "")

	for _, host := range []string{"APP.EXAMPLE.COM", "app.example.com.", "  app.example.com  "} {
		uri, err := validator.Validate(host, "https")
		if err != nil {
			t.Fatalf("host %q: %v", host, err)
		}
		if uri != "https://app.example.com/oauth/callback" {
			t.Fatalf("host %q: unexpected uri %q", host, uri)
		}
	}
}

func TestRedirectValidator_RejectsUnknownHost(t *testing.T) {
	validator := NewRedirectValidator([]string{"app.example.com"}, "/oauth/callback")

	for _, host := range []string{"evil.example.com", "app.example.com.evil.net", ""} {
		if _, err := validator.Validate(host, "https"); !errors.Is(err, ErrUntrustedHost) {
			t.Fatalf("host %q: expected ErrUntrustedHost, got %v", host, err)
		}
	}
}

func TestRedirectValidator_AlwaysReportsHTTPS(t *testing.T) {
	validator := NewRedirectValidator([]string{"app.example.com"}, "/oauth/callback")

	uri, err := validator.Validate("app.example.com", "http")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if uri != "https://app.example.com/oauth/callback" {
		t.Fatalf("expected https callback uri regardless of observed scheme, got %q", uri)
	}
}
