package onedrive

import (
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

const (
	ProviderID = "microsoft_onedrive"
	AuthURL    = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	TokenURL   = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
)

type Config struct {
	ClientID      string
	ClientSecret  string
	AuthURL       string
	TokenURL      string
	DefaultScopes []string
	TokenTTL      time.Duration
}

func DefaultConfig() Config {
	return Config{
		AuthURL:  AuthURL,
		TokenURL: TokenURL,
		DefaultScopes: []string{
			"Files.Read",
			"offline_access",
		},
	}
}

func New(cfg Config) (*providers.OAuth2Exchanger, error) {
	defaults := DefaultConfig()
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if len(cfg.DefaultScopes) == 0 {
		cfg.DefaultScopes = defaults.DefaultScopes
	}
	return providers.NewOAuth2Exchanger(providers.OAuth2Config{
		ID:                 ProviderID,
		TokenURL:           cfg.TokenURL,
		ClientID:           cfg.ClientID,
		ClientSecret:       cfg.ClientSecret,
		ClientSecretInBody: true,
		TokenTTL:           cfg.TokenTTL,
	})
}

// Catalog returns the catalog entry matching this provider's endpoints.
func Catalog(cfg Config) core.CloudProvider {
	defaults := DefaultConfig()
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if len(cfg.DefaultScopes) == 0 {
		cfg.DefaultScopes = defaults.DefaultScopes
	}
	return core.CloudProvider{
		ID:           ProviderID,
		Name:         "Microsoft OneDrive",
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		Enabled:      true,
		DefaultScope: append([]string{}, cfg.DefaultScopes...),
	}
}
