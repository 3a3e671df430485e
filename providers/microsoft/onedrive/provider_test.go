package onedrive

import "testing"

func TestNew_AppliesDefaults(t *testing.T) {
	exchanger, err := New(Config{ClientID: "client-1", ClientSecret: "secret-1"})
	if err != nil {
		t.Fatalf("new onedrive exchanger: %v", err)
	}
	if exchanger.ID() != ProviderID {
		t.Fatalf("expected provider id %q, got %q", ProviderID, exchanger.ID())
	}
}

func TestNew_RequiresClientID(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected missing client id to fail")
	}
}

func TestCatalog_MatchesExchangerEndpoints(t *testing.T) {
	entry := Catalog(Config{})
	if entry.ID != ProviderID {
		t.Fatalf("expected catalog id %q, got %q", ProviderID, entry.ID)
	}
	if entry.AuthURL != AuthURL || entry.TokenURL != TokenURL {
		t.Fatalf("expected default endpoints, got %q %q", entry.AuthURL, entry.TokenURL)
	}
	if !entry.Enabled {
		t.Fatalf("expected catalog entry to be enabled")
	}
	if len(entry.DefaultScope) == 0 {
		t.Fatalf("expected default scopes")
	}
}
