package services

import (
	"testing"

	"github.com/rohits-web03/vectorvault/internal/config"
)

func TestNewGoogleOauthConfig(t *testing.T) {
	if c := NewGoogleOauthConfig(config.GoogleConfig{ClientID: "id"}); c != nil {
		t.Error("config returned without a client secret")
	}
	c := NewGoogleOauthConfig(config.GoogleConfig{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost/cb"})
	if c == nil {
		t.Fatal("nil config with credentials")
	}
	if c.ClientID != "id" || c.RedirectURL != "http://localhost/cb" || len(c.Scopes) != 2 {
		t.Errorf("unexpected config %+v", c)
	}
	if c.Endpoint.TokenURL == "" {
		t.Error("google endpoint not set")
	}
}
