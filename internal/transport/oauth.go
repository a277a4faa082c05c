package transport

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/oauth2/clientcredentials"
)

// OAuthConfig describes optional client-credentials auth for the upstream API.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Enabled reports whether a token endpoint is configured.
func (o OAuthConfig) Enabled() bool {
	return strings.TrimSpace(o.TokenURL) != ""
}

// NewHTTPClient returns an HTTP client that attaches bearer tokens when OAuth
// is configured, or a plain client otherwise. Tokens are cached and refreshed
// by the oauth2 transport.
func NewHTTPClient(ctx context.Context, o OAuthConfig) *http.Client {
	if !o.Enabled() {
		return &http.Client{}
	}
	cfg := clientcredentials.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		TokenURL:     o.TokenURL,
		Scopes:       o.Scopes,
	}
	return cfg.Client(ctx)
}
