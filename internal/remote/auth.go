package remote

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type AuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Token        string
}

// NewTokenSource picks client credentials when configured, then a static
// token. It returns nil when the remote is used anonymously.
func NewTokenSource(ctx context.Context, cfg AuthConfig) oauth2.TokenSource {
	if cfg.ClientID != "" && cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		return cc.TokenSource(ctx)
	}

	if cfg.Token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.Token,
			TokenType:   "Bearer",
		})
	}

	return nil
}
