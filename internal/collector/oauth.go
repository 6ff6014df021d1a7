package collector

import (
	"context"
	"fmt"

	"github.com/agentoven/agentoven/control-plane/pkg/models"
	"golang.org/x/oauth2"
)

// RefreshOAuthToken performs a standard OAuth2 refresh_token grant
// against conn's token endpoint, using the client credentials and
// token URL the external onboarding collaborator stamped into
// conn.Metadata (§6.2). Shared by every Platform Collector adapter so
// none of them hand-roll the refresh_token POST themselves.
func RefreshOAuthToken(ctx context.Context, conn *models.PlatformConnection, refreshToken string) (*oauth2.Token, error) {
	tokenURL := conn.Metadata["oauth_token_url"]
	if tokenURL == "" {
		return nil, fmt.Errorf("connection %s has no oauth_token_url in metadata", conn.ID)
	}

	cfg := &oauth2.Config{
		ClientID:     conn.Metadata["oauth_client_id"],
		ClientSecret: conn.Metadata["oauth_client_secret"],
		Endpoint: oauth2.Endpoint{
			TokenURL: tokenURL,
		},
	}

	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("oauth2 refresh for connection %s: %w", conn.ID, err)
	}
	return tok, nil
}
