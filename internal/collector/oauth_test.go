package collector_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentoven/agentoven/control-plane/internal/collector"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

func TestRefreshOAuthToken_ExchangesRefreshTokenForAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	conn := &models.PlatformConnection{
		ID: "conn-1",
		Metadata: map[string]string{
			"oauth_token_url":    srv.URL,
			"oauth_client_id":    "client-id",
			"oauth_client_secret": "client-secret",
		},
	}

	tok, err := collector.RefreshOAuthToken(context.Background(), conn, "refresh-token-value")
	if err != nil {
		t.Fatalf("RefreshOAuthToken: %v", err)
	}
	if tok.AccessToken != "new-access-token" {
		t.Errorf("AccessToken = %q, want new-access-token", tok.AccessToken)
	}
}

func TestRefreshOAuthToken_MissingTokenURLIsAnError(t *testing.T) {
	conn := &models.PlatformConnection{ID: "conn-1", Metadata: map[string]string{}}
	if _, err := collector.RefreshOAuthToken(context.Background(), conn, "refresh-token-value"); err == nil {
		t.Fatal("expected an error when oauth_token_url is missing")
	}
}

func TestRefreshOAuthToken_TokenEndpointErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	conn := &models.PlatformConnection{
		ID:       "conn-1",
		Metadata: map[string]string{"oauth_token_url": srv.URL},
	}
	if _, err := collector.RefreshOAuthToken(context.Background(), conn, "refresh-token-value"); err == nil {
		t.Fatal("expected an error when the token endpoint rejects the refresh")
	}
}
