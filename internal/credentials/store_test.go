package credentials_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentoven/agentoven/control-plane/internal/cipher"
	"github.com/agentoven/agentoven/control-plane/internal/credentials"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

type fakeConnections struct {
	conn *models.PlatformConnection
}

func (f *fakeConnections) GetConnection(_ context.Context, connectionID string) (*models.PlatformConnection, error) {
	if f.conn == nil || f.conn.ID != connectionID {
		return nil, errors.New("connection not found")
	}
	return f.conn, nil
}

type countingRefresher struct {
	calls int
	delay time.Duration
}

func (r *countingRefresher) Refresh(_ context.Context, conn *models.PlatformConnection, _ *models.OAuthCredential) (*models.OAuthCredential, error) {
	r.calls++
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	expiry := time.Now().UTC().Add(time.Hour)
	return &models.OAuthCredential{
		ConnectionID:   conn.ID,
		CredentialType: models.CredentialAccessToken,
		Plaintext:      "refreshed-token",
		ExpiresAt:      &expiry,
	}, nil
}

func newTestStore(t *testing.T, refreshWindow time.Duration, conn *models.PlatformConnection, refresher credentials.Refresher) (*credentials.Store, *credentials.MemoryDurableStore) {
	t.Helper()
	durable := credentials.NewMemoryDurableStore()
	c := cipher.NewAESGCMCipher()
	opts := []credentials.Option{}
	if refresher != nil {
		opts = append(opts, credentials.WithRefresher(conn.PlatformType, refresher))
	}
	store := credentials.New(durable, c, &fakeConnections{conn: conn}, refreshWindow, opts...)
	return store, durable
}

func TestStore_GetValidCredentials_NotExpired(t *testing.T) {
	conn := &models.PlatformConnection{ID: "conn-1", PlatformType: "chat"}
	store, _ := newTestStore(t, time.Minute, conn, nil)

	expiry := time.Now().UTC().Add(time.Hour)
	if err := store.StoreCredentials(context.Background(), &models.OAuthCredential{
		ConnectionID:   "conn-1",
		CredentialType: models.CredentialAccessToken,
		Plaintext:      "access-token",
		ExpiresAt:      &expiry,
	}); err != nil {
		t.Fatalf("StoreCredentials: %v", err)
	}

	cred, err := store.GetValidCredentials(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("GetValidCredentials: %v", err)
	}
	if cred.Plaintext != "access-token" {
		t.Errorf("Plaintext = %q, want %q", cred.Plaintext, "access-token")
	}
}

func TestStore_GetValidCredentials_RefreshesWhenNearExpiry(t *testing.T) {
	conn := &models.PlatformConnection{ID: "conn-1", PlatformType: "chat"}
	refresher := &countingRefresher{}
	store, _ := newTestStore(t, 10*time.Minute, conn, refresher)

	soon := time.Now().UTC().Add(time.Minute)
	if err := store.StoreCredentials(context.Background(), &models.OAuthCredential{
		ConnectionID:   "conn-1",
		CredentialType: models.CredentialAccessToken,
		Plaintext:      "stale-token",
		ExpiresAt:      &soon,
	}); err != nil {
		t.Fatalf("StoreCredentials: %v", err)
	}
	if err := store.StoreCredentials(context.Background(), &models.OAuthCredential{
		ConnectionID:   "conn-1",
		CredentialType: models.CredentialRefreshToken,
		Plaintext:      "refresh-token",
	}); err != nil {
		t.Fatalf("StoreCredentials (refresh token): %v", err)
	}

	cred, err := store.GetValidCredentials(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("GetValidCredentials: %v", err)
	}
	if cred.Plaintext != "refreshed-token" {
		t.Errorf("Plaintext = %q, want refreshed-token", cred.Plaintext)
	}
	if refresher.calls != 1 {
		t.Errorf("refresher called %d times, want 1", refresher.calls)
	}
}

func TestStore_GetValidCredentials_ConcurrentRefreshSingleFlight(t *testing.T) {
	conn := &models.PlatformConnection{ID: "conn-1", PlatformType: "chat"}
	refresher := &countingRefresher{delay: 50 * time.Millisecond}
	store, _ := newTestStore(t, 10*time.Minute, conn, refresher)

	soon := time.Now().UTC().Add(time.Minute)
	store.StoreCredentials(context.Background(), &models.OAuthCredential{
		ConnectionID:   "conn-1",
		CredentialType: models.CredentialAccessToken,
		Plaintext:      "stale-token",
		ExpiresAt:      &soon,
	})
	store.StoreCredentials(context.Background(), &models.OAuthCredential{
		ConnectionID:   "conn-1",
		CredentialType: models.CredentialRefreshToken,
		Plaintext:      "refresh-token",
	})

	const concurrency = 10
	done := make(chan error, concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			_, err := store.GetValidCredentials(context.Background(), "conn-1")
			done <- err
		}()
	}
	for i := 0; i < concurrency; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent GetValidCredentials: %v", err)
		}
	}

	if refresher.calls != 1 {
		t.Errorf("refresher called %d times across %d concurrent callers, want 1", refresher.calls, concurrency)
	}
}

func TestStore_Revoke(t *testing.T) {
	conn := &models.PlatformConnection{ID: "conn-1", PlatformType: "chat"}
	store, durable := newTestStore(t, time.Minute, conn, nil)

	expiry := time.Now().UTC().Add(time.Hour)
	store.StoreCredentials(context.Background(), &models.OAuthCredential{
		ConnectionID:   "conn-1",
		CredentialType: models.CredentialAccessToken,
		Plaintext:      "access-token",
		ExpiresAt:      &expiry,
	})

	if err := store.Revoke(context.Background(), "conn-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	if _, err := durable.Load(context.Background(), "conn-1", models.CredentialAccessToken); !errors.Is(err, credentials.ErrNotFound) {
		t.Errorf("Load after revoke: err = %v, want ErrNotFound", err)
	}
	if _, err := store.GetValidCredentials(context.Background(), "conn-1"); err == nil {
		t.Error("expected GetValidCredentials to fail after revoke")
	}
}
