// Package credentials implements the Credential Store (C1): a
// write-through cache over encrypted durable storage, with single-flight
// refresh so concurrent callers share one in-flight refresh per
// connection (§4.1, §5, P5, scenario 6).
package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentoven/agentoven/control-plane/pkg/contracts"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DurableStore is the encrypted-at-rest backing store for credentials.
// Implementations: MemoryDurableStore (tests/local dev) and
// PostgresDurableStore (§6.1: encrypted_credentials table).
type DurableStore interface {
	// Load returns the encrypted credential row, or ErrNotFound.
	Load(ctx context.Context, connectionID string, credType models.CredentialType) (*models.OAuthCredential, error)
	// Save upserts the encrypted credential row.
	Save(ctx context.Context, cred *models.OAuthCredential) error
	// Delete removes all credential rows for a connection.
	Delete(ctx context.Context, connectionID string) error
	Ping(ctx context.Context) error
	Close() error
}

// ConnectionLookup resolves a connection's platform_type, which the
// Store needs to pick the right Refresher on expiry.
type ConnectionLookup interface {
	GetConnection(ctx context.Context, connectionID string) (*models.PlatformConnection, error)
}

// Refresher performs a platform-specific OAuth refresh. Each Platform
// Collector that supports the refresh_token capability implements this.
type Refresher interface {
	Refresh(ctx context.Context, conn *models.PlatformConnection, refreshToken *models.OAuthCredential) (*models.OAuthCredential, error)
}

// cacheKey is (connection_id, credential_type) — the same composite key
// the durable store and I-C1 use.
type cacheKey struct {
	connectionID string
	credType     models.CredentialType
}

// Store is the Credential Store (C1). One Store instance is shared across
// the process; callers never hold their own cache.
type Store struct {
	durable     DurableStore
	cipher      contracts.Cipher
	connections ConnectionLookup
	refreshers  map[models.PlatformType]Refresher

	refreshWindow time.Duration

	mu    sync.RWMutex
	cache map[cacheKey]*models.OAuthCredential

	// sf ensures at most one concurrent refresh per connection_id; other
	// waiters share its result (§4.1, §5, scenario 6).
	sf singleflight.Group

	encryptionKeyID string
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithRefresher registers the Refresher used to renew credentials for a
// given platform type.
func WithRefresher(pt models.PlatformType, r Refresher) Option {
	return func(s *Store) { s.refreshers[pt] = r }
}

// New creates a Credential Store backed by durable and encrypted with cipher.
func New(durable DurableStore, cipher contracts.Cipher, connections ConnectionLookup, refreshWindow time.Duration, opts ...Option) *Store {
	s := &Store{
		durable:         durable,
		cipher:          cipher,
		connections:     connections,
		refreshers:      make(map[models.PlatformType]Refresher),
		refreshWindow:   refreshWindow,
		cache:           make(map[cacheKey]*models.OAuthCredential),
		encryptionKeyID: "default",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetValidCredentials returns a usable access token for connectionID,
// refreshing it first if it's within the refresh window of expiry
// (§4.1). Reads miss the cache, load from durable storage, decrypt, and
// populate the cache before returning.
func (s *Store) GetValidCredentials(ctx context.Context, connectionID string) (*models.OAuthCredential, error) {
	cred, err := s.get(ctx, connectionID, models.CredentialAccessToken)
	if err != nil {
		return nil, err
	}

	if !cred.ExpiresWithin(s.refreshWindow, time.Now().UTC()) {
		return cred, nil
	}

	refreshed, err := s.refreshLocked(ctx, connectionID)
	if err != nil {
		// Refresh failed: if the existing token hasn't actually expired
		// yet, degrade gracefully and hand back what we have.
		if cred.ExpiresAt != nil && cred.ExpiresAt.After(time.Now().UTC()) {
			log.Warn().Err(err).Str("connection_id", connectionID).Msg("credential refresh failed, serving unexpired cached token")
			return cred, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrExpired, err)
	}
	return refreshed, nil
}

// get returns a credential from cache, or loads+decrypts+caches it.
func (s *Store) get(ctx context.Context, connectionID string, credType models.CredentialType) (*models.OAuthCredential, error) {
	key := cacheKey{connectionID, credType}

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	row, err := s.durable.Load(ctx, connectionID, credType)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.cipher.Decrypt(ctx, row.Ciphertext, row.EncryptionKeyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	row.Plaintext = plaintext

	s.mu.Lock()
	s.cache[key] = row
	s.mu.Unlock()

	return row, nil
}

// StoreCredentials persists cred: encrypts and writes to durable storage,
// then updates the cache atomically with respect to subsequent reads
// (I-C1). Durable-store write failure aborts before the cache is touched.
func (s *Store) StoreCredentials(ctx context.Context, cred *models.OAuthCredential) error {
	ciphertext, err := s.cipher.Encrypt(ctx, cred.Plaintext, s.encryptionKeyID)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}

	toSave := *cred
	toSave.Ciphertext = ciphertext
	toSave.EncryptionKeyID = s.encryptionKeyID

	if err := s.durable.Save(ctx, &toSave); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}

	key := cacheKey{cred.ConnectionID, cred.CredentialType}
	s.mu.Lock()
	s.cache[key] = cred
	s.mu.Unlock()

	return nil
}

// Revoke removes cred from both cache and durable storage.
func (s *Store) Revoke(ctx context.Context, connectionID string) error {
	if err := s.durable.Delete(ctx, connectionID); err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}

	s.mu.Lock()
	for k := range s.cache {
		if k.connectionID == connectionID {
			delete(s.cache, k)
		}
	}
	s.mu.Unlock()

	return nil
}

// refreshLocked performs (or joins) the single in-flight refresh for
// connectionID and returns the refreshed access token.
func (s *Store) refreshLocked(ctx context.Context, connectionID string) (*models.OAuthCredential, error) {
	v, err, _ := s.sf.Do(connectionID, func() (interface{}, error) {
		return s.doRefresh(ctx, connectionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.OAuthCredential), nil
}

func (s *Store) doRefresh(ctx context.Context, connectionID string) (*models.OAuthCredential, error) {
	conn, err := s.connections.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("resolve connection for refresh: %w", err)
	}

	refresher, ok := s.refreshers[conn.PlatformType]
	if !ok {
		return nil, fmt.Errorf("no refresher registered for platform %q", conn.PlatformType)
	}

	refreshToken, err := s.get(ctx, connectionID, models.CredentialRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}

	newAccessToken, err := refresher.Refresh(ctx, conn, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("platform refresh: %w", err)
	}

	if err := s.StoreCredentials(ctx, newAccessToken); err != nil {
		return nil, err
	}

	log.Info().
		Str("connection_id", connectionID).
		Str("platform_type", string(conn.PlatformType)).
		Msg("credential refreshed")

	return newAccessToken, nil
}
