// Package contracts defines the interfaces at the boundary between the
// Discovery Pipeline core and its external collaborators (§6.2, §6.3):
// the encryption primitive and the scheduler trigger. Per-platform API
// clients have no interface here; each collector adapter calls its
// platform through internal/collector's HTTP client. Defined in pkg/ (not internal/) so an external API layer can
// depend on them without importing internal/ packages.
package contracts

import "context"

// ── Cipher (§6.2) ────────────────────────────────────────────

// Cipher is the black-box encryption primitive the Credential Store uses
// to encrypt OAuth credentials at rest. Key rotation is transparent to
// the core: Decrypt must succeed for any ciphertext produced by a prior
// Encrypt call regardless of which key_id is now "current".
type Cipher interface {
	Encrypt(ctx context.Context, plaintext string, keyID string) (ciphertext string, err error)
	Decrypt(ctx context.Context, ciphertext string, keyID string) (plaintext string, err error)
}

// ── Scheduler / request trigger (§6.2) ───────────────────────

// DiscoveryTrigger is the signature an external scheduler or request
// handler uses to kick off a session. It returns a run id synchronously;
// the terminal event arrives later via the Progress Bus.
type DiscoveryTrigger func(ctx context.Context, orgID, connectionID string) (runID string, err error)
