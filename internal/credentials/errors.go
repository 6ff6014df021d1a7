package credentials

import "errors"

// Sentinel errors for the Credential Store's failure semantics (§4.1, §7).
var (
	// ErrNotFound means no credential of the requested type exists for
	// this connection — per-session fatal, category authentication.
	ErrNotFound = errors.New("credential not found")

	// ErrExpired means a credential exists but has expired and either no
	// refresh token is on file or the refresh attempt failed terminally.
	ErrExpired = errors.New("credential expired")

	// ErrCorrupt means decryption failed. Fatal for this connection.
	ErrCorrupt = errors.New("credential corrupt: decryption failed")
)
