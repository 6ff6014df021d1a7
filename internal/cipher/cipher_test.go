package cipher_test

import (
	"context"
	"testing"

	"github.com/agentoven/agentoven/control-plane/internal/cipher"
)

func TestAESGCMCipher_RoundTrip(t *testing.T) {
	c := cipher.NewAESGCMCipher()
	ctx := context.Background()

	ciphertext, err := c.Encrypt(ctx, "refresh-token-value", "key-1")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if ciphertext == "refresh-token-value" {
		t.Fatal("ciphertext must not equal plaintext")
	}

	plaintext, err := c.Decrypt(ctx, ciphertext, "key-1")
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plaintext != "refresh-token-value" {
		t.Errorf("plaintext = %q, want %q", plaintext, "refresh-token-value")
	}
}

func TestAESGCMCipher_DistinctKeyIDsDoNotInterop(t *testing.T) {
	c := cipher.NewAESGCMCipher()
	ctx := context.Background()

	ciphertext, err := c.Encrypt(ctx, "secret", "key-a")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := c.Decrypt(ctx, ciphertext, "key-b"); err == nil {
		t.Error("expected decrypt under the wrong key_id to fail")
	}
}

func TestAESGCMCipher_TamperedCiphertextFailsAuth(t *testing.T) {
	c := cipher.NewAESGCMCipher()
	ctx := context.Background()

	ciphertext, err := c.Encrypt(ctx, "secret", "key-1")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tampered := []byte(ciphertext)
	tampered[len(tampered)-1] ^= 0xFF
	if _, err := c.Decrypt(ctx, string(tampered), "key-1"); err == nil {
		t.Error("expected decrypt of tampered ciphertext to fail authentication")
	}
}

func TestAESGCMCipher_EnsureKeyIdempotent(t *testing.T) {
	c := cipher.NewAESGCMCipher()
	if err := c.EnsureKey("key-1"); err != nil {
		t.Fatalf("EnsureKey: %v", err)
	}
	ctx := context.Background()
	ciphertext, err := c.Encrypt(ctx, "secret", "key-1")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// Calling EnsureKey again must not rotate the existing key.
	if err := c.EnsureKey("key-1"); err != nil {
		t.Fatalf("EnsureKey (second call): %v", err)
	}
	if _, err := c.Decrypt(ctx, ciphertext, "key-1"); err != nil {
		t.Errorf("Decrypt after redundant EnsureKey: %v", err)
	}
}
