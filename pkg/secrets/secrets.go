// Package secrets generates random identifiers and derives purpose-bound keys
// from the root secret.
package secrets

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	dErrors "agentauth/pkg/domain-errors"
)

// Key derivation labels. Changing one rotates every key derived from it.
const (
	LabelDelegationToken = "agentauth/delegation-token/v1"
	LabelProofToken      = "agentauth/proof-token/v1"
	LabelAuditSigning    = "agentauth/audit-signing/v1"
)

// Generate returns n random bytes encoded as unpadded base64url.
func Generate(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Derive expands root into a size-byte key bound to label (HKDF-SHA256).
func Derive(root, label string, size int) ([]byte, error) {
	if root == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "root secret cannot be empty")
	}
	out := make([]byte, size)
	r := hkdf.New(sha256.New, []byte(root), nil, []byte(label))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive %s: %w", label, err)
	}
	return out, nil
}

// Ed25519Key derives a deterministic signing key for label. A non-empty seed
// overrides derivation and is used as HKDF input instead of root.
func Ed25519Key(root, seed, label string) (ed25519.PrivateKey, error) {
	input := root
	if seed != "" {
		input = seed
	}
	b, err := Derive(input, label, ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	return ed25519.NewKeyFromSeed(b), nil
}
