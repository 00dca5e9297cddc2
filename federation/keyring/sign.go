// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/bureau-foundation/hearth/lib/canonical"
	"github.com/bureau-foundation/hearth/lib/ref"
)

// SigningKey is the local server's ed25519 signing key together with
// the key ID its signatures are published under.
type SigningKey struct {
	ID      ref.KeyID
	Private ed25519.PrivateKey
}

// Public returns the verification half of the key.
func (k SigningKey) Public() ed25519.PublicKey {
	return k.Private.Public().(ed25519.PublicKey)
}

// GenerateSigningKey creates a fresh ed25519 key under the given
// version string (the part of the key ID after "ed25519:").
func GenerateSigningKey(version string) (SigningKey, error) {
	keyID, err := ref.ParseKeyID(ref.AlgorithmEd25519 + ":" + version)
	if err != nil {
		return SigningKey{}, fmt.Errorf("keyring: %w", err)
	}
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return SigningKey{}, fmt.Errorf("keyring: generate key: %w", err)
	}
	return SigningKey{ID: keyID, Private: private}, nil
}

// ParseSigningKey decodes the single-line on-disk key format:
//
//	ed25519 <version> <unpadded base64 seed>
func ParseSigningKey(data []byte) (SigningKey, error) {
	fields := strings.Fields(string(data))
	if len(fields) != 3 {
		return SigningKey{}, fmt.Errorf("keyring: signing key file must have exactly three fields, got %d", len(fields))
	}
	if fields[0] != ref.AlgorithmEd25519 {
		return SigningKey{}, fmt.Errorf("keyring: unsupported signing algorithm %q", fields[0])
	}
	keyID, err := ref.ParseKeyID(fields[0] + ":" + fields[1])
	if err != nil {
		return SigningKey{}, fmt.Errorf("keyring: %w", err)
	}
	seed, err := decodeBase64(fields[2])
	if err != nil {
		return SigningKey{}, fmt.Errorf("keyring: decode key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return SigningKey{}, fmt.Errorf("keyring: key seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return SigningKey{ID: keyID, Private: ed25519.NewKeyFromSeed(seed)}, nil
}

// LoadSigningKey reads and parses a signing key file.
func LoadSigningKey(path string) (SigningKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SigningKey{}, fmt.Errorf("keyring: read signing key: %w", err)
	}
	return ParseSigningKey(data)
}

// Encode serializes the key in the on-disk format accepted by
// ParseSigningKey.
func (k SigningKey) Encode() []byte {
	seed := base64.RawStdEncoding.EncodeToString(k.Private.Seed())
	return []byte(ref.AlgorithmEd25519 + " " + k.ID.Identifier() + " " + seed + "\n")
}

// SignValue signs a canonical object (an event value or a key
// document) and returns it with the signature inserted under
// signatures[server][keyID]. Existing signatures from other servers
// are preserved. The signature covers the value with its signatures
// and unsigned fields removed.
func SignValue(value canonical.Value, server ref.ServerName, key SigningKey) (canonical.Value, error) {
	if value.Kind() != canonical.Object {
		return canonical.Value{}, fmt.Errorf("keyring: can only sign a JSON object")
	}
	signingBytes, err := canonical.SigningBytes(value)
	if err != nil {
		return canonical.Value{}, err
	}
	signature := ed25519.Sign(key.Private, signingBytes)
	encoded := base64.RawStdEncoding.EncodeToString(signature)

	signatures, ok := value.Get("signatures")
	if !ok || signatures.Kind() != canonical.Object {
		signatures = canonical.NewObject()
	}
	byKey, ok := signatures.Get(server.String())
	if !ok || byKey.Kind() != canonical.Object {
		byKey = canonical.NewObject()
	}
	byKey.Set(key.ID.String(), canonical.NewString(encoded))
	signatures.Set(server.String(), byKey)
	value.Set("signatures", signatures)
	return value, nil
}

// decodeBase64 accepts both unpadded (the wire norm) and padded
// standard base64.
func decodeBase64(s string) ([]byte, error) {
	if decoded, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
