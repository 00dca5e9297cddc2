// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/hearth/lib/canonical"
	"github.com/bureau-foundation/hearth/lib/ref"
)

// LoadSeed reads an operator-maintained trusted key file and pins
// every key in it. The file is JSONC (comments and trailing commas
// allowed) mapping server names to key IDs to base64 public keys:
//
//	{
//	  // peers we trust without fetching
//	  "peer.example.org": {
//	    "ed25519:a_Xyz": "dGhpcnR5LXR3byBieXRlcyBvZiBwdWJsaWMga2V5",
//	  },
//	}
func (s *Store) LoadSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("keyring: read seed file: %w", err)
	}
	if err := s.AddSeed(data); err != nil {
		return fmt.Errorf("keyring: seed file %s: %w", path, err)
	}
	return nil
}

// AddSeed parses JSONC seed data and pins the keys it lists.
func (s *Store) AddSeed(data []byte) error {
	var seed map[string]map[string]string
	if err := json.Unmarshal(jsonc.ToJSON(data), &seed); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	for serverName, keys := range seed {
		server, err := ref.ParseServerName(serverName)
		if err != nil {
			return err
		}
		for rawKeyID, encoded := range keys {
			keyID, err := ref.ParseKeyID(rawKeyID)
			if err != nil {
				return fmt.Errorf("server %s: %w", server, err)
			}
			decoded, err := decodeBase64(encoded)
			if err != nil {
				return fmt.Errorf("server %s key %s: bad base64: %w", server, keyID, err)
			}
			if len(decoded) != ed25519.PublicKeySize {
				return fmt.Errorf("server %s key %s: %d bytes, want %d", server, keyID, len(decoded), ed25519.PublicKeySize)
			}
			s.AddTrusted(server, keyID, ed25519.PublicKey(decoded))
		}
	}
	return nil
}

// ServerKeyDocument builds the local server's self-signed key document
// for serving at /_matrix/key/v2/server.
func ServerKeyDocument(server ref.ServerName, key SigningKey, validUntil time.Time) ([]byte, error) {
	document := canonical.NewObject()
	document.Set("server_name", canonical.NewString(server.String()))
	document.Set("valid_until_ts", canonical.NewInt(validUntil.UnixMilli()))

	entry := canonical.NewObject()
	entry.Set("key", canonical.NewString(base64.RawStdEncoding.EncodeToString(key.Public())))
	verifyKeys := canonical.NewObject()
	verifyKeys.Set(key.ID.String(), entry)
	document.Set("verify_keys", verifyKeys)
	document.Set("old_verify_keys", canonical.NewObject())

	signed, err := SignValue(document, server, key)
	if err != nil {
		return nil, err
	}
	return canonical.Encode(signed), nil
}
