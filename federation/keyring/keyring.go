// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/hearth/federation/event"
	"github.com/bureau-foundation/hearth/lib/canonical"
	"github.com/bureau-foundation/hearth/lib/clock"
	"github.com/bureau-foundation/hearth/lib/ref"
)

// maxKeyDocumentSize bounds a fetched key document. Real documents are
// a few hundred bytes; anything near this limit is hostile.
const maxKeyDocumentSize = 64 << 10

// defaultFetchTimeout bounds a single key document fetch.
const defaultFetchTimeout = 10 * time.Second

// VerifyKey is one cached ed25519 verification key with its validity
// window.
type VerifyKey struct {
	Key ed25519.PublicKey

	// ValidUntilTS is the origin's stated expiry in milliseconds, or 0
	// for a pinned key with no expiry. An expired key still verifies
	// events created before the expiry.
	ValidUntilTS int64

	// pinned keys come from the operator's seed file and survive
	// refetches and Invalidate.
	pinned bool
}

// usableAt reports whether the key may verify an event created at
// eventTS, given the current wall clock in milliseconds.
func (k VerifyKey) usableAt(eventTS, nowMS int64) bool {
	if k.pinned || k.ValidUntilTS == 0 {
		return true
	}
	return nowMS <= k.ValidUntilTS || eventTS <= k.ValidUntilTS
}

// Config parameterizes a Store. Zero fields get production defaults.
type Config struct {
	// Client performs key document fetches. Defaults to
	// http.DefaultClient.
	Client *http.Client

	// Clock drives expiry decisions. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives fetch and cache activity. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Scheme for key document URLs. Defaults to "https"; tests override
	// to "http".
	Scheme string

	// FetchTimeout bounds a single key document fetch. Defaults to ten
	// seconds.
	FetchTimeout time.Duration
}

// Store caches remote servers' verification keys and verifies event
// signatures against them. Safe for concurrent use.
type Store struct {
	client  *http.Client
	clock   clock.Clock
	logger  *slog.Logger
	scheme  string
	timeout time.Duration

	mu   sync.RWMutex
	keys map[ref.ServerName]map[ref.KeyID]VerifyKey

	// fingerprints holds the BLAKE3 digest of each server's last
	// accepted key document, so an unchanged refetch skips the cache
	// rewrite.
	fingerprints map[ref.ServerName][32]byte

	// singleflight per server: concurrent verifications of events from
	// the same origin share one fetch.
	fetching map[ref.ServerName]chan struct{}
}

// NewStore builds a Store from the given configuration.
func NewStore(cfg Config) *Store {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Store{
		client:       cfg.Client,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		scheme:       cfg.Scheme,
		timeout:      cfg.FetchTimeout,
		keys:         make(map[ref.ServerName]map[ref.KeyID]VerifyKey),
		fingerprints: make(map[ref.ServerName][32]byte),
		fetching:     make(map[ref.ServerName]chan struct{}),
	}
}

// AddTrusted pins a verification key that never expires and is never
// displaced by fetched documents. Used for the local server's own key
// and for operator-seeded peers.
func (s *Store) AddTrusted(server ref.ServerName, keyID ref.KeyID, key ed25519.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[server] == nil {
		s.keys[server] = make(map[ref.KeyID]VerifyKey)
	}
	s.keys[server][keyID] = VerifyKey{Key: key, pinned: true}
}

// Invalidate drops all fetched keys for a server, forcing a refetch on
// next use. Pinned keys survive.
func (s *Store) Invalidate(server ref.ServerName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fingerprints, server)
	for keyID, key := range s.keys[server] {
		if !key.pinned {
			delete(s.keys[server], keyID)
		}
	}
}

// VerifyEvent checks that the event carries a valid ed25519 signature
// from its origin server (the sender's server), fetching the origin's
// key document if the signing key is unknown or stale. Returns nil on
// success, a *VerificationError for cryptographic failure, or a
// *KeyResolutionError when the key could not be obtained.
func (s *Store) VerifyEvent(ctx context.Context, p *event.PDU) error {
	origin := p.Sender().Server()
	signingBytes, err := p.SigningBytes()
	if err != nil {
		return err
	}

	var candidates []ref.KeyID
	for _, keyID := range p.SignatureKeyIDs(origin) {
		if keyID.Algorithm() == ref.AlgorithmEd25519 {
			candidates = append(candidates, keyID)
		}
	}
	if len(candidates) == 0 {
		return &VerificationError{
			EventID: p.EventID(),
			Server:  origin,
			Reason:  "no ed25519 signature from origin",
		}
	}

	var lastErr error
	for _, keyID := range candidates {
		key, err := s.lookup(ctx, origin, keyID, p.OriginServerTS())
		if err != nil {
			lastErr = err
			continue
		}
		signature, _ := p.Signature(origin, keyID)
		if !ed25519.Verify(key.Key, signingBytes, signature) {
			return &VerificationError{
				EventID: p.EventID(),
				Server:  origin,
				Reason:  "signature by " + keyID.String() + " is invalid",
			}
		}
		return nil
	}
	return lastErr
}

// lookup returns a verification key usable for an event created at
// eventTS, fetching the server's key document when the cache has no
// usable entry.
func (s *Store) lookup(ctx context.Context, server ref.ServerName, keyID ref.KeyID, eventTS int64) (VerifyKey, error) {
	nowMS := s.clock.Now().UnixMilli()
	if key, ok := s.cached(server, keyID); ok && key.usableAt(eventTS, nowMS) {
		return key, nil
	}

	if err := s.fetch(ctx, server); err != nil {
		return VerifyKey{}, err
	}

	key, ok := s.cached(server, keyID)
	if !ok {
		return VerifyKey{}, &KeyResolutionError{
			Server: server,
			KeyID:  keyID,
			Reason: "key absent from server's key document",
		}
	}
	if !key.usableAt(eventTS, s.clock.Now().UnixMilli()) {
		return VerifyKey{}, &VerificationError{
			Server: server,
			Reason: fmt.Sprintf("key %s expired at %d before event timestamp %d", keyID, key.ValidUntilTS, eventTS),
		}
	}
	return key, nil
}

func (s *Store) cached(server ref.ServerName, keyID ref.KeyID) (VerifyKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[server][keyID]
	return key, ok
}

// fetch retrieves, validates, and installs a server's key document.
// Concurrent callers for the same server share one request.
func (s *Store) fetch(ctx context.Context, server ref.ServerName) error {
	s.mu.Lock()
	if waiting, ok := s.fetching[server]; ok {
		s.mu.Unlock()
		select {
		case <-waiting:
			// The other fetch finished; the caller re-reads the cache.
			return nil
		case <-ctx.Done():
			return &KeyResolutionError{Server: server, Reason: "fetch canceled", Err: ctx.Err()}
		}
	}
	done := make(chan struct{})
	s.fetching[server] = done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.fetching, server)
		s.mu.Unlock()
		close(done)
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	url := s.scheme + "://" + server.String() + "/_matrix/key/v2/server"
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &KeyResolutionError{Server: server, Reason: "build request", Err: err}
	}
	response, err := s.client.Do(request)
	if err != nil {
		return &KeyResolutionError{Server: server, Reason: "fetch key document", Err: err}
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return &KeyResolutionError{Server: server, Reason: fmt.Sprintf("key document fetch returned %d", response.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(response.Body, maxKeyDocumentSize))
	if err != nil {
		return &KeyResolutionError{Server: server, Reason: "read key document", Err: err}
	}

	document, err := canonical.ParseObject(body)
	if err != nil {
		return &KeyResolutionError{Server: server, Reason: "malformed key document", Err: err}
	}
	keys, err := validateKeyDocument(document, server)
	if err != nil {
		return err
	}
	s.install(server, document, keys)
	return nil
}

// install merges fetched keys into the cache, preserving pinned
// entries. The document's BLAKE3 fingerprint short-circuits unchanged
// refetches.
func (s *Store) install(server ref.ServerName, document canonical.Value, keys map[ref.KeyID]VerifyKey) {
	signingBytes, err := canonical.SigningBytes(document)
	if err != nil {
		// validateKeyDocument already encoded these bytes.
		return
	}
	fingerprint := blake3.Sum256(signingBytes)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fingerprints[server] == fingerprint {
		s.logger.Debug("key document unchanged", "server", server)
		return
	}

	merged := make(map[ref.KeyID]VerifyKey, len(keys))
	for keyID, key := range s.keys[server] {
		if key.pinned {
			merged[keyID] = key
		}
	}
	for keyID, key := range keys {
		if existing, ok := merged[keyID]; ok && existing.pinned {
			continue
		}
		merged[keyID] = key
	}
	s.keys[server] = merged
	s.fingerprints[server] = fingerprint
	s.logger.Info("key document installed", "server", server, "keys", len(keys))
}

// validateKeyDocument checks the shape and self-signature of a fetched
// key document and extracts its keys. A document vouches for itself:
// it must be signed by one of the verify_keys it contains.
func validateKeyDocument(document canonical.Value, server ref.ServerName) (map[ref.KeyID]VerifyKey, error) {
	fail := func(reason string) error {
		return &KeyResolutionError{Server: server, Reason: reason}
	}

	declaredName, ok := document.Get("server_name")
	if !ok || declaredName.Kind() != canonical.String || declaredName.StringValue() != server.String() {
		return nil, fail("key document server_name does not match the queried server")
	}
	validUntil, ok := document.Get("valid_until_ts")
	if !ok || validUntil.Kind() != canonical.Int || validUntil.IntValue() <= 0 {
		return nil, fail("key document has no valid_until_ts")
	}

	verifyKeys, ok := document.Get("verify_keys")
	if !ok || verifyKeys.Kind() != canonical.Object {
		return nil, fail("key document has no verify_keys")
	}
	keys := make(map[ref.KeyID]VerifyKey)
	for _, member := range verifyKeys.Members() {
		keyID, err := ref.ParseKeyID(member.Key)
		if err != nil || keyID.Algorithm() != ref.AlgorithmEd25519 {
			continue
		}
		public, err := decodeVerifyKey(member.Value)
		if err != nil {
			return nil, fail("verify_keys entry " + member.Key + ": " + err.Error())
		}
		keys[keyID] = VerifyKey{Key: public, ValidUntilTS: validUntil.IntValue()}
	}
	if len(keys) == 0 {
		return nil, fail("key document carries no ed25519 verify keys")
	}

	signingBytes, err := canonical.SigningBytes(document)
	if err != nil {
		return nil, fail("cannot canonicalize key document: " + err.Error())
	}
	if !documentSelfSigned(document, server, keys, signingBytes) {
		return nil, fail("key document is not correctly self-signed")
	}

	// Rotated-out keys remain usable for events predating their expiry.
	if oldKeys, ok := document.Get("old_verify_keys"); ok && oldKeys.Kind() == canonical.Object {
		for _, member := range oldKeys.Members() {
			keyID, err := ref.ParseKeyID(member.Key)
			if err != nil || keyID.Algorithm() != ref.AlgorithmEd25519 {
				continue
			}
			if _, taken := keys[keyID]; taken {
				continue
			}
			public, err := decodeVerifyKey(member.Value)
			if err != nil {
				continue
			}
			expired, ok := member.Value.Get("expired_ts")
			if !ok || expired.Kind() != canonical.Int {
				continue
			}
			keys[keyID] = VerifyKey{Key: public, ValidUntilTS: expired.IntValue()}
		}
	}
	return keys, nil
}

// decodeVerifyKey extracts the base64 "key" field of a verify_keys or
// old_verify_keys entry.
func decodeVerifyKey(entry canonical.Value) (ed25519.PublicKey, error) {
	if entry.Kind() != canonical.Object {
		return nil, fmt.Errorf("not an object")
	}
	encoded, ok := entry.Get("key")
	if !ok || encoded.Kind() != canonical.String {
		return nil, fmt.Errorf("missing key field")
	}
	decoded, err := decodeBase64(encoded.StringValue())
	if err != nil {
		return nil, fmt.Errorf("bad base64: %w", err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("key is %d bytes, want %d", len(decoded), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(decoded), nil
}

func documentSelfSigned(document canonical.Value, server ref.ServerName, keys map[ref.KeyID]VerifyKey, signingBytes []byte) bool {
	signatures, ok := document.Get("signatures")
	if !ok || signatures.Kind() != canonical.Object {
		return false
	}
	bySelf, ok := signatures.Get(server.String())
	if !ok || bySelf.Kind() != canonical.Object {
		return false
	}
	for _, member := range bySelf.Members() {
		keyID, err := ref.ParseKeyID(member.Key)
		if err != nil {
			continue
		}
		key, known := keys[keyID]
		if !known || member.Value.Kind() != canonical.String {
			continue
		}
		signature, err := decodeBase64(member.Value.StringValue())
		if err != nil {
			continue
		}
		if ed25519.Verify(key.Key, signingBytes, signature) {
			return true
		}
	}
	return false
}
