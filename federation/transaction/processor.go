// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/hearth/federation/event"
	"github.com/bureau-foundation/hearth/federation/keyring"
	"github.com/bureau-foundation/hearth/federation/storage"
	"github.com/bureau-foundation/hearth/lib/canonical"
	"github.com/bureau-foundation/hearth/lib/clock"
	"github.com/bureau-foundation/hearth/lib/ref"
)

// Transaction is one unit of federation delivery from a peer: an
// ordered batch of raw PDUs plus ephemeral data units. The origin has
// already been authenticated at the transport boundary.
type Transaction struct {
	Origin        ref.ServerName
	TransactionID string
	PDUs          [][]byte
	EDUs          []EDU
}

// EDU is an ephemeral data unit: typing, presence, receipts. Never a
// graph member.
type EDU struct {
	Type    string
	Content canonical.Value
}

// Verifier checks event signatures. Satisfied by *keyring.Store.
type Verifier interface {
	VerifyEvent(ctx context.Context, p *event.PDU) error
}

// Requester fetches a missing event from a federation peer, returning
// its raw JSON body. Used to backfill dependency gaps.
type Requester interface {
	FetchEvent(ctx context.Context, from ref.ServerName, id ref.EventID) ([]byte, error)
}

// EDUSink receives ephemeral data units. A sink error is logged and
// dropped; EDU processing never affects PDU verdicts.
type EDUSink interface {
	HandleEDU(ctx context.Context, origin ref.ServerName, edu EDU) error
}

// Config parameterizes a Processor. Store and Verifier are required;
// a nil Requester disables backfill (missing dependencies become
// terminal immediately).
type Config struct {
	Store     storage.Store
	Verifier  Verifier
	Requester Requester
	EDUSink   EDUSink
	Clock     clock.Clock
	Logger    *slog.Logger

	// RetryAttempts bounds retries of key resolution and backfill
	// fetches, on top of the initial attempt. Defaults to 2.
	RetryAttempts int

	// RetryBackoff is the delay before the first retry, doubling per
	// attempt. Defaults to 500ms.
	RetryBackoff time.Duration

	// MaxBackfillDepth bounds recursive ancestor fetching for a single
	// event. Defaults to 10.
	MaxBackfillDepth int
}

// Processor ingests federation transactions. Safe for concurrent use;
// transactions for different rooms proceed in parallel.
type Processor struct {
	cfg Config

	mu    sync.Mutex
	rooms map[ref.RoomID]*room
}

// New builds a Processor, applying defaults for unset Config fields.
func New(cfg Config) (*Processor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("transaction: Config.Store is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("transaction: Config.Verifier is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 2
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackfillDepth <= 0 {
		cfg.MaxBackfillDepth = 10
	}
	return &Processor{cfg: cfg, rooms: map[ref.RoomID]*room{}}, nil
}

// Process runs a transaction through the pipeline and returns the
// per-event verdicts keyed by event ID (unparseable PDUs get a
// synthetic "unparsed:<index>" key). Replaying an already-recorded
// (origin, transaction ID) returns the recorded verdicts without side
// effects. A non-nil error means the transaction as a whole could not
// be processed (storage failure or cancellation) and should be
// retried by the peer.
func (pr *Processor) Process(ctx context.Context, txn Transaction) (map[string]Verdict, error) {
	recorded, err := pr.cfg.Store.TransactionResult(ctx, txn.Origin, txn.TransactionID)
	if err == nil {
		verdicts := make(map[string]Verdict, len(recorded))
		for id, verdict := range recorded {
			verdicts[id] = Verdict(verdict)
		}
		pr.cfg.Logger.Debug("transaction replayed from ledger",
			"origin", txn.Origin, "transaction_id", txn.TransactionID)
		return verdicts, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("transaction: ledger lookup: %w", err)
	}

	verdicts := make(map[string]Verdict, len(txn.PDUs))
	for index, raw := range txn.PDUs {
		if ctx.Err() != nil {
			// Cancellation stops further events from starting. Work
			// already committed to the graph stays committed.
			verdicts[fmt.Sprintf("unparsed:%d", index)] = VerdictPending
			continue
		}
		key, verdict := pr.processPDU(ctx, txn.Origin, index, raw)
		verdicts[key] = verdict
	}

	for _, edu := range txn.EDUs {
		if pr.cfg.EDUSink == nil || ctx.Err() != nil {
			continue
		}
		if err := pr.cfg.EDUSink.HandleEDU(ctx, txn.Origin, edu); err != nil {
			pr.cfg.Logger.Warn("EDU sink failed",
				"origin", txn.Origin, "edu_type", edu.Type, "error", err)
		}
	}

	if ctx.Err() != nil {
		// Not recorded: the peer retries and gets a fresh run.
		return verdicts, ctx.Err()
	}
	results := make(map[string]string, len(verdicts))
	for id, verdict := range verdicts {
		results[id] = string(verdict)
	}
	if err := pr.cfg.Store.PutTransactionResult(ctx, txn.Origin, txn.TransactionID, results); err != nil {
		return nil, fmt.Errorf("transaction: record ledger: %w", err)
	}
	return verdicts, nil
}

// processPDU runs one event through the pipeline and returns its
// verdict key and verdict.
func (pr *Processor) processPDU(ctx context.Context, origin ref.ServerName, index int, raw []byte) (string, Verdict) {
	p, err := event.Parse(raw)
	if err != nil {
		key := fmt.Sprintf("unparsed:%d", index)
		var hashErr *event.HashMismatchError
		if errors.As(err, &hashErr) {
			pr.cfg.Logger.Info("event rejected: content hash mismatch", "origin", origin)
			return key, RejectedHashMismatch
		}
		pr.cfg.Logger.Info("event rejected: malformed", "origin", origin, "error", err)
		return key, RejectedMalformed
	}
	key := p.EventID().String()

	if err := pr.verifyWithRetry(ctx, p); err != nil {
		var resolveErr *keyring.KeyResolutionError
		if errors.As(err, &resolveErr) {
			pr.cfg.Logger.Warn("event rejected: key resolution exhausted",
				"event_id", p.EventID(), "origin", origin, "error", err)
			return key, RejectedKey
		}
		pr.cfg.Logger.Info("event rejected: signature verification failed",
			"event_id", p.EventID(), "origin", origin, "error", err)
		return key, RejectedSignature
	}

	return key, pr.room(p.RoomID()).process(ctx, pr, p, origin)
}

// verifyWithRetry verifies the event's signature, retrying with
// backoff while the failure is key resolution (transient) rather than
// cryptographic (terminal).
func (pr *Processor) verifyWithRetry(ctx context.Context, p *event.PDU) error {
	backoff := pr.cfg.RetryBackoff
	var err error
	for attempt := 0; attempt <= pr.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-pr.cfg.Clock.After(backoff):
			case <-ctx.Done():
				return err
			}
			backoff *= 2
		}
		err = pr.cfg.Verifier.VerifyEvent(ctx, p)
		var resolveErr *keyring.KeyResolutionError
		if err == nil || !errors.As(err, &resolveErr) {
			return err
		}
	}
	return err
}

// room returns the per-room worker, creating it on first use.
func (pr *Processor) room(roomID ref.RoomID) *room {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	r, ok := pr.rooms[roomID]
	if !ok {
		r = newRoom(roomID)
		pr.rooms[roomID] = r
	}
	return r
}

// fetchWithRetry pulls a missing event from the origin with bounded
// retries, verifying its content hash and signature before handing it
// back.
func (pr *Processor) fetchWithRetry(ctx context.Context, from ref.ServerName, id ref.EventID) (*event.PDU, error) {
	if pr.cfg.Requester == nil {
		return nil, fmt.Errorf("transaction: no requester configured for backfill")
	}
	backoff := pr.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= pr.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-pr.cfg.Clock.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
		raw, err := pr.cfg.Requester.FetchEvent(ctx, from, id)
		if err != nil {
			lastErr = err
			continue
		}
		p, err := event.Parse(raw)
		if err != nil {
			lastErr = fmt.Errorf("backfilled event %s: %w", id, err)
			continue
		}
		if p.EventID() != id {
			lastErr = fmt.Errorf("backfill for %s returned event %s", id, p.EventID())
			continue
		}
		if err := pr.verifyWithRetry(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, lastErr
}
