// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/hearth/federation/event"
	"github.com/bureau-foundation/hearth/federation/keyring"
	"github.com/bureau-foundation/hearth/federation/storage"
	"github.com/bureau-foundation/hearth/lib/canonical"
	"github.com/bureau-foundation/hearth/lib/clock"
	"github.com/bureau-foundation/hearth/lib/ref"
	"github.com/bureau-foundation/hearth/lib/testutil"
)

var (
	originServer = ref.MustParseServerName("origin.test")
	testRoomID   = ref.MustParseRoomID("!room:origin.test")
	alice        = ref.MustParseUserID("@alice:origin.test")
	mallory      = ref.MustParseUserID("@mallory:origin.test")
)

// fixture wires a processor against an in-memory store and a keyring
// with origin.test's key pinned, so signatures verify without a key
// server.
type fixture struct {
	t     *testing.T
	key   keyring.SigningKey
	store *storage.Memory
	ring  *keyring.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := keyring.GenerateSigningKey("test")
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	ring := keyring.NewStore(keyring.Config{})
	ring.AddTrusted(originServer, key.ID, key.Public())
	return &fixture{t: t, key: key, store: storage.NewMemory(), ring: ring}
}

func (f *fixture) processor(mutate func(*Config)) *Processor {
	f.t.Helper()
	cfg := Config{
		Store:         f.store,
		Verifier:      f.ring,
		RetryAttempts: 1,
		RetryBackoff:  time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	pr, err := New(cfg)
	if err != nil {
		f.t.Fatalf("New: %v", err)
	}
	return pr
}

// signed builds, signs, and encodes an event, defaulting the room ID.
func (f *fixture) signed(b event.Builder) []byte {
	f.t.Helper()
	if b.RoomID == (ref.RoomID{}) {
		b.RoomID = testRoomID
	}
	value, err := b.BuildValue()
	if err != nil {
		f.t.Fatalf("BuildValue: %v", err)
	}
	signedValue, err := keyring.SignValue(value, originServer, f.key)
	if err != nil {
		f.t.Fatalf("SignValue: %v", err)
	}
	return canonical.Encode(signedValue)
}

func parseID(t *testing.T, raw []byte) ref.EventID {
	t.Helper()
	p, err := event.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return p.EventID()
}

// chain holds the minimal room history: alice creates the room and
// joins it.
type chain struct {
	create, join     []byte
	createID, joinID ref.EventID
}

func (f *fixture) chain() *chain {
	f.t.Helper()
	emptyKey := ""
	createContent := canonical.NewObject()
	createContent.Set("creator", canonical.NewString(alice.String()))
	createContent.Set("room_version", canonical.NewString("10"))
	create := f.signed(event.Builder{
		Sender:         alice,
		Type:           ref.RoomCreate,
		StateKey:       &emptyKey,
		Content:        createContent,
		Depth:          1,
		OriginServerTS: 1000,
	})
	createID := parseID(f.t, create)

	aliceKey := alice.String()
	joinContent := canonical.NewObject()
	joinContent.Set("membership", canonical.NewString("join"))
	join := f.signed(event.Builder{
		Sender:         alice,
		Type:           ref.RoomMember,
		StateKey:       &aliceKey,
		Content:        joinContent,
		PrevEvents:     []ref.EventID{createID},
		AuthEvents:     []ref.EventID{createID},
		Depth:          2,
		OriginServerTS: 2000,
	})
	return &chain{create: create, join: join, createID: createID, joinID: parseID(f.t, join)}
}

func (f *fixture) message(c *chain, body string, ts int64) []byte {
	f.t.Helper()
	content := canonical.NewObject()
	content.Set("msgtype", canonical.NewString("m.text"))
	content.Set("body", canonical.NewString(body))
	return f.signed(event.Builder{
		Sender:         alice,
		Type:           ref.RoomMessage,
		Content:        content,
		PrevEvents:     []ref.EventID{c.joinID},
		AuthEvents:     []ref.EventID{c.createID, c.joinID},
		Depth:          3,
		OriginServerTS: ts,
	})
}

func wantVerdict(t *testing.T, verdicts map[string]Verdict, key string, want Verdict) {
	t.Helper()
	got, ok := verdicts[key]
	if !ok {
		t.Fatalf("no verdict for %s (have %v)", key, verdicts)
	}
	if got != want {
		t.Fatalf("verdict for %s = %q, want %q", key, got, want)
	}
}

func TestProcessAcceptsValidEvents(t *testing.T) {
	f := newFixture(t)
	pr := f.processor(nil)
	c := f.chain()
	msg := f.message(c, "hello", 3000)

	verdicts, err := pr.Process(context.Background(), Transaction{
		Origin:        originServer,
		TransactionID: "txn-1",
		PDUs:          [][]byte{c.create, c.join, msg},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for _, raw := range [][]byte{c.create, c.join, msg} {
		wantVerdict(t, verdicts, parseID(t, raw).String(), VerdictAccepted)
	}

	state, err := f.store.State(context.Background(), testRoomID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if got := state.StateEvent(ref.RoomMember, alice.String()); got == nil || got.EventID() != c.joinID {
		t.Fatalf("member slot = %v, want join event", got)
	}
	if got := state.StateEvent(ref.RoomCreate, ""); got == nil || got.EventID() != c.createID {
		t.Fatalf("create slot = %v, want create event", got)
	}
}

type countingVerifier struct {
	inner Verifier
	calls atomic.Int64
}

func (v *countingVerifier) VerifyEvent(ctx context.Context, p *event.PDU) error {
	v.calls.Add(1)
	return v.inner.VerifyEvent(ctx, p)
}

func TestProcessReplaysRecordedTransaction(t *testing.T) {
	f := newFixture(t)
	counter := &countingVerifier{inner: f.ring}
	pr := f.processor(func(cfg *Config) { cfg.Verifier = counter })
	c := f.chain()

	txn := Transaction{
		Origin:        originServer,
		TransactionID: "txn-replay",
		PDUs:          [][]byte{c.create, c.join},
	}
	first, err := pr.Process(context.Background(), txn)
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	verified := counter.calls.Load()

	second, err := pr.Process(context.Background(), txn)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if counter.calls.Load() != verified {
		t.Fatalf("replay re-verified events: %d calls, want %d", counter.calls.Load(), verified)
	}
	if len(second) != len(first) {
		t.Fatalf("replay verdicts = %v, want %v", second, first)
	}
	for id, verdict := range first {
		if second[id] != verdict {
			t.Fatalf("replay verdict for %s = %q, want %q", id, second[id], verdict)
		}
	}
}

func TestProcessRejectsMalformedAndTamperedEvents(t *testing.T) {
	f := newFixture(t)
	pr := f.processor(nil)
	c := f.chain()

	// Re-sign an event whose content was altered after hashing.
	value, err := canonical.ParseObject(f.message(c, "original", 3000))
	if err != nil {
		t.Fatalf("ParseObject: %v", err)
	}
	content := canonical.NewObject()
	content.Set("msgtype", canonical.NewString("m.text"))
	content.Set("body", canonical.NewString("tampered"))
	value.Set("content", content)
	tampered := canonical.Encode(value)

	verdicts, err := pr.Process(context.Background(), Transaction{
		Origin:        originServer,
		TransactionID: "txn-bad",
		PDUs:          [][]byte{[]byte("{"), tampered, c.create},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	wantVerdict(t, verdicts, "unparsed:0", RejectedMalformed)
	wantVerdict(t, verdicts, "unparsed:1", RejectedHashMismatch)
	wantVerdict(t, verdicts, c.createID.String(), VerdictAccepted)
}

func TestProcessRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	c := f.chain()

	// Re-pin a different public key under the signing key's ID.
	imposter, err := keyring.GenerateSigningKey("test")
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	ring := keyring.NewStore(keyring.Config{})
	ring.AddTrusted(originServer, f.key.ID, imposter.Public())
	pr := f.processor(func(cfg *Config) { cfg.Verifier = ring })

	verdicts, err := pr.Process(context.Background(), Transaction{
		Origin:        originServer,
		TransactionID: "txn-sig",
		PDUs:          [][]byte{c.create},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	wantVerdict(t, verdicts, c.createID.String(), RejectedSignature)
}

type unresolvableVerifier struct {
	calls atomic.Int64
}

func (v *unresolvableVerifier) VerifyEvent(ctx context.Context, p *event.PDU) error {
	v.calls.Add(1)
	return &keyring.KeyResolutionError{
		Server: originServer,
		Reason: "key server unreachable",
	}
}

func TestKeyResolutionRetriesWithBackoffThenRejects(t *testing.T) {
	f := newFixture(t)
	verifier := &unresolvableVerifier{}
	clk := clock.Fake(time.Unix(0, 0))
	pr := f.processor(func(cfg *Config) {
		cfg.Verifier = verifier
		cfg.Clock = clk
		cfg.RetryAttempts = 2
		cfg.RetryBackoff = time.Second
	})
	c := f.chain()

	type result struct {
		verdicts map[string]Verdict
		err      error
	}
	done := make(chan result, 1)
	go func() {
		verdicts, err := pr.Process(context.Background(), Transaction{
			Origin:        originServer,
			TransactionID: "txn-key",
			PDUs:          [][]byte{c.create},
		})
		done <- result{verdicts, err}
	}()

	// Each retry parks on the fake clock; release both backoff waits.
	for released := 0; released < 2; {
		if clk.Waiters() > 0 {
			clk.Advance(10 * time.Second)
			released++
		} else {
			time.Sleep(time.Millisecond)
		}
	}
	res := testutil.RequireReceive(t, (<-chan result)(done), 5*time.Second, "processor verdicts")
	if res.err != nil {
		t.Fatalf("Process: %v", res.err)
	}
	wantVerdict(t, res.verdicts, c.createID.String(), RejectedKey)
	if got := verifier.calls.Load(); got != 3 {
		t.Fatalf("verifier called %d times, want 3 (initial + 2 retries)", got)
	}
}

func TestServerACLRejectsDeliveryOrigin(t *testing.T) {
	f := newFixture(t)
	pr := f.processor(nil)
	c := f.chain()

	emptyKey := ""
	aclContent := canonical.NewObject()
	aclContent.Set("allow", canonical.NewArray(canonical.NewString("*")))
	aclContent.Set("deny", canonical.NewArray(canonical.NewString("evil.test")))
	acl := f.signed(event.Builder{
		Sender:         alice,
		Type:           ref.RoomServerACL,
		StateKey:       &emptyKey,
		Content:        aclContent,
		PrevEvents:     []ref.EventID{c.joinID},
		AuthEvents:     []ref.EventID{c.createID, c.joinID},
		Depth:          3,
		OriginServerTS: 3000,
	})
	if _, err := pr.Process(context.Background(), Transaction{
		Origin:        originServer,
		TransactionID: "txn-setup",
		PDUs:          [][]byte{c.create, c.join, acl},
	}); err != nil {
		t.Fatalf("setup Process: %v", err)
	}

	// Same well-signed event, but delivered by the banned server.
	msg := f.message(c, "relayed", 4000)
	verdicts, err := pr.Process(context.Background(), Transaction{
		Origin:        ref.MustParseServerName("evil.test"),
		TransactionID: "txn-evil",
		PDUs:          [][]byte{msg},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	wantVerdict(t, verdicts, parseID(t, msg).String(), RejectedACL)
}

func TestUnauthorizedEventRetainedForAudit(t *testing.T) {
	f := newFixture(t)
	pr := f.processor(nil)
	c := f.chain()

	// mallory never joined; her message fails authorization.
	content := canonical.NewObject()
	content.Set("msgtype", canonical.NewString("m.text"))
	content.Set("body", canonical.NewString("let me in"))
	intruder := f.signed(event.Builder{
		Sender:         mallory,
		Type:           ref.RoomMessage,
		Content:        content,
		PrevEvents:     []ref.EventID{c.joinID},
		AuthEvents:     []ref.EventID{c.createID},
		Depth:          3,
		OriginServerTS: 3000,
	})
	intruderID := parseID(t, intruder)

	verdicts, err := pr.Process(context.Background(), Transaction{
		Origin:        originServer,
		TransactionID: "txn-auth",
		PDUs:          [][]byte{c.create, c.join, intruder},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	wantVerdict(t, verdicts, intruderID.String(), RejectedAuth)

	if _, err := f.store.Event(context.Background(), intruderID); err != nil {
		t.Fatalf("rejected event not retained: %v", err)
	}
	state, err := f.store.State(context.Background(), testRoomID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if got := state.StateEvent(ref.RoomMember, mallory.String()); got != nil {
		t.Fatalf("rejected event leaked into state: %v", got)
	}
}

// mapRequester serves raw events from a map and counts fetches.
type mapRequester struct {
	events  map[ref.EventID][]byte
	fetches atomic.Int64
}

func (r *mapRequester) FetchEvent(ctx context.Context, from ref.ServerName, id ref.EventID) ([]byte, error) {
	r.fetches.Add(1)
	raw, ok := r.events[id]
	if !ok {
		return nil, fmt.Errorf("no such event %s", id)
	}
	return raw, nil
}

func TestBackfillClosesDependencyGap(t *testing.T) {
	f := newFixture(t)
	c := f.chain()
	requester := &mapRequester{events: map[ref.EventID][]byte{
		c.createID: c.create,
		c.joinID:   c.join,
	}}
	pr := f.processor(func(cfg *Config) { cfg.Requester = requester })

	// Only the message is delivered; its ancestors must be fetched.
	msg := f.message(c, "out of order", 3000)
	verdicts, err := pr.Process(context.Background(), Transaction{
		Origin:        originServer,
		TransactionID: "txn-backfill",
		PDUs:          [][]byte{msg},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	wantVerdict(t, verdicts, parseID(t, msg).String(), VerdictAccepted)
	if requester.fetches.Load() == 0 {
		t.Fatal("no backfill fetches issued")
	}
	for _, id := range []ref.EventID{c.createID, c.joinID} {
		if _, err := f.store.Event(context.Background(), id); err != nil {
			t.Fatalf("backfilled event %s not stored: %v", id, err)
		}
	}
}

func TestBackfillExhaustionRejectsDependent(t *testing.T) {
	f := newFixture(t)
	c := f.chain()
	requester := &mapRequester{events: map[ref.EventID][]byte{}}
	pr := f.processor(func(cfg *Config) { cfg.Requester = requester })

	msg := f.message(c, "orphan", 3000)
	verdicts, err := pr.Process(context.Background(), Transaction{
		Origin:        originServer,
		TransactionID: "txn-orphan",
		PDUs:          [][]byte{msg},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	wantVerdict(t, verdicts, parseID(t, msg).String(), RejectedDependency)
	if requester.fetches.Load() != 2 {
		t.Fatalf("fetches = %d, want 2 (initial + 1 retry)", requester.fetches.Load())
	}

	// The verdict is recorded: redelivery replays it without refetching.
	replay, err := pr.Process(context.Background(), Transaction{
		Origin:        originServer,
		TransactionID: "txn-orphan",
		PDUs:          [][]byte{msg},
	})
	if err != nil {
		t.Fatalf("replay Process: %v", err)
	}
	wantVerdict(t, replay, parseID(t, msg).String(), RejectedDependency)
	if requester.fetches.Load() != 2 {
		t.Fatalf("replay issued fetches: %d, want 2", requester.fetches.Load())
	}
}

func TestForkedStateResolvesDeterministically(t *testing.T) {
	f := newFixture(t)
	pr := f.processor(nil)
	c := f.chain()

	emptyKey := ""
	name := func(value string) []byte {
		content := canonical.NewObject()
		content.Set("name", canonical.NewString(value))
		return f.signed(event.Builder{
			Sender:         alice,
			Type:           ref.RoomName,
			StateKey:       &emptyKey,
			Content:        content,
			PrevEvents:     []ref.EventID{c.joinID},
			AuthEvents:     []ref.EventID{c.createID, c.joinID},
			Depth:          3,
			OriginServerTS: 3000,
		})
	}
	nameA, nameB := name("fork a"), name("fork b")
	idA, idB := parseID(t, nameA), parseID(t, nameB)

	// With equal power and timestamps the ordering tie-break is the
	// event ID, so the winner is fixed regardless of delivery order.
	winner := idA
	if idB.String() > idA.String() {
		winner = idB
	}

	verdicts, err := pr.Process(context.Background(), Transaction{
		Origin:        originServer,
		TransactionID: "txn-fork",
		PDUs:          [][]byte{c.create, c.join, nameA, nameB},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	wantVerdict(t, verdicts, idA.String(), VerdictAccepted)
	wantVerdict(t, verdicts, idB.String(), VerdictAccepted)

	state, err := f.store.State(context.Background(), testRoomID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	got := state.StateEvent(ref.RoomName, "")
	if got == nil || got.EventID() != winner {
		t.Fatalf("name slot = %v, want %s", got, winner)
	}
}

// Parallel transactions into one room must serialize their graph
// insertions and state resolutions: every fork is accepted, and the
// final state matches the deterministic sequential outcome.
func TestConcurrentTransactionsSerializePerRoom(t *testing.T) {
	f := newFixture(t)
	pr := f.processor(nil)
	c := f.chain()

	if _, err := pr.Process(context.Background(), Transaction{
		Origin:        originServer,
		TransactionID: "txn-seed",
		PDUs:          [][]byte{c.create, c.join},
	}); err != nil {
		t.Fatalf("seed Process: %v", err)
	}

	emptyKey := ""
	const forks = 8
	raws := make([][]byte, forks)
	forkIDs := make([]ref.EventID, forks)
	for i := range forks {
		content := canonical.NewObject()
		content.Set("name", canonical.NewString(fmt.Sprintf("fork %d", i)))
		raws[i] = f.signed(event.Builder{
			Sender:         alice,
			Type:           ref.RoomName,
			StateKey:       &emptyKey,
			Content:        content,
			PrevEvents:     []ref.EventID{c.joinID},
			AuthEvents:     []ref.EventID{c.createID, c.joinID},
			Depth:          3,
			OriginServerTS: 3000,
		})
		forkIDs[i] = parseID(t, raws[i])
	}

	// Equal power, depth, and timestamp: the event-ID tie-break fixes
	// the winner before any delivery happens.
	winner := forkIDs[0]
	for _, id := range forkIDs[1:] {
		if id.String() > winner.String() {
			winner = id
		}
	}

	var waitGroup sync.WaitGroup
	failures := make(chan error, forks)
	for i := range forks {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			verdicts, err := pr.Process(context.Background(), Transaction{
				Origin:        originServer,
				TransactionID: fmt.Sprintf("txn-fork-%d", i),
				PDUs:          [][]byte{raws[i]},
			})
			if err != nil {
				failures <- err
				return
			}
			if got := verdicts[forkIDs[i].String()]; got != VerdictAccepted {
				failures <- fmt.Errorf("fork %d verdict = %q, want %q", i, got, VerdictAccepted)
			}
		}()
	}
	waitGroup.Wait()
	close(failures)
	for err := range failures {
		t.Error(err)
	}

	state, err := f.store.State(context.Background(), testRoomID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	got := state.StateEvent(ref.RoomName, "")
	if got == nil || got.EventID() != winner {
		t.Fatalf("name slot = %v, want %s", got, winner)
	}
}

// An event whose declared auth events omit the room create cannot be
// authorized: the verdict is a terminal dependency rejection, but the
// event itself stays in the store for audit.
func TestIncompleteAuthChainRetainedForAudit(t *testing.T) {
	f := newFixture(t)
	pr := f.processor(nil)
	c := f.chain()

	content := canonical.NewObject()
	content.Set("msgtype", canonical.NewString("m.text"))
	content.Set("body", canonical.NewString("no create declared"))
	partial := f.signed(event.Builder{
		Sender:         alice,
		Type:           ref.RoomMessage,
		Content:        content,
		PrevEvents:     []ref.EventID{c.joinID},
		AuthEvents:     []ref.EventID{c.joinID},
		Depth:          3,
		OriginServerTS: 3000,
	})
	partialID := parseID(t, partial)

	verdicts, err := pr.Process(context.Background(), Transaction{
		Origin:        originServer,
		TransactionID: "txn-partial",
		PDUs:          [][]byte{c.create, c.join, partial},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	wantVerdict(t, verdicts, partialID.String(), RejectedDependency)

	if _, err := f.store.Event(context.Background(), partialID); err != nil {
		t.Fatalf("rejected event not retained: %v", err)
	}
}

// recordingSink captures EDUs and fails on demand.
type recordingSink struct {
	received []EDU
	fail     bool
}

func (s *recordingSink) HandleEDU(ctx context.Context, origin ref.ServerName, edu EDU) error {
	s.received = append(s.received, edu)
	if s.fail {
		return errors.New("sink unavailable")
	}
	return nil
}

func TestEDUFailureDoesNotAffectPDUVerdicts(t *testing.T) {
	f := newFixture(t)
	sink := &recordingSink{fail: true}
	pr := f.processor(func(cfg *Config) { cfg.EDUSink = sink })
	c := f.chain()

	typing := canonical.NewObject()
	typing.Set("user_id", canonical.NewString(alice.String()))
	verdicts, err := pr.Process(context.Background(), Transaction{
		Origin:        originServer,
		TransactionID: "txn-edu",
		PDUs:          [][]byte{c.create, c.join},
		EDUs:          []EDU{{Type: "m.typing", Content: typing}},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	wantVerdict(t, verdicts, c.createID.String(), VerdictAccepted)
	wantVerdict(t, verdicts, c.joinID.String(), VerdictAccepted)
	if len(sink.received) != 1 || sink.received[0].Type != "m.typing" {
		t.Fatalf("sink received %v, want one m.typing EDU", sink.received)
	}
}

func TestCancelledTransactionIsNotRecorded(t *testing.T) {
	f := newFixture(t)
	pr := f.processor(nil)
	c := f.chain()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	verdicts, err := pr.Process(ctx, Transaction{
		Origin:        originServer,
		TransactionID: "txn-cancel",
		PDUs:          [][]byte{c.create, c.join},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Process err = %v, want context.Canceled", err)
	}
	for key, verdict := range verdicts {
		if verdict != VerdictPending {
			t.Fatalf("verdict for %s = %q, want pending", key, verdict)
		}
	}
	if _, err := f.store.TransactionResult(context.Background(), originServer, "txn-cancel"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("cancelled transaction recorded: %v", err)
	}

	// Redelivery with a live context processes normally.
	redelivered, err := pr.Process(context.Background(), Transaction{
		Origin:        originServer,
		TransactionID: "txn-cancel",
		PDUs:          [][]byte{c.create, c.join},
	})
	if err != nil {
		t.Fatalf("redelivery Process: %v", err)
	}
	wantVerdict(t, redelivered, c.createID.String(), VerdictAccepted)
	wantVerdict(t, redelivered, c.joinID.String(), VerdictAccepted)
}

func TestDuplicateEventAcceptedAgain(t *testing.T) {
	f := newFixture(t)
	pr := f.processor(nil)
	c := f.chain()

	if _, err := pr.Process(context.Background(), Transaction{
		Origin:        originServer,
		TransactionID: "txn-a",
		PDUs:          [][]byte{c.create, c.join},
	}); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	// Same event in a different transaction: idempotent accept.
	verdicts, err := pr.Process(context.Background(), Transaction{
		Origin:        originServer,
		TransactionID: "txn-b",
		PDUs:          [][]byte{c.join},
	})
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	wantVerdict(t, verdicts, c.joinID.String(), VerdictAccepted)
}
