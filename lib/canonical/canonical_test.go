// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import (
	"errors"
	"testing"
)

// Golden vectors from the Matrix specification appendix on canonical
// JSON. These are the wire contract: a signature computed over any
// other byte sequence will not verify on a remote homeserver.
func TestEncodeGoldenVectors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty object", `{}`, `{}`},
		{
			"already sorted",
			`{"one": 1, "two": "Two"}`,
			`{"one":1,"two":"Two"}`,
		},
		{
			"keys sorted",
			`{"b": "2", "a": "1"}`,
			`{"a":"1","b":"2"}`,
		},
		{
			"nested sorting",
			`{"auth":{"success":true,"mxid":"@john.doe:example.com","profile":{"display_name":"John Doe","three_pids":[{"medium":"email","address":"john.doe@example.org"},{"medium":"msisdn","address":"123456789"}]}}}`,
			`{"auth":{"mxid":"@john.doe:example.com","profile":{"display_name":"John Doe","three_pids":[{"address":"john.doe@example.org","medium":"email"},{"address":"123456789","medium":"msisdn"}]},"success":true}}`,
		},
		{
			"raw utf-8 preserved",
			`{"a":"日本語"}`,
			`{"a":"日本語"}`,
		},
		{
			"non-ascii keys sorted by code point",
			`{"本":2,"日":1}`,
			`{"日":1,"本":2}`,
		},
		{
			"unicode escapes decoded to raw utf-8",
			`{"a":"\u65E5"}`,
			`{"a":"日"}`,
		},
		{"null preserved", `{"a":null}`, `{"a":null}`},
		{
			"control characters escaped",
			`{"a":"line1\nline2\u0001"}`,
			`{"a":"line1\nline2\u0001"}`,
		},
		{
			"html characters not escaped",
			`{"a":"<b>&amp;</b>"}`,
			`{"a":"<b>&amp;</b>"}`,
		},
		{
			"array order preserved",
			`{"a":[3,1,2]}`,
			`{"a":[3,1,2]}`,
		},
		{
			"negative zero normalized",
			`{"a":-0}`,
			`{"a":0}`,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			value, err := Parse([]byte(test.input))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := string(Encode(value)); got != test.want {
				t.Errorf("Encode = %s, want %s", got, test.want)
			}
		})
	}
}

func TestParseRejectsNonCanonical(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"float", `{"a": 1.5}`},
		{"exponent", `{"a": 1e3}`},
		{"above 2^53-1", `{"a": 9007199254740992}`},
		{"below -(2^53-1)", `{"a": -9007199254740992}`},
		{"trailing data", `{} {}`},
		{"truncated", `{"a":`},
		{"bare word", `nope`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.input))
			if err == nil {
				t.Fatalf("Parse(%q): expected error", test.input)
			}
			var canonicalErr *Error
			if !errors.As(err, &canonicalErr) {
				t.Errorf("error %v is not a *canonical.Error", err)
			}
		})
	}
}

func TestParseBoundaryIntegers(t *testing.T) {
	value, err := Parse([]byte(`{"max":9007199254740991,"min":-9007199254740991}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := `{"max":9007199254740991,"min":-9007199254740991}`
	if got := string(Encode(value)); got != want {
		t.Errorf("Encode = %s, want %s", got, want)
	}
}

func TestParseDuplicateKeysLastWins(t *testing.T) {
	value, err := Parse([]byte(`{"a":1,"b":2,"a":3}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := string(Encode(value)); got != `{"a":3,"b":2}` {
		t.Errorf("Encode = %s, want {\"a\":3,\"b\":2}", got)
	}
}

func TestParseObjectRejectsNonObject(t *testing.T) {
	if _, err := ParseObject([]byte(`[1,2,3]`)); err == nil {
		t.Fatal("expected error for top-level array")
	}
}

const testEvent = `{
	"room_id": "!room:a.org",
	"sender": "@alice:a.org",
	"type": "m.room.message",
	"origin_server_ts": 1000,
	"depth": 12,
	"prev_events": ["$parent"],
	"auth_events": ["$create", "$member"],
	"content": {"msgtype": "m.text", "body": "hello"},
	"unsigned": {"age": 4},
	"signatures": {"a.org": {"ed25519:k1": "sig"}},
	"hashes": {"sha256": "abc"}
}`

// A permutation of testEvent's keys with identical significant content.
const testEventShuffled = `{
	"hashes": {"sha256": "abc"},
	"content": {"body": "hello", "msgtype": "m.text"},
	"auth_events": ["$create", "$member"],
	"type": "m.room.message",
	"depth": 12,
	"origin_server_ts": 1000,
	"unsigned": {"age": 99, "extra": true},
	"sender": "@alice:a.org",
	"prev_events": ["$parent"],
	"room_id": "!room:a.org",
	"signatures": {"b.org": {"ed25519:k2": "othersig"}}
}`

func mustParse(t *testing.T, raw string) Value {
	t.Helper()
	value, err := ParseObject([]byte(raw))
	if err != nil {
		t.Fatalf("ParseObject: %v", err)
	}
	return value
}

func TestEventIDStableUnderKeyOrderAndUnsigned(t *testing.T) {
	first, err := EventID(mustParse(t, testEvent))
	if err != nil {
		t.Fatalf("EventID: %v", err)
	}
	second, err := EventID(mustParse(t, testEventShuffled))
	if err != nil {
		t.Fatalf("EventID: %v", err)
	}
	if first != second {
		t.Errorf("event IDs differ: %s vs %s", first, second)
	}
}

func TestContentHashIgnoresHashesAndSignatures(t *testing.T) {
	base := mustParse(t, testEvent)
	tampered := mustParse(t, testEvent)
	tampered.Set("hashes", NewObject())
	tampered.Set("signatures", NewObject())

	baseHash, err := ContentHash(base)
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	tamperedHash, err := ContentHash(tampered)
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	if baseHash != tamperedHash {
		t.Error("content hash should not cover hashes or signatures")
	}
}

func TestContentHashDetectsContentTamper(t *testing.T) {
	base := mustParse(t, testEvent)
	tampered := mustParse(t, testEvent)
	content, _ := tampered.Get("content")
	content.Set("body", NewString("hellO"))
	tampered.Set("content", content)

	baseHash, _ := ContentHash(base)
	tamperedHash, _ := ContentHash(tampered)
	if baseHash == tamperedHash {
		t.Error("content hash did not change when content changed")
	}
}

func TestReferenceHashCoversHashes(t *testing.T) {
	base := mustParse(t, testEvent)
	tampered := mustParse(t, testEvent)
	hashes := NewObject()
	hashes.Set("sha256", NewString("forged"))
	tampered.Set("hashes", hashes)

	baseID, _ := EventID(base)
	tamperedID, _ := EventID(tampered)
	if baseID == tamperedID {
		t.Error("event ID did not change when hashes changed")
	}
}

func TestMarshalSortsKeys(t *testing.T) {
	got, err := Marshal(map[string]any{"b": 2, "a": "x"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(got) != `{"a":"x","b":2}` {
		t.Errorf("Marshal = %s", got)
	}
}

func TestMarshalRejectsFloats(t *testing.T) {
	if _, err := Marshal(map[string]any{"a": 1.5}); err == nil {
		t.Fatal("expected error for float")
	}
}
