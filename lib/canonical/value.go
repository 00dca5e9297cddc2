// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Error reports malformed input to canonicalization: non-object event
// shape, floats, out-of-range integers, or syntactically invalid JSON.
// It is fatal to the single event being processed, never to a batch.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "canonical: " + e.Reason
}

func errorf(format string, args ...any) error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// maxCanonicalInt is the largest integer canonical JSON may carry.
// Chosen so every value survives an IEEE 754 double round trip on
// implementations that parse JSON numbers as floats.
const maxCanonicalInt = 1<<53 - 1

// Kind discriminates the variants of a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Int
	String
	Array
	Object
)

// Member is a single key/value pair of an object Value.
type Member struct {
	Key   string
	Value Value
}

// Value is a parsed canonical JSON value: a tagged union over null,
// bool, integer, string, array, and object. Objects remember insertion
// order; sorting happens only at encode time, so callers can inspect
// content in the order the origin server produced it.
//
// The zero Value is null.
type Value struct {
	kind    Kind
	boolVal bool
	intVal  int64
	strVal  string
	arr     []Value
	members []Member
}

// NewBool returns a bool Value.
func NewBool(b bool) Value { return Value{kind: Bool, boolVal: b} }

// NewInt returns an integer Value.
func NewInt(i int64) Value { return Value{kind: Int, intVal: i} }

// NewString returns a string Value.
func NewString(s string) Value { return Value{kind: String, strVal: s} }

// NewArray returns an array Value holding the given elements.
func NewArray(elements ...Value) Value { return Value{kind: Array, arr: elements} }

// NewObject returns an empty object Value. Populate it with Set.
func NewObject() Value { return Value{kind: Object, members: []Member{}} }

// Kind returns the variant tag of the value.
func (v Value) Kind() Kind { return v.kind }

// BoolValue returns the boolean payload. Valid only for Bool values.
func (v Value) BoolValue() bool { return v.boolVal }

// IntValue returns the integer payload. Valid only for Int values.
func (v Value) IntValue() int64 { return v.intVal }

// StringValue returns the string payload. Valid only for String values.
func (v Value) StringValue() string { return v.strVal }

// Elements returns the array payload. Valid only for Array values.
// The returned slice is shared; callers must not mutate it.
func (v Value) Elements() []Value { return v.arr }

// Members returns the object payload in insertion order. Valid only
// for Object values. The returned slice is shared; callers must not
// mutate it.
func (v Value) Members() []Member { return v.members }

// Get looks up a key in an object Value. Returns the zero Value and
// false for missing keys and for non-object receivers.
func (v Value) Get(key string) (Value, bool) {
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the value for key, or appends the pair if the key is
// absent. The receiver must be an object Value.
func (v *Value) Set(key string, value Value) {
	if v.kind != Object {
		panic("canonical: Set on non-object Value")
	}
	for i := range v.members {
		if v.members[i].Key == key {
			v.members[i].Value = value
			return
		}
	}
	v.members = append(v.members, Member{Key: key, Value: value})
}

// Without returns a copy of an object Value with the given keys
// removed. Non-object receivers are returned unchanged. The copy is
// shallow: nested values are shared with the receiver, which is safe
// because Values are treated as immutable once parsed.
func (v Value) Without(keys ...string) Value {
	if v.kind != Object {
		return v
	}
	kept := make([]Member, 0, len(v.members))
	for _, m := range v.members {
		removed := false
		for _, key := range keys {
			if m.Key == key {
				removed = true
				break
			}
		}
		if !removed {
			kept = append(kept, m)
		}
	}
	return Value{kind: Object, members: kept}
}

// Parse decodes JSON into a Value, preserving object key order and
// rejecting anything canonical JSON cannot carry (floats, integers
// outside ±(2^53-1), trailing data).
func Parse(data []byte) (Value, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	value, err := parseValue(decoder)
	if err != nil {
		return Value{}, err
	}
	if decoder.More() {
		return Value{}, errorf("trailing data after JSON value")
	}
	return value, nil
}

// ParseObject is Parse restricted to a top-level object, the only
// shape an event may have.
func ParseObject(data []byte) (Value, error) {
	value, err := Parse(data)
	if err != nil {
		return Value{}, err
	}
	if value.kind != Object {
		return Value{}, errorf("expected a JSON object at top level")
	}
	return value, nil
}

func parseValue(decoder *json.Decoder) (Value, error) {
	token, err := decoder.Token()
	if err != nil {
		return Value{}, errorf("invalid JSON: %v", err)
	}
	return parseToken(decoder, token)
}

func parseToken(decoder *json.Decoder, token json.Token) (Value, error) {
	switch t := token.(type) {
	case nil:
		return Value{}, nil
	case bool:
		return NewBool(t), nil
	case string:
		return NewString(t), nil
	case json.Number:
		return parseNumber(t)
	case json.Delim:
		switch t {
		case '{':
			return parseObject(decoder)
		case '[':
			return parseArray(decoder)
		}
	}
	return Value{}, errorf("unexpected JSON token %v", token)
}

func parseNumber(number json.Number) (Value, error) {
	text := number.String()
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', 'e', 'E':
			return Value{}, errorf("non-integer number %q", text)
		}
	}
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return Value{}, errorf("integer %q out of range", text)
	}
	if value > maxCanonicalInt || value < -maxCanonicalInt {
		return Value{}, errorf("integer %d outside canonical range", value)
	}
	return NewInt(value), nil
}

func parseObject(decoder *json.Decoder) (Value, error) {
	object := NewObject()
	for {
		token, err := decoder.Token()
		if err != nil {
			return Value{}, errorf("invalid JSON object: %v", err)
		}
		if delim, ok := token.(json.Delim); ok && delim == '}' {
			return object, nil
		}
		key, ok := token.(string)
		if !ok {
			return Value{}, errorf("object key is not a string: %v", token)
		}
		value, err := parseValue(decoder)
		if err != nil {
			return Value{}, err
		}
		// Duplicate keys: last occurrence wins, at the first
		// occurrence's position.
		object.Set(key, value)
	}
}

func parseArray(decoder *json.Decoder) (Value, error) {
	var elements []Value
	for {
		token, err := decoder.Token()
		if err != nil {
			return Value{}, errorf("invalid JSON array: %v", err)
		}
		if delim, ok := token.(json.Delim); ok && delim == ']' {
			return Value{kind: Array, arr: elements}, nil
		}
		value, err := parseToken(decoder, token)
		if err != nil {
			return Value{}, err
		}
		elements = append(elements, value)
	}
}
