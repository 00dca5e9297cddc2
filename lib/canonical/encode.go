// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// Encode renders a Value in canonical form: object keys sorted by code
// point, no insignificant whitespace, shortest integer form, minimal
// string escaping, array order preserved exactly (array order is
// semantic).
func Encode(value Value) []byte {
	var buf bytes.Buffer
	encodeValue(&buf, value)
	return buf.Bytes()
}

// Marshal converts an arbitrary Go value to canonical JSON bytes by
// round-tripping through encoding/json. Used for values Hearth
// constructs itself (key documents, locally built events); federation
// input goes through Parse instead so key order survives for
// inspection.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errorf("marshal: %v", err)
	}
	value, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return Encode(value), nil
}

func encodeValue(buf *bytes.Buffer, value Value) {
	switch value.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if value.boolVal {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Int:
		buf.WriteString(strconv.FormatInt(value.intVal, 10))
	case String:
		encodeString(buf, value.strVal)
	case Array:
		buf.WriteByte('[')
		for i, element := range value.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeValue(buf, element)
		}
		buf.WriteByte(']')
	case Object:
		keys := make([]string, len(value.members))
		byKey := make(map[string]Value, len(value.members))
		for i, m := range value.members {
			keys[i] = m.Key
			byKey[m.Key] = m.Value
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeString(buf, key)
			buf.WriteByte(':')
			encodeValue(buf, byKey[key])
		}
		buf.WriteByte('}')
	}
}

// encodeString writes a JSON string with the minimal escaping the
// canonical form requires: backslash, double quote, and control
// characters below 0x20. Everything else — including '<', '>', '&',
// U+2028, U+2029, and all non-ASCII — is emitted as raw UTF-8.
// Invalid UTF-8 bytes are replaced with U+FFFD, matching what a JSON
// parse/serialize round trip produces elsewhere.
func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\t':
			buf.WriteString(`\t`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			if r < 0x20 {
				const hex = "0123456789abcdef"
				buf.WriteString(`\u00`)
				buf.WriteByte(hex[r>>4])
				buf.WriteByte(hex[r&0xf])
			} else {
				// Ranging over a string yields U+FFFD for invalid
				// UTF-8 bytes; WriteRune emits it as-is.
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
