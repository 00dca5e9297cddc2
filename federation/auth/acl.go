// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"net"
	"strings"

	"github.com/bureau-foundation/hearth/federation/event"
	"github.com/bureau-foundation/hearth/lib/ref"
)

// ServerACL is a compiled m.room.server_acl state entry. Deny rules
// beat allow rules; a server matching neither list is denied.
type ServerACL struct {
	allow           []string
	deny            []string
	allowIPLiterals bool
}

// CompileServerACL builds a matcher from decoded ACL content.
func CompileServerACL(content event.ServerACLContent) *ServerACL {
	return &ServerACL{
		allow:           content.Allow,
		deny:            content.Deny,
		allowIPLiterals: content.AllowIPLiterals,
	}
}

// ServerACLFromState returns the room's compiled ACL, or nil when the
// state has no m.room.server_acl event (every server allowed).
func ServerACLFromState(state StateProvider) *ServerACL {
	acl := state.StateEvent(ref.RoomServerACL, "")
	if acl == nil {
		return nil
	}
	return CompileServerACL(event.ParseServerACLContent(acl))
}

// CheckServerACL rejects a server blocked by the room's ACL with an
// *ACLDeniedError. A nil receiver (no ACL in the room) allows
// everything. The check runs once per (origin, room) at the
// transaction boundary, before any per-event rule.
func (a *ServerACL) CheckServerACL(server ref.ServerName, roomID ref.RoomID) error {
	if a == nil || a.Allows(server) {
		return nil
	}
	return &ACLDeniedError{Server: server, RoomID: roomID}
}

// Allows reports whether the ACL permits the server. Matching is on
// the hostname with any port stripped; patterns use '*' (any run) and
// '?' (any single character).
func (a *ServerACL) Allows(server ref.ServerName) bool {
	host := stripPort(server.String())
	if !a.allowIPLiterals && isIPLiteral(host) {
		return false
	}
	for _, pattern := range a.deny {
		if matchGlob(pattern, host) {
			return false
		}
	}
	for _, pattern := range a.allow {
		if matchGlob(pattern, host) {
			return true
		}
	}
	return false
}

func stripPort(name string) string {
	// IPv6 literals keep their brackets; the port sits after them.
	if strings.HasPrefix(name, "[") {
		if end := strings.IndexByte(name, ']'); end >= 0 {
			return name[:end+1]
		}
		return name
	}
	if colon := strings.LastIndexByte(name, ':'); colon >= 0 {
		return name[:colon]
	}
	return name
}

func isIPLiteral(host string) bool {
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return true
	}
	return net.ParseIP(host) != nil
}

// matchGlob matches host against a pattern with '*' and '?'
// wildcards. Iterative with single-star backtracking, so hostile
// patterns cannot blow the stack.
func matchGlob(pattern, host string) bool {
	var p, h int
	starP, starH := -1, 0
	for h < len(host) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == host[h]):
			p++
			h++
		case p < len(pattern) && pattern[p] == '*':
			starP, starH = p, h
			p++
		case starP >= 0:
			starH++
			p, h = starP+1, starH
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
