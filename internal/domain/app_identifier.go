package domain

import (
	"fmt"
	"strings"
)

// AppIdentifier is a reverse-DNS bundle identifier, exact ("com.acme.app")
// or wildcard ("com.acme.*", "*"). The wildcard may only be the last segment.
type AppIdentifier struct {
	value string
}

// ParseAppIdentifier validates s.
func ParseAppIdentifier(s string) (AppIdentifier, error) {
	s = strings.TrimSpace(s)
	if s == "*" {
		return AppIdentifier{value: s}, nil
	}
	segments := strings.Split(s, ".")
	if len(segments) < 2 {
		return AppIdentifier{}, fmt.Errorf("%w: %q is not reverse-DNS", ErrInvalidAppIdentifier, s)
	}
	for i, seg := range segments {
		if seg == "*" && i == len(segments)-1 {
			continue
		}
		if !validSegment(seg) {
			return AppIdentifier{}, fmt.Errorf("%w: %q has invalid segment %q", ErrInvalidAppIdentifier, s, seg)
		}
	}
	return AppIdentifier{value: s}, nil
}

// MustAppIdentifier is ParseAppIdentifier that panics; for tests and constants.
func MustAppIdentifier(s string) AppIdentifier {
	a, err := ParseAppIdentifier(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseProfileAppIdentifier parses an identifier as found in profile
// entitlements, stripping a leading "<TEAMID>." prefix.
func ParseProfileAppIdentifier(team TeamID, raw string) (AppIdentifier, error) {
	if team != "" {
		raw = strings.TrimPrefix(raw, string(team)+".")
	}
	return ParseAppIdentifier(raw)
}

func validSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}

func (a AppIdentifier) String() string { return a.value }

// IsZero reports whether a is the zero value.
func (a AppIdentifier) IsZero() bool { return a.value == "" }

// IsWildcard reports whether a ends in a wildcard segment.
func (a AppIdentifier) IsWildcard() bool { return strings.HasSuffix(a.value, "*") }

// Covers reports whether a profile bound to a can sign target.
// An exact identifier covers only itself. A wildcard covers every exact
// identifier having the wildcard's base (including the trailing dot) as a
// strict prefix: "com.acme.*" covers "com.acme.app" and "com.acme.app.ext"
// but not "com.acme" or "com.other.app".
func (a AppIdentifier) Covers(target AppIdentifier) bool {
	if a.IsZero() || target.IsZero() {
		return false
	}
	if !a.IsWildcard() {
		return a.value == target.value
	}
	if target.IsWildcard() {
		return a.value == target.value
	}
	base := strings.TrimSuffix(a.value, "*")
	return len(target.value) > len(base) && strings.HasPrefix(target.value, base)
}

// Equals compares identifiers.
func (a AppIdentifier) Equals(other AppIdentifier) bool { return a.value == other.value }
