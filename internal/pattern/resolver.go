// Package pattern resolves date placeholder tokens in path and file name
// patterns. Resolution is a pure function of (pattern, timestamp); placement
// validation runs once, when a configuration is written.
package pattern

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidTokenPlacement is returned when a date token appears in the
// host/authority component of a pattern. Tokens are only valid in path and
// file name segments.
var ErrInvalidTokenPlacement = errors.New("date token not allowed in host/authority")

// tokens maps each recognized placeholder to its formatter. Only these exact
// lowercase forms are substituted; anything else is left as literal text.
var tokens = []struct {
	placeholder string
	format      func(t time.Time) string
}{
	{"{yyyy}", func(t time.Time) string { return fmt.Sprintf("%04d", t.Year()) }},
	{"{yy}", func(t time.Time) string { return fmt.Sprintf("%02d", t.Year()%100) }},
	{"{mm}", func(t time.Time) string { return fmt.Sprintf("%02d", int(t.Month())) }},
	{"{dd}", func(t time.Time) string { return fmt.Sprintf("%02d", t.Day()) }},
}

// Resolve replaces all date tokens in pattern using at normalized to UTC.
// Patterns without tokens pass through unchanged.
func Resolve(pattern string, at time.Time) string {
	at = at.UTC()
	resolved := pattern
	for _, tok := range tokens {
		resolved = strings.ReplaceAll(resolved, tok.placeholder, tok.format(at))
	}
	return resolved
}

// ContainsToken reports whether s holds any recognized date token.
func ContainsToken(s string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok.placeholder) {
			return true
		}
	}
	return false
}

// ValidatePlacement rejects patterns whose host/authority component contains
// a date token. Plain paths (no scheme) are always acceptable; for URL-shaped
// patterns the authority is everything between "//" and the first "/".
func ValidatePlacement(raw string) error {
	schemeIdx := strings.Index(raw, "://")
	if schemeIdx < 0 {
		return nil
	}

	u, err := url.Parse(raw)
	if err == nil && u.Host != "" {
		authority := u.Host
		if u.User != nil {
			authority = u.User.String() + "@" + authority
		}
		if ContainsToken(authority) {
			return fmt.Errorf("%w: %q", ErrInvalidTokenPlacement, authority)
		}
		return nil
	}

	// url.Parse chokes on some token characters; fall back to slicing the
	// authority out by hand so malformed hosts are still rejected.
	rest := raw[schemeIdx+len("://"):]
	authority := rest
	if i := strings.Index(rest, "/"); i >= 0 {
		authority = rest[:i]
	}
	if ContainsToken(authority) {
		return fmt.Errorf("%w: %q", ErrInvalidTokenPlacement, authority)
	}
	return nil
}
