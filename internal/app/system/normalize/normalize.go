// internal/app/system/normalize/normalize.go
package normalize

import (
	"strings"

	"github.com/dalemusser/waffle/pantry/text"
)

// Email lowercases and trims an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims surrounding whitespace and collapses inner runs of spaces.
// Case is preserved.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Username trims a username. Case is preserved for display; use UsernameCI
// for lookups.
func Username(s string) string {
	return strings.TrimSpace(s)
}

// UsernameCI returns the folded form stored in username_ci.
func UsernameCI(s string) string {
	return text.Fold(strings.TrimSpace(s))
}

// Usernames trims, folds, and de-duplicates a candidate list, dropping blanks.
// Order of first appearance is kept.
func Usernames(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		ci := UsernameCI(s)
		if ci == "" {
			continue
		}
		if _, dup := seen[ci]; dup {
			continue
		}
		seen[ci] = struct{}{}
		out = append(out, ci)
	}
	return out
}

// Role lowercases and trims a membership role.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AuthProvider lowercases and trims an auth provider value.
func AuthProvider(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
