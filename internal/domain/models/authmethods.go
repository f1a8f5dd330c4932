// internal/domain/models/authmethods.go
package models

// Auth providers recorded on a user. A user who registered locally and later
// linked Google (or the reverse) is recorded as "both".
const (
	AuthProviderLocal  = "local"
	AuthProviderGoogle = "google"
	AuthProviderBoth   = "both"
)

// AllAuthProviders lists every valid auth_provider value.
var AllAuthProviders = []string{AuthProviderLocal, AuthProviderGoogle, AuthProviderBoth}

// IsValidAuthProvider checks if a value is a valid auth provider.
func IsValidAuthProvider(p string) bool {
	for _, v := range AllAuthProviders {
		if v == p {
			return true
		}
	}
	return false
}

// AllowsPassword reports whether a user with this provider can sign in with
// a username and password.
func AllowsPassword(p string) bool {
	return p == AuthProviderLocal || p == AuthProviderBoth
}
