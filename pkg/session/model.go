package session

import "time"

// Session represents the credentials held by an authenticated client.
// It changes only on a successful refresh or a new login and is destroyed
// on logout or when a refresh fails for good.
type Session struct {
	ID           string    // Session ID, stable across refreshes
	Subject      string    // Subject the tokens were issued for
	AccessToken  string    // Short-lived bearer token
	RefreshToken string    // Longer-lived token used only to mint access tokens
	ExpiresAt    time.Time // Expiry time of the access token
}

// Empty reports whether the session carries no credentials.
func (s Session) Empty() bool {
	return s.AccessToken == "" && s.RefreshToken == ""
}

// Expired reports whether the access token has expired at the given time.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
