// Package auth holds the credential state the sync engine and note facade
// depend on. Token acquisition itself happens elsewhere; this package only
// knows whether a usable access token exists.
package auth

import "time"

// Status is the authentication state.
type Status int

const (
	// StatusLoading means the stored session has not been read yet.
	StatusLoading Status = iota
	// StatusAuthenticated means an access token is available.
	StatusAuthenticated
	// StatusUnauthenticated means there is no usable token.
	StatusUnauthenticated
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// User is the account a session belongs to.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Session is what gets persisted between runs.
type Session struct {
	User        User       `json:"user"`
	AccessToken string     `json:"accessToken"`
	Expires     *time.Time `json:"expires,omitempty"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s.Expires != nil && !now.Before(*s.Expires)
}

// Valid reports whether the session can be used to call the remote service.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.AccessToken != "" && !s.Expired(now)
}

// Credentials is the accessor injected into the sync engine and facade.
type Credentials interface {
	// Status returns the current authentication state.
	Status() Status

	// Token returns the access token, or "" when not authenticated.
	Token() string

	// Invalidate is called when the remote service rejects the token.
	// The credential must report StatusUnauthenticated afterwards until it
	// is replaced.
	Invalidate()
}
