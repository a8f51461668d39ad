package session

import "time"

// Session is one authenticated login of a user within a tenant.
//
// AccessToken and RefreshToken are populated only on the value returned by
// Create and Refresh; stores persist RefreshHash instead.
type Session struct {
	ID       string
	UserID   string
	TenantID string

	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
	RefreshHash     string

	IP        string
	UserAgent string

	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActiveAt time.Time
	Revoked      bool
}

// Usable reports whether the session may still authenticate at now.
func (s *Session) Usable(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// Expired reports whether the session is revoked or past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.Usable(now)
}

// Principal is the identity a session is minted for, with its resolved authorization.
type Principal struct {
	UserID      string
	TenantID    string
	Roles       []string
	Permissions []string
}

// ClientMeta is request metadata recorded on a new session.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Rotation is the new refresh state written by a successful refresh.
type Rotation struct {
	RefreshHash  string
	ExpiresAt    time.Time
	LastActiveAt time.Time
}
