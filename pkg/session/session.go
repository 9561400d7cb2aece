package session

import (
	"encoding/json"
	"maps"
	"slices"
)

// Session is the authenticated identity and credential bundle held on the
// client. Its JSON form is both the server's login payload and the persisted
// record.
type Session struct {
	UserID   string `json:"user_id"`
	Token    string `json:"token"`
	Password string `json:"password"`

	// Issued and Expires are server timestamps in epoch milliseconds.
	Issued  int64 `json:"issued"`
	Expires int64 `json:"expires"`

	// ServerTimeDiff is server time minus local time in milliseconds,
	// measured when the session was issued. Adding it to the local clock
	// estimates the server's clock.
	ServerTimeDiff int64 `json:"serverTimeDiff,omitempty"`

	Roles   []string          `json:"roles,omitempty"`
	UserDBs map[string]string `json:"userDBs,omitempty"`

	Provider string          `json:"provider,omitempty"`
	Profile  json.RawMessage `json:"profile,omitempty"`
}

// Valid reports whether s is a complete session. Partial sessions are never
// stored.
func (s Session) Valid() bool {
	return s.UserID != "" && s.Token != "" && s.Issued != 0 && s.Expires != 0
}

// Bearer returns the composite credential sent in the Authorization header.
func (s Session) Bearer() string {
	return s.Token + ":" + s.Password
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	c := s
	c.Roles = slices.Clone(s.Roles)
	c.UserDBs = maps.Clone(s.UserDBs)
	if s.Profile != nil {
		c.Profile = append(json.RawMessage(nil), s.Profile...)
	}
	return c
}

// DBURL returns the URL of the user database registered under name.
func (s Session) DBURL(name string) (string, bool) {
	u, ok := s.UserDBs[name]
	return u, ok && u != ""
}

// HasRole reports whether role was granted to the session.
func (s Session) HasRole(role string) bool {
	return slices.Contains(s.Roles, role)
}
