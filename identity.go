package auth

import "slices"

// AnonymousSubject marks a request that carries no authenticated identity
const AnonymousSubject = "anonymousUser"

// Identity is the read-only view of an account that flows through the
// request and connection pipelines. The password hash never leaves the store.
type Identity struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Enabled     bool     `json:"enabled"`
	Authorities []string `json:"authorities"`
}

// NewIdentity projects a store record
func NewIdentity(user *User) Identity {
	if user == nil {
		return Anonymous()
	}
	return Identity{
		ID:          user.ID,
		Username:    user.Username,
		Enabled:     user.Enabled,
		Authorities: user.AuthorityList(),
	}
}

// Anonymous returns the identity used for unauthenticated callers
func Anonymous() Identity {
	return Identity{Username: AnonymousSubject}
}

// IsAnonymous reports whether the identity is the anonymous marker
func (i Identity) IsAnonymous() bool {
	return i.ID == 0 || i.Username == "" || i.Username == AnonymousSubject
}

// HasAuthority checks for a granted authority
func (i Identity) HasAuthority(authority string) bool {
	return slices.Contains(i.Authorities, authority)
}
