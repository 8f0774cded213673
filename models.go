package auth

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Authority names granted to accounts
const (
	// AuthorityUser is granted to every registered account
	AuthorityUser = "ROLE_USER"
	// AuthorityAdmin allows account moderation
	AuthorityAdmin = "ROLE_ADMIN"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	Username      string     `bun:"username,notnull,unique" json:"username"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Enabled       bool       `bun:"enabled,notnull" json:"enabled"`
	Authorities   string     `bun:"authorities,notnull" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at,omitempty"`
}

// AuthorityList splits the stored authority column
func (u *User) AuthorityList() []string {
	if u == nil {
		return nil
	}
	return splitAuthorities(u.Authorities)
}

// SetAuthorities replaces the stored authority column
func (u *User) SetAuthorities(authorities ...string) *User {
	u.Authorities = joinAuthorities(authorities)
	return u
}

func splitAuthorities(raw string) []string {
	out := []string{}
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func joinAuthorities(authorities []string) string {
	seen := make(map[string]struct{}, len(authorities))
	out := make([]string, 0, len(authorities))
	for _, a := range authorities {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return strings.Join(out, ",")
}
