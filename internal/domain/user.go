package domain

import (
	"context"
	"time"
)

// Role is an application role carried in verified token claims.
type Role string

// Application roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsAdmin reports whether the role grants administrative access.
func (r Role) IsAdmin() bool { return r == RoleAdmin }

// User represents a registered user as the identity provider exposes them.
// The engine reads user records only to populate booking responses; it never
// authenticates or mutates them.
// swagger:model User
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenClaims is the verified identity attached to a request: a stable user ID
// and the roles granted by the identity provider. The engine trusts this input.
type TokenClaims struct {
	UserID string
	Roles  []Role
}

// Role returns the effective role: admin if any granted role is admin.
func (c TokenClaims) Role() Role {
	for _, r := range c.Roles {
		if r.IsAdmin() {
			return RoleAdmin
		}
	}
	return RoleUser
}

// TokenIssuer issues tokens (e.g. JWT) for an authenticated user.
type TokenIssuer interface {
	Issue(userID string, roles []Role, expiry time.Duration) (string, error)
}

// TokenVerifier verifies a token and returns the claims it carries.
type TokenVerifier interface {
	Verify(token string) (*TokenClaims, error)
}

// UserRepository defines read access to user records.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
