package auth

import (
	"context"

	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/user"
)

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID   string      `json:"userId"`
	Username string      `json:"username"`
	Roles    []user.Role `json:"roles"`
}

func PrincipalFromClaims(c *Claims) Principal {
	return Principal{UserID: c.Subject, Username: c.Username, Roles: c.Roles}
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// HasAnyRole allows the principal when nothing is required or when it holds at
// least one of the required roles.
func HasAnyRole(p Principal, required ...user.Role) bool {
	if len(required) == 0 {
		return true
	}
	for _, want := range required {
		for _, have := range p.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}
