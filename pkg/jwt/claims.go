package jwt

import "github.com/golang-jwt/jwt/v5"

// Claims identifies the caller of the HTTP API.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type Role string

const (
	RolePlayer   Role = "player"
	RoleOperator Role = "operator"
)

// IsOperator reports whether the caller may run administrative operations.
func (c *Claims) IsOperator() bool {
	return Role(c.Role) == RoleOperator
}
