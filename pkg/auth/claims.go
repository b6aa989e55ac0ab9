package auth

import (
	"github.com/angelmondragon/careforall-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID string
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims is the token the identity service issues. Only userId and
// role are trusted by the pledge, payment and totals routes.
type AccessTokenClaims struct {
	UserID string     `json:"userId"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID string     `json:"userId"`
	Role   enums.Role `json:"role"`
}

// Principal projects the claims the API relies on.
func (c AccessTokenClaims) Principal() Principal {
	return Principal{UserID: c.UserID, Role: c.Role}
}
