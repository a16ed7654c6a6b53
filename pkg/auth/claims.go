// Package auth verifies the HS256 access tokens issued by the identity
// service. The user id travels in the registered subject claim.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ErrInvalidClaims wraps every storefront-specific claim failure.
var ErrInvalidClaims = errors.New("invalid access token claims")

// AccessTokenPayload is what a caller supplies when minting a token.
type AccessTokenPayload struct {
	UserID string
	Role   enums.UserRole
	JTI    string
}

type AccessTokenClaims struct {
	Role enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

func (c *AccessTokenClaims) UserID() string {
	return c.Subject
}

// Validate runs after the registered claims pass; jwt/v5 calls it through
// the ClaimsValidator interface.
func (c *AccessTokenClaims) Validate() error {
	if strings.TrimSpace(c.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidClaims)
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidClaims, c.Role)
	}
	return nil
}
