package oracle

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

var _ core.Oracle = (*ClaimOracle)(nil)

// ClaimOracle trusts the token's own exp claim. The signature is not verified:
// the value was captured from our own browser session and upstream enforces it anyway.
type ClaimOracle struct {
	// Now can be overridden in tests.
	Now func() time.Time
}

func NewClaimOracle() *ClaimOracle {
	return &ClaimOracle{Now: time.Now}
}

// IsValid reports exp > now. A token without a readable exp is invalid.
func (o *ClaimOracle) IsValid(_ context.Context, token *core.Token) bool {
	if token == nil || token.Value == "" {
		return false
	}
	exp, ok := ExpiryOf(token.Value)
	if !ok {
		return false
	}
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	return exp.After(now())
}

// ExpiryOf decodes the exp claim of a JWT without verifying it.
func ExpiryOf(value string) (time.Time, bool) {
	claims, ok := Claims(value)
	if !ok {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Claims decodes the claims of a JWT without verifying it.
func Claims(value string) (jwt.MapClaims, bool) {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(value, jwt.MapClaims{})
	if err != nil {
		return nil, false
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	return claims, ok
}
