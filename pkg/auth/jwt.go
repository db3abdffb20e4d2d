package auth

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// TokenExpiry extracts the expiry claim from a raw JWT without verifying
// its signature. The client treats tokens as opaque bearers; only the
// backend verifies them.
func TokenExpiry(raw string) (time.Time, error) {
	token, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return time.Time{}, errors.New("unexpected claims type")
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, errors.New("token missing exp claim")
	}

	return exp.Time, nil
}

// IsExpired reports whether a token expiring at exp is unusable at now.
// The skew widens the window so tokens refresh slightly before the
// backend would reject them: a token expiring inside the next skew
// interval already counts as expired.
func IsExpired(exp, now time.Time, skew time.Duration) bool {
	return !exp.After(now.Add(skew))
}
