package testutil

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningSecret signs every token the mock backend mints. The client
// never verifies signatures, but the tokens are structurally real.
const SigningSecret = "storefront-test-secret"

// MintAccessToken signs an HS256 access token for the subject with the
// given expiry.
func MintAccessToken(subject string, expiresAt time.Time) string {
	return signToken(jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": expiresAt.Unix(),
		"jti": uuid.NewString(),
	})
}

// MintIDToken signs an HS256 identity token without an expiry claim.
func MintIDToken(subject string) string {
	return signToken(jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
	})
}

// MintOpaqueToken returns a token that is not a JWT at all.
func MintOpaqueToken() string {
	return "opaque-" + uuid.NewString()
}

func signToken(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(SigningSecret))
	if err != nil {
		panic(fmt.Sprintf("testutil: sign token: %v", err))
	}
	return signed
}
