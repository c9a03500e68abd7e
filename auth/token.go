package auth

import (
	"fmt"
	"time"

	"realtime-core/domain"
	"realtime-core/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

const issuer = "realtime-core"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenValidator issues and checks HS256 tokens identifying a connecting user.
type TokenValidator struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewTokenValidator(secret string, ttl time.Duration, clock clockwork.Clock) TokenValidator {
	return TokenValidator{secret: []byte(secret), ttl: ttl, clock: clock}
}

// Issue creates a signed token for user, valid for the validator's ttl.
func (v TokenValidator) Issue(user domain.User) (string, error) {
	now := v.clock.Now()
	claims := &CustomClaims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Validate parses the token, checks signature, issuer and expiry, and returns
// the user it identifies.
func (v TokenValidator) Validate(tokenString string) (domain.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
	)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", errors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.User{}, fmt.Errorf("%w: missing user", errors.ErrInvalidToken)
	}
	return domain.User{ID: claims.UserID, Role: claims.Role}, nil
}
