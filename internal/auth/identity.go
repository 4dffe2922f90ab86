package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingSecret = errors.New("token secret is empty")
)

// Identity is the authenticated user the client acts for. IsModerator only
// gates intents locally; the remote service stays the authority.
type Identity struct {
	Username    string `json:"username"`
	IsModerator bool   `json:"isModerator"`
}

// Claims is the token payload understood by the client.
type Claims struct {
	Username    string `json:"username"`
	IsModerator bool   `json:"is_moderator"`
	jwt.RegisteredClaims
}

// Validator checks HS256 tokens issued by the auth service.
type Validator struct {
	secretKey []byte
}

func NewValidator(secretKey string) *Validator {
	return &Validator{secretKey: []byte(secretKey)}
}

// Validate parses token and returns the identity it carries.
func (v *Validator) Validate(tokenString string) (Identity, error) {
	if len(v.secretKey) == 0 {
		return Identity{}, ErrMissingSecret
	}
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secretKey, nil
	})
	if err != nil {
		return Identity{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	username := claims.Username
	if username == "" {
		username = claims.Subject
	}
	if username == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{Username: username, IsModerator: claims.IsModerator}, nil
}

// Issue signs a token for identity. The auth service owns issuance in
// production; this serves local runs and tests.
func (v *Validator) Issue(identity Identity, ttl time.Duration) (string, error) {
	if len(v.secretKey) == 0 {
		return "", ErrMissingSecret
	}
	now := time.Now()
	claims := &Claims{
		Username:    identity.Username,
		IsModerator: identity.IsModerator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secretKey)
}
