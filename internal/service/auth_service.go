// internal/service/auth_service.go
package service

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWT configuration
var (
	jwtSecret         []byte
	accessTokenExpiry = time.Hour
)

var ErrAuthNotConfigured = errors.New("JWT_SECRET is not configured")

// InitAuthConfig sets the shared secret used to verify join tokens. An empty
// secret disables authentication; every session stays a guest.
func InitAuthConfig(secret string, expiry time.Duration) {
	jwtSecret = []byte(secret)
	if expiry > 0 {
		accessTokenExpiry = expiry
	}
}

// Claims represents JWT claims
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Phone    string `json:"phone,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateAccessToken issues a token for a user; the relay uses it for local
// development logins.
func GenerateAccessToken(userID int64, username, phone string) (string, error) {
	if len(jwtSecret) == 0 {
		return "", ErrAuthNotConfigured
	}

	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		Phone:    phone,
		Role:     "customer",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ValidateAccessToken validates JWT access token and returns claims
func ValidateAccessToken(tokenString string) (*Claims, error) {
	if len(jwtSecret) == 0 {
		return nil, ErrAuthNotConfigured
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
