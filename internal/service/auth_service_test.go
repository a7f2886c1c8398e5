package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	withSecret(t, "round-trip-secret")

	token, err := GenerateAccessToken(7, "meera", "+919811111111")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	claims, err := ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "meera" || claims.Phone != "+919811111111" || claims.Subject != "7" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	withSecret(t, "one")
	token, err := GenerateAccessToken(1, "a", "")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	InitAuthConfig("two", time.Hour)
	if _, err := ValidateAccessToken(token); err == nil {
		t.Error("token signed with another secret was accepted")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	withSecret(t, "expiry-secret")

	claims := &Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("expiry-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ValidateAccessToken(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestAuthNotConfigured(t *testing.T) {
	InitAuthConfig("", 0)
	if _, err := GenerateAccessToken(1, "a", ""); !errors.Is(err, ErrAuthNotConfigured) {
		t.Errorf("generate err = %v", err)
	}
	if _, err := ValidateAccessToken("x.y.z"); !errors.Is(err, ErrAuthNotConfigured) {
		t.Errorf("validate err = %v", err)
	}
}
