package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type TokenService struct {
	Secret   []byte
	Username string
	passHash []byte
	Duration time.Duration
}

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewTokenService(secret, username, appPasswordHash string, duration time.Duration) *TokenService {
	return &TokenService{
		Secret:   []byte(secret),
		Username: username,
		passHash: []byte(appPasswordHash),
		Duration: duration,
	}
}

// VerifyCredentials checks a username and application password against
// the configured account.
func (ts *TokenService) VerifyCredentials(username, password string) error {
	if username != ts.Username {
		return fmt.Errorf("unknown user")
	}

	if err := bcrypt.CompareHashAndPassword(ts.passHash, []byte(password)); err != nil {
		return fmt.Errorf("invalid password")
	}

	return nil
}

func (ts *TokenService) Sign(username string) (string, time.Time, error) {
	exp := time.Now().Add(ts.Duration)

	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(ts.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return s, exp, nil
}

func (ts *TokenService) Parse(tokenString string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		// enforce HS256
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
