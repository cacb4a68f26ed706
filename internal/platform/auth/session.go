package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidPassword is returned when the shared password does not match.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrInvalidToken is returned for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("invalid session token")
)

const (
	sessionIssuer  = "nptracker"
	sessionSubject = "practitioner"
)

// Claims are the claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
}

// SessionConfig configures the shared-password gate.
type SessionConfig struct {
	Password   string
	SigningKey []byte
	TTL        time.Duration
	// Open lets every request through without a token. Used in development
	// when no password is configured.
	Open bool
}

// Sessions issues and verifies HS256 session tokens in exchange for the
// shared password.
type Sessions struct {
	cfg SessionConfig
	now func() time.Time
}

func NewSessions(cfg SessionConfig) *Sessions {
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &Sessions{cfg: cfg, now: time.Now}
}

// Open reports whether the gate lets requests through without a token.
func (s *Sessions) Open() bool {
	return s.cfg.Open
}

// Login checks password and returns a signed token with its expiry.
func (s *Sessions) Login(password string) (string, time.Time, error) {
	if s.cfg.Password == "" ||
		subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Password)) != 1 {
		return "", time.Time{}, ErrInvalidPassword
	}

	now := s.now()
	expires := now.Add(s.cfg.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    sessionIssuer,
			Subject:   sessionSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expires, nil
}

// Verify parses a token and checks signature, issuer and expiry.
func (s *Sessions) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
