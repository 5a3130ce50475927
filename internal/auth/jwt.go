package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	jwt.RegisteredClaims
}

// UserID parses the subject claim back into the numeric user id.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)

	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}

	return id, nil
}

// Manager signs and verifies identity tokens. It is stateless: verification
// depends only on the token bytes and the configured secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// NewManagerAt is like NewManager but with an injectable clock, used by tests
// to mint tokens in the past.
func NewManagerAt(secret string, ttl time.Duration, now func() time.Time) *Manager {
	m := NewManager(secret, ttl)
	m.now = now

	return m
}

func (m *Manager) GenerateToken(userID int64) (string, error) {
	now := m.now().UTC()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(m.secret)
}

// VerifyToken checks signature, shape and expiry and returns the embedded
// user id. No store lookup happens here.
func (m *Manager) VerifyToken(tokenStr string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256

		_, ok := t.Method.(*jwt.SigningMethodHMAC)

		if !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})

	if err != nil {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)

	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}

	return claims.UserID()
}
