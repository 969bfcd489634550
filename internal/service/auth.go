package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wardenhq/warden/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// TokenMetadata is the validated content of a bearer token.
type TokenMetadata struct {
	Role      model.Role
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AuthService issues and validates the HMAC-signed bearer tokens that gate
// every non-public, non-webhook request. There is no revocation list:
// compromise mitigation is TTL-based, so high-privilege tokens should be
// issued with short lifetimes.
type AuthService struct {
	secret []byte
	now    func() time.Time
}

// NewAuthService creates a token service signing with the given secret.
func NewAuthService(secret string) *AuthService {
	return &AuthService{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Issue creates a signed token carrying the role, an optional subject, and
// an absolute expiry of now+ttl. Tampering with any claim invalidates the
// signature.
func (s *AuthService) Issue(role model.Role, subject string, ttl time.Duration) (string, error) {
	if _, err := model.ParseRole(string(role)); err != nil {
		return "", err
	}
	now := s.now()
	claims := tokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "warden",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate checks a raw bearer token and returns its metadata. A token is
// valid iff it parses, its signature verifies, and the current wall-clock
// time is strictly before its expiry.
func (s *AuthService) Validate(tokenStr string) (*TokenMetadata, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	role, err := model.ParseRole(claims.Role)
	if err != nil {
		return nil, ErrInvalidToken
	}
	md := &TokenMetadata{
		Role:    role,
		Subject: claims.Subject,
	}
	if claims.IssuedAt != nil {
		md.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt == nil {
		// Tokens without an expiry are never accepted.
		return nil, ErrInvalidToken
	}
	md.ExpiresAt = claims.ExpiresAt.Time
	return md, nil
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}
