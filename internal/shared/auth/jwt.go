package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("role not allowed")
)

// Platform roles carried in the token.
const (
	RoleCustomer = "customer"
	RoleDriver   = "driver"
	RoleStaff    = "staff"
	RoleAgent    = "agent"
	RoleAdmin    = "admin"
)

type Claims struct {
	SessionID string   `json:"sid"`
	Role      string   `json:"role"`
	Roles     []string `json:"roles"`
	jwt.RegisteredClaims
}

// UserID is the token subject.
func (c *Claims) UserID() string {
	if c == nil {
		return ""
	}
	return c.RegisteredClaims.Subject
}

// HasRole reports whether the claims grant any of the given roles. Admins pass every check.
func (c *Claims) HasRole(roles ...string) bool {
	if c == nil {
		return false
	}
	granted := c.allRoles()
	for _, g := range granted {
		if g == RoleAdmin {
			return true
		}
		for _, r := range roles {
			if strings.EqualFold(g, r) {
				return true
			}
		}
	}
	return false
}

// PrimaryRole is the first role carried by the token, or "".
func (c *Claims) PrimaryRole() string {
	if c == nil {
		return ""
	}
	if roles := c.allRoles(); len(roles) > 0 {
		return roles[0]
	}
	return ""
}

// Owns reports whether the token speaks for userID. Admins speak for everyone.
func (c *Claims) Owns(userID string) bool {
	if c == nil {
		return false
	}
	return c.UserID() == strings.TrimSpace(userID) || c.HasRole(RoleAdmin)
}

func (c *Claims) allRoles() []string {
	out := make([]string, 0, len(c.Roles)+1)
	if r := strings.TrimSpace(c.Role); r != "" {
		out = append(out, strings.ToLower(r))
	}
	for _, r := range c.Roles {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, strings.ToLower(r))
		}
	}
	return out
}

type TokenValidator interface {
	Validate(token string) (*Claims, error)
}

type JWTValidator struct {
	secret    []byte
	publicKey *rsa.PublicKey
	now       func() time.Time
}

// NewJWTValidator creates a validator that uses HMAC (HS256) with the provided secret.
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(strings.TrimSpace(secret)), now: time.Now}
}

// NewJWTValidatorWithPublicKey creates a validator that supports RS256 with RSA public key.
// If publicKeyPEM is provided, RS256 is used. Otherwise, falls back to HMAC with secret.
func NewJWTValidatorWithPublicKey(secret, publicKeyPEM string) (*JWTValidator, error) {
	v := &JWTValidator{
		secret: []byte(strings.TrimSpace(secret)),
		now:    time.Now,
	}

	if strings.TrimSpace(publicKeyPEM) != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		v.publicKey = key
	}

	return v, nil
}

func (v *JWTValidator) Validate(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	if v.publicKey == nil && len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: jwt key not configured (neither public key nor secret)", ErrInvalidToken)
	}

	claims := &Claims{}
	parsedToken, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if v.publicKey != nil {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v, expected RS256", t.Header["alg"])
			}
			return v.publicKey, nil
		}

		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithLeeway(5*time.Second), jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsedToken.Valid {
		return nil, ErrInvalidToken
	}

	if claims.RegisteredClaims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	if claims.SessionID == "" {
		claims.SessionID = claims.RegisteredClaims.ID
	}
	if claims.SessionID == "" {
		if claims.RegisteredClaims.ExpiresAt != nil {
			claims.SessionID = fmt.Sprintf("%s:%d", claims.RegisteredClaims.Subject, claims.RegisteredClaims.ExpiresAt.Unix())
		} else {
			claims.SessionID = claims.RegisteredClaims.Subject
		}
	}

	return claims, nil
}

var _ TokenValidator = (*JWTValidator)(nil)
