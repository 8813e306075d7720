package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/middleware"
)

const issuer = "storefront"

// SessionClaims are the claims of a session token. The platform access token
// rides inside so that account calls can be made on the customer's behalf.
type SessionClaims struct {
	CustomerID  string `json:"cid"`
	Email       string `json:"email"`
	AccessToken string `json:"pat"`
	jwt.RegisteredClaims
}

// SessionManager issues and validates HS256 session tokens.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager creates a session manager. A session never outlives the
// platform access token it wraps, nor ttl.
func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a session for customer wrapping the platform access token.
func (m *SessionManager) Issue(customer *domain.Customer, access *domain.AccessToken) (*domain.Session, error) {
	now := m.now().UTC()
	expires := now.Add(m.ttl)
	if !access.ExpiresAt.IsZero() && access.ExpiresAt.Before(expires) {
		expires = access.ExpiresAt.UTC()
	}

	claims := &SessionClaims{
		CustomerID:  customer.ID,
		Email:       customer.Email,
		AccessToken: access.Token,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   customer.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return &domain.Session{
		Token:       signed,
		AccessToken: access.Token,
		ExpiresAt:   expires.Truncate(time.Second),
		Customer:    customer,
	}, nil
}

// Validate parses a session token and returns its claims.
func (m *SessionManager) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.CustomerID == "" || claims.AccessToken == "" {
		return nil, fmt.Errorf("invalid session token claims")
	}
	return claims, nil
}

// Validator adapts Validate to the HTTP auth middleware.
func (m *SessionManager) Validator() middleware.TokenValidator {
	return func(token string) (*middleware.Claims, error) {
		c, err := m.Validate(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			CustomerID:  c.CustomerID,
			Email:       c.Email,
			AccessToken: c.AccessToken,
			ExpiresAt:   c.ExpiresAt.Time,
		}, nil
	}
}
