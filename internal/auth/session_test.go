package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func customer() *domain.Customer {
	return &domain.Customer{ID: "gid://shopify/Customer/7", Email: "asha@example.com", FirstName: "Asha"}
}

func TestSessionManager_IssueAndValidate(t *testing.T) {
	m := NewSessionManager(testSecret, 24*time.Hour)
	access := &domain.AccessToken{Token: "cat_1", ExpiresAt: time.Now().Add(30 * 24 * time.Hour)}

	sess, err := m.Issue(customer(), access)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "cat_1", sess.AccessToken)
	assert.Equal(t, "Asha", sess.Customer.FirstName)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), sess.ExpiresAt, 2*time.Second)

	claims, err := m.Validate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Customer/7", claims.CustomerID)
	assert.Equal(t, "asha@example.com", claims.Email)
	assert.Equal(t, "cat_1", claims.AccessToken)
	assert.Equal(t, "storefront", claims.Issuer)
}

func TestSessionManager_ExpiryCappedByAccessToken(t *testing.T) {
	m := NewSessionManager(testSecret, 30*24*time.Hour)
	accessExp := time.Now().Add(2 * time.Hour).UTC()

	sess, err := m.Issue(customer(), &domain.AccessToken{Token: "cat_1", ExpiresAt: accessExp})
	require.NoError(t, err)

	assert.WithinDuration(t, accessExp, sess.ExpiresAt, time.Second)
}

func TestSessionManager_Expired(t *testing.T) {
	m := NewSessionManager(testSecret, time.Hour)
	issued := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }

	sess, err := m.Issue(customer(), &domain.AccessToken{Token: "cat_1"})
	require.NoError(t, err)

	m.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = m.Validate(sess.Token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestSessionManager_RejectsForeignTokens(t *testing.T) {
	m := NewSessionManager(testSecret, time.Hour)
	other := NewSessionManager("another-secret-another-secret-xx", time.Hour)

	sess, err := other.Issue(customer(), &domain.AccessToken{Token: "cat_1"})
	require.NoError(t, err)
	_, err = m.Validate(sess.Token)
	assert.Error(t, err, "wrong key")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &SessionClaims{
		CustomerID:  "c",
		AccessToken: "a",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Validate(none)
	assert.Error(t, err, "alg none")

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &SessionClaims{
		CustomerID:       "c",
		AccessToken:      "a",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = m.Validate(noExp)
	assert.Error(t, err, "missing exp")

	_, err = m.Validate("not.a.token")
	assert.Error(t, err)
}

func TestSessionManager_RejectsMissingAccessToken(t *testing.T) {
	m := NewSessionManager(testSecret, time.Hour)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &SessionClaims{
		CustomerID: "c",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = m.Validate(tok)
	assert.Error(t, err)
}

func TestSessionManager_Validator(t *testing.T) {
	m := NewSessionManager(testSecret, time.Hour)
	sess, err := m.Issue(customer(), &domain.AccessToken{Token: "cat_1"})
	require.NoError(t, err)

	claims, err := m.Validator()(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Customer/7", claims.CustomerID)
	assert.Equal(t, "cat_1", claims.AccessToken)
	assert.True(t, sess.ExpiresAt.Equal(claims.ExpiresAt))

	_, err = m.Validator()("garbage")
	assert.Error(t, err)
}
