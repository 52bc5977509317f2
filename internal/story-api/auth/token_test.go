package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	tok, err := iss.Issue("0xabc")
	require.NoError(t, err)

	addr, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", addr)
}

func TestIssuer_RejectsExpiredAndForeignTokens(t *testing.T) {
	iss := NewIssuer("secret", time.Minute)
	tok, err := iss.Issue("0xabc")
	require.NoError(t, err)

	iss.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = iss.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewIssuer("other-secret", time.Hour)
	foreign, err := other.Issue("0xabc")
	require.NoError(t, err)
	_, err = NewIssuer("secret", time.Hour).Parse(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Address: "0xabc"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewIssuer("secret", time.Hour).Parse(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	var seen string
	h := iss.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = Address(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := iss.Issue("0xabc")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0xabc", seen)
}

func TestSignInMessageCarriesAddressAndNonce(t *testing.T) {
	msg := SignInMessage("0xabc", "n-1")
	assert.Contains(t, msg, "0xabc")
	assert.Contains(t, msg, "n-1")
}
