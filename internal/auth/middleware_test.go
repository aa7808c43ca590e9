package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":      "user-1",
		"agencyId": "agency-1",
		"role":     models.RoleAgencyAdmin,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
}

func newAuthenticator() *Authenticator {
	return NewAuthenticator(HMACVerifier{Secret: secret}, "agencyId", "role", logger.Nop())
}

func captureActor(seen *models.Actor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = ActorFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequired_BuildsActor(t *testing.T) {
	var seen models.Actor
	h := newAuthenticator().Required()(captureActor(&seen))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.SigningMethodHS256, secret, validClaims()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.Actor{AgencyID: "agency-1", UserID: "user-1", Role: models.RoleAgencyAdmin}, seen)
}

func TestRequired_Rejects(t *testing.T) {
	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	noExp := validClaims()
	delete(noExp, "exp")
	noSub := validClaims()
	delete(noSub, "sub")

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"garbage":        "Bearer not-a-jwt",
		"wrong secret":   "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), validClaims()),
		"expired":        "Bearer " + sign(t, jwt.SigningMethodHS256, secret, expired),
		"no expiry":      "Bearer " + sign(t, jwt.SigningMethodHS256, secret, noExp),
		"no subject":     "Bearer " + sign(t, jwt.SigningMethodHS256, secret, noSub),
		"alg none":       "Bearer " + sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims()),
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			called := false
			h := newAuthenticator().Required()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, called)
		})
	}
}

func TestOptional_AnonymousAndInvalidPassThrough(t *testing.T) {
	var seen models.Actor
	h := newAuthenticator().Optional()(captureActor(&seen))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.Actor{}, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.Actor{}, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.SigningMethodHS256, secret, validClaims()))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "agency-1", seen.AgencyID)
}

func TestCustomClaimNames(t *testing.T) {
	var seen models.Actor
	a := NewAuthenticator(HMACVerifier{Secret: secret}, "tenant", "kind", logger.Nop())
	h := a.Required()(captureActor(&seen))

	claims := validClaims()
	claims["tenant"] = "agency-9"
	claims["kind"] = models.RoleSuperAdmin
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.SigningMethodHS256, secret, claims))
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "agency-9", seen.AgencyID)
	assert.True(t, seen.IsSuperAdmin())
}
