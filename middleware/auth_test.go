package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signed(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())
		w.Write([]byte(userID))
	})
}

func TestAuthMiddleware(t *testing.T) {
	valid := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()})
	expired := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Hour).Unix()})
	wrongKey := signed(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "user-1"})
	noSub := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"email": "a@x.com"})

	tests := []struct {
		name   string
		url    string
		header string
		status int
		body   string
	}{
		{"bearer header", "/", "Bearer " + valid, http.StatusOK, "user-1"},
		{"query token", "/ws?token=" + valid, "", http.StatusOK, "user-1"},
		{"missing", "/", "", http.StatusUnauthorized, ""},
		{"expired", "/", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"wrong key", "/", "Bearer " + wrongKey, http.StatusUnauthorized, ""},
		{"no subject", "/", "Bearer " + noSub, http.StatusUnauthorized, ""},
		{"garbage", "/", "Bearer not-a-jwt", http.StatusUnauthorized, ""},
	}

	h := AuthMiddleware(testSecret)(echoUser())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, rr.Body.String())
			} else {
				assert.Contains(t, rr.Body.String(), "error")
			}
		})
	}
}

func TestAuthMiddleware_NoSecretConfigured(t *testing.T) {
	token := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "user-1"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	AuthMiddleware("")(echoUser()).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
