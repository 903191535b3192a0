package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courier/courier/sources/identity"
	"courier/courier/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware(t *testing.T) {
	tokens := identity.NewTokens("secret", time.Hour)
	token, _, err := tokens.Mint(types.Principal{ID: "u1", DisplayName: "Ada"})
	require.NoError(t, err)

	var seen *types.Principal
	var credential string
	h := AuthMiddleware(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFrom(r.Context())
		credential = CredentialFrom(r.Context())
	}))

	cases := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"bearer", "/", "Bearer " + token, http.StatusOK},
		{"query", "/?token=" + token, "", http.StatusOK},
		{"missing", "/", "", http.StatusUnauthorized},
		{"wrong scheme", "/", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "/", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen, credential = nil, ""
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tc.status, rr.Code)
			if tc.status == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, "u1", seen.ID)
				assert.Equal(t, token, credential)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}
