package middlewares

import (
	"context"
	"net/http"
	"strings"

	"courier/courier/sources/identity"
	"courier/courier/types"
)

type contextKey string

const (
	PrincipalKey  contextKey = "principal"
	CredentialKey contextKey = "credential"
)

// AuthMiddleware accepts a session token as "Authorization: Bearer <token>"
// or, for websocket upgrades and img tags that cannot set headers, a "token"
// query parameter.
func AuthMiddleware(tokens *identity.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearer(r)
			if tokenStr == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			principal, err := tokens.Verify(tokenStr)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			ctx = context.WithValue(ctx, CredentialKey, tokenStr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearer(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	return r.URL.Query().Get("token")
}

func PrincipalFrom(ctx context.Context) *types.Principal {
	p, _ := ctx.Value(PrincipalKey).(*types.Principal)
	return p
}

func CredentialFrom(ctx context.Context) string {
	s, _ := ctx.Value(CredentialKey).(string)
	return s
}
