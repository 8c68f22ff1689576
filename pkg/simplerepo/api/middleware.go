package api

import (
	"context"
	"net/http"

	"github.com/go-chi/jwtauth"

	"github.com/tendant/simple-repo/pkg/simplerepo"
)

type contextKey string

const principalKey contextKey = "principal"

// NewTokenAuth creates the JWT verifier used by the authentication
// middleware. Tokens are HMAC-signed with the given secret.
func NewTokenAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// Authenticator extracts the caller principal from a verified JWT and
// stores it in the request context. Requests without a valid token
// proceed as the anonymous user; permission checks happen downstream.
func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := simplerepo.Anonymous()
		if token, claims, err := jwtauth.FromContext(r.Context()); err == nil && token != nil {
			principal = PrincipalFromClaims(claims)
		}
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFromContext returns the authenticated principal stored by the
// Authenticator middleware, or the anonymous principal.
func PrincipalFromContext(ctx context.Context) simplerepo.Principal {
	if principal, ok := ctx.Value(principalKey).(simplerepo.Principal); ok {
		return principal
	}
	return simplerepo.Anonymous()
}

// PrincipalFromClaims builds a principal from JWT claims. Recognized
// claims: username (or sub), groups, roles and permissions, where each
// permission is an object carrying resourceType, resourceId and
// permission.
func PrincipalFromClaims(claims map[string]interface{}) simplerepo.Principal {
	principal := simplerepo.Principal{
		Name:   claimString(claims, "username"),
		Groups: claimStrings(claims, "groups"),
		Roles:  claimStrings(claims, "roles"),
	}
	if principal.Name == "" {
		principal.Name = claimString(claims, "sub")
	}
	if principal.Name == "" {
		return simplerepo.Anonymous()
	}

	if raw, ok := claims["permissions"].([]interface{}); ok {
		for _, item := range raw {
			grant, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			permission, err := simplerepo.ParsePermission(claimString(grant, "permission"))
			if err != nil {
				continue
			}
			principal.ScopedPermissions = append(principal.ScopedPermissions, simplerepo.ScopedPermission{
				ResourceType: claimString(grant, "resourceType"),
				ResourceID:   claimString(grant, "resourceId"),
				Permission:   permission,
			})
		}
	}
	return principal
}

func claimString(claims map[string]interface{}, key string) string {
	if value, ok := claims[key].(string); ok {
		return value
	}
	return ""
}

func claimStrings(claims map[string]interface{}, key string) []string {
	raw, ok := claims[key].([]interface{})
	if !ok {
		return nil
	}
	var values []string
	for _, item := range raw {
		if value, ok := item.(string); ok {
			values = append(values, value)
		}
	}
	return values
}

// ReadOnly rejects state-changing requests while the server runs in
// read-only mode.
func ReadOnly(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if enabled {
				switch r.Method {
				case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
					http.Error(w, "service is in read-only mode", http.StatusServiceUnavailable)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
