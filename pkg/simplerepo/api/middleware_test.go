package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-repo/pkg/simplerepo"
)

func TestPrincipalFromClaims(t *testing.T) {
	t.Run("full claim set", func(t *testing.T) {
		claims := map[string]interface{}{
			"username": "alice",
			"groups":   []interface{}{"curators", "staff"},
			"roles":    []interface{}{simplerepo.RoleUser},
			"permissions": []interface{}{
				map[string]interface{}{
					"resourceType": simplerepo.ScopeDataResource,
					"resourceId":   "res-1",
					"permission":   "WRITE",
				},
			},
		}

		principal := PrincipalFromClaims(claims)
		assert.Equal(t, "alice", principal.Name)
		assert.Equal(t, []string{"curators", "staff"}, principal.Groups)
		assert.Equal(t, []string{simplerepo.RoleUser}, principal.Roles)
		require.Len(t, principal.ScopedPermissions, 1)
		assert.Equal(t, simplerepo.PermissionWrite, principal.ScopedPermissions[0].Permission)
		assert.Equal(t, "res-1", principal.ScopedPermissions[0].ResourceID)
	})

	t.Run("sub claim as fallback name", func(t *testing.T) {
		principal := PrincipalFromClaims(map[string]interface{}{"sub": "bob"})
		assert.Equal(t, "bob", principal.Name)
	})

	t.Run("nameless claims yield anonymous", func(t *testing.T) {
		principal := PrincipalFromClaims(map[string]interface{}{})
		assert.Equal(t, simplerepo.AnonymousPrincipal, principal.Name)
	})

	t.Run("malformed permission entries are skipped", func(t *testing.T) {
		claims := map[string]interface{}{
			"username": "alice",
			"permissions": []interface{}{
				"not-an-object",
				map[string]interface{}{"permission": "OWNER"},
			},
		}
		principal := PrincipalFromClaims(claims)
		assert.Empty(t, principal.ScopedPermissions)
	})
}

func TestAuthenticatorWithoutToken(t *testing.T) {
	var seen simplerepo.Principal
	handler := Authenticator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, simplerepo.AnonymousPrincipal, seen.Name)
}

func TestReadOnly(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("writes rejected while read-only", func(t *testing.T) {
		handler := ReadOnly(true)(next)
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(method, "/", nil))
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code, method)
		}
	})

	t.Run("reads still pass", func(t *testing.T) {
		handler := ReadOnly(true)(next)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("disabled mode passes everything", func(t *testing.T) {
		handler := ReadOnly(false)(next)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
