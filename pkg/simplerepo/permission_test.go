package simplerepo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResource(state State, acl ...AclEntry) *DataResource {
	return &DataResource{
		ID:    "test-resource",
		State: state,
		ACL:   acl,
	}
}

func TestEffectivePermission(t *testing.T) {
	resource := testResource(StateVolatile,
		AclEntry{SID: "alice", Permission: PermissionWrite},
		AclEntry{SID: "curators", Permission: PermissionRead},
	)

	t.Run("administrator always administrates", func(t *testing.T) {
		p := Principal{Name: "root", Roles: []string{RoleAdministrator}}
		assert.Equal(t, PermissionAdministrate, EffectivePermission(p, resource))
	})

	t.Run("scoped grant wins over acl", func(t *testing.T) {
		p := Principal{
			Name: "alice",
			ScopedPermissions: []ScopedPermission{
				{ResourceType: ScopeDataResource, ResourceID: "test-resource", Permission: PermissionAdministrate},
			},
		}
		assert.Equal(t, PermissionAdministrate, EffectivePermission(p, resource))
	})

	t.Run("scoped grant for other resource is ignored", func(t *testing.T) {
		p := Principal{
			Name: "mallory",
			ScopedPermissions: []ScopedPermission{
				{ResourceType: ScopeDataResource, ResourceID: "other-resource", Permission: PermissionAdministrate},
			},
		}
		assert.Equal(t, PermissionNone, EffectivePermission(p, resource))
	})

	t.Run("service role grants fixed permission", func(t *testing.T) {
		p := Principal{Name: "harvester", Roles: []string{RoleServiceRead}}
		assert.Equal(t, PermissionRead, EffectivePermission(p, resource))

		p.Roles = []string{RoleServiceWrite}
		assert.Equal(t, PermissionWrite, EffectivePermission(p, resource))

		p.Roles = []string{RoleServiceRead, RoleServiceAdministrator}
		assert.Equal(t, PermissionAdministrate, EffectivePermission(p, resource))
	})

	t.Run("acl match by name", func(t *testing.T) {
		p := Principal{Name: "alice"}
		assert.Equal(t, PermissionWrite, EffectivePermission(p, resource))
	})

	t.Run("acl match by group", func(t *testing.T) {
		p := Principal{Name: "bob", Groups: []string{"curators"}}
		assert.Equal(t, PermissionRead, EffectivePermission(p, resource))
	})

	t.Run("strongest acl entry wins", func(t *testing.T) {
		p := Principal{Name: "alice", Groups: []string{"curators"}}
		assert.Equal(t, PermissionWrite, EffectivePermission(p, resource))
	})

	t.Run("no match yields none", func(t *testing.T) {
		p := Principal{Name: "stranger"}
		assert.Equal(t, PermissionNone, EffectivePermission(p, resource))
	})
}

func TestHasPermission(t *testing.T) {
	resource := testResource(StateVolatile, AclEntry{SID: "alice", Permission: PermissionWrite})

	assert.True(t, HasPermission(Principal{Name: "alice"}, resource, PermissionWrite))
	assert.True(t, HasPermission(Principal{Name: "alice"}, resource, PermissionRead))
	assert.False(t, HasPermission(Principal{Name: "alice"}, resource, PermissionAdministrate))
	assert.False(t, HasPermission(Principal{Name: "stranger"}, resource, PermissionRead))

	admin := Principal{Name: "root", Roles: []string{RoleAdministrator}}
	assert.True(t, HasPermission(admin, resource, PermissionAdministrate))
}

func TestCheckPermission(t *testing.T) {
	acl := []AclEntry{
		{SID: "owner", Permission: PermissionAdministrate},
		{SID: "writer", Permission: PermissionWrite},
		{SID: "reader", Permission: PermissionRead},
	}

	t.Run("read allowed for reader", func(t *testing.T) {
		err := CheckPermission(Principal{Name: "reader"}, testResource(StateVolatile, acl...), PermissionRead)
		assert.NoError(t, err)
	})

	t.Run("write forbidden for reader", func(t *testing.T) {
		err := CheckPermission(Principal{Name: "reader"}, testResource(StateVolatile, acl...), PermissionWrite)
		assert.ErrorIs(t, err, ErrAccessForbidden)
	})

	t.Run("write on fixed resource forbidden for writer", func(t *testing.T) {
		err := CheckPermission(Principal{Name: "writer"}, testResource(StateFixed, acl...), PermissionWrite)
		assert.ErrorIs(t, err, ErrAccessForbidden)
	})

	t.Run("read on fixed resource still allowed", func(t *testing.T) {
		err := CheckPermission(Principal{Name: "reader"}, testResource(StateFixed, acl...), PermissionRead)
		assert.NoError(t, err)
	})

	t.Run("write on fixed resource allowed for owner", func(t *testing.T) {
		err := CheckPermission(Principal{Name: "owner"}, testResource(StateFixed, acl...), PermissionWrite)
		assert.NoError(t, err)
	})

	t.Run("revoked resource hidden even for reads", func(t *testing.T) {
		err := CheckPermission(Principal{Name: "reader"}, testResource(StateRevoked, acl...), PermissionRead)
		assert.ErrorIs(t, err, ErrResourceNotFound)
		assert.False(t, errors.Is(err, ErrAccessForbidden))
	})

	t.Run("revoked resource visible for owner", func(t *testing.T) {
		err := CheckPermission(Principal{Name: "owner"}, testResource(StateRevoked, acl...), PermissionRead)
		assert.NoError(t, err)
	})

	t.Run("revoked resource visible for administrator", func(t *testing.T) {
		p := Principal{Name: "root", Roles: []string{RoleAdministrator}}
		err := CheckPermission(p, testResource(StateRevoked, acl...), PermissionRead)
		assert.NoError(t, err)
	})

	t.Run("nil resource is not found", func(t *testing.T) {
		err := CheckPermission(Principal{Name: "reader"}, nil, PermissionRead)
		assert.ErrorIs(t, err, ErrResourceNotFound)
	})
}

func TestAclsEqual(t *testing.T) {
	a := []AclEntry{
		{SID: "alice", Permission: PermissionWrite},
		{SID: "bob", Permission: PermissionRead},
	}
	b := []AclEntry{
		{SID: "bob", Permission: PermissionRead},
		{SID: "alice", Permission: PermissionWrite},
	}

	t.Run("order does not matter", func(t *testing.T) {
		assert.True(t, AclsEqual(a, b))
		assert.True(t, AclsEqual(b, a))
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		withDuplicate := append([]AclEntry{{SID: "alice", Permission: PermissionWrite}}, a...)
		assert.True(t, AclsEqual(a, withDuplicate))
	})

	t.Run("nil equals empty", func(t *testing.T) {
		assert.True(t, AclsEqual(nil, []AclEntry{}))
	})

	t.Run("different permissions differ", func(t *testing.T) {
		c := []AclEntry{
			{SID: "alice", Permission: PermissionRead},
			{SID: "bob", Permission: PermissionRead},
		}
		assert.False(t, AclsEqual(a, c))
	})

	t.Run("different subjects differ", func(t *testing.T) {
		c := []AclEntry{
			{SID: "alice", Permission: PermissionWrite},
		}
		assert.False(t, AclsEqual(a, c))
	})
}

func TestParsePermission(t *testing.T) {
	for _, perm := range []Permission{PermissionNone, PermissionRead, PermissionWrite, PermissionAdministrate} {
		parsed, err := ParsePermission(perm.String())
		require.NoError(t, err)
		assert.Equal(t, perm, parsed)
	}

	_, err := ParsePermission("OWNER")
	assert.ErrorIs(t, err, ErrBadArgument)
}
