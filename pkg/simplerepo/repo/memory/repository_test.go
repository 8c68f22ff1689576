package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-repo/pkg/simplerepo"
	"github.com/tendant/simple-repo/pkg/simplerepo/repo/memory"
)

func newResource(internalID string, acl ...simplerepo.AclEntry) *simplerepo.DataResource {
	return &simplerepo.DataResource{
		ID: internalID,
		AlternateIdentifiers: []simplerepo.Identifier{
			simplerepo.NewInternalIdentifier(internalID),
		},
		Titles:       []simplerepo.Title{{Value: "Title of " + internalID}},
		ResourceType: simplerepo.NewResourceType("dataset"),
		State:        simplerepo.StateVolatile,
		ACL:          acl,
		CreatedAt:    time.Now().UTC(),
		LastUpdate:   time.Now().UTC(),
	}
}

func TestResourceCRUD(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	t.Run("create and get by internal identifier", func(t *testing.T) {
		require.NoError(t, repo.CreateResource(ctx, newResource("res-1")))

		got, err := repo.GetResource(ctx, "res-1")
		require.NoError(t, err)
		assert.Equal(t, "res-1", got.ID)
	})

	t.Run("get by any identifier", func(t *testing.T) {
		resource := newResource("res-2")
		resource.ID = "10.5072/res-2"
		resource.Identifier = &simplerepo.Identifier{Value: "10.5072/res-2", Type: simplerepo.IdentifierTypeDOI}
		require.NoError(t, repo.CreateResource(ctx, resource))

		byDOI, err := repo.GetResource(ctx, "10.5072/res-2")
		require.NoError(t, err)
		byInternal, err := repo.GetResource(ctx, "res-2")
		require.NoError(t, err)
		assert.Equal(t, byDOI.ID, byInternal.ID)
	})

	t.Run("duplicate identifier fails", func(t *testing.T) {
		err := repo.CreateResource(ctx, newResource("res-1"))
		assert.ErrorIs(t, err, simplerepo.ErrResourceAlreadyExists)
	})

	t.Run("missing resource", func(t *testing.T) {
		_, err := repo.GetResource(ctx, "missing")
		assert.ErrorIs(t, err, simplerepo.ErrResourceNotFound)
	})

	t.Run("update changes state", func(t *testing.T) {
		resource, err := repo.GetResource(ctx, "res-1")
		require.NoError(t, err)
		resource.State = simplerepo.StateFixed
		require.NoError(t, repo.UpdateResource(ctx, resource))

		got, err := repo.GetResource(ctx, "res-1")
		require.NoError(t, err)
		assert.Equal(t, simplerepo.StateFixed, got.State)
	})

	t.Run("update of missing resource fails", func(t *testing.T) {
		err := repo.UpdateResource(ctx, newResource("missing"))
		assert.ErrorIs(t, err, simplerepo.ErrResourceNotFound)
	})

	t.Run("returned resources are copies", func(t *testing.T) {
		got, err := repo.GetResource(ctx, "res-1")
		require.NoError(t, err)
		got.State = simplerepo.StateRevoked
		got.ACL = append(got.ACL, simplerepo.AclEntry{SID: "mallory", Permission: simplerepo.PermissionAdministrate})

		fresh, err := repo.GetResource(ctx, "res-1")
		require.NoError(t, err)
		assert.Equal(t, simplerepo.StateFixed, fresh.State)
		assert.NotContains(t, fresh.ACL, simplerepo.AclEntry{SID: "mallory", Permission: simplerepo.PermissionAdministrate})
	})
}

func TestListResources(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	alice := simplerepo.AclEntry{SID: "alice", Permission: simplerepo.PermissionAdministrate}
	bob := simplerepo.AclEntry{SID: "bob", Permission: simplerepo.PermissionRead}

	require.NoError(t, repo.CreateResource(ctx, newResource("res-1", alice)))
	require.NoError(t, repo.CreateResource(ctx, newResource("res-2", alice, bob)))
	revoked := newResource("res-3", alice)
	revoked.State = simplerepo.StateRevoked
	require.NoError(t, repo.CreateResource(ctx, revoked))

	t.Run("acl filtering", func(t *testing.T) {
		resources, err := repo.ListResources(ctx, simplerepo.ListResourcesFilter{
			Identities: []string{"bob"},
			Permission: simplerepo.PermissionRead,
		})
		require.NoError(t, err)
		require.Len(t, resources, 1)
		assert.Equal(t, "res-2", resources[0].ID)
	})

	t.Run("permission threshold", func(t *testing.T) {
		resources, err := repo.ListResources(ctx, simplerepo.ListResourcesFilter{
			Identities: []string{"bob"},
			Permission: simplerepo.PermissionWrite,
		})
		require.NoError(t, err)
		assert.Empty(t, resources)
	})

	t.Run("unfiltered excludes revoked by default", func(t *testing.T) {
		resources, err := repo.ListResources(ctx, simplerepo.ListResourcesFilter{Unfiltered: true})
		require.NoError(t, err)
		assert.Len(t, resources, 2)
	})

	t.Run("include revoked", func(t *testing.T) {
		resources, err := repo.ListResources(ctx, simplerepo.ListResourcesFilter{
			Unfiltered:     true,
			IncludeRevoked: true,
		})
		require.NoError(t, err)
		assert.Len(t, resources, 3)
	})

	t.Run("pagination", func(t *testing.T) {
		page, err := repo.ListResources(ctx, simplerepo.ListResourcesFilter{
			Unfiltered: true,
			Limit:      1,
			Offset:     1,
		})
		require.NoError(t, err)
		require.Len(t, page, 1)

		rest, err := repo.ListResources(ctx, simplerepo.ListResourcesFilter{
			Unfiltered: true,
			Offset:     5,
		})
		require.NoError(t, err)
		assert.Empty(t, rest)
	})
}

func TestContentInformation(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.CreateResource(ctx, newResource("res-1")))

	add := func(relativePath string, version int) *simplerepo.ContentInformation {
		info := &simplerepo.ContentInformation{
			ResourceID:   "res-1",
			RelativePath: relativePath,
			Version:      version,
			Checksum:     "sha1:0000",
			Size:         42,
		}
		require.NoError(t, repo.CreateContentInformation(ctx, info))
		return info
	}

	t.Run("create assigns id and timestamps", func(t *testing.T) {
		info := add("data/fox.txt", 1)
		assert.NotEqual(t, info.ID.String(), "00000000-0000-0000-0000-000000000000")
		assert.False(t, info.CreatedAt.IsZero())
	})

	t.Run("create for missing resource fails", func(t *testing.T) {
		err := repo.CreateContentInformation(ctx, &simplerepo.ContentInformation{
			ResourceID:   "missing",
			RelativePath: "fox.txt",
			Version:      1,
		})
		assert.ErrorIs(t, err, simplerepo.ErrResourceNotFound)
	})

	t.Run("duplicate version fails", func(t *testing.T) {
		err := repo.CreateContentInformation(ctx, &simplerepo.ContentInformation{
			ResourceID:   "res-1",
			RelativePath: "data/fox.txt",
			Version:      1,
		})
		assert.ErrorIs(t, err, simplerepo.ErrResourceAlreadyExists)
	})

	t.Run("version zero addresses the latest", func(t *testing.T) {
		add("data/fox.txt", 2)

		latest, err := repo.GetContentInformation(ctx, "res-1", "data/fox.txt", 0)
		require.NoError(t, err)
		assert.Equal(t, 2, latest.Version)

		first, err := repo.GetContentInformation(ctx, "res-1", "data/fox.txt", 1)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Version)

		_, err = repo.GetContentInformation(ctx, "res-1", "data/fox.txt", 7)
		assert.ErrorIs(t, err, simplerepo.ErrResourceNotFound)
	})

	t.Run("list latest below prefix", func(t *testing.T) {
		add("docs/readme.md", 1)

		infos, err := repo.ListContentInformation(ctx, "res-1", "data/")
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, "data/fox.txt", infos[0].RelativePath)
		assert.Equal(t, 2, infos[0].Version)

		all, err := repo.ListContentInformation(ctx, "res-1", "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("list versions newest first", func(t *testing.T) {
		versions, err := repo.ListContentVersions(ctx, "res-1", "data/fox.txt")
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, 2, versions[0].Version)
		assert.Equal(t, 1, versions[1].Version)

		_, err = repo.ListContentVersions(ctx, "res-1", "missing.txt")
		assert.ErrorIs(t, err, simplerepo.ErrResourceNotFound)
	})
}
