package simplerepo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionJSON(t *testing.T) {
	entry := AclEntry{SID: "alice", Permission: PermissionAdministrate}

	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sid":"alice","permission":"ADMINISTRATE"}`, string(data))

	var decoded AclEntry
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, entry, decoded)

	var invalid AclEntry
	err = json.Unmarshal([]byte(`{"sid":"alice","permission":"OWNER"}`), &invalid)
	assert.Error(t, err)
}

func TestIsUnknownValue(t *testing.T) {
	assert.True(t, IsUnknownValue(ValueToBeAssigned))
	assert.True(t, IsUnknownValue(ValueUnknown))
	assert.True(t, IsUnknownValue(ValueNone))
	assert.True(t, IsUnknownValue(ValueNull))
	assert.False(t, IsUnknownValue("10.5072/test"))
	assert.False(t, IsUnknownValue(""))
}

func TestInternalIdentifier(t *testing.T) {
	resource := NewDataResource("A Title", "dataset")
	assert.Empty(t, resource.InternalIdentifier())

	resource.AlternateIdentifiers = append(resource.AlternateIdentifiers,
		Identifier{Value: "hdl:123", Type: IdentifierTypeOther},
		NewInternalIdentifier("abc-123"),
	)
	assert.Equal(t, "abc-123", resource.InternalIdentifier())
}

func TestIdentifiers(t *testing.T) {
	t.Run("unknown primary identifier is skipped", func(t *testing.T) {
		resource := NewDataResource("A Title", "dataset")
		resource.AlternateIdentifiers = []Identifier{NewInternalIdentifier("abc-123")}
		assert.Equal(t, []string{"abc-123"}, resource.Identifiers())
	})

	t.Run("real primary identifier comes first", func(t *testing.T) {
		resource := NewDataResourceWithDOI("10.5072/test", "A Title", "dataset")
		resource.AlternateIdentifiers = []Identifier{NewInternalIdentifier("abc-123")}
		assert.Equal(t, []string{"10.5072/test", "abc-123"}, resource.Identifiers())
	})

	t.Run("duplicate values collapse", func(t *testing.T) {
		resource := NewDataResourceWithDOI("10.5072/test", "A Title", "dataset")
		resource.AlternateIdentifiers = []Identifier{NewInternalIdentifier("10.5072/test")}
		assert.Equal(t, []string{"10.5072/test"}, resource.Identifiers())
	})
}

func TestApplyCreateDefaults(t *testing.T) {
	now := time.Date(2022, 5, 17, 12, 0, 0, 0, time.UTC)
	caller := Principal{Name: "alice"}

	t.Run("fills defaults from caller", func(t *testing.T) {
		resource := NewDataResource("A Title", "dataset")
		require.NoError(t, applyCreateDefaults(resource, caller, now))

		internal := resource.InternalIdentifier()
		assert.NotEmpty(t, internal)
		assert.Equal(t, internal, resource.ID)
		assert.Equal(t, "alice", resource.Publisher)
		assert.Equal(t, "2022", resource.PublicationYear)
		assert.Equal(t, []Agent{{FamilyName: "alice"}}, resource.Creators)
		assert.Equal(t, StateVolatile, resource.State)
		assert.Contains(t, resource.ACL, AclEntry{SID: "alice", Permission: PermissionAdministrate})
		assert.Equal(t, now, resource.CreatedAt)
	})

	t.Run("caller without a name gets the anonymous defaults", func(t *testing.T) {
		resource := NewDataResourceWithDOI("testDoi1", "A Title", "dataset")
		require.NoError(t, applyCreateDefaults(resource, Principal{}, now))

		assert.Equal(t, "testDoi1", resource.ID)
		assert.Equal(t, "testDoi1", resource.InternalIdentifier())
		assert.Equal(t, []Agent{{FamilyName: AnonymousPrincipal}}, resource.Creators)
		assert.Equal(t, AnonymousPrincipal, resource.Publisher)
		assert.Equal(t, []AclEntry{{SID: AnonymousPrincipal, Permission: PermissionAdministrate}}, resource.ACL)
	})

	t.Run("real doi becomes the visible and internal id", func(t *testing.T) {
		resource := NewDataResourceWithDOI("10.5072/test", "A Title", "dataset")
		require.NoError(t, applyCreateDefaults(resource, caller, now))
		assert.Equal(t, "10.5072/test", resource.ID)
		assert.Equal(t, "10.5072/test", resource.InternalIdentifier())
	})

	t.Run("supplied internal id is kept", func(t *testing.T) {
		resource := NewDataResource("A Title", "dataset")
		resource.AlternateIdentifiers = []Identifier{NewInternalIdentifier("internalId")}
		require.NoError(t, applyCreateDefaults(resource, caller, now))
		assert.Equal(t, "internalId", resource.ID)
	})

	t.Run("supplied metadata is preserved", func(t *testing.T) {
		resource := NewDataResource("A Title", "dataset")
		resource.Publisher = "The Publisher"
		resource.PublicationYear = "1999"
		resource.Creators = []Agent{{GivenName: "Jane", FamilyName: "Doe"}}
		require.NoError(t, applyCreateDefaults(resource, caller, now))

		assert.Equal(t, "The Publisher", resource.Publisher)
		assert.Equal(t, "1999", resource.PublicationYear)
		assert.Equal(t, []Agent{{GivenName: "Jane", FamilyName: "Doe"}}, resource.Creators)
	})

	t.Run("weaker caller acl entry is upgraded", func(t *testing.T) {
		resource := NewDataResource("A Title", "dataset")
		resource.ACL = []AclEntry{{SID: "alice", Permission: PermissionRead}}
		require.NoError(t, applyCreateDefaults(resource, caller, now))
		assert.Equal(t, []AclEntry{{SID: "alice", Permission: PermissionAdministrate}}, resource.ACL)
	})

	t.Run("missing title fails", func(t *testing.T) {
		resource := &DataResource{ResourceType: NewResourceType("dataset")}
		assert.ErrorIs(t, applyCreateDefaults(resource, caller, now), ErrBadArgument)
	})

	t.Run("missing resource type fails", func(t *testing.T) {
		resource := &DataResource{Titles: []Title{{Value: "A Title"}}}
		assert.ErrorIs(t, applyCreateDefaults(resource, caller, now), ErrBadArgument)
	})

	t.Run("blank internal identifier fails", func(t *testing.T) {
		resource := NewDataResource("A Title", "dataset")
		resource.AlternateIdentifiers = []Identifier{NewInternalIdentifier("  ")}
		assert.ErrorIs(t, applyCreateDefaults(resource, caller, now), ErrBadArgument)
	})
}
