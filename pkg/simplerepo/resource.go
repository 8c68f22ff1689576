package simplerepo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewDataResource returns a minimal resource with the unknown-information
// primary identifier. An internal identifier and remaining defaults are
// filled in on create.
func NewDataResource(title, resourceType string) *DataResource {
	return &DataResource{
		Identifier:   &Identifier{Value: ValueToBeAssigned, Type: IdentifierTypeDOI},
		Titles:       []Title{{Value: title}},
		ResourceType: NewResourceType(resourceType),
	}
}

// NewDataResourceWithDOI returns a minimal resource with a real DOI as its
// primary identifier.
func NewDataResourceWithDOI(doi, title, resourceType string) *DataResource {
	return &DataResource{
		Identifier:   &Identifier{Value: doi, Type: IdentifierTypeDOI},
		Titles:       []Title{{Value: title}},
		ResourceType: NewResourceType(resourceType),
	}
}

// InternalIdentifier returns the value of the resource's INTERNAL
// alternate identifier, or the empty string if none is present.
func (r *DataResource) InternalIdentifier() string {
	for _, id := range r.AlternateIdentifiers {
		if id.Type == IdentifierTypeInternal {
			return id.Value
		}
	}
	return ""
}

// Identifiers returns every identifier value by which the resource can be
// addressed: the primary identifier, if real, and all alternates. Values
// are deduplicated; the primary identifier may double as the internal one.
func (r *DataResource) Identifiers() []string {
	var ids []string
	seen := map[string]struct{}{}
	add := func(value string) {
		if value == "" {
			return
		}
		if _, ok := seen[value]; ok {
			return
		}
		seen[value] = struct{}{}
		ids = append(ids, value)
	}
	if r.Identifier != nil && !IsUnknownValue(r.Identifier.Value) {
		add(r.Identifier.Value)
	}
	for _, id := range r.AlternateIdentifiers {
		add(id.Value)
	}
	return ids
}

// applyCreateDefaults validates a resource submitted for creation and
// fills in the defaults derived from the caller. It assigns the internal
// identifier, the visible ID, creator, publisher, publication year, ACL
// and initial state.
func applyCreateDefaults(resource *DataResource, caller Principal, now time.Time) error {
	if resource == nil {
		return fmt.Errorf("%w: resource is required", ErrBadArgument)
	}
	if len(resource.Titles) == 0 {
		return fmt.Errorf("%w: at least one title is required", ErrBadArgument)
	}
	if resource.ResourceType == nil || resource.ResourceType.Value == "" {
		return fmt.Errorf("%w: resource type is required", ErrBadArgument)
	}

	internal := resource.InternalIdentifier()
	if internal == "" {
		for _, id := range resource.AlternateIdentifiers {
			if id.Type == IdentifierTypeInternal {
				return fmt.Errorf("%w: internal identifier must not be blank", ErrBadArgument)
			}
		}
		// A real primary identifier doubles as the internal one.
		if resource.Identifier != nil && resource.Identifier.Value != "" && !IsUnknownValue(resource.Identifier.Value) {
			internal = resource.Identifier.Value
		} else {
			internal = uuid.NewString()
		}
		resource.AlternateIdentifiers = append(resource.AlternateIdentifiers, NewInternalIdentifier(internal))
	} else if strings.TrimSpace(internal) == "" {
		return fmt.Errorf("%w: internal identifier must not be blank", ErrBadArgument)
	}

	if resource.Identifier == nil || resource.Identifier.Value == "" {
		resource.Identifier = &Identifier{Value: ValueToBeAssigned, Type: IdentifierTypeDOI}
	}
	if IsUnknownValue(resource.Identifier.Value) {
		resource.ID = internal
	} else {
		resource.ID = resource.Identifier.Value
	}

	callerName := caller.Name
	if callerName == "" {
		callerName = AnonymousPrincipal
	}
	if len(resource.Creators) == 0 {
		resource.Creators = []Agent{{FamilyName: callerName}}
	}
	if resource.Publisher == "" {
		resource.Publisher = callerName
	}
	if resource.PublicationYear == "" {
		resource.PublicationYear = strconv.Itoa(now.Year())
	}
	if resource.State == "" {
		resource.State = StateVolatile
	}
	ensureAdministrateEntry(resource, callerName)

	resource.CreatedAt = now
	resource.LastUpdate = now
	return nil
}

// ensureAdministrateEntry guarantees the caller holds ADMINISTRATE in the
// resource's ACL, upgrading a weaker entry if one exists.
func ensureAdministrateEntry(resource *DataResource, callerName string) {
	for i, entry := range resource.ACL {
		if entry.SID == callerName {
			if entry.Permission < PermissionAdministrate {
				resource.ACL[i].Permission = PermissionAdministrate
			}
			return
		}
	}
	resource.ACL = append(resource.ACL, AclEntry{SID: callerName, Permission: PermissionAdministrate})
}
