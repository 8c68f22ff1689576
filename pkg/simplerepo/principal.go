package simplerepo

// Well-known principal and role names.
const (
	// AnonymousPrincipal is the identity used for unauthenticated callers.
	AnonymousPrincipal = "anonymousUser"

	RoleAdministrator = "ROLE_ADMINISTRATOR"
	RoleUser          = "ROLE_USER"
	RoleGuest         = "ROLE_GUEST"

	// Service roles grant a fixed permission on every resource and are
	// meant for trusted machine-to-machine clients.
	RoleServiceRead          = "ROLE_SERVICE_READ"
	RoleServiceWrite         = "ROLE_SERVICE_WRITE"
	RoleServiceAdministrator = "ROLE_SERVICE_ADMINISTRATOR"
)

// ScopeDataResource is the resource type used by scoped permissions that
// target data resources.
const ScopeDataResource = "DataResource"

// ScopedPermission grants a permission on a single resource instance,
// independent of the resource's own ACL.
type ScopedPermission struct {
	ResourceType string     `json:"resourceType"`
	ResourceID   string     `json:"resourceId"`
	Permission   Permission `json:"permission"`
}

// Principal is the authenticated caller of a service operation. A zero
// Principal behaves like the anonymous user.
type Principal struct {
	Name              string             `json:"name"`
	Groups            []string           `json:"groups,omitempty"`
	Roles             []string           `json:"roles,omitempty"`
	ScopedPermissions []ScopedPermission `json:"scopedPermissions,omitempty"`
}

// Anonymous returns the unauthenticated principal.
func Anonymous() Principal {
	return Principal{Name: AnonymousPrincipal, Roles: []string{RoleGuest}}
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdministrator reports whether the principal is a system administrator.
func (p Principal) IsAdministrator() bool {
	return p.HasRole(RoleAdministrator)
}

// Identities returns every identity the principal can match ACL entries
// with: its own name followed by its group memberships.
func (p Principal) Identities() []string {
	name := p.Name
	if name == "" {
		name = AnonymousPrincipal
	}
	ids := make([]string, 0, len(p.Groups)+1)
	ids = append(ids, name)
	ids = append(ids, p.Groups...)
	return ids
}

// ScopedPermissionFor returns the strongest scoped permission the
// principal holds on the given resource instance.
func (p Principal) ScopedPermissionFor(resourceType, resourceID string) Permission {
	perm := PermissionNone
	for _, sp := range p.ScopedPermissions {
		if sp.ResourceType == resourceType && sp.ResourceID == resourceID && sp.Permission > perm {
			perm = sp.Permission
		}
	}
	return perm
}

// servicePermission maps service roles onto the fixed permission they
// grant on every resource.
func (p Principal) servicePermission() Permission {
	perm := PermissionNone
	for _, r := range p.Roles {
		var granted Permission
		switch r {
		case RoleServiceRead:
			granted = PermissionRead
		case RoleServiceWrite:
			granted = PermissionWrite
		case RoleServiceAdministrator:
			granted = PermissionAdministrate
		default:
			continue
		}
		if granted > perm {
			perm = granted
		}
	}
	return perm
}
