package simplerepo

import "fmt"

// EffectivePermission resolves the permission a principal holds on a
// resource. Resolution order: system administrators always hold
// ADMINISTRATE, then scoped grants for the exact resource, then service
// roles, then the strongest matching ACL entry. Absent any match the
// result is NONE.
func EffectivePermission(p Principal, resource *DataResource) Permission {
	if p.IsAdministrator() {
		return PermissionAdministrate
	}
	if resource == nil {
		return PermissionNone
	}
	if perm := p.ScopedPermissionFor(ScopeDataResource, resource.ID); perm > PermissionNone {
		return perm
	}
	if perm := p.servicePermission(); perm > PermissionNone {
		return perm
	}
	perm := PermissionNone
	for _, entry := range resource.ACL {
		if entry.Permission <= perm {
			continue
		}
		for _, id := range p.Identities() {
			if entry.SID == id {
				perm = entry.Permission
				break
			}
		}
	}
	return perm
}

// HasPermission reports whether the principal's effective permission on
// the resource reaches the required level. Lifecycle state is not
// considered here; CheckPermission adds the state rules.
func HasPermission(p Principal, resource *DataResource, required Permission) bool {
	return EffectivePermission(p, resource).AtLeast(required)
}

// CheckPermission verifies that the principal may perform an operation
// requiring the given permission on the resource. Revoked resources are
// hidden from callers below ADMINISTRATE, reported as not found even for
// reads. Fixed resources reject modifications from callers below
// ADMINISTRATE.
func CheckPermission(p Principal, resource *DataResource, required Permission) error {
	if resource == nil {
		return ErrResourceNotFound
	}
	effective := EffectivePermission(p, resource)
	if resource.State == StateRevoked && !effective.AtLeast(PermissionAdministrate) {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, resource.ID)
	}
	if resource.State == StateFixed && required.AtLeast(PermissionWrite) && !effective.AtLeast(PermissionAdministrate) {
		return fmt.Errorf("%w: resource %s is fixed", ErrAccessForbidden, resource.ID)
	}
	if !effective.AtLeast(required) {
		return fmt.Errorf("%w: %s requires %s on %s", ErrAccessForbidden, p.Name, required, resource.ID)
	}
	return nil
}

// AclsEqual reports whether two access control lists grant the same set
// of permissions. Order and duplicates are ignored; nil and empty lists
// are equal.
func AclsEqual(a, b []AclEntry) bool {
	setA := make(map[AclEntry]struct{}, len(a))
	for _, e := range a {
		setA[e] = struct{}{}
	}
	setB := make(map[AclEntry]struct{}, len(b))
	for _, e := range b {
		setB[e] = struct{}{}
	}
	if len(setA) != len(setB) {
		return false
	}
	for e := range setA {
		if _, ok := setB[e]; !ok {
			return false
		}
	}
	return true
}
