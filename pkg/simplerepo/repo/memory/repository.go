// Package memory provides an in-memory repository implementation useful
// for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-repo/pkg/simplerepo"
)

// Repository is an in-memory implementation of simplerepo.Repository.
// All operations are safe for concurrent use.
type Repository struct {
	mu sync.RWMutex

	// resources keyed by internal identifier
	resources map[string]*simplerepo.DataResource
	// identifiers maps every identifier value onto the internal identifier
	identifiers map[string]string
	// contents maps "resourceID|relativePath" onto versions, ascending
	contents map[string][]*simplerepo.ContentInformation
	// contentPaths maps resource IDs onto their relative paths, sorted
	contentPaths map[string][]string
}

// New creates a new in-memory repository.
func New() *Repository {
	return &Repository{
		resources:    make(map[string]*simplerepo.DataResource),
		identifiers:  make(map[string]string),
		contents:     make(map[string][]*simplerepo.ContentInformation),
		contentPaths: make(map[string][]string),
	}
}

func contentKey(resourceID, relativePath string) string {
	return resourceID + "|" + relativePath
}

func copyResource(r *simplerepo.DataResource) *simplerepo.DataResource {
	c := *r
	if r.Identifier != nil {
		id := *r.Identifier
		c.Identifier = &id
	}
	if r.ResourceType != nil {
		rt := *r.ResourceType
		c.ResourceType = &rt
	}
	c.AlternateIdentifiers = append([]simplerepo.Identifier(nil), r.AlternateIdentifiers...)
	c.Creators = append([]simplerepo.Agent(nil), r.Creators...)
	c.Titles = append([]simplerepo.Title(nil), r.Titles...)
	c.ACL = append([]simplerepo.AclEntry(nil), r.ACL...)
	return &c
}

func copyContent(ci *simplerepo.ContentInformation) *simplerepo.ContentInformation {
	c := *ci
	return &c
}

func (r *Repository) CreateResource(ctx context.Context, resource *simplerepo.DataResource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	internal := resource.InternalIdentifier()
	if internal == "" {
		return fmt.Errorf("%w: resource has no internal identifier", simplerepo.ErrBadArgument)
	}
	ids := resource.Identifiers()
	for _, id := range ids {
		if _, taken := r.identifiers[id]; taken {
			return fmt.Errorf("%w: identifier %s", simplerepo.ErrResourceAlreadyExists, id)
		}
	}
	r.resources[internal] = copyResource(resource)
	for _, id := range ids {
		r.identifiers[id] = internal
	}
	return nil
}

func (r *Repository) GetResource(ctx context.Context, id string) (*simplerepo.DataResource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resource, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return copyResource(resource), nil
}

// lookup resolves any identifier value. Callers must hold the lock.
func (r *Repository) lookup(id string) (*simplerepo.DataResource, error) {
	internal, ok := r.identifiers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", simplerepo.ErrResourceNotFound, id)
	}
	resource, ok := r.resources[internal]
	if !ok {
		return nil, fmt.Errorf("%w: %s", simplerepo.ErrResourceNotFound, id)
	}
	return resource, nil
}

func (r *Repository) UpdateResource(ctx context.Context, resource *simplerepo.DataResource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	internal := resource.InternalIdentifier()
	existing, ok := r.resources[internal]
	if !ok {
		return fmt.Errorf("%w: %s", simplerepo.ErrResourceNotFound, resource.ID)
	}
	// Reindex identifiers in case the primary identifier changed.
	for _, id := range existing.Identifiers() {
		delete(r.identifiers, id)
	}
	for _, id := range resource.Identifiers() {
		if owner, taken := r.identifiers[id]; taken && owner != internal {
			return fmt.Errorf("%w: identifier %s", simplerepo.ErrResourceAlreadyExists, id)
		}
	}
	r.resources[internal] = copyResource(resource)
	for _, id := range resource.Identifiers() {
		r.identifiers[id] = internal
	}
	return nil
}

func (r *Repository) ListResources(ctx context.Context, filter simplerepo.ListResourcesFilter) ([]*simplerepo.DataResource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*simplerepo.DataResource
	for _, resource := range r.resources {
		if !resourceMatches(resource, filter) {
			continue
		}
		matched = append(matched, copyResource(resource))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return paginate(matched, filter.Offset, filter.Limit), nil
}

func resourceMatches(resource *simplerepo.DataResource, filter simplerepo.ListResourcesFilter) bool {
	if resource.State == simplerepo.StateRevoked && !filter.IncludeRevoked {
		return false
	}
	if filter.UpdatedAfter != nil && !resource.LastUpdate.After(*filter.UpdatedAfter) {
		return false
	}
	if filter.UpdatedBefore != nil && !resource.LastUpdate.Before(*filter.UpdatedBefore) {
		return false
	}
	if filter.Unfiltered {
		return true
	}
	for _, entry := range resource.ACL {
		if !entry.Permission.AtLeast(filter.Permission) {
			continue
		}
		for _, identity := range filter.Identities {
			if entry.SID == identity {
				return true
			}
		}
	}
	return false
}

func paginate(resources []*simplerepo.DataResource, offset, limit int) []*simplerepo.DataResource {
	if offset >= len(resources) {
		return nil
	}
	resources = resources[offset:]
	if limit > 0 && limit < len(resources) {
		resources = resources[:limit]
	}
	return resources
}

func (r *Repository) CreateContentInformation(ctx context.Context, info *simplerepo.ContentInformation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.lookup(info.ResourceID); err != nil {
		return err
	}
	key := contentKey(info.ResourceID, info.RelativePath)
	versions := r.contents[key]
	for _, existing := range versions {
		if existing.Version == info.Version {
			return fmt.Errorf("%w: %s version %d", simplerepo.ErrResourceAlreadyExists, info.RelativePath, info.Version)
		}
	}

	stored := copyContent(info)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	r.contents[key] = append(versions, stored)
	sort.Slice(r.contents[key], func(i, j int) bool {
		return r.contents[key][i].Version < r.contents[key][j].Version
	})

	paths := r.contentPaths[info.ResourceID]
	idx := sort.SearchStrings(paths, info.RelativePath)
	if idx == len(paths) || paths[idx] != info.RelativePath {
		paths = append(paths, "")
		copy(paths[idx+1:], paths[idx:])
		paths[idx] = info.RelativePath
		r.contentPaths[info.ResourceID] = paths
	}

	info.ID = stored.ID
	info.CreatedAt = stored.CreatedAt
	info.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *Repository) GetContentInformation(ctx context.Context, resourceID, relativePath string, version int) (*simplerepo.ContentInformation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.contents[contentKey(resourceID, relativePath)]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s at %s", simplerepo.ErrResourceNotFound, resourceID, relativePath)
	}
	if version == 0 {
		return copyContent(versions[len(versions)-1]), nil
	}
	for _, info := range versions {
		if info.Version == version {
			return copyContent(info), nil
		}
	}
	return nil, fmt.Errorf("%w: %s at %s version %d", simplerepo.ErrResourceNotFound, resourceID, relativePath, version)
}

func (r *Repository) ListContentInformation(ctx context.Context, resourceID, pathPrefix string) ([]*simplerepo.ContentInformation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var infos []*simplerepo.ContentInformation
	for _, relativePath := range r.contentPaths[resourceID] {
		if pathPrefix != "" && !strings.HasPrefix(relativePath, pathPrefix) {
			continue
		}
		versions := r.contents[contentKey(resourceID, relativePath)]
		if len(versions) == 0 {
			continue
		}
		infos = append(infos, copyContent(versions[len(versions)-1]))
	}
	return infos, nil
}

func (r *Repository) ListContentVersions(ctx context.Context, resourceID, relativePath string) ([]*simplerepo.ContentInformation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.contents[contentKey(resourceID, relativePath)]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s at %s", simplerepo.ErrResourceNotFound, resourceID, relativePath)
	}
	result := make([]*simplerepo.ContentInformation, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		result = append(result, copyContent(versions[i]))
	}
	return result, nil
}
