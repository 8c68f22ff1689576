package simplerepo

import (
	"context"
	"io"
	"time"
)

// Metadata keys exchanged with versioning backends through the metadata
// map on Write and the options map on Read.
const (
	MetaChecksum   = "checksum"
	MetaSize       = "size"
	MetaContentURI = "contentUri"
	MetaMediaType  = "mediaType"
)

// VersioningService abstracts the storage of content bitstreams for a
// resource. Implementations communicate derived properties (checksum,
// size, content URI, media type) back to the caller through the metadata
// map passed to Write.
type VersioningService interface {
	// Write stores the bytes read from r at the resource's relative path.
	// Implementations fill the metadata map with the properties of the
	// stored content.
	Write(ctx context.Context, resourceID, callerID, relativePath string, r io.Reader, meta map[string]string) error

	// Read streams a stored version to w. versionID selects the version
	// for backends that keep history; the options map carries backend
	// hints such as the content URI.
	Read(ctx context.Context, resourceID, callerID, relativePath, versionID string, w io.Writer, options map[string]string) error

	// Info describes a stored version without reading its bytes.
	Info(ctx context.Context, resourceID, relativePath, versionID string, options map[string]string) (*VersionDescriptor, error)

	// ServiceName returns the backend's registration name.
	ServiceName() string
}

// ContentRemover is implemented by versioning services that can delete a
// stored object again. The upload path uses it to clean up written bytes
// whose content record could not be persisted.
type ContentRemover interface {
	// Remove deletes the object referenced by the options map, which
	// carries the content URI recorded at write time.
	Remove(ctx context.Context, options map[string]string) error
}

// Packager bundles multiple content elements into a single archive
// stream.
type Packager interface {
	// SupportedMediaTypes lists the archive media types the packager can
	// produce.
	SupportedMediaTypes() []string

	// Package streams an archive of the given elements to w, reading each
	// element's bytes from its versioning backend.
	Package(ctx context.Context, elements []PackageElement, mediaType string, w io.Writer) error
}

// PackageElement is one entry of a content package.
type PackageElement struct {
	Info    *ContentInformation
	Backend VersioningService
}

// ListResourcesFilter narrows resource listings. The zero value lists
// resources readable by the anonymous user.
type ListResourcesFilter struct {
	// Identities the caller can match ACL entries with.
	Identities []string
	// Permission is the minimum ACL permission an entry must grant one of
	// the identities.
	Permission Permission
	// Unfiltered disables permission filtering (administrators and
	// service readers).
	Unfiltered bool
	// IncludeRevoked includes revoked resources in the listing.
	IncludeRevoked bool

	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time

	Limit  int
	Offset int
}

// Repository persists data resources and content metadata.
type Repository interface {
	// CreateResource inserts a resource if none of its identifiers is
	// taken, returning ErrResourceAlreadyExists otherwise.
	CreateResource(ctx context.Context, resource *DataResource) error
	// GetResource looks a resource up by any of its identifiers.
	GetResource(ctx context.Context, id string) (*DataResource, error)
	UpdateResource(ctx context.Context, resource *DataResource) error
	ListResources(ctx context.Context, filter ListResourcesFilter) ([]*DataResource, error)

	// CreateContentInformation records a new content version.
	CreateContentInformation(ctx context.Context, info *ContentInformation) error
	// GetContentInformation returns the content record at the given
	// version, or the latest version if version is 0.
	GetContentInformation(ctx context.Context, resourceID, relativePath string, version int) (*ContentInformation, error)
	// ListContentInformation lists the latest version of every content
	// element whose relative path starts with the given prefix.
	ListContentInformation(ctx context.Context, resourceID, pathPrefix string) ([]*ContentInformation, error)
	// ListContentVersions lists all versions stored for one relative path,
	// newest first.
	ListContentVersions(ctx context.Context, resourceID, relativePath string) ([]*ContentInformation, error)
}
