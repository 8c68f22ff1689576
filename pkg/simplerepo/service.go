package simplerepo

import (
	"context"
	"io"
)

// Service is the main interface of the repository. It combines resource
// metadata management, content storage and permission enforcement.
type Service interface {
	// CreateResource creates a new data resource, applying the creation
	// defaults derived from the caller.
	CreateResource(ctx context.Context, req CreateResourceRequest) (*DataResource, error)
	// GetResource returns a resource the caller may read.
	GetResource(ctx context.Context, req GetResourceRequest) (*DataResource, error)
	// ListResources lists the resources readable by the caller.
	ListResources(ctx context.Context, req ListResourcesRequest) ([]*DataResource, error)
	// FixResource transitions a volatile resource to FIXED.
	FixResource(ctx context.Context, id string, caller Principal) (*DataResource, error)
	// RevokeResource transitions a resource to REVOKED.
	RevokeResource(ctx context.Context, id string, caller Principal) (*DataResource, error)

	// UploadContent stores a new content version and returns its metadata.
	UploadContent(ctx context.Context, req UploadContentRequest, r io.Reader) (*ContentInformation, error)
	// DownloadContent streams a stored content version to w.
	DownloadContent(ctx context.Context, req DownloadContentRequest, w io.Writer) (*ContentInformation, error)
	// GetContentInformation returns content metadata without the bytes.
	GetContentInformation(ctx context.Context, req GetContentInformationRequest) (*ContentInformation, error)
	// ListContentInformation lists content metadata below a path prefix.
	ListContentInformation(ctx context.Context, req ListContentInformationRequest) ([]*ContentInformation, error)
	// ListContentVersions lists all versions of one content element.
	ListContentVersions(ctx context.Context, req GetContentInformationRequest) ([]*ContentInformation, error)

	// PackageContent streams an archive of the selected content elements.
	PackageContent(ctx context.Context, req PackageContentRequest, w io.Writer) error

	// Backend returns a registered versioning service by name.
	Backend(name string) (VersioningService, error)
}
