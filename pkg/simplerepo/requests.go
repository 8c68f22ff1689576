package simplerepo

// CreateResourceRequest creates a new data resource. Missing metadata is
// defaulted from the caller.
type CreateResourceRequest struct {
	Resource *DataResource
	Caller   Principal
}

// GetResourceRequest fetches a resource by any of its identifiers.
type GetResourceRequest struct {
	ID     string
	Caller Principal
}

// ListResourcesRequest lists resources readable by the caller.
type ListResourcesRequest struct {
	Caller        Principal
	UpdatedAfter  string
	UpdatedBefore string
	Limit         int
	Offset        int
}

// UploadContentRequest stores a new content version at a relative path.
type UploadContentRequest struct {
	ResourceID   string
	RelativePath string
	// MediaType optionally overrides content type detection.
	MediaType string
	// Backend optionally selects a versioning service by name; empty
	// selects the default.
	Backend string
	Caller  Principal
}

// DownloadContentRequest streams a stored content version. Version 0
// addresses the latest version.
type DownloadContentRequest struct {
	ResourceID   string
	RelativePath string
	Version      int
	Caller       Principal
}

// GetContentInformationRequest fetches content metadata without the bytes.
type GetContentInformationRequest struct {
	ResourceID   string
	RelativePath string
	Version      int
	Caller       Principal
}

// ListContentInformationRequest lists content metadata below a path
// prefix.
type ListContentInformationRequest struct {
	ResourceID string
	PathPrefix string
	Caller     Principal
}

// PackageContentRequest streams an archive of multiple content elements.
// Empty RelativePaths packages every element of the resource.
type PackageContentRequest struct {
	ResourceID    string
	RelativePaths []string
	// MediaType selects the archive format; empty selects zip.
	MediaType string
	Caller    Principal
}
