package simplerepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// service is the default implementation of the Service interface.
type service struct {
	repository     Repository
	backends       map[string]VersioningService
	defaultBackend string
	packager       Packager
	logger         *slog.Logger
}

// Option configures the service during construction.
type Option func(*service)

// WithRepository sets the metadata repository (required).
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithVersioningService registers a content backend under a name.
func WithVersioningService(name string, backend VersioningService) Option {
	return func(s *service) {
		s.backends[name] = backend
	}
}

// WithDefaultVersioningService selects the backend used when a request
// does not name one.
func WithDefaultVersioningService(name string) Option {
	return func(s *service) {
		s.defaultBackend = name
	}
}

// WithPackager sets the archive packager used by PackageContent.
func WithPackager(p Packager) Option {
	return func(s *service) {
		s.packager = p
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a service with the given options. A repository and at least
// one versioning backend are required.
func New(options ...Option) (Service, error) {
	svc := &service{
		backends: make(map[string]VersioningService),
		logger:   slog.Default(),
	}
	for _, option := range options {
		option(svc)
	}
	if svc.repository == nil {
		return nil, fmt.Errorf("%w: repository is required", ErrBadArgument)
	}
	if len(svc.backends) == 0 {
		return nil, fmt.Errorf("%w: at least one versioning service is required", ErrBadArgument)
	}
	if svc.defaultBackend == "" && len(svc.backends) == 1 {
		for name := range svc.backends {
			svc.defaultBackend = name
		}
	}
	if _, ok := svc.backends[svc.defaultBackend]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, svc.defaultBackend)
	}
	return svc, nil
}

func (s *service) Backend(name string) (VersioningService, error) {
	if name == "" {
		name = s.defaultBackend
	}
	backend, ok := s.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, name)
	}
	return backend, nil
}

func (s *service) CreateResource(ctx context.Context, req CreateResourceRequest) (*DataResource, error) {
	resource := req.Resource
	if err := applyCreateDefaults(resource, req.Caller, time.Now().UTC()); err != nil {
		return nil, &ResourceError{Op: "create", Err: err}
	}
	if err := s.repository.CreateResource(ctx, resource); err != nil {
		return nil, &ResourceError{ResourceID: resource.ID, Op: "create", Err: err}
	}
	s.logger.InfoContext(ctx, "resource created",
		"resource_id", resource.ID,
		"internal_id", resource.InternalIdentifier(),
		"caller", req.Caller.Name)
	return resource, nil
}

// loadChecked fetches a resource and enforces the required permission for
// the caller. Missing resources and revoked resources hidden from the
// caller both surface as ErrResourceNotFound.
func (s *service) loadChecked(ctx context.Context, id string, caller Principal, required Permission) (*DataResource, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: resource id is required", ErrBadArgument)
	}
	resource, err := s.repository.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckPermission(caller, resource, required); err != nil {
		return nil, err
	}
	return resource, nil
}

func (s *service) GetResource(ctx context.Context, req GetResourceRequest) (*DataResource, error) {
	resource, err := s.loadChecked(ctx, req.ID, req.Caller, PermissionRead)
	if err != nil {
		return nil, &ResourceError{ResourceID: req.ID, Op: "get", Err: err}
	}
	return resource, nil
}

func (s *service) ListResources(ctx context.Context, req ListResourcesRequest) ([]*DataResource, error) {
	filter := ListResourcesFilter{
		Identities: req.Caller.Identities(),
		Permission: PermissionRead,
		Limit:      req.Limit,
		Offset:     req.Offset,
	}
	if req.Caller.IsAdministrator() {
		filter.Unfiltered = true
		filter.IncludeRevoked = true
	} else if req.Caller.servicePermission().AtLeast(PermissionRead) {
		filter.Unfiltered = true
	}
	if req.UpdatedAfter != "" {
		t, err := time.Parse(time.RFC3339, req.UpdatedAfter)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid updated-after timestamp: %v", ErrBadArgument, err)
		}
		filter.UpdatedAfter = &t
	}
	if req.UpdatedBefore != "" {
		t, err := time.Parse(time.RFC3339, req.UpdatedBefore)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid updated-before timestamp: %v", ErrBadArgument, err)
		}
		filter.UpdatedBefore = &t
	}
	return s.repository.ListResources(ctx, filter)
}

func (s *service) transitionState(ctx context.Context, id string, caller Principal, to State) (*DataResource, error) {
	op := strings.ToLower(string(to))
	resource, err := s.loadChecked(ctx, id, caller, PermissionAdministrate)
	if err != nil {
		return nil, &ResourceError{ResourceID: id, Op: op, Err: err}
	}
	if err := canTransitionState(resource.State, to); err != nil {
		return nil, &ResourceError{ResourceID: id, Op: op, Err: err}
	}
	resource.State = to
	resource.LastUpdate = time.Now().UTC()
	if err := s.repository.UpdateResource(ctx, resource); err != nil {
		return nil, &ResourceError{ResourceID: id, Op: op, Err: err}
	}
	s.logger.InfoContext(ctx, "resource state changed",
		"resource_id", resource.ID,
		"state", resource.State,
		"caller", caller.Name)
	return resource, nil
}

func (s *service) FixResource(ctx context.Context, id string, caller Principal) (*DataResource, error) {
	return s.transitionState(ctx, id, caller, StateFixed)
}

func (s *service) RevokeResource(ctx context.Context, id string, caller Principal) (*DataResource, error) {
	return s.transitionState(ctx, id, caller, StateRevoked)
}

// validRelativePath rejects empty, absolute and parent-escaping paths.
func validRelativePath(relativePath string) error {
	if relativePath == "" {
		return fmt.Errorf("%w: relative path is required", ErrBadArgument)
	}
	if strings.HasPrefix(relativePath, "/") {
		return fmt.Errorf("%w: relative path must not be absolute", ErrBadArgument)
	}
	for _, segment := range strings.Split(relativePath, "/") {
		if segment == ".." {
			return fmt.Errorf("%w: relative path must not escape the resource", ErrBadArgument)
		}
	}
	return nil
}

// maxVersionRetries bounds how often an upload re-reads the latest
// version after losing a concurrent version race.
const maxVersionRetries = 3

// removeWritten deletes already-written bytes after the content record
// could not be persisted, for backends that support removal. Failures are
// logged only; the upload error is what the caller needs to see.
func (s *service) removeWritten(ctx context.Context, backend VersioningService, options map[string]string, resourceID, relativePath string) {
	remover, ok := backend.(ContentRemover)
	if !ok {
		return
	}
	if err := remover.Remove(ctx, options); err != nil {
		s.logger.WarnContext(ctx, "failed to remove content after upload failure",
			"resource_id", resourceID,
			"relative_path", relativePath,
			"error", err)
	}
}

func (s *service) UploadContent(ctx context.Context, req UploadContentRequest, r io.Reader) (*ContentInformation, error) {
	if err := validRelativePath(req.RelativePath); err != nil {
		return nil, &ResourceError{ResourceID: req.ResourceID, Op: "upload", Err: err}
	}
	resource, err := s.loadChecked(ctx, req.ResourceID, req.Caller, PermissionWrite)
	if err != nil {
		return nil, &ResourceError{ResourceID: req.ResourceID, Op: "upload", Err: err}
	}
	backend, err := s.Backend(req.Backend)
	if err != nil {
		return nil, &ResourceError{ResourceID: req.ResourceID, Op: "upload", Err: err}
	}

	version := 1
	previous, err := s.repository.GetContentInformation(ctx, resource.ID, req.RelativePath, 0)
	switch {
	case err == nil:
		version = previous.Version + 1
	case errors.Is(err, ErrResourceNotFound):
		// first version
	default:
		return nil, &ResourceError{ResourceID: req.ResourceID, Op: "upload", Err: err}
	}

	meta := map[string]string{}
	if req.MediaType != "" {
		meta[MetaMediaType] = req.MediaType
	}
	callerName := req.Caller.Name
	if callerName == "" {
		callerName = AnonymousPrincipal
	}
	if err := backend.Write(ctx, resource.InternalIdentifier(), callerName, req.RelativePath, r, meta); err != nil {
		return nil, &ResourceError{ResourceID: req.ResourceID, Op: "upload", Err: err}
	}

	info := &ContentInformation{
		ResourceID:        resource.ID,
		RelativePath:      req.RelativePath,
		Version:           version,
		Checksum:          meta[MetaChecksum],
		MediaType:         meta[MetaMediaType],
		ContentURI:        meta[MetaContentURI],
		VersioningService: backend.ServiceName(),
		UploadedBy:        callerName,
	}
	if sizeValue, ok := meta[MetaSize]; ok {
		size, err := strconv.ParseInt(sizeValue, 10, 64)
		if err != nil {
			return nil, &ResourceError{ResourceID: req.ResourceID, Op: "upload",
				Err: fmt.Errorf("%w: backend reported invalid size %q", ErrInternal, sizeValue)}
		}
		info.Size = size
	}
	for attempt := 0; ; attempt++ {
		err := s.repository.CreateContentInformation(ctx, info)
		if err == nil {
			break
		}
		// A concurrent upload to the same path may have taken the version
		// between our lookup and the insert. Re-read the latest version and
		// try again before giving up.
		if errors.Is(err, ErrResourceAlreadyExists) && attempt < maxVersionRetries {
			latest, lookupErr := s.repository.GetContentInformation(ctx, resource.ID, req.RelativePath, 0)
			if lookupErr == nil {
				info.Version = latest.Version + 1
				continue
			}
		}
		s.removeWritten(ctx, backend, meta, resource.ID, req.RelativePath)
		return nil, &ResourceError{ResourceID: req.ResourceID, Op: "upload", Err: err}
	}
	s.logger.InfoContext(ctx, "content uploaded",
		"resource_id", resource.ID,
		"relative_path", info.RelativePath,
		"version", info.Version,
		"size", info.Size,
		"backend", info.VersioningService)
	return info, nil
}

func (s *service) DownloadContent(ctx context.Context, req DownloadContentRequest, w io.Writer) (*ContentInformation, error) {
	resource, err := s.loadChecked(ctx, req.ResourceID, req.Caller, PermissionRead)
	if err != nil {
		return nil, &ResourceError{ResourceID: req.ResourceID, Op: "download", Err: err}
	}
	info, err := s.repository.GetContentInformation(ctx, resource.ID, req.RelativePath, req.Version)
	if err != nil {
		return nil, &ResourceError{ResourceID: req.ResourceID, Op: "download", Err: err}
	}
	backend, err := s.Backend(info.VersioningService)
	if err != nil {
		return nil, &ResourceError{ResourceID: req.ResourceID, Op: "download", Err: err}
	}
	options := map[string]string{MetaContentURI: info.ContentURI}
	versionID := strconv.Itoa(info.Version)
	callerName := req.Caller.Name
	if callerName == "" {
		callerName = AnonymousPrincipal
	}
	if err := backend.Read(ctx, resource.InternalIdentifier(), callerName, info.RelativePath, versionID, w, options); err != nil {
		return nil, &ResourceError{ResourceID: req.ResourceID, Op: "download", Err: err}
	}
	return info, nil
}

func (s *service) GetContentInformation(ctx context.Context, req GetContentInformationRequest) (*ContentInformation, error) {
	resource, err := s.loadChecked(ctx, req.ResourceID, req.Caller, PermissionRead)
	if err != nil {
		return nil, &ResourceError{ResourceID: req.ResourceID, Op: "get content", Err: err}
	}
	info, err := s.repository.GetContentInformation(ctx, resource.ID, req.RelativePath, req.Version)
	if err != nil {
		return nil, &ResourceError{ResourceID: req.ResourceID, Op: "get content", Err: err}
	}
	return info, nil
}

func (s *service) ListContentInformation(ctx context.Context, req ListContentInformationRequest) ([]*ContentInformation, error) {
	resource, err := s.loadChecked(ctx, req.ResourceID, req.Caller, PermissionRead)
	if err != nil {
		return nil, &ResourceError{ResourceID: req.ResourceID, Op: "list content", Err: err}
	}
	return s.repository.ListContentInformation(ctx, resource.ID, req.PathPrefix)
}

func (s *service) ListContentVersions(ctx context.Context, req GetContentInformationRequest) ([]*ContentInformation, error) {
	resource, err := s.loadChecked(ctx, req.ResourceID, req.Caller, PermissionRead)
	if err != nil {
		return nil, &ResourceError{ResourceID: req.ResourceID, Op: "list versions", Err: err}
	}
	return s.repository.ListContentVersions(ctx, resource.ID, req.RelativePath)
}

func (s *service) PackageContent(ctx context.Context, req PackageContentRequest, w io.Writer) error {
	if s.packager == nil {
		return &ResourceError{ResourceID: req.ResourceID, Op: "package",
			Err: fmt.Errorf("%w: no packager configured", ErrInternal)}
	}
	mediaType := req.MediaType
	if mediaType == "" {
		types := s.packager.SupportedMediaTypes()
		if len(types) == 0 {
			return &ResourceError{ResourceID: req.ResourceID, Op: "package",
				Err: fmt.Errorf("%w: packager supports no media types", ErrInternal)}
		}
		mediaType = types[0]
	}
	resource, err := s.loadChecked(ctx, req.ResourceID, req.Caller, PermissionRead)
	if err != nil {
		return &ResourceError{ResourceID: req.ResourceID, Op: "package", Err: err}
	}

	var infos []*ContentInformation
	if len(req.RelativePaths) == 0 {
		infos, err = s.repository.ListContentInformation(ctx, resource.ID, "")
		if err != nil {
			return &ResourceError{ResourceID: req.ResourceID, Op: "package", Err: err}
		}
	} else {
		for _, relativePath := range req.RelativePaths {
			info, err := s.repository.GetContentInformation(ctx, resource.ID, relativePath, 0)
			if err != nil {
				return &ResourceError{ResourceID: req.ResourceID, Op: "package", Err: err}
			}
			infos = append(infos, info)
		}
	}
	if len(infos) == 0 {
		return &ResourceError{ResourceID: req.ResourceID, Op: "package",
			Err: fmt.Errorf("%w: no content to package", ErrResourceNotFound)}
	}

	elements := make([]PackageElement, 0, len(infos))
	for _, info := range infos {
		backend, err := s.Backend(info.VersioningService)
		if err != nil {
			return &ResourceError{ResourceID: req.ResourceID, Op: "package", Err: err}
		}
		elements = append(elements, PackageElement{Info: info, Backend: backend})
	}
	if err := s.packager.Package(ctx, elements, mediaType, w); err != nil {
		return &ResourceError{ResourceID: req.ResourceID, Op: "package", Err: err}
	}
	s.logger.InfoContext(ctx, "content packaged",
		"resource_id", resource.ID,
		"elements", len(elements),
		"media_type", mediaType)
	return nil
}
