package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-repo/pkg/simplerepo"
	"github.com/tendant/simple-repo/pkg/simplerepo/packaging"
)

// ContentInformationMediaType selects content metadata instead of the
// bytes on data downloads.
const ContentInformationMediaType = "application/vnd.datamanager.content-information+json"

// ResourceHandler handles HTTP requests for data resources and their
// content.
type ResourceHandler struct {
	service simplerepo.Service
}

// NewResourceHandler creates a new resource handler
func NewResourceHandler(service simplerepo.Service) *ResourceHandler {
	return &ResourceHandler{service: service}
}

// resourceID extracts the resource identifier from the route. DOIs
// contain a slash, so clients must percent-encode the identifier in the
// path; chi routes on the escaped form and the parameter is decoded
// here.
func resourceID(r *http.Request) string {
	id := chi.URLParam(r, "id")
	if decoded, err := url.PathUnescape(id); err == nil {
		return decoded
	}
	return id
}

// Routes returns the routes for data resources. Identifiers containing
// a slash (DOIs) are addressed with the slash percent-encoded.
func (h *ResourceHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateResource)
	r.Get("/", h.ListResources)
	r.Get("/{id}", h.GetResource)
	r.Post("/{id}/fix", h.FixResource)
	r.Delete("/{id}", h.RevokeResource)

	r.Put("/{id}/data/*", h.UploadContent)
	r.Get("/{id}/data/*", h.DownloadContent)
	r.Post("/{id}/package", h.PackageContent)

	return r
}

// writeError maps service errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, simplerepo.ErrBadArgument):
		status = http.StatusBadRequest
	case errors.Is(err, simplerepo.ErrResourceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, simplerepo.ErrResourceAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, simplerepo.ErrAccessForbidden):
		status = http.StatusForbidden
	case errors.Is(err, simplerepo.ErrUnsupportedMediaType):
		status = http.StatusUnsupportedMediaType
	}
	http.Error(w, err.Error(), status)
}

// CreateResource creates a new data resource
func (h *ResourceHandler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var resource simplerepo.DataResource
	if err := json.NewDecoder(r.Body).Decode(&resource); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	caller := PrincipalFromContext(r.Context())
	created, err := h.service.CreateResource(r.Context(), simplerepo.CreateResourceRequest{
		Resource: &resource,
		Caller:   caller,
	})
	if err != nil {
		slog.Error("Failed to create resource", "error", err)
		writeError(w, err)
		return
	}

	slog.Info("Resource created", "resource_id", created.ID, "caller", caller.Name)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, created)
}

// GetResource retrieves a data resource by any of its identifiers
func (h *ResourceHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r)
	caller := PrincipalFromContext(r.Context())

	resource, err := h.service.GetResource(r.Context(), simplerepo.GetResourceRequest{
		ID:     id,
		Caller: caller,
	})
	if err != nil {
		slog.Error("Failed to get resource", "resource_id", id, "error", err)
		writeError(w, err)
		return
	}
	render.JSON(w, r, resource)
}

// ListResources lists the resources readable by the caller
func (h *ResourceHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	caller := PrincipalFromContext(r.Context())
	query := r.URL.Query()

	req := simplerepo.ListResourcesRequest{
		Caller:        caller,
		UpdatedAfter:  query.Get("from"),
		UpdatedBefore: query.Get("until"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		req.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			http.Error(w, "Invalid offset", http.StatusBadRequest)
			return
		}
		req.Offset = offset
	}

	resources, err := h.service.ListResources(r.Context(), req)
	if err != nil {
		slog.Error("Failed to list resources", "error", err)
		writeError(w, err)
		return
	}
	if resources == nil {
		resources = []*simplerepo.DataResource{}
	}
	render.JSON(w, r, resources)
}

// FixResource transitions a volatile resource to FIXED
func (h *ResourceHandler) FixResource(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r)
	caller := PrincipalFromContext(r.Context())

	resource, err := h.service.FixResource(r.Context(), id, caller)
	if err != nil {
		slog.Error("Failed to fix resource", "resource_id", id, "error", err)
		writeError(w, err)
		return
	}
	render.JSON(w, r, resource)
}

// RevokeResource transitions a resource to REVOKED
func (h *ResourceHandler) RevokeResource(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r)
	caller := PrincipalFromContext(r.Context())

	resource, err := h.service.RevokeResource(r.Context(), id, caller)
	if err != nil {
		slog.Error("Failed to revoke resource", "resource_id", id, "error", err)
		writeError(w, err)
		return
	}
	render.JSON(w, r, resource)
}

// UploadContent stores a new content version at a relative path
func (h *ResourceHandler) UploadContent(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r)
	relativePath := chi.URLParam(r, "*")
	caller := PrincipalFromContext(r.Context())

	info, err := h.service.UploadContent(r.Context(), simplerepo.UploadContentRequest{
		ResourceID:   id,
		RelativePath: relativePath,
		MediaType:    r.Header.Get("Content-Type"),
		Caller:       caller,
	}, r.Body)
	if err != nil {
		slog.Error("Failed to upload content", "resource_id", id, "relative_path", relativePath, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("Content uploaded", "resource_id", id, "relative_path", relativePath, "version", info.Version)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, info)
}

// DownloadContent streams a stored content version, or renders its
// metadata when the content information media type is requested. With a
// trailing path prefix and the metadata media type, all matching content
// elements are listed.
func (h *ResourceHandler) DownloadContent(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r)
	relativePath := chi.URLParam(r, "*")
	caller := PrincipalFromContext(r.Context())

	version := 0
	if raw := r.URL.Query().Get("version"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid version", http.StatusBadRequest)
			return
		}
		version = parsed
	}

	if r.Header.Get("Accept") == ContentInformationMediaType {
		h.renderContentInformation(w, r, id, relativePath, version, caller)
		return
	}

	info, err := h.service.GetContentInformation(r.Context(), simplerepo.GetContentInformationRequest{
		ResourceID:   id,
		RelativePath: relativePath,
		Version:      version,
		Caller:       caller,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if info.MediaType != "" {
		w.Header().Set("Content-Type", info.MediaType)
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if _, err := h.service.DownloadContent(r.Context(), simplerepo.DownloadContentRequest{
		ResourceID:   id,
		RelativePath: relativePath,
		Version:      version,
		Caller:       caller,
	}, w); err != nil {
		// Headers are out; the truncated body is the only signal left.
		slog.Error("Failed to stream content", "resource_id", id, "relative_path", relativePath, "error", err)
		return
	}
}

// renderContentInformation renders content metadata. A path ending in a
// slash (or the empty path) is treated as a prefix listing.
func (h *ResourceHandler) renderContentInformation(w http.ResponseWriter, r *http.Request, id, relativePath string, version int, caller simplerepo.Principal) {
	if relativePath == "" || relativePath[len(relativePath)-1] == '/' {
		infos, err := h.service.ListContentInformation(r.Context(), simplerepo.ListContentInformationRequest{
			ResourceID: id,
			PathPrefix: relativePath,
			Caller:     caller,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		if infos == nil {
			infos = []*simplerepo.ContentInformation{}
		}
		render.JSON(w, r, infos)
		return
	}

	info, err := h.service.GetContentInformation(r.Context(), simplerepo.GetContentInformationRequest{
		ResourceID:   id,
		RelativePath: relativePath,
		Version:      version,
		Caller:       caller,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	render.JSON(w, r, info)
}

// PackageRequest is the request body for packaging content
type PackageRequest struct {
	RelativePaths []string `json:"relativePaths,omitempty"`
	MediaType     string   `json:"mediaType,omitempty"`
}

// PackageContent streams an archive of the selected content elements
func (h *ResourceHandler) PackageContent(w http.ResponseWriter, r *http.Request) {
	id := resourceID(r)
	caller := PrincipalFromContext(r.Context())

	var req PackageRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = packaging.ZipMediaType
	}

	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".zip"))
	if err := h.service.PackageContent(r.Context(), simplerepo.PackageContentRequest{
		ResourceID:    id,
		RelativePaths: req.RelativePaths,
		MediaType:     mediaType,
		Caller:        caller,
	}, w); err != nil {
		slog.Error("Failed to package content", "resource_id", id, "error", err)
		// If streaming already began this only leaves a truncated archive.
		writeError(w, err)
		return
	}
}
