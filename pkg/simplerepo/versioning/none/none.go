// Package none provides a pass-through versioning backend. Bytes are
// stored on the filesystem like the simple backend, but no checksum or
// media type is derived, which makes it suitable for bulk ingest where
// integrity information is supplied externally.
package none

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tendant/simple-repo/pkg/simplerepo"
	"github.com/tendant/simple-repo/pkg/simplerepo/storagepath"
)

// ServiceName is the registration name of this backend.
const ServiceName = "none"

// Backend stores content without deriving integrity information.
type Backend struct {
	resolver *storagepath.Resolver
}

// New creates a pass-through backend writing below the resolver's base
// path.
func New(resolver *storagepath.Resolver) (*Backend, error) {
	if resolver == nil {
		return nil, fmt.Errorf("%w: resolver is required", simplerepo.ErrBadArgument)
	}
	if resolver.Base().Scheme != "file" {
		return nil, fmt.Errorf("%w: backend requires a file basepath", simplerepo.ErrBadArgument)
	}
	return &Backend{resolver: resolver}, nil
}

func (b *Backend) ServiceName() string {
	return ServiceName
}

// Write stores the bytes and records only the content URI and size.
func (b *Backend) Write(ctx context.Context, resourceID, callerID, relativePath string, r io.Reader, meta map[string]string) error {
	key, err := b.resolver.Key(resourceID, relativePath)
	if err != nil {
		return &simplerepo.StorageError{Backend: ServiceName, Path: relativePath, Op: "write", Err: err}
	}
	location := b.resolver.ResolveKey(key)
	target := location.Path

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return &simplerepo.StorageError{Backend: ServiceName, Path: target, Op: "write", Err: err}
	}
	out, err := os.Create(target)
	if err != nil {
		return &simplerepo.StorageError{Backend: ServiceName, Path: target, Op: "write", Err: err}
	}
	written, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(target)
		return &simplerepo.StorageError{Backend: ServiceName, Path: target, Op: "write", Err: err}
	}

	meta[simplerepo.MetaContentURI] = location.String()
	meta[simplerepo.MetaSize] = strconv.FormatInt(written, 10)
	return nil
}

// Read streams a stored version to w using the recorded content URI.
func (b *Backend) Read(ctx context.Context, resourceID, callerID, relativePath, versionID string, w io.Writer, options map[string]string) error {
	target, err := localPath(options)
	if err != nil {
		return err
	}
	in, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return &simplerepo.StorageError{Backend: ServiceName, Path: target, Op: "read",
				Err: simplerepo.ErrResourceNotFound}
		}
		return &simplerepo.StorageError{Backend: ServiceName, Path: target, Op: "read", Err: err}
	}
	defer in.Close()
	if _, err := io.Copy(w, in); err != nil {
		return &simplerepo.StorageError{Backend: ServiceName, Path: target, Op: "read", Err: err}
	}
	return nil
}

func (b *Backend) Info(ctx context.Context, resourceID, relativePath, versionID string, options map[string]string) (*simplerepo.VersionDescriptor, error) {
	target, err := localPath(options)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return nil, &simplerepo.StorageError{Backend: ServiceName, Path: target, Op: "info",
				Err: simplerepo.ErrResourceNotFound}
		}
		return nil, &simplerepo.StorageError{Backend: ServiceName, Path: target, Op: "info", Err: err}
	}
	return &simplerepo.VersionDescriptor{
		ResourceID: resourceID,
		VersionID:  versionID,
		Paths:      []string{relativePath},
	}, nil
}

// Remove deletes a stored file. The options map must carry the file
// content URI recorded at write time.
func (b *Backend) Remove(ctx context.Context, options map[string]string) error {
	target, err := localPath(options)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return &simplerepo.StorageError{Backend: ServiceName, Path: target, Op: "remove", Err: err}
	}
	return nil
}

func localPath(options map[string]string) (string, error) {
	contentURI := options[simplerepo.MetaContentURI]
	if contentURI == "" {
		return "", fmt.Errorf("%w: content uri is required", simplerepo.ErrBadArgument)
	}
	location, err := url.Parse(contentURI)
	if err != nil || location.Scheme != "file" {
		return "", fmt.Errorf("%w: invalid content uri %q", simplerepo.ErrBadArgument, contentURI)
	}
	return location.Path, nil
}
