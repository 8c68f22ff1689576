// Package simple provides a filesystem versioning backend. Every write
// creates a new timestamped file below the configured base path, so
// earlier versions stay readable through their recorded content URIs.
package simple

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/tendant/simple-repo/pkg/simplerepo"
	"github.com/tendant/simple-repo/pkg/simplerepo/storagepath"
)

// ServiceName is the registration name of this backend.
const ServiceName = "simple"

// Backend stores content on the local filesystem and records SHA-1
// checksums while writing.
type Backend struct {
	resolver *storagepath.Resolver
}

// New creates a filesystem backend writing below the resolver's base
// path. The base URL must use the file scheme.
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

// Write stores the bytes at a timestamped location derived from the
// resource and relative path. It fills the metadata map with the SHA-1
// checksum, size, content URI and, if absent, a detected media type.
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

	hash := sha1.New()
	sniff := &sniffWriter{}
	written, err := io.Copy(io.MultiWriter(out, hash, sniff), r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(target)
		return &simplerepo.StorageError{Backend: ServiceName, Path: target, Op: "write", Err: err}
	}

	meta[simplerepo.MetaChecksum] = fmt.Sprintf("sha1:%x", hash.Sum(nil))
	meta[simplerepo.MetaSize] = strconv.FormatInt(written, 10)
	meta[simplerepo.MetaContentURI] = location.String()
	if meta[simplerepo.MetaMediaType] == "" {
		meta[simplerepo.MetaMediaType] = detectMediaType(relativePath, sniff.head)
	}
	return nil
}

// Read streams a stored version to w. The options map must carry the
// content URI recorded at write time.
func (b *Backend) Read(ctx context.Context, resourceID, callerID, relativePath, versionID string, w io.Writer, options map[string]string) error {
	target, err := b.localPath(options)
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

// Info describes a stored version without reading its bytes.
func (b *Backend) Info(ctx context.Context, resourceID, relativePath, versionID string, options map[string]string) (*simplerepo.VersionDescriptor, error) {
	target, err := b.localPath(options)
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
	target, err := b.localPath(options)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return &simplerepo.StorageError{Backend: ServiceName, Path: target, Op: "remove", Err: err}
	}
	return nil
}

func (b *Backend) localPath(options map[string]string) (string, error) {
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

// detectMediaType combines content sniffing with the file extension. The
// extension hint comes from the relative path since stored filenames
// carry a timestamp suffix.
func detectMediaType(relativePath string, head []byte) string {
	if ext := path.Ext(relativePath); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return http.DetectContentType(head)
}

// sniffWriter keeps the first 512 bytes for content type detection.
type sniffWriter struct {
	head []byte
}

func (s *sniffWriter) Write(p []byte) (int, error) {
	if remaining := 512 - len(s.head); remaining > 0 {
		if len(p) < remaining {
			remaining = len(p)
		}
		s.head = append(s.head, p[:remaining]...)
	}
	return len(p), nil
}
