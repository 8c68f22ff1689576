// Package storagepath maps resources and relative paths onto storage
// locations below a configured base path.
//
// The resolver expands a pattern of date variables, e.g.
// "@{year}/@{month}", against the current time and appends the
// resource's internal identifier and the relative path. Stored filenames
// carry a millisecond timestamp suffix so repeated uploads of the same
// path never collide.
package storagepath

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/tendant/simple-repo/pkg/simplerepo"
)

// timeNow is swapped in tests.
var timeNow = time.Now

// Resolver builds storage locations from a base URL and a path pattern.
type Resolver struct {
	base    *url.URL
	pattern string
}

// invalidPathChars are rejected in the base path to keep locations usable
// across filesystems.
const invalidPathChars = `<>?":|*`

// New creates a resolver for the given base path and pattern. The base
// path must be an absolute URL (e.g. "file:///data/repo" or
// "s3://bucket/prefix") free of reserved characters. The pattern may use
// the variables @{year}, @{month} and @{day}. A base path that does not
// qualify is a configuration fault, not a caller error.
func New(basepath, pathPattern string) (*Resolver, error) {
	if basepath == "" {
		return nil, fmt.Errorf("%w: basepath is required", simplerepo.ErrInternal)
	}
	base, err := url.Parse(basepath)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid basepath: %v", simplerepo.ErrInternal, err)
	}
	if base.Scheme == "" {
		return nil, fmt.Errorf("%w: basepath must carry a scheme", simplerepo.ErrInternal)
	}
	if base.RawQuery != "" || strings.ContainsAny(base.Path, invalidPathChars) {
		return nil, fmt.Errorf("%w: basepath contains reserved characters", simplerepo.ErrInternal)
	}
	return &Resolver{base: base, pattern: pathPattern}, nil
}

// expandPattern substitutes the date variables against now.
func (r *Resolver) expandPattern(now time.Time) string {
	expanded := r.pattern
	expanded = strings.ReplaceAll(expanded, "@{year}", fmt.Sprintf("%d", now.Year()))
	expanded = strings.ReplaceAll(expanded, "@{month}", fmt.Sprintf("%02d", int(now.Month())))
	expanded = strings.ReplaceAll(expanded, "@{day}", fmt.Sprintf("%02d", now.Day()))
	return expanded
}

// Key returns the storage key for a content element, relative to the base
// path. The final path element carries a millisecond timestamp suffix. An
// empty internal identifier violates the resource invariant and is
// reported as an internal fault so a key never collapses onto the date
// segment.
func (r *Resolver) Key(internalID, relativePath string) (string, error) {
	if internalID == "" {
		return "", fmt.Errorf("%w: resource has no internal identifier", simplerepo.ErrInternal)
	}
	now := timeNow().UTC()
	stamped := fmt.Sprintf("%s_%d", relativePath, now.UnixMilli())
	return path.Join(r.expandPattern(now), internalID, stamped), nil
}

// Resolve returns the absolute storage location for a content element of
// the given resource. The resource must carry an internal identifier.
func (r *Resolver) Resolve(resource *simplerepo.DataResource, relativePath string) (*url.URL, error) {
	if resource == nil {
		return nil, fmt.Errorf("%w: resource is required", simplerepo.ErrInternal)
	}
	key, err := r.Key(resource.InternalIdentifier(), relativePath)
	if err != nil {
		return nil, err
	}
	return r.ResolveKey(key), nil
}

// ResolveKey joins a storage key onto the base path.
func (r *Resolver) ResolveKey(key string) *url.URL {
	location := *r.base
	location.Path = path.Join(location.Path, key)
	return &location
}

// Base returns the resolver's base URL.
func (r *Resolver) Base() *url.URL {
	base := *r.base
	return &base
}
