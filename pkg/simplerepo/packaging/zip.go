// Package packaging bundles content elements into archive streams.
package packaging

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/tendant/simple-repo/pkg/simplerepo"
)

// ZipMediaType is the archive media type produced by the zip packager.
const ZipMediaType = "application/zip"

// ZipPackager streams zip archives of content elements.
type ZipPackager struct{}

// NewZip returns a zip packager.
func NewZip() *ZipPackager {
	return &ZipPackager{}
}

func (p *ZipPackager) SupportedMediaTypes() []string {
	return []string{ZipMediaType}
}

// Package streams a zip archive of the given elements to w. Unsupported
// media types are rejected before any bytes are written. Failures after
// streaming has begun leave a truncated archive behind; the returned
// error is the only signal the client gets.
func (p *ZipPackager) Package(ctx context.Context, elements []simplerepo.PackageElement, mediaType string, w io.Writer) error {
	if mediaType != ZipMediaType {
		return fmt.Errorf("%w: %s", simplerepo.ErrUnsupportedMediaType, mediaType)
	}

	archive := zip.NewWriter(w)
	now := time.Now().UTC()
	for _, element := range elements {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", simplerepo.ErrInternal, err)
		}
		info := element.Info
		header := &zip.FileHeader{
			Name:               info.RelativePath,
			Method:             zip.Deflate,
			Modified:           now,
			UncompressedSize64: uint64(info.Size),
		}
		entry, err := archive.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("%w: creating archive entry %s: %v", simplerepo.ErrInternal, info.RelativePath, err)
		}
		options := map[string]string{simplerepo.MetaContentURI: info.ContentURI}
		versionID := fmt.Sprintf("%d", info.Version)
		if err := element.Backend.Read(ctx, info.ResourceID, "", info.RelativePath, versionID, entry, options); err != nil {
			return fmt.Errorf("%w: streaming archive entry %s: %v", simplerepo.ErrInternal, info.RelativePath, err)
		}
	}
	if err := archive.Close(); err != nil {
		return fmt.Errorf("%w: finalizing archive: %v", simplerepo.ErrInternal, err)
	}
	return nil
}
