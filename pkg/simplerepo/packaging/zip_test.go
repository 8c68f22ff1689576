package packaging_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-repo/pkg/simplerepo"
	"github.com/tendant/simple-repo/pkg/simplerepo/packaging"
	"github.com/tendant/simple-repo/pkg/simplerepo/storagepath"
	simplebackend "github.com/tendant/simple-repo/pkg/simplerepo/versioning/simple"
)

func storedElement(t *testing.T, backend simplerepo.VersioningService, relativePath, content string) simplerepo.PackageElement {
	t.Helper()
	meta := map[string]string{}
	require.NoError(t, backend.Write(context.Background(), "res-1", "alice", relativePath,
		strings.NewReader(content), meta))
	return simplerepo.PackageElement{
		Info: &simplerepo.ContentInformation{
			ResourceID:   "res-1",
			RelativePath: relativePath,
			Version:      1,
			ContentURI:   meta[simplerepo.MetaContentURI],
		},
		Backend: backend,
	}
}

func TestZipPackager(t *testing.T) {
	resolver, err := storagepath.New("file://"+t.TempDir(), "@{year}")
	require.NoError(t, err)
	backend, err := simplebackend.New(resolver)
	require.NoError(t, err)

	packager := packaging.NewZip()
	elements := []simplerepo.PackageElement{
		storedElement(t, backend, "data/one.txt", "first file"),
		storedElement(t, backend, "data/two.txt", "second file"),
	}

	t.Run("supported media types", func(t *testing.T) {
		assert.Equal(t, []string{packaging.ZipMediaType}, packager.SupportedMediaTypes())
	})

	t.Run("streams readable archive", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, packager.Package(context.Background(), elements, packaging.ZipMediaType, &buf))

		reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		require.NoError(t, err)
		require.Len(t, reader.File, 2)
		assert.Equal(t, "data/one.txt", reader.File[0].Name)
		assert.Equal(t, "data/two.txt", reader.File[1].Name)

		rc, err := reader.File[0].Open()
		require.NoError(t, err)
		var content bytes.Buffer
		_, err = content.ReadFrom(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "first file", content.String())
	})

	t.Run("rejects unsupported media type before writing", func(t *testing.T) {
		var buf bytes.Buffer
		err := packager.Package(context.Background(), elements, "application/x-tar", &buf)
		assert.ErrorIs(t, err, simplerepo.ErrUnsupportedMediaType)
		assert.Zero(t, buf.Len())
	})

	t.Run("missing stored content surfaces as internal error", func(t *testing.T) {
		broken := []simplerepo.PackageElement{{
			Info: &simplerepo.ContentInformation{
				ResourceID:   "res-1",
				RelativePath: "gone.txt",
				Version:      1,
				ContentURI:   "file:///nonexistent/gone.txt",
			},
			Backend: backend,
		}}
		var buf bytes.Buffer
		err := packager.Package(context.Background(), broken, packaging.ZipMediaType, &buf)
		assert.ErrorIs(t, err, simplerepo.ErrInternal)
	})
}
