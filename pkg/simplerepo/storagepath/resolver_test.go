package storagepath

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-repo/pkg/simplerepo"
)

func fixedClock(t *testing.T, instant time.Time) {
	t.Helper()
	timeNow = func() time.Time { return instant }
	t.Cleanup(func() { timeNow = time.Now })
}

func TestNew(t *testing.T) {
	t.Run("valid file basepath", func(t *testing.T) {
		resolver, err := New("file:///data/repo", "@{year}")
		require.NoError(t, err)
		assert.Equal(t, "file", resolver.Base().Scheme)
	})

	t.Run("valid s3 basepath", func(t *testing.T) {
		_, err := New("s3://bucket/prefix", "@{year}/@{month}")
		assert.NoError(t, err)
	})

	t.Run("empty basepath is a configuration fault", func(t *testing.T) {
		_, err := New("", "@{year}")
		assert.ErrorIs(t, err, simplerepo.ErrInternal)
	})

	t.Run("basepath without scheme is a configuration fault", func(t *testing.T) {
		_, err := New("/data/repo", "@{year}")
		assert.ErrorIs(t, err, simplerepo.ErrInternal)
	})

	t.Run("reserved characters are a configuration fault", func(t *testing.T) {
		for _, basepath := range []string{"file:///data/<repo>", "file:///data/re|po", `file:///data/"repo"`, "file:///data/repo?x", "file:///data/*"} {
			_, err := New(basepath, "@{year}")
			assert.ErrorIs(t, err, simplerepo.ErrInternal, "basepath %q", basepath)
		}
	})
}

func TestKey(t *testing.T) {
	instant := time.Date(2022, 5, 17, 10, 30, 0, 0, time.UTC)
	fixedClock(t, instant)

	resolver, err := New("file:///data/repo", "@{year}/@{month}/@{day}")
	require.NoError(t, err)

	key, err := resolver.Key("abc-123", "data/fox.txt")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("2022/05/17/abc-123/data/fox.txt_%d", instant.UnixMilli()), key)

	t.Run("empty internal identifier is an internal fault", func(t *testing.T) {
		_, err := resolver.Key("", "data/fox.txt")
		assert.ErrorIs(t, err, simplerepo.ErrInternal)
	})
}

func TestResolve(t *testing.T) {
	instant := time.Date(2022, 5, 17, 10, 30, 0, 0, time.UTC)
	fixedClock(t, instant)

	resolver, err := New("file:///data/repo", "@{year}")
	require.NoError(t, err)

	t.Run("resolves below the basepath", func(t *testing.T) {
		resource := &simplerepo.DataResource{
			AlternateIdentifiers: []simplerepo.Identifier{simplerepo.NewInternalIdentifier("abc-123")},
		}
		location, err := resolver.Resolve(resource, "fox.txt")
		require.NoError(t, err)
		assert.Equal(t, "file", location.Scheme)
		assert.Equal(t, fmt.Sprintf("/data/repo/2022/abc-123/fox.txt_%d", instant.UnixMilli()), location.Path)
	})

	t.Run("missing internal identifier is an internal fault", func(t *testing.T) {
		_, err := resolver.Resolve(&simplerepo.DataResource{}, "fox.txt")
		assert.ErrorIs(t, err, simplerepo.ErrInternal)
	})

	t.Run("nil resource is an internal fault", func(t *testing.T) {
		_, err := resolver.Resolve(nil, "fox.txt")
		assert.ErrorIs(t, err, simplerepo.ErrInternal)
	})
}
