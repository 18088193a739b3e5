// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/thread-harvester/internal/storage"
	"github.com/JakeFAU/thread-harvester/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "data")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		t.Cleanup(func() {
			// #nosec G302 -- reverting permissions to allow cleanup.
			_ = os.Chmod(tempDir, 0o700)
		})
		_, err := local.New(local.Config{BaseDir: tempDir})
		assert.Error(t, err)
	})
}

func TestPutAndGetObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		uri, err := store.PutObject(ctx, "golang_submissions.json", "application/json", strings.NewReader(`[]`))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, "golang_submissions.json"), uri)

		data, err := store.GetObject(ctx, "golang_submissions.json")
		require.NoError(t, err)
		assert.Equal(t, []byte(`[]`), data)
	})

	t.Run("Overwrite", func(t *testing.T) {
		_, err := store.PutObject(ctx, "a/b/object.txt", "text/plain", bytes.NewReader([]byte("first")))
		require.NoError(t, err)
		_, err = store.PutObject(ctx, "a/b/object.txt", "text/plain", bytes.NewReader([]byte("second")))
		require.NoError(t, err)

		data, err := store.GetObject(ctx, "a/b/object.txt")
		require.NoError(t, err)
		assert.Equal(t, "second", string(data))

		entries, err := os.ReadDir(filepath.Join(tempDir, "a", "b"))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temp files are renamed away")
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := store.GetObject(ctx, "nope.json")
		assert.True(t, errors.Is(err, storage.ErrObjectNotFound))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(ctx, "", "text/plain", strings.NewReader("data"))
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.PutObject(ctx, "../escape.txt", "text/plain", strings.NewReader("data"))
		assert.ErrorContains(t, err, "traversal")
		_, err = store.GetObject(ctx, "../../etc/passwd")
		assert.ErrorContains(t, err, "traversal")
	})
}

func TestRelativeBaseDir(t *testing.T) {
	tempDir := t.TempDir()
	t.Chdir(tempDir)

	store, err := local.New(local.Config{BaseDir: "."})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "jokes_submissions.json", "application/json", strings.NewReader(`[]`))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(uri, "jokes_submissions.json"))

	data, err := store.GetObject(ctx, "jokes_submissions.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), data)

	_, err = os.Stat(filepath.Join(tempDir, "jokes_submissions.json"))
	require.NoError(t, err)

	_, err = store.GetObject(ctx, "../outside.json")
	assert.ErrorContains(t, err, "traversal")
}
