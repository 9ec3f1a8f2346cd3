// internal/services/storage_service_test.go
package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/dipm-backend/internal/config"
)

func newLocalStorage(t *testing.T) *StorageService {
	t.Helper()
	svc, err := NewStorageService(&config.Config{})
	require.NoError(t, err)
	return svc
}

func TestStoreWithoutS3MintsPlaceholder(t *testing.T) {
	svc := newLocalStorage(t)
	assert.False(t, svc.Configured())

	result, err := svc.Store([]byte("hello world"), "text/plain", false)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.ContentID, "local-"))
	assert.Equal(t, int64(11), result.Size)
	assert.Equal(t, "text/plain", result.MimeType)

	// Content addressing: same bytes, same id
	again, err := svc.Store([]byte("hello world"), "text/plain", false)
	require.NoError(t, err)
	assert.Equal(t, result.ContentID, again.ContentID)

	other, err := svc.Store([]byte("different bytes"), "text/plain", false)
	require.NoError(t, err)
	assert.NotEqual(t, result.ContentID, other.ContentID)
}

func TestFetchPlaceholderFails(t *testing.T) {
	svc := newLocalStorage(t)

	result, err := svc.Store([]byte("payload"), "application/octet-stream", false)
	require.NoError(t, err)

	_, err = svc.Fetch(result.ContentID)
	assert.ErrorIs(t, err, ErrContentNotFound)

	_, err = svc.Fetch("deadbeef")
	assert.ErrorIs(t, err, ErrContentNotFound)
}

func TestPresignedURLRequiresS3(t *testing.T) {
	svc := newLocalStorage(t)
	_, err := svc.GeneratePresignedURL("abc", 0)
	assert.Error(t, err)
}

func TestDefaultUploadOptions(t *testing.T) {
	svc := newLocalStorage(t)

	files := svc.GetDefaultUploadOptions("marketplace_files")
	assert.Equal(t, int64(100*1024*1024), files.MaxSize)
	assert.Contains(t, files.AllowedTypes, ".zip")
	assert.False(t, files.IsPublic)

	avatars := svc.GetDefaultUploadOptions("avatars")
	assert.Equal(t, int64(2*1024*1024), avatars.MaxSize)
	assert.True(t, avatars.IsPublic)

	fallback := svc.GetDefaultUploadOptions("unknown")
	assert.Equal(t, int64(5*1024*1024), fallback.MaxSize)
}
