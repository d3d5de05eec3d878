// internal/services/storage_service_test.go
package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civilaviation/fop-backend/internal/permit"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)
	ctx := context.Background()

	locator, err := store.Store(ctx, []byte("hello"), "tenant/20260302/a.pdf", "application/pdf")
	require.NoError(t, err)

	data, err := store.Fetch(ctx, locator)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	removed, err := store.Delete(ctx, locator)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Delete(ctx, locator)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = store.Fetch(ctx, locator)
	assert.ErrorIs(t, err, permit.ErrNotFound)
}

func TestLocalStoreStaysUnderRoot(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)

	_, err := store.Store(context.Background(), []byte("x"), "../../escape.pdf", "application/pdf")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "escape.pdf"))
	assert.NoError(t, err)

	_, err = store.Fetch(context.Background(), "/")
	assert.ErrorIs(t, err, permit.ErrInvalidArgument)
}

func TestUploadValidatesContent(t *testing.T) {
	svc, err := NewStorageService(testConfig(t.TempDir()))
	require.NoError(t, err)
	ctx := context.Background()

	result, err := svc.Upload(ctx, "sxm/caa", pdf, "Insurance.PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.MimeType)
	assert.Equal(t, int64(len(pdf)), result.Size)
	assert.Len(t, result.SHA256, 64)
	assert.True(t, strings.HasPrefix(result.Locator, "sxm_caa/"), result.Locator)
	assert.True(t, strings.HasSuffix(result.Locator, ".pdf"), result.Locator)

	data, err := svc.Fetch(ctx, result.Locator)
	require.NoError(t, err)
	assert.Equal(t, pdf, data)

	_, presigned, err := svc.DownloadURL(result.Locator)
	require.NoError(t, err)
	assert.False(t, presigned)

	_, err = svc.Upload(ctx, testTenant, []byte("plain text notes"), "notes.txt")
	assert.ErrorIs(t, err, permit.ErrInvalidArgument)

	_, err = svc.Upload(ctx, testTenant, nil, "empty.pdf")
	assert.ErrorIs(t, err, permit.ErrInvalidArgument)

	big := append(append([]byte{}, pdf...), make([]byte, 1024*1024)...)
	_, err = svc.Upload(ctx, testTenant, big, "big.pdf")
	assert.ErrorIs(t, err, permit.ErrInvalidArgument)
}
