package memory_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/simplemedia"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

var _ simplemedia.BlobStore = (*memorystorage.Backend)(nil)

func TestMemoryBackend(t *testing.T) {
	backend := memorystorage.New()
	ctx := context.Background()
	testKey := "media/objects/ab/cd/abcd"
	testData := "Hello, World! This is test data."

	t.Run("UploadWithParams", func(t *testing.T) {
		err := backend.UploadWithParams(ctx, strings.NewReader(testData), simplemedia.UploadParams{
			ObjectKey: testKey,
			MimeType:  "image/png",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, backend.Writes())
	})

	t.Run("GetObjectMeta", func(t *testing.T) {
		meta, err := backend.GetObjectMeta(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, testKey, meta.Key)
		assert.Equal(t, int64(len(testData)), meta.Size)
		assert.Equal(t, "image/png", meta.ContentType)
		assert.False(t, meta.UpdatedAt.IsZero())
	})

	t.Run("Download", func(t *testing.T) {
		reader, err := backend.Download(ctx, testKey)
		require.NoError(t, err)
		defer reader.Close()

		downloaded, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, testData, string(downloaded))
	})

	t.Run("default mime type", func(t *testing.T) {
		err := backend.UploadWithParams(ctx, strings.NewReader("x"), simplemedia.UploadParams{ObjectKey: "plain"})
		require.NoError(t, err)
		meta, err := backend.GetObjectMeta(ctx, "plain")
		require.NoError(t, err)
		assert.Equal(t, simplemedia.DefaultContentType, meta.ContentType)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, testKey))

		_, err := backend.GetObjectMeta(ctx, testKey)
		assert.ErrorIs(t, err, simplemedia.ErrObjectNotFound)
		_, err = backend.Download(ctx, testKey)
		assert.ErrorIs(t, err, simplemedia.ErrObjectNotFound)
		assert.ErrorIs(t, backend.Delete(ctx, testKey), simplemedia.ErrObjectNotFound)
	})

	t.Run("GetDownloadURL unsupported", func(t *testing.T) {
		_, err := backend.GetDownloadURL(ctx, "plain", "a.png")
		assert.Error(t, err)
	})
}

func TestMemoryBackend_Concurrent(t *testing.T) {
	backend := memorystorage.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i%5)
			_ = backend.UploadWithParams(ctx, strings.NewReader("data"), simplemedia.UploadParams{ObjectKey: key})
			_, _ = backend.GetObjectMeta(ctx, key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, backend.Writes())
	assert.Equal(t, 5, backend.Len())
}
