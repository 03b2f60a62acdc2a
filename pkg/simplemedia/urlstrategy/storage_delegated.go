package urlstrategy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// BlobStore is the part of a storage backend this package needs
type BlobStore interface {
	GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error)
}

// StorageDelegatedStrategy asks the record's storage backend for a direct
// URL, e.g. an S3 presigned GET.
type StorageDelegatedStrategy struct {
	BlobStores map[string]BlobStore
}

// NewStorageDelegatedStrategy creates a new storage-delegated URL strategy
func NewStorageDelegatedStrategy(blobStores map[string]BlobStore) *StorageDelegatedStrategy {
	return &StorageDelegatedStrategy{
		BlobStores: blobStores,
	}
}

func (s *StorageDelegatedStrategy) GenerateDownloadURL(ctx context.Context, mediaID uuid.UUID, objectKey string, storageBackend string) (string, error) {
	backend, exists := s.BlobStores[storageBackend]
	if !exists {
		return "", fmt.Errorf("storage backend %s not found", storageBackend)
	}
	return backend.GetDownloadURL(ctx, objectKey, "")
}
