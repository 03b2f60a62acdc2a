package simplemedia

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Service is the media upload and retrieval API.
type Service interface {
	// Upload validates, hashes and stores a file, deduplicating by content hash.
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)

	GetMedia(ctx context.Context, id uuid.UUID) (*Media, error)
	ListMedia(ctx context.Context, req ListMediaRequest) ([]*Media, error)

	// Download streams the stored bytes of a record. The caller closes the reader.
	Download(ctx context.Context, id uuid.UUID) (io.ReadCloser, *Media, error)

	SetActive(ctx context.Context, id uuid.UUID, active bool) (*Media, error)

	// DeleteMedia soft deletes the association. The shared object stays in the store.
	DeleteMedia(ctx context.Context, id uuid.UUID) error

	// GetURL returns the retrieval URL of a record.
	GetURL(ctx context.Context, media *Media) (string, error)
}

// Repository persists media records.
//
// Find methods return nil, nil on a miss. Create returns ErrDuplicateMedia
// when a live record already associates the hash with the entity.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*Media, error)
	FindByHashAndAssociation(ctx context.Context, hash string, entityID int64, entityType string) (*Media, error)

	Create(ctx context.Context, media *Media) error
	Get(ctx context.Context, id uuid.UUID) (*Media, error)
	ListByEntity(ctx context.Context, entityType string, entityID int64, includeInactive bool) ([]*Media, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// BlobStore defines the interface for storage backends
type BlobStore interface {
	// UploadWithParams writes the reader's bytes under params.ObjectKey
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download opens the object for reading
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// GetObjectMeta returns ErrObjectNotFound (wrapped) for missing keys
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)

	// GetDownloadURL returns a direct URL for the object, when the backend has one
	GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error)

	Delete(ctx context.Context, objectKey string) error
}

// EventSink receives upload lifecycle events. Errors are logged, never returned to callers.
type EventSink interface {
	// MediaStored fires after bytes were written and the first record persisted.
	MediaStored(ctx context.Context, media *Media) error

	// MediaAssociated fires when known content was linked to a new entity.
	MediaAssociated(ctx context.Context, media *Media) error

	// MediaDuplicate fires when an upload matched an existing association.
	MediaDuplicate(ctx context.Context, media *Media) error

	// UploadFailed fires for every failed upload.
	UploadFailed(ctx context.Context, req *UploadRequest, err error) error

	MediaDeleted(ctx context.Context, id uuid.UUID) error
}

// URLStrategy builds retrieval URLs for records.
type URLStrategy interface {
	GenerateDownloadURL(ctx context.Context, mediaID uuid.UUID, objectKey string, storageBackend string) (string, error)
}

// ObjectKeyGenerator derives blob store keys from content hashes.
type ObjectKeyGenerator interface {
	GenerateKey(contentHash string) string
}
