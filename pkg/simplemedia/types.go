package simplemedia

import (
	"time"

	"github.com/google/uuid"
)

// UploadOutcome records which branch of the dedup flow an upload took.
type UploadOutcome string

const (
	// OutcomeCreated: first time the content was seen, bytes were written.
	OutcomeCreated UploadOutcome = "created"
	// OutcomeAssociated: content already stored, a new association row was created.
	OutcomeAssociated UploadOutcome = "associated"
	// OutcomeDuplicate: content already associated with the entity, nothing changed.
	OutcomeDuplicate UploadOutcome = "duplicate"
)

// Image holds attributes of image content.
type Image struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format,omitempty"`
}

// Video holds attributes of video content.
type Video struct {
	Container string `json:"container,omitempty"`
}

// Media is one stored file as associated with one owning entity.
//
// Records sharing a ContentHash share the same ObjectKey. Content is
// immutable; only Active and DeletedAt change after creation.
type Media struct {
	ID             uuid.UUID  `json:"id"`
	ContentHash    string     `json:"content_hash"`
	StorageBackend string     `json:"storage_backend"`
	ObjectKey      string     `json:"object_key"`
	MimeType       string     `json:"mime_type"`
	SizeBytes      int64      `json:"size_bytes"`
	FileName       string     `json:"file_name"`
	EntityType     string     `json:"entity_type"`
	EntityID       int64      `json:"entity_id"`
	SortOrder      int        `json:"sort_order"`
	Primary        bool       `json:"primary"`
	Active         bool       `json:"active"`
	RequestID      string     `json:"request_id,omitempty"`
	UploadedBy     string     `json:"uploaded_by,omitempty"`
	Image          *Image     `json:"image,omitempty"`
	Video          *Video     `json:"video,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the record was soft deleted.
func (m *Media) IsDeleted() bool {
	return m.DeletedAt != nil
}

// UploadRequest is the transient input of Service.Upload.
type UploadRequest struct {
	Data []byte `validate:"-"`

	FileName    string `json:"file_name" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"omitempty,max=127"`
	EntityType  string `json:"entity_type" validate:"required,max=64"`
	EntityID    int64  `json:"entity_id" validate:"gt=0"`
	SortOrder   int    `json:"sort_order" validate:"gte=0,lte=2147483647"`
	Primary     bool   `json:"primary"`

	// RequestID is the caller's idempotency token. It is recorded for audit
	// and is not part of the dedup key.
	RequestID  string `json:"request_id" validate:"omitempty,max=128"`
	UploadedBy string `json:"uploaded_by" validate:"omitempty,max=128"`
}

// UploadResult is returned by Service.Upload.
type UploadResult struct {
	Media   *Media
	URL     string
	Outcome UploadOutcome
	Message string
}

// ListMediaRequest selects the media of one entity.
type ListMediaRequest struct {
	EntityType      string
	EntityID        int64
	IncludeInactive bool
}

// UploadParams describes a blob store write.
type UploadParams struct {
	ObjectKey   string
	MimeType    string
	Size        int64
	ContentHash string
}

// ObjectMeta describes an object held by a blob store.
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}
