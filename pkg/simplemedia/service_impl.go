package simplemedia

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/logger"
	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
	"github.com/tendant/simple-media/pkg/simplemedia/urlstrategy"
)

// service implements the Service interface
type service struct {
	repository     Repository
	blobStores     map[string]BlobStore
	defaultBackend string
	eventSink      EventSink
	urlStrategy    URLStrategy
	keyGenerator   ObjectKeyGenerator
	hasher         *Hasher
	rules          UploadRules
	log            *logger.Logger
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore adds a blob storage backend
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		if s.blobStores == nil {
			s.blobStores = make(map[string]BlobStore)
		}
		s.blobStores[name] = store
	}
}

// WithDefaultBlobStore selects the backend new content is written to
func WithDefaultBlobStore(name string) Option {
	return func(s *service) {
		s.defaultBackend = name
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithURLStrategy sets how retrieval URLs are built
func WithURLStrategy(strategy URLStrategy) Option {
	return func(s *service) {
		s.urlStrategy = strategy
	}
}

// WithObjectKeyGenerator sets how object keys are derived from content hashes
func WithObjectKeyGenerator(gen ObjectKeyGenerator) Option {
	return func(s *service) {
		s.keyGenerator = gen
	}
}

// WithHasher replaces the SHA-256 hasher
func WithHasher(h *Hasher) Option {
	return func(s *service) {
		s.hasher = h
	}
}

// WithUploadRules sets the size limit and declared-type allow list
func WithUploadRules(rules UploadRules) Option {
	return func(s *service) {
		s.rules = rules
	}
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(s *service) {
		s.log = log
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		blobStores: make(map[string]BlobStore),
		rules:      NewUploadRules(0, nil),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if len(s.blobStores) == 0 {
		return nil, fmt.Errorf("at least one blob store is required")
	}
	if s.defaultBackend == "" {
		if len(s.blobStores) != 1 {
			return nil, fmt.Errorf("default blob store must be set when %d stores are registered", len(s.blobStores))
		}
		for name := range s.blobStores {
			s.defaultBackend = name
		}
	}
	if _, ok := s.blobStores[s.defaultBackend]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrStorageBackendNotFound, s.defaultBackend)
	}
	if s.hasher == nil {
		s.hasher = NewSHA256Hasher()
	}
	if s.keyGenerator == nil {
		s.keyGenerator = objectkey.NewShardedGenerator(objectkey.DefaultPrefix)
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.urlStrategy == nil {
		s.urlStrategy = urlstrategy.NewContentBasedStrategy(urlstrategy.DefaultAPIBaseURL)
	}
	if s.log == nil {
		s.log = logger.Nop()
	}

	return s, nil
}

// GetBackend returns the blob store registered under name
func (s *service) GetBackend(name string) (BlobStore, error) {
	store, ok := s.blobStores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStorageBackendNotFound, name)
	}
	return store, nil
}

// Upload operations

func (s *service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	ctx = s.log.WithFields(ctx, map[string]any{
		"entity_type": req.EntityType,
		"entity_id":   req.EntityID,
		"file_name":   req.FileName,
	})
	if req.RequestID != "" {
		ctx = s.log.WithRequestID(ctx, req.RequestID)
	}

	result, err := s.upload(ctx, &req)
	if err != nil {
		if sinkErr := s.eventSink.UploadFailed(ctx, &req, err); sinkErr != nil {
			s.log.Error(ctx, "event sink failed", sinkErr)
		}
		return nil, err
	}
	return result, nil
}

func (s *service) upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	// Nothing below runs for empty files: no sniffing, no hashing.
	var inspection Inspection
	if len(req.Data) > 0 {
		inspection = Inspect(req.Data)
	}
	if violations := s.rules.Validate(req, inspection.SniffedType); len(violations) > 0 {
		return nil, validationFailed("upload", violations)
	}

	hash, err := s.hasher.SumBytes(req.Data)
	if err != nil {
		return nil, processingFailed("hash", "upload", req.FileName, err)
	}
	ctx = s.log.WithField(ctx, "content_hash", hash)

	existing, err := s.repository.FindByHashAndAssociation(ctx, hash, req.EntityID, req.EntityType)
	if err != nil {
		return nil, retryable(processingFailed("find_by_association", "media", hash, err))
	}
	if existing != nil {
		return s.duplicate(ctx, existing)
	}

	stored, err := s.repository.FindByHash(ctx, hash)
	if err != nil {
		return nil, retryable(processingFailed("find_by_hash", "media", hash, err))
	}
	if stored != nil {
		return s.associate(ctx, req, stored)
	}

	return s.store(ctx, req, hash, inspection)
}

// duplicate handles content already associated with the entity.
func (s *service) duplicate(ctx context.Context, existing *Media) (*UploadResult, error) {
	if err := s.eventSink.MediaDuplicate(ctx, existing); err != nil {
		s.log.Error(ctx, "event sink failed", err)
	}
	return s.result(ctx, existing, OutcomeDuplicate, "file already uploaded for this entity")
}

// associate links already stored content to a new entity without touching the blob store.
func (s *service) associate(ctx context.Context, req *UploadRequest, stored *Media) (*UploadResult, error) {
	media := s.newMedia(req, stored.ContentHash, stored.StorageBackend, stored.ObjectKey, stored.MimeType)
	media.SizeBytes = stored.SizeBytes
	media.Image = cloneImage(stored.Image)
	media.Video = cloneVideo(stored.Video)

	if err := s.repository.Create(ctx, media); err != nil {
		if errors.Is(err, ErrDuplicateMedia) {
			return s.lostRace(ctx, req, stored.ContentHash, err)
		}
		return nil, retryable(processingFailed("associate", "media", media.ID.String(), err))
	}

	if err := s.eventSink.MediaAssociated(ctx, media); err != nil {
		s.log.Error(ctx, "event sink failed", err)
	}
	return s.result(ctx, media, OutcomeAssociated, "file linked to existing content")
}

// store writes first-seen content to the blob store and persists its record.
func (s *service) store(ctx context.Context, req *UploadRequest, hash string, inspection Inspection) (*UploadResult, error) {
	blobStore, err := s.GetBackend(s.defaultBackend)
	if err != nil {
		return nil, processingFailed("store", "object", s.defaultBackend, err)
	}

	mimeType := ResolveContentType(req.FileName)
	if mimeType == DefaultContentType && inspection.Video != nil {
		mimeType = inspection.SniffedType
	}
	objectKey := s.keyGenerator.GenerateKey(hash)

	media := s.newMedia(req, hash, s.defaultBackend, objectKey, mimeType)
	media.SizeBytes = int64(len(req.Data))
	media.Image = inspection.Image
	media.Video = inspection.Video

	err = blobStore.UploadWithParams(ctx, bytes.NewReader(req.Data), UploadParams{
		ObjectKey:   objectKey,
		MimeType:    mimeType,
		Size:        media.SizeBytes,
		ContentHash: hash,
	})
	if err != nil {
		return nil, retryable(processingFailed("store", "object", objectKey, err))
	}

	if err := s.repository.Create(ctx, media); err != nil {
		if errors.Is(err, ErrDuplicateMedia) {
			return s.lostRace(ctx, req, hash, err)
		}
		failure := processingFailed("persist", "media", media.ID.String(), err)
		failure.Orphaned = true
		failure.ObjectKey = objectKey
		s.log.Error(s.log.WithFields(ctx, map[string]any{
			"object_key":      objectKey,
			"storage_backend": s.defaultBackend,
		}), "media.orphaned_object", err)
		return nil, failure
	}

	if err := s.eventSink.MediaStored(ctx, media); err != nil {
		s.log.Error(ctx, "event sink failed", err)
	}
	return s.result(ctx, media, OutcomeCreated, "file uploaded")
}

// lostRace resolves a concurrent upload of the same content to the same
// entity: the winner's record is returned.
func (s *service) lostRace(ctx context.Context, req *UploadRequest, hash string, cause error) (*UploadResult, error) {
	winner, err := s.repository.FindByHashAndAssociation(ctx, hash, req.EntityID, req.EntityType)
	if err != nil {
		return nil, retryable(processingFailed("resolve_duplicate", "media", hash, err))
	}
	if winner == nil {
		return nil, retryable(processingFailed("resolve_duplicate", "media", hash, cause))
	}
	s.log.Debug(ctx, "concurrent upload resolved to existing record")
	return s.duplicate(ctx, winner)
}

func (s *service) newMedia(req *UploadRequest, hash, backend, objectKey, mimeType string) *Media {
	now := time.Now().UTC()
	return &Media{
		ID:             uuid.New(),
		ContentHash:    hash,
		StorageBackend: backend,
		ObjectKey:      objectKey,
		MimeType:       mimeType,
		FileName:       req.FileName,
		EntityType:     req.EntityType,
		EntityID:       req.EntityID,
		SortOrder:      req.SortOrder,
		Primary:        req.Primary,
		Active:         true,
		RequestID:      req.RequestID,
		UploadedBy:     req.UploadedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *service) result(ctx context.Context, media *Media, outcome UploadOutcome, message string) (*UploadResult, error) {
	url, err := s.GetURL(ctx, media)
	if err != nil {
		return nil, processingFailed("url", "media", media.ID.String(), err)
	}
	return &UploadResult{
		Media:   media,
		URL:     url,
		Outcome: outcome,
		Message: message,
	}, nil
}

// Read operations

func (s *service) GetMedia(ctx context.Context, id uuid.UUID) (*Media, error) {
	media, err := s.repository.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrMediaNotFound) {
			return nil, notFound("get", "media", id.String(), err)
		}
		return nil, retryable(processingFailed("get", "media", id.String(), err))
	}
	if media == nil || media.IsDeleted() {
		return nil, notFound("get", "media", id.String(), ErrMediaNotFound)
	}
	return media, nil
}

func (s *service) ListMedia(ctx context.Context, req ListMediaRequest) ([]*Media, error) {
	var violations []string
	if req.EntityType == "" {
		violations = append(violations, "entity_type is required")
	}
	if req.EntityID <= 0 {
		violations = append(violations, "entity_id must be greater than 0")
	}
	if len(violations) > 0 {
		return nil, validationFailed("list", violations)
	}

	items, err := s.repository.ListByEntity(ctx, req.EntityType, req.EntityID, req.IncludeInactive)
	if err != nil {
		return nil, retryable(processingFailed("list", "media", fmt.Sprintf("%s/%d", req.EntityType, req.EntityID), err))
	}
	return items, nil
}

func (s *service) Download(ctx context.Context, id uuid.UUID) (io.ReadCloser, *Media, error) {
	media, err := s.GetMedia(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	blobStore, err := s.GetBackend(media.StorageBackend)
	if err != nil {
		return nil, nil, processingFailed("download", "object", media.ObjectKey, err)
	}

	reader, err := blobStore.Download(ctx, media.ObjectKey)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, nil, notFound("download", "object", media.ObjectKey, err)
		}
		return nil, nil, retryable(processingFailed("download", "object", media.ObjectKey, err))
	}
	return reader, media, nil
}

func (s *service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*Media, error) {
	media, err := s.GetMedia(ctx, id)
	if err != nil {
		return nil, err
	}
	if media.Active == active {
		return media, nil
	}

	if err := s.repository.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, ErrMediaNotFound) {
			return nil, notFound("set_active", "media", id.String(), err)
		}
		return nil, retryable(processingFailed("set_active", "media", id.String(), err))
	}
	return s.GetMedia(ctx, id)
}

func (s *service) DeleteMedia(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetMedia(ctx, id); err != nil {
		return err
	}

	if err := s.repository.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrMediaNotFound) {
			return notFound("delete", "media", id.String(), err)
		}
		return retryable(processingFailed("delete", "media", id.String(), err))
	}

	if err := s.eventSink.MediaDeleted(ctx, id); err != nil {
		s.log.Error(ctx, "event sink failed", err)
	}
	return nil
}

func (s *service) GetURL(ctx context.Context, media *Media) (string, error) {
	return s.urlStrategy.GenerateDownloadURL(ctx, media.ID, media.ObjectKey, media.StorageBackend)
}

func retryable(e *Error) *Error {
	e.Retryable = true
	return e
}

func cloneImage(img *Image) *Image {
	if img == nil {
		return nil
	}
	c := *img
	return &c
}

func cloneVideo(v *Video) *Video {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
