package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Repository implements simplemedia.Repository using in-memory storage
type Repository struct {
	mu     sync.RWMutex
	media  map[uuid.UUID]*simplemedia.Media
	byHash map[string][]uuid.UUID // content_hash -> media ids in creation order
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		media:  make(map[uuid.UUID]*simplemedia.Media),
		byHash: make(map[string][]uuid.UUID),
	}
}

func copyMedia(m *simplemedia.Media) *simplemedia.Media {
	c := *m
	if m.Image != nil {
		img := *m.Image
		c.Image = &img
	}
	if m.Video != nil {
		v := *m.Video
		c.Video = &v
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// FindByHash returns the first record ever created for the hash. Deleted
// records count: their object is still resident in the blob store.
func (r *Repository) FindByHash(ctx context.Context, hash string) (*simplemedia.Media, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byHash[hash]
	if len(ids) == 0 {
		return nil, nil
	}
	return copyMedia(r.media[ids[0]]), nil
}

func (r *Repository) FindByHashAndAssociation(ctx context.Context, hash string, entityID int64, entityType string) (*simplemedia.Media, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m := r.findLive(hash, entityID, entityType); m != nil {
		return copyMedia(m), nil
	}
	return nil, nil
}

// findLive must be called with the lock held.
func (r *Repository) findLive(hash string, entityID int64, entityType string) *simplemedia.Media {
	for _, id := range r.byHash[hash] {
		m := r.media[id]
		if m.DeletedAt == nil && m.EntityID == entityID && m.EntityType == entityType {
			return m
		}
	}
	return nil
}

func (r *Repository) Create(ctx context.Context, media *simplemedia.Media) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findLive(media.ContentHash, media.EntityID, media.EntityType) != nil {
		return simplemedia.ErrDuplicateMedia
	}

	if media.Primary {
		r.clearPrimary(media.EntityType, media.EntityID)
	}

	r.media[media.ID] = copyMedia(media)
	r.byHash[media.ContentHash] = append(r.byHash[media.ContentHash], media.ID)
	return nil
}

// clearPrimary must be called with the write lock held.
func (r *Repository) clearPrimary(entityType string, entityID int64) {
	now := time.Now().UTC()
	for _, m := range r.media {
		if m.Primary && m.EntityType == entityType && m.EntityID == entityID && m.DeletedAt == nil {
			m.Primary = false
			m.UpdatedAt = now
		}
	}
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*simplemedia.Media, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.media[id]
	if !exists || m.DeletedAt != nil {
		return nil, simplemedia.ErrMediaNotFound
	}
	return copyMedia(m), nil
}

func (r *Repository) ListByEntity(ctx context.Context, entityType string, entityID int64, includeInactive bool) ([]*simplemedia.Media, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*simplemedia.Media
	for _, m := range r.media {
		if m.EntityType != entityType || m.EntityID != entityID || m.DeletedAt != nil {
			continue
		}
		if !includeInactive && !m.Active {
			continue
		}
		out = append(out, copyMedia(m))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, exists := r.media[id]
	if !exists || m.DeletedAt != nil {
		return simplemedia.ErrMediaNotFound
	}
	m.Active = active
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, exists := r.media[id]
	if !exists || m.DeletedAt != nil {
		return simplemedia.ErrMediaNotFound
	}
	now := time.Now().UTC()
	m.DeletedAt = &now
	m.Primary = false
	m.UpdatedAt = now
	return nil
}
