package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

func runIntegration(t *testing.T, databaseURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		t.Skipf("postgres not available: %v", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()
	require.NoError(t, Migrate(ctx, sqlDB))

	repo := NewWithPool(pool)
	hash := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")[:64]
	entityID := time.Now().UnixNano()

	newMedia := func(entityID int64) *simplemedia.Media {
		now := time.Now().UTC().Truncate(time.Microsecond)
		return &simplemedia.Media{
			ID: uuid.New(), ContentHash: hash, StorageBackend: "memory",
			ObjectKey: "media/objects/" + hash, MimeType: "image/png", SizeBytes: 3,
			FileName: "a.png", EntityType: "product", EntityID: entityID,
			Primary: true, Active: true, Image: &simplemedia.Image{Width: 1, Height: 1, Format: "png"},
			CreatedAt: now, UpdatedAt: now,
		}
	}

	first := newMedia(entityID)
	require.NoError(t, repo.Create(ctx, first))
	assert.ErrorIs(t, repo.Create(ctx, newMedia(entityID)), simplemedia.ErrDuplicateMedia)

	second := newMedia(entityID + 1)
	require.NoError(t, repo.Create(ctx, second))

	found, err := repo.FindByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	assoc, err := repo.FindByHashAndAssociation(ctx, hash, entityID+1, "product")
	require.NoError(t, err)
	require.NotNil(t, assoc)
	assert.Equal(t, second.ID, assoc.ID)
	assert.Equal(t, 1, assoc.Image.Width)

	require.NoError(t, repo.SetActive(ctx, first.ID, false))
	items, err := repo.ListByEntity(ctx, "product", entityID, false)
	require.NoError(t, err)
	assert.Empty(t, items)
	items, err = repo.ListByEntity(ctx, "product", entityID, true)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, repo.Delete(ctx, first.ID))
	_, err = repo.Get(ctx, first.ID)
	assert.Equal(t, simplemedia.ErrMediaNotFound, err)
	require.NoError(t, repo.Create(ctx, newMedia(entityID)))
}
