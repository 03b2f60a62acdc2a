package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
)

func newMedia(hash, entityType string, entityID int64) *simplemedia.Media {
	now := time.Now().UTC()
	return &simplemedia.Media{
		ID:             uuid.New(),
		ContentHash:    hash,
		StorageBackend: "memory",
		ObjectKey:      "media/objects/" + hash,
		MimeType:       "image/png",
		SizeBytes:      10,
		FileName:       "a.png",
		EntityType:     entityType,
		EntityID:       entityID,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestMemoryRepository_HashLookups(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	t.Run("Miss", func(t *testing.T) {
		m, err := repo.FindByHash(ctx, "nope")
		assert.NoError(t, err)
		assert.Nil(t, m)

		m, err = repo.FindByHashAndAssociation(ctx, "nope", 1, "product")
		assert.NoError(t, err)
		assert.Nil(t, m)
	})

	first := newMedia("h1", "product", 5)
	require.NoError(t, repo.Create(ctx, first))
	second := newMedia("h1", "product", 7)
	require.NoError(t, repo.Create(ctx, second))

	t.Run("FindByHash_ReturnsFirst", func(t *testing.T) {
		m, err := repo.FindByHash(ctx, "h1")
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, first.ID, m.ID)
	})

	t.Run("FindByHashAndAssociation", func(t *testing.T) {
		m, err := repo.FindByHashAndAssociation(ctx, "h1", 7, "product")
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, second.ID, m.ID)

		m, err = repo.FindByHashAndAssociation(ctx, "h1", 7, "user")
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("DeletedAssociationIsIgnored", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, second.ID))

		m, err := repo.FindByHashAndAssociation(ctx, "h1", 7, "product")
		require.NoError(t, err)
		assert.Nil(t, m)

		// The blob is still resident, so the hash is still known.
		m, err = repo.FindByHash(ctx, "h1")
		require.NoError(t, err)
		assert.NotNil(t, m)

		require.NoError(t, repo.Create(ctx, newMedia("h1", "product", 7)))
	})
}

func TestMemoryRepository_Create(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	t.Run("DuplicateAssociation", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newMedia("dup", "product", 1)))
		err := repo.Create(ctx, newMedia("dup", "product", 1))
		assert.ErrorIs(t, err, simplemedia.ErrDuplicateMedia)
	})

	t.Run("StoredCopyIsIsolated", func(t *testing.T) {
		m := newMedia("iso", "product", 2)
		m.Image = &simplemedia.Image{Width: 4, Height: 3, Format: "png"}
		require.NoError(t, repo.Create(ctx, m))

		m.FileName = "changed.png"
		m.Image.Width = 99

		got, err := repo.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "a.png", got.FileName)
		assert.Equal(t, 4, got.Image.Width)
	})

	t.Run("PrimaryIsExclusive", func(t *testing.T) {
		a := newMedia("p1", "gallery", 9)
		a.Primary = true
		require.NoError(t, repo.Create(ctx, a))

		b := newMedia("p2", "gallery", 9)
		b.Primary = true
		require.NoError(t, repo.Create(ctx, b))

		gotA, err := repo.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, gotA.Primary)

		gotB, err := repo.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, gotB.Primary)
	})
}

func TestMemoryRepository_ListByEntity(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	base := time.Now().UTC()
	third := newMedia("c", "product", 3)
	third.SortOrder = 2
	first := newMedia("a", "product", 3)
	first.SortOrder = 0
	first.CreatedAt = base.Add(time.Second)
	second := newMedia("b", "product", 3)
	second.SortOrder = 0
	second.CreatedAt = base.Add(2 * time.Second)
	hidden := newMedia("d", "product", 3)
	hidden.SortOrder = 1
	other := newMedia("a", "product", 4)

	for _, m := range []*simplemedia.Media{third, first, second, hidden, other} {
		require.NoError(t, repo.Create(ctx, m))
	}
	require.NoError(t, repo.SetActive(ctx, hidden.ID, false))

	t.Run("ActiveOnly", func(t *testing.T) {
		items, err := repo.ListByEntity(ctx, "product", 3, false)
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, first.ID, items[0].ID)
		assert.Equal(t, second.ID, items[1].ID)
		assert.Equal(t, third.ID, items[2].ID)
	})

	t.Run("IncludeInactive", func(t *testing.T) {
		items, err := repo.ListByEntity(ctx, "product", 3, true)
		require.NoError(t, err)
		require.Len(t, items, 4)
		assert.Equal(t, hidden.ID, items[2].ID)
		assert.False(t, items[2].Active)
	})

	t.Run("Empty", func(t *testing.T) {
		items, err := repo.ListByEntity(ctx, "user", 3, true)
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestMemoryRepository_Lifecycle(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	m := newMedia("life", "product", 1)
	require.NoError(t, repo.Create(ctx, m))

	t.Run("SetActive", func(t *testing.T) {
		require.NoError(t, repo.SetActive(ctx, m.ID, false))
		got, err := repo.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.False(t, got.Active)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, m.ID))

		_, err := repo.Get(ctx, m.ID)
		assert.Equal(t, simplemedia.ErrMediaNotFound, err)

		assert.Equal(t, simplemedia.ErrMediaNotFound, repo.Delete(ctx, m.ID))
		assert.Equal(t, simplemedia.ErrMediaNotFound, repo.SetActive(ctx, m.ID, true))
	})

	t.Run("UnknownID", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.New())
		assert.Equal(t, simplemedia.ErrMediaNotFound, err)
	})
}
