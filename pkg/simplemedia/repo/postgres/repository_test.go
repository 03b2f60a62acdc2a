package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// fakeRow feeds values positionally into Scan destinations.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations, %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		v := r.values[i]
		switch p := d.(type) {
		case *uuid.UUID:
			*p = v.(uuid.UUID)
		case *string:
			*p = v.(string)
		case *int64:
			*p = v.(int64)
		case *int:
			*p = v.(int)
		case *bool:
			*p = v.(bool)
		case *time.Time:
			*p = v.(time.Time)
		case **int:
			if v != nil {
				n := v.(int)
				*p = &n
			}
		case **string:
			if v != nil {
				s := v.(string)
				*p = &s
			}
		case **time.Time:
			if v != nil {
				t := v.(time.Time)
				*p = &t
			}
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

type fakeDB struct {
	row      pgx.Row
	execTag  pgconn.CommandTag
	execErr  error
	beginErr error
	lastSQL  string
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.lastSQL = sql
	return f.execTag, f.execErr
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	f.lastSQL = sql
	return f.row
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, f.beginErr
}

func mediaRow(id uuid.UUID, width any, format any, container any) fakeRow {
	now := time.Now().UTC()
	return fakeRow{values: []any{
		id, strings.Repeat("a", 64), "s3", "media/objects/aa/aa/" + strings.Repeat("a", 64), "image/png", int64(42),
		"a.png", "product", int64(5), 1, true, true,
		"req-1", "user-1",
		width, width, format, container,
		now, now, nil,
	}}
}

func TestRepository_HandlePostgresError(t *testing.T) {
	r := &Repository{}

	t.Run("AssociationUniqueViolation", func(t *testing.T) {
		err := r.handlePostgresError("create media", &pgconn.PgError{Code: "23505", ConstraintName: UniqueAssociationIndex})
		assert.ErrorIs(t, err, simplemedia.ErrDuplicateMedia)
	})

	t.Run("OtherUniqueViolation", func(t *testing.T) {
		err := r.handlePostgresError("create media", &pgconn.PgError{Code: "23505", ConstraintName: "media_pkey"})
		assert.NotErrorIs(t, err, simplemedia.ErrDuplicateMedia)
		assert.Contains(t, err.Error(), "media_pkey")
	})

	t.Run("UndefinedTable", func(t *testing.T) {
		err := r.handlePostgresError("get media", &pgconn.PgError{Code: "42P01"})
		assert.Contains(t, err.Error(), "migration required")
	})

	t.Run("Plain", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := r.handlePostgresError("get media", cause)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "get media")
	})
}

func TestRepository_Lookups(t *testing.T) {
	ctx := context.Background()

	t.Run("FindByHash_Miss", func(t *testing.T) {
		r := New(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})
		m, err := r.FindByHash(ctx, "x")
		assert.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("FindByHashAndAssociation_Miss", func(t *testing.T) {
		r := New(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})
		m, err := r.FindByHashAndAssociation(ctx, "x", 1, "product")
		assert.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("Get_NotFound", func(t *testing.T) {
		r := New(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})
		_, err := r.Get(ctx, uuid.New())
		assert.Equal(t, simplemedia.ErrMediaNotFound, err)
	})

	t.Run("Get_ImageRecord", func(t *testing.T) {
		id := uuid.New()
		db := &fakeDB{row: mediaRow(id, 640, "png", nil)}
		m, err := New(db).Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, m.ID)
		assert.Equal(t, int64(5), m.EntityID)
		require.NotNil(t, m.Image)
		assert.Equal(t, 640, m.Image.Width)
		assert.Equal(t, "png", m.Image.Format)
		assert.Nil(t, m.Video)
		assert.Nil(t, m.DeletedAt)
		assert.Contains(t, db.lastSQL, "deleted_at IS NULL")
	})

	t.Run("Get_VideoRecord", func(t *testing.T) {
		id := uuid.New()
		m, err := New(&fakeDB{row: mediaRow(id, nil, nil, "mp4")}).Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, m.Image)
		require.NotNil(t, m.Video)
		assert.Equal(t, "mp4", m.Video.Container)
	})
}

func TestRepository_Writes(t *testing.T) {
	ctx := context.Background()

	t.Run("SetActive_NotFound", func(t *testing.T) {
		r := New(&fakeDB{execTag: pgconn.NewCommandTag("UPDATE 0")})
		assert.Equal(t, simplemedia.ErrMediaNotFound, r.SetActive(ctx, uuid.New(), false))
	})

	t.Run("SetActive", func(t *testing.T) {
		r := New(&fakeDB{execTag: pgconn.NewCommandTag("UPDATE 1")})
		assert.NoError(t, r.SetActive(ctx, uuid.New(), false))
	})

	t.Run("Delete_IsSoft", func(t *testing.T) {
		db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 1")}
		require.NoError(t, New(db).Delete(ctx, uuid.New()))
		assert.Contains(t, db.lastSQL, "SET deleted_at")
	})

	t.Run("Create_BeginFailure", func(t *testing.T) {
		cause := errors.New("pool closed")
		err := New(&fakeDB{beginErr: cause}).Create(ctx, &simplemedia.Media{ID: uuid.New()})
		assert.ErrorIs(t, err, cause)
	})
}

func TestBlobColumns(t *testing.T) {
	w, h, f, c := blobColumns(&simplemedia.Media{})
	assert.Nil(t, w)
	assert.Nil(t, h)
	assert.Nil(t, f)
	assert.Nil(t, c)

	w, h, f, c = blobColumns(&simplemedia.Media{
		Image: &simplemedia.Image{Width: 3, Height: 2},
		Video: &simplemedia.Video{Container: "webm"},
	})
	require.NotNil(t, w)
	assert.Equal(t, 3, *w)
	assert.Equal(t, 2, *h)
	assert.Nil(t, f)
	assert.Equal(t, "webm", *c)
}

func TestValidate_EmbeddedMigrationsParse(t *testing.T) {
	require.NoError(t, Validate())
}

func TestEnsureSchema_EmptyIsNoop(t *testing.T) {
	require.NoError(t, EnsureSchema(context.Background(), nil, ""))
}

func TestMigrations_Embedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir(MigrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, e := range entries {
		data, err := migrationsFS.ReadFile(MigrationsDir + "/" + e.Name())
		require.NoError(t, err)
		content := string(data)
		assert.Contains(t, content, "-- +goose Up", e.Name())
		assert.Contains(t, content, "-- +goose Down", e.Name())
	}

	data, err := migrationsFS.ReadFile(MigrationsDir + "/" + entries[0].Name())
	require.NoError(t, err)
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS media_blobs",
		"CREATE TABLE IF NOT EXISTS media",
		"CREATE UNIQUE INDEX IF NOT EXISTS " + UniqueAssociationIndex,
		"WHERE deleted_at IS NULL",
	} {
		assert.Contains(t, string(data), want)
	}
}

func TestMigrateToVersion_InvalidVersion(t *testing.T) {
	err := MigrateToVersion(context.Background(), nil, "latest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid version")
}

func TestRun_RequiresDB(t *testing.T) {
	assert.Error(t, Run(context.Background(), nil, "up"))
}

func TestIntegration_PostgresRepository(t *testing.T) {
	if os.Getenv("MEDIA_TEST_DATABASE_URL") == "" {
		t.Skip("Skipping Postgres integration test. Set MEDIA_TEST_DATABASE_URL to run.")
	}
	runIntegration(t, os.Getenv("MEDIA_TEST_DATABASE_URL"))
}
