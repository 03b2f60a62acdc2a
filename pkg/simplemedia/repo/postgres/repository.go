package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// UniqueAssociationIndex guards one live record per (hash, entity).
const UniqueAssociationIndex = "uq_media_hash_entity"

// Repository implements simplemedia.Repository using PostgreSQL.
//
// Stored content lives in media_blobs, one row per content hash. Each
// association with an entity is a row in media.
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if pgErr.ConstraintName == UniqueAssociationIndex {
				return simplemedia.ErrDuplicateMedia
			}
			return fmt.Errorf("duplicate entry on %s: %w", pgErr.ConstraintName, err)
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced record not found: %w", err)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing: %w", pgErr.ColumnName, err)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required: %w", err)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s): %w", operation, pgErr.Message, pgErr.Code, err)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

const selectMedia = `
	SELECT m.id, m.content_hash, b.storage_backend, b.object_key, b.mime_type, b.size_bytes,
	       m.file_name, m.entity_type, m.entity_id, m.sort_order, m.is_primary, m.active,
	       m.request_id, m.uploaded_by,
	       b.image_width, b.image_height, b.image_format, b.video_container,
	       m.created_at, m.updated_at, m.deleted_at
	FROM media m
	JOIN media_blobs b ON b.content_hash = m.content_hash`

func scanMedia(row pgx.Row) (*simplemedia.Media, error) {
	var (
		m              simplemedia.Media
		width, height  *int
		imageFormat    *string
		videoContainer *string
	)
	err := row.Scan(
		&m.ID, &m.ContentHash, &m.StorageBackend, &m.ObjectKey, &m.MimeType, &m.SizeBytes,
		&m.FileName, &m.EntityType, &m.EntityID, &m.SortOrder, &m.Primary, &m.Active,
		&m.RequestID, &m.UploadedBy,
		&width, &height, &imageFormat, &videoContainer,
		&m.CreatedAt, &m.UpdatedAt, &m.DeletedAt)
	if err != nil {
		return nil, err
	}

	if width != nil || height != nil || imageFormat != nil {
		m.Image = &simplemedia.Image{}
		if width != nil {
			m.Image.Width = *width
		}
		if height != nil {
			m.Image.Height = *height
		}
		if imageFormat != nil {
			m.Image.Format = *imageFormat
		}
	}
	if videoContainer != nil {
		m.Video = &simplemedia.Video{Container: *videoContainer}
	}
	return &m, nil
}

// blobColumns flattens the optional attribute structs into nullable column values.
func blobColumns(m *simplemedia.Media) (width, height *int, imageFormat, videoContainer *string) {
	if m.Image != nil {
		width, height = &m.Image.Width, &m.Image.Height
		if m.Image.Format != "" {
			imageFormat = &m.Image.Format
		}
	}
	if m.Video != nil {
		videoContainer = &m.Video.Container
	}
	return
}

// Hash lookups

// FindByHash returns the oldest record for the hash, deleted or not.
func (r *Repository) FindByHash(ctx context.Context, hash string) (*simplemedia.Media, error) {
	query := selectMedia + `
		WHERE m.content_hash = $1
		ORDER BY m.created_at ASC
		LIMIT 1`

	m, err := scanMedia(r.db.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, r.handlePostgresError("find by hash", err)
	}
	return m, nil
}

func (r *Repository) FindByHashAndAssociation(ctx context.Context, hash string, entityID int64, entityType string) (*simplemedia.Media, error) {
	query := selectMedia + `
		WHERE m.content_hash = $1 AND m.entity_type = $2 AND m.entity_id = $3
		  AND m.deleted_at IS NULL`

	m, err := scanMedia(r.db.QueryRow(ctx, query, hash, entityType, entityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, r.handlePostgresError("find by association", err)
	}
	return m, nil
}

// Record operations

// Create inserts the blob row (if the hash is new) and the association row
// in one transaction. A primary record clears the entity's other primaries.
func (r *Repository) Create(ctx context.Context, media *simplemedia.Media) error {
	width, height, imageFormat, videoContainer := blobColumns(media)

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO media_blobs (
				content_hash, storage_backend, object_key, mime_type, size_bytes,
				image_width, image_height, image_format, video_container, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (content_hash) DO NOTHING`,
			media.ContentHash, media.StorageBackend, media.ObjectKey, media.MimeType, media.SizeBytes,
			width, height, imageFormat, videoContainer, media.CreatedAt)
		if err != nil {
			return err
		}

		if media.Primary {
			_, err = tx.Exec(ctx, `
				UPDATE media SET is_primary = FALSE, updated_at = $3
				WHERE entity_type = $1 AND entity_id = $2 AND is_primary AND deleted_at IS NULL`,
				media.EntityType, media.EntityID, media.UpdatedAt)
			if err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO media (
				id, content_hash, entity_type, entity_id, sort_order, is_primary, active,
				file_name, request_id, uploaded_by, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			media.ID, media.ContentHash, media.EntityType, media.EntityID, media.SortOrder,
			media.Primary, media.Active, media.FileName, media.RequestID, media.UploadedBy,
			media.CreatedAt, media.UpdatedAt)
		return err
	})
	if err != nil {
		return r.handlePostgresError("create media", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*simplemedia.Media, error) {
	query := selectMedia + ` WHERE m.id = $1 AND m.deleted_at IS NULL`

	m, err := scanMedia(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplemedia.ErrMediaNotFound
		}
		return nil, r.handlePostgresError("get media", err)
	}
	return m, nil
}

func (r *Repository) ListByEntity(ctx context.Context, entityType string, entityID int64, includeInactive bool) ([]*simplemedia.Media, error) {
	query := selectMedia + `
		WHERE m.entity_type = $1 AND m.entity_id = $2 AND m.deleted_at IS NULL
		  AND ($3::boolean OR m.active)
		ORDER BY m.sort_order ASC, m.created_at ASC`

	rows, err := r.db.Query(ctx, query, entityType, entityID, includeInactive)
	if err != nil {
		return nil, r.handlePostgresError("list media", err)
	}
	defer rows.Close()

	var items []*simplemedia.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan media", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list media", err)
	}
	return items, nil
}

func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE media SET active = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL`,
		id, active, time.Now().UTC())
	if err != nil {
		return r.handlePostgresError("set active", err)
	}
	if tag.RowsAffected() == 0 {
		return simplemedia.ErrMediaNotFound
	}
	return nil
}

// Delete soft deletes the association. The blob row is kept.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE media SET deleted_at = $2, updated_at = $2, is_primary = FALSE
		WHERE id = $1 AND deleted_at IS NULL`,
		id, now)
	if err != nil {
		return r.handlePostgresError("delete media", err)
	}
	if tag.RowsAffected() == 0 {
		return simplemedia.ErrMediaNotFound
	}
	return nil
}

var _ simplemedia.Repository = (*Repository)(nil)
