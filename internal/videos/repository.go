package videos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipforge/backend/internal/models"
)

// Repository is the PostgreSQL-backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

// NewRepository creates a videos repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const videoColumns = `id, user_id, upload_id, COALESCE(asset_id,''), COALESCE(playback_id,''), state,
	COALESCE(mp4_filename,''), COALESCE(thumbnail_url,''), COALESCE(duration,0), COALESCE(archive_s3_key,''),
	created_at, updated_at`

func scanVideo(row pgx.Row) (*models.Video, error) {
	var v models.Video
	err := row.Scan(&v.ID, &v.UserID, &v.UploadID, &v.AssetID, &v.PlaybackID, &v.State,
		&v.MP4Filename, &v.ThumbnailURL, &v.Duration, &v.ArchiveS3Key, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// Create inserts a new video record.
func (r *Repository) Create(ctx context.Context, v *models.Video) error {
	const q = `INSERT INTO videos (id, user_id, upload_id, state)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, v.UserID, v.UploadID, v.State).
		Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

// GetByID returns a video by internal ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	const q = `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`
	return scanVideo(r.pool.QueryRow(ctx, q, id))
}

// GetByUploadID returns a video by its provider upload ID.
func (r *Repository) GetByUploadID(ctx context.Context, uploadID string) (*models.Video, error) {
	const q = `SELECT ` + videoColumns + ` FROM videos WHERE upload_id = $1`
	return scanVideo(r.pool.QueryRow(ctx, q, uploadID))
}

// ListByUser returns all videos owned by a user, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Video, error) {
	const q = `SELECT ` + videoColumns + ` FROM videos WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Video
	for rows.Next() {
		var v models.Video
		if err := rows.Scan(&v.ID, &v.UserID, &v.UploadID, &v.AssetID, &v.PlaybackID, &v.State,
			&v.MP4Filename, &v.ThumbnailURL, &v.Duration, &v.ArchiveS3Key, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

// MarkAssetCreated records the asset ID (keeping any already-set value) and
// promotes to pending. The state guard lives in the UPDATE itself so a late
// asset_created can never demote a record that raced to ready.
func (r *Repository) MarkAssetCreated(ctx context.Context, uploadID, assetID string) (*models.Video, error) {
	const q = `UPDATE videos
		SET asset_id = COALESCE(NULLIF(asset_id,''), NULLIF($2,'')),
		    state = CASE WHEN state = 'ready' THEN state ELSE 'pending' END,
		    updated_at = NOW()
		WHERE upload_id = $1
		RETURNING ` + videoColumns
	return scanVideo(r.pool.QueryRow(ctx, q, uploadID, assetID))
}

// MarkReady applies the authoritative ready signal: playback fields and the
// ready state are written unconditionally and identically on redelivery.
func (r *Repository) MarkReady(ctx context.Context, uploadID, assetID, playbackID, thumbnailURL string, duration float64) (*models.Video, error) {
	const q = `UPDATE videos
		SET asset_id = COALESCE(NULLIF(asset_id,''), NULLIF($2,'')),
		    playback_id = $3,
		    thumbnail_url = $4,
		    duration = $5,
		    state = 'ready',
		    updated_at = NOW()
		WHERE upload_id = $1
		RETURNING ` + videoColumns
	return scanVideo(r.pool.QueryRow(ctx, q, uploadID, assetID, playbackID, thumbnailURL, duration))
}

// SetMP4Filename records the chosen downloadable rendition. No state change.
func (r *Repository) SetMP4Filename(ctx context.Context, uploadID, name string) (*models.Video, error) {
	const q = `UPDATE videos SET mp4_filename = $2, updated_at = NOW()
		WHERE upload_id = $1
		RETURNING ` + videoColumns
	return scanVideo(r.pool.QueryRow(ctx, q, uploadID, name))
}

// SetArchiveKey records the S3 key of the archived rendition.
func (r *Repository) SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error {
	const q = `UPDATE videos SET archive_s3_key = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
