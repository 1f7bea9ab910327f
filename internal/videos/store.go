package videos

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/clipforge/backend/internal/models"
)

// ErrNotFound is returned when no video matches the given key.
var ErrNotFound = errors.New("video not found")

// Store is the durable video record store. Mutations triggered by webhook
// events must be atomic conditional updates: deliveries arrive concurrently,
// out of order and possibly duplicated, and a plain read-then-write would
// lose updates.
type Store interface {
	// Create inserts a new record; upload IDs are unique.
	Create(ctx context.Context, v *models.Video) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	GetByUploadID(ctx context.Context, uploadID string) (*models.Video, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Video, error)

	// MarkAssetCreated records the asset ID (first writer wins) and promotes
	// the state to pending unless the record is already ready.
	MarkAssetCreated(ctx context.Context, uploadID, assetID string) (*models.Video, error)
	// MarkReady unconditionally sets playback ID, thumbnail, duration and the
	// ready state. The ready event is authoritative regardless of current
	// state, and reapplying it is a no-op drift-wise.
	MarkReady(ctx context.Context, uploadID, assetID, playbackID, thumbnailURL string, duration float64) (*models.Video, error)
	// SetMP4Filename records the chosen downloadable rendition.
	SetMP4Filename(ctx context.Context, uploadID, name string) (*models.Video, error)
	// SetArchiveKey records where the rendition was archived.
	SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error
}
