package models

import (
	"time"

	"github.com/google/uuid"
)

// Video lifecycle states. Errored is part of the vocabulary but no webhook
// event currently transitions into it; see the provider event docs.
const (
	VideoStateWaiting = "waiting"
	VideoStatePending = "pending"
	VideoStateReady   = "ready"
	VideoStateErrored = "errored"
)

// Video is a user upload tracked through remote transcoding. UploadID is the
// provider's direct upload ID and the correlation key for all webhooks.
type Video struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	UploadID     string    `json:"video_id"`
	AssetID      string    `json:"asset_id,omitempty"`
	PlaybackID   string    `json:"playback_id,omitempty"`
	State        string    `json:"state"`
	MP4Filename  string    `json:"mp4_filename,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Duration     float64   `json:"duration,omitempty"`
	ArchiveS3Key string    `json:"archive_s3_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
