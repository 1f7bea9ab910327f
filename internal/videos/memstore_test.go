package videos

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/backend/internal/models"
)

// memStore is an in-memory Store with the same conditional-update semantics
// as the SQL repository, for handler tests.
type memStore struct {
	mu       sync.Mutex
	byUpload map[string]*models.Video
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{byUpload: make(map[string]*models.Video)}
}

func (s *memStore) Create(ctx context.Context, v *models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.ID = uuid.New()
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	cp := *v
	s.byUpload[v.UploadID] = &cp
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.byUpload {
		if v.ID == id {
			cp := *v
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) GetByUploadID(ctx context.Context, uploadID string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byUpload[uploadID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *memStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Video
	for _, v := range s.byUpload {
		if v.UserID == userID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (s *memStore) MarkAssetCreated(ctx context.Context, uploadID, assetID string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byUpload[uploadID]
	if !ok {
		return nil, ErrNotFound
	}
	if v.AssetID == "" && assetID != "" {
		v.AssetID = assetID
	}
	if v.State != models.VideoStateReady {
		v.State = models.VideoStatePending
	}
	v.UpdatedAt = time.Now()
	cp := *v
	return &cp, nil
}

func (s *memStore) MarkReady(ctx context.Context, uploadID, assetID, playbackID, thumbnailURL string, duration float64) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byUpload[uploadID]
	if !ok {
		return nil, ErrNotFound
	}
	if v.AssetID == "" && assetID != "" {
		v.AssetID = assetID
	}
	v.PlaybackID = playbackID
	v.ThumbnailURL = thumbnailURL
	v.Duration = duration
	v.State = models.VideoStateReady
	v.UpdatedAt = time.Now()
	cp := *v
	return &cp, nil
}

func (s *memStore) SetMP4Filename(ctx context.Context, uploadID, name string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byUpload[uploadID]
	if !ok {
		return nil, ErrNotFound
	}
	v.MP4Filename = name
	v.UpdatedAt = time.Now()
	cp := *v
	return &cp, nil
}

func (s *memStore) SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.byUpload {
		if v.ID == id {
			v.ArchiveS3Key = key
			v.UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}
