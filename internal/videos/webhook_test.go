package videos

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/backend/internal/models"
	"github.com/clipforge/backend/pkg/queue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []queue.RenditionArchivePayload
}

func (f *fakeEnqueuer) EnqueueRenditionArchive(ctx context.Context, p queue.RenditionArchivePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, p)
	return nil
}

func newWebhookRouter(store Store, enqueuer ArchiveEnqueuer) *gin.Engine {
	h := NewWebhookHandler(store, NewSignatureVerifier(testWebhookSecret, false), enqueuer, nil)
	r := gin.New()
	r.POST("/webhooks/mux", h.HandleEvent)
	return r
}

func postWebhook(r *gin.Engine, body string, signed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mux", bytes.NewReader([]byte(body)))
	if signed {
		req.Header.Set("Mux-Signature", signWebhook(testWebhookSecret, "1693526400", []byte(body)))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seedWaiting(t *testing.T, store *memStore, uploadID string) {
	t.Helper()
	err := store.Create(context.Background(), &models.Video{
		UploadID: uploadID,
		State:    models.VideoStateWaiting,
	})
	require.NoError(t, err)
}

func assetCreatedBody(uploadID, assetID string) string {
	return fmt.Sprintf(`{"type":"video.upload.asset_created","object":{"id":%q},"data":{"asset_id":%q}}`, uploadID, assetID)
}

func assetReadyBody(assetID, uploadID, playbackID string, duration float64) string {
	return fmt.Sprintf(`{"type":"video.asset.ready","object":{"id":%q},"data":{"upload_id":%q,"duration":%g,"playback_ids":[{"id":%q,"policy":"public"}]}}`,
		assetID, uploadID, duration, playbackID)
}

func renditionsReadyBody(assetID, uploadID string, names ...string) string {
	files := ""
	for i, n := range names {
		if i > 0 {
			files += ","
		}
		files += fmt.Sprintf(`{"name":%q}`, n)
	}
	return fmt.Sprintf(`{"type":"video.asset.static_renditions.ready","object":{"id":%q},"data":{"upload_id":%q,"static_renditions":{"status":"ready","files":[%s]}}}`,
		assetID, uploadID, files)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	store := newMemStore()
	seedWaiting(t, store, "up-1")
	r := newWebhookRouter(store, nil)

	w := postWebhook(r, assetCreatedBody("up-1", "as-1"), false)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// No state change on rejected deliveries.
	v, err := store.GetByUploadID(context.Background(), "up-1")
	require.NoError(t, err)
	assert.Equal(t, models.VideoStateWaiting, v.State)
	assert.Empty(t, v.AssetID)
}

func TestWebhookAssetCreatedPromotesToPending(t *testing.T) {
	store := newMemStore()
	seedWaiting(t, store, "up-1")
	r := newWebhookRouter(store, nil)

	w := postWebhook(r, assetCreatedBody("up-1", "as-1"), true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success"}`, w.Body.String())

	v, err := store.GetByUploadID(context.Background(), "up-1")
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatePending, v.State)
	assert.Equal(t, "as-1", v.AssetID)
}

func TestWebhookAssetReady(t *testing.T) {
	store := newMemStore()
	seedWaiting(t, store, "up-1")
	r := newWebhookRouter(store, nil)

	postWebhook(r, assetCreatedBody("up-1", "as-1"), true)
	w := postWebhook(r, assetReadyBody("as-1", "up-1", "pb-1", 42.5), true)
	assert.Equal(t, http.StatusOK, w.Code)

	v, err := store.GetByUploadID(context.Background(), "up-1")
	require.NoError(t, err)
	assert.Equal(t, models.VideoStateReady, v.State)
	assert.Equal(t, "pb-1", v.PlaybackID)
	assert.Equal(t, "https://image.mux.com/pb-1/thumbnail.jpg?time=0", v.ThumbnailURL)
	assert.Equal(t, 42.5, v.Duration)
}

func TestWebhookOutOfOrderDeliveryDoesNotDemote(t *testing.T) {
	store := newMemStore()
	seedWaiting(t, store, "up-1")
	r := newWebhookRouter(store, nil)

	// ready arrives before asset_created.
	w := postWebhook(r, assetReadyBody("as-1", "up-1", "pb-1", 10), true)
	assert.Equal(t, http.StatusOK, w.Code)

	w = postWebhook(r, assetCreatedBody("up-1", "as-1"), true)
	assert.Equal(t, http.StatusOK, w.Code)

	v, err := store.GetByUploadID(context.Background(), "up-1")
	require.NoError(t, err)
	assert.Equal(t, models.VideoStateReady, v.State)
	assert.Equal(t, "pb-1", v.PlaybackID)
	assert.Equal(t, "as-1", v.AssetID)
}

func TestWebhookDuplicateReadyIsIdempotent(t *testing.T) {
	store := newMemStore()
	seedWaiting(t, store, "up-1")
	r := newWebhookRouter(store, nil)

	body := assetReadyBody("as-1", "up-1", "pb-1", 42.5)
	postWebhook(r, body, true)
	first, err := store.GetByUploadID(context.Background(), "up-1")
	require.NoError(t, err)

	w := postWebhook(r, body, true)
	assert.Equal(t, http.StatusOK, w.Code)

	second, err := store.GetByUploadID(context.Background(), "up-1")
	require.NoError(t, err)
	assert.Equal(t, first.State, second.State)
	assert.Equal(t, first.PlaybackID, second.PlaybackID)
	assert.Equal(t, first.ThumbnailURL, second.ThumbnailURL)
	assert.Equal(t, first.Duration, second.Duration)
}

func TestWebhookUnknownUploadAcked(t *testing.T) {
	store := newMemStore()
	r := newWebhookRouter(store, nil)

	w := postWebhook(r, assetCreatedBody("up-missing", "as-1"), true)
	assert.Equal(t, http.StatusOK, w.Code)

	// No record was created for the unknown upload.
	_, err := store.GetByUploadID(context.Background(), "up-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWebhookUnknownKindAcked(t *testing.T) {
	store := newMemStore()
	seedWaiting(t, store, "up-1")
	r := newWebhookRouter(store, nil)

	w := postWebhook(r, `{"type":"video.asset.deleted","object":{"id":"as-1"},"data":{"upload_id":"up-1"}}`, true)
	assert.Equal(t, http.StatusOK, w.Code)

	v, err := store.GetByUploadID(context.Background(), "up-1")
	require.NoError(t, err)
	assert.Equal(t, models.VideoStateWaiting, v.State)
}

func TestWebhookMalformedBodyWithValidSignatureAcked(t *testing.T) {
	store := newMemStore()
	r := newWebhookRouter(store, nil)

	w := postWebhook(r, `{"type": not json`, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success"}`, w.Body.String())
}

func TestWebhookRenditionsRecordsPreferredMP4(t *testing.T) {
	store := newMemStore()
	seedWaiting(t, store, "up-1")
	r := newWebhookRouter(store, nil)

	w := postWebhook(r, renditionsReadyBody("as-1", "up-1", "low.mp4", "high.mp4"), true)
	assert.Equal(t, http.StatusOK, w.Code)

	v, err := store.GetByUploadID(context.Background(), "up-1")
	require.NoError(t, err)
	assert.Equal(t, "high.mp4", v.MP4Filename)
}

func TestWebhookEnqueuesArchiveOnceReadyWithRendition(t *testing.T) {
	store := newMemStore()
	seedWaiting(t, store, "up-1")
	enq := &fakeEnqueuer{}
	r := newWebhookRouter(store, enq)

	// Rendition event first: record not ready yet, nothing to archive.
	postWebhook(r, renditionsReadyBody("as-1", "up-1", "high.mp4"), true)
	assert.Empty(t, enq.jobs)

	postWebhook(r, assetReadyBody("as-1", "up-1", "pb-1", 30), true)
	require.Len(t, enq.jobs, 1)
	job := enq.jobs[0]
	assert.Equal(t, "up-1", job.UploadID)
	assert.Equal(t, "pb-1", job.PlaybackID)
	assert.Equal(t, "high.mp4", job.MP4Filename)
}
