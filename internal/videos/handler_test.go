package videos

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/backend/internal/middleware"
	"github.com/clipforge/backend/internal/models"
	"github.com/clipforge/backend/internal/mux"
)

type fakeIssuer struct {
	upload mux.DirectUpload
	err    error
	calls  int
}

func (f *fakeIssuer) CreateDirectUpload(ctx context.Context) (mux.DirectUpload, error) {
	f.calls++
	return f.upload, f.err
}

func withIdentity(userID uuid.UUID, role string, trustLevel int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextUserRole, role)
		c.Set(middleware.ContextTrustLevel, trustLevel)
		c.Next()
	}
}

func newVideoRouter(h *Handler, userID uuid.UUID, role string, trustLevel int) *gin.Engine {
	r := gin.New()
	api := r.Group("", withIdentity(userID, role, trustLevel))
	api.POST("/videos/upload", h.CreateUpload)
	api.GET("/videos", h.List)
	api.GET("/videos/:video_id/status", h.Status)
	api.GET("/videos/:video_id/download-url", h.DownloadURL)
	return r
}

func TestCreateUploadSuccess(t *testing.T) {
	store := newMemStore()
	issuer := &fakeIssuer{upload: mux.DirectUpload{UploadID: "up-123", URL: "https://storage.example/put/abc"}}
	h := NewHandler(store, issuer, TrustLevelPolicy{MinTrustLevel: 1}, nil, nil, nil)
	userID := uuid.New()
	r := newVideoRouter(h, userID, "member", 1)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/videos/upload", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"url":"https://storage.example/put/abc","video_id":"up-123"}`, w.Body.String())

	v, err := store.GetByUploadID(context.Background(), "up-123")
	require.NoError(t, err)
	assert.Equal(t, models.VideoStateWaiting, v.State)
	assert.Equal(t, userID, v.UserID)
}

func TestCreateUploadForbiddenBelowTrustLevel(t *testing.T) {
	store := newMemStore()
	issuer := &fakeIssuer{upload: mux.DirectUpload{UploadID: "up-123", URL: "u"}}
	h := NewHandler(store, issuer, TrustLevelPolicy{MinTrustLevel: 1}, nil, nil, nil)
	r := newVideoRouter(h, uuid.New(), "member", 0)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/videos/upload", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, issuer.calls)
}

func TestCreateUploadStaffBypassesTrustLevel(t *testing.T) {
	store := newMemStore()
	issuer := &fakeIssuer{upload: mux.DirectUpload{UploadID: "up-adm", URL: "u"}}
	h := NewHandler(store, issuer, TrustLevelPolicy{MinTrustLevel: 3}, nil, nil, nil)
	r := newVideoRouter(h, uuid.New(), "admin", 0)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/videos/upload", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateUploadProviderFailure(t *testing.T) {
	store := newMemStore()
	issuer := &fakeIssuer{err: errors.New("provider: 503 from upstream")}
	h := NewHandler(store, issuer, TrustLevelPolicy{MinTrustLevel: 0}, nil, nil, nil)
	r := newVideoRouter(h, uuid.New(), "member", 1)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/videos/upload", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// Upstream detail is not leaked to the caller.
	assert.NotContains(t, w.Body.String(), "upstream")

	// No half-created record.
	list, err := store.ListByUser(context.Background(), uuid.Nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStatusWaiting(t *testing.T) {
	store := newMemStore()
	seedWaiting(t, store, "up-1")
	h := NewHandler(store, &fakeIssuer{}, TrustLevelPolicy{}, nil, nil, nil)
	r := newVideoRouter(h, uuid.New(), "member", 1)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/videos/up-1/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "waiting", body["state"])
	assert.NotContains(t, body, "playback_id")
	assert.NotContains(t, body, "thumbnail_url")
}

func TestStatusReady(t *testing.T) {
	store := newMemStore()
	seedWaiting(t, store, "up-1")
	_, err := store.MarkReady(context.Background(), "up-1", "as-1", "pb-1", ThumbnailURL("pb-1"), 42.5)
	require.NoError(t, err)

	h := NewHandler(store, &fakeIssuer{}, TrustLevelPolicy{}, nil, nil, nil)
	r := newVideoRouter(h, uuid.New(), "member", 1)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/videos/up-1/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["state"])
	assert.Equal(t, "pb-1", body["playback_id"])
	assert.Equal(t, "https://image.mux.com/pb-1/thumbnail.jpg?time=0", body["thumbnail_url"])
	assert.Equal(t, 42.5, body["duration"])
}

func TestStatusUnknownUpload(t *testing.T) {
	h := NewHandler(newMemStore(), &fakeIssuer{}, TrustLevelPolicy{}, nil, nil, nil)
	r := newVideoRouter(h, uuid.New(), "member", 1)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/videos/up-missing/status", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListReturnsOnlyCallersVideos(t *testing.T) {
	store := newMemStore()
	me := uuid.New()
	other := uuid.New()
	for _, v := range []*models.Video{
		{UserID: me, UploadID: "up-a", State: models.VideoStateWaiting},
		{UserID: me, UploadID: "up-b", State: models.VideoStateReady},
		{UserID: other, UploadID: "up-c", State: models.VideoStateWaiting},
	} {
		require.NoError(t, store.Create(context.Background(), v))
	}

	h := NewHandler(store, &fakeIssuer{}, TrustLevelPolicy{}, nil, nil, nil)
	r := newVideoRouter(h, me, "member", 1)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/videos", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []models.Video `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 2)
}

func TestDownloadURLWithoutArchive(t *testing.T) {
	store := newMemStore()
	seedWaiting(t, store, "up-1")
	h := NewHandler(store, &fakeIssuer{}, TrustLevelPolicy{}, nil, nil, nil)
	r := newVideoRouter(h, uuid.New(), "member", 1)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/videos/up-1/download-url", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTrustLevelPolicy(t *testing.T) {
	p := TrustLevelPolicy{MinTrustLevel: 2}

	assert.False(t, p.CanUploadVideo(Identity{Role: models.RoleMember, TrustLevel: 1}))
	assert.True(t, p.CanUploadVideo(Identity{Role: models.RoleMember, TrustLevel: 2}))
	assert.True(t, p.CanUploadVideo(Identity{Role: models.RoleAdmin, TrustLevel: 0}))
	assert.True(t, p.CanUploadVideo(Identity{Role: models.RoleModerator, TrustLevel: 0}))
}
