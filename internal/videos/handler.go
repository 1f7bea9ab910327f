package videos

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipforge/backend/internal/middleware"
	"github.com/clipforge/backend/internal/models"
	"github.com/clipforge/backend/internal/mux"
	"github.com/clipforge/backend/pkg/metrics"
	"github.com/clipforge/backend/pkg/response"
	"github.com/clipforge/backend/pkg/storage"
)

// SessionIssuer requests single-use upload sessions from the transcoding
// provider.
type SessionIssuer interface {
	CreateDirectUpload(ctx context.Context) (mux.DirectUpload, error)
}

// Handler handles video HTTP endpoints.
type Handler struct {
	store  Store
	issuer SessionIssuer
	authz  Authorizer
	cache  *StatusCache
	s3     *storage.S3
	logger *zap.Logger
}

// NewHandler creates a videos handler. cache and s3 are optional.
func NewHandler(store Store, issuer SessionIssuer, authz Authorizer, cache *StatusCache, s3 *storage.S3, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, issuer: issuer, authz: authz, cache: cache, s3: s3, logger: logger}
}

func identityFromContext(c *gin.Context) Identity {
	id := Identity{}
	if v, ok := c.Get(middleware.ContextUserID); ok {
		id.ID, _ = v.(uuid.UUID)
	}
	if v, ok := c.Get(middleware.ContextUserRole); ok {
		role, _ := v.(string)
		id.Role = models.Role(role)
	}
	if v, ok := c.Get(middleware.ContextTrustLevel); ok {
		id.TrustLevel, _ = v.(int)
	}
	return id
}

// CreateUpload handles POST /videos/upload. It requests a direct upload
// session from the provider and creates the local record in state waiting.
// Remote failure detail is logged, never surfaced to the caller.
func (h *Handler) CreateUpload(c *gin.Context) {
	ident := identityFromContext(c)
	if !h.authz.CanUploadVideo(ident) {
		response.Forbidden(c, "insufficient permissions")
		return
	}

	up, err := h.issuer.CreateDirectUpload(c.Request.Context())
	if err != nil {
		h.logger.Error("create direct upload failed", zap.Error(err))
		response.Internal(c, "upload initialization failed")
		return
	}

	v := &models.Video{
		UserID:   ident.ID,
		UploadID: up.UploadID,
		State:    models.VideoStateWaiting,
	}
	if err := h.store.Create(c.Request.Context(), v); err != nil {
		h.logger.Error("create video record failed", zap.Error(err), zap.String("upload_id", up.UploadID))
		response.Internal(c, "upload initialization failed")
		return
	}

	metrics.UploadSessionsTotal.Inc()
	h.logger.Info("upload session created",
		zap.String("upload_id", up.UploadID), zap.String("user_id", ident.ID.String()))
	c.JSON(http.StatusOK, gin.H{"url": up.URL, "video_id": up.UploadID})
}

// Status handles GET /videos/:video_id/status. Returns {state}, plus playback
// fields when ready; 404 for unknown upload IDs.
func (h *Handler) Status(c *gin.Context) {
	uploadID := c.Param("video_id")

	if projection := h.cache.Get(c.Request.Context(), uploadID); projection != nil {
		c.JSON(http.StatusOK, projection)
		return
	}

	v, err := h.store.GetByUploadID(c.Request.Context(), uploadID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "video not found")
			return
		}
		h.logger.Error("get video failed", zap.Error(err), zap.String("upload_id", uploadID))
		response.Internal(c, "failed to load video")
		return
	}

	body := gin.H{"state": v.State}
	if v.State == models.VideoStateReady {
		body["playback_id"] = v.PlaybackID
		body["thumbnail_url"] = v.ThumbnailURL
		body["duration"] = v.Duration
		h.cache.Set(c.Request.Context(), uploadID, body)
	}
	c.JSON(http.StatusOK, body)
}

// List handles GET /videos. Returns the caller's uploads, newest first.
func (h *Handler) List(c *gin.Context) {
	ident := identityFromContext(c)
	list, err := h.store.ListByUser(c.Request.Context(), ident.ID)
	if err != nil {
		h.logger.Error("list videos failed", zap.Error(err), zap.String("user_id", ident.ID.String()))
		response.Internal(c, "failed to list videos")
		return
	}
	response.OK(c, list)
}

// DownloadURL handles GET /videos/:video_id/download-url. Returns a
// presigned URL for the archived MP4 rendition.
func (h *Handler) DownloadURL(c *gin.Context) {
	uploadID := c.Param("video_id")
	v, err := h.store.GetByUploadID(c.Request.Context(), uploadID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "video not found")
			return
		}
		h.logger.Error("get video failed", zap.Error(err), zap.String("upload_id", uploadID))
		response.Internal(c, "failed to load video")
		return
	}
	if h.s3 == nil || v.ArchiveS3Key == "" {
		response.NotFound(c, "no downloadable rendition")
		return
	}
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), h.s3.ArchiveBucket(), v.ArchiveS3Key, h.s3.PresignExpire())
	if err != nil {
		h.logger.Error("presign download failed", zap.Error(err), zap.String("upload_id", uploadID))
		response.Internal(c, "failed to generate download url")
		return
	}
	response.OK(c, gin.H{"url": url, "expires_in_seconds": int(h.s3.PresignExpire().Seconds())})
}
