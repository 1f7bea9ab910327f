package videos

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clipforge/backend/internal/models"
	"github.com/clipforge/backend/pkg/metrics"
	"github.com/clipforge/backend/pkg/queue"
	"github.com/clipforge/backend/pkg/response"
)

// ArchiveEnqueuer enqueues rendition archive jobs. Optional; nil disables
// archiving.
type ArchiveEnqueuer interface {
	EnqueueRenditionArchive(ctx context.Context, payload queue.RenditionArchivePayload) error
}

// WebhookHandler receives transcoding provider webhooks and reconciles them
// into the video store.
type WebhookHandler struct {
	store    Store
	verifier *SignatureVerifier
	queue    ArchiveEnqueuer
	logger   *zap.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(store Store, verifier *SignatureVerifier, q ArchiveEnqueuer, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{store: store, verifier: verifier, queue: q, logger: logger}
}

// HandleEvent handles POST /webhooks/mux. Signature failures are rejected
// before any parsing. Once the signature passes the provider always gets a
// 200 acknowledgment, including for unknown kinds, unknown uploads and
// payloads that fail to reconcile: the provider retries unacknowledged
// deliveries and a retried unprocessable payload stays unprocessable.
func (h *WebhookHandler) HandleEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, "unable to read request body")
		return
	}

	if err := h.verifier.Verify(c.GetHeader("Mux-Signature"), body); err != nil {
		h.logger.Warn("webhook signature rejected",
			zap.String("client_ip", c.ClientIP()))
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		response.Forbidden(c, "invalid signature")
		return
	}

	h.process(c.Request.Context(), body)
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *WebhookHandler) process(ctx context.Context, body []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("webhook processing panicked", zap.Any("panic", r))
			metrics.WebhookEventsTotal.WithLabelValues("unknown", "failed").Inc()
		}
	}()

	ev, err := ParseEvent(body)
	if err != nil {
		h.logger.Warn("malformed webhook payload", zap.Error(err))
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return
	}

	var outcome string
	switch ev.Kind {
	case EventAssetCreated:
		outcome = h.assetCreated(ctx, ev)
	case EventAssetReady:
		outcome = h.assetReady(ctx, ev)
	case EventRenditionsReady:
		outcome = h.renditionsReady(ctx, ev)
	default:
		h.logger.Debug("ignored webhook kind", zap.String("type", ev.RawType))
		outcome = "ignored"
	}
	metrics.WebhookEventsTotal.WithLabelValues(ev.Kind.String(), outcome).Inc()
}

func (h *WebhookHandler) assetCreated(ctx context.Context, ev Event) string {
	uploadID := ev.UploadID()
	if uploadID == "" {
		h.logger.Warn("asset_created event without upload id")
		return "malformed"
	}
	v, err := h.store.MarkAssetCreated(ctx, uploadID, ev.AssetID())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.logger.Debug("webhook for unknown upload", zap.String("upload_id", uploadID))
			return "ignored"
		}
		h.logger.Error("mark asset created failed", zap.Error(err), zap.String("upload_id", uploadID))
		return "failed"
	}
	h.logger.Info("asset created",
		zap.String("upload_id", uploadID), zap.String("asset_id", v.AssetID), zap.String("state", v.State))
	return "processed"
}

func (h *WebhookHandler) assetReady(ctx context.Context, ev Event) string {
	uploadID := ev.UploadID()
	if uploadID == "" {
		h.logger.Warn("asset ready event without upload id")
		return "malformed"
	}
	if len(ev.Data.PlaybackIDs) == 0 {
		h.logger.Warn("asset ready event without playback ids", zap.String("upload_id", uploadID))
		return "malformed"
	}
	playbackID := ev.Data.PlaybackIDs[0].ID
	v, err := h.store.MarkReady(ctx, uploadID, ev.AssetID(), playbackID, ThumbnailURL(playbackID), ev.Data.Duration)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.logger.Debug("webhook for unknown upload", zap.String("upload_id", uploadID))
			return "ignored"
		}
		h.logger.Error("mark ready failed", zap.Error(err), zap.String("upload_id", uploadID))
		return "failed"
	}
	h.logger.Info("asset ready",
		zap.String("upload_id", uploadID), zap.String("playback_id", playbackID), zap.Float64("duration", v.Duration))
	h.maybeEnqueueArchive(ctx, v)
	return "processed"
}

func (h *WebhookHandler) renditionsReady(ctx context.Context, ev Event) string {
	uploadID := ev.UploadID()
	if uploadID == "" {
		h.logger.Warn("renditions event without upload id")
		return "malformed"
	}
	var files []RenditionFile
	if ev.Data.StaticRenditions != nil {
		files = ev.Data.StaticRenditions.Files
	}
	name := ChooseRendition(files)
	if name == "" {
		h.logger.Debug("no downloadable rendition in event", zap.String("upload_id", uploadID))
		return "ignored"
	}
	v, err := h.store.SetMP4Filename(ctx, uploadID, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.logger.Debug("webhook for unknown upload", zap.String("upload_id", uploadID))
			return "ignored"
		}
		h.logger.Error("set mp4 filename failed", zap.Error(err), zap.String("upload_id", uploadID))
		return "failed"
	}
	h.logger.Info("rendition recorded", zap.String("upload_id", uploadID), zap.String("mp4_filename", name))
	h.maybeEnqueueArchive(ctx, v)
	return "processed"
}

// maybeEnqueueArchive queues an archive job once a record is both ready and
// has a rendition. The worker skips records that are already archived, so a
// duplicate delivery at worst enqueues a no-op job.
func (h *WebhookHandler) maybeEnqueueArchive(ctx context.Context, v *models.Video) {
	if h.queue == nil {
		return
	}
	if v.State != models.VideoStateReady || v.MP4Filename == "" || v.ArchiveS3Key != "" {
		return
	}
	err := h.queue.EnqueueRenditionArchive(ctx, queue.RenditionArchivePayload{
		VideoID:     v.ID,
		UploadID:    v.UploadID,
		PlaybackID:  v.PlaybackID,
		MP4Filename: v.MP4Filename,
	})
	if err != nil {
		h.logger.Error("enqueue rendition archive failed", zap.Error(err), zap.String("upload_id", v.UploadID))
	}
}
