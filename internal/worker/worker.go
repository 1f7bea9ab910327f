package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/clipforge/backend/internal/videos"
	"github.com/clipforge/backend/pkg/metrics"
	"github.com/clipforge/backend/pkg/queue"
	"github.com/clipforge/backend/pkg/storage"
)

// ArchiveProcessor processes rendition archive jobs: download the MP4
// rendition from the provider's streaming host, store it in S3, record the
// key on the video row.
type ArchiveProcessor struct {
	store         videos.Store
	s3            *storage.S3
	queue         *queue.Queue
	streamBaseURL string
	logger        *zap.Logger
}

// NewArchiveProcessor creates a rendition archive processor.
func NewArchiveProcessor(store videos.Store, s3 *storage.S3, q *queue.Queue, streamBaseURL string, logger *zap.Logger) *ArchiveProcessor {
	if streamBaseURL == "" {
		streamBaseURL = "https://stream.mux.com"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveProcessor{store: store, s3: s3, queue: q, streamBaseURL: streamBaseURL, logger: logger}
}

// Process executes one rendition archive job. Already-archived records are
// skipped so duplicate jobs are harmless.
func (p *ArchiveProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeRenditionArchive {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.RenditionArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	v, err := p.store.GetByID(ctx, payload.VideoID)
	if err != nil {
		return fmt.Errorf("load video %s: %w", payload.VideoID, err)
	}
	if v.ArchiveS3Key != "" {
		p.logger.Info("rendition already archived",
			zap.String("upload_id", v.UploadID), zap.String("s3_key", v.ArchiveS3Key))
		return nil
	}

	sourceURL := fmt.Sprintf("%s/%s/%s", p.streamBaseURL, payload.PlaybackID, payload.MP4Filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download rendition: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	key := storage.ArchiveKey(payload.UploadID, payload.MP4Filename)
	if err := p.s3.Upload(ctx, p.s3.ArchiveBucket(), key, contentType, resp.Body, resp.ContentLength); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.store.SetArchiveKey(ctx, payload.VideoID, key); err != nil {
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("rendition archived",
		zap.String("upload_id", payload.UploadID), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ArchiveProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("archive worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			metrics.ArchiveJobsTotal.WithLabelValues("failed").Inc()
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
		metrics.ArchiveJobsTotal.WithLabelValues("completed").Inc()
	}
}
