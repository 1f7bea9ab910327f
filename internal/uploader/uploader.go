// Package uploader streams a local file to a direct upload session URL in
// fixed-size sequential chunks.
package uploader

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultChunkSize is the chunk size used when Options.ChunkSize is zero.
const DefaultChunkSize = 5 * 1024 * 1024

// Options configures an Upload.
type Options struct {
	ChunkSize int64
	// Retries is the number of additional attempts per chunk. Zero keeps the
	// halt-on-first-failure behavior.
	Retries      int
	RetryBackoff time.Duration
	// ChunkTimeout bounds a single chunk transfer. Zero means no timeout.
	ChunkTimeout time.Duration
	HTTPClient   *http.Client

	OnProgress func(percent int)
	OnSuccess  func()
	OnError    func(err error)
}

// Upload is one sequential chunked transfer of a file to a session URL.
// Chunk i+1 is never dispatched before chunk i completed successfully.
type Upload struct {
	endpoint string
	file     io.ReaderAt
	size     int64
	opts     Options
	aborted  atomic.Bool
	logger   *zap.Logger
}

// New creates an upload for a file of the given size.
func New(endpoint string, file io.ReaderAt, size int64, opts Options, logger *zap.Logger) *Upload {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Upload{endpoint: endpoint, file: file, size: size, opts: opts, logger: logger}
}

// Abort requests cooperative cancellation. The flag is checked before each
// chunk; once set, no further chunks are sent and no further events fire.
func (u *Upload) Abort() {
	u.aborted.Store(true)
}

// Start runs the transfer in a goroutine; completion is observed through the
// Options callbacks.
func (u *Upload) Start(ctx context.Context) {
	go func() { _ = u.Run(ctx) }()
}

// Run performs the transfer synchronously. It returns the error that halted
// the sequence, nil on success, and nil after an abort.
func (u *Upload) Run(ctx context.Context) error {
	totalChunks := (u.size + u.opts.ChunkSize - 1) / u.opts.ChunkSize

	for i := int64(0); i < totalChunks; i++ {
		if u.aborted.Load() {
			u.logger.Debug("upload aborted", zap.Int64("chunks_sent", i))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		start := i * u.opts.ChunkSize
		end := start + u.opts.ChunkSize
		if end > u.size {
			end = u.size
		}

		if err := u.sendChunkWithRetry(ctx, start, end); err != nil {
			u.logger.Warn("chunk transfer failed",
				zap.Int64("chunk", i), zap.Int64("start", start), zap.Error(err))
			if u.opts.OnError != nil {
				u.opts.OnError(err)
			}
			return err
		}

		percent := int(math.Round(float64(i+1) / float64(totalChunks) * 100))
		if percent > 100 {
			percent = 100
		}
		if u.opts.OnProgress != nil {
			u.opts.OnProgress(percent)
		}
	}

	if u.opts.OnSuccess != nil {
		u.opts.OnSuccess()
	}
	return nil
}

func (u *Upload) sendChunkWithRetry(ctx context.Context, start, end int64) error {
	var err error
	for attempt := 0; attempt <= u.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(u.opts.RetryBackoff):
			}
			if u.aborted.Load() {
				return err
			}
		}
		if err = u.sendChunk(ctx, start, end); err == nil {
			return nil
		}
	}
	return err
}

func (u *Upload) sendChunk(ctx context.Context, start, end int64) error {
	if u.opts.ChunkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.opts.ChunkTimeout)
		defer cancel()
	}

	body := io.NewSectionReader(u.file, start, end-start)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.endpoint, body)
	if err != nil {
		return fmt.Errorf("build chunk request: %w", err)
	}
	req.ContentLength = end - start
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, u.size))

	resp, err := u.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("send chunk: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chunk upload failed: status %d", resp.StatusCode)
	}
	return nil
}
