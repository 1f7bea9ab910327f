// Package mux is a minimal client for the transcoding provider's direct
// upload API.
package mux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrUploadInit is returned when an upload session cannot be created. The
// underlying cause is wrapped for logging; callers surface a generic failure.
var ErrUploadInit = errors.New("upload initialization failed")

// Config holds client settings.
type Config struct {
	TokenID     string
	TokenSecret string
	BaseURL     string // defaults to https://api.mux.com
	CORSOrigin  string
	// MP4Support requests a downloadable rendition ("standard") for new assets.
	MP4Support bool
	Timeout    time.Duration
}

// DirectUpload is a single-use upload session.
type DirectUpload struct {
	UploadID string
	URL      string
}

// Client calls the provider's REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a provider API client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mux.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type createUploadRequest struct {
	NewAssetSettings assetSettings `json:"new_asset_settings"`
	CORSOrigin       string        `json:"cors_origin"`
}

type assetSettings struct {
	PlaybackPolicy []string `json:"playback_policy"`
	MP4Support     string   `json:"mp4_support"`
}

type createUploadResponse struct {
	Data struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"data"`
}

// CreateDirectUpload requests a new single-use upload session.
func (c *Client) CreateDirectUpload(ctx context.Context) (DirectUpload, error) {
	mp4Support := "none"
	if c.cfg.MP4Support {
		mp4Support = "standard"
	}
	body, err := json.Marshal(createUploadRequest{
		NewAssetSettings: assetSettings{
			PlaybackPolicy: []string{"public"},
			MP4Support:     mp4Support,
		},
		CORSOrigin: c.cfg.CORSOrigin,
	})
	if err != nil {
		return DirectUpload{}, fmt.Errorf("%w: marshal request: %v", ErrUploadInit, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/video/v1/uploads", bytes.NewReader(body))
	if err != nil {
		return DirectUpload{}, fmt.Errorf("%w: build request: %v", ErrUploadInit, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.TokenID, c.cfg.TokenSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return DirectUpload{}, fmt.Errorf("%w: %v", ErrUploadInit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return DirectUpload{}, fmt.Errorf("%w: unexpected status %d", ErrUploadInit, resp.StatusCode)
	}

	var decoded createUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return DirectUpload{}, fmt.Errorf("%w: decode response: %v", ErrUploadInit, err)
	}
	if decoded.Data.ID == "" || decoded.Data.URL == "" {
		return DirectUpload{}, fmt.Errorf("%w: response missing id or url", ErrUploadInit)
	}

	c.logger.Debug("direct upload created", zap.String("upload_id", decoded.Data.ID))
	return DirectUpload{UploadID: decoded.Data.ID, URL: decoded.Data.URL}, nil
}
