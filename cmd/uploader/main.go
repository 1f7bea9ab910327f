// Package main is a CLI that requests an upload session from the API server
// and streams a local video file to it in chunks.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/clipforge/backend/internal/uploader"
)

type uploadSession struct {
	URL     string `json:"url"`
	VideoID string `json:"video_id"`
}

type loginResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

type statusResponse struct {
	State      string  `json:"state"`
	PlaybackID string  `json:"playback_id"`
	Duration   float64 `json:"duration"`
}

func main() {
	var (
		server    = flag.String("server", "http://localhost:8080", "API server base URL")
		file      = flag.String("file", "", "video file to upload")
		email     = flag.String("email", "", "account email (used when -token is empty)")
		password  = flag.String("password", "", "account password")
		token     = flag.String("token", "", "JWT, skips login")
		chunkSize = flag.Int64("chunk-size", uploader.DefaultChunkSize, "chunk size in bytes")
		retries   = flag.Int("retries", 0, "additional attempts per chunk")
		wait      = flag.Bool("wait", false, "poll status until the video is ready")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: uploader -file video.mp4 [-server URL] (-token JWT | -email .. -password ..)")
		os.Exit(2)
	}

	ctx := context.Background()
	jwt := *token
	if jwt == "" {
		var err error
		jwt, err = login(ctx, *server, *email, *password)
		if err != nil {
			fatalf("login: %v", err)
		}
	}

	session, err := createSession(ctx, *server, jwt)
	if err != nil {
		fatalf("create upload session: %v", err)
	}
	fmt.Printf("upload session %s\n", session.VideoID)

	f, err := os.Open(*file)
	if err != nil {
		fatalf("open file: %v", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		fatalf("stat file: %v", err)
	}

	up := uploader.New(session.URL, f, info.Size(), uploader.Options{
		ChunkSize: *chunkSize,
		Retries:   *retries,
		OnProgress: func(percent int) {
			fmt.Printf("\ruploading... %3d%%", percent)
		},
	}, nil)
	if err := up.Run(ctx); err != nil {
		fmt.Println()
		fatalf("upload: %v", err)
	}
	fmt.Println("\nupload complete")

	if *wait {
		if err := pollStatus(ctx, *server, jwt, session.VideoID); err != nil {
			fatalf("poll status: %v", err)
		}
	}
}

func login(ctx context.Context, server, email, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var decoded loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Data.Token == "" {
		return "", fmt.Errorf("no token in response")
	}
	return decoded.Data.Token, nil
}

func createSession(ctx context.Context, server, jwt string) (*uploadSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/videos/upload", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+jwt)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var session uploadSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

func pollStatus(ctx context.Context, server, jwt, videoID string) error {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/videos/"+videoID+"/status", nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+jwt)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		var status statusResponse
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			return err
		}
		fmt.Printf("state: %s\n", status.State)
		if status.State == "ready" {
			fmt.Printf("playback id: %s (%.1fs)\n", status.PlaybackID, status.Duration)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
