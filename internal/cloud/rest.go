package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	USER_AGENT      = "beaver-readout/1.0"
	REQUEST_TIMEOUT = 15 * time.Second
	REST_PATH       = "/rest/v1/"
)

// RESTUploader posts rows to a PostgREST style endpoint.
type RESTUploader struct {
	httpClient http.Client
	endpoint   string
	apiKey     string
	logger     *slog.Logger
}

func NewRESTUploader(baseURL, apiKey, table string, logger *slog.Logger) *RESTUploader {
	return &RESTUploader{
		httpClient: http.Client{
			Timeout: REQUEST_TIMEOUT,
		},
		endpoint: strings.TrimRight(baseURL, "/") + REST_PATH + table,
		apiKey:   apiKey,
		logger:   logger,
	}
}

func (uploader *RESTUploader) log(level slog.Level, msg string, args ...any) {
	if uploader.logger != nil {
		uploader.logger.Log(context.Background(), level, msg, args...)
	}
}

func (uploader *RESTUploader) Insert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode rows: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, uploader.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	request.Header.Set("User-Agent", USER_AGENT)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Prefer", "return=minimal")
	if uploader.apiKey != "" {
		request.Header.Set("apikey", uploader.apiKey)
		request.Header.Set("Authorization", "Bearer "+uploader.apiKey)
	}

	uploader.log(slog.LevelDebug, "Uploading rows", "endpoint", uploader.endpoint, "rows", len(rows))

	response, err := uploader.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("failed to upload rows: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("failed to upload rows: %s: %s", response.Status, strings.TrimSpace(string(detail)))
	}

	return nil
}
