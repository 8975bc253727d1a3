package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	config "github.com/postpilotapp/postpilot/configs"
	"github.com/postpilotapp/postpilot/internal/transfer"
)

// ResizeService is the HTTP client for the external resize collaborator.
type ResizeService struct {
	endpoint string
	client   *http.Client
}

func NewResizeService(cfg config.Config) *ResizeService {
	return &ResizeService{
		endpoint: cfg.ResizeServiceURL,
		client:   http.DefaultClient,
	}
}

func (s *ResizeService) Resize(ctx context.Context, mediaURL string) (*transfer.ResizeResult, error) {
	body, err := json.Marshal(map[string]string{"url": mediaURL})
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from resize service: %d", resp.StatusCode)
	}

	var result transfer.ResizeResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("error parsing resize response: %w", err)
	}

	return &result, nil
}
