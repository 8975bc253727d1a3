package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/h2non/filetype"
	"github.com/postpilotapp/postpilot/internal/models"
	"github.com/postpilotapp/postpilot/internal/repository"
	"github.com/postpilotapp/postpilot/internal/transfer"
)

// Accepted aspect ratio interval for business-media targets: portrait 9:16
// through landscape 1.91:1.
const (
	minAspectRatio = 0.5625
	maxAspectRatio = 1.91
)

// Only the leading bytes are needed for magic-byte sniffing and header-level
// dimension decoding.
const probeLimit = 1 << 20

type ObjectStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type ResizeClient interface {
	Resize(ctx context.Context, mediaURL string) (*transfer.ResizeResult, error)
}

// MediaService turns stored media references into platform-accepted reachable
// URLs: inline payloads are uploaded to the object store, image geometry is
// checked from header bytes, and out-of-range images are routed through the
// resize collaborator.
type MediaService interface {
	PrepareMedia(ctx context.Context, assets []*models.MediaAsset, businessMedia bool) ([]transfer.PreparedMedia, error)
}

type mediaService struct {
	storage ObjectStorage
	resizer ResizeClient
	ma      repository.MediaAssetRepository
	client  *http.Client
}

func NewMediaService(storage ObjectStorage, resizer ResizeClient, ma repository.MediaAssetRepository) MediaService {
	return &mediaService{
		storage: storage,
		resizer: resizer,
		ma:      ma,
		client:  http.DefaultClient,
	}
}

func (s *mediaService) PrepareMedia(ctx context.Context, assets []*models.MediaAsset, businessMedia bool) ([]transfer.PreparedMedia, error) {
	prepared := make([]transfer.PreparedMedia, 0, len(assets))

	for _, asset := range assets {
		item, err := s.prepareOne(ctx, asset, businessMedia)
		if err != nil {
			return nil, fmt.Errorf("error preparing media asset %d: %w", asset.ID, err)
		}
		prepared = append(prepared, *item)
	}

	return prepared, nil
}

func (s *mediaService) prepareOne(ctx context.Context, asset *models.MediaAsset, businessMedia bool) (*transfer.PreparedMedia, error) {
	mediaURL, err := s.normalize(ctx, asset)
	if err != nil {
		return nil, err
	}

	head, err := s.fetchHead(ctx, mediaURL)
	if err != nil {
		// Geometry cannot be determined; the platform's own validation is
		// authoritative, so pass the media through rather than blocking it.
		slog.Info("could not probe media, skipping geometry check", "url", mediaURL, "error", err.Error())
		return &transfer.PreparedMedia{
			URL:         mediaURL,
			Kind:        kindFromFileType(asset.FileType),
			AudioStatus: asset.AudioStatus,
		}, nil
	}

	kind := detectKind(head, asset.FileType)

	item := &transfer.PreparedMedia{
		URL:         mediaURL,
		Kind:        kind,
		AudioStatus: asset.AudioStatus,
	}
	if kind == transfer.MediaKindVideo && item.AudioStatus == "" {
		item.AudioStatus = models.AudioStatusUnchecked
	}

	if kind != transfer.MediaKindImage {
		return item, nil
	}

	// The aspect interval is a business-media constraint; the feed accepts
	// any ratio, so feed-only posts skip the gate and the resize detour.
	if !businessMedia {
		return item, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(head))
	if err != nil || cfg.Height == 0 {
		slog.Info("could not decode image dimensions, skipping geometry check", "url", mediaURL)
		return item, nil
	}

	aspect := float64(cfg.Width) / float64(cfg.Height)
	if aspect >= minAspectRatio && aspect <= maxAspectRatio {
		return item, nil
	}

	resized, err := s.resizer.Resize(ctx, mediaURL)
	if err != nil {
		return nil, fmt.Errorf("error resizing media: %w", err)
	}
	if !resized.Resized || resized.ResizedURL == "" {
		if resized.Error != "" {
			return nil, NewValidationError("media aspect ratio %.2f is out of range and resize failed: %s", aspect, resized.Error)
		}
		return nil, NewValidationError("media aspect ratio %.2f is out of range and resize failed", aspect)
	}

	// The collaborator's contract is trusted; no re-validation of the
	// substituted URL.
	item.URL = resized.ResizedURL
	return item, nil
}

// normalize replaces inline-encoded payloads with a reachable object-store
// URL. Platform APIs only accept URLs they can fetch, so this always happens
// before any platform call.
func (s *mediaService) normalize(ctx context.Context, asset *models.MediaAsset) (string, error) {
	mediaURL := asset.FileURL

	if strings.HasPrefix(mediaURL, "http://") || strings.HasPrefix(mediaURL, "https://") {
		return mediaURL, nil
	}

	if strings.HasPrefix(mediaURL, "data:") {
		contentType, data, err := decodeDataURI(mediaURL)
		if err != nil {
			return "", NewValidationError("invalid inline media payload: %s", err.Error())
		}

		publicURL, err := s.storage.Upload(ctx, asset.FileName, data, contentType)
		if err != nil {
			return "", fmt.Errorf("error uploading inline media: %w", err)
		}

		if asset.ID != 0 {
			if err := s.ma.UpdateFileURL(ctx, asset.ID, publicURL); err != nil {
				slog.Info(err.Error())
			}
		}
		return publicURL, nil
	}

	return "", NewValidationError("media reference %q is not a reachable URL", mediaURL)
}

func decodeDataURI(uri string) (string, []byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", nil, errors.New("malformed data URI")
	}

	contentType := strings.TrimSuffix(meta, ";base64")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, err
	}
	return contentType, data, nil
}

func (s *mediaService) fetchHead(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", mediaURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d fetching media", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, probeLimit))
}

func detectKind(head []byte, fileTypeHint string) string {
	t, err := filetype.Match(head)
	if err == nil {
		switch t.MIME.Type {
		case "image":
			return transfer.MediaKindImage
		case "video":
			return transfer.MediaKindVideo
		}
	}
	return kindFromFileType(fileTypeHint)
}

func kindFromFileType(fileTypeHint string) string {
	if strings.HasPrefix(fileTypeHint, "video") {
		return transfer.MediaKindVideo
	}
	return transfer.MediaKindImage
}
