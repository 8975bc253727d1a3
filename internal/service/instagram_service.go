package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	config "github.com/postpilotapp/postpilot/configs"
	"github.com/postpilotapp/postpilot/internal/models"
	"github.com/postpilotapp/postpilot/internal/transfer"
)

// Container processing statuses reported by the platform.
const (
	containerStatusFinished   = "FINISHED"
	containerStatusError      = "ERROR"
	containerStatusInProgress = "IN_PROGRESS"
	containerStatusExpired    = "EXPIRED"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultPollBudget   = 5 * time.Minute
)

// InstagramService is the business-media adapter. Every image, video and
// carousel goes through the asynchronous container protocol: create a
// container from a reachable URL, poll it to a terminal status, then either
// publish it or hand it to the platform's own scheduler.
type InstagramService interface {
	PublishMedia(ctx context.Context, content *transfer.PublishContent, cred *models.BusinessMediaCredential, mode PublishMode) *transfer.PublishResult
}

type instagramService struct {
	cfg          config.Config
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	pollBudget   time.Duration
}

func NewInstagramService(cfg config.Config) InstagramService {
	return &instagramService{
		cfg:          cfg,
		baseURL:      cfg.GraphAPIBaseURL,
		client:       http.DefaultClient,
		pollInterval: defaultPollInterval,
		pollBudget:   defaultPollBudget,
	}
}

func (s *instagramService) PublishMedia(ctx context.Context, content *transfer.PublishContent, cred *models.BusinessMediaCredential, mode PublishMode) *transfer.PublishResult {
	n := len(content.Media)
	if n == 0 {
		return &transfer.PublishResult{Err: NewValidationError("post has no media, at least one item is required")}
	}
	if n > models.MaxCarouselItems {
		return &transfer.PublishResult{Err: NewValidationError("carousel has %d items, maximum is %d", n, models.MaxCarouselItems)}
	}

	caption := composeMessage(content.Caption, content.Hashtags)

	var containerID string
	var err error
	if n == 1 {
		containerID, err = s.createContainer(ctx, cred, containerParams{
			media:         content.Media[0],
			caption:       caption,
			scheduledTime: content.ScheduledTime,
			mode:          mode,
		})
	} else {
		containerID, err = s.createCarousel(ctx, cred, content.Media, caption, content.ScheduledTime, mode)
	}
	if err != nil {
		return &transfer.PublishResult{Err: err}
	}

	if err := s.waitForContainer(ctx, cred, containerID); err != nil {
		return &transfer.PublishResult{Err: err}
	}

	if mode == PublishModePlatformScheduled {
		// The platform takes it from here: the finished container is the
		// externally-scheduled object and goes live at the scheduled instant.
		return &transfer.PublishResult{Success: true, ExternalID: containerID}
	}

	mediaID, err := s.publishContainer(ctx, cred, containerID)
	if err != nil {
		return &transfer.PublishResult{Err: err}
	}

	return &transfer.PublishResult{Success: true, ExternalID: mediaID}
}

type containerParams struct {
	media          transfer.PreparedMedia
	caption        string
	isCarouselItem bool
	children       []string
	scheduledTime  *time.Time
	mode           PublishMode
}

func (s *instagramService) createContainer(ctx context.Context, cred *models.BusinessMediaCredential, p containerParams) (string, error) {
	reqURL := fmt.Sprintf("%s/%s/media", s.baseURL, cred.AccountID)

	payload := map[string]any{
		"access_token": cred.AccessToken,
	}

	switch {
	case len(p.children) > 0:
		payload["media_type"] = "CAROUSEL"
		payload["children"] = p.children
		payload["caption"] = p.caption
	case p.media.Kind == transfer.MediaKindVideo:
		payload["media_type"] = "REELS"
		payload["video_url"] = p.media.URL
	default:
		payload["image_url"] = p.media.URL
	}

	if p.isCarouselItem {
		payload["is_carousel_item"] = true
	} else if len(p.children) == 0 && p.caption != "" {
		payload["caption"] = p.caption
	}

	if p.mode == PublishModePlatformScheduled && p.scheduledTime != nil {
		payload["scheduled_publish_time"] = p.scheduledTime.Unix()
	}

	var result transfer.GraphIDResponse
	if err := postGraph(ctx, s.client, models.PlatformInstagram, reqURL, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", &PlatformError{Platform: models.PlatformInstagram, Message: "no container ID returned from Instagram"}
	}

	return result.ID, nil
}

// createCarousel creates one child container per item, then a parent
// referencing all of them. The caption is attached to the parent only; the
// parent is what gets polled and published.
func (s *instagramService) createCarousel(ctx context.Context, cred *models.BusinessMediaCredential, media []transfer.PreparedMedia, caption string, scheduledTime *time.Time, mode PublishMode) (string, error) {
	children := make([]string, 0, len(media))
	for _, item := range media {
		childID, err := s.createContainer(ctx, cred, containerParams{
			media:          item,
			isCarouselItem: true,
		})
		if err != nil {
			return "", fmt.Errorf("error creating carousel item container: %w", err)
		}
		children = append(children, childID)
	}

	return s.createContainer(ctx, cred, containerParams{
		caption:       caption,
		children:      children,
		scheduledTime: scheduledTime,
		mode:          mode,
	})
}

// waitForContainer polls the container status on a fixed interval until it is
// FINISHED, the platform reports an error, or the poll budget runs out.
// Budget expiry is ErrProcessingTimeout, deliberately distinct from a
// platform-reported ERROR.
func (s *instagramService) waitForContainer(ctx context.Context, cred *models.BusinessMediaCredential, containerID string) error {
	deadline := time.Now().Add(s.pollBudget)

	for {
		status, err := s.containerStatus(ctx, cred, containerID)
		if err != nil {
			return err
		}

		switch status.StatusCode {
		case containerStatusFinished:
			return nil
		case containerStatusError, containerStatusExpired:
			msg := status.Status
			if msg == "" {
				msg = "media container processing failed"
			}
			return &PlatformError{Platform: models.PlatformInstagram, Message: msg}
		}

		if time.Now().Add(s.pollInterval).After(deadline) {
			slog.Info("container poll budget exhausted", "container_id", containerID)
			return fmt.Errorf("%w: container %s still %s after %s", ErrProcessingTimeout, containerID, status.StatusCode, s.pollBudget)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *instagramService) containerStatus(ctx context.Context, cred *models.BusinessMediaCredential, containerID string) (*transfer.GraphContainerStatus, error) {
	reqURL := fmt.Sprintf("%s/%s?fields=status_code,status&access_token=%s",
		s.baseURL, containerID, url.QueryEscape(cred.AccessToken))

	var status transfer.GraphContainerStatus
	if err := getGraph(ctx, s.client, models.PlatformInstagram, reqURL, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *instagramService) publishContainer(ctx context.Context, cred *models.BusinessMediaCredential, containerID string) (string, error) {
	reqURL := fmt.Sprintf("%s/%s/media_publish", s.baseURL, cred.AccountID)

	payload := map[string]any{
		"creation_id":  containerID,
		"access_token": cred.AccessToken,
	}

	var result transfer.GraphIDResponse
	if err := postGraph(ctx, s.client, models.PlatformInstagram, reqURL, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", &PlatformError{Platform: models.PlatformInstagram, Message: "no media ID returned from Instagram"}
	}

	return result.ID, nil
}
