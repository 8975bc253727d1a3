package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	config "github.com/postpilotapp/postpilot/configs"
	"github.com/postpilotapp/postpilot/internal/models"
	"github.com/postpilotapp/postpilot/internal/transfer"
)

// PublishMode selects between publishing right away and handing the scheduled
// instant to the platform itself. Kept explicit so both paths stay testable
// independently.
type PublishMode string

const (
	PublishModeImmediate         PublishMode = "immediate"
	PublishModePlatformScheduled PublishMode = "platform-scheduled"
)

// FacebookService is the feed adapter: posts text, optionally with a single
// image, to a page timeline. The platform returns a final id synchronously,
// no container protocol involved.
type FacebookService interface {
	PublishToFeed(ctx context.Context, content *transfer.PublishContent, cred *models.FeedCredential, mode PublishMode) *transfer.PublishResult
}

type facebookService struct {
	cfg     config.Config
	baseURL string
	client  *http.Client
}

func NewFacebookService(cfg config.Config) FacebookService {
	return &facebookService{
		cfg:     cfg,
		baseURL: cfg.GraphAPIBaseURL,
		client:  http.DefaultClient,
	}
}

func (s *facebookService) PublishToFeed(ctx context.Context, content *transfer.PublishContent, cred *models.FeedCredential, mode PublishMode) *transfer.PublishResult {
	message := composeMessage(content.Caption, content.Hashtags)

	var imageURL string
	for _, m := range content.Media {
		if m.Kind == transfer.MediaKindImage {
			imageURL = m.URL
			break
		}
	}

	if imageURL != "" {
		return s.publishPhoto(ctx, cred, message, imageURL, content.ScheduledTime, mode)
	}
	return s.publishText(ctx, cred, message, content.ScheduledTime, mode)
}

func (s *facebookService) publishText(ctx context.Context, cred *models.FeedCredential, message string, scheduledTime *time.Time, mode PublishMode) *transfer.PublishResult {
	url := fmt.Sprintf("%s/%s/feed", s.baseURL, cred.PageID)

	payload := map[string]any{
		"message":      message,
		"access_token": cred.AccessToken,
	}
	applyFeedScheduling(payload, scheduledTime, mode)

	var result transfer.GraphIDResponse
	if err := postGraph(ctx, s.client, models.PlatformFacebook, url, payload, &result); err != nil {
		return &transfer.PublishResult{Err: err}
	}
	if result.ID == "" {
		return &transfer.PublishResult{Err: &PlatformError{Platform: models.PlatformFacebook, Message: "no post ID returned from Facebook"}}
	}

	return &transfer.PublishResult{Success: true, ExternalID: result.ID}
}

// publishPhoto is the upload-then-reference call: the platform fetches the
// image from the supplied URL and returns the resulting post in one step.
func (s *facebookService) publishPhoto(ctx context.Context, cred *models.FeedCredential, message, imageURL string, scheduledTime *time.Time, mode PublishMode) *transfer.PublishResult {
	url := fmt.Sprintf("%s/%s/photos", s.baseURL, cred.PageID)

	payload := map[string]any{
		"url":          imageURL,
		"caption":      message,
		"access_token": cred.AccessToken,
	}
	applyFeedScheduling(payload, scheduledTime, mode)

	var result transfer.GraphPhotoResponse
	if err := postGraph(ctx, s.client, models.PlatformFacebook, url, payload, &result); err != nil {
		return &transfer.PublishResult{Err: err}
	}

	externalID := result.PostID
	if externalID == "" {
		externalID = result.ID
	}
	if externalID == "" {
		return &transfer.PublishResult{Err: &PlatformError{Platform: models.PlatformFacebook, Message: "no post ID returned from Facebook"}}
	}

	return &transfer.PublishResult{Success: true, ExternalID: externalID}
}

func applyFeedScheduling(payload map[string]any, scheduledTime *time.Time, mode PublishMode) {
	if mode == PublishModePlatformScheduled && scheduledTime != nil {
		payload["published"] = false
		payload["scheduled_publish_time"] = scheduledTime.Unix()
	}
}
