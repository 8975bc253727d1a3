package transfer

import "time"

type PostCreation struct {
	Caption            string   `json:"caption" validate:"required"`
	Hashtags           []string `json:"hashtags" validate:"dive,max=100"`
	Target             string   `json:"target" validate:"required,oneof=facebook instagram both"`
	PageID             string   `json:"page_id"`
	ScheduledTime      string   `json:"scheduled_time"`
	MediaURLs          []string `json:"media_urls" validate:"max=10,dive,max=4096"`
	PlatformScheduling bool     `json:"platform_scheduling"`
}

type Admission struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	Unlimited bool `json:"unlimited"`
}

// PreparedMedia is a media reference after the pipeline has normalized it:
// always a reachable URL the platform APIs will accept.
type PreparedMedia struct {
	URL         string `json:"url"`
	Kind        string `json:"kind"` // image, video
	AudioStatus string `json:"audio_status"`
}

const (
	MediaKindImage = "image"
	MediaKindVideo = "video"
)

type PublishContent struct {
	Caption       string
	Hashtags      []string
	Media         []PreparedMedia
	PageID        string
	ScheduledTime *time.Time
}

type PublishResult struct {
	Success    bool
	ExternalID string
	Err        error
}
