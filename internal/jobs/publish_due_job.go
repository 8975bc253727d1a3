package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/postpilotapp/postpilot/internal/models"
	"github.com/postpilotapp/postpilot/internal/repository"
	"github.com/postpilotapp/postpilot/internal/service"
)

// ScheduledPublishJob is the batch executor for due posts. It is invoked by
// an external periodic trigger, is safe to invoke repeatedly, and processes
// each post behind its own isolation boundary so one failure never aborts the
// rest of the batch.
type ScheduledPublishJob struct {
	pr repository.PostRepository
	ps service.PublishService
}

func NewScheduledPublishJob(pr repository.PostRepository, ps service.PublishService) *ScheduledPublishJob {
	return &ScheduledPublishJob{
		pr: pr,
		ps: ps,
	}
}

func (j *ScheduledPublishJob) Run() {
	ctx := context.Background()

	posts, err := j.pr.ListDue(ctx, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if len(posts) == 0 {
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 5
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, post := range posts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(post *models.Post) {
			defer wg.Done()
			defer func() { <-semaphore }()

			j.publishOne(ctx, post)
		}(post)
	}

	wg.Wait()
}

// publishOne is the per-post isolation boundary: a panic or error at any
// stage is recorded as that post's failed status and the batch moves on.
func (j *ScheduledPublishJob) publishOne(ctx context.Context, post *models.Post) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("publish panicked: %v", r)
			slog.Error("scheduled publish panic", "post_id", post.ID, "error", msg)
			if err := j.pr.MarkFailed(ctx, post.ID, msg); err != nil {
				slog.Info(err.Error())
			}
		}
	}()

	if err := j.ps.PublishPost(ctx, post.ID, service.PublishModeImmediate); err != nil {
		slog.Info("scheduled publish failed", "post_id", post.ID, "error", err.Error())
		if err := j.pr.MarkFailed(ctx, post.ID, err.Error()); err != nil {
			slog.Info(err.Error())
		}
	}
}
