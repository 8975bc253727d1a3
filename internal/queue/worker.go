package queue

import (
	"context"
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"
	"github.com/postpilotapp/postpilot/internal/service"
)

func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	mode := service.PublishMode(payload.Mode)
	if mode == "" {
		mode = service.PublishModeImmediate
	}

	// Publishing is never retried automatically; a failure before the publish
	// flow can record its own outcome still leaves the post in a terminal
	// state, and the task completes.
	if err := q.ps.PublishPost(ctx, payload.PostID, mode); err != nil {
		log.Printf("Error publishing post %d: %v", payload.PostID, err)
		if err := q.pr.MarkFailed(ctx, payload.PostID, err.Error()); err != nil {
			log.Printf("Error marking post %d failed: %v", payload.PostID, err)
		}
	}

	return nil
}
