package queue

import (
	"github.com/postpilotapp/postpilot/internal/repository"
	"github.com/postpilotapp/postpilot/internal/service"
)

type Queue struct {
	pr repository.PostRepository
	ps service.PublishService
}

func NewQueue(pr repository.PostRepository, ps service.PublishService) *Queue {
	return &Queue{pr: pr, ps: ps}
}

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	PostID int64  `json:"post_id"`
	Mode   string `json:"mode"`
}
