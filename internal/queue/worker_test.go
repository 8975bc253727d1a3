package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/postpilotapp/postpilot/internal/models"
	"github.com/postpilotapp/postpilot/internal/service"
)

type fakePostRepo struct {
	failed map[int64]string
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	return nil, nil
}

func (r *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	return 0, nil
}

func (r *fakePostRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	return nil, nil
}

func (r *fakePostRepo) ListDue(ctx context.Context, now time.Time) ([]*models.Post, error) {
	return nil, nil
}

func (r *fakePostRepo) UpdateStatus(ctx context.Context, status string, postID int64) error {
	return nil
}

func (r *fakePostRepo) UpdateResult(ctx context.Context, post *models.Post) error {
	return nil
}

func (r *fakePostRepo) MarkFailed(ctx context.Context, postID int64, message string) error {
	if r.failed == nil {
		r.failed = make(map[int64]string)
	}
	r.failed[postID] = message
	return nil
}

func (r *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	return false, nil
}

func (r *fakePostRepo) Remove(ctx context.Context, id int64) error {
	return nil
}

type fakePublisher struct {
	calls []int64
	modes []service.PublishMode
	err   error
}

func (p *fakePublisher) PublishPost(ctx context.Context, postID int64, mode service.PublishMode) error {
	p.calls = append(p.calls, postID)
	p.modes = append(p.modes, mode)
	return p.err
}

func publishTask(t *testing.T, payload PublishPostPayload) *asynq.Task {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return asynq.NewTask(TaskTypePublishPost, raw)
}

func TestHandlePublishPostTask(t *testing.T) {
	repo := &fakePostRepo{}
	publisher := &fakePublisher{}
	q := NewQueue(repo, publisher)

	task := publishTask(t, PublishPostPayload{PostID: 7, Mode: string(service.PublishModePlatformScheduled)})
	if err := q.HandlePublishPostTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	if len(publisher.calls) != 1 || publisher.calls[0] != 7 {
		t.Fatalf("expected one publish call for post 7, got %v", publisher.calls)
	}
	if publisher.modes[0] != service.PublishModePlatformScheduled {
		t.Errorf("expected platform-scheduled mode, got %s", publisher.modes[0])
	}
	if len(repo.failed) != 0 {
		t.Errorf("successful publish must not mark the post failed, got %v", repo.failed)
	}
}

func TestHandlePublishPostTaskDefaultsToImmediate(t *testing.T) {
	publisher := &fakePublisher{}
	q := NewQueue(&fakePostRepo{}, publisher)

	task := publishTask(t, PublishPostPayload{PostID: 7})
	if err := q.HandlePublishPostTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	if publisher.modes[0] != service.PublishModeImmediate {
		t.Errorf("expected immediate mode for an empty mode field, got %s", publisher.modes[0])
	}
}

func TestHandlePublishPostTaskFailureIsTerminal(t *testing.T) {
	repo := &fakePostRepo{}
	publisher := &fakePublisher{err: errors.New("media asset 10 is missing or incomplete")}
	q := NewQueue(repo, publisher)

	task := publishTask(t, PublishPostPayload{PostID: 7})
	if err := q.HandlePublishPostTask(context.Background(), task); err != nil {
		t.Fatalf("a publish failure must not be returned for retry, got %v", err)
	}

	if msg := repo.failed[7]; !strings.Contains(msg, "missing or incomplete") {
		t.Errorf("expected the failure recorded on the post, got %q", msg)
	}
}
