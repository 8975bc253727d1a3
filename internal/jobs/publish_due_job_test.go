package job

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/postpilotapp/postpilot/internal/models"
	"github.com/postpilotapp/postpilot/internal/service"
)

type fakePostRepo struct {
	mu     sync.Mutex
	due    []*models.Post
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
	return r.due, nil
}

func (r *fakePostRepo) UpdateStatus(ctx context.Context, status string, postID int64) error {
	return nil
}

func (r *fakePostRepo) UpdateResult(ctx context.Context, post *models.Post) error {
	return nil
}

func (r *fakePostRepo) MarkFailed(ctx context.Context, postID int64, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
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

type scriptedPublisher struct {
	mu        sync.Mutex
	published []int64
	panicOn   int64
	failOn    int64
}

func (p *scriptedPublisher) PublishPost(ctx context.Context, postID int64, mode service.PublishMode) error {
	p.mu.Lock()
	p.published = append(p.published, postID)
	p.mu.Unlock()

	if postID == p.panicOn {
		panic("adapter blew up")
	}
	if postID == p.failOn {
		return errors.New("platform rejected the post")
	}
	return nil
}

func TestRunIsolatesFailures(t *testing.T) {
	repo := &fakePostRepo{due: []*models.Post{
		{ID: 1, Target: models.TargetFacebook, Status: models.PostStatusScheduled},
		{ID: 2, Target: models.TargetFacebook, Status: models.PostStatusScheduled},
		{ID: 3, Target: models.TargetFacebook, Status: models.PostStatusScheduled},
	}}
	publisher := &scriptedPublisher{panicOn: 2, failOn: 3}

	NewScheduledPublishJob(repo, publisher).Run()

	if len(publisher.published) != 3 {
		t.Fatalf("expected all 3 due posts to be attempted, got %d", len(publisher.published))
	}

	if _, ok := repo.failed[1]; ok {
		t.Error("post 1 succeeded and must not be marked failed")
	}
	if msg := repo.failed[2]; !strings.Contains(msg, "publish panicked") {
		t.Errorf("expected panic to be recorded for post 2, got %q", msg)
	}
	if msg := repo.failed[3]; !strings.Contains(msg, "platform rejected") {
		t.Errorf("expected error to be recorded for post 3, got %q", msg)
	}
}

func TestRunWithNothingDue(t *testing.T) {
	repo := &fakePostRepo{}
	publisher := &scriptedPublisher{}

	NewScheduledPublishJob(repo, publisher).Run()

	if len(publisher.published) != 0 {
		t.Errorf("expected no publish attempts, got %d", len(publisher.published))
	}
}
