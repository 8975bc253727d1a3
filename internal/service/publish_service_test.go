package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	config "github.com/postpilotapp/postpilot/configs"
	"github.com/postpilotapp/postpilot/internal/models"
	"github.com/postpilotapp/postpilot/internal/transfer"
	"github.com/postpilotapp/postpilot/pkg/utils"
)

const testSecretKey = "0123456789abcdef0123456789abcdef"

type fakePostRepo struct {
	posts   map[int64]*models.Post
	updated []*models.Post
	failed  map[int64]string
}

func newFakePostRepo(posts ...*models.Post) *fakePostRepo {
	r := &fakePostRepo{posts: make(map[int64]*models.Post), failed: make(map[int64]string)}
	for _, p := range posts {
		r.posts[p.ID] = p
	}
	return r
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	return r.posts[id], nil
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
	r.updated = append(r.updated, post)
	return nil
}

func (r *fakePostRepo) MarkFailed(ctx context.Context, postID int64, message string) error {
	r.failed[postID] = message
	return nil
}

func (r *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	return false, nil
}

func (r *fakePostRepo) Remove(ctx context.Context, id int64) error {
	return nil
}

type fakeSocialAccountRepo struct {
	accounts []*models.SocialAccount
}

func (r *fakeSocialAccountRepo) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	return 0, nil
}

func (r *fakeSocialAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	return nil, nil
}

func (r *fakeSocialAccountRepo) GetByUserAndPlatform(ctx context.Context, userID int64, platform string) (*models.SocialAccount, error) {
	for _, acc := range r.accounts {
		if acc.UserID == userID && acc.Platform == platform {
			return acc, nil
		}
	}
	return nil, nil
}

func (r *fakeSocialAccountRepo) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (r *fakeSocialAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	return false, nil
}

func (r *fakeSocialAccountRepo) Remove(ctx context.Context, id int64) error {
	return nil
}

type fakePostMediaRepo struct {
	items []*models.PostMedia
}

func (r *fakePostMediaRepo) Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error {
	return nil
}

func (r *fakePostMediaRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error) {
	return r.items, nil
}

func (r *fakePostMediaRepo) Remove(ctx context.Context, postID int64) error {
	return nil
}

type fakeAssetRepo struct {
	mediaAssetRepoStub
	assets map[int64]*models.MediaAsset
}

func (r *fakeAssetRepo) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	return r.assets[id], nil
}

type fakeAttemptRepo struct {
	attempts []*models.PublishAttempt
}

func (r *fakeAttemptRepo) Create(ctx context.Context, pa *models.PublishAttempt) (int64, error) {
	r.attempts = append(r.attempts, pa)
	return int64(len(r.attempts)), nil
}

func (r *fakeAttemptRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PublishAttempt, error) {
	return r.attempts, nil
}

type fakeMediaService struct {
	prepared []transfer.PreparedMedia
	err      error
	calls    int
	flags    []bool
}

func (s *fakeMediaService) PrepareMedia(ctx context.Context, assets []*models.MediaAsset, businessMedia bool) ([]transfer.PreparedMedia, error) {
	s.calls++
	s.flags = append(s.flags, businessMedia)
	if s.err != nil {
		return nil, s.err
	}
	return s.prepared, nil
}

type fakeFeedAdapter struct {
	result *transfer.PublishResult
	creds  []*models.FeedCredential
}

func (a *fakeFeedAdapter) PublishToFeed(ctx context.Context, content *transfer.PublishContent, cred *models.FeedCredential, mode PublishMode) *transfer.PublishResult {
	a.creds = append(a.creds, cred)
	return a.result
}

type fakeBusinessMediaAdapter struct {
	result *transfer.PublishResult
	creds  []*models.BusinessMediaCredential
}

func (a *fakeBusinessMediaAdapter) PublishMedia(ctx context.Context, content *transfer.PublishContent, cred *models.BusinessMediaCredential, mode PublishMode) *transfer.PublishResult {
	a.creds = append(a.creds, cred)
	return a.result
}

type publishFixture struct {
	cfg      config.Config
	posts    *fakePostRepo
	accounts *fakeSocialAccountRepo
	media    *fakeMediaService
	attempts *fakeAttemptRepo
	fb       *fakeFeedAdapter
	ig       *fakeBusinessMediaAdapter
	svc      PublishService
}

func encryptedToken(t *testing.T) string {
	t.Helper()
	token, err := utils.Encrypt([]byte("token"), []byte(testSecretKey))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func newPublishFixture(t *testing.T, post *models.Post, withMedia bool) *publishFixture {
	t.Helper()

	f := &publishFixture{
		cfg:   config.Config{SecretKey: testSecretKey},
		posts: newFakePostRepo(post),
		accounts: &fakeSocialAccountRepo{accounts: []*models.SocialAccount{
			{
				UserID:            post.UserID,
				Platform:          models.PlatformFacebook,
				AccountID:         "page1",
				LinkedIGAccountID: "ig99",
				AccessToken:       encryptedToken(t),
			},
		}},
		media:    &fakeMediaService{},
		attempts: &fakeAttemptRepo{},
		fb:       &fakeFeedAdapter{result: &transfer.PublishResult{Success: true, ExternalID: "fb1"}},
		ig:       &fakeBusinessMediaAdapter{result: &transfer.PublishResult{Success: true, ExternalID: "ig1"}},
	}

	pm := &fakePostMediaRepo{}
	assets := &fakeAssetRepo{assets: make(map[int64]*models.MediaAsset)}
	if withMedia {
		pm.items = []*models.PostMedia{{PostID: post.ID, AssetID: 10, DisplayOrder: 0}}
		assets.assets[10] = &models.MediaAsset{ID: 10, FileURL: "https://cdn.example.com/a.png", FileType: "image/png"}
		f.media.prepared = []transfer.PreparedMedia{{URL: "https://cdn.example.com/a.png", Kind: transfer.MediaKindImage}}
	}

	f.svc = NewPublishService(f.cfg, f.posts, f.accounts, pm, assets, f.attempts, f.media, f.fb, f.ig)
	return f
}

func bothTargetPost() *models.Post {
	return &models.Post{ID: 1, UserID: 5, Caption: "hi", Target: models.TargetBoth, Status: models.PostStatusDraft}
}

func TestPublishPostPartialSuccessIsSuccess(t *testing.T) {
	post := bothTargetPost()
	f := newPublishFixture(t, post, true)
	f.ig.result = &transfer.PublishResult{Err: fmt.Errorf("%w: token expired", ErrReauthRequired)}

	if err := f.svc.PublishPost(context.Background(), 1, PublishModeImmediate); err != nil {
		t.Fatal(err)
	}

	if post.Status != models.PostStatusPosted {
		t.Errorf("expected posted when one platform succeeds, got %s", post.Status)
	}
	if post.FacebookPostID != "fb1" {
		t.Errorf("expected facebook post id fb1, got %s", post.FacebookPostID)
	}
	if post.FacebookError != "" {
		t.Errorf("expected no facebook error, got %q", post.FacebookError)
	}
	if !strings.Contains(post.InstagramError, "token expired") {
		t.Errorf("expected instagram error to be kept, got %q", post.InstagramError)
	}
	if len(f.attempts.attempts) != 2 {
		t.Errorf("expected one attempt per platform, got %d", len(f.attempts.attempts))
	}
	if len(f.posts.updated) != 1 {
		t.Fatalf("expected one result update, got %d", len(f.posts.updated))
	}
}

func TestPublishPostBothSucceed(t *testing.T) {
	post := bothTargetPost()
	f := newPublishFixture(t, post, true)

	if err := f.svc.PublishPost(context.Background(), 1, PublishModeImmediate); err != nil {
		t.Fatal(err)
	}

	if post.Status != models.PostStatusPosted {
		t.Errorf("expected posted, got %s", post.Status)
	}
	if post.FacebookPostID != "fb1" || post.InstagramPostID != "ig1" {
		t.Errorf("expected both external ids, got fb=%q ig=%q", post.FacebookPostID, post.InstagramPostID)
	}
}

func TestPublishPostBothFail(t *testing.T) {
	post := bothTargetPost()
	f := newPublishFixture(t, post, true)
	f.fb.result = &transfer.PublishResult{Err: &PlatformError{Platform: models.PlatformFacebook, Message: "feed down"}}
	f.ig.result = &transfer.PublishResult{Err: &PlatformError{Platform: models.PlatformInstagram, Message: "media down"}}

	if err := f.svc.PublishPost(context.Background(), 1, PublishModeImmediate); err != nil {
		t.Fatal(err)
	}

	if post.Status != models.PostStatusFailed {
		t.Errorf("expected failed when every platform fails, got %s", post.Status)
	}
	if post.FacebookError == "" || post.InstagramError == "" {
		t.Errorf("expected both errors kept, got fb=%q ig=%q", post.FacebookError, post.InstagramError)
	}
}

func TestPublishPostInstagramOnlyWithoutMedia(t *testing.T) {
	post := &models.Post{ID: 1, UserID: 5, Target: models.TargetInstagram, Status: models.PostStatusDraft}
	f := newPublishFixture(t, post, false)

	if err := f.svc.PublishPost(context.Background(), 1, PublishModeImmediate); err != nil {
		t.Fatal(err)
	}

	if post.Status != models.PostStatusFailed {
		t.Errorf("expected failed, got %s", post.Status)
	}
	if post.InstagramError == "" {
		t.Error("expected a validation error on the instagram side")
	}
	if f.media.calls != 0 {
		t.Error("media pipeline must not run for an invalid instagram-only post")
	}
	if len(f.ig.creds) != 0 {
		t.Error("adapter must not be called for an invalid instagram-only post")
	}
}

func TestPublishPostAlreadyPostedIsNoOp(t *testing.T) {
	post := bothTargetPost()
	post.Status = models.PostStatusPosted
	f := newPublishFixture(t, post, true)

	if err := f.svc.PublishPost(context.Background(), 1, PublishModeImmediate); err != nil {
		t.Fatal(err)
	}

	if len(f.fb.creds) != 0 || len(f.ig.creds) != 0 {
		t.Error("a posted post must not be re-published")
	}
	if len(f.posts.updated) != 0 {
		t.Error("a posted post must not be updated")
	}
}

func TestPublishPostExpiredTokenRequiresReauth(t *testing.T) {
	post := &models.Post{ID: 1, UserID: 5, Target: models.TargetFacebook, Status: models.PostStatusDraft}
	f := newPublishFixture(t, post, true)
	f.accounts.accounts[0].TokenExpiresAt = time.Now().Add(-time.Hour)

	if err := f.svc.PublishPost(context.Background(), 1, PublishModeImmediate); err != nil {
		t.Fatal(err)
	}

	if post.Status != models.PostStatusFailed {
		t.Errorf("expected failed, got %s", post.Status)
	}
	if !strings.Contains(post.FacebookError, ErrReauthRequired.Error()) {
		t.Errorf("expected reauth error on the facebook side, got %q", post.FacebookError)
	}
	if len(f.fb.creds) != 0 {
		t.Error("adapter must not be called with an expired credential")
	}
}

func TestPublishPostBusinessMediaFallsBackToLinkedAccount(t *testing.T) {
	post := &models.Post{ID: 1, UserID: 5, Target: models.TargetInstagram, Status: models.PostStatusDraft}
	f := newPublishFixture(t, post, true)

	if err := f.svc.PublishPost(context.Background(), 1, PublishModeImmediate); err != nil {
		t.Fatal(err)
	}

	if len(f.ig.creds) != 1 {
		t.Fatalf("expected one adapter call, got %d", len(f.ig.creds))
	}
	if f.ig.creds[0].AccountID != "ig99" {
		t.Errorf("expected the linked business account id, got %s", f.ig.creds[0].AccountID)
	}
	if len(f.media.flags) != 1 || !f.media.flags[0] {
		t.Errorf("business-media post must prepare media with the gate enabled, got %v", f.media.flags)
	}
	if post.Status != models.PostStatusPosted {
		t.Errorf("expected posted, got %s", post.Status)
	}
}

func TestPublishPostFeedTargetSkipsGeometryGate(t *testing.T) {
	post := &models.Post{ID: 1, UserID: 5, Target: models.TargetFacebook, Status: models.PostStatusDraft}
	f := newPublishFixture(t, post, true)

	if err := f.svc.PublishPost(context.Background(), 1, PublishModeImmediate); err != nil {
		t.Fatal(err)
	}

	if len(f.media.flags) != 1 || f.media.flags[0] {
		t.Errorf("feed-only post must prepare media without the business-media gate, got %v", f.media.flags)
	}
	if len(f.fb.creds) != 1 {
		t.Fatalf("expected the feed adapter to be called, got %d calls", len(f.fb.creds))
	}
	if post.Status != models.PostStatusPosted {
		t.Errorf("expected posted, got %s", post.Status)
	}
}

func TestPublishPostMediaPipelineFailureMarksTargets(t *testing.T) {
	post := bothTargetPost()
	f := newPublishFixture(t, post, true)
	f.media.err = NewValidationError("media aspect ratio 3.00 is out of range and resize failed")

	if err := f.svc.PublishPost(context.Background(), 1, PublishModeImmediate); err != nil {
		t.Fatal(err)
	}

	if post.Status != models.PostStatusFailed {
		t.Errorf("expected failed, got %s", post.Status)
	}
	if post.FacebookError == "" || post.InstagramError == "" || post.LastError == "" {
		t.Errorf("expected the pipeline error on every targeted side, got fb=%q ig=%q last=%q",
			post.FacebookError, post.InstagramError, post.LastError)
	}
	if len(f.fb.creds) != 0 || len(f.ig.creds) != 0 {
		t.Error("adapters must not be called when media preparation fails")
	}
}
