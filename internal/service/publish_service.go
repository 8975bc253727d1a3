package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	config "github.com/postpilotapp/postpilot/configs"
	"github.com/postpilotapp/postpilot/internal/models"
	"github.com/postpilotapp/postpilot/internal/repository"
	"github.com/postpilotapp/postpilot/internal/transfer"
	"github.com/postpilotapp/postpilot/pkg/utils"
)

// PublishService drives one post through the whole publish flow: resolve
// credentials, prepare media, invoke the adapter(s) for the post's target,
// and write the terminal status back. Post-level failures are recorded on the
// post rather than returned, so one post can never abort a batch.
type PublishService interface {
	PublishPost(ctx context.Context, postID int64, mode PublishMode) error
}

type publishService struct {
	cfg   config.Config
	pr    repository.PostRepository
	sa    repository.SocialAccountRepository
	pm    repository.PostMediaRepository
	ma    repository.MediaAssetRepository
	pa    repository.PublishAttemptRepository
	media MediaService
	fb    FacebookService
	ig    InstagramService
}

func NewPublishService(
	cfg config.Config,
	pr repository.PostRepository,
	sa repository.SocialAccountRepository,
	pm repository.PostMediaRepository,
	ma repository.MediaAssetRepository,
	pa repository.PublishAttemptRepository,
	media MediaService,
	fb FacebookService,
	ig InstagramService) PublishService {
	return &publishService{
		cfg:   cfg,
		pr:    pr,
		sa:    sa,
		pm:    pm,
		ma:    ma,
		pa:    pa,
		media: media,
		fb:    fb,
		ig:    ig,
	}
}

func (s *publishService) PublishPost(ctx context.Context, postID int64, mode PublishMode) error {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("post %d not found", postID)
	}
	if post.Status == models.PostStatusPosted {
		// Already live; a repeated invocation is a no-op.
		return nil
	}

	assets, err := s.loadAssets(ctx, postID)
	if err != nil {
		return fmt.Errorf("error loading media for post %d: %w", postID, err)
	}

	// Client-side validation happens before any platform call.
	var igPrecheck error
	if post.WantsInstagram() {
		if len(assets) == 0 {
			igPrecheck = NewValidationError("post has no media, the business media target requires at least one item")
		} else if len(assets) > models.MaxCarouselItems {
			igPrecheck = NewValidationError("carousel has %d items, maximum is %d", len(assets), models.MaxCarouselItems)
		}
	}
	if igPrecheck != nil && post.Target == models.TargetInstagram {
		post.Status = models.PostStatusFailed
		post.InstagramError = igPrecheck.Error()
		return s.pr.UpdateResult(ctx, post)
	}

	prepared, err := s.media.PrepareMedia(ctx, assets, post.WantsInstagram())
	if err != nil {
		post.Status = models.PostStatusFailed
		post.LastError = err.Error()
		if post.WantsFacebook() {
			post.FacebookError = err.Error()
		}
		if post.WantsInstagram() {
			post.InstagramError = err.Error()
		}
		return s.pr.UpdateResult(ctx, post)
	}

	content := &transfer.PublishContent{
		Caption:  post.Caption,
		Hashtags: post.Hashtags,
		Media:    prepared,
		PageID:   post.PageID,
	}
	if post.ScheduledTime.Valid {
		t := post.ScheduledTime.Time
		content.ScheduledTime = &t
	}

	var fbRes, igRes *transfer.PublishResult

	if post.WantsFacebook() {
		fbRes = s.publishFacebook(ctx, post, content, mode)
		s.recordAttempt(ctx, post, models.PlatformFacebook, fbRes)
	}

	if post.WantsInstagram() {
		if igPrecheck != nil {
			igRes = &transfer.PublishResult{Err: igPrecheck}
		} else {
			igRes = s.publishInstagram(ctx, post, content, mode)
		}
		s.recordAttempt(ctx, post, models.PlatformInstagram, igRes)
	}

	// A both-platform post counts as posted when at least one side succeeded;
	// the failing side's error stays on the post for display.
	applyResult(post, fbRes, igRes)

	return s.pr.UpdateResult(ctx, post)
}

func (s *publishService) publishFacebook(ctx context.Context, post *models.Post, content *transfer.PublishContent, mode PublishMode) *transfer.PublishResult {
	cred, err := s.resolveFeedCredential(ctx, post)
	if err != nil {
		return &transfer.PublishResult{Err: err}
	}
	return s.fb.PublishToFeed(ctx, content, cred, mode)
}

func (s *publishService) publishInstagram(ctx context.Context, post *models.Post, content *transfer.PublishContent, mode PublishMode) *transfer.PublishResult {
	cred, err := s.resolveBusinessMediaCredential(ctx, post)
	if err != nil {
		return &transfer.PublishResult{Err: err}
	}
	return s.ig.PublishMedia(ctx, content, cred, mode)
}

func applyResult(post *models.Post, fbRes, igRes *transfer.PublishResult) {
	anySuccess := false

	if fbRes != nil {
		if fbRes.Success {
			anySuccess = true
			post.FacebookPostID = fbRes.ExternalID
			post.FacebookError = ""
		} else if fbRes.Err != nil {
			post.FacebookError = fbRes.Err.Error()
		}
	}

	if igRes != nil {
		if igRes.Success {
			anySuccess = true
			post.InstagramPostID = igRes.ExternalID
			post.InstagramError = ""
		} else if igRes.Err != nil {
			post.InstagramError = igRes.Err.Error()
		}
	}

	if anySuccess {
		post.Status = models.PostStatusPosted
		post.LastError = ""
	} else {
		post.Status = models.PostStatusFailed
	}
}

func (s *publishService) loadAssets(ctx context.Context, postID int64) ([]*models.MediaAsset, error) {
	postMedias, err := s.pm.ListByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}

	assets := make([]*models.MediaAsset, 0, len(postMedias))
	for _, pm := range postMedias {
		asset, err := s.ma.GetByID(ctx, pm.AssetID)
		if err != nil {
			return nil, err
		}
		if asset == nil || asset.FileURL == "" {
			return nil, fmt.Errorf("media asset %d is missing or incomplete", pm.AssetID)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

// resolveFeedCredential builds the typed feed credential once, at the adapter
// boundary. Missing or expired rows surface as ErrReauthRequired so the UI
// can prompt a reconnect.
func (s *publishService) resolveFeedCredential(ctx context.Context, post *models.Post) (*models.FeedCredential, error) {
	acc, err := s.sa.GetByUserAndPlatform(ctx, post.UserID, models.PlatformFacebook)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("%w: no connected facebook page", ErrReauthRequired)
	}

	token, err := s.decryptToken(acc)
	if err != nil {
		return nil, err
	}

	pageID := post.PageID
	if pageID == "" {
		pageID = acc.AccountID
	}

	return &models.FeedCredential{
		PageID:      pageID,
		PageName:    acc.AccountName,
		AccessToken: token,
	}, nil
}

// resolveBusinessMediaCredential prefers a directly connected business media
// account, then falls back to the one linked to the facebook page. Neither
// existing is its own distinct failure so a both-platform post can still
// succeed on the feed side.
func (s *publishService) resolveBusinessMediaCredential(ctx context.Context, post *models.Post) (*models.BusinessMediaCredential, error) {
	acc, err := s.sa.GetByUserAndPlatform(ctx, post.UserID, models.PlatformInstagram)
	if err != nil {
		return nil, err
	}
	if acc != nil {
		token, err := s.decryptToken(acc)
		if err != nil {
			return nil, err
		}
		return &models.BusinessMediaCredential{AccountID: acc.AccountID, AccessToken: token}, nil
	}

	fbAcc, err := s.sa.GetByUserAndPlatform(ctx, post.UserID, models.PlatformFacebook)
	if err != nil {
		return nil, err
	}
	if fbAcc == nil || fbAcc.LinkedIGAccountID == "" {
		return nil, ErrNoLinkedAccount
	}

	token, err := s.decryptToken(fbAcc)
	if err != nil {
		return nil, err
	}
	return &models.BusinessMediaCredential{AccountID: fbAcc.LinkedIGAccountID, AccessToken: token}, nil
}

func (s *publishService) decryptToken(acc *models.SocialAccount) (string, error) {
	if !acc.TokenExpiresAt.IsZero() && acc.TokenExpiresAt.Before(time.Now()) {
		return "", fmt.Errorf("%w: %s token expired at %s", ErrReauthRequired, acc.Platform, acc.TokenExpiresAt.Format(time.RFC3339))
	}

	token, err := utils.Decrypt(acc.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return "", fmt.Errorf("%w: could not decrypt stored token", ErrReauthRequired)
	}
	return token, nil
}

func (s *publishService) recordAttempt(ctx context.Context, post *models.Post, platform string, res *transfer.PublishResult) {
	attempt := &models.PublishAttempt{
		UserID:   post.UserID,
		PostID:   post.ID,
		Platform: platform,
	}
	if res != nil {
		attempt.ExternalID = res.ExternalID
		if res.Err != nil {
			attempt.ErrorMessage = res.Err.Error()
			slog.Info("publish attempt failed", "platform", platform, "post_id", post.ID, "error", res.Err.Error())
		}
	}
	if _, err := s.pa.Create(ctx, attempt); err != nil {
		slog.Info("error saving publish attempt", "post_id", post.ID, "error", err.Error())
	}
}
