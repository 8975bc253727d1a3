package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/postpilotapp/postpilot/internal/models"
	"github.com/postpilotapp/postpilot/internal/repository"
	"github.com/postpilotapp/postpilot/internal/transfer"
)

// CreatedPost tells the caller how to proceed after creation: immediate and
// platform-scheduled posts get enqueued right away, app-scheduled posts wait
// for the batch executor to pick them up when due.
type CreatedPost struct {
	PostID     int64
	Mode       PublishMode
	EnqueueNow bool
}

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (*CreatedPost, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error)
	Remove(ctx context.Context, userID, postID int64) error
	CheckOwnership(ctx context.Context, postID, userID int64) (bool, error)
}

type postService struct {
	db       *sql.DB
	pr       repository.PostRepository
	ma       repository.MediaAssetRepository
	pm       repository.PostMediaRepository
	storage  ObjectStorage
	validate *validator.Validate
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	ma repository.MediaAssetRepository,
	pm repository.PostMediaRepository,
	storage ObjectStorage) PostService {
	return &postService{
		db:       db,
		pr:       pr,
		ma:       ma,
		pm:       pm,
		storage:  storage,
		validate: validator.New(),
	}
}

func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (*CreatedPost, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return nil, err
	}

	if err := s.validate.Struct(pc); err != nil {
		return nil, NewValidationError("invalid post: %s", err.Error())
	}

	mediaCount := len(files) + len(pc.MediaURLs)
	if mediaCount > models.MaxCarouselItems {
		return nil, NewValidationError("post has %d media items, maximum is %d", mediaCount, models.MaxCarouselItems)
	}
	if pc.Target == models.TargetInstagram && mediaCount == 0 {
		return nil, NewValidationError("the business media target requires at least one media item")
	}

	scheduledTime, err := parseScheduledTime(pc.ScheduledTime)
	if err != nil {
		return nil, err
	}

	status := models.PostStatusDraft
	mode := PublishModeImmediate
	enqueueNow := true

	if scheduledTime.Valid && scheduledTime.Time.After(time.Now()) {
		if pc.PlatformScheduling {
			// Push to the platform now; the platform publishes at the
			// scheduled instant.
			mode = PublishModePlatformScheduled
		} else {
			// App-level scheduling: the batch executor publishes when due.
			status = models.PostStatusScheduled
			enqueueNow = false
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	post := models.Post{
		UserID:        userID,
		Caption:       pc.Caption,
		Hashtags:      pc.Hashtags,
		Target:        pc.Target,
		PageID:        pc.PageID,
		ScheduledTime: scheduledTime,
		Status:        status,
	}

	postID, err := s.pr.Create(ctx, tx, &post)
	if err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}

	if err = s.processFiles(ctx, tx, userID, postID, files, pc.MediaURLs); err != nil {
		return nil, fmt.Errorf("error processing media: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &CreatedPost{PostID: postID, Mode: mode, EnqueueNow: enqueueNow}, nil
}

// parseScheduledTime accepts RFC 3339 only, so the client's zone offset is
// always explicit.
func parseScheduledTime(value string) (sql.NullTime, error) {
	if value == "" {
		return sql.NullTime{}, nil
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return sql.NullTime{}, NewValidationError("invalid scheduled time format: %s", err.Error())
	}

	return sql.NullTime{Time: t, Valid: true}, nil
}

// processFiles uploads blobs to the object store and records every media
// reference as an asset, preserving display order across files and URLs.
func (s *postService) processFiles(ctx context.Context, tx *sql.Tx, userID, postID int64, files []*multipart.FileHeader, mediaURLs []string) error {
	allowedTypes := map[string]struct{}{
		"mp4": {}, "mov": {}, "jpeg": {}, "png": {}, "jpg": {}, "gif": {},
	}

	order := 0
	for _, file := range files {
		fileContent, err := file.Open()
		if err != nil {
			return fmt.Errorf("error opening file: %w", err)
		}

		fileBytes, err := io.ReadAll(fileContent)
		fileContent.Close()
		if err != nil {
			return fmt.Errorf("error reading file content: %w", err)
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			return NewValidationError("unsupported file type")
		}
		if _, ok := allowedTypes[fileType.Extension]; !ok {
			return NewValidationError("file type %s is not allowed", fileType.Extension)
		}

		assetID, err := s.saveBlob(ctx, tx, userID, fileType.MIME.Value, fileBytes)
		if err != nil {
			return fmt.Errorf("error uploading file: %w", err)
		}

		if err := s.pm.Create(ctx, tx, &models.PostMedia{PostID: postID, AssetID: assetID, DisplayOrder: order}); err != nil {
			return fmt.Errorf("error saving media file: %w", err)
		}
		order++
	}

	for _, mediaURL := range mediaURLs {
		if !strings.HasPrefix(mediaURL, "http://") && !strings.HasPrefix(mediaURL, "https://") && !strings.HasPrefix(mediaURL, "data:") {
			return NewValidationError("media reference %q is not a URL or inline payload", mediaURL)
		}

		name, err := gonanoid.New()
		if err != nil {
			return err
		}

		ma := models.MediaAsset{
			UserID:   userID,
			FileName: name,
			FileURL:  mediaURL,
		}
		assetID, err := s.ma.Create(ctx, tx, &ma)
		if err != nil {
			return err
		}

		if err := s.pm.Create(ctx, tx, &models.PostMedia{PostID: postID, AssetID: assetID, DisplayOrder: order}); err != nil {
			return fmt.Errorf("error saving media reference: %w", err)
		}
		order++
	}

	return nil
}

func (s *postService) saveBlob(ctx context.Context, tx *sql.Tx, userID int64, contentType string, data []byte) (int64, error) {
	key, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	publicURL, err := s.storage.Upload(ctx, key, data, contentType)
	if err != nil {
		return 0, err
	}

	audioStatus := ""
	if strings.HasPrefix(contentType, "video") {
		// Audio presence is not probed here; mark it unchecked instead of
		// assuming every video has a track.
		audioStatus = models.AudioStatusUnchecked
	}

	ma := models.MediaAsset{
		UserID:      userID,
		FileName:    key,
		FileType:    contentType,
		FileSize:    int64(len(data)),
		FileURL:     publicURL,
		AudioStatus: audioStatus,
	}

	assetID, err := s.ma.Create(ctx, tx, &ma)
	if err != nil {
		return 0, err
	}

	return assetID, nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error) {
	var err error

	if userID == 0 {
		err = errors.New("user is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	if postID == 0 {
		err = errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	if !isValid {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post info")
	}

	return post, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing posts")
	}
	return posts, nil
}

func (s *postService) CheckOwnership(ctx context.Context, postID, userID int64) (bool, error) {
	return s.pr.CheckByUserID(ctx, postID, userID)
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	var err error

	if userID == 0 {
		err = errors.New("user is not valid")
		slog.Info(err.Error())
		return err
	}

	if postID == 0 {
		err = errors.New("post_id is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return err
	}

	err = s.pr.Remove(ctx, postID)
	if err != nil {
		return fmt.Errorf("error removing post")
	}

	return nil
}
