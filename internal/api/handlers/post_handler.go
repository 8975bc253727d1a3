package handlers

import (
	"encoding/json"
	"log/slog"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/postpilotapp/postpilot/internal/queue"
	"github.com/postpilotapp/postpilot/internal/service"
	"github.com/postpilotapp/postpilot/internal/transfer"
)

type PostHandler struct {
	s           service.PostService
	credits     service.CreditService
	AsynqClient *asynq.Client
}

func NewPostHandler(s service.PostService, credits service.CreditService, asynqClient *asynq.Client) *PostHandler {
	return &PostHandler{s: s, credits: credits, AsynqClient: asynqClient}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var files []*multipart.FileHeader
	form, err := c.MultipartForm()
	if err == nil && form != nil {
		files = form.File["files"]
	}

	pc := &transfer.PostCreation{
		Caption:            c.FormValue("caption"),
		Target:             c.FormValue("target"),
		PageID:             c.FormValue("page_id"),
		ScheduledTime:      c.FormValue("scheduled_time"),
		PlatformScheduling: c.FormValue("platform_scheduling") == "true",
	}

	if raw := c.FormValue("hashtags"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &pc.Hashtags); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid hashtags format",
			})
		}
	}
	if raw := c.FormValue("media_urls"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &pc.MediaURLs); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid media_urls format",
			})
		}
	}

	// Admission control always runs first; nothing external is touched when
	// the user is out of credits.
	admission, err := h.credits.TryDeduct(c.Context(), userID, 1)
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to check credits",
		})
	}
	if !admission.Allowed {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":     "Insufficient credits",
			"remaining": admission.Remaining,
		})
	}

	created, err := h.s.CreatePost(c.Context(), userID, pc, files)
	if err != nil {
		status := fiber.StatusInternalServerError
		if service.IsValidationError(err) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if created.EnqueueNow {
		err = queue.EnqueuePost(h.AsynqClient, queue.PublishPostPayload{
			PostID: created.PostID,
			Mode:   string(created.Mode),
		}, 0)
		if err != nil {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{
				"error": "Error enqueueing post for publishing",
			})
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":   "Post created successfully",
		"post_id":   created.PostID,
		"remaining": admission.Remaining,
	})
}

// PublishPost is the explicit "post now" / retry action: it re-enters the
// publish pipeline from scratch for a post the user owns.
func (h *PostHandler) PublishPost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID := c.QueryInt("id", 0)

	owned, err := h.s.CheckOwnership(c.Context(), int64(postID), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to verify post",
		})
	}
	if !owned {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Post doesn't exist",
		})
	}

	err = queue.EnqueuePost(h.AsynqClient, queue.PublishPostPayload{
		PostID: int64(postID),
		Mode:   string(service.PublishModeImmediate),
	}, 0)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Error enqueueing post for publishing",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Publish started",
	})
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	userId := GetUserID(c)
	postId := c.QueryInt("id", 0)

	if postId != 0 {
		post, err := h.s.PostInfo(c.Context(), int64(postId), userId)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to get post",
			})
		}

		return c.Status(fiber.StatusOK).JSON(post)
	}

	posts, err := h.s.List(c.Context(), userId)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postId := c.QueryInt("id", 0)

	err := h.s.Remove(c.Context(), userID, int64(postId))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove post",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
