package handlers

import (
	"log"
	"time"

	"talkasaurus/internal/queue"
	"talkasaurus/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AdminHandler handles the operator API: broadcast fan-out, analytics and
// feedback review.
type AdminHandler struct {
	userService     *services.UserService
	messageService  *services.MessageService
	reminderService *services.ReminderService
	feedbackService *services.FeedbackService
	jobs            *queue.Queue
	jobStats        *queue.MongoStore
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(userService *services.UserService, messageService *services.MessageService, reminderService *services.ReminderService, feedbackService *services.FeedbackService, jobs *queue.Queue, jobStats *queue.MongoStore) *AdminHandler {
	return &AdminHandler{
		userService:     userService,
		messageService:  messageService,
		reminderService: reminderService,
		feedbackService: feedbackService,
		jobs:            jobs,
		jobStats:        jobStats,
	}
}

// Broadcast enqueues one broadcast job per stored user. The admin never sees
// raw ids; recipient envelopes are copied from the user rows as-is.
// POST /api/admin/broadcast
func (h *AdminHandler) Broadcast(c *fiber.Ctx) error {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A non-empty message is required",
		})
	}

	users, err := h.userService.All(c.Context())
	if err != nil {
		log.Printf("❌ Broadcast user query failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load recipients",
		})
	}

	enqueued := 0
	for _, user := range users {
		if user.EncryptedRawID == "" {
			continue
		}
		payload := queue.BroadcastPayload{
			EncryptedRecipient: user.EncryptedRawID,
			KeyVersion:         user.KeyVersion,
			Message:            req.Message,
		}
		if _, err := h.jobs.Enqueue(c.Context(), queue.LaneBroadcast, payload); err != nil {
			log.Printf("⚠️ Broadcast enqueue failed for %s: %v", user.PseudonymID, err)
			continue
		}
		enqueued++
	}

	log.Printf("📣 Admin %v broadcast queued for %d of %d users", c.Locals("admin_subject"), enqueued, len(users))
	return c.JSON(fiber.Map{
		"recipients": len(users),
		"enqueued":   enqueued,
	})
}

// Analytics returns operational counts.
// GET /api/admin/analytics
func (h *AdminHandler) Analytics(c *fiber.Ctx) error {
	ctx := c.Context()

	totalUsers, err := h.userService.CountUsers(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to count users"})
	}
	dayAgo := time.Now().Add(-24 * time.Hour).UnixMilli()
	activeUsers, err := h.userService.CountActiveSince(ctx, dayAgo)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to count active users"})
	}
	totalMessages, err := h.messageService.CountMessages(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to count messages"})
	}
	pendingReminders, err := h.reminderService.CountPending(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to count reminders"})
	}

	response := fiber.Map{
		"users": fiber.Map{
			"total":         totalUsers,
			"activeLast24h": activeUsers,
		},
		"messages":         fiber.Map{"total": totalMessages},
		"pendingReminders": pendingReminders,
	}

	if h.jobStats != nil {
		jobCounts, err := h.jobStats.CountByState(ctx)
		if err != nil {
			log.Printf("⚠️ Job state counts failed: %v", err)
		} else {
			response["jobs"] = jobCounts
		}
	}

	return c.JSON(response)
}

// Feedback returns unreviewed feedback notes.
// GET /api/admin/feedback
func (h *AdminHandler) Feedback(c *fiber.Ctx) error {
	entries, err := h.feedbackService.Unreviewed(c.Context(), 100)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load feedback"})
	}
	return c.JSON(fiber.Map{"feedback": entries})
}

// MarkFeedbackReviewed flags feedback notes as handled.
// POST /api/admin/feedback/reviewed
func (h *AdminHandler) MarkFeedbackReviewed(c *fiber.Ctx) error {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.BodyParser(&req); err != nil || len(req.IDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ids is required"})
	}

	updated, err := h.feedbackService.MarkReviewed(c.Context(), req.IDs)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"reviewed": updated})
}
