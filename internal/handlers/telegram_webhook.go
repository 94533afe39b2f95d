package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"time"

	"talkasaurus/internal/bot"
	"talkasaurus/internal/lifecycle"
	"talkasaurus/internal/telegram"

	"github.com/gofiber/fiber/v2"
)

// TelegramWebhookHandler receives Bot API updates.
type TelegramWebhookHandler struct {
	bot         *bot.Bot
	secretToken string
	life        *lifecycle.Lifecycle
}

// NewTelegramWebhookHandler creates a new webhook handler
func NewTelegramWebhookHandler(b *bot.Bot, secretToken string, life *lifecycle.Lifecycle) *TelegramWebhookHandler {
	return &TelegramWebhookHandler{
		bot:         b,
		secretToken: secretToken,
		life:        life,
	}
}

// Handle processes one webhook delivery. Telegram echoes the secret token we
// registered; anything else is not Telegram. A 200 is returned even while
// draining, otherwise Telegram retries the update into the next deploy.
// POST /webhook/telegram
func (h *TelegramWebhookHandler) Handle(c *fiber.Ctx) error {
	headerToken := c.Get("X-Telegram-Bot-Api-Secret-Token")
	if subtle.ConstantTimeCompare([]byte(headerToken), []byte(h.secretToken)) != 1 {
		return c.SendStatus(fiber.StatusForbidden)
	}

	if !h.life.Accepting() {
		log.Printf("⏸️ Draining, webhook update dropped")
		return c.SendStatus(fiber.StatusOK)
	}

	var update telegram.Update
	if err := json.Unmarshal(c.Body(), &update); err != nil {
		log.Printf("⚠️ Malformed webhook body: %v", err)
		return c.SendStatus(fiber.StatusOK)
	}

	// Acknowledge immediately. A chat turn can hold an AI call for many
	// seconds and Telegram redelivers updates it considers timed out.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		h.bot.HandleUpdate(ctx, &update)
	}()
	return c.SendStatus(fiber.StatusOK)
}
