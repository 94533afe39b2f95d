// Package bot implements the conversational surface: command handlers and
// the chat turn, all working over resolved pseudonyms. Inbound transport is
// someone else's problem; updates arrive here already parsed.
package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"talkasaurus/internal/ai"
	"talkasaurus/internal/models"
	"talkasaurus/internal/queue"
	"talkasaurus/internal/services"
	"talkasaurus/internal/telegram"
)

// How many past turns feed the completion context.
const historyWindow = 30

// Chat turns allowed per user per minute.
const (
	chatRateLimit  = 20
	chatRateWindow = time.Minute
)

// Resolver maps raw external ids to pseudonyms.
type Resolver interface {
	Resolve(ctx context.Context, rawID string) (string, error)
}

// UserStore is the slice of the user service the bot needs.
type UserStore interface {
	GetByPseudonym(ctx context.Context, pseudonymID string) (*models.User, error)
	SetSubscribed(ctx context.Context, pseudonymID string, subscribed bool) error
	SetTemporaryMode(ctx context.Context, pseudonymID string, temporary bool) error
	SetWritingStyle(ctx context.Context, pseudonymID, style string) error
	SetCustomInstructions(ctx context.Context, pseudonymID, text string) error
	CustomInstructions(user *models.User) (string, error)
}

// MessageStore is the slice of the message service the bot needs.
type MessageStore interface {
	Append(ctx context.Context, pseudonymID, role, content string, temporary bool) error
	History(ctx context.Context, pseudonymID string, limit int64) ([]services.Turn, error)
	ClearHistory(ctx context.Context, pseudonymID string) (int64, error)
	DeleteTemporary(ctx context.Context, pseudonymID string) (int64, error)
}

// ReminderCreator stores a new reminder.
type ReminderCreator interface {
	Create(ctx context.Context, recipientRawID, body string, remindAt time.Time) (string, error)
}

// FeedbackSink stores feedback notes.
type FeedbackSink interface {
	Submit(ctx context.Context, text string) error
}

// RateLimiter is the rate-limit slice of the Redis service.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (int64, bool, error)
}

// Sender delivers replies back to the chat. KeepTyping blocks, refreshing the
// typing indicator until its context is cancelled.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
	KeepTyping(ctx context.Context, chatID string)
}

// Bot routes inbound updates to command handlers or the chat turn.
type Bot struct {
	identity  Resolver
	users     UserStore
	messages  MessageStore
	reminders ReminderCreator
	feedback  FeedbackSink
	jobs      *queue.Queue
	provider  ai.CompletionProvider
	sender    Sender
	limiter   RateLimiter
	metrics   *services.Metrics
}

// New creates a bot.
func New(identity Resolver, users UserStore, messages MessageStore, reminders ReminderCreator, feedback FeedbackSink, jobs *queue.Queue, provider ai.CompletionProvider, sender Sender, limiter RateLimiter, metrics *services.Metrics) *Bot {
	return &Bot{
		identity:  identity,
		users:     users,
		messages:  messages,
		reminders: reminders,
		feedback:  feedback,
		jobs:      jobs,
		provider:  provider,
		sender:    sender,
		limiter:   limiter,
		metrics:   metrics,
	}
}

// HandleUpdate processes one inbound update. Errors are handled here: the
// user gets a generic apology, details go to the log.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	if update.Message.From != nil && update.Message.From.IsBot {
		return
	}

	chatID := update.Message.ChatIDString()
	pseudonym, err := b.identity.Resolve(ctx, chatID)
	if err != nil {
		log.Printf("❌ Identity resolution failed: %v", err)
		b.reply(ctx, chatID, "Something went wrong on my side. Please try again in a moment.")
		return
	}

	text := strings.TrimSpace(update.Message.Text)
	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, pseudonym, chatID, text)
		return
	}
	b.handleChatTurn(ctx, pseudonym, chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, pseudonym, chatID, text string) {
	command, args := splitCommand(text)

	var err error
	switch command {
	case "/start":
		err = b.cmdStart(ctx, chatID)
	case "/help":
		err = b.reply(ctx, chatID, helpText)
	case "/about":
		err = b.reply(ctx, chatID, aboutText)
	case "/contact":
		err = b.reply(ctx, chatID, contactText)
	case "/clear":
		err = b.cmdClear(ctx, pseudonym, chatID)
	case "/temporary_on":
		err = b.cmdTemporary(ctx, pseudonym, chatID, true)
	case "/temporary_off":
		err = b.cmdTemporary(ctx, pseudonym, chatID, false)
	case "/current_mode":
		err = b.cmdCurrentMode(ctx, pseudonym, chatID)
	case "/custom_instructions":
		err = b.cmdCustomInstructions(ctx, pseudonym, chatID, args)
	case "/writing_style":
		err = b.cmdWritingStyle(ctx, pseudonym, chatID, args)
	case "/subscribe":
		err = b.cmdSubscribe(ctx, pseudonym, chatID, true)
	case "/unsubscribe":
		err = b.cmdSubscribe(ctx, pseudonym, chatID, false)
	case "/remindme":
		err = b.cmdRemindMe(ctx, pseudonym, chatID, args)
	case "/feedback":
		err = b.cmdFeedback(ctx, chatID, args)
	default:
		err = b.reply(ctx, chatID, "I don't know that command. Try /help.")
	}

	if err != nil {
		log.Printf("❌ Command %s failed for %s: %v", command, pseudonym, err)
		b.reply(ctx, chatID, "Something went wrong handling that command.")
	}
}

// splitCommand separates "/cmd rest of line" into the command and its
// argument string. The @botname suffix Telegram appends in groups is dropped.
func splitCommand(text string) (string, string) {
	command, args, _ := strings.Cut(text, " ")
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	return command, strings.TrimSpace(args)
}

func (b *Bot) reply(ctx context.Context, chatID, text string) error {
	if err := b.sender.SendMessage(ctx, chatID, text); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}
