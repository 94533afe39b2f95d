package bot

import (
	"context"
	"log/slog"
	"time"

	"talkasaurus/internal/ai"
	"talkasaurus/internal/logging"
	"talkasaurus/internal/models"
)

func (b *Bot) handleChatTurn(ctx context.Context, pseudonym, chatID, text string) {
	turnLog := logging.WithPseudonym(slog.Default(), pseudonym)

	if b.limiter != nil {
		_, exceeded, err := b.limiter.CheckRateLimit(ctx, "rate:chat:"+pseudonym, chatRateLimit, chatRateWindow)
		if err != nil {
			turnLog.Warn("rate limit check failed", "error", err)
		} else if exceeded {
			b.reply(ctx, chatID, "You're sending messages a bit fast. Give me a minute to catch up. 😅")
			return
		}
	}

	started := time.Now()

	user, err := b.users.GetByPseudonym(ctx, pseudonym)
	if err != nil {
		turnLog.Error("chat turn user lookup failed", "error", err)
		b.chatError(ctx, chatID, "lookup")
		return
	}

	instructions, err := b.users.CustomInstructions(user)
	if err != nil {
		// A broken envelope must not brick the conversation.
		turnLog.Warn("unreadable custom instructions", "error", err)
		instructions = ""
	}

	history, err := b.messages.History(ctx, pseudonym, historyWindow)
	if err != nil {
		turnLog.Error("chat turn history load failed", "error", err)
		b.chatError(ctx, chatID, "history")
		return
	}

	messages := make([]ai.Message, 0, len(history)+2)
	messages = append(messages, ai.Message{
		Role:    "system",
		Content: systemPrompt(user.WritingStyle, instructions),
	})
	for _, turn := range history {
		messages = append(messages, ai.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, ai.Message{Role: models.RoleUser, Content: text})

	// Completions take seconds; the typing indicator tells the user the bot
	// is still there.
	typingCtx, stopTyping := context.WithCancel(ctx)
	defer stopTyping()
	go b.sender.KeepTyping(typingCtx, chatID)

	answer, err := b.provider.Complete(ctx, messages)
	stopTyping()
	if err != nil {
		turnLog.Error("completion failed", "error", err)
		b.chatError(ctx, chatID, "completion")
		return
	}

	// Store both turns after the reply exists, so history never shows a user
	// message with no answer.
	if err := b.messages.Append(ctx, pseudonym, models.RoleUser, text, user.TemporaryMode); err != nil {
		turnLog.Warn("failed to store user turn", "error", err)
	}
	if err := b.messages.Append(ctx, pseudonym, models.RoleAssistant, answer, user.TemporaryMode); err != nil {
		turnLog.Warn("failed to store assistant turn", "error", err)
	}

	if err := b.reply(ctx, chatID, answer); err != nil {
		turnLog.Error("failed to deliver reply", "error", err)
		return
	}
	if b.metrics != nil {
		b.metrics.RecordChatTurn(time.Since(started).Seconds())
	}
}

func (b *Bot) chatError(ctx context.Context, chatID, errorType string) {
	if b.metrics != nil {
		b.metrics.RecordChatError(errorType)
	}
	b.reply(ctx, chatID, "Sorry, I couldn't process that right now. Please try again.")
}
