package bot

import (
	"context"
	"fmt"
	"strings"

	"talkasaurus/internal/models"
)

func (b *Bot) cmdStart(ctx context.Context, chatID string) error {
	return b.reply(ctx, chatID, welcomeText)
}

func (b *Bot) cmdClear(ctx context.Context, pseudonym, chatID string) error {
	deleted, err := b.messages.ClearHistory(ctx, pseudonym)
	if err != nil {
		return err
	}
	return b.reply(ctx, chatID, fmt.Sprintf("🧹 Cleared %d messages. We're starting fresh.", deleted))
}

func (b *Bot) cmdTemporary(ctx context.Context, pseudonym, chatID string, on bool) error {
	if err := b.users.SetTemporaryMode(ctx, pseudonym, on); err != nil {
		return err
	}
	if on {
		return b.reply(ctx, chatID, "🕶️ Temporary mode is on. Messages from now on are deleted when you turn it off or after a day of silence.")
	}

	// Leaving temporary mode discards the turns written during it.
	deleted, err := b.messages.DeleteTemporary(ctx, pseudonym)
	if err != nil {
		return err
	}
	return b.reply(ctx, chatID, fmt.Sprintf("Temporary mode is off. %d temporary messages were deleted.", deleted))
}

func (b *Bot) cmdCurrentMode(ctx context.Context, pseudonym, chatID string) error {
	user, err := b.users.GetByPseudonym(ctx, pseudonym)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("⚙️ Current settings:\n")
	if user.TemporaryMode {
		sb.WriteString("• Temporary mode: on\n")
	} else {
		sb.WriteString("• Temporary mode: off\n")
	}
	if user.Subscribed {
		sb.WriteString("• Daily messages: on\n")
	} else {
		sb.WriteString("• Daily messages: off\n")
	}
	sb.WriteString("• Writing style: " + strings.ToLower(user.WritingStyle))
	return b.reply(ctx, chatID, sb.String())
}

func (b *Bot) cmdCustomInstructions(ctx context.Context, pseudonym, chatID, args string) error {
	if args == "" {
		return b.reply(ctx, chatID, "Tell me how you'd like me to behave, e.g.\n/custom_instructions Always answer in French. Use /custom_instructions clear to remove them.")
	}
	if strings.EqualFold(args, "clear") {
		if err := b.users.SetCustomInstructions(ctx, pseudonym, ""); err != nil {
			return err
		}
		return b.reply(ctx, chatID, "Custom instructions removed.")
	}
	if err := b.users.SetCustomInstructions(ctx, pseudonym, args); err != nil {
		return err
	}
	return b.reply(ctx, chatID, "📝 Got it. I'll keep that in mind from now on.")
}

func (b *Bot) cmdWritingStyle(ctx context.Context, pseudonym, chatID, args string) error {
	style := strings.ToUpper(strings.TrimSpace(args))
	if style == "" || !models.ValidWritingStyle(style) {
		return b.reply(ctx, chatID, "Pick one of: default, formal, descriptive, concise.\nFor example: /writing_style concise")
	}
	if err := b.users.SetWritingStyle(ctx, pseudonym, style); err != nil {
		return err
	}
	return b.reply(ctx, chatID, "✍️ Writing style set to "+strings.ToLower(style)+".")
}

func (b *Bot) cmdSubscribe(ctx context.Context, pseudonym, chatID string, subscribed bool) error {
	if err := b.users.SetSubscribed(ctx, pseudonym, subscribed); err != nil {
		return err
	}
	if subscribed {
		return b.reply(ctx, chatID, "🔔 Daily messages are on.")
	}
	return b.reply(ctx, chatID, "🔕 Daily messages are off. Come back anytime with /subscribe.")
}

func (b *Bot) cmdFeedback(ctx context.Context, chatID, args string) error {
	if args == "" {
		return b.reply(ctx, chatID, "What would you like to tell us? For example:\n/feedback The reminders are great!")
	}
	if err := b.feedback.Submit(ctx, args); err != nil {
		return err
	}
	return b.reply(ctx, chatID, "💌 Thank you, your feedback has been passed on. It is stored without any link to you.")
}
