package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"talkasaurus/internal/queue"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var whenParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseReminder extracts the scheduled time and the reminder body from a
// natural-language request like "tomorrow at 9am call the dentist". The
// matched time fragment is removed from the body.
func parseReminder(text string, now time.Time) (time.Time, string, error) {
	result, err := whenParser.Parse(text, now)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("time parse: %w", err)
	}
	if result == nil {
		return time.Time{}, "", fmt.Errorf("no time expression found")
	}

	body := strings.TrimSpace(text[:result.Index] + text[result.Index+len(result.Text):])
	body = strings.TrimSpace(strings.Trim(body, ",.;:"))
	if body == "" {
		return time.Time{}, "", fmt.Errorf("empty reminder body")
	}
	if !result.Time.After(now) {
		return time.Time{}, "", fmt.Errorf("time %s is in the past", result.Time.Format(time.RFC1123))
	}
	return result.Time, body, nil
}

func (b *Bot) cmdRemindMe(ctx context.Context, pseudonym, chatID, args string) error {
	if args == "" {
		return b.reply(ctx, chatID, "Tell me when and what, e.g.\n/remindme tomorrow at 9am call the dentist")
	}

	remindAt, body, err := parseReminder(args, time.Now())
	if err != nil {
		return b.reply(ctx, chatID, "I couldn't find a future time in that. Try something like:\n/remindme in 2 hours stretch your legs")
	}

	// The reminder row is addressed by raw chat id, sealed by the service.
	reminderID, err := b.reminders.Create(ctx, chatID, body, remindAt)
	if err != nil {
		return err
	}

	if _, err := b.jobs.Enqueue(ctx, queue.LaneReminder,
		queue.ReminderPayload{ReminderID: reminderID},
		queue.WithNotBefore(remindAt),
	); err != nil {
		// The row exists; the minutely catch-up scan will still deliver it.
		return fmt.Errorf("reminder job enqueue: %w", err)
	}

	return b.reply(ctx, chatID, fmt.Sprintf("⏰ Will do. I'll remind you on %s.",
		remindAt.Format("Mon, 2 Jan 15:04")))
}
