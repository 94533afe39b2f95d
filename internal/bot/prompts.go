package bot

import (
	"context"
	"strings"

	"talkasaurus/internal/ai"
	"talkasaurus/internal/models"
)

const welcomeText = `👋 Hey, I'm Talkasaurus!

I'm here to chat, keep you company and help you think out loud. A few things I can do:

• Just talk to me, about anything
• /remindme tomorrow at 9am call the dentist
• /temporary_on for a session that leaves no history
• /writing_style to change how I sound

Your identity is pseudonymized and everything you write is encrypted at rest. Type /help for the full list.`

const aboutText = `Talkasaurus

An AI chat companion on Telegram. Conversations are encrypted at rest and your identity is pseudonymized; nobody reading the database can tell who said what. /help lists everything I can do.`

const contactText = `Questions or problems?

Use /feedback <text> to reach the team directly from here. Notes are stored without any link to your identity.`

const helpText = `Commands:

/about – what this bot is
/contact – how to reach the team
/clear – delete our conversation history
/temporary_on, /temporary_off – toggle no-history mode
/current_mode – show your current settings
/custom_instructions <text> – tell me how to behave ("clear" to remove)
/writing_style <default|formal|descriptive|concise>
/subscribe, /unsubscribe – daily messages on or off
/remindme <when> <what> – e.g. /remindme in 2 hours drink water
/feedback <text> – send the team a note (stored anonymously)`

const basePrompt = `You are Talkasaurus, a warm, curious chat companion on Telegram.
Keep replies conversational and reasonably short. Use Markdown sparingly.
Never claim to know who the user is; you only ever see a pseudonym.`

var stylePrompts = map[string]string{
	models.StyleFormal:      "Write in a polite, formal register. No slang, no emoji.",
	models.StyleDescriptive: "Write vividly, with detail and color. Take your time painting the picture.",
	models.StyleConcise:     "Be brief. Prefer one or two sentences. No filler.",
}

// systemPrompt assembles the system message from the base persona, the
// selected writing style and the user's custom instructions.
func systemPrompt(style, customInstructions string) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)
	if extra, ok := stylePrompts[style]; ok {
		sb.WriteString("\n\n")
		sb.WriteString(extra)
	}
	if customInstructions != "" {
		sb.WriteString("\n\nThe user asked you to follow these standing instructions:\n")
		sb.WriteString(customInstructions)
	}
	return sb.String()
}

const dailyPrompt = `Write a single short message (2-4 sentences) to gently re-engage someone
who hasn't talked to you in a while. Be warm, not needy. Vary the angle:
a question, a small thought, a nudge to share how their day is going.
Do not mention that they have been away. Plain text, at most one emoji.`

// DailyContent generates the daily engagement message. One instance is shared
// by the daily creator worker.
type DailyContent struct {
	provider ai.CompletionProvider
}

// NewDailyContent creates a daily content source.
func NewDailyContent(provider ai.CompletionProvider) *DailyContent {
	return &DailyContent{provider: provider}
}

// DailyMessage produces one day's engagement text.
func (d *DailyContent) DailyMessage(ctx context.Context) (string, error) {
	return d.provider.Complete(ctx, []ai.Message{
		{Role: "system", Content: dailyPrompt},
		{Role: "user", Content: "Write today's message."},
	})
}
