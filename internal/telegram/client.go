// Package telegram is the outbound channel: Telegram Bot API calls with
// Markdown-to-HTML rendering and a global send throttle.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/leonid-shevtsov/telegold"
	"github.com/yuin/goldmark"
	"golang.org/x/time/rate"
)

// Markdown converter using telegold (goldmark with Telegram HTML renderer)
var markdownConverter = goldmark.New(goldmark.WithRenderer(telegold.NewRenderer()))

// convertToHTML converts standard Markdown to Telegram-compatible HTML.
func convertToHTML(text string) string {
	var buf bytes.Buffer
	if err := markdownConverter.Convert([]byte(text), &buf); err != nil {
		log.Printf("⚠️ [TELEGRAM] Markdown conversion failed: %v", err)
		return text
	}
	return buf.String()
}

var codeBlockPattern = regexp.MustCompile("```[a-zA-Z]*\\n([\\s\\S]*?)```")

// stripMarkdown removes Markdown formatting for the plain text fallback.
func stripMarkdown(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "__", "")
	text = codeBlockPattern.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, "`", "")
	text = strings.ReplaceAll(text, "~~", "")
	return text
}

// Client calls the Telegram Bot API. A token-bucket limiter keeps broadcast
// and daily fan-outs under the global Bot API rate (30 messages/second).
type Client struct {
	botToken   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Telegram client.
func NewClient(botToken string) *Client {
	return &Client{
		botToken:   botToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(25), 5),
	}
}

func (c *Client) apiURL(method string) string {
	return fmt.Sprintf("https://api.telegram.org/bot%s/%s", c.botToken, method)
}

// SendMessage sends a message to a chat. Text is rendered as HTML first;
// when Telegram rejects the entities, it falls back to plain text so the user
// still gets the content.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       convertToHTML(text),
		"parse_mode": "HTML",
	}
	errStr, err := c.post(ctx, "sendMessage", payload)
	if err != nil {
		return err
	}
	if errStr == "" {
		return nil
	}

	if strings.Contains(errStr, "can't parse entities") {
		log.Printf("⚠️ [TELEGRAM] HTML parsing failed, retrying without parse_mode")
		payload = map[string]interface{}{
			"chat_id": chatID,
			"text":    stripMarkdown(text),
		}
		errStr, err = c.post(ctx, "sendMessage", payload)
		if err != nil {
			return err
		}
		if errStr != "" {
			return fmt.Errorf("telegram API error (plain): %s", errStr)
		}
		return nil
	}

	return fmt.Errorf("telegram API error: %s", errStr)
}

// SendTyping shows the typing indicator in a chat. Failures are not worth
// surfacing.
func (c *Client) SendTyping(ctx context.Context, chatID string) {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"action":  "typing",
	}
	if _, err := c.post(ctx, "sendChatAction", payload); err != nil {
		log.Printf("⚠️ [TELEGRAM] Typing action failed: %v", err)
	}
}

// KeepTyping refreshes the typing indicator every few seconds until ctx is
// cancelled. Telegram drops the indicator after ~5 seconds on its own.
func (c *Client) KeepTyping(ctx context.Context, chatID string) {
	c.SendTyping(ctx, chatID)
	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SendTyping(ctx, chatID)
		}
	}
}

// SetWebhook registers the inbound webhook URL with a shared secret that
// Telegram echoes back on every update.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secretToken string) error {
	payload := map[string]interface{}{
		"url":             webhookURL,
		"secret_token":    secretToken,
		"allowed_updates": []string{"message"},
	}
	errStr, err := c.post(ctx, "setWebhook", payload)
	if err != nil {
		return err
	}
	if errStr != "" {
		return fmt.Errorf("failed to set webhook: %s", errStr)
	}
	return nil
}

// post sends one API call. Returns ("", nil) on success, the API error body
// on a non-200 response, or a transport error.
func (c *Client) post(ctx context.Context, method string, payload map[string]interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL(method), bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("telegram %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return "", nil
	}
	respBody, _ := io.ReadAll(resp.Body)
	return string(respBody), nil
}
