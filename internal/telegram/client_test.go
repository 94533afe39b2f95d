package telegram

import (
	"strings"
	"testing"
)

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"**bold** text", "bold text"},
		{"some `inline code` here", "some inline code here"},
		{"~~gone~~", "gone"},
		{"```go\nfmt.Println(1)\n```", "fmt.Println(1)\n"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := stripMarkdown(tt.in); got != tt.want {
			t.Errorf("stripMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConvertToHTML(t *testing.T) {
	out := convertToHTML("**bold** and `code`")
	if !strings.Contains(out, "<b>bold</b>") {
		t.Errorf("expected bold tag in %q", out)
	}
	if !strings.Contains(out, "<code>code</code>") {
		t.Errorf("expected code tag in %q", out)
	}
}

func TestChatIDString(t *testing.T) {
	m := &Message{Chat: Chat{ID: 592417}}
	if got := m.ChatIDString(); got != "592417" {
		t.Errorf("ChatIDString() = %q", got)
	}
}
