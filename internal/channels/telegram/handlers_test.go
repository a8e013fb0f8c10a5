package telegram

import (
	"strings"
	"testing"

	"github.com/mymmrac/telego"
)

func TestDetectMention(t *testing.T) {
	c := &Channel{}

	tests := []struct {
		name string
		msg  telego.Message
		want bool
	}{
		{
			name: "mention entity in text",
			msg: telego.Message{
				Text: "hey @gateclaw_bot look at this",
				Entities: []telego.MessageEntity{
					{Type: "mention", Offset: 4, Length: 13},
				},
			},
			want: true,
		},
		{
			name: "mention entity for another bot",
			msg: telego.Message{
				Text: "hey @other_bot look at this",
				Entities: []telego.MessageEntity{
					{Type: "mention", Offset: 4, Length: 10},
				},
			},
			want: false,
		},
		{
			name: "bot command addressed to bot",
			msg: telego.Message{
				Text: "/reset@gateclaw_bot",
				Entities: []telego.MessageEntity{
					{Type: "bot_command", Offset: 0, Length: 19},
				},
			},
			want: true,
		},
		{
			name: "mention in caption",
			msg: telego.Message{
				Caption: "what is this @gateclaw_bot",
				CaptionEntities: []telego.MessageEntity{
					{Type: "mention", Offset: 13, Length: 13},
				},
			},
			want: true,
		},
		{
			name: "substring fallback without entities",
			msg:  telego.Message{Text: "ping @GateClaw_Bot please"},
			want: true,
		},
		{
			name: "reply to bot is implicit mention",
			msg: telego.Message{
				Text: "and what about this?",
				ReplyToMessage: &telego.Message{
					From: &telego.User{Username: "gateclaw_bot"},
				},
			},
			want: true,
		},
		{
			name: "reply to someone else",
			msg: telego.Message{
				Text: "and what about this?",
				ReplyToMessage: &telego.Message{
					From: &telego.User{Username: "someone"},
				},
			},
			want: false,
		},
		{
			name: "plain text without mention",
			msg:  telego.Message{Text: "just chatting"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.detectMention(&tt.msg, "gateclaw_bot"); got != tt.want {
				t.Errorf("detectMention() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectMention_EmptyBotUsername(t *testing.T) {
	c := &Channel{}
	msg := telego.Message{Text: "hey @gateclaw_bot"}
	if c.detectMention(&msg, "") {
		t.Error("mention must never match an empty bot username")
	}
}

func TestIsServiceMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  telego.Message
		want bool
	}{
		{"text message", telego.Message{Text: "hello"}, false},
		{"caption only", telego.Message{Caption: "a photo"}, false},
		{"photo without caption", telego.Message{Photo: []telego.PhotoSize{{}}}, false},
		{"sticker", telego.Message{Sticker: &telego.Sticker{}}, false},
		{"member joined", telego.Message{NewChatMembers: []telego.User{{}}}, true},
		{"empty service message", telego.Message{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isServiceMessage(&tt.msg); got != tt.want {
				t.Errorf("isServiceMessage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessageFingerprint(t *testing.T) {
	a := messageFingerprint("-100", 7, "hello")
	b := messageFingerprint("-100", 7, "hello")
	if a != b {
		t.Error("identical deliveries must share a fingerprint")
	}
	if messageFingerprint("-200", 7, "hello") == a {
		t.Error("message ids are per-chat; fingerprints must include the chat")
	}
	if messageFingerprint("-100", 8, "hello") == a {
		t.Error("distinct message ids must not collide")
	}
	if messageFingerprint("-100", 7, "edited") == a {
		t.Error("edited content must produce a new fingerprint")
	}
}

func TestResolveThreadIDForSend(t *testing.T) {
	if got := resolveThreadIDForSend(1); got != 0 {
		t.Errorf("General topic must be omitted on send, got %d", got)
	}
	if got := resolveThreadIDForSend(99); got != 99 {
		t.Errorf("named topic id must pass through, got %d", got)
	}
	if got := resolveThreadIDForSend(0); got != 0 {
		t.Errorf("no topic stays zero, got %d", got)
	}
}

func TestSplitForSend(t *testing.T) {
	t.Run("short content untouched", func(t *testing.T) {
		parts := splitForSend("hello", 4096)
		if len(parts) != 1 || parts[0] != "hello" {
			t.Errorf("parts = %q", parts)
		}
	})

	t.Run("prefers newline break", func(t *testing.T) {
		content := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
		parts := splitForSend(content, 10)
		if len(parts) != 2 {
			t.Fatalf("parts = %d, want 2", len(parts))
		}
		if !strings.HasSuffix(parts[0], "\n") {
			t.Errorf("first part %q should end at the newline", parts[0])
		}
	})

	t.Run("lossless reassembly", func(t *testing.T) {
		content := strings.Repeat("héllo wörld ", 1000)
		parts := splitForSend(content, 4096)
		var sb strings.Builder
		for _, p := range parts {
			if n := len([]rune(p)); n > 4096 {
				t.Errorf("part has %d runes, limit 4096", n)
			}
			sb.WriteString(p)
		}
		if sb.String() != content {
			t.Error("reassembled parts differ from the original content")
		}
	})
}
