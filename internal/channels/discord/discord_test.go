package discord

import (
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestResolveDisplayName(t *testing.T) {
	tests := []struct {
		name string
		msg  discordgo.MessageCreate
		want string
	}{
		{
			name: "nickname wins",
			msg: discordgo.MessageCreate{Message: &discordgo.Message{
				Member: &discordgo.Member{Nick: "nick"},
				Author: &discordgo.User{Username: "user", GlobalName: "global"},
			}},
			want: "nick",
		},
		{
			name: "global name over username",
			msg: discordgo.MessageCreate{Message: &discordgo.Message{
				Author: &discordgo.User{Username: "user", GlobalName: "global"},
			}},
			want: "global",
		},
		{
			name: "username as last resort",
			msg: discordgo.MessageCreate{Message: &discordgo.Message{
				Author: &discordgo.User{Username: "user"},
			}},
			want: "user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveDisplayName(&tt.msg); got != tt.want {
				t.Errorf("resolveDisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitForSend(t *testing.T) {
	t.Run("short content untouched", func(t *testing.T) {
		parts := splitForSend("hello", discordHardLimit)
		if len(parts) != 1 || parts[0] != "hello" {
			t.Errorf("parts = %q", parts)
		}
	})

	t.Run("prefers newline break", func(t *testing.T) {
		content := strings.Repeat("a", 1500) + "\n" + strings.Repeat("b", 1500)
		parts := splitForSend(content, discordHardLimit)
		if len(parts) != 2 {
			t.Fatalf("parts = %d, want 2", len(parts))
		}
		if !strings.HasSuffix(parts[0], "\n") {
			t.Error("first part should end at the newline")
		}
	})

	t.Run("lossless reassembly under limit", func(t *testing.T) {
		content := strings.Repeat("héllo wörld ", 500)
		parts := splitForSend(content, discordHardLimit)
		var sb strings.Builder
		for _, p := range parts {
			if n := len([]rune(p)); n > discordHardLimit {
				t.Errorf("part has %d runes, limit %d", n, discordHardLimit)
			}
			sb.WriteString(p)
		}
		if sb.String() != content {
			t.Error("reassembled parts differ from the original content")
		}
	})
}
