package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"unicode/utf8"
)

// DefaultTelegramAPI is the Telegram Bot API root.
const DefaultTelegramAPI = "https://api.telegram.org"

// telegramMaxText is the sendMessage text limit.
const telegramMaxText = 4096

// TelegramSender delivers notifications through the Bot API sendMessage
// call.
type TelegramSender struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and
// chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		apiBase: DefaultTelegramAPI,
		token:   token,
		chatID:  chatID,
		client:  newHTTPClient(),
	}
}

// WithAPIBase points the sender at a different Bot API root.
func (t *TelegramSender) WithAPIBase(base string) *TelegramSender {
	t.apiBase = strings.TrimRight(base, "/")
	return t
}

// Send posts title in bold followed by message, both HTML-escaped. The
// limit applies to the visible text, so message is cut before escaping and
// an entity is never split.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	room := max(telegramMaxText-utf8.RuneCountInString(title)-1, 1)
	text := fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(title), html.EscapeString(truncate(message, room)))
	return postJSON(ctx, t.client, "telegram", fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token), map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
