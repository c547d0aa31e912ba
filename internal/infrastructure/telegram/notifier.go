package telegram

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/ports"
)

// messageLimit stays under Telegram's 4096 character cap.
const messageLimit = 4000

// Notifier sends alert batches to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   int64
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken string, chatID int64) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify posts alerts as HTML messages, several alerts per message.
func (n *Notifier) Notify(ctx context.Context, alerts []domain.Alert) error {
	if n.botToken == "" || n.chatID == 0 {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	if len(alerts) == 0 {
		return nil
	}

	bot, err := n.connect()
	if err != nil {
		return err
	}

	for _, text := range Messages(alerts) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(n.chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if _, err := bot.Send(msg); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

// connect authenticates once; the bot API calls getMe on construction.
func (n *Notifier) connect() (*tgbotapi.BotAPI, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.bot != nil {
		return n.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(n.botToken, n.endpoint, n.client)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	n.bot = bot
	return bot, nil
}

// Messages renders alerts and packs them into as few messages as fit.
func Messages(alerts []domain.Alert) []string {
	header := fmt.Sprintf("<b>Security alerts (%d)</b>\n\n", len(alerts))

	var (
		out     []string
		current strings.Builder
	)
	current.WriteString(header)
	for _, alert := range alerts {
		entry := formatAlert(alert)
		if current.Len() > 0 && utf8.RuneCountInString(current.String())+utf8.RuneCountInString(entry) > messageLimit {
			out = append(out, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(entry)
	}
	if current.Len() > 0 {
		out = append(out, strings.TrimSpace(current.String()))
	}
	return out
}

func formatAlert(alert domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] <a href=\"%s\">%s</a>\n",
		strings.ToUpper(alert.Severity.String()),
		html.EscapeString(alert.Item.URL),
		html.EscapeString(alert.Item.Title),
	)
	if alert.Product != "" {
		fmt.Fprintf(&b, "Affected: <code>%s</code>\n", html.EscapeString(alert.Product))
	}
	if alert.Summary != "" {
		b.WriteString(html.EscapeString(alert.Summary))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}
