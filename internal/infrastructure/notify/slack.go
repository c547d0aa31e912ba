package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/slack-go/slack"

	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/ports"
)

// maxBlocks is Slack's per-message block limit.
const maxBlocks = 50

var severityEmoji = map[domain.Severity]string{
	domain.SeverityCritical: ":rotating_light:",
	domain.SeverityHigh:     ":warning:",
	domain.SeverityMedium:   ":large_blue_circle:",
	domain.SeverityLow:      ":white_circle:",
}

// SlackNotifier posts one batched message per run to an incoming webhook.
type SlackNotifier struct {
	webhookURL string
	mentions   []string
	client     *http.Client
}

var _ ports.Notifier = (*SlackNotifier)(nil)

// NewSlackNotifier registers the webhook and the users to mention.
func NewSlackNotifier(webhookURL string, mentionUsers []string, client *http.Client) *SlackNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SlackNotifier{webhookURL: webhookURL, mentions: mentionUsers, client: client}
}

// Notify sends alerts in the order given.
func (n *SlackNotifier) Notify(ctx context.Context, alerts []domain.Alert) error {
	if n.webhookURL == "" {
		return fmt.Errorf("slack notifier misconfigured: webhook url is empty")
	}
	if len(alerts) == 0 {
		return nil
	}

	msg := &slack.WebhookMessage{
		Text:   fmt.Sprintf("Security alerts (%d)", len(alerts)),
		Blocks: &slack.Blocks{BlockSet: BuildBlocks(alerts, n.mentions)},
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}

// BuildBlocks renders a header, optional mentions, a divider and one
// section per alert. Past the block limit the tail is replaced by a
// "... and N more" context line.
func BuildBlocks(alerts []domain.Alert, mentions []string) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType,
			fmt.Sprintf(":rotating_light: Security alerts (%d)", len(alerts)), true, false)),
	}
	if len(mentions) > 0 {
		tags := make([]string, 0, len(mentions))
		for _, user := range mentions {
			tags = append(tags, "@"+strings.TrimPrefix(user, "@"))
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, strings.Join(tags, " "), false, false), nil, nil))
	}
	blocks = append(blocks, slack.NewDividerBlock())

	leading := len(blocks)
	for _, alert := range alerts {
		blocks = append(blocks, alertSection(alert))
	}

	if len(blocks) > maxBlocks {
		blocks = blocks[:maxBlocks-1]
		shown := len(blocks) - leading
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("... and %d more", len(alerts)-shown), false, false)))
	}
	return blocks
}

func alertSection(alert domain.Alert) slack.Block {
	emoji, ok := severityEmoji[alert.Severity]
	if !ok {
		emoji = ":question:"
	}

	title := fmt.Sprintf("%s [%s] %s", emoji, strings.ToUpper(alert.Severity.String()), clip(alert.Item.Title, 80))
	text := fmt.Sprintf("*<%s|%s>*\n• Affected: `%s`\n• %s", alert.Item.URL, title, alert.Product, alert.Summary)
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
