package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"lecca.io/oasys-watchtower/internal/config"
	"lecca.io/oasys-watchtower/internal/logger"
)

const (
	telegramAPIBase   = "https://api.telegram.org"
	pagerDutyEndpoint = "https://events.pagerduty.com/v2/enqueue"
	footer            = "Oasys Validator Monitor"
	footerIcon        = "https://www.oasys.games/favicon.ico"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

type MultiNotifier struct {
	notifiers []Notifier
}

// Notify delivers to every sink. One failing sink never blocks the others.
func (m *MultiNotifier) Notify(ctx context.Context, msg Message) error {
	var errs *multierror.Error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, msg); err != nil {
			logger.Warn("ALERT", "Notifier failed: %v", err)
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (m *MultiNotifier) Len() int {
	return len(m.notifiers)
}

func NewNotifier(cfg config.AlertsConfig) *MultiNotifier {
	notifiers := []Notifier{&LogNotifier{}}
	ch := cfg.Channels

	if ch.Slack.Enabled && ch.Slack.Webhook != "" {
		notifiers = append(notifiers, &SlackNotifier{webhook: ch.Slack.Webhook})
	}
	if ch.Discord.Enabled && ch.Discord.Webhook != "" {
		notifiers = append(notifiers, &DiscordNotifier{webhook: ch.Discord.Webhook})
	}
	if ch.Telegram.Enabled && ch.Telegram.Token != "" && ch.Telegram.ChatID != "" {
		notifiers = append(notifiers, &TelegramNotifier{apiBase: telegramAPIBase, token: ch.Telegram.Token, chatID: ch.Telegram.ChatID})
	}
	if ch.PagerDuty.Enabled && ch.PagerDuty.APIKey != "" {
		notifiers = append(notifiers, &PagerDutyNotifier{endpoint: pagerDutyEndpoint, routingKey: ch.PagerDuty.APIKey})
	}
	if len(notifiers) == 1 {
		logger.Warn("ALERT", "No notification channel enabled, alerts go to the log only")
	}

	return &MultiNotifier{notifiers: notifiers}
}

type LogNotifier struct{}

func (l *LogNotifier) Notify(_ context.Context, msg Message) error {
	first, _, _ := strings.Cut(msg.Text, "\n")
	if msg.Color == ColorGood {
		logger.Info("ALERT", "%s | %s", msg.Kind, stripBold(first))
		return nil
	}
	logger.Warn("ALERT", "%s | %s", msg.Kind, stripBold(first))
	return nil
}

var boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

func stripBold(s string) string {
	return boldPattern.ReplaceAllString(s, "$1")
}

func titleOf(msg Message) string {
	if msg.Title != "" {
		return msg.Title
	}
	return DefaultTitle
}

func timestampOf(msg Message) time.Time {
	if msg.Timestamp.IsZero() {
		return time.Now()
	}
	return msg.Timestamp
}

// Slack legacy attachments
type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color      string `json:"color"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"ts"`
	Footer     string `json:"footer"`
	FooterIcon string `json:"footer_icon"`
}

func formatSlack(msg Message) slackPayload {
	return slackPayload{
		Attachments: []slackAttachment{{
			Color:      msg.Color,
			Title:      titleOf(msg),
			Text:       boldPattern.ReplaceAllString(msg.Text, "*$1*"),
			Timestamp:  timestampOf(msg).Unix(),
			Footer:     footer,
			FooterIcon: footerIcon,
		}},
	}
}

type SlackNotifier struct {
	webhook string
}

func (s *SlackNotifier) Notify(ctx context.Context, msg Message) error {
	if s.webhook == "" {
		return nil
	}
	if err := postJSON(ctx, s.webhook, formatSlack(msg)); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	return nil
}

// Discord embed structures
type discordEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Color       int                `json:"color"`
	Footer      discordEmbedFooter `json:"footer"`
	Timestamp   string             `json:"timestamp"`
}

type discordEmbedFooter struct {
	Text string `json:"text"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// Discord caps embed descriptions at 4096 characters.
const discordDescriptionLimit = 4096

func discordColor(color string) int {
	switch color {
	case ColorGood:
		return 0x2EB886
	case ColorWarning:
		return 0xDAA038
	default:
		return 0xA30200
	}
}

func formatDiscord(msg Message) discordPayload {
	desc := msg.Text
	if r := []rune(desc); len(r) > discordDescriptionLimit {
		desc = string(r[:discordDescriptionLimit-1]) + "…"
	}
	return discordPayload{
		Embeds: []discordEmbed{{
			Title:       titleOf(msg),
			Description: desc,
			Color:       discordColor(msg.Color),
			Footer:      discordEmbedFooter{Text: footer},
			Timestamp:   timestampOf(msg).UTC().Format(time.RFC3339),
		}},
	}
}

type DiscordNotifier struct {
	webhook string
}

func (d *DiscordNotifier) Notify(ctx context.Context, msg Message) error {
	if d.webhook == "" {
		return nil
	}
	if err := postJSON(ctx, d.webhook, formatDiscord(msg)); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func formatTelegramHTML(msg Message) string {
	body := boldPattern.ReplaceAllString(html.EscapeString(msg.Text), "<b>$1</b>")
	return fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(titleOf(msg)), body)
}

type TelegramNotifier struct {
	apiBase string
	token   string
	chatID  string
}

func (t *TelegramNotifier) Notify(ctx context.Context, msg Message) error {
	if t.token == "" || t.chatID == "" {
		return nil
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       formatTelegramHTML(msg),
		"parse_mode": "HTML",
	}
	if err := postJSON(ctx, url, payload); err != nil {
		// the URL carries the bot token
		return fmt.Errorf("telegram: %s", strings.ReplaceAll(err.Error(), t.token, "***"))
	}
	return nil
}

// PagerDutyNotifier only triggers incidents for pageable messages.
type PagerDutyNotifier struct {
	endpoint   string
	routingKey string
}

type pagerDutyPayload struct {
	RoutingKey  string        `json:"routing_key"`
	EventAction string        `json:"event_action"`
	DedupKey    string        `json:"dedup_key"`
	Payload     pagerDutyBody `json:"payload"`
}

type pagerDutyBody struct {
	Summary   string `json:"summary"`
	Source    string `json:"source"`
	Severity  string `json:"severity"`
	Timestamp string `json:"timestamp"`
	Custom    any    `json:"custom_details,omitempty"`
}

func pagerDutySeverity(msg Message) string {
	if msg.Color == ColorWarning {
		return "warning"
	}
	if msg.Kind == KindError || msg.Kind == KindMonitorError {
		return "error"
	}
	return "critical"
}

func formatPagerDuty(routingKey string, msg Message) pagerDutyPayload {
	first, _, _ := strings.Cut(msg.Text, "\n")
	ts := timestampOf(msg).UTC()
	return pagerDutyPayload{
		RoutingKey:  routingKey,
		EventAction: "trigger",
		DedupKey:    fmt.Sprintf("oasys-watchtower:%s:%s", msg.Kind, ts.Format("2006-01-02T15")),
		Payload: pagerDutyBody{
			Summary:   stripBold(first),
			Source:    "oasys-watchtower",
			Severity:  pagerDutySeverity(msg),
			Timestamp: ts.Format(time.RFC3339),
			Custom:    map[string]string{"details": stripBold(msg.Text)},
		},
	}
}

func (p *PagerDutyNotifier) Notify(ctx context.Context, msg Message) error {
	if p.routingKey == "" || !msg.Pageable() {
		return nil
	}
	if err := postJSON(ctx, p.endpoint, formatPagerDuty(p.routingKey, msg)); err != nil {
		return fmt.Errorf("pagerduty: %w", err)
	}
	return nil
}

func postJSON(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
