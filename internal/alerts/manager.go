package alerts

import (
	"context"
	"time"

	"lecca.io/oasys-watchtower/internal/config"
	"lecca.io/oasys-watchtower/internal/logger"
	"lecca.io/oasys-watchtower/internal/status"
)

// Manager turns cycle results into messages and hands them to the notifier.
// Delivery failures are logged and never returned to the pipeline.
type Manager struct {
	notifier    Notifier
	sendSuccess bool
	location    *time.Location
	now         func() time.Time
}

func NewManager(cfg config.AlertsConfig, loc *time.Location, notifier Notifier) *Manager {
	if loc == nil {
		loc = time.UTC
	}
	return &Manager{
		notifier:    notifier,
		sendSuccess: cfg.SendSuccessNotifications,
		location:    loc,
		now:         time.Now,
	}
}

// ProcessResults sends one message per non-empty group in the order
// critical, warning, error, then the optional all-clear. The sent messages
// are returned.
func (m *Manager) ProcessResults(ctx context.Context, statuses []status.ValidatorStatus) []Message {
	g := Group(statuses)
	logger.Info("ALERT", "Status summary - Healthy: %d, Warning: %d, Critical: %d, Error: %d",
		len(g.Healthy), len(g.Warning), len(g.Critical), len(g.Error))

	var sent []Message
	if len(g.Critical) > 0 {
		sent = append(sent, m.send(ctx, KindCritical, status.Critical, ColorDanger, FormatCritical(g.Critical)))
	}
	if len(g.Warning) > 0 {
		sent = append(sent, m.send(ctx, KindWarning, status.Warning, ColorWarning, FormatWarning(g.Warning)))
	}
	if len(g.Error) > 0 {
		sent = append(sent, m.send(ctx, KindError, status.Error, ColorDanger, FormatError(g.Error)))
	}
	if m.sendSuccess && g.AllHealthy() {
		sent = append(sent, m.send(ctx, KindAllClear, status.Healthy, ColorGood, FormatAllClear(g.Healthy)))
	}
	return sent
}

func (m *Manager) SendDailySummary(ctx context.Context, statuses []status.ValidatorStatus, now time.Time) Message {
	return m.send(ctx, KindDailySummary, status.Healthy, ColorGood, FormatDailySummary(statuses, now, m.location))
}

func (m *Manager) SendMonitorError(ctx context.Context, err error) Message {
	return m.send(ctx, KindMonitorError, status.Error, ColorDanger, FormatMonitorError(err))
}

func (m *Manager) SendSummaryError(ctx context.Context, err error) Message {
	return m.send(ctx, KindMonitorError, status.Error, ColorDanger, FormatSummaryError(err))
}

func (m *Manager) SendSetup(ctx context.Context, info SetupInfo) Message {
	return m.send(ctx, KindSetup, status.Healthy, ColorGood, FormatSetup(info))
}

// SendTest reports delivery errors so the CLI can show them.
func (m *Manager) SendTest(ctx context.Context) error {
	msg := Message{
		Kind:      KindTest,
		Title:     DefaultTitle,
		Text:      "🧪 **Test notification** - alert delivery is working",
		Color:     ColorGood,
		Severity:  status.Healthy,
		Timestamp: m.now(),
	}
	return m.notifier.Notify(ctx, msg)
}

func (m *Manager) send(ctx context.Context, kind Kind, sev status.Severity, color, text string) Message {
	msg := Message{
		Kind:      kind,
		Title:     DefaultTitle,
		Text:      text,
		Color:     color,
		Severity:  sev,
		Timestamp: m.now(),
	}
	if err := m.notifier.Notify(ctx, msg); err != nil {
		logger.Warn("ALERT", "Failed to deliver %s message: %v", kind, err)
	}
	return msg
}
