package monitor

import (
	"context"
	"fmt"
	"time"

	"lecca.io/oasys-watchtower/internal/alerts"
	"lecca.io/oasys-watchtower/internal/logger"
	"lecca.io/oasys-watchtower/internal/status"
	"lecca.io/oasys-watchtower/internal/validators"
)

type Registry interface {
	Addresses(ctx context.Context) ([]validators.Address, error)
}

type Alerter interface {
	ProcessResults(ctx context.Context, statuses []status.ValidatorStatus) []alerts.Message
	SendDailySummary(ctx context.Context, statuses []status.ValidatorStatus, now time.Time) alerts.Message
	SendMonitorError(ctx context.Context, err error) alerts.Message
	SendSummaryError(ctx context.Context, err error) alerts.Message
}

type Recorder interface {
	ObserveCycle(statuses []status.ValidatorStatus, finished time.Time, took time.Duration)
	ObserveFailure(took time.Duration)
}

type Publisher interface {
	PublishStatuses(checkedAt time.Time, statuses []status.ValidatorStatus, cycleErr error)
}

// Deps wires a Monitor. Metrics and Dashboard are optional.
type Deps struct {
	Registry  Registry
	Pipeline  *Pipeline
	Alerts    Alerter
	Metrics   Recorder
	Dashboard Publisher
}

// Report is the outcome of one cycle.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Statuses   []status.ValidatorStatus
	Groups     alerts.Groups
	Sent       []alerts.Message
}

func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type Monitor struct {
	deps Deps
	now  func() time.Time
}

func New(deps Deps) *Monitor {
	return &Monitor{deps: deps, now: time.Now}
}

// resolveAll is the sequential cycle body shared by every entry point.
func (m *Monitor) resolveAll(ctx context.Context) (Report, error) {
	rep := Report{StartedAt: m.now()}

	addrs, err := m.deps.Registry.Addresses(ctx)
	if err != nil {
		rep.FinishedAt = m.now()
		m.observeFailure(rep, err)
		return rep, fmt.Errorf("load validators: %w", err)
	}

	logger.Info("CYCLE", "Starting validator monitoring cycle for %d validator(s)", len(addrs))
	rep.Statuses = make([]status.ValidatorStatus, 0, len(addrs))
	for _, addr := range addrs {
		if err := ctx.Err(); err != nil {
			rep.FinishedAt = m.now()
			m.observeFailure(rep, err)
			return rep, err
		}
		logger.Debug("CYCLE", "Checking validator: %s", addr)
		rep.Statuses = append(rep.Statuses, m.deps.Pipeline.Resolve(ctx, addr, m.now()))
	}

	rep.FinishedAt = m.now()
	rep.Groups = alerts.Group(rep.Statuses)
	if m.deps.Metrics != nil {
		m.deps.Metrics.ObserveCycle(rep.Statuses, rep.FinishedAt, rep.Duration())
	}
	if m.deps.Dashboard != nil {
		m.deps.Dashboard.PublishStatuses(rep.FinishedAt, rep.Statuses, nil)
	}
	logger.Info("CYCLE", "Monitoring cycle completed in %s (healthy %d, warning %d, critical %d, error %d)",
		rep.Duration().Round(time.Millisecond), len(rep.Groups.Healthy), len(rep.Groups.Warning),
		len(rep.Groups.Critical), len(rep.Groups.Error))
	return rep, nil
}

func (m *Monitor) observeFailure(rep Report, err error) {
	logger.Error("CYCLE", "Monitoring cycle aborted: %v", err)
	if m.deps.Metrics != nil {
		m.deps.Metrics.ObserveFailure(rep.Duration())
	}
	if m.deps.Dashboard != nil {
		m.deps.Dashboard.PublishStatuses(rep.FinishedAt, nil, err)
	}
}

// Check resolves every validator without sending alerts.
func (m *Monitor) Check(ctx context.Context) (Report, error) {
	return m.resolveAll(ctx)
}

// RunCycle resolves every validator and dispatches the grouped alerts. A
// cycle-level failure is returned without alerting; see ReportFailure.
func (m *Monitor) RunCycle(ctx context.Context) (Report, error) {
	rep, err := m.resolveAll(ctx)
	if err != nil {
		return rep, err
	}
	rep.Sent = m.deps.Alerts.ProcessResults(ctx, rep.Statuses)
	return rep, nil
}

// ReportFailure sends the single top-level alert for an aborted cycle.
func (m *Monitor) ReportFailure(ctx context.Context, err error) {
	m.deps.Alerts.SendMonitorError(ctx, err)
}

// SendDailySummary runs a fresh cycle and sends only the summary.
func (m *Monitor) SendDailySummary(ctx context.Context) (Report, error) {
	logger.Info("CYCLE", "Generating daily summary...")
	rep, err := m.resolveAll(ctx)
	if err != nil {
		m.deps.Alerts.SendSummaryError(ctx, err)
		return rep, err
	}
	rep.Sent = []alerts.Message{m.deps.Alerts.SendDailySummary(ctx, rep.Statuses, rep.FinishedAt)}
	return rep, nil
}
