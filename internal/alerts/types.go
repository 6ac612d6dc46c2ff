package alerts

import (
	"time"

	"lecca.io/oasys-watchtower/internal/status"
)

type Kind string

const (
	KindCritical     Kind = "critical"
	KindWarning      Kind = "warning"
	KindError        Kind = "error"
	KindAllClear     Kind = "all_clear"
	KindDailySummary Kind = "daily_summary"
	KindMonitorError Kind = "monitor_error"
	KindSetup        Kind = "setup"
	KindTest         Kind = "test"
)

// Attachment colors understood by Slack. Other sinks map them.
const (
	ColorGood    = "good"
	ColorWarning = "warning"
	ColorDanger  = "danger"
)

const DefaultTitle = "🔗 Oasys Validator Monitor"

// Message is one notification. Text uses **bold** markup which each sink
// renders in its own dialect.
type Message struct {
	Kind      Kind
	Title     string
	Text      string
	Color     string
	Severity  status.Severity
	Timestamp time.Time
}

// Pageable reports whether the message should open an incident.
func (m Message) Pageable() bool {
	switch m.Kind {
	case KindCritical, KindError, KindMonitorError:
		return true
	}
	return false
}

// Groups holds one cycle's statuses split by severity, in input order.
type Groups struct {
	Healthy  []status.ValidatorStatus
	Warning  []status.ValidatorStatus
	Critical []status.ValidatorStatus
	Error    []status.ValidatorStatus
}

func Group(statuses []status.ValidatorStatus) Groups {
	var g Groups
	for _, st := range statuses {
		switch st.Severity {
		case status.Healthy:
			g.Healthy = append(g.Healthy, st)
		case status.Warning:
			g.Warning = append(g.Warning, st)
		case status.Critical:
			g.Critical = append(g.Critical, st)
		default:
			g.Error = append(g.Error, st)
		}
	}
	return g
}

func (g Groups) Total() int {
	return len(g.Healthy) + len(g.Warning) + len(g.Critical) + len(g.Error)
}

// AllHealthy is false for an empty cycle.
func (g Groups) AllHealthy() bool {
	return len(g.Healthy) > 0 && len(g.Warning) == 0 && len(g.Critical) == 0 && len(g.Error) == 0
}
