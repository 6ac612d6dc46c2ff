package status

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"lecca.io/oasys-watchtower/internal/production"
	"lecca.io/oasys-watchtower/internal/validators"
)

// Severity is ordered: a higher value is worse.
type Severity int

const (
	Healthy Severity = iota
	Warning
	Critical
	Error
)

func (s Severity) String() string {
	switch s {
	case Healthy:
		return "HEALTHY"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Color maps to notification attachment colors.
func (s Severity) Color() string {
	switch s {
	case Healthy:
		return "good"
	case Warning:
		return "warning"
	default:
		return "danger"
	}
}

// Icon is used in summaries.
func (s Severity) Icon() string {
	switch s {
	case Healthy:
		return "✅"
	case Warning:
		return "⚠️"
	case Critical:
		return "🚨"
	case Error:
		return "🔥"
	default:
		return "❓"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Thresholds struct {
	MinBlocksPer24h int
	MaxBlockDelay   time.Duration
}

// Input is everything the classifier looks at.
type Input struct {
	Address    validators.Address
	Probe      *validators.ProbeResult
	Production production.Report
}

type ValidatorStatus struct {
	Address            validators.Address `json:"address"`
	ShortAddress       string             `json:"short_address"`
	CheckedAt          time.Time          `json:"checked_at"`
	IsActive           bool               `json:"is_active"`
	IsJailed           bool               `json:"is_jailed"`
	Stake              *big.Int           `json:"stake,omitempty"`
	BlocksValidated24h int                `json:"blocks_validated_24h"`
	LastBlockNumber    *uint64            `json:"last_block_number,omitempty"`
	LastBlockTime      *time.Time         `json:"last_block_time,omitempty"`
	Issues             []string           `json:"issues"`
	Severity           Severity           `json:"severity"`
	Source             production.Source  `json:"source,omitempty"`
	Approximate        bool               `json:"approximate"`
}

// MinutesSinceLastBlock is rounded to the nearest minute. ok is false when
// no block time is known.
func (v ValidatorStatus) MinutesSinceLastBlock(now time.Time) (minutes int, ok bool) {
	if v.LastBlockTime == nil {
		return 0, false
	}
	return int(math.Round(now.Sub(*v.LastBlockTime).Minutes())), true
}

// Classify evaluates every rule and accumulates all that apply. It reads
// nothing but its arguments. A missing probe result counts as inactive and
// not jailed.
func Classify(in Input, th Thresholds, now time.Time) ValidatorStatus {
	st := ValidatorStatus{
		Address:            in.Address,
		ShortAddress:       in.Address.Short(),
		CheckedAt:          now,
		BlocksValidated24h: in.Production.Count24h,
		LastBlockNumber:    in.Production.NewestBlockNumber,
		LastBlockTime:      in.Production.NewestBlockTime,
		Source:             in.Production.Source,
		Approximate:        in.Production.Approximate,
		Issues:             []string{},
	}
	if st.BlocksValidated24h < 0 {
		st.BlocksValidated24h = 0
	}
	if in.Probe != nil {
		st.IsActive = in.Probe.IsActive
		st.IsJailed = in.Probe.IsJailed
		if in.Probe.Stake != nil {
			st.Stake = new(big.Int).Set(in.Probe.Stake)
		}
	}

	if !st.IsActive {
		st.Issues = append(st.Issues, "validator not active")
	}
	if st.IsJailed {
		st.Issues = append(st.Issues, "validator is jailed")
	}
	if st.BlocksValidated24h < th.MinBlocksPer24h {
		st.Issues = append(st.Issues, fmt.Sprintf("low block production: %d blocks in 24h (min: %d)",
			st.BlocksValidated24h, th.MinBlocksPer24h))
	}
	if st.LastBlockTime != nil {
		if since := now.Sub(*st.LastBlockTime); since > th.MaxBlockDelay {
			st.Issues = append(st.Issues, fmt.Sprintf("no blocks in %d minutes (max: %d)",
				int(math.Round(since.Minutes())), int(th.MaxBlockDelay.Minutes())))
		}
	} else {
		st.Issues = append(st.Issues, "no recent blocks found")
	}

	switch {
	case len(st.Issues) == 0:
		st.Severity = Healthy
	case st.IsActive && !st.IsJailed:
		st.Severity = Warning
	default:
		st.Severity = Critical
	}
	return st
}

// Failed is the status of a validator whose data could not be gathered.
func Failed(addr validators.Address, err error, now time.Time) ValidatorStatus {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ValidatorStatus{
		Address:      addr,
		ShortAddress: addr.Short(),
		CheckedAt:    now,
		Issues:       []string{"Error fetching data: " + msg},
		Severity:     Error,
	}
}
