package metrics

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"lecca.io/oasys-watchtower/internal/status"
)

// Exporter publishes the last completed cycle. Per-validator series are reset
// each cycle so removed validators disappear.
type Exporter struct {
	chain         string
	metricsPrefix string

	severity    *prometheus.GaugeVec
	blocks24h   *prometheus.GaugeVec
	active      *prometheus.GaugeVec
	jailed      *prometheus.GaugeVec
	staking     *prometheus.GaugeVec
	lastBlockTS *prometheus.GaugeVec
	lastHeight  *prometheus.GaugeVec
	approximate *prometheus.GaugeVec
	issues      *prometheus.GaugeVec

	bySeverity    *prometheus.GaugeVec
	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.GaugeVec
	lastSuccess   *prometheus.GaugeVec
}

// NewExporter registers all collectors on reg. A nil reg uses the default
// registry.
func NewExporter(chain, prefix string, reg prometheus.Registerer) *Exporter {
	if prefix == "" {
		prefix = "oasys"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	validatorLabels := []string{"chain", "validator", "short"}
	e := &Exporter{
		chain:         chain,
		metricsPrefix: prefix,
		severity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_validator_status",
			Help: "Validator severity (0=healthy, 1=warning, 2=critical, 3=error)",
		}, validatorLabels),
		blocks24h: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_validator_blocks_24h",
			Help: "Blocks validated in the last 24 hours",
		}, validatorLabels),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_validator_active",
			Help: "Validator active flag (1=active, 0=inactive)",
		}, validatorLabels),
		jailed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_validator_jailed",
			Help: "Validator jailed flag (1=jailed, 0=free)",
		}, validatorLabels),
		staking: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_validator_staking",
			Help: "Validator stake in OAS",
		}, validatorLabels),
		lastBlockTS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_validator_last_block_timestamp",
			Help: "Unix timestamp of the newest block attributed to the validator",
		}, validatorLabels),
		lastHeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_validator_last_block_height",
			Help: "Height of the newest block attributed to the validator",
		}, validatorLabels),
		approximate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_validator_production_approximate",
			Help: "Whether block production came from RPC sampling (1) or the explorer (0)",
		}, validatorLabels),
		issues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_validator_issues",
			Help: "Number of issues found for the validator",
		}, validatorLabels),
		bySeverity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_validators",
			Help: "Validators per severity in the last cycle",
		}, []string{"chain", "severity"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_monitor_cycles_total",
			Help: "Monitoring cycles by result",
		}, []string{"chain", "result"}),
		cycleDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_monitor_cycle_duration_seconds",
			Help: "Duration of the last monitoring cycle",
		}, []string{"chain"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_monitor_last_success_timestamp",
			Help: "Unix timestamp of the last completed cycle",
		}, []string{"chain"}),
	}

	reg.MustRegister(
		e.severity,
		e.blocks24h,
		e.active,
		e.jailed,
		e.staking,
		e.lastBlockTS,
		e.lastHeight,
		e.approximate,
		e.issues,
		e.bySeverity,
		e.cycles,
		e.cycleDuration,
		e.lastSuccess,
	)
	return e
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func stakeValue(stake *big.Int) float64 {
	if stake == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(stake).Float64()
	return f
}

// ObserveCycle records a completed cycle.
func (e *Exporter) ObserveCycle(statuses []status.ValidatorStatus, finished time.Time, took time.Duration) {
	for _, vec := range []*prometheus.GaugeVec{
		e.severity, e.blocks24h, e.active, e.jailed, e.staking,
		e.lastBlockTS, e.lastHeight, e.approximate, e.issues,
	} {
		vec.Reset()
	}

	counts := map[status.Severity]int{
		status.Healthy:  0,
		status.Warning:  0,
		status.Critical: 0,
		status.Error:    0,
	}

	for _, v := range statuses {
		counts[v.Severity]++
		labels := prometheus.Labels{
			"chain":     e.chain,
			"validator": v.Address.String(),
			"short":     v.ShortAddress,
		}

		e.severity.With(labels).Set(float64(v.Severity))
		e.blocks24h.With(labels).Set(float64(v.BlocksValidated24h))
		e.active.With(labels).Set(boolGauge(v.IsActive))
		e.jailed.With(labels).Set(boolGauge(v.IsJailed))
		e.staking.With(labels).Set(stakeValue(v.Stake))
		e.approximate.With(labels).Set(boolGauge(v.Approximate))
		e.issues.With(labels).Set(float64(len(v.Issues)))

		if v.LastBlockTime != nil {
			e.lastBlockTS.With(labels).Set(float64(v.LastBlockTime.Unix()))
		} else {
			e.lastBlockTS.With(labels).Set(0)
		}
		if v.LastBlockNumber != nil {
			e.lastHeight.With(labels).Set(float64(*v.LastBlockNumber))
		} else {
			e.lastHeight.With(labels).Set(0)
		}
	}

	for sev, n := range counts {
		e.bySeverity.With(prometheus.Labels{"chain": e.chain, "severity": sev.String()}).Set(float64(n))
	}

	chain := prometheus.Labels{"chain": e.chain}
	e.cycles.With(prometheus.Labels{"chain": e.chain, "result": "ok"}).Inc()
	e.cycleDuration.With(chain).Set(took.Seconds())
	e.lastSuccess.With(chain).Set(float64(finished.Unix()))
}

// ObserveFailure records a cycle that aborted before producing statuses.
func (e *Exporter) ObserveFailure(took time.Duration) {
	e.cycles.With(prometheus.Labels{"chain": e.chain, "result": "error"}).Inc()
	e.cycleDuration.With(prometheus.Labels{"chain": e.chain}).Set(took.Seconds())
}
