package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lecca.io/oasys-watchtower/internal/alerts"
	"lecca.io/oasys-watchtower/internal/config"
	"lecca.io/oasys-watchtower/internal/production"
	"lecca.io/oasys-watchtower/internal/status"
	"lecca.io/oasys-watchtower/internal/validators"
)

var (
	now      = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	valA     = validators.MustParseAddress("0x1111111111111111111111111111111111111111")
	valB     = validators.MustParseAddress("0x2222222222222222222222222222222222222222")
	operator = validators.MustParseAddress("0x9999999999999999999999999999999999999999")

	settings = config.PipelineSettings{MinBlocksPer24h: 24, MaxBlockDelay: 30 * time.Minute}
)

type fakeProber struct {
	results map[validators.Address]*validators.ProbeResult
}

func (f *fakeProber) Probe(_ context.Context, addr validators.Address) (*validators.ProbeResult, error) {
	if r, ok := f.results[addr]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: all reverted", validators.ErrProbeExhausted)
}

type fakeProduction struct {
	reports map[validators.Address]production.Report
	errs    map[validators.Address]error
	asked   []validators.Address
}

func (f *fakeProduction) Resolve(_ context.Context, producer validators.Address, _ time.Time) (production.Report, error) {
	f.asked = append(f.asked, producer)
	if err, ok := f.errs[producer]; ok {
		return production.Report{}, err
	}
	return f.reports[producer], nil
}

func recent(count int, age time.Duration) production.Report {
	t := now.Add(-age)
	return production.Report{Count24h: count, NewestBlockTime: &t, Source: production.SourceExplorer}
}

func TestPipeline_HealthyScenario(t *testing.T) {
	prober := &fakeProber{results: map[validators.Address]*validators.ProbeResult{
		valA: {IsActive: true, Stake: big.NewInt(1000)},
	}}
	prod := &fakeProduction{reports: map[validators.Address]production.Report{valA: recent(30, 5*time.Minute)}}

	st := NewPipeline(prober, prod, settings).Resolve(context.Background(), valA, now)
	assert.Equal(t, status.Healthy, st.Severity)
	assert.Empty(t, st.Issues)
}

func TestPipeline_FollowsOperator(t *testing.T) {
	op := operator
	prober := &fakeProber{results: map[validators.Address]*validators.ProbeResult{
		valA: {IsActive: true, Operator: &op},
	}}
	prod := &fakeProduction{reports: map[validators.Address]production.Report{operator: recent(40, time.Minute)}}

	st := NewPipeline(prober, prod, settings).Resolve(context.Background(), valA, now)
	assert.Equal(t, []validators.Address{operator}, prod.asked)
	assert.Equal(t, valA, st.Address)
	assert.Equal(t, 40, st.BlocksValidated24h)
}

func TestPipeline_ProbeAbsenceIsNotFatal(t *testing.T) {
	prod := &fakeProduction{reports: map[validators.Address]production.Report{valA: recent(30, time.Minute)}}

	st := NewPipeline(&fakeProber{}, prod, settings).Resolve(context.Background(), valA, now)
	assert.Equal(t, status.Critical, st.Severity)
	assert.Equal(t, []string{"validator not active"}, st.Issues)
}

func TestPipeline_AllSourcesFail(t *testing.T) {
	prod := &fakeProduction{errs: map[validators.Address]error{valA: errors.New("block production unavailable: eth_blockNumber: connection refused")}}

	st := NewPipeline(&fakeProber{}, prod, settings).Resolve(context.Background(), valA, now)
	assert.Equal(t, status.Error, st.Severity)
	assert.Equal(t, []string{"Error fetching data: block production unavailable: eth_blockNumber: connection refused"}, st.Issues)
	assert.Zero(t, st.BlocksValidated24h)
	assert.Nil(t, st.LastBlockTime)
}

type fakeRegistry struct {
	addrs []validators.Address
	err   error
}

func (f fakeRegistry) Addresses(context.Context) ([]validators.Address, error) {
	return f.addrs, f.err
}

type fakeAlerter struct {
	mu        sync.Mutex
	processed [][]status.ValidatorStatus
	summaries int
	failures  []error
}

func (f *fakeAlerter) ProcessResults(_ context.Context, st []status.ValidatorStatus) []alerts.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, st)
	return []alerts.Message{{Kind: alerts.KindWarning}}
}

func (f *fakeAlerter) SendDailySummary(context.Context, []status.ValidatorStatus, time.Time) alerts.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries++
	return alerts.Message{Kind: alerts.KindDailySummary}
}

func (f *fakeAlerter) SendMonitorError(_ context.Context, err error) alerts.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, err)
	return alerts.Message{Kind: alerts.KindMonitorError}
}

func (f *fakeAlerter) SendSummaryError(ctx context.Context, err error) alerts.Message {
	return f.SendMonitorError(ctx, err)
}

type fakeRecorder struct {
	cycles   int
	failures int
}

func (f *fakeRecorder) ObserveCycle([]status.ValidatorStatus, time.Time, time.Duration) { f.cycles++ }
func (f *fakeRecorder) ObserveFailure(time.Duration)                                    { f.failures++ }

type fakePublisher struct {
	statuses []status.ValidatorStatus
	err      error
}

func (f *fakePublisher) PublishStatuses(_ time.Time, st []status.ValidatorStatus, err error) {
	f.statuses, f.err = st, err
}

func newTestMonitor(reg Registry) (*Monitor, *fakeAlerter, *fakeRecorder, *fakePublisher) {
	prober := &fakeProber{results: map[validators.Address]*validators.ProbeResult{
		valA: {IsActive: true},
		valB: {IsActive: true},
	}}
	prod := &fakeProduction{
		reports: map[validators.Address]production.Report{valA: recent(30, time.Minute)},
		errs:    map[validators.Address]error{valB: errors.New("rpc down")},
	}
	al, rec, pub := &fakeAlerter{}, &fakeRecorder{}, &fakePublisher{}
	m := New(Deps{
		Registry:  reg,
		Pipeline:  NewPipeline(prober, prod, settings),
		Alerts:    al,
		Metrics:   rec,
		Dashboard: pub,
	})
	m.now = func() time.Time { return now }
	return m, al, rec, pub
}

func TestMonitor_RunCycle(t *testing.T) {
	m, al, rec, pub := newTestMonitor(fakeRegistry{addrs: []validators.Address{valA, valB}})

	rep, err := m.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, rep.Statuses, 2)
	assert.Equal(t, valA, rep.Statuses[0].Address, "input order is preserved")
	assert.Equal(t, status.Healthy, rep.Statuses[0].Severity)
	assert.Equal(t, status.Error, rep.Statuses[1].Severity, "one validator failing does not abort the cycle")
	assert.Len(t, rep.Groups.Healthy, 1)
	assert.Len(t, rep.Groups.Error, 1)
	assert.Len(t, rep.Sent, 1)

	assert.Len(t, al.processed, 1)
	assert.Equal(t, 1, rec.cycles)
	assert.Len(t, pub.statuses, 2)
	assert.NoError(t, pub.err)
}

func TestMonitor_CheckDoesNotAlert(t *testing.T) {
	m, al, _, _ := newTestMonitor(fakeRegistry{addrs: []validators.Address{valA}})
	rep, err := m.Check(context.Background())
	require.NoError(t, err)
	assert.Len(t, rep.Statuses, 1)
	assert.Empty(t, al.processed)
}

func TestMonitor_CycleLevelFailure(t *testing.T) {
	m, al, rec, pub := newTestMonitor(fakeRegistry{err: config.ErrNoValidators})

	_, err := m.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrNoValidators)
	assert.Empty(t, al.processed)
	assert.Equal(t, 1, rec.failures)
	assert.ErrorIs(t, pub.err, config.ErrNoValidators)

	m.ReportFailure(context.Background(), err)
	require.Len(t, al.failures, 1)
}

func TestMonitor_SendDailySummary(t *testing.T) {
	m, al, _, _ := newTestMonitor(fakeRegistry{addrs: []validators.Address{valA, valB}})
	rep, err := m.SendDailySummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, al.summaries)
	assert.Empty(t, al.processed, "summary runs do not send per-severity alerts")
	require.Len(t, rep.Sent, 1)
	assert.Equal(t, alerts.KindDailySummary, rep.Sent[0].Kind)

	m, al, _, _ = newTestMonitor(fakeRegistry{err: errors.New("bad config")})
	_, err = m.SendDailySummary(context.Background())
	assert.Error(t, err)
	assert.Len(t, al.failures, 1)
}

func TestMonitor_CancelledContext(t *testing.T) {
	m, _, rec, _ := newTestMonitor(fakeRegistry{addrs: []validators.Address{valA, valB}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, rec.failures)
}
