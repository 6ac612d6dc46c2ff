package status

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lecca.io/oasys-watchtower/internal/production"
	"lecca.io/oasys-watchtower/internal/validators"
)

var (
	now  = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	addr = validators.MustParseAddress("0x1234567890abcdef1234567890abcdef12345678")
	th   = Thresholds{MinBlocksPer24h: 24, MaxBlockDelay: 30 * time.Minute}
)

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func healthyInput() Input {
	height := uint64(5000)
	return Input{
		Address: addr,
		Probe: &validators.ProbeResult{
			IsActive: true,
			Stake:    big.NewInt(1000),
		},
		Production: production.Report{
			Count24h:          30,
			NewestBlockTime:   ago(5 * time.Minute),
			NewestBlockNumber: &height,
			Source:            production.SourceExplorer,
		},
	}
}

func TestClassify_Healthy(t *testing.T) {
	st := Classify(healthyInput(), th, now)

	assert.Equal(t, Healthy, st.Severity)
	assert.Empty(t, st.Issues)
	assert.NotNil(t, st.Issues)
	assert.Equal(t, "0x12345678...12345678", st.ShortAddress)
	assert.Equal(t, 30, st.BlocksValidated24h)
	assert.Equal(t, big.NewInt(1000), st.Stake)
	assert.Equal(t, production.SourceExplorer, st.Source)
	require.NotNil(t, st.LastBlockNumber)
	assert.Equal(t, uint64(5000), *st.LastBlockNumber)
}

func TestClassify_LowProductionIsWarning(t *testing.T) {
	in := healthyInput()
	in.Production.Count24h = 5

	st := Classify(in, th, now)
	assert.Equal(t, Warning, st.Severity)
	assert.Equal(t, []string{"low block production: 5 blocks in 24h (min: 24)"}, st.Issues)
}

func TestClassify_InactiveJailedIsCritical(t *testing.T) {
	in := Input{
		Address:    addr,
		Probe:      &validators.ProbeResult{IsActive: false, IsJailed: true},
		Production: production.Report{Source: production.SourceRPCSample, Approximate: true},
	}

	st := Classify(in, th, now)
	assert.Equal(t, Critical, st.Severity)
	assert.Equal(t, []string{
		"validator not active",
		"validator is jailed",
		"low block production: 0 blocks in 24h (min: 24)",
		"no recent blocks found",
	}, st.Issues)
	assert.True(t, st.Approximate)
}

func TestClassify_StaleBlock(t *testing.T) {
	in := healthyInput()
	in.Production.NewestBlockTime = ago(45*time.Minute + 20*time.Second)

	st := Classify(in, th, now)
	assert.Equal(t, Warning, st.Severity)
	assert.Equal(t, []string{"no blocks in 45 minutes (max: 30)"}, st.Issues)

	in.Production.NewestBlockTime = ago(30 * time.Minute)
	assert.Equal(t, Healthy, Classify(in, th, now).Severity, "delay equal to the threshold is tolerated")
}

func TestClassify_MissingProbeIsInactive(t *testing.T) {
	in := healthyInput()
	in.Probe = nil

	st := Classify(in, th, now)
	assert.False(t, st.IsActive)
	assert.False(t, st.IsJailed)
	assert.Nil(t, st.Stake)
	assert.Equal(t, Critical, st.Severity)
	assert.Equal(t, []string{"validator not active"}, st.Issues)
}

func TestClassify_ActiveButJailedIsCritical(t *testing.T) {
	in := healthyInput()
	in.Probe.IsJailed = true

	st := Classify(in, th, now)
	assert.Equal(t, Critical, st.Severity)
	assert.Equal(t, []string{"validator is jailed"}, st.Issues)
}

func TestClassify_Pure(t *testing.T) {
	in := healthyInput()
	in.Production.Count24h = 3
	in.Production.NewestBlockTime = ago(2 * time.Hour)

	a := Classify(in, th, now)
	b := Classify(in, th, now)
	assert.Equal(t, a, b)

	// Mutating the output must not leak into the input.
	a.Stake.SetInt64(1)
	assert.Equal(t, big.NewInt(1000), in.Probe.Stake)
}

func TestClassify_HealthyIffNoIssues(t *testing.T) {
	for _, active := range []bool{true, false} {
		for _, jailed := range []bool{true, false} {
			for _, count := range []int{0, 23, 24, 100} {
				for _, last := range []*time.Time{nil, ago(time.Minute), ago(time.Hour)} {
					in := Input{
						Address:    addr,
						Probe:      &validators.ProbeResult{IsActive: active, IsJailed: jailed},
						Production: production.Report{Count24h: count, NewestBlockTime: last},
					}
					st := Classify(in, th, now)
					assert.Equal(t, len(st.Issues) == 0, st.Severity == Healthy, "%+v", in)
					assert.NotEqual(t, Error, st.Severity)
				}
			}
		}
	}
}

func TestClassify_Monotonic(t *testing.T) {
	base := healthyInput()
	baseline := Classify(base, th, now).Severity

	mutations := map[string]func(*Input){
		"low production": func(in *Input) { in.Production.Count24h = 1 },
		"stale":          func(in *Input) { in.Production.NewestBlockTime = ago(3 * time.Hour) },
		"no block time":  func(in *Input) { in.Production.NewestBlockTime = nil },
		"inactive":       func(in *Input) { in.Probe.IsActive = false },
		"jailed":         func(in *Input) { in.Probe.IsJailed = true },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := healthyInput()
			mutate(&in)
			st := Classify(in, th, now)
			assert.GreaterOrEqual(t, int(st.Severity), int(baseline))
			assert.Len(t, st.Issues, 1)
		})
	}

	// Stacking issues on a warning keeps it at least a warning.
	in := healthyInput()
	in.Production.Count24h = 1
	w := Classify(in, th, now).Severity
	in.Production.NewestBlockTime = nil
	assert.GreaterOrEqual(t, int(Classify(in, th, now).Severity), int(w))
}

func TestFailed(t *testing.T) {
	st := Failed(addr, errors.New("dial tcp: connection refused"), now)

	assert.Equal(t, Error, st.Severity)
	assert.Equal(t, []string{"Error fetching data: dial tcp: connection refused"}, st.Issues)
	assert.Equal(t, addr, st.Address)
	assert.Equal(t, addr.Short(), st.ShortAddress)
	assert.False(t, st.IsActive)
	assert.False(t, st.IsJailed)
	assert.Zero(t, st.BlocksValidated24h)
	assert.Nil(t, st.LastBlockNumber)
	assert.Nil(t, st.LastBlockTime)
	assert.Nil(t, st.Stake)
}

func TestSeverity_Strings(t *testing.T) {
	assert.Equal(t, "HEALTHY", Healthy.String())
	assert.Equal(t, "ERROR", Error.String())
	assert.Equal(t, "UNKNOWN", Severity(42).String())
	assert.Equal(t, "good", Healthy.Color())
	assert.Equal(t, "warning", Warning.Color())
	assert.Equal(t, "danger", Critical.Color())
	assert.Equal(t, "danger", Error.Color())
	assert.Equal(t, "❓", Severity(-1).Icon())

	text, err := Critical.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "CRITICAL", string(text))
}

func TestMinutesSinceLastBlock(t *testing.T) {
	st := ValidatorStatus{LastBlockTime: ago(90 * time.Second)}
	m, ok := st.MinutesSinceLastBlock(now)
	assert.True(t, ok)
	assert.Equal(t, 2, m)

	_, ok = ValidatorStatus{}.MinutesSinceLastBlock(now)
	assert.False(t, ok)
}
