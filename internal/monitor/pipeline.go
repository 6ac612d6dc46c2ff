package monitor

import (
	"context"
	"errors"
	"time"

	"lecca.io/oasys-watchtower/internal/config"
	"lecca.io/oasys-watchtower/internal/logger"
	"lecca.io/oasys-watchtower/internal/production"
	"lecca.io/oasys-watchtower/internal/status"
	"lecca.io/oasys-watchtower/internal/validators"
)

type Prober interface {
	Probe(ctx context.Context, addr validators.Address) (*validators.ProbeResult, error)
}

type ProductionResolver interface {
	Resolve(ctx context.Context, producer validators.Address, now time.Time) (production.Report, error)
}

// Pipeline resolves one validator at a time and holds no per-validator state.
type Pipeline struct {
	prober     Prober
	production ProductionResolver
	thresholds status.Thresholds
}

func NewPipeline(prober Prober, resolver ProductionResolver, settings config.PipelineSettings) *Pipeline {
	return &Pipeline{
		prober:     prober,
		production: resolver,
		thresholds: status.Thresholds{
			MinBlocksPer24h: settings.MinBlocksPer24h,
			MaxBlockDelay:   settings.MaxBlockDelay,
		},
	}
}

// Resolve never fails: data acquisition errors become an ERROR status for
// this validator only.
func (p *Pipeline) Resolve(ctx context.Context, addr validators.Address, now time.Time) status.ValidatorStatus {
	probe, err := p.prober.Probe(ctx, addr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return status.Failed(addr, ctxErr, now)
		}
		logger.Warn("PROBE", "%s: no contract metadata (%v)", addr.Short(), summarize(err))
		probe = nil
	}

	producer := probe.Producer(addr)
	if producer != addr {
		logger.Debug("PROBE", "%s: block production attributed to operator %s", addr.Short(), producer.Short())
	}

	report, err := p.production.Resolve(ctx, producer, now)
	if err != nil {
		logger.Error("PROD", "%s: %v", addr.Short(), err)
		return status.Failed(addr, err, now)
	}

	st := status.Classify(status.Input{
		Address:    addr,
		Probe:      probe,
		Production: report,
	}, p.thresholds, now)

	logger.Info("CYCLE", "Validator %s: %s (%d blocks/24h via %s)", st.ShortAddress, st.Severity, st.BlocksValidated24h, st.Source)
	return st
}

// summarize keeps probe exhaustion logs to one line.
func summarize(err error) string {
	if errors.Is(err, validators.ErrProbeExhausted) {
		return validators.ErrProbeExhausted.Error()
	}
	return err.Error()
}
